package service

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync"
)

// Player 一个HTTP会话下的玩家，列表只追加
type Player struct {
	SessionID string
	CreatedAt time.Time

	mu                sync.RWMutex
	createdGameIDs    []string
	joinedGameIDs     []string
	uiSessionIDs      []string
	lastCreatedGameID string
}

// PlayerView 玩家快照
type PlayerView struct {
	SessionID         string    `json:"session_id"`
	CreatedGameIDs    []string  `json:"created_game_ids"`
	JoinedGameIDs     []string  `json:"joined_game_ids"`
	UiSessionIDs      []string  `json:"ui_session_ids"`
	LastCreatedGameID string    `json:"last_created_game_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewPlayer 创建玩家
func NewPlayer(sessionID string) *Player {
	return &Player{SessionID: sessionID, CreatedAt: time.Now()}
}

// AddCreatedGame 记录创建的对局
func (p *Player) AddCreatedGame(gameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createdGameIDs = appendUnique(p.createdGameIDs, gameID)
	p.lastCreatedGameID = gameID
}

// AddJoinedGame 记录加入的对局
func (p *Player) AddJoinedGame(gameID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joinedGameIDs = appendUnique(p.joinedGameIDs, gameID)
}

// AddUiSession 记录打开的界面会话
func (p *Player) AddUiSession(uiSessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uiSessionIDs = appendUnique(p.uiSessionIDs, uiSessionID)
}

// LastCreatedGame 最近创建的对局
func (p *Player) LastCreatedGame() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastCreatedGameID, p.lastCreatedGameID != ""
}

// Owns 是否创建或加入过该对局
func (p *Player) Owns(gameID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return contains(p.createdGameIDs, gameID) || contains(p.joinedGameIDs, gameID)
}

// View 拷贝一份快照
func (p *Player) View() PlayerView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PlayerView{
		SessionID:         p.SessionID,
		CreatedGameIDs:    append([]string{}, p.createdGameIDs...),
		JoinedGameIDs:     append([]string{}, p.joinedGameIDs...),
		UiSessionIDs:      append([]string{}, p.uiSessionIDs...),
		LastCreatedGameID: p.lastCreatedGameID,
		CreatedAt:         p.CreatedAt,
	}
}

// 重复投递的加入不会产生重复记录
func appendUnique(list []string, id string) []string {
	if contains(list, id) {
		return list
	}
	return append(list, id)
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

// Registry 会话ID到玩家的映射
type Registry struct {
	players *xsync.MapOf[string, *Player]
}

// NewRegistry 创建玩家注册表
func NewRegistry() *Registry {
	return &Registry{players: xsync.NewMapOf[*Player]()}
}

// GetOrCreate 取出玩家，首次出现时创建
func (r *Registry) GetOrCreate(sessionID string) *Player {
	p, _ := r.players.LoadOrCompute(sessionID, func() *Player {
		return NewPlayer(sessionID)
	})
	return p
}

// Get 查询玩家
func (r *Registry) Get(sessionID string) (*Player, bool) {
	return r.players.Load(sessionID)
}

// Remove 会话结束
func (r *Registry) Remove(sessionID string) {
	r.players.Delete(sessionID)
}

// Count 玩家数
func (r *Registry) Count() int {
	return r.players.Size()
}

type playerKey struct{}

// WithPlayer 把玩家放进请求上下文
func WithPlayer(ctx context.Context, p *Player) context.Context {
	return context.WithValue(ctx, playerKey{}, p)
}

// PlayerFrom 从请求上下文取出玩家
func PlayerFrom(ctx context.Context) (*Player, bool) {
	p, ok := ctx.Value(playerKey{}).(*Player)
	return p, ok && p != nil
}
