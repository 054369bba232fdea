package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/game"
	"github.com/wfunc/echechess/internal/logger"
	"go.uber.org/zap"
)

// SideResolver 查询会话在对局中的执棋方
type SideResolver interface {
	SideOf(ctx context.Context, gameID, sessionID string) (game.Side, error)
}

// HeartbeatFunc 收到客户端心跳时刷新界面会话
type HeartbeatFunc func(ctx context.Context, uiSessionID string)

// Hub WebSocket连接管理中心，本节点的推送终点
type Hub struct {
	// 连接索引，只在Run协程中修改
	clients map[string]*Client
	games   map[string]map[string]*Client
	uis     map[string]map[string]*Client
	mu      sync.RWMutex

	// 已投递的事件ID
	seen *lru.Cache[string, struct{}]

	sides     SideResolver
	heartbeat HeartbeatFunc

	events     chan *delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	cfg    config.WebSocketConfig
	logger *zap.Logger
}

// Message 下发给浏览器的消息
type Message struct {
	Type      string          `json:"type"`
	GameID    string          `json:"game_id,omitempty"`
	Side      game.Side       `json:"side,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 系统消息类型，对局事件直接使用事件类型
const (
	MessageTypeConnected = "connected"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
)

// NewHub 创建Hub
func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 4096
	}
	seen, _ := lru.New[string, struct{}](cfg.DedupSize)

	return &Hub{
		clients:    make(map[string]*Client),
		games:      make(map[string]map[string]*Client),
		uis:        make(map[string]map[string]*Client),
		seen:       seen,
		events:     make(chan *delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		cfg:        cfg,
		logger:     logger.WithModule(logger.ModuleWebSocket),
	}
}

// SetSideResolver 设置执棋方查询，未设置时使用连接建立时的执棋方
func (h *Hub) SetSideResolver(r SideResolver) {
	h.sides = r
}

// OnHeartbeat 设置心跳回调
func (h *Hub) OnHeartbeat(fn HeartbeatFunc) {
	h.heartbeat = fn
}

// Run 运行Hub，ctx结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case d := <-h.events:
			h.dispatch(d)
		}
	}
}

// delivery 待推送的事件，附带在调用方协程中查好的执棋方
type delivery struct {
	ev    *Event
	sides map[string]game.Side
}

// Deliver 实现Sink。同一事件ID只投递一次，未能入队的事件可以重试
func (h *Hub) Deliver(ctx context.Context, ev *Event) error {
	if ok, _ := h.seen.ContainsOrAdd(ev.ID, struct{}{}); ok {
		h.logger.Debug("重复事件已忽略", zap.String("event_id", ev.ID))
		return nil
	}

	d := &delivery{ev: ev}
	if ev.Scope == game.ScopeSide {
		d.sides = h.resolveSides(ctx, ev.GameID)
	}

	select {
	case h.events <- d:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		h.seen.Remove(ev.ID)
		return ctx.Err()
	}
}

// resolveSides 查询对局内各会话的当前执棋方，在Run协程之外执行
func (h *Hub) resolveSides(ctx context.Context, gameID string) map[string]game.Side {
	if h.sides == nil {
		return nil
	}

	h.mu.RLock()
	sessions := make(map[string]struct{}, len(h.games[gameID]))
	for _, c := range h.games[gameID] {
		if c.SessionID != "" {
			sessions[c.SessionID] = struct{}{}
		}
	}
	h.mu.RUnlock()

	resolved := make(map[string]game.Side, len(sessions))
	for sessionID := range sessions {
		lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		side, err := h.sides.SideOf(lookupCtx, gameID, sessionID)
		cancel()
		if err != nil {
			h.logger.Warn("查询执棋方失败",
				zap.String("game_id", gameID),
				zap.Error(err))
			continue
		}
		resolved[sessionID] = side
	}
	return resolved
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if client.GameID != "" {
		addIndex(h.games, client.GameID, client)
	}
	if client.UiSessionID != "" {
		addIndex(h.uis, client.UiSessionID, client)
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("game_id", client.GameID),
		zap.String("ui_session_id", client.UiSessionID))

	h.send(client, &Message{
		Type:      MessageTypeConnected,
		GameID:    client.GameID,
		Side:      client.Side,
		Timestamp: time.Now().UnixMilli(),
	})
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	removeIndex(h.games, client.GameID, client)
	removeIndex(h.uis, client.UiSessionID, client)
	close(client.send)
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("game_id", client.GameID))
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.games = make(map[string]map[string]*Client)
	h.uis = make(map[string]map[string]*Client)
	h.mu.Unlock()
}

// dispatch 按范围找到目标连接并发送
func (h *Hub) dispatch(d *delivery) {
	ev := d.ev
	msg := &Message{
		Type:      string(ev.Kind),
		GameID:    ev.GameID,
		Side:      ev.Side,
		EventID:   ev.ID,
		Data:      ev.Payload,
		Timestamp: ev.Timestamp,
	}

	var targets []*Client
	h.mu.RLock()
	switch ev.Scope {
	case game.ScopeGame:
		targets = collect(h.games[ev.GameID])
	case game.ScopeSide:
		targets = collect(h.games[ev.GameID])
	case game.ScopeUi:
		targets = collect(h.uis[ev.UiSessionID])
	}
	h.mu.RUnlock()

	if ev.Scope == game.ScopeSide {
		targets = filterSide(ev.Side, d.sides, targets)
	}

	for _, client := range targets {
		h.send(client, msg)
	}

	h.logger.Debug("事件已推送",
		zap.String("event_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("scope", string(ev.Scope)),
		zap.Int("clients", len(targets)))
}

// filterSide 只保留属于事件执棋方的连接，查不到的会话使用连接建立时的执棋方
func filterSide(side game.Side, resolved map[string]game.Side, clients []*Client) []*Client {
	out := clients[:0]
	for _, client := range clients {
		current := client.Side
		if s, ok := resolved[client.SessionID]; ok {
			current = s
		}
		if current == side {
			out = append(out, client)
		}
	}
	return out
}

// send 非阻塞写入发送队列，队列满时丢弃
func (h *Hub) send(client *Client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", client.ID),
			zap.String("type", msg.Type))
	}
}

// reply 从读协程回复客户端，连接已注销时忽略
func (h *Hub) reply(client *Client, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; ok {
		h.send(client, msg)
	}
}

// OnlineCount 在线连接数
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GameClients 某对局的在线连接数
func (h *Hub) GameClients(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

func addIndex(index map[string]map[string]*Client, key string, client *Client) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]*Client)
		index[key] = set
	}
	set[client.ID] = client
}

func removeIndex(index map[string]map[string]*Client, key string, client *Client) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, client.ID)
	if len(set) == 0 {
		delete(index, key)
	}
}

func collect(set map[string]*Client) []*Client {
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}
