package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/echechess/internal/adapter"
	"github.com/wfunc/echechess/internal/config"
	"github.com/wfunc/echechess/internal/errors"
	"github.com/wfunc/echechess/internal/game"
	ws "github.com/wfunc/echechess/internal/websocket"
)

// RouterTestSuite HTTP接口测试套件
type RouterTestSuite struct {
	suite.Suite
	router  *Router
	runtime *adapter.Runtime
	cancel  context.CancelFunc
}

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *errors.AppError `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeIndependent,
		Node: config.NodeConfig{ID: "api-test"},
		Session: config.SessionConfig{
			Secret:        "api-secret",
			TokenTTL:      time.Hour,
			UiTTL:         time.Minute,
			UiCapacity:    32,
			SweepInterval: time.Minute,
		},
		WebSocket: config.WebSocketConfig{Path: "/ws", SendBuffer: 32, DedupSize: 64},
		Action:    config.ActionConfig{Timeout: 2 * time.Second},
	}
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	rt, err := adapter.New(cfg, game.NewBookkeeper())
	s.Require().NoError(err)

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.Require().NoError(rt.Start(ctx))

	s.runtime = rt
	s.router = NewRouter(rt, cfg)
}

func (s *RouterTestSuite) TearDownTest() {
	s.cancel()
	s.runtime.Close()
}

func (s *RouterTestSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, *envelope) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, &env
}

func (s *RouterTestSuite) session() (string, string) {
	w, env := s.do(http.MethodPost, "/api/v1/session", "", nil)
	s.Require().Equal(http.StatusCreated, w.Code)
	var resp SessionResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	s.NotEmpty(resp.Token)
	return resp.SessionID, resp.Token
}

func (s *RouterTestSuite) uiSession(token string) string {
	w, env := s.do(http.MethodPost, "/api/v1/ui/session", token, nil)
	s.Require().Equal(http.StatusCreated, w.Code)
	var resp UiSessionResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	s.False(resp.Existed)
	s.Equal(int64(60), resp.TTLSeconds)
	return resp.UiSessionID
}

func (s *RouterTestSuite) createGame(token string) string {
	w, env := s.do(http.MethodPost, "/api/v1/game", token, game.CreateOptions{Side: game.SideWhite, AllowJoin: true, AllowObservers: true})
	s.Require().Equal(http.StatusCreated, w.Code)
	var view struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
		White   string `json:"white"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &view))
	s.Equal(int64(1), view.Version)
	return view.ID
}

func (s *RouterTestSuite) TestHealth() {
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)

	var resp HealthResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("healthy", resp.Status)
	s.Equal("independent", resp.Mode)
	s.Equal("api-test", resp.NodeID)
}

func (s *RouterTestSuite) TestOpenAPI() {
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi", nil))
	s.Equal(http.StatusOK, w.Code)

	var doc map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]interface{})
	s.Require().True(ok)
	s.Contains(paths, "/api/v1/game/{id}/move")
	s.Contains(paths, "/ws")
}

func (s *RouterTestSuite) TestRequiresSession() {
	w, env := s.do(http.MethodPost, "/api/v1/game", "", game.CreateOptions{})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.False(env.Success)
	s.Equal(errors.ErrSessionRequired, env.Error.Code)
}

func (s *RouterTestSuite) TestNotFound() {
	_, token := s.session()

	w, env := s.do(http.MethodGet, "/api/v1/game/missing", token, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(errors.ErrNotFound, env.Error.Code)

	w, _ = s.do(http.MethodGet, "/nope", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestPlayFlow() {
	aliceID, alice := s.session()
	_, bob := s.session()
	gameID := s.createGame(alice)

	w, env := s.do(http.MethodPost, "/api/v1/game/"+gameID+"/join", bob, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Accepted bool  `json:"accepted"`
		Version  int64 `json:"version"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	s.True(out.Accepted)
	s.Equal(int64(2), out.Version)

	w, env = s.do(http.MethodPost, "/api/v1/game/"+gameID+"/move", alice, MoveRequest{From: "e2", To: "e4"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Require().NoError(json.Unmarshal(env.Data, &out))
	s.Equal(int64(3), out.Version)

	// 白方连走两步被拒绝
	w, env = s.do(http.MethodPost, "/api/v1/game/"+gameID+"/move", alice, MoveRequest{From: "d2", To: "d4"})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal(errors.ErrValidationRejected, env.Error.Code)

	w, env = s.do(http.MethodGet, "/api/v1/game/"+gameID, alice, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var view struct {
		Status  string `json:"status"`
		Turn    string `json:"turn"`
		Version int64  `json:"version"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &view))
	s.Equal("playing", view.Status)
	s.Equal("BLACK", view.Turn)
	s.Equal(int64(3), view.Version)

	w, env = s.do(http.MethodGet, "/api/v1/player", alice, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var player struct {
		SessionID         string   `json:"session_id"`
		CreatedGameIDs    []string `json:"created_game_ids"`
		LastCreatedGameID string   `json:"last_created_game_id"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &player))
	s.Equal(aliceID, player.SessionID)
	s.Equal([]string{gameID}, player.CreatedGameIDs)
	s.Equal(gameID, player.LastCreatedGameID)
}

func (s *RouterTestSuite) TestBadRequests() {
	_, token := s.session()
	gameID := s.createGame(token)

	w, env := s.do(http.MethodPost, "/api/v1/game/"+gameID+"/move", token, map[string]string{"from": "e2"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(errors.ErrInvalidArgument, env.Error.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/game/"+gameID+"/side", token, map[string]string{"side": "OBSERVER"})
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/ui/session", token, UiSessionRequest{UiSessionID: "not-a-uuid"})
	s.Equal(http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/ui/ping", token, map[string]string{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestUiSessionLifecycle() {
	_, token := s.session()
	ui := s.uiSession(token)

	w, env := s.do(http.MethodPost, "/api/v1/ui/session", token, UiSessionRequest{UiSessionID: ui})
	s.Equal(http.StatusOK, w.Code)
	var resp UiSessionResponse
	s.Require().NoError(json.Unmarshal(env.Data, &resp))
	s.True(resp.Existed)
	s.Equal(ui, resp.UiSessionID)

	w, env = s.do(http.MethodPost, "/api/v1/ui/ping", "", PingRequest{UiSessionID: ui})
	s.Equal(http.StatusOK, w.Code)
	var ping PingResponse
	s.Require().NoError(json.Unmarshal(env.Data, &ping))
	s.True(ping.Active)

	// 未知会话不是错误
	w, env = s.do(http.MethodPost, "/api/v1/ui/ping", "", PingRequest{UiSessionID: "3b241101-e2bb-4255-8caf-4136c566a962"})
	s.Equal(http.StatusOK, w.Code)
	s.Require().NoError(json.Unmarshal(env.Data, &ping))
	s.False(ping.Active)
}

func (s *RouterTestSuite) dial(server *httptest.Server, query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	return conn
}

func (s *RouterTestSuite) readUntil(conn *websocket.Conn, kind string) *ws.Message {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		s.Require().NoError(err)
		var msg ws.Message
		s.Require().NoError(json.Unmarshal(data, &msg))
		if msg.Type == kind {
			return &msg
		}
	}
}

func (s *RouterTestSuite) TestWebSocketReceivesMoves() {
	server := httptest.NewServer(s.router.Handler())
	defer server.Close()

	_, alice := s.session()
	_, bob := s.session()
	gameID := s.createGame(alice)
	ui := s.uiSession(bob)

	conn := s.dial(server, "ui="+ui+"&game="+gameID+"&token="+bob)
	defer conn.Close()
	s.readUntil(conn, ws.MessageTypeConnected)

	w, _ := s.do(http.MethodPost, "/api/v1/game/"+gameID+"/join", bob, ActionBase{UiSessionID: ui})
	s.Require().Equal(http.StatusOK, w.Code)
	s.readUntil(conn, string(game.EventPlayerJoined))

	w, _ = s.do(http.MethodPost, "/api/v1/game/"+gameID+"/move", alice, MoveRequest{From: "e2", To: "e4"})
	s.Require().Equal(http.StatusOK, w.Code)
	msg := s.readUntil(conn, string(game.EventMove))
	s.Equal(gameID, msg.GameID)

	// 心跳经连接刷新界面会话
	s.Require().NoError(conn.WriteJSON(ws.Message{Type: ws.MessageTypePing}))
	s.readUntil(conn, ws.MessageTypePong)
}

func (s *RouterTestSuite) TestWebSocketExpiredUiSession() {
	server := httptest.NewServer(s.router.Handler())
	defer server.Close()

	conn := s.dial(server, "ui=3b241101-e2bb-4255-8caf-4136c566a962")
	defer conn.Close()

	msg := s.readUntil(conn, string(game.EventUiSessionExpired))
	s.Contains(string(msg.Data), "3b241101-e2bb-4255-8caf-4136c566a962")

	_, _, err := conn.ReadMessage()
	s.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func (s *RouterTestSuite) TestWebSocketRejectsBadQuery() {
	w, env := s.do(http.MethodGet, "/ws", "", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(errors.ErrInvalidArgument, env.Error.Code)

	ui := s.uiSession("")
	w, _ = s.do(http.MethodGet, "/ws?ui="+ui+"&game=missing", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
