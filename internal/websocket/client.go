package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/echechess/internal/game"
	"go.uber.org/zap"
)

// Subscription 连接订阅的对象
type Subscription struct {
	SessionID   string
	UiSessionID string
	GameID      string
	Side        game.Side
}

// Client WebSocket客户端
type Client struct {
	ID          string
	SessionID   string
	UiSessionID string
	GameID      string
	Side        game.Side // 连接建立时的执棋方

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient 创建客户端，conn为nil时只收队列（用于测试）
func NewClient(hub *Hub, conn *websocket.Conn, sub Subscription) *Client {
	return &Client{
		ID:          uuid.NewString(),
		SessionID:   sub.SessionID,
		UiSessionID: sub.UiSessionID,
		GameID:      sub.GameID,
		Side:        sub.Side,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, hub.cfg.SendBuffer),
	}
}

// Serve 注册并启动读写协程
func (h *Hub) Serve(conn *websocket.Conn, sub Subscription) *Client {
	client := NewClient(h, conn, sub)
	h.Register(client)
	go client.WritePump()
	go client.ReadPump()
	return client
}

// Send 发送队列，只读
func (c *Client) Send() <-chan []byte {
	return c.send
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pongWait := c.hub.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}

		if !c.handleMessage(message) {
			return
		}
	}
}

// WritePump 写入消息，每条消息一帧
func (c *Client) WritePump() {
	pingPeriod := c.hub.cfg.PingInterval
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	writeWait := c.hub.cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理客户端消息，返回false时断开
func (c *Client) handleMessage(data []byte) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.sendError("消息格式错误")
		return false
	}

	switch msg.Type {
	case MessageTypePing:
		if c.hub.heartbeat != nil && c.UiSessionID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.hub.heartbeat(ctx, c.UiSessionID)
			cancel()
		}
		c.hub.reply(c, &Message{Type: MessageTypePong, Timestamp: time.Now().UnixMilli()})
		return true

	case MessageTypePong:
		return true

	default:
		// 动作走HTTP接口，连接只用于推送
		c.hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
		return true
	}
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	c.hub.reply(c, &Message{
		Type:      MessageTypeError,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.hub.Unregister(c)
}

// RejectExpired 界面会话已失效：推送UI_SESSION_EXPIRED后关闭连接
func RejectExpired(conn *websocket.Conn, uiSessionID string, writeWait time.Duration) error {
	defer conn.Close()
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}

	data, err := json.Marshal(map[string]string{"ui_session_id": uiSessionID})
	if err != nil {
		return err
	}
	msg, err := json.Marshal(&Message{
		Type:      string(game.EventUiSessionExpired),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "ui session expired"))
}
