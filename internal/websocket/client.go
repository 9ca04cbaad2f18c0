package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientNotFound  = errors.New("客户端未找到")
	ErrSessionNotFound = errors.New("会话未找到")
	ErrSendBufferFull  = errors.New("发送缓冲区已满")
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// ping周期必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512 * 1024 // 512KB
)

// NewClient 包装一条已完成升级的WebSocket连接
func NewClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}
}

// ReadPump 持续读取连接上的消息，连接断开时注销客户端
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.prepareRead()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			c.logAbnormalClose(err)
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) prepareRead() {
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logAbnormalClose 正常挥手不记日志，异常断开记error
func (c *Client) logAbnormalClose(err error) {
	if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		return
	}
	c.Hub.logger.Error("WebSocket连接异常断开", zap.String("client_id", c.ID), zap.Error(err))
}

// WritePump 把发送通道里的消息写入连接，并按周期发ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Conn.Close()

	for {
		select {
		case message, ok := <-c.Send:
			if !c.writeFrame(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		}
	}
}

// ping 超时或写失败都视为连接不可用
func (c *Client) ping() bool {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.PingMessage, nil) == nil
}

// writeFrame 把一条消息连同已排队的消息写成一帧，通道关闭时发close帧
func (c *Client) writeFrame(message []byte, ok bool) bool {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if !ok {
		// Hub关闭了发送通道
		c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
		return false
	}

	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	w.Write(message)

	// 排队的消息合并进同一帧，用换行分隔
	for i := len(c.Send); i > 0; i-- {
		w.Write([]byte{'\n'})
		w.Write(<-c.Send)
	}
	return w.Close() == nil
}

// handleMessage 把消息交给Hub的处理器；没有处理器时只支持最基本的协议
func (c *Client) handleMessage(data []byte) {
	if c.Hub.messageHandler != nil {
		c.Hub.messageHandler.HandleClientMessage(c, data)
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.Hub.logger.Warn("收到无效的WebSocket消息",
			zap.String("client_id", c.ID))
		c.sendError("消息格式错误")
		c.Close()
		return
	}

	switch msg.Type {
	case MessageTypePong:
		c.Hub.logger.Debug("收到pong", zap.String("client_id", c.ID))

	case MessageTypeSubscribe:
		// 绑定对局会话，后续对局事件会推送过来
		if msg.SessionID != "" {
			c.SessionID = msg.SessionID
		}

	default:
		c.sendError("不支持的消息类型: " + msg.Type)
		c.Close()
	}
}

func (c *Client) sendError(message string) {
	c.Hub.SendToClient(c.ID, &Message{
		Type:      MessageTypeError,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"error":"` + message + `"}`),
	})
}

// Close 主动断开客户端
func (c *Client) Close() {
	c.Hub.Unregister(c)
}
