package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 心跳广播周期
const heartbeatInterval = 30 * time.Second

// Hub WebSocket连接管理中心
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client // 客户端ID -> 客户端
	userClients map[uint][]*Client // 用户ID -> 该用户的所有客户端

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client

	messageHandler ClientMessageHandler
	logger         *zap.Logger
}

// Client 一条WebSocket连接及其发送通道
type Client struct {
	ID        string
	Hub       *Hub
	Conn      *websocket.Conn
	UserID    uint
	SessionID string // 订阅的对局会话ID
	Send      chan []byte
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	UserID    uint            `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ClientMessageHandler 客户端消息处理器接口
type ClientMessageHandler interface {
	HandleClientMessage(client *Client, data []byte)
}

// 连接层消息类型
const (
	MessageTypeConnected    = "connected"
	MessageTypeDisconnected = "disconnected"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeSubscribe    = "subscribe"
)

// 对局消息类型
const (
	MessageTypeFlip       = "flip"
	MessageTypeFlipResult = "flip_result"
	MessageTypeHint       = "hint"
	MessageTypeHintResult = "hint_result"
	MessageTypePause      = "pause"
	MessageTypeResume     = "resume"
	MessageTypeGameState  = "game_state"
)

// 广播通道缓冲，写满后Broadcast会阻塞
const broadcastBuffer = 256

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:      logger,
		clients:     make(map[string]*Client),
		userClients: make(map[uint][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, broadcastBuffer),
	}
}

// SetMessageHandler 设置客户端消息处理器
func (h *Hub) SetMessageHandler(handler ClientMessageHandler) {
	h.messageHandler = handler
}

// Run 运行Hub主循环，定期向所有客户端广播心跳
func (h *Hub) Run() {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-heartbeat.C:
			h.broadcastMessage(&Message{
				Type:      MessageTypePing,
				Timestamp: time.Now().Unix(),
			})
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if client.UserID > 0 {
		h.userClients[client.UserID] = append(h.userClients[client.UserID], client)
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", client.UserID))

	h.SendToClient(client.ID, &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
		Data:      json.RawMessage(`{"message":"连接成功"}`),
	})
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	if client.UserID > 0 {
		remain := h.userClients[client.UserID][:0]
		for _, c := range h.userClients[client.UserID] {
			if c.ID != client.ID {
				remain = append(remain, c)
			}
		}
		if len(remain) == 0 {
			delete(h.userClients, client.UserID)
		} else {
			h.userClients[client.UserID] = remain
		}
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", client.UserID))
}

// trySend 非阻塞投递，缓冲区满时丢弃并返回false
func (h *Hub) trySend(client *Client, data []byte) bool {
	select {
	case client.Send <- data:
		return true
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", client.ID),
			zap.Uint("user_id", client.UserID))
		return false
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	data, err := encode(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		h.trySend(client, data)
	}
}

// encode 消息统一走JSON编码
func encode(message *Message) ([]byte, error) {
	return json.Marshal(message)
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}
	if !h.trySend(client, data) {
		return ErrSendBufferFull
	}
	return nil
}

// SendToSession 发送消息给订阅了指定对局会话的所有客户端
func (h *Hub) SendToSession(sessionID string, message *Message) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var sent bool
	for _, client := range h.clients {
		if client.SessionID == sessionID && h.trySend(client, data) {
			sent = true
		}
	}
	if sent {
		return nil
	}
	return ErrSessionNotFound
}

// GetOnlineUsers 在线用户去重后的ID列表
func (h *Hub) GetOnlineUsers() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	online := make([]uint, 0, len(h.userClients))
	for userID := range h.userClients {
		online = append(online, userID)
	}
	return online
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息给所有客户端
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
