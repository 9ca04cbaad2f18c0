package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/memory-game/internal/game"
	"go.uber.org/zap"
)

// GameMessageHandler WebSocket对局消息处理器
//
// 客户端通过 subscribe 绑定到一个对局会话，之后该会话上的翻牌、配对、
// 换手、结束等事件都会实时推送给所有订阅的客户端。
type GameMessageHandler struct {
	hub         *Hub
	gameService *game.GameService
	logger      *zap.Logger

	// 已桥接事件推送的会话集合
	mu      sync.Mutex
	bridged map[string]bool
}

// NewGameMessageHandler 创建对局消息处理器
func NewGameMessageHandler(hub *Hub, gameService *game.GameService, logger *zap.Logger) *GameMessageHandler {
	return &GameMessageHandler{
		hub:         hub,
		gameService: gameService,
		logger:      logger,
		bridged:     make(map[string]bool),
	}
}

// reply 给单个客户端回包
func (h *GameMessageHandler) reply(client *Client, msgType string, data json.RawMessage) {
	h.hub.SendToClient(client.ID, &Message{
		Type:      msgType,
		UserID:    client.UserID,
		SessionID: client.SessionID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
}

// sendError 发送错误消息
func (h *GameMessageHandler) sendError(client *Client, message string) {
	payload := fmt.Sprintf(`{"error":"%s","timestamp":%d}`, message, time.Now().Unix())
	h.reply(client, MessageTypeError, json.RawMessage(payload))
}

// rejectAndClose 回错误后断开，用于协议层错误
func (h *GameMessageHandler) rejectAndClose(client *Client, reason string) {
	h.sendError(client, reason)
	client.Close()
}

// HandleClientMessage 解析并分发一条客户端消息
func (h *GameMessageHandler) HandleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Error("解析消息失败", zap.String("client_id", client.ID), zap.Error(err))
		h.rejectAndClose(client, "消息格式错误")
		return
	}
	if msg.Type == "" {
		h.logger.Warn("收到空消息类型", zap.String("client_id", client.ID))
		h.rejectAndClose(client, "消息类型不能为空")
		return
	}

	// 元数据以连接身份为准，不信任客户端自报的值
	msg.UserID = client.UserID
	msg.Timestamp = time.Now().Unix()

	h.logger.Debug("收到WebSocket消息",
		zap.String("client_id", client.ID),
		zap.String("type", msg.Type),
		zap.Uint("user_id", client.UserID))

	switch msg.Type {
	case MessageTypePing:
		h.handlePing(client)

	case MessageTypePong:
		h.logger.Debug("收到pong", zap.String("client_id", client.ID))

	case MessageTypeSubscribe:
		h.handleSubscribe(client, &msg)

	case MessageTypeFlip:
		h.handleFlip(client, &msg)

	case MessageTypeHint:
		h.handleHint(client)

	case MessageTypePause:
		h.handlePause(client)

	case MessageTypeResume:
		h.handleResume(client)

	case MessageTypeGameState:
		h.handleGetGameState(client)

	default:
		h.logger.Warn("未知消息类型",
			zap.String("client_id", client.ID),
			zap.String("type", msg.Type))
		h.rejectAndClose(client, "不支持的消息类型: "+msg.Type)
	}
}

// handleSubscribe 订阅对局事件推送
func (h *GameMessageHandler) handleSubscribe(client *Client, msg *Message) {
	sessionID := msg.SessionID
	if sessionID == "" && msg.Data != nil {
		var data struct {
			SessionID string `json:"session_id"`
		}
		_ = json.Unmarshal(msg.Data, &data)
		sessionID = data.SessionID
	}

	if sessionID == "" {
		h.sendError(client, "缺少会话ID")
		return
	}

	// 确认会话存在
	session, err := h.gameService.SessionManager().GetSession(sessionID)
	if err != nil {
		h.sendError(client, "对局会话不存在")
		return
	}

	client.SessionID = sessionID
	h.bridgeSessionEvents(sessionID, session)

	h.logger.Info("客户端订阅对局",
		zap.String("client_id", client.ID),
		zap.String("session_id", sessionID))

	h.reply(client, MessageTypeSubscribe, json.RawMessage(`{"status":"subscribed","message":"订阅成功"}`))
}

// bridgeSessionEvents 把对局事件桥接到会话的所有WebSocket客户端
func (h *GameMessageHandler) bridgeSessionEvents(sessionID string, session *game.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bridged[sessionID] {
		return
	}
	h.bridged[sessionID] = true

	session.Orchestrator.Subscribe(func(event game.Event) {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			h.logger.Error("序列化对局事件失败",
				zap.String("session_id", sessionID),
				zap.Error(err))
			return
		}
		push := &Message{
			Type:      string(event.Type),
			SessionID: event.SessionID,
			Timestamp: event.Timestamp.Unix(),
			Data:      data,
		}
		// 推送失败只记日志，监听器不能阻塞对局
		if err := h.hub.SendToSession(event.SessionID, push); err != nil {
			h.logger.Debug("推送对局事件失败",
				zap.String("session_id", event.SessionID),
				zap.String("type", string(event.Type)),
				zap.Error(err))
		}

		// 对局结束后清理桥接标记
		if event.Type == game.EventGameFinished {
			h.mu.Lock()
			delete(h.bridged, sessionID)
			h.mu.Unlock()
		}
	})
}

// handleFlip 处理翻牌
func (h *GameMessageHandler) handleFlip(client *Client, msg *Message) {
	if client.SessionID == "" {
		h.sendError(client, "请先订阅对局会话")
		return
	}

	var req struct {
		Seat     string `json:"seat"`
		Position int    `json:"position"`
	}
	if msg.Data == nil || json.Unmarshal(msg.Data, &req) != nil {
		h.sendError(client, "翻牌参数错误")
		return
	}

	resp, err := h.gameService.Flip(context.Background(), client.SessionID, req.Seat, req.Position)
	if err != nil {
		h.logger.Warn("翻牌失败",
			zap.String("session_id", client.SessionID),
			zap.String("seat", req.Seat),
			zap.Int("position", req.Position),
			zap.Error(err))
		h.sendError(client, fmt.Sprintf("翻牌失败: %v", err))
		return
	}

	data, _ := json.Marshal(resp)
	h.reply(client, MessageTypeFlipResult, data)
}

// handleHint 处理提示请求
func (h *GameMessageHandler) handleHint(client *Client) {
	if client.SessionID == "" {
		h.sendError(client, "请先订阅对局会话")
		return
	}

	hint, err := h.gameService.Hint(context.Background(), client.SessionID)
	if err != nil {
		h.sendError(client, fmt.Sprintf("获取提示失败: %v", err))
		return
	}

	data, _ := json.Marshal(hint)
	h.reply(client, MessageTypeHintResult, data)
}

// handlePause 处理暂停，暂停事件由对局事件桥接推送
func (h *GameMessageHandler) handlePause(client *Client) {
	if client.SessionID == "" {
		h.sendError(client, "请先订阅对局会话")
		return
	}

	if err := h.gameService.Pause(context.Background(), client.SessionID); err != nil {
		h.sendError(client, fmt.Sprintf("暂停失败: %v", err))
	}
}

// handleResume 处理继续
func (h *GameMessageHandler) handleResume(client *Client) {
	if client.SessionID == "" {
		h.sendError(client, "请先订阅对局会话")
		return
	}

	if err := h.gameService.Resume(context.Background(), client.SessionID); err != nil {
		h.sendError(client, fmt.Sprintf("继续对局失败: %v", err))
	}
}

// handleGetGameState 处理获取对局状态请求
func (h *GameMessageHandler) handleGetGameState(client *Client) {
	if client.SessionID == "" {
		h.reply(client, MessageTypeGameState, json.RawMessage(`{"state":"idle","message":"当前没有进行中的对局"}`))
		return
	}

	info, err := h.gameService.GetSessionInfo(context.Background(), client.SessionID)
	if err != nil {
		// 会话不存在，清理绑定
		client.SessionID = ""
		h.reply(client, MessageTypeGameState, json.RawMessage(`{"state":"idle","message":"对局会话已过期"}`))
		return
	}

	data, _ := json.Marshal(info)
	h.reply(client, MessageTypeGameState, data)
}

// handlePing 处理ping消息
func (h *GameMessageHandler) handlePing(client *Client) {
	h.reply(client, MessageTypePong, json.RawMessage(`{"message":"pong"}`))
}
