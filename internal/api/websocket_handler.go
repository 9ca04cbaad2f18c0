package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/memory-game/internal/middleware"
	ws "github.com/wfunc/memory-game/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler 负责把HTTP连接升级成对局WebSocket
type WebSocketHandler struct {
	hub      *ws.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, logger *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{hub: hub, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 生产部署时应校验Origin
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return h
}

// GameWebSocket 建立对局WebSocket连接。可通过 ?session_id= 直接绑定会话，
// 也可以连接后再发subscribe消息。
func (h *WebSocketHandler) GameWebSocket(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists || userID == 0 {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "UNAUTHORIZED", Message: "未登录"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("升级WebSocket连接失败", zap.Uint("user_id", userID), zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, userID)
	if sessionID := c.Query("session_id"); sessionID != "" {
		client.SessionID = sessionID
	}

	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.Uint("user_id", userID),
		zap.String("session_id", client.SessionID))
}

// GetOnlineCount 在线连接数与在线用户列表
func (h *WebSocketHandler) GetOnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
		"online_users": h.hub.GetOnlineUsers(),
	})
}
