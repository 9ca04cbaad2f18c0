package api

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/memory-game/internal/errors"
	"github.com/wfunc/memory-game/internal/game"
	"github.com/wfunc/memory-game/internal/middleware"
	"go.uber.org/zap"
)

// GameHandler 对局处理器
type GameHandler struct {
	gameService *game.GameService
	logger      *zap.Logger
}

// NewGameHandler 创建对局处理器
func NewGameHandler(gameService *game.GameService, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		logger:      logger,
	}
}

// currentUser 取登录用户，未登录时直接写401
func (h *GameHandler) currentUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Code: "UNAUTHORIZED", Message: "未登录"})
	}
	return userID, ok
}

// bindJSON 解析请求体，失败时直接写400
func (h *GameHandler) bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_REQUEST", Message: "请求参数错误", Details: err.Error()})
		return false
	}
	return true
}

// CreateGame 创建对局
// @Summary 创建新对局
// @Description 按模式、配对规则和牌桌尺寸开一局翻牌对局
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body game.CreateGameRequest true "对局配置"
// @Success 200 {object} game.SessionInfo
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/games [post]
func (h *GameHandler) CreateGame(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req game.CreateGameRequest
	if !h.bindJSON(c, &req) {
		return
	}

	info, err := h.gameService.CreateGame(c.Request.Context(), userID, &req)
	if err != nil {
		h.logger.Error("创建对局失败",
			zap.Uint("user_id", userID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "CREATE_GAME_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// Flip 翻牌
// @Summary 翻开一张牌
// @Description 指定席位翻开指定位置的牌，返回翻牌结果和牌桌快照
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body flipBody true "翻牌参数"
// @Success 200 {object} game.FlipResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/games/{id}/flip [post]
func (h *GameHandler) Flip(c *gin.Context) {
	sessionID := c.Param("id")

	var req flipBody
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.gameService.Flip(c.Request.Context(), sessionID, req.Seat, *req.Position)
	if err != nil {
		h.respondGameError(c, "FLIP_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Hint 获取提示
// @Summary 获取配对提示
// @Description 返回当前牌桌上一组可配对的位置
// @Tags Game
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} game.HintResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/games/{id}/hint [get]
func (h *GameHandler) Hint(c *gin.Context) {
	sessionID := c.Param("id")

	hint, err := h.gameService.Hint(c.Request.Context(), sessionID)
	if err != nil {
		h.respondGameError(c, "HINT_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, hint)
}

// Pause 暂停对局
// @Summary 暂停对局
// @Tags Game
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/games/{id}/pause [post]
func (h *GameHandler) Pause(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.gameService.Pause(c.Request.Context(), sessionID); err != nil {
		h.respondGameError(c, "PAUSE_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "对局已暂停"})
}

// Resume 继续对局
// @Summary 继续对局
// @Tags Game
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/games/{id}/resume [post]
func (h *GameHandler) Resume(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.gameService.Resume(c.Request.Context(), sessionID); err != nil {
		h.respondGameError(c, "RESUME_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "对局已继续"})
}

// GetGame 获取对局状态
// @Summary 获取对局状态
// @Description 返回会话的牌桌快照、分数和可用操作
// @Tags Game
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} game.SessionInfo
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/games/{id} [get]
func (h *GameHandler) GetGame(c *gin.Context) {
	sessionID := c.Param("id")

	info, err := h.gameService.GetSessionInfo(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "SESSION_NOT_FOUND",
			Message: "对局会话不存在",
		})
		return
	}

	c.JSON(http.StatusOK, info)
}

// EndGame 结束对局
// @Summary 结束对局
// @Description 主动放弃并清理会话
// @Tags Game
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/games/{id} [delete]
func (h *GameHandler) EndGame(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.gameService.EndSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "END_GAME_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "对局已结束"})
}

// GetHistory 获取对局历史
// @Summary 获取当前用户的对局历史
// @Tags Game
// @Security Bearer
// @Produce json
// @Param limit query int false "返回条数" default(10)
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/games/history [get]
func (h *GameHandler) GetHistory(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 10
	}

	sessions, err := h.gameService.GetUserGameHistory(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "HISTORY_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "查询成功",
		Data:    sessions,
	})
}

// GetStats 获取对局统计
// @Summary 获取当前用户的对局统计
// @Tags Game
// @Security Bearer
// @Produce json
// @Success 200 {object} game.UserGameStats
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/games/stats [get]
func (h *GameHandler) GetStats(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	stats, err := h.gameService.GetUserStats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "STATS_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// respondGameError 按错误码映射HTTP状态
func (h *GameHandler) respondGameError(c *gin.Context, code string, err error) {
	status := http.StatusBadRequest

	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		status = appErr.HTTPStatus()
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

// flipBody 翻牌请求体
type flipBody struct {
	Seat     string `json:"seat" binding:"required,oneof=player_1 player_2"`
	Position *int   `json:"position" binding:"required,min=0"`
}
