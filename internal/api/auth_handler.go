package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/memory-game/internal/service"
)

// ErrorResponse API错误应答，Details只在参数校验失败时携带细节
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 简单成功应答
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RefreshTokenRequest 刷新访问令牌的请求体
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdatePasswordRequest 修改密码的请求体，确认密码必须与新密码一致
type UpdatePasswordRequest struct {
	OldPassword     string `json:"old_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=NewPassword"`
}

// UserProfileResponse 用户资料与对局统计
type UserProfileResponse struct {
	User  interface{} `json:"user"`
	Stats interface{} `json:"stats,omitempty"`
}

// AuthHandler 账号注册、登录与登录会话管理
type AuthHandler struct {
	authService service.AuthService
	userService service.UserService
}

// NewAuthHandler 组装认证处理器
func NewAuthHandler(authService service.AuthService, userService service.UserService) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService}
}

// bindBody 解析请求体，失败时写400并返回false
func bindBody(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		abortJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return false
	}
	return true
}

// abortJSON 统一的错误应答
func abortJSON(c *gin.Context, status int, code, message string, details ...string) {
	resp := ErrorResponse{Code: code, Message: message}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	c.JSON(status, resp)
}

// currentUserID 从上下文取出已认证的用户ID
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("userID")
	if !exists {
		abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return 0, false
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "未登录")
		return 0, false
	}
	return id, true
}

// Register 注册新账号
// @Summary 注册新账号
// @Description 用用户名、邮箱和密码创建账号，成功后直接返回令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body service.RegisterRequest true "注册参数"
// @Success 200 {object} service.AuthResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !bindBody(c, &req) {
		return
	}
	req.IP = c.ClientIP()

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, "REGISTER_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Login 登录
// @Summary 登录
// @Description 账号字段同时接受用户名和邮箱
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body service.LoginRequest true "登录凭证"
// @Success 200 {object} service.AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindBody(c, &req) {
		return
	}
	req.IP = c.ClientIP()
	req.Device = c.GetHeader("User-Agent")

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		// 封禁账户区分于凭证错误
		if err == service.ErrUserBanned {
			abortJSON(c, http.StatusForbidden, "LOGIN_FAILED", err.Error())
			return
		}
		abortJSON(c, http.StatusUnauthorized, "LOGIN_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout 登出
// @Summary 登出
// @Description 删除令牌绑定的登录会话
// @Tags Auth
// @Security Bearer
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	token := extractToken(c)
	if token == "" {
		abortJSON(c, http.StatusUnauthorized, "NO_TOKEN", "缺少令牌")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), userID, token); err != nil {
		abortJSON(c, http.StatusInternalServerError, "LOGOUT_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "登出成功"})
}

// RefreshToken 刷新令牌
// @Summary 刷新访问令牌
// @Description 用刷新令牌换一对新令牌，旧登录会话同时续期
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "刷新令牌参数"
// @Success 200 {object} service.AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if !bindBody(c, &req) {
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortJSON(c, http.StatusUnauthorized, "REFRESH_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetProfile 当前用户资料
// @Summary 当前用户资料
// @Description 返回登录用户的资料以及对局统计
// @Tags Auth
// @Security Bearer
// @Produce json
// @Success 200 {object} UserProfileResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		abortJSON(c, http.StatusNotFound, "USER_NOT_FOUND", "用户不存在")
		return
	}

	// 统计失败不阻塞资料返回
	stats, _ := h.userService.GetUserStats(c.Request.Context(), userID)

	c.JSON(http.StatusOK, UserProfileResponse{User: user, Stats: stats})
}

// UpdateProfile 更新资料
// @Summary 更新昵称与头像
// @Tags Auth
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body service.UserProfile true "待更新的资料"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var profile service.UserProfile
	if !bindBody(c, &profile) {
		return
	}

	if err := h.userService.UpdateProfile(c.Request.Context(), userID, &profile); err != nil {
		abortJSON(c, http.StatusBadRequest, "UPDATE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "更新成功"})
}

// UpdatePassword 修改密码
// @Summary 修改登录密码
// @Description 校验旧密码后更新为新密码
// @Tags Auth
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body UpdatePasswordRequest true "新旧密码"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/password [put]
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UpdatePasswordRequest
	if !bindBody(c, &req) {
		return
	}

	if err := h.userService.UpdatePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		abortJSON(c, http.StatusBadRequest, "UPDATE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "密码修改成功"})
}

// GetSessions 获取活跃登录会话
// @Summary 获取活跃会话
// @Description 列出当前用户的所有未过期登录会话
// @Tags Auth
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/sessions [get]
func (h *AuthHandler) GetSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	sessions, err := h.authService.GetActiveSessions(c.Request.Context(), userID)
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, "SESSIONS_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Data: sessions})
}

// RevokeSession 撤销指定登录会话
// @Summary 撤销会话
// @Description 下线当前用户的某个登录会话
// @Tags Auth
// @Security Bearer
// @Param id path string true "会话ID"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/auth/sessions/{id} [delete]
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("id")
	session, err := h.authService.ValidateSession(c.Request.Context(), sessionID)
	if err != nil {
		abortJSON(c, http.StatusNotFound, "SESSION_NOT_FOUND", "会话不存在或已过期")
		return
	}
	// 只能撤销自己的会话
	if session.UserID != userID {
		abortJSON(c, http.StatusForbidden, "FORBIDDEN", "无权操作该会话")
		return
	}

	if err := h.authService.RevokeSession(c.Request.Context(), sessionID); err != nil {
		abortJSON(c, http.StatusInternalServerError, "REVOKE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "会话已撤销"})
}

// RevokeAllSessions 撤销全部登录会话
// @Summary 撤销全部会话
// @Description 下线当前用户的所有登录会话（包括当前会话）
// @Tags Auth
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/sessions [delete]
func (h *AuthHandler) RevokeAllSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.authService.RevokeAllSessions(c.Request.Context(), userID); err != nil {
		abortJSON(c, http.StatusInternalServerError, "REVOKE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "全部会话已撤销"})
}

// extractToken 优先读Authorization头的Bearer令牌，其次读token查询参数
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}
