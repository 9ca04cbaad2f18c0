package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/memory-game/internal/service"
)

// PageResponse 分页响应
type PageResponse struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// UpdateStatusRequest 更新用户状态请求
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active frozen banned"`
}

// UpdateUserRequest 管理员更新用户请求
type UpdateUserRequest struct {
	Nickname *string `json:"nickname"`
	Email    *string `json:"email"`
	Avatar   *string `json:"avatar"`
}

// UserHandler 用户查询与管理处理器
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建用户处理器
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// pageParams 解析分页查询参数
func pageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// pathUserID 解析路径中的用户ID
func pathUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		abortJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "无效的用户ID")
		return 0, false
	}
	return uint(id), true
}

// GetUser 获取用户公开资料
// @Summary 获取用户资料
// @Description 按ID查询用户的公开资料与统计
// @Tags User
// @Security Bearer
// @Param id path int true "用户ID"
// @Success 200 {object} UserProfileResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		abortJSON(c, http.StatusNotFound, "USER_NOT_FOUND", "用户不存在")
		return
	}

	stats, _ := h.userService.GetUserStats(c.Request.Context(), userID)
	c.JSON(http.StatusOK, UserProfileResponse{User: user, Stats: stats})
}

// LookupUser 按用户名或邮箱查找用户
// @Summary 查找用户
// @Description 按用户名或邮箱精确查找
// @Tags User
// @Security Bearer
// @Param username query string false "用户名"
// @Param email query string false "邮箱"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/lookup [get]
func (h *UserHandler) LookupUser(c *gin.Context) {
	ctx := c.Request.Context()

	if username := c.Query("username"); username != "" {
		user, err := h.userService.GetUserByUsername(ctx, username)
		if err != nil {
			abortJSON(c, http.StatusNotFound, "USER_NOT_FOUND", "用户不存在")
			return
		}
		c.JSON(http.StatusOK, SuccessResponse{Data: user})
		return
	}

	if email := c.Query("email"); email != "" {
		user, err := h.userService.GetUserByEmail(ctx, email)
		if err != nil {
			abortJSON(c, http.StatusNotFound, "USER_NOT_FOUND", "用户不存在")
			return
		}
		c.JSON(http.StatusOK, SuccessResponse{Data: user})
		return
	}

	abortJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "缺少username或email参数")
}

// GetUserGames 获取用户对局历史（分页）
// @Summary 获取用户对局历史
// @Tags User
// @Security Bearer
// @Param id path int true "用户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} PageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id}/games [get]
func (h *UserHandler) GetUserGames(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	sessions, total, err := h.userService.GetUserGameHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, "HISTORY_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, PageResponse{
		Items:    sessions,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// ListUsers 获取用户列表（管理员）
// @Summary 用户列表
// @Description 分页列出全部用户，仅管理员可用
// @Tags Admin
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} PageResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/admin/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)

	users, total, err := h.userService.GetUserList(c.Request.Context(), page, pageSize)
	if err != nil {
		abortJSON(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, PageResponse{
		Items:    users,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// UpdateUser 更新用户资料（管理员）
// @Summary 更新用户
// @Description 管理员更新用户的基础资料
// @Tags Admin
// @Security Bearer
// @Param id path int true "用户ID"
// @Param request body UpdateUserRequest true "更新字段"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/admin/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Nickname != nil {
		updates["nickname"] = *req.Nickname
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Avatar != nil {
		updates["avatar"] = *req.Avatar
	}

	if err := h.userService.UpdateUser(c.Request.Context(), userID, updates); err != nil {
		abortJSON(c, http.StatusBadRequest, "UPDATE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "更新成功"})
}

// UpdateUserStatus 更新用户状态（管理员）
// @Summary 更新用户状态
// @Description 管理员封禁/冻结/恢复用户
// @Tags Admin
// @Security Bearer
// @Param id path int true "用户ID"
// @Param request body UpdateStatusRequest true "目标状态"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/status [put]
func (h *UserHandler) UpdateUserStatus(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误", err.Error())
		return
	}

	if err := h.userService.UpdateUserStatus(c.Request.Context(), userID, req.Status); err != nil {
		abortJSON(c, http.StatusBadRequest, "UPDATE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "状态已更新"})
}
