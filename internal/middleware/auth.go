package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/memory-game/internal/service"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService service.AuthService
	userService service.UserService
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(authService service.AuthService, userService service.UserService) *AuthMiddleware {
	return &AuthMiddleware{authService: authService, userService: userService}
}

// RequireAuth 强制认证，无有效令牌时中断请求
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "NO_TOKEN",
				"message": "缺少认证令牌",
			})
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_TOKEN",
				"message": "无效的令牌",
				"details": err.Error(),
			})
			return
		}

		setClaims(c, claims, token)
		c.Next()
	}
}

// RequireAdmin 仅放行管理员，必须挂在 RequireAuth 之后
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "NO_TOKEN",
				"message": "缺少认证令牌",
			})
			return
		}

		user, err := m.userService.GetUserByID(c.Request.Context(), userID)
		if err != nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "FORBIDDEN",
				"message": "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// OptionalAuth 可选认证，令牌无效时按未登录继续
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := m.extractToken(c); token != "" {
			if claims, err := m.authService.ValidateToken(c.Request.Context(), token); err == nil {
				setClaims(c, claims, token)
			}
		}
		c.Next()
	}
}

// setClaims 将认证信息写入请求上下文
func setClaims(c *gin.Context, claims *service.TokenClaims, token string) {
	c.Set("userID", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("email", claims.Email)
	c.Set("sessionID", claims.SessionID)
	c.Set("token", token)
}

// extractToken 依次尝试 Bearer Header、X-Access-Token、Cookie、Query。
// Query参数用于WebSocket握手场景。
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	if bearerToken := c.GetHeader("Authorization"); bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}

	return c.Query("token")
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetUsername 从上下文获取用户名
func GetUsername(c *gin.Context) (string, bool) {
	v, exists := c.Get("username")
	if !exists {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}

// GetSessionID 从上下文获取登录会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	v, exists := c.Get("sessionID")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// IsAuthenticated 上下文里有用户ID即视为已登录
func IsAuthenticated(c *gin.Context) bool {
	_, ok := c.Get("userID")
	return ok
}
