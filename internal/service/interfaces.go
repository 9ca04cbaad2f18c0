package service

import (
	"context"
	"time"

	"github.com/wfunc/memory-game/internal/models"
)

// UserService 用户查询、资料维护与统计
type UserService interface {
	// 查询
	GetUserByID(ctx context.Context, userID uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserList(ctx context.Context, page, pageSize int) ([]*models.User, int64, error)

	// 资料与状态维护
	UpdateUser(ctx context.Context, userID uint, updates map[string]interface{}) error
	UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	UpdateProfile(ctx context.Context, userID uint, profile *UserProfile) error
	UpdateUserStatus(ctx context.Context, userID uint, status string) error

	// 对局统计
	GetUserStats(ctx context.Context, userID uint) (*UserStats, error)
	GetUserGameHistory(ctx context.Context, userID uint, page, pageSize int) ([]*models.GameSession, int64, error)
}

// AuthService 注册登录、令牌与登录会话
type AuthService interface {
	// 注册登录
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	Logout(ctx context.Context, userID uint, token string) error

	// 令牌
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)

	// 登录会话
	ValidateSession(ctx context.Context, sessionID string) (*models.UserSession, error)
	GetActiveSessions(ctx context.Context, userID uint) ([]*models.UserSession, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllSessions(ctx context.Context, userID uint) error
	CleanupExpiredSessions(ctx context.Context) error
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username        string `json:"username" binding:"required,min=3,max=20"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=Password"`
	Email           string `json:"email" binding:"required,email"`
	Nickname        string `json:"nickname"`
	Avatar          string `json:"avatar"`
	IP              string `json:"-"` // 客户端IP，由handler设置
}

// LoginRequest 登录请求，账号字段同时接受用户名和邮箱
type LoginRequest struct {
	Account  string `json:"account" binding:"required"`
	Password string `json:"password" binding:"required"`
	IP       string `json:"ip"`
	Device   string `json:"device"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	User         *models.User `json:"user"`
	TokenType    string       `json:"token_type"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

// TokenClaims 解析后的令牌声明
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// UserProfile 用户资料
type UserProfile struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// UserStats 用户统计
type UserStats struct {
	TotalGames   int64     `json:"total_games"`
	TotalWins    int64     `json:"total_wins"`
	TotalDraws   int64     `json:"total_draws"`
	WinRate      float64   `json:"win_rate"`
	AverageMoves float64   `json:"average_moves"`
	TotalMinutes int64     `json:"total_minutes"`
	LastLoginAt  time.Time `json:"last_login_at"`
}
