package service

import (
	"time"

	"github.com/wfunc/memory-game/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 令牌签发配置
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// DefaultConfig 开发与测试用的默认配置
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:          "memory-game-dev-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
}

// Services 服务集合
type Services struct {
	Auth AuthService
	User UserService
}

// NewServices 创建服务集合，各服务自行构建所需仓储
func NewServices(db *gorm.DB, config *Config, log *zap.Logger) *Services {
	jwtManager := utils.NewJWTManager(config.JWTSecret, config.AccessTokenExpiry, config.RefreshTokenExpiry)

	return &Services{
		Auth: NewAuthService(db, jwtManager, log),
		User: NewUserService(db, log),
	}
}
