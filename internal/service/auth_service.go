package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
	"github.com/wfunc/memory-game/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 认证相关的哨兵错误，处理器据此区分HTTP状态码
var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrUserExists         = errors.New("用户已存在")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrUserBanned         = errors.New("用户已被封禁")

	ErrSessionNotFound = errors.New("会话不存在")
	ErrInvalidToken    = errors.New("无效的令牌")
	ErrTokenExpired    = errors.New("令牌已过期")
)

// 会话有效期，刷新令牌的生命周期受它约束
const sessionTTL = 30 * 24 * time.Hour

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// authService 认证服务实现
type authService struct {
	db          *gorm.DB
	userRepo    repository.UserRepository
	authRepo    repository.UserAuthRepository
	sessionRepo repository.UserSessionRepository
	jwtManager  *utils.JWTManager
	log         *zap.Logger
}

// NewAuthService 创建认证服务，仓储从数据库连接构建
func NewAuthService(db *gorm.DB, jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	return &authService{
		db:          db,
		userRepo:    repository.NewUserRepository(db),
		authRepo:    repository.NewUserAuthRepository(db),
		sessionRepo: repository.NewUserSessionRepository(db),
		jwtManager:  jwtManager,
		log:         log,
	}
}

// issueTokens 为用户签发访问令牌和刷新令牌
func (s *authService) issueTokens(user *models.User, sessionID string) (*AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Email, sessionID)
	if err != nil {
		return nil, fmt.Errorf("签发访问令牌失败: %w", err)
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("签发刷新令牌失败: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// newSession 生成一条新的用户会话记录
func newSession(userID uint, ip, device string) (*models.UserSession, error) {
	sessionID, err := utils.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("生成会话ID失败: %w", err)
	}
	return &models.UserSession{
		UserID:    userID,
		SessionID: sessionID,
		Token:     sessionID,
		IP:        ip,
		UserAgent: device,
		ExpireAt:  time.Now().Add(sessionTTL),
	}, nil
}

// Register 用户注册。用户、认证信息和首个会话在同一事务里创建。
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if err := s.validateRegisterRequest(req); err != nil {
		return nil, err
	}

	if existing, _ := s.userRepo.FindByUsername(ctx, req.Username); existing != nil {
		return nil, errors.New("用户名已存在")
	}
	if existing, _ := s.userRepo.FindByEmail(ctx, req.Email); existing != nil {
		return nil, errors.New("邮箱已被使用")
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Nickname: req.Nickname,
		Avatar:   req.Avatar,
		Status:   models.UserStatusActive,
	}
	if user.Nickname == "" {
		user.Nickname = req.Username
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	session, err := newSession(user.ID, req.IP, "")
	if err != nil {
		return nil, err
	}

	tx := s.db.Begin()
	defer func() {
		// panic时回滚，正常路径由下面的Commit收尾
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := s.userRepo.WithTx(tx).(repository.UserRepository).Create(ctx, user); err != nil {
		tx.Rollback()
		s.log.Error("创建用户失败", zap.Error(err))
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	auth := &models.UserAuth{UserID: user.ID, Password: hashedPassword}
	if err := s.authRepo.WithTx(tx).(repository.UserAuthRepository).Create(ctx, auth); err != nil {
		tx.Rollback()
		s.log.Error("创建认证信息失败", zap.Error(err))
		return nil, fmt.Errorf("创建认证信息失败: %w", err)
	}

	session.UserID = user.ID
	if err := s.sessionRepo.WithTx(tx).(repository.UserSessionRepository).Create(ctx, session); err != nil {
		tx.Rollback()
		s.log.Error("创建会话失败", zap.Error(err))
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}

	s.log.Info("用户注册成功",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username))

	return s.issueTokens(user, session.SessionID)
}

// Login 用户登录，账号支持用户名或邮箱
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	var (
		user *models.User
		err  error
	)
	if strings.Contains(req.Account, "@") {
		user, err = s.userRepo.FindByEmail(ctx, req.Account)
	} else {
		user, err = s.userRepo.FindByUsername(ctx, req.Account)
	}
	if err != nil || user == nil {
		s.log.Warn("登录失败：用户不存在", zap.String("account", req.Account))
		return nil, ErrInvalidCredentials
	}

	if user.Status == models.UserStatusBanned {
		return nil, ErrUserBanned
	}

	auth, err := s.authRepo.FindByUserID(ctx, user.ID)
	if err != nil {
		s.log.Error("获取认证信息失败", zap.Error(err), zap.Uint("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	valid, err := utils.VerifyPassword(req.Password, auth.Password)
	if err != nil || !valid {
		s.log.Warn("登录失败：密码错误", zap.Uint("user_id", user.ID))
		_ = s.authRepo.UpdateLoginAttempts(ctx, user.ID, auth.LoginAttempts+1)
		return nil, ErrInvalidCredentials
	}

	session, err := newSession(user.ID, req.IP, req.Device)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		s.log.Error("创建会话失败", zap.Error(err))
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	now := time.Now()
	user.LastLoginAt = &now
	user.LastLoginIP = req.IP
	_ = s.userRepo.Update(ctx, user)
	_ = s.authRepo.ResetLoginAttempts(ctx, user.ID)

	s.log.Info("用户登录成功",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username))

	return s.issueTokens(user, session.SessionID)
}

// Logout 用户登出，删除令牌绑定的会话
func (s *authService) Logout(ctx context.Context, userID uint, token string) error {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return ErrInvalidToken
	}

	if err := s.sessionRepo.Delete(ctx, claims.SessionID); err != nil {
		s.log.Error("删除会话失败", zap.Error(err), zap.String("session_id", claims.SessionID))
		return fmt.Errorf("删除会话失败: %w", err)
	}

	s.log.Info("用户登出成功", zap.Uint("user_id", userID))
	return nil
}

// activeSession 查找未过期的会话
func (s *authService) activeSession(ctx context.Context, sessionID string) (*models.UserSession, error) {
	session, err := s.sessionRepo.FindByToken(ctx, sessionID)
	if err != nil || session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.ExpireAt.After(time.Now()) {
		return nil, ErrTokenExpired
	}
	return session, nil
}

// RefreshToken 用刷新令牌换取新的访问令牌
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != utils.TokenTypeRefresh {
		return nil, errors.New("不是刷新令牌")
	}

	if _, err := s.activeSession(ctx, claims.SessionID); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	resp, err := s.issueTokens(user, claims.SessionID)
	if err != nil {
		return nil, err
	}
	// 刷新令牌保持不变
	resp.RefreshToken = refreshToken

	s.log.Info("令牌刷新成功", zap.Uint("user_id", user.ID))
	return resp, nil
}

// ValidateToken 验证令牌以及其绑定的会话
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	if _, err := s.activeSession(ctx, claims.SessionID); err != nil {
		return nil, err
	}

	return &TokenClaims{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Email:     claims.Email,
		SessionID: claims.SessionID,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

// ValidateSession 验证会话是否存在且未过期
func (s *authService) ValidateSession(ctx context.Context, sessionID string) (*models.UserSession, error) {
	return s.activeSession(ctx, sessionID)
}

// GetActiveSessions 获取用户的活跃会话
func (s *authService) GetActiveSessions(ctx context.Context, userID uint) ([]*models.UserSession, error) {
	return s.sessionRepo.FindByUserID(ctx, userID)
}

// RevokeSession 撤销单个会话
func (s *authService) RevokeSession(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Delete(ctx, sessionID)
}

// RevokeAllSessions 撤销用户的全部会话
func (s *authService) RevokeAllSessions(ctx context.Context, userID uint) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		s.log.Error("撤销全部会话失败", zap.Error(err), zap.Uint("user_id", userID))
		return fmt.Errorf("撤销会话失败: %w", err)
	}
	s.log.Info("已撤销用户全部会话", zap.Uint("user_id", userID))
	return nil
}

// CleanupExpiredSessions 清理过期的登录会话，由后台任务周期调用
func (s *authService) CleanupExpiredSessions(ctx context.Context) error {
	return s.sessionRepo.CleanupExpired(ctx)
}

func (s *authService) validateRegisterRequest(req *RegisterRequest) error {
	if len(req.Username) < 3 || len(req.Username) > 20 {
		return errors.New("用户名长度必须在3-20个字符之间")
	}
	if !usernamePattern.MatchString(req.Username) {
		return errors.New("用户名只能包含字母、数字和下划线")
	}
	if !emailPattern.MatchString(req.Email) {
		return errors.New("邮箱格式不正确")
	}
	if len(req.Password) < 6 {
		return errors.New("密码长度不能少于6个字符")
	}
	if req.ConfirmPassword != req.Password {
		return errors.New("两次输入的密码不一致")
	}
	return nil
}
