package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
	"github.com/wfunc/memory-game/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// userService 用户服务实现
type userService struct {
	db  *gorm.DB
	log *zap.Logger

	userRepo    repository.UserRepository
	authRepo    repository.UserAuthRepository
	sessionRepo repository.GameSessionRepository
}

// NewUserService 创建用户服务，仓储从数据库连接构建
func NewUserService(db *gorm.DB, log *zap.Logger) UserService {
	return &userService{
		db:          db,
		userRepo:    repository.NewUserRepository(db),
		authRepo:    repository.NewUserAuthRepository(db),
		sessionRepo: repository.NewGameSessionRepository(db),
		log:         log,
	}
}

func (s *userService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	return user, nil
}

func (s *userService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	return user, nil
}

func (s *userService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}
	return user, nil
}

// UpdateUser 更新用户信息，只接受白名单里的字段
func (s *userService) UpdateUser(ctx context.Context, userID uint, updates map[string]interface{}) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取用户失败: %w", err)
	}

	for field, target := range map[string]*string{
		"nickname": &user.Nickname,
		"email":    &user.Email,
		"avatar":   &user.Avatar,
		"status":   &user.Status,
	} {
		if value, ok := updates[field].(string); ok {
			*target = value
		}
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Error("更新用户失败", zap.Error(err), zap.Uint("user_id", userID))
		return fmt.Errorf("更新用户失败: %w", err)
	}

	s.log.Info("用户信息已更新", zap.Uint("user_id", userID), zap.Any("updates", updates))
	return nil
}

// UpdatePassword 校验旧密码后更新为新密码
func (s *userService) UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	auth, err := s.authRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取认证信息失败: %w", err)
	}

	valid, err := utils.VerifyPassword(oldPassword, auth.Password)
	if err != nil || !valid {
		return errors.New("旧密码不正确")
	}
	if len(newPassword) < 6 {
		return errors.New("新密码长度至少6个字符")
	}

	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("密码加密失败: %w", err)
	}

	if err := s.authRepo.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		s.log.Error("更新密码失败", zap.Error(err), zap.Uint("user_id", userID))
		return fmt.Errorf("更新密码失败: %w", err)
	}

	s.log.Info("密码已更新", zap.Uint("user_id", userID))
	return nil
}

// UpdateProfile 更新昵称和头像，两者都为空视为无效请求
func (s *userService) UpdateProfile(ctx context.Context, userID uint, profile *UserProfile) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取用户失败: %w", err)
	}

	var changed bool
	if profile.Nickname != "" {
		user.Nickname, changed = profile.Nickname, true
	}
	if profile.Avatar != "" {
		user.Avatar, changed = profile.Avatar, true
	}
	if !changed {
		return errors.New("没有需要更新的内容")
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Error("更新资料失败", zap.Error(err), zap.Uint("user_id", userID))
		return fmt.Errorf("更新资料失败: %w", err)
	}

	s.log.Info("用户资料已更新", zap.Uint("user_id", userID))
	return nil
}

// GetUserList 分页获取用户列表
func (s *userService) GetUserList(ctx context.Context, page, pageSize int) ([]*models.User, int64, error) {
	pagination := repository.NewPagination(page, pageSize)
	users, err := s.userRepo.GetAll(ctx, pagination)
	if err != nil {
		return nil, 0, fmt.Errorf("获取用户列表失败: %w", err)
	}
	return users, pagination.Total, nil
}

// UpdateUserStatus 更新用户状态
func (s *userService) UpdateUserStatus(ctx context.Context, userID uint, status string) error {
	switch status {
	case models.UserStatusActive, models.UserStatusFrozen, models.UserStatusBanned:
	default:
		return errors.New("无效的状态")
	}

	if err := s.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		s.log.Error("更新用户状态失败",
			zap.Error(err),
			zap.Uint("user_id", userID),
			zap.String("status", status))
		return fmt.Errorf("更新状态失败: %w", err)
	}

	s.log.Info("用户状态已更新", zap.Uint("user_id", userID), zap.String("status", status))
	return nil
}

// GetUserStats 汇总用户的全部历史对局统计
func (s *userService) GetUserStats(ctx context.Context, userID uint) (*UserStats, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户失败: %w", err)
	}

	statistics, err := s.sessionRepo.GetStatistics(ctx, userID, time.Time{}, time.Now())
	if err != nil {
		s.log.Warn("获取对局统计失败", zap.Error(err), zap.Uint("user_id", userID))
		statistics = &repository.GameStatistics{}
	}

	stats := &UserStats{
		TotalGames:   statistics.TotalGames,
		TotalWins:    statistics.TotalWins,
		TotalDraws:   statistics.TotalDraws,
		WinRate:      statistics.WinRate,
		AverageMoves: statistics.AverageMoves,
		TotalMinutes: statistics.TotalMinutes,
	}
	if user.LastLoginAt != nil {
		stats.LastLoginAt = *user.LastLoginAt
	}
	return stats, nil
}

// GetUserGameHistory 分页获取用户的对局历史
func (s *userService) GetUserGameHistory(ctx context.Context, userID uint, page, pageSize int) ([]*models.GameSession, int64, error) {
	pagination := &repository.Pagination{Page: page, PageSize: pageSize}

	sessions, err := s.sessionRepo.FindByUserID(ctx, userID, pagination)
	if err != nil {
		s.log.Error("获取对局历史失败", zap.Error(err), zap.Uint("user_id", userID))
		return nil, 0, fmt.Errorf("获取对局历史失败: %w", err)
	}
	return sessions, pagination.Total, nil
}
