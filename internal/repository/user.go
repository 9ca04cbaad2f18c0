package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"gorm.io/gorm"
)

// UserRepository 用户仓储接口
type UserRepository interface {
	BaseRepository

	// 增删改
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	UpdateLastLogin(ctx context.Context, userID uint) error
	UpdateStatus(ctx context.Context, userID uint, status string) error
	IncrementGameStats(ctx context.Context, userID uint, won bool) error

	// 查询
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	GetAll(ctx context.Context, pagination *Pagination) ([]*models.User, error)
}

type userRepo struct {
	*BaseRepo
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{BaseRepo: &BaseRepo{db: db}}
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepo) Update(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}

// Delete 软删除用户
func (r *userRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// findOne 按条件查找单个用户，未命中返回统一错误
func (r *userRepo) findOne(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("用户不存在")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *userRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

// GetAll 分页获取用户列表，填充pagination.Total
func (r *userRepo) GetAll(ctx context.Context, pagination *Pagination) ([]*models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	var users []*models.User
	err := query.Scopes(Paginate(pagination)).Order("created_at DESC").Find(&users).Error
	return users, err
}

// setColumns 按用户ID更新users表字段
func (r *userRepo) setColumns(ctx context.Context, userID uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

// UpdateLastLogin 更新最后登录时间
func (r *userRepo) UpdateLastLogin(ctx context.Context, userID uint) error {
	return r.setColumns(ctx, userID, map[string]interface{}{"last_login_at": time.Now()})
}

// UpdateStatus 更新用户状态
func (r *userRepo) UpdateStatus(ctx context.Context, userID uint, status string) error {
	return r.setColumns(ctx, userID, map[string]interface{}{"status": status})
}

// IncrementGameStats 累加对局统计，胜局同时累加games_won
func (r *userRepo) IncrementGameStats(ctx context.Context, userID uint, won bool) error {
	updates := map[string]interface{}{
		"games_played": gorm.Expr("games_played + 1"),
	}
	if won {
		updates["games_won"] = gorm.Expr("games_won + 1")
	}
	return r.setColumns(ctx, userID, updates)
}

func (r *userRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &userRepo{BaseRepo: &BaseRepo{db: tx}}
}

// UserAuthRepository 用户认证仓储接口
type UserAuthRepository interface {
	BaseRepository

	Create(ctx context.Context, auth *models.UserAuth) error
	Update(ctx context.Context, auth *models.UserAuth) error
	FindByUserID(ctx context.Context, userID uint) (*models.UserAuth, error)
	UpdatePassword(ctx context.Context, userID uint, hashedPassword string) error

	// 登录防爆破
	UpdateLoginAttempts(ctx context.Context, userID uint, attempts int) error
	ResetLoginAttempts(ctx context.Context, userID uint) error
	LockAccount(ctx context.Context, userID uint, until time.Time) error
}

type userAuthRepo struct {
	*BaseRepo
}

// NewUserAuthRepository 创建用户认证仓储
func NewUserAuthRepository(db *gorm.DB) UserAuthRepository {
	return &userAuthRepo{BaseRepo: &BaseRepo{db: db}}
}

func (r *userAuthRepo) Create(ctx context.Context, auth *models.UserAuth) error {
	return r.db.WithContext(ctx).Create(auth).Error
}

func (r *userAuthRepo) Update(ctx context.Context, auth *models.UserAuth) error {
	return r.db.WithContext(ctx).Save(auth).Error
}

func (r *userAuthRepo) FindByUserID(ctx context.Context, userID uint) (*models.UserAuth, error) {
	var auth models.UserAuth
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&auth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("认证信息不存在")
	}
	if err != nil {
		return nil, err
	}
	return &auth, nil
}

func (r *userAuthRepo) UpdatePassword(ctx context.Context, userID uint, hashedPassword string) error {
	return r.updateByUserID(ctx, userID, map[string]interface{}{"password": hashedPassword})
}

func (r *userAuthRepo) UpdateLoginAttempts(ctx context.Context, userID uint, attempts int) error {
	return r.updateByUserID(ctx, userID, map[string]interface{}{"login_attempts": attempts})
}

// ResetLoginAttempts 清零尝试次数并解锁
func (r *userAuthRepo) ResetLoginAttempts(ctx context.Context, userID uint) error {
	return r.updateByUserID(ctx, userID, map[string]interface{}{
		"login_attempts": 0,
		"locked_until":   nil,
	})
}

func (r *userAuthRepo) LockAccount(ctx context.Context, userID uint, until time.Time) error {
	return r.updateByUserID(ctx, userID, map[string]interface{}{"locked_until": until})
}

func (r *userAuthRepo) updateByUserID(ctx context.Context, userID uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.UserAuth{}).Where("user_id = ?", userID).Updates(updates).Error
}

func (r *userAuthRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &userAuthRepo{BaseRepo: &BaseRepo{db: tx}}
}

// UserSessionRepository 用户会话仓储接口
type UserSessionRepository interface {
	BaseRepository

	Create(ctx context.Context, session *models.UserSession) error
	FindByToken(ctx context.Context, token string) (*models.UserSession, error)
	FindByUserID(ctx context.Context, userID uint) ([]*models.UserSession, error)
	UpdateLastActive(ctx context.Context, token string) error

	// 按令牌、按用户、按过期时间三种删除口径
	Delete(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID uint) error
	CleanupExpired(ctx context.Context) error
}

type userSessionRepo struct {
	*BaseRepo
}

// NewUserSessionRepository 创建用户会话仓储
func NewUserSessionRepository(db *gorm.DB) UserSessionRepository {
	return &userSessionRepo{BaseRepo: &BaseRepo{db: db}}
}

func (r *userSessionRepo) Create(ctx context.Context, session *models.UserSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// FindByToken 按令牌查找未过期会话
func (r *userSessionRepo) FindByToken(ctx context.Context, token string) (*models.UserSession, error) {
	var session models.UserSession
	err := r.db.WithContext(ctx).
		Where("token = ? AND expire_at > ?", token, time.Now()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New("会话不存在或已过期")
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByUserID 查找用户的所有未过期会话，新会话在前
func (r *userSessionRepo) FindByUserID(ctx context.Context, userID uint) ([]*models.UserSession, error) {
	var sessions []*models.UserSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND expire_at > ?", userID, time.Now()).
		Order("id DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *userSessionRepo) UpdateLastActive(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("token = ?", token).
		Update("last_active_at", time.Now()).Error
}

// purge 按条件硬删除会话记录
func (r *userSessionRepo) purge(ctx context.Context, query string, args ...interface{}) error {
	return r.db.WithContext(ctx).Where(query, args...).Delete(&models.UserSession{}).Error
}

func (r *userSessionRepo) Delete(ctx context.Context, token string) error {
	return r.purge(ctx, "token = ?", token)
}

func (r *userSessionRepo) DeleteByUserID(ctx context.Context, userID uint) error {
	return r.purge(ctx, "user_id = ?", userID)
}

// CleanupExpired 清理过期会话
func (r *userSessionRepo) CleanupExpired(ctx context.Context) error {
	return r.purge(ctx, "expire_at < ?", time.Now())
}

func (r *userSessionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &userSessionRepo{BaseRepo: &BaseRepo{db: tx}}
}
