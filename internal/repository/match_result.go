package repository

import (
	"context"

	"github.com/wfunc/memory-game/internal/models"
	"gorm.io/gorm"
)

// MatchResultRepository 对局结果仓储接口
type MatchResultRepository interface {
	BaseRepository
	Create(ctx context.Context, result *models.MatchResult) error
	FindByRoundID(ctx context.Context, roundID string) (*models.MatchResult, error)
	FindBySessionID(ctx context.Context, sessionID uint) ([]*models.MatchResult, error)
	FindRecent(ctx context.Context, limit int) ([]*models.MatchResult, error)
}

// matchResultRepo 对局结果仓储实现
type matchResultRepo struct {
	*BaseRepo
}

// NewMatchResultRepository 创建对局结果仓储
func NewMatchResultRepository(db *gorm.DB) MatchResultRepository {
	return &matchResultRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入对局结果
func (r *matchResultRepo) Create(ctx context.Context, result *models.MatchResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// FindByRoundID 根据轮次ID查找
func (r *matchResultRepo) FindByRoundID(ctx context.Context, roundID string) (*models.MatchResult, error) {
	var result models.MatchResult
	err := r.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FindBySessionID 查找会话下全部结果
func (r *matchResultRepo) FindBySessionID(ctx context.Context, sessionID uint) ([]*models.MatchResult, error) {
	var results []*models.MatchResult
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("finished_at desc").
		Find(&results).Error
	return results, err
}

// FindRecent 最近完成的对局
func (r *matchResultRepo) FindRecent(ctx context.Context, limit int) ([]*models.MatchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	var results []*models.MatchResult
	err := r.db.WithContext(ctx).
		Order("finished_at desc").
		Limit(limit).
		Find(&results).Error
	return results, err
}

// WithTx 使用事务
func (r *matchResultRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &matchResultRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
