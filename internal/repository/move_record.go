package repository

import (
	"context"

	"github.com/wfunc/memory-game/internal/models"
	"gorm.io/gorm"
)

// MoveRecordRepository 翻牌记录仓储接口
type MoveRecordRepository interface {
	BaseRepository
	Create(ctx context.Context, move *models.MoveRecord) error
	BatchCreate(ctx context.Context, moves []*models.MoveRecord) error
	FindBySessionID(ctx context.Context, sessionID uint) ([]*models.MoveRecord, error)
	CountBySessionID(ctx context.Context, sessionID uint) (int64, error)
	DeleteBySessionID(ctx context.Context, sessionID uint) error
}

// moveRecordRepo 翻牌记录仓储实现
type moveRecordRepo struct {
	*BaseRepo
}

// NewMoveRecordRepository 创建翻牌记录仓储
func NewMoveRecordRepository(db *gorm.DB) MoveRecordRepository {
	return &moveRecordRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 写入单条翻牌记录
func (r *moveRecordRepo) Create(ctx context.Context, move *models.MoveRecord) error {
	return r.db.WithContext(ctx).Create(move).Error
}

// BatchCreate 批量写入翻牌记录（对局结束时落盘）
func (r *moveRecordRepo) BatchCreate(ctx context.Context, moves []*models.MoveRecord) error {
	if len(moves) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(moves, 100).Error
}

// FindBySessionID 按落子顺序获取会话的翻牌记录
func (r *moveRecordRepo) FindBySessionID(ctx context.Context, sessionID uint) ([]*models.MoveRecord, error) {
	var moves []*models.MoveRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("move_index asc").
		Find(&moves).Error
	return moves, err
}

// CountBySessionID 统计会话的翻牌次数
func (r *moveRecordRepo) CountBySessionID(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MoveRecord{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// DeleteBySessionID 删除会话的翻牌记录
func (r *moveRecordRepo) DeleteBySessionID(ctx context.Context, sessionID uint) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.MoveRecord{}).Error
}

// WithTx 使用事务
func (r *moveRecordRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &moveRecordRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
