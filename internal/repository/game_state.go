package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameStateRepository 牌局快照仓储接口
type GameStateRepository interface {
	BaseRepository
	Save(ctx context.Context, state *models.GameState) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.GameState, error)
	FindStale(ctx context.Context, updatedBefore time.Time) ([]*models.GameState, error)
	Delete(ctx context.Context, sessionID string) error
}

// gameStateRepo 牌局快照仓储实现
type gameStateRepo struct {
	*BaseRepo
}

// NewGameStateRepository 创建牌局快照仓储
func NewGameStateRepository(db *gorm.DB) GameStateRepository {
	return &gameStateRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Save 保存快照，同一会话覆盖旧记录
func (r *gameStateRepo) Save(ctx context.Context, state *models.GameState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"current_state", "state_data", "updated_at"}),
		}).
		Create(state).Error
}

// FindBySessionID 根据会话ID查找快照
func (r *gameStateRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.GameState, error) {
	var state models.GameState
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// FindStale 查找长时间未更新的快照（恢复扫描用）
func (r *gameStateRepo) FindStale(ctx context.Context, updatedBefore time.Time) ([]*models.GameState, error) {
	var states []*models.GameState
	err := r.db.WithContext(ctx).
		Where("updated_at < ? AND current_state NOT IN ?", updatedBefore, []string{"finished"}).
		Find(&states).Error
	return states, err
}

// Delete 删除快照
func (r *gameStateRepo) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.GameState{}).Error
}

// WithTx 使用事务
func (r *gameStateRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &gameStateRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
