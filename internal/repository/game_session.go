package repository

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"gorm.io/gorm"
)

// GameSessionRepository 对局会话仓储接口
type GameSessionRepository interface {
	BaseRepository

	// 写入
	Create(ctx context.Context, session *models.GameSession) error
	Update(ctx context.Context, session *models.GameSession) error
	UpdateBySessionID(ctx context.Context, sessionID string, updates map[string]interface{}) error

	// 查询
	FindByID(ctx context.Context, id uint) (*models.GameSession, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.GameSession, error)
	FindByUserID(ctx context.Context, userID uint, p *Pagination) ([]*models.GameSession, error)
	FindActiveByUserID(ctx context.Context, userID uint) (*models.GameSession, error)

	// 统计与收尾
	GetStatistics(ctx context.Context, userID uint, startTime, endTime time.Time) (*GameStatistics, error)
	EndSession(ctx context.Context, sessionID string) error
	CleanupExpiredSessions(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// GameStatistics 对局统计
type GameStatistics struct {
	TotalGames   int64   `json:"total_games"`
	TotalWins    int64   `json:"total_wins"`
	TotalDraws   int64   `json:"total_draws"`
	TotalMoves   int64   `json:"total_moves"`
	WinRate      float64 `json:"win_rate"`
	AverageMoves float64 `json:"average_moves"`
	TotalMinutes int64   `json:"total_minutes"`
}

// activeStatuses 未收官的会话状态
var activeStatuses = []string{"playing", "paused"}

type gameSessionRepo struct {
	*BaseRepo
}

// NewGameSessionRepository 创建对局会话仓储
func NewGameSessionRepository(db *gorm.DB) GameSessionRepository {
	return &gameSessionRepo{BaseRepo: NewBaseRepo(db)}
}

func (r *gameSessionRepo) Create(ctx context.Context, session *models.GameSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *gameSessionRepo) Update(ctx context.Context, session *models.GameSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *gameSessionRepo) UpdateBySessionID(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.GameSession{}).
		Where("session_id = ?", sessionID).Updates(updates).Error
}

func (r *gameSessionRepo) FindByID(ctx context.Context, id uint) (*models.GameSession, error) {
	session := &models.GameSession{}
	if err := r.db.WithContext(ctx).First(session, id).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *gameSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.GameSession, error) {
	session := &models.GameSession{}
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(session).Error
	if err != nil {
		return nil, err
	}
	return session, nil
}

// FindByUserID 按创建时间倒序分页查询，并回填分页总数
func (r *gameSessionRepo) FindByUserID(ctx context.Context, userID uint, p *Pagination) ([]*models.GameSession, error) {
	err := r.db.WithContext(ctx).
		Model(&models.GameSession{}).
		Where("user_id = ?", userID).
		Count(&p.Total).Error
	if err != nil {
		return nil, err
	}

	var sessions []*models.GameSession
	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Scopes(Paginate(p)).Find(&sessions).Error
	return sessions, err
}

// FindActiveByUserID 查找用户最近一局未收官的对局，没有则返回 nil
func (r *gameSessionRepo) FindActiveByUserID(ctx context.Context, userID uint) (*models.GameSession, error) {
	session := &models.GameSession{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, activeStatuses).
		Order("created_at desc").
		First(session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetStatistics 汇总时间区间内的对局数据。胜负以 player_1（创建者席位）视角统计。
func (r *gameSessionRepo) GetStatistics(ctx context.Context, userID uint, startTime, endTime time.Time) (*GameStatistics, error) {
	var totals struct {
		Games   int64
		Moves   int64
		Seconds int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.GameSession{}).
		Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, startTime, endTime).
		Select("COUNT(*) as games, COALESCE(SUM(total_moves), 0) as moves, COALESCE(SUM(duration), 0) as seconds").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	stats := &GameStatistics{
		TotalGames:   totals.Games,
		TotalMoves:   totals.Moves,
		TotalMinutes: totals.Seconds / 60,
	}
	if totals.Games == 0 {
		return stats, nil
	}

	stats.TotalWins = r.countResults(ctx, startTime, endTime,
		"game_sessions.user_id = ? AND match_results.winner_seat = ?", userID, "player_1")
	stats.TotalDraws = r.countResults(ctx, startTime, endTime,
		"game_sessions.user_id = ? AND match_results.is_draw = ?", userID, true)

	stats.WinRate = float64(stats.TotalWins) / float64(totals.Games) * 100
	stats.AverageMoves = float64(totals.Moves) / float64(totals.Games)

	return stats, nil
}

// countResults 按条件统计对局结果条数
func (r *gameSessionRepo) countResults(ctx context.Context, startTime, endTime time.Time, query string, args ...interface{}) int64 {
	var count int64
	r.db.WithContext(ctx).
		Model(&models.MatchResult{}).
		Joins("JOIN game_sessions ON game_sessions.id = match_results.session_id").
		Where(query, args...).
		Where("match_results.created_at BETWEEN ? AND ?", startTime, endTime).
		Count(&count)
	return count
}

// EndSession 收官：写结束时间并按开局时间补算时长
func (r *gameSessionRepo) EndSession(ctx context.Context, sessionID string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":   "finished",
		"ended_at": &now,
	}

	if session, err := r.FindBySessionID(ctx, sessionID); err == nil {
		updates["duration"] = int(now.Sub(session.StartedAt).Seconds())
	}

	return r.UpdateBySessionID(ctx, sessionID, updates)
}

// CleanupExpiredSessions 把长时间未更新的未收官会话标记为放弃
func (r *gameSessionRepo) CleanupExpiredSessions(ctx context.Context, expiredBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.GameSession{}).
		Where("status IN ? AND updated_at < ?", activeStatuses, expiredBefore).
		Updates(map[string]interface{}{"status": "abandoned", "ended_at": &expiredBefore})
	return result.RowsAffected, result.Error
}

// WithTx 返回绑定到事务句柄的副本
func (r *gameSessionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &gameSessionRepo{BaseRepo: &BaseRepo{db: tx}}
}
