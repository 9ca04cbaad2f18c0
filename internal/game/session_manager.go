package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/game/ai"
	"github.com/wfunc/memory-game/internal/game/memory"
	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SessionManager 对局会话管理器
type SessionManager struct {
	mu              sync.RWMutex
	sessions        map[string]*Session
	logger          *zap.Logger
	persister       StatePersister
	matchResultRepo repository.MatchResultRepository
	moveRecordRepo  repository.MoveRecordRepository
	recoveryManager *RecoveryManager
	timing          config.TurnTimingConfig
	decisionTimeout time.Duration
	sessionTimeout  time.Duration
	maxSessions     int
}

// Session 对局会话：生命周期状态机 + 回合编排器
type Session struct {
	SessionID    string
	UserID       uint
	StateMachine *StateMachine
	Orchestrator *Orchestrator
	StartTime    time.Time
	LastActivity time.Time
	aiCtx        context.Context
	cancelAI     context.CancelFunc
	mu           sync.RWMutex
}

// ManagerConfig 会话管理器配置
type ManagerConfig struct {
	Logger          *zap.Logger
	DB              *gorm.DB
	Timing          config.TurnTimingConfig
	DecisionTimeout time.Duration // 单次AI决策的超时上限
	SessionTimeout  time.Duration
	MaxSessions     int
}

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg *ManagerConfig) *SessionManager {
	stateRepo := repository.NewGameStateRepository(cfg.DB)
	// 快照写库，读走内存缓存
	persister := NewCacheStatePersister(NewMemoryStatePersister(), NewDatabaseStatePersister(stateRepo))
	recoveryManager := NewRecoveryManager(cfg.Logger, persister, stateRepo, cfg.SessionTimeout)

	return &SessionManager{
		sessions:        make(map[string]*Session),
		logger:          cfg.Logger,
		persister:       persister,
		matchResultRepo: repository.NewMatchResultRepository(cfg.DB),
		moveRecordRepo:  repository.NewMoveRecordRepository(cfg.DB),
		recoveryManager: recoveryManager,
		timing:          cfg.Timing,
		decisionTimeout: cfg.DecisionTimeout,
		sessionTimeout:  cfg.SessionTimeout,
		maxSessions:     cfg.MaxSessions,
	}
}

// CreateSession 创建新会话并开局
func (sm *SessionManager) CreateSession(ctx context.Context, sessionID string, userID uint, gameCfg memory.Config) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch {
	case len(sm.sessions) >= sm.maxSessions:
		return nil, errors.New("会话数量已达上限")
	case sm.sessions[sessionID] != nil:
		return nil, fmt.Errorf("会话已存在: %s", sessionID)
	}

	// 发牌开局
	board, err := memory.NewGame(gameCfg)
	if err != nil {
		return nil, fmt.Errorf("开局失败: %w", err)
	}

	// 为AI席位创建决策引擎
	engines := make(map[string]*ai.Engine)
	for _, player := range board.Players {
		if player.Type == memory.PlayerAI {
			engines[player.ID] = ai.NewEngine(player.ID, player.Difficulty, sm.logger, nil)
		}
	}

	// 创建状态机并进入进行中
	stateMachine := NewStateMachine(sessionID, userID, sm.logger, sm.persister)
	stateMachine.SetMode(string(gameCfg.Mode))

	stateMachine.OnStateChange(func(from, to LifecycleState) {
		sm.logger.Info("对局状态变更",
			zap.String("session_id", sessionID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	})

	if err := stateMachine.Trigger(ctx, "start"); err != nil {
		return nil, fmt.Errorf("启动对局失败: %w", err)
	}

	orchestrator := NewOrchestrator(sessionID, board, engines, sm.timing, stateMachine, sm.logger)
	orchestrator.decisionTimeout = sm.decisionTimeout

	// AI驱动协程挂在会话自己的context上，会话移除时一并取消
	aiCtx, cancelAI := context.WithCancel(context.Background())

	now := time.Now()
	session := &Session{
		SessionID:    sessionID,
		UserID:       userID,
		StateMachine: stateMachine,
		Orchestrator: orchestrator,
		StartTime:    now,
		LastActivity: now,
		aiCtx:        aiCtx,
		cancelAI:     cancelAI,
	}
	sm.sessions[sessionID] = session

	sm.logger.Info("创建对局会话",
		zap.String("session_id", sessionID),
		zap.Uint("user_id", userID),
		zap.String("mode", string(gameCfg.Mode)),
		zap.String("board_size", string(gameCfg.BoardSize)),
		zap.String("match_type", string(gameCfg.MatchType)))

	return session, nil
}

// GetSession 获取会话并刷新其活动时间
func (sm *SessionManager) GetSession(sessionID string) (*Session, error) {
	sm.mu.RLock()
	session := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if session == nil {
		return nil, fmt.Errorf("会话不存在: %s", sessionID)
	}
	session.UpdateActivity()
	return session, nil
}

// RemoveSession 落快照后把会话移出内存
func (sm *SessionManager) RemoveSession(ctx context.Context, sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session := sm.sessions[sessionID]
	if session == nil {
		return fmt.Errorf("会话不存在: %s", sessionID)
	}
	sm.evict(ctx, session)

	matched, moves := session.StateMachine.GetProgress()
	sm.logger.Info("移除对局会话",
		zap.String("session_id", sessionID),
		zap.Int("matched_pairs", matched),
		zap.Int("total_moves", moves))
	return nil
}

// evict 保存快照并从内存表删除，调用方需持有写锁
func (sm *SessionManager) evict(ctx context.Context, session *Session) {
	session.CancelAI()
	if err := sm.persister.Save(ctx, session.SessionID, session.StateMachine.Snapshot()); err != nil {
		sm.logger.Error("保存会话状态失败",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}
	delete(sm.sessions, session.SessionID)
}

// CleanupInactiveSessions 把闲置超时的会话落快照后移出内存
func (sm *SessionManager) CleanupInactiveSessions(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for sessionID, session := range sm.sessions {
		idle := now.Sub(session.lastActivity())
		if idle <= sm.sessionTimeout {
			continue
		}
		sm.evict(ctx, session)
		sm.logger.Info("清理超时会话",
			zap.String("session_id", sessionID),
			zap.Duration("inactive", idle))
	}
}

// StartCleanupTask 周期清理闲置会话和过期快照
func (sm *SessionManager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sm.CleanupInactiveSessions(ctx)
				if err := sm.recoveryManager.CleanupExpiredSessions(ctx); err != nil {
					sm.logger.Error("清理过期快照失败", zap.Error(err))
				}
			case <-ctx.Done():
				sm.logger.Info("停止会话清理任务")
				return
			}
		}
	}()
}

// RecoveryManager 返回恢复管理器，供API层恢复中断的对局
func (sm *SessionManager) RecoveryManager() *RecoveryManager {
	return sm.recoveryManager
}

// DiscardSnapshot 删除会话快照。对局被明确结束或放弃后不应再可恢复。
func (sm *SessionManager) DiscardSnapshot(ctx context.Context, sessionID string) {
	if err := sm.persister.Delete(ctx, sessionID); err != nil {
		sm.logger.Warn("删除会话快照失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// GetActiveSessions 当前托管的会话数
func (sm *SessionManager) GetActiveSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// UpdateActivity 刷新活动时间
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActivity
}

// AIContext AI驱动协程使用的context，会话移除时被取消
func (s *Session) AIContext() context.Context {
	return s.aiCtx
}

// CancelAI 停掉该会话的AI驱动协程
func (s *Session) CancelAI() {
	if s.cancelAI != nil {
		s.cancelAI()
	}
}

// GetState 获取生命周期状态
func (s *Session) GetState() LifecycleState {
	return s.StateMachine.GetState()
}

// SaveMatchResult 对局结束后落盘比赛结果和翻牌记录
func (sm *SessionManager) SaveMatchResult(ctx context.Context, session *Session, dbSessionID uint) error {
	board := session.Orchestrator.Board()
	if !board.IsFinished() {
		return errors.New("对局尚未结束")
	}

	winners := board.Winner()
	isDraw := len(winners) > 1
	winnerSeat := ""
	if !isDraw && len(winners) == 1 {
		winnerSeat = winners[0].ID
	}

	result := &models.MatchResult{
		SessionID:    dbSessionID,
		RoundID:      fmt.Sprintf("%s-%d", session.SessionID, time.Now().Unix()),
		WinnerSeat:   winnerSeat,
		IsDraw:       isDraw,
		Player1Score: board.Players[0].Score,
		Player2Score: board.Players[1].Score,
		TotalPairs:   len(board.MatchedPairs),
		TotalMoves:   len(board.Moves),
		FinishedAt:   time.Now(),
	}

	if err := sm.matchResultRepo.Create(ctx, result); err != nil {
		return fmt.Errorf("保存比赛结果失败: %w", err)
	}

	// 批量落盘翻牌记录
	records := make([]*models.MoveRecord, 0, len(board.Moves))
	for i, move := range board.Moves {
		first, second := -1, -1
		if c := board.CardByID(move.CardIDs[0]); c != nil {
			first = c.Position
		}
		if c := board.CardByID(move.CardIDs[1]); c != nil {
			second = c.Position
		}
		records = append(records, &models.MoveRecord{
			SessionID: dbSessionID,
			MoveIndex: i,
			Seat:      move.PlayerID,
			FirstPos:  first,
			SecondPos: second,
			IsMatch:   move.IsMatch,
			PlayedAt:  move.PlayedAt,
		})
	}

	if len(records) > 0 {
		if err := sm.moveRecordRepo.BatchCreate(ctx, records); err != nil {
			return fmt.Errorf("保存翻牌记录失败: %w", err)
		}
	}

	return nil
}
