package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/game/memory"
	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GameService 对局服务（业务逻辑层）
type GameService struct {
	sessionManager  *SessionManager
	userRepo        repository.UserRepository
	gameSessionRepo repository.GameSessionRepository
	logger          *zap.Logger
	db              *gorm.DB
	sessionTimeout  time.Duration
	cleanupInterval time.Duration
	memoryCfg       config.MemoryGameConfig
	aiCfg           config.AIConfig
}

// GameServiceConfig 对局服务配置
type GameServiceConfig struct {
	DB              *gorm.DB
	Logger          *zap.Logger
	Timing          config.TurnTimingConfig
	Memory          config.MemoryGameConfig
	AI              config.AIConfig
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
	MaxSessions     int
}

// NewGameService 创建对局服务
func NewGameService(cfg *GameServiceConfig) *GameService {
	managerConfig := &ManagerConfig{
		Logger:          cfg.Logger,
		DB:              cfg.DB,
		Timing:          cfg.Timing,
		SessionTimeout:  cfg.SessionTimeout,
		MaxSessions:     cfg.MaxSessions,
		DecisionTimeout: cfg.AI.DecisionTimeout,
	}

	return &GameService{
		sessionManager:  NewSessionManager(managerConfig),
		userRepo:        repository.NewUserRepository(cfg.DB),
		gameSessionRepo: repository.NewGameSessionRepository(cfg.DB),
		logger:          cfg.Logger,
		db:              cfg.DB,
		sessionTimeout:  cfg.SessionTimeout,
		cleanupInterval: cfg.CleanupInterval,
		memoryCfg:       cfg.Memory,
		aiCfg:           cfg.AI,
	}
}

// SessionManager 返回会话管理器，供推送层订阅对局事件
func (s *GameService) SessionManager() *SessionManager {
	return s.sessionManager
}

// CreateGame 开一局新对局
func (s *GameService) CreateGame(ctx context.Context, userID uint, req *CreateGameRequest) (*SessionInfo, error) {
	// 验证用户
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("用户不存在: %w", err)
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("用户账户已被禁用")
	}

	if req.BoardSize == "" {
		req.BoardSize = s.memoryCfg.DefaultBoardSize
	}
	if req.MatchType == "" {
		req.MatchType = s.memoryCfg.DefaultMatchType
	}
	if mode := memory.Mode(req.Mode); mode == memory.ModeAI || mode == memory.ModeAIVersusAI {
		if req.Difficulty == "" {
			req.Difficulty = s.aiCfg.DefaultDifficulty
		}
		if mode == memory.ModeAIVersusAI && req.Difficulty2 == "" {
			req.Difficulty2 = s.aiCfg.DefaultDifficulty
		}
	}
	if !allowedOption(s.memoryCfg.BoardSizes, req.BoardSize) {
		return nil, fmt.Errorf("不支持的牌面规格: %s", req.BoardSize)
	}
	if !allowedOption(s.memoryCfg.MatchTypes, req.MatchType) {
		return nil, fmt.Errorf("不支持的配对规则: %s", req.MatchType)
	}

	// 开新局前放弃用户手上未下完的对局
	if prev, err := s.gameSessionRepo.FindActiveByUserID(ctx, userID); err == nil && prev != nil {
		s.abandonSession(ctx, prev.SessionID)
	}

	sessionID := uuid.New().String()

	gameCfg := memory.Config{
		Mode:        memory.Mode(req.Mode),
		MatchType:   memory.MatchType(req.MatchType),
		BoardSize:   memory.BoardSize(req.BoardSize),
		Player1Name: req.Player1Name,
		Player2Name: req.Player2Name,
		Difficulty:  memory.Difficulty(req.Difficulty),
		Difficulty2: memory.Difficulty(req.Difficulty2),
	}

	// 创建内存会话
	session, err := s.sessionManager.CreateSession(ctx, sessionID, userID, gameCfg)
	if err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	// 落盘会话记录
	dbSession := &models.GameSession{
		UserID:     userID,
		SessionID:  sessionID,
		Mode:       req.Mode,
		MatchType:  req.MatchType,
		BoardSize:  req.BoardSize,
		Difficulty: req.Difficulty,
		Status:     "playing",
		StartedAt:  time.Now(),
	}
	if err := s.gameSessionRepo.Create(ctx, dbSession); err != nil {
		_ = s.sessionManager.RemoveSession(ctx, sessionID)
		return nil, fmt.Errorf("保存会话记录失败: %w", err)
	}

	// 对局结束时落盘结果并更新用户统计
	session.Orchestrator.Subscribe(func(event Event) {
		if event.Type != EventGameFinished {
			return
		}
		go s.finalizeGame(session, dbSession.ID)
	})

	s.logger.Info("对局创建",
		zap.Uint("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("mode", req.Mode))

	// AI对AI模式：开局即自动驱动
	if gameCfg.Mode == memory.ModeAIVersusAI {
		go s.driveAI(session)
	}

	return s.buildSessionInfo(session), nil
}

// allowedOption 检查取值是否在配置白名单内，白名单为空时不限制
func allowedOption(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}

// Flip 翻开一张牌。人机模式下失配换手后自动驱动AI回合。
func (s *GameService) Flip(ctx context.Context, sessionID, seat string, position int) (*FlipResponse, error) {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("会话不存在: %w", err)
	}

	outcome, err := session.Orchestrator.FlipCard(ctx, seat, position)
	if err != nil {
		return nil, err
	}

	board := outcome.Board
	resp := &FlipResponse{
		SessionID:    sessionID,
		Position:     outcome.Position,
		Card:         board.Cards[outcome.Position],
		PairResolved: outcome.PairResolved,
		Matched:      outcome.Matched,
		Finished:     outcome.Finished,
		NextPlayer:   outcome.NextPlayer,
		Scores:       board.Scores(),
	}
	if outcome.Finished {
		resp.Winners = board.Winner()
	}

	// 人类回合结束且轮到AI：后台驱动AI行动
	if outcome.PairResolved && !outcome.Finished {
		if engineSeat := outcome.NextPlayer; engineSeat != seat && session.Orchestrator.engines[engineSeat] != nil {
			go s.driveAI(session)
		}
	}

	return resp, nil
}

// driveAI 后台驱动AI回合直到轮到人类、对局结束或会话被移除
func (s *GameService) driveAI(session *Session) {
	if err := session.Orchestrator.DriveAI(session.AIContext()); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("AI驱动失败",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}
}

// finalizeGame 对局结束收尾：落盘结果、关闭会话记录、更新用户统计
func (s *GameService) finalizeGame(session *Session, dbSessionID uint) {
	ctx := context.Background()
	board := session.Orchestrator.Board()

	if err := s.sessionManager.SaveMatchResult(ctx, session, dbSessionID); err != nil {
		s.logger.Error("保存对局结果失败",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}

	if err := s.gameSessionRepo.UpdateBySessionID(ctx, session.SessionID, map[string]interface{}{
		"total_moves": len(board.Moves),
	}); err != nil {
		s.logger.Error("更新对局记录失败",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}
	if err := s.gameSessionRepo.EndSession(ctx, session.SessionID); err != nil {
		s.logger.Error("关闭对局记录失败",
			zap.String("session_id", session.SessionID),
			zap.Error(err))
	}

	// 人类参与的对局更新用户统计；第一席位是创建者
	if board.Players[0].Type == memory.PlayerHuman {
		winners := board.Winner()
		won := len(winners) == 1 && winners[0].ID == memory.SeatOne
		if err := s.userRepo.IncrementGameStats(ctx, session.UserID, won); err != nil {
			s.logger.Error("更新用户统计失败",
				zap.Uint("user_id", session.UserID),
				zap.Error(err))
		}
	}

	s.logger.Info("对局收尾完成",
		zap.String("session_id", session.SessionID),
		zap.Any("scores", board.Scores()))
}

// abandonSession 标记对局记录为放弃，并移除可能还在内存中的会话
func (s *GameService) abandonSession(ctx context.Context, sessionID string) {
	if err := s.gameSessionRepo.UpdateBySessionID(ctx, sessionID, map[string]interface{}{
		"status": "abandoned",
	}); err != nil {
		s.logger.Error("标记放弃失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	_ = s.sessionManager.RemoveSession(ctx, sessionID)
	s.sessionManager.DiscardSnapshot(ctx, sessionID)
	s.logger.Info("放弃未完成对局", zap.String("session_id", sessionID))
}

// Hint 在可用牌中找一对满足配对规则的位置
func (s *GameService) Hint(ctx context.Context, sessionID string) (*HintResponse, error) {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("会话不存在: %w", err)
	}

	first, second, found := session.Orchestrator.Hint()
	return &HintResponse{First: first, Second: second, Found: found}, nil
}

// Pause 暂停对局
func (s *GameService) Pause(ctx context.Context, sessionID string) error {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("会话不存在: %w", err)
	}

	if err := session.Orchestrator.Pause(ctx); err != nil {
		return err
	}

	return s.gameSessionRepo.UpdateBySessionID(ctx, sessionID, map[string]interface{}{
		"status": "paused",
	})
}

// Resume 恢复对局
func (s *GameService) Resume(ctx context.Context, sessionID string) error {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("会话不存在: %w", err)
	}

	if err := session.Orchestrator.Resume(ctx); err != nil {
		return err
	}

	if err := s.gameSessionRepo.UpdateBySessionID(ctx, sessionID, map[string]interface{}{
		"status": "playing",
	}); err != nil {
		return err
	}

	// 恢复后若轮到AI，继续驱动
	if session.Orchestrator.IsAITurn() {
		go s.driveAI(session)
	}
	return nil
}

// GetSessionInfo 获取会话信息。内存中不存在时回退读落库快照，
// 让客户端在服务重启后仍能查到中断对局的状态。
func (s *GameService) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	session, err := s.sessionManager.GetSession(sessionID)
	if err == nil {
		return s.buildSessionInfo(session), nil
	}

	data, snapErr := s.sessionManager.RecoveryManager().Snapshot(ctx, sessionID)
	if snapErr != nil {
		return nil, fmt.Errorf("会话不存在: %w", err)
	}

	return &SessionInfo{
		SessionID:  data.SessionID,
		UserID:     data.UserID,
		State:      data.CurrentState,
		Mode:       data.Mode,
		StartTime:  data.StartTime,
		TotalMoves: data.TotalMoves,
	}, nil
}

// buildSessionInfo 组装会话信息
func (s *GameService) buildSessionInfo(session *Session) *SessionInfo {
	board := session.Orchestrator.Board()
	_, moves := session.StateMachine.GetProgress()

	return &SessionInfo{
		SessionID:   session.SessionID,
		UserID:      session.UserID,
		State:       session.StateMachine.GetState(),
		Mode:        session.StateMachine.GetMode(),
		StartTime:   session.StartTime,
		Duration:    time.Since(session.StartTime).Seconds(),
		TotalMoves:  moves,
		Scores:      board.Scores(),
		Board:       NewBoardView(board),
		ValidEvents: session.StateMachine.GetValidEvents(),
	}
}

// EndSession 结束会话。未下完的对局标记为放弃。
func (s *GameService) EndSession(ctx context.Context, sessionID string) error {
	session, err := s.sessionManager.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("会话不存在: %w", err)
	}

	board := session.Orchestrator.Board()
	if !board.IsFinished() {
		if err := s.gameSessionRepo.UpdateBySessionID(ctx, sessionID, map[string]interface{}{
			"status":      "abandoned",
			"total_moves": len(board.Moves),
		}); err != nil {
			s.logger.Error("标记放弃失败",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	if err := s.sessionManager.RemoveSession(ctx, sessionID); err != nil {
		return fmt.Errorf("移除会话失败: %w", err)
	}
	s.sessionManager.DiscardSnapshot(ctx, sessionID)

	return nil
}

// GetUserGameHistory 获取用户对局历史
func (s *GameService) GetUserGameHistory(ctx context.Context, userID uint, limit int) ([]*models.GameSession, error) {
	pagination := &repository.Pagination{
		Page:     1,
		PageSize: limit,
	}
	return s.gameSessionRepo.FindByUserID(ctx, userID, pagination)
}

// GetUserStats 获取用户统计
func (s *GameService) GetUserStats(ctx context.Context, userID uint) (*UserGameStats, error) {
	stats, err := s.gameSessionRepo.GetStatistics(ctx, userID, time.Time{}, time.Now())
	if err != nil {
		return nil, err
	}

	return &UserGameStats{
		UserID:       userID,
		TotalGames:   stats.TotalGames,
		TotalWins:    stats.TotalWins,
		TotalDraws:   stats.TotalDraws,
		WinRate:      stats.WinRate,
		AverageMoves: stats.AverageMoves,
		TotalMinutes: stats.TotalMinutes,
	}, nil
}

// Start 启动对局服务
func (s *GameService) Start(ctx context.Context) {
	// 启动会话清理任务
	interval := s.cleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.sessionManager.StartCleanupTask(ctx, interval)

	// 定期把落库后长期无更新的对局记录标记为放弃
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expiredBefore := time.Now().Add(-s.sessionTimeout)
				count, err := s.gameSessionRepo.CleanupExpiredSessions(ctx, expiredBefore)
				if err != nil {
					s.logger.Error("清理过期对局记录失败", zap.Error(err))
					continue
				}
				if count > 0 {
					s.logger.Info("清理过期对局记录", zap.Int64("count", count))
				}
			}
		}
	}()

	s.logger.Info("对局服务已启动")
}

// Stop 停止对局服务：停掉AI驱动协程并保存所有活跃会话
func (s *GameService) Stop(ctx context.Context) {
	s.sessionManager.mu.Lock()
	defer s.sessionManager.mu.Unlock()

	for sessionID, session := range s.sessionManager.sessions {
		session.CancelAI()
		if err := s.sessionManager.persister.Save(ctx, sessionID, session.StateMachine.Snapshot()); err != nil {
			s.logger.Error("保存会话失败",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	s.logger.Info("对局服务已停止")
}
