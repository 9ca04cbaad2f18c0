package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/memory-game/internal/config"
	apperrors "github.com/wfunc/memory-game/internal/errors"
	"github.com/wfunc/memory-game/internal/game/ai"
	"github.com/wfunc/memory-game/internal/game/memory"
	"go.uber.org/zap"
)

// Orchestrator 回合编排器。持有单个对局的牌局状态，
// 串联翻牌、配对判定、失配展示窗口、手番切换和AI行动，
// 并向订阅方广播对局事件。牌局状态本身是纯函数式的，
// 所有节奏控制（展示延迟、翻牌间隔、看门狗）都在这一层。
type Orchestrator struct {
	mu        sync.Mutex
	sessionID string
	board     *memory.GameState
	engines   map[string]*ai.Engine // AI席位 -> 决策引擎
	timing    config.TurnTimingConfig
	logger    *zap.Logger
	sm        *StateMachine // 可为nil（纯内存对局）

	decisionTimeout time.Duration // 单次AI决策的超时上限，0为不限制

	listenerMu sync.RWMutex
	listeners  []EventListener

	resolving bool          // 失配展示窗口内，拒绝新的翻牌
	resetDone chan struct{} // 展示窗口结束时关闭
	finished  bool          // game_finished 只广播一次
}

// FlipOutcome 一次翻牌的结果
type FlipOutcome struct {
	Board        *memory.GameState `json:"-"`
	Position     int               `json:"position"`
	PairResolved bool              `json:"pair_resolved"` // 本次翻牌是否为一对中的第二张
	Matched      bool              `json:"matched"`
	Finished     bool              `json:"finished"`
	NextPlayer   string            `json:"next_player"`
}

// NewOrchestrator 创建回合编排器。board 必须是 NewGame 的产物；
// engines 按席位ID注册AI决策引擎，纯人类对局传nil。
func NewOrchestrator(sessionID string, board *memory.GameState, engines map[string]*ai.Engine, timing config.TurnTimingConfig, sm *StateMachine, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		board:     board,
		engines:   engines,
		timing:    timing,
		logger:    logger,
		sm:        sm,
	}
}

// Subscribe 订阅对局事件
func (o *Orchestrator) Subscribe(listener EventListener) {
	o.listenerMu.Lock()
	defer o.listenerMu.Unlock()
	o.listeners = append(o.listeners, listener)
}

// emit 广播事件
func (o *Orchestrator) emit(eventType EventType, payload map[string]interface{}) {
	o.listenerMu.RLock()
	listeners := make([]EventListener, len(o.listeners))
	copy(listeners, o.listeners)
	o.listenerMu.RUnlock()

	event := newEvent(eventType, o.sessionID, payload)
	for _, l := range listeners {
		l(event)
	}
}

// Board 当前牌局状态快照
func (o *Orchestrator) Board() *memory.GameState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.board
}

// FlipCard 翻开位置 pos 的牌。seatID 必须是当前手番席位；
// 失配展示窗口内拒绝所有翻牌。翻开第二张时同步判定配对：
// 配对成功保持手番，失配则安排展示延迟后翻回并换手。
func (o *Orchestrator) FlipCard(ctx context.Context, seatID string, pos int) (*FlipOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.finished || o.board.IsFinished() {
		return nil, apperrors.New(apperrors.ErrGameFinished)
	}
	if o.board.Status == memory.StatusPaused {
		return nil, apperrors.New(apperrors.ErrGameStateError, "对局已暂停")
	}
	if o.resolving {
		return nil, apperrors.New(apperrors.ErrTurnInProgress)
	}
	if seatID != o.board.CurrentPlayer {
		return nil, apperrors.New(apperrors.ErrNotYourTurn)
	}

	prev := o.board
	next := prev.Flip(pos)
	if next == prev {
		// no-op 契约：非法翻牌不改变状态
		return nil, apperrors.Newf(apperrors.ErrInvalidFlip, "位置 %d 不可翻", pos)
	}
	o.board = next

	o.emit(EventCardFlipped, map[string]interface{}{
		"position": pos,
		"card":     next.Cards[pos],
		"player":   seatID,
	})

	outcome := &FlipOutcome{
		Board:      next,
		Position:   pos,
		NextPlayer: next.CurrentPlayer,
	}

	// 第二张牌：配对已在状态转换内判定
	if len(prev.Flipped) == 1 {
		outcome.PairResolved = true
		outcome.Matched = len(next.Flipped) == 0 && !next.PendingSwitch
		o.afterPairResolved(ctx, seatID, outcome)
	}

	return outcome, nil
}

// afterPairResolved 一对牌判定后的收尾：更新记忆、广播事件、
// 安排失配重置或结束对局。调用时必须持有 o.mu。
func (o *Orchestrator) afterPairResolved(ctx context.Context, seatID string, outcome *FlipOutcome) {
	board := o.board

	// 所有AI席位观察当前牌面（含刚翻开的两张）
	for _, engine := range o.engines {
		engine.Observe(board.Cards, board.MatchType)
	}

	if o.sm != nil {
		o.sm.RecordMove(outcome.Matched)
		o.snapshotLocked()
	}

	if outcome.Matched {
		o.emit(EventPairMatched, map[string]interface{}{
			"player": seatID,
			"scores": board.Scores(),
		})

		if board.IsFinished() {
			o.finishLocked(ctx)
			outcome.Finished = true
		}
		return
	}

	// 失配：两张牌保持翻开，展示延迟后翻回。
	// AI对AI模式换手延迟到重置时才生效，其他模式已在判定时换手。
	o.emit(EventPairMismatched, map[string]interface{}{
		"player":    seatID,
		"positions": board.Flipped,
	})
	o.scheduleResetLocked(seatID)
	outcome.NextPlayer = o.peekNextPlayer(seatID)
}

// peekNextPlayer 预判失配重置后的手番席位。调用时必须持有 o.mu。
func (o *Orchestrator) peekNextPlayer(seatID string) string {
	if o.board.PendingSwitch {
		for _, p := range o.board.Players {
			if p.ID != seatID {
				return p.ID
			}
		}
	}
	return o.board.CurrentPlayer
}

// scheduleResetLocked 安排失配展示窗口。窗口期间 resolving 为真，
// 所有翻牌请求被拒绝；窗口结束后翻回失配牌。
// 展示延迟为零时同步执行（测试路径）。调用时必须持有 o.mu。
func (o *Orchestrator) scheduleResetLocked(seatID string) {
	if o.timing.MismatchDelay <= 0 {
		o.resetMismatchLocked(seatID)
		return
	}

	o.resolving = true
	o.resetDone = make(chan struct{})
	done := o.resetDone

	time.AfterFunc(o.timing.MismatchDelay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.resetMismatchLocked(seatID)
		o.resolving = false
		close(done)
	})
}

// resetMismatchLocked 翻回失配牌，手番已不在失配方时广播换手。
// 调用时必须持有 o.mu。
func (o *Orchestrator) resetMismatchLocked(seatID string) {
	o.board = o.board.ResetMismatch()

	o.emit(EventBoardReset, map[string]interface{}{
		"player": o.board.CurrentPlayer,
	})
	if o.board.CurrentPlayer != seatID {
		o.emit(EventTurnChanged, map[string]interface{}{
			"player": o.board.CurrentPlayer,
		})
	}
}

// waitReset 等待失配展示窗口结束。窗口未打开时立即返回。
func (o *Orchestrator) waitReset(ctx context.Context) error {
	o.mu.Lock()
	done := o.resetDone
	resolving := o.resolving
	o.mu.Unlock()

	if !resolving || done == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// finishLocked 对局结束收尾，game_finished 只广播一次。
// 调用时必须持有 o.mu。
func (o *Orchestrator) finishLocked(ctx context.Context) {
	if o.finished {
		return
	}
	o.finished = true

	winners := o.board.Winner()
	winnerIDs := make([]string, 0, len(winners))
	for _, w := range winners {
		winnerIDs = append(winnerIDs, w.ID)
	}

	o.emit(EventGameFinished, map[string]interface{}{
		"winners": winnerIDs,
		"is_draw": len(winners) > 1,
		"scores":  o.board.Scores(),
		"moves":   len(o.board.Moves),
	})

	if o.sm != nil {
		if err := o.sm.Trigger(ctx, "finish"); err != nil {
			o.logger.Error("状态机结束事件失败",
				zap.String("session_id", o.sessionID),
				zap.Error(err))
		}
	}
}

// Pause 暂停对局
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.finished {
		return apperrors.New(apperrors.ErrGameFinished)
	}
	prev := o.board
	o.board = prev.Pause()
	if o.board == prev {
		return apperrors.New(apperrors.ErrGameStateError, "当前状态不能暂停")
	}

	if o.sm != nil {
		if err := o.sm.Trigger(ctx, "pause"); err != nil {
			return err
		}
		o.snapshotLocked()
	}
	o.emit(EventGamePaused, nil)
	return nil
}

// Resume 恢复对局
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	prev := o.board
	o.board = prev.Resume()
	if o.board == prev {
		return apperrors.New(apperrors.ErrGameStateError, "当前状态不能继续")
	}

	if o.sm != nil {
		if err := o.sm.Trigger(ctx, "resume"); err != nil {
			return err
		}
		o.snapshotLocked()
	}
	o.emit(EventGameResumed, nil)
	return nil
}

// Hint 在可用牌中找一对满足配对规则的位置
func (o *Orchestrator) Hint() (int, int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.board.FindHint()
}

// IsAITurn 当前手番是否为AI席位
func (o *Orchestrator) IsAITurn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engines[o.board.CurrentPlayer] != nil
}

// RunAITurn 执行一次AI回合：决策两个位置，按翻牌间隔依次翻开。
// 整个回合受看门狗超时保护。返回第二次翻牌的结果。
func (o *Orchestrator) RunAITurn(ctx context.Context) (*FlipOutcome, error) {
	o.mu.Lock()
	seatID := o.board.CurrentPlayer
	engine := o.engines[seatID]
	board := o.board
	o.mu.Unlock()

	if engine == nil {
		return nil, apperrors.Newf(apperrors.ErrAIInvalidSeat, "席位 %s 不是AI", seatID)
	}

	if o.timing.WatchdogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timing.WatchdogTimeout)
		defer cancel()
	}

	// 决策阶段单独限时，翻牌结算不受其影响
	decideCtx := ctx
	if o.decisionTimeout > 0 {
		var cancel context.CancelFunc
		decideCtx, cancel = context.WithTimeout(ctx, o.decisionTimeout)
		defer cancel()
	}

	start := time.Now()
	first, second, err := engine.Decide(decideCtx, board.Cards, board.MatchType, o.opponentMoves(board, seatID))
	if err != nil {
		if decideCtx.Err() != nil {
			return nil, apperrors.Wrap(decideCtx.Err(), apperrors.ErrAITimeout)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrAIDecision)
	}

	o.logger.Debug("AI回合决策",
		zap.String("session_id", o.sessionID),
		zap.String("seat", seatID),
		zap.Int("first", first),
		zap.Int("second", second),
		zap.Duration("think", time.Since(start)))

	if _, err := o.FlipCard(ctx, seatID, first); err != nil {
		return nil, err
	}

	if err := o.sleep(ctx, o.timing.FlipStagger); err != nil {
		return nil, err
	}

	return o.FlipCard(ctx, seatID, second)
}

// DriveAI 持续驱动AI回合，直到轮到人类、对局结束或 ctx 取消。
// 配对成功后等待继续间隔，失配后等待展示窗口结束再决策。
func (o *Orchestrator) DriveAI(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.waitReset(ctx); err != nil {
			return err
		}

		o.mu.Lock()
		done := o.finished || o.board.IsFinished()
		paused := o.board.Status == memory.StatusPaused
		aiTurn := o.engines[o.board.CurrentPlayer] != nil
		o.mu.Unlock()

		if done || paused || !aiTurn {
			return nil
		}

		outcome, err := o.RunAITurn(ctx)
		if err != nil {
			return err
		}
		if outcome.Finished {
			return nil
		}

		if outcome.Matched {
			if err := o.sleep(ctx, o.timing.MatchDelay); err != nil {
				return err
			}
		}
	}
}

// opponentMoves 取其他席位的翻牌记录，供AI对手跟踪使用
func (o *Orchestrator) opponentMoves(board *memory.GameState, seatID string) []memory.Move {
	moves := make([]memory.Move, 0, len(board.Moves))
	for _, m := range board.Moves {
		if m.PlayerID != seatID {
			moves = append(moves, m)
		}
	}
	return moves
}

// sleep 可取消的节奏等待
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// snapshotLocked 把牌局快照写入状态机，随下次持久化落盘。
// 调用时必须持有 o.mu。
func (o *Orchestrator) snapshotLocked() {
	data, err := json.Marshal(o.board)
	if err != nil {
		o.logger.Error("序列化牌局快照失败",
			zap.String("session_id", o.sessionID),
			zap.Error(err))
		return
	}
	o.sm.SetBoard(data)
}
