package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LifecycleState 对局生命周期状态枚举
type LifecycleState string

const (
	StateSetup    LifecycleState = "setup"    // 建局中（发牌）
	StatePlaying  LifecycleState = "playing"  // 对局进行中
	StatePaused   LifecycleState = "paused"   // 暂停
	StateFinished LifecycleState = "finished" // 对局结束
	StateError    LifecycleState = "error"    // 错误状态
)

// lifecycleRule 一条合法的状态迁移
type lifecycleRule struct {
	from  LifecycleState
	event string
	to    LifecycleState
}

// lifecycleRules 完整的迁移表。任何非错误状态都可经 error 事件进入错误态。
var lifecycleRules = []lifecycleRule{
	{StateSetup, "start", StatePlaying},
	{StatePlaying, "pause", StatePaused},
	{StatePaused, "resume", StatePlaying},
	{StatePlaying, "finish", StateFinished},
	{StatePaused, "abandon", StateFinished},
	{StateFinished, "restart", StateSetup},
	{StateError, "recover", StateSetup},
	{StateSetup, "error", StateError},
	{StatePlaying, "error", StateError},
	{StatePaused, "error", StateError},
	{StateFinished, "error", StateError},
}

func findRule(from LifecycleState, event string) (lifecycleRule, bool) {
	for _, r := range lifecycleRules {
		if r.from == from && r.event == event {
			return r, true
		}
	}
	return lifecycleRule{}, false
}

// StatePersister 把状态机快照落盘或取回
type StatePersister interface {
	Save(ctx context.Context, sessionID string, data *StateMachineData) error
	Load(ctx context.Context, sessionID string) (*StateMachineData, error)
	Delete(ctx context.Context, sessionID string) error
}

// StateMachineData 状态机快照（用于持久化）
type StateMachineData struct {
	SessionID    string          `json:"session_id"`
	UserID       uint            `json:"user_id"`
	CurrentState LifecycleState  `json:"current_state"`
	Mode         string          `json:"mode"`
	MatchedPairs int             `json:"matched_pairs"`
	TotalMoves   int             `json:"total_moves"`
	Board        json.RawMessage `json:"board,omitempty"` // 牌局快照
	StartTime    time.Time       `json:"start_time"`
	LastUpdate   time.Time       `json:"last_update"`
	ErrorMsg     string          `json:"error_msg,omitempty"`
}

// StateMachine 对局生命周期状态机。每次成功迁移都会把快照写入持久化层。
type StateMachine struct {
	mu        sync.RWMutex
	sessionID string
	userID    uint
	logger    *zap.Logger
	persister StatePersister

	currentState LifecycleState
	mode         string          // ai, local, ai_vs_ai
	matchedPairs int             // 已配对数
	totalMoves   int             // 累计翻牌次数
	board        json.RawMessage // 牌局快照
	startTime    time.Time
	lastUpdate   time.Time
	errorMsg     string

	onStateChange func(from, to LifecycleState)
}

// NewStateMachine 创建新的状态机，初始处于建局状态
func NewStateMachine(sessionID string, userID uint, logger *zap.Logger, persister StatePersister) *StateMachine {
	return &StateMachine{
		sessionID:    sessionID,
		userID:       userID,
		logger:       logger,
		persister:    persister,
		currentState: StateSetup,
		lastUpdate:   time.Now(),
	}
}

// Trigger 触发事件。迁移失败时保持原状态。
func (sm *StateMachine) Trigger(ctx context.Context, event string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	rule, ok := findRule(sm.currentState, event)
	if !ok {
		return fmt.Errorf("无效的状态转换: 状态=%s, 事件=%s", sm.currentState, event)
	}

	if err := sm.applyEvent(event); err != nil {
		return fmt.Errorf("状态转换失败: %w", err)
	}

	from := sm.currentState
	sm.currentState = rule.to
	sm.lastUpdate = time.Now()

	if sm.onStateChange != nil {
		sm.onStateChange(from, rule.to)
	}

	if sm.persister != nil {
		if err := sm.persister.Save(ctx, sm.sessionID, sm.toData()); err != nil {
			sm.logger.Error("持久化状态失败",
				zap.String("session_id", sm.sessionID),
				zap.Error(err))
		}
	}

	sm.logger.Info("状态转换",
		zap.String("session_id", sm.sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(rule.to)),
		zap.String("event", event))

	return nil
}

// applyEvent 执行事件附带的状态数据变更，调用方持锁
func (sm *StateMachine) applyEvent(event string) error {
	switch event {
	case "start":
		if sm.mode == "" {
			return errors.New("对局模式未设置")
		}
		sm.startTime = time.Now()

	case "restart":
		sm.matchedPairs = 0
		sm.totalMoves = 0
		sm.startTime = time.Time{}

	case "recover":
		sm.errorMsg = ""
		sm.matchedPairs = 0
		sm.totalMoves = 0

	case "error":
		sm.logger.Error("对局出错",
			zap.String("session_id", sm.sessionID),
			zap.String("error", sm.errorMsg))

	case "finish", "abandon":
		sm.logger.Info("对局收官",
			zap.String("session_id", sm.sessionID),
			zap.String("event", event),
			zap.Duration("duration", time.Since(sm.startTime)),
			zap.Int("matched_pairs", sm.matchedPairs),
			zap.Int("total_moves", sm.totalMoves))
	}
	return nil
}

// GetState 获取当前状态
func (sm *StateMachine) GetState() LifecycleState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// SetMode 设置对局模式
func (sm *StateMachine) SetMode(mode string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.mode = mode
}

// GetMode 获取对局模式
func (sm *StateMachine) GetMode() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.mode
}

// RecordMove 累计翻牌次数，matched 为真时同步累计配对数
func (sm *StateMachine) RecordMove(matched bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.totalMoves++
	if matched {
		sm.matchedPairs++
	}
	sm.lastUpdate = time.Now()
}

// GetProgress 获取对局进度
func (sm *StateMachine) GetProgress() (matchedPairs, totalMoves int) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.matchedPairs, sm.totalMoves
}

// SetError 记录最近一次错误
func (sm *StateMachine) SetError(err string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.errorMsg = err
}

// SetBoard 设置牌局快照（持久化时一并落盘）
func (sm *StateMachine) SetBoard(board json.RawMessage) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.board = board
}

// OnStateChange 设置状态变更回调
func (sm *StateMachine) OnStateChange(fn func(from, to LifecycleState)) {
	sm.onStateChange = fn
}

// CanTransition 检查当前状态下事件是否合法
func (sm *StateMachine) CanTransition(event string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := findRule(sm.currentState, event)
	return ok
}

// GetValidEvents 列出当前状态可接受的事件
func (sm *StateMachine) GetValidEvents() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var events []string
	for _, r := range lifecycleRules {
		if r.from == sm.currentState {
			events = append(events, r.event)
		}
	}
	return events
}

// Snapshot 持锁导出快照
func (sm *StateMachine) Snapshot() *StateMachineData {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.toData()
}

// toData 导出快照，调用方持锁
func (sm *StateMachine) toData() *StateMachineData {
	return &StateMachineData{
		SessionID:    sm.sessionID,
		UserID:       sm.userID,
		CurrentState: sm.currentState,
		Mode:         sm.mode,
		MatchedPairs: sm.matchedPairs,
		TotalMoves:   sm.totalMoves,
		Board:        sm.board,
		StartTime:    sm.startTime,
		LastUpdate:   sm.lastUpdate,
		ErrorMsg:     sm.errorMsg,
	}
}

// LoadFromData 从快照恢复
func (sm *StateMachine) LoadFromData(data *StateMachineData) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.sessionID, sm.userID = data.SessionID, data.UserID
	sm.currentState = data.CurrentState
	sm.mode = data.Mode
	sm.matchedPairs = data.MatchedPairs
	sm.totalMoves = data.TotalMoves
	sm.board = data.Board
	sm.startTime = data.StartTime
	sm.lastUpdate = data.LastUpdate
	sm.errorMsg = data.ErrorMsg
}

// Reset 重置为初始建局状态
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.currentState = StateSetup
	sm.mode = ""
	sm.matchedPairs = 0
	sm.totalMoves = 0
	sm.board = nil
	sm.startTime = time.Time{}
	sm.lastUpdate = time.Now()
	sm.errorMsg = ""
}
