package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/memory-game/internal/repository"
	"go.uber.org/zap"
)

// ErrSessionExpired 快照超时，已不可恢复
var ErrSessionExpired = errors.New("会话已超时")

// RecoveryManager 从持久化快照恢复中断的对局生命周期状态
type RecoveryManager struct {
	logger    *zap.Logger
	persister StatePersister
	stateRepo repository.GameStateRepository // 批量清理用，可为nil
	timeout   time.Duration
}

// NewRecoveryManager 创建恢复管理器
func NewRecoveryManager(logger *zap.Logger, persister StatePersister, stateRepo repository.GameStateRepository, timeout time.Duration) *RecoveryManager {
	return &RecoveryManager{
		logger:    logger,
		persister: persister,
		stateRepo: stateRepo,
		timeout:   timeout,
	}
}

// RecoverSession 从快照重建状态机。进行中的对局恢复为暂停，等玩家主动继续。
func (rm *RecoveryManager) RecoverSession(ctx context.Context, sessionID string) (*StateMachine, error) {
	data, err := rm.persister.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("加载会话状态失败: %w", err)
	}

	if time.Since(data.LastUpdate) > rm.timeout {
		rm.logger.Warn("会话已超时",
			zap.String("session_id", sessionID),
			zap.Time("last_update", data.LastUpdate))
		if err := rm.persister.Delete(ctx, sessionID); err != nil {
			rm.logger.Error("删除超时会话失败", zap.Error(err))
		}
		return nil, ErrSessionExpired
	}

	sm := NewStateMachine(sessionID, data.UserID, rm.logger, rm.persister)
	sm.LoadFromData(data)

	if err := rm.applyRecovery(ctx, sm, data.CurrentState); err != nil {
		return nil, fmt.Errorf("执行恢复策略失败: %w", err)
	}

	rm.logger.Info("会话恢复成功",
		zap.String("session_id", sessionID),
		zap.String("state", string(data.CurrentState)))

	return sm, nil
}

// applyRecovery 按快照状态收敛到可继续的状态
func (rm *RecoveryManager) applyRecovery(ctx context.Context, sm *StateMachine, state LifecycleState) error {
	switch state {
	case StateSetup, StatePaused:
		// 建局和暂停都可原样等待玩家操作
		return nil

	case StatePlaying:
		rm.logger.Info("进行中对局转入暂停",
			zap.String("session_id", sm.sessionID))
		return sm.Trigger(ctx, "pause")

	case StateFinished:
		// 已结束的对局不再需要快照
		if err := rm.persister.Delete(ctx, sm.sessionID); err != nil {
			rm.logger.Error("清理快照失败", zap.Error(err))
		}
		return nil

	case StateError:
		rm.logger.Warn("从错误状态恢复",
			zap.String("session_id", sm.sessionID),
			zap.String("error", sm.errorMsg))
		return sm.Trigger(ctx, "recover")

	default:
		rm.logger.Warn("未知快照状态，重置到建局",
			zap.String("session_id", sm.sessionID),
			zap.String("from_state", string(state)))
		sm.Reset()
		return nil
	}
}

// Snapshot 读取会话快照但不重建状态机，供查询接口使用
func (rm *RecoveryManager) Snapshot(ctx context.Context, sessionID string) (*StateMachineData, error) {
	data, err := rm.persister.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if time.Since(data.LastUpdate) > rm.timeout {
		return nil, ErrSessionExpired
	}
	return data, nil
}

// CleanupExpiredSessions 删除超过超时时间未更新的落库快照
func (rm *RecoveryManager) CleanupExpiredSessions(ctx context.Context) error {
	if rm.stateRepo == nil {
		return nil
	}

	stale, err := rm.stateRepo.FindStale(ctx, time.Now().Add(-rm.timeout))
	if err != nil {
		return fmt.Errorf("查询过期会话失败: %w", err)
	}

	for _, s := range stale {
		if err := rm.stateRepo.Delete(ctx, s.SessionID); err != nil {
			rm.logger.Error("删除过期会话失败",
				zap.String("session_id", s.SessionID),
				zap.Error(err))
			continue
		}
		rm.logger.Info("清理过期会话",
			zap.String("session_id", s.SessionID),
			zap.String("state", s.CurrentState))
	}

	return nil
}
