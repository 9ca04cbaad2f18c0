package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStateMachine() *StateMachine {
	return NewStateMachine("test-session", 1, zap.NewNop(), NewMemoryStatePersister())
}

func TestStateMachine_FullLifecycle(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("local")
	ctx := context.Background()

	assert.Equal(t, StateSetup, sm.GetState())

	require.NoError(t, sm.Trigger(ctx, "start"))
	assert.Equal(t, StatePlaying, sm.GetState())

	require.NoError(t, sm.Trigger(ctx, "pause"))
	assert.Equal(t, StatePaused, sm.GetState())

	require.NoError(t, sm.Trigger(ctx, "resume"))
	assert.Equal(t, StatePlaying, sm.GetState())

	require.NoError(t, sm.Trigger(ctx, "finish"))
	assert.Equal(t, StateFinished, sm.GetState())

	require.NoError(t, sm.Trigger(ctx, "restart"))
	assert.Equal(t, StateSetup, sm.GetState())
}

func TestStateMachine_StartRequiresMode(t *testing.T) {
	sm := newTestStateMachine()
	err := sm.Trigger(context.Background(), "start")
	assert.Error(t, err)
	assert.Equal(t, StateSetup, sm.GetState())
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("ai")
	ctx := context.Background()

	// 建局状态不能暂停
	err := sm.Trigger(ctx, "pause")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "无效的状态转换")

	require.NoError(t, sm.Trigger(ctx, "start"))

	// 进行中不能直接重开
	err = sm.Trigger(ctx, "restart")
	assert.Error(t, err)
	assert.Equal(t, StatePlaying, sm.GetState())
}

func TestStateMachine_AbandonFromPaused(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("ai")
	ctx := context.Background()

	require.NoError(t, sm.Trigger(ctx, "start"))
	require.NoError(t, sm.Trigger(ctx, "pause"))
	require.NoError(t, sm.Trigger(ctx, "abandon"))
	assert.Equal(t, StateFinished, sm.GetState())
}

func TestStateMachine_ErrorAndRecover(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("local")
	ctx := context.Background()

	require.NoError(t, sm.Trigger(ctx, "start"))
	sm.RecordMove(true)
	sm.RecordMove(false)

	sm.SetError("测试错误")
	require.NoError(t, sm.Trigger(ctx, "error"))
	assert.Equal(t, StateError, sm.GetState())

	// 恢复后进度清零
	require.NoError(t, sm.Trigger(ctx, "recover"))
	assert.Equal(t, StateSetup, sm.GetState())
	matched, moves := sm.GetProgress()
	assert.Equal(t, 0, matched)
	assert.Equal(t, 0, moves)
}

func TestStateMachine_RecordMove(t *testing.T) {
	sm := newTestStateMachine()
	sm.RecordMove(true)
	sm.RecordMove(false)
	sm.RecordMove(true)

	matched, moves := sm.GetProgress()
	assert.Equal(t, 2, matched)
	assert.Equal(t, 3, moves)
}

func TestStateMachine_PersistsOnTransition(t *testing.T) {
	persister := NewMemoryStatePersister()
	sm := NewStateMachine("persist-session", 7, zap.NewNop(), persister)
	sm.SetMode("ai")
	ctx := context.Background()

	require.NoError(t, sm.Trigger(ctx, "start"))

	data, err := persister.Load(ctx, "persist-session")
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, data.CurrentState)
	assert.Equal(t, uint(7), data.UserID)
	assert.Equal(t, "ai", data.Mode)
}

// Snapshot 自己持锁导出，和并发的状态变更互不干扰
func TestStateMachine_SnapshotConcurrentWithTransitions(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("local")
	ctx := context.Background()
	require.NoError(t, sm.Trigger(ctx, "start"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			sm.RecordMove(i%2 == 0)
			_ = sm.Trigger(ctx, "pause")
			_ = sm.Trigger(ctx, "resume")
		}
	}()

	for i := 0; i < 50; i++ {
		data := sm.Snapshot()
		require.NotNil(t, data)
		assert.Equal(t, "test-session", data.SessionID)
	}
	<-done

	data := sm.Snapshot()
	_, moves := sm.GetProgress()
	assert.Equal(t, moves, data.TotalMoves)
	assert.Equal(t, sm.GetState(), data.CurrentState)
}

func TestStateMachine_OnStateChangeCallback(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("local")

	var gotFrom, gotTo LifecycleState
	sm.OnStateChange(func(from, to LifecycleState) {
		gotFrom, gotTo = from, to
	})

	require.NoError(t, sm.Trigger(context.Background(), "start"))
	assert.Equal(t, StateSetup, gotFrom)
	assert.Equal(t, StatePlaying, gotTo)
}

func TestStateMachine_CanTransitionAndValidEvents(t *testing.T) {
	sm := newTestStateMachine()
	sm.SetMode("ai")

	assert.True(t, sm.CanTransition("start"))
	assert.False(t, sm.CanTransition("pause"))

	events := sm.GetValidEvents()
	assert.Contains(t, events, "start")
	assert.Contains(t, events, "error")
	assert.NotContains(t, events, "finish")
}

func TestStateMachine_LoadFromData(t *testing.T) {
	sm := newTestStateMachine()
	sm.LoadFromData(&StateMachineData{
		SessionID:    "restored",
		UserID:       9,
		CurrentState: StatePaused,
		Mode:         "ai_vs_ai",
		MatchedPairs: 5,
		TotalMoves:   12,
	})

	assert.Equal(t, StatePaused, sm.GetState())
	assert.Equal(t, "ai_vs_ai", sm.GetMode())
	matched, moves := sm.GetProgress()
	assert.Equal(t, 5, matched)
	assert.Equal(t, 12, moves)

	// 暂停状态可以继续
	require.NoError(t, sm.Trigger(context.Background(), "resume"))
	assert.Equal(t, StatePlaying, sm.GetState())
}
