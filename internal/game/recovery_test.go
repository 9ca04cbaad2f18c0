package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// recoveryEnv 恢复测试环境
type recoveryEnv struct {
	db        *gorm.DB
	persister StatePersister
	rm        *RecoveryManager
	userID    uint
}

func newRecoveryEnv(t *testing.T, timeout time.Duration) *recoveryEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.GameSession{},
		&models.MatchResult{},
		&models.MoveRecord{},
		&models.GameState{},
	))

	user := &models.User{
		Username: fmt.Sprintf("testuser_%d", time.Now().UnixNano()),
		Email:    fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()),
		Status:   "active",
	}
	require.NoError(t, db.Create(user).Error)

	stateRepo := repository.NewGameStateRepository(db)
	persister := NewDatabaseStatePersister(stateRepo)

	return &recoveryEnv{
		db:        db,
		persister: persister,
		rm:        NewRecoveryManager(zap.NewNop(), persister, stateRepo, timeout),
		userID:    user.ID,
	}
}

// saveSnapshot 落库一份指定状态的快照
func (env *recoveryEnv) saveSnapshot(t *testing.T, sessionID string, state LifecycleState, lastUpdate time.Time) {
	t.Helper()
	require.NoError(t, env.persister.Save(context.Background(), sessionID, &StateMachineData{
		SessionID:    sessionID,
		UserID:       env.userID,
		CurrentState: state,
		Mode:         "ai",
		LastUpdate:   lastUpdate,
	}))
}

func TestRecoveryManager_RecoverSession(t *testing.T) {
	env := newRecoveryEnv(t, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, env.persister.Save(ctx, "test-recover-session", &StateMachineData{
		SessionID:    "test-recover-session",
		UserID:       env.userID,
		CurrentState: StatePlaying,
		Mode:         "ai",
		MatchedPairs: 3,
		TotalMoves:   8,
		LastUpdate:   time.Now(),
	}))

	// 进行中的对局应转入暂停等待玩家继续
	sm, err := env.rm.RecoverSession(ctx, "test-recover-session")
	require.NoError(t, err)
	assert.Equal(t, "test-recover-session", sm.sessionID)
	assert.Equal(t, env.userID, sm.userID)
	assert.Equal(t, StatePaused, sm.GetState())

	matched, moves := sm.GetProgress()
	assert.Equal(t, 3, matched)
	assert.Equal(t, 8, moves)
}

func TestRecoveryManager_RecoverSession_Timeout(t *testing.T) {
	env := newRecoveryEnv(t, 30*time.Minute)
	ctx := context.Background()

	env.saveSnapshot(t, "expired-session", StatePlaying, time.Now().Add(-40*time.Minute))

	// 超时会话恢复应失败且快照被删除
	sm, err := env.rm.RecoverSession(ctx, "expired-session")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, sm)

	_, err = env.persister.Load(ctx, "expired-session")
	assert.Error(t, err)
}

func TestRecoveryManager_RecoverPaused(t *testing.T) {
	env := newRecoveryEnv(t, 30*time.Minute)
	ctx := context.Background()

	env.saveSnapshot(t, "paused-session", StatePaused, time.Now())

	// 暂停状态恢复后保持暂停
	sm, err := env.rm.RecoverSession(ctx, "paused-session")
	require.NoError(t, err)
	assert.Equal(t, StatePaused, sm.GetState())
}

func TestRecoveryManager_RecoverFinished_DeletesSnapshot(t *testing.T) {
	env := newRecoveryEnv(t, 30*time.Minute)
	ctx := context.Background()

	env.saveSnapshot(t, "finished-session", StateFinished, time.Now())

	// 已结束的对局恢复后快照应被清理
	sm, err := env.rm.RecoverSession(ctx, "finished-session")
	require.NoError(t, err)
	assert.Equal(t, StateFinished, sm.GetState())

	_, err = env.persister.Load(ctx, "finished-session")
	assert.Error(t, err)
}

func TestRecoveryManager_Snapshot(t *testing.T) {
	env := newRecoveryEnv(t, 30*time.Minute)
	ctx := context.Background()

	env.saveSnapshot(t, "snap-session", StatePlaying, time.Now())

	// 快照读取不改变落库状态
	data, err := env.rm.Snapshot(ctx, "snap-session")
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, data.CurrentState)
	assert.Equal(t, env.userID, data.UserID)

	loaded, err := env.persister.Load(ctx, "snap-session")
	require.NoError(t, err)
	assert.Equal(t, StatePlaying, loaded.CurrentState)

	// 超时快照读取应报超时
	env.saveSnapshot(t, "old-snap", StatePlaying, time.Now().Add(-time.Hour))
	_, err = env.rm.Snapshot(ctx, "old-snap")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRecoveryManager_CleanupExpiredSessions(t *testing.T) {
	// 超时时间设为1秒用于测试
	env := newRecoveryEnv(t, 1*time.Second)
	ctx := context.Background()

	expired := &models.GameState{
		SessionID:    "expired-session-1",
		UserID:       env.userID,
		CurrentState: "playing",
		StateData:    fmt.Sprintf(`{"session_id":"expired-session-1","user_id":%d,"current_state":"playing"}`, env.userID),
		UpdatedAt:    time.Now().Add(-5 * time.Second),
	}
	require.NoError(t, env.db.Create(expired).Error)

	active := &models.GameState{
		SessionID:    "active-session",
		UserID:       env.userID,
		CurrentState: "playing",
		StateData:    fmt.Sprintf(`{"session_id":"active-session","user_id":%d,"current_state":"playing"}`, env.userID),
		UpdatedAt:    time.Now(),
	}
	require.NoError(t, env.db.Create(active).Error)

	require.NoError(t, env.rm.CleanupExpiredSessions(ctx))

	var count int64
	require.NoError(t, env.db.Model(&models.GameState{}).
		Where("session_id = ?", "expired-session-1").
		Count(&count).Error)
	assert.Equal(t, int64(0), count, "过期会话应被删除")

	require.NoError(t, env.db.Model(&models.GameState{}).
		Where("session_id = ?", "active-session").
		Count(&count).Error)
	assert.Equal(t, int64(1), count, "未过期会话应保留")
}
