package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/memory-game/internal/models"
)

func TestGameSessionRepository_Create(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	user := CreateTestUser("player1")
	require.NoError(t, db.Create(user).Error)

	// 测试创建对局会话
	session := CreateTestGameSession(user.ID, "sess-001")
	err := repo.Create(ctx, session)
	require.NoError(t, err)
	assert.NotZero(t, session.ID)

	// 验证会话已创建
	found, err := repo.FindBySessionID(ctx, "sess-001")
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, found.SessionID)
	assert.Equal(t, session.UserID, found.UserID)
	assert.Equal(t, "ai", found.Mode)
	assert.Equal(t, "color", found.MatchType)
	assert.Equal(t, "4x4", found.BoardSize)
}

func TestGameSessionRepository_Update(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	session := CreateTestGameSession(1, "sess-002")
	require.NoError(t, repo.Create(ctx, session))

	// 更新会话
	session.TotalMoves = 18
	session.Status = "finished"
	require.NoError(t, repo.Update(ctx, session))

	// 验证更新
	found, err := repo.FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, found.TotalMoves)
	assert.Equal(t, "finished", found.Status)
}

func TestGameSessionRepository_UpdateBySessionID(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	session := CreateTestGameSession(1, "sess-003")
	require.NoError(t, repo.Create(ctx, session))

	err := repo.UpdateBySessionID(ctx, "sess-003", map[string]interface{}{
		"status":      "paused",
		"total_moves": 6,
	})
	require.NoError(t, err)

	found, err := repo.FindBySessionID(ctx, "sess-003")
	require.NoError(t, err)
	assert.Equal(t, "paused", found.Status)
	assert.Equal(t, 6, found.TotalMoves)
}

func TestGameSessionRepository_FindActiveByUserID(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	// 没有活跃会话时返回nil
	found, err := repo.FindActiveByUserID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, found)

	finished := CreateTestGameSession(42, "sess-old")
	finished.Status = "finished"
	require.NoError(t, repo.Create(ctx, finished))

	active := CreateTestGameSession(42, "sess-active")
	require.NoError(t, repo.Create(ctx, active))

	found, err = repo.FindActiveByUserID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "sess-active", found.SessionID)
}

func TestGameSessionRepository_FindByUserID(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		session := CreateTestGameSession(7, "sess-page-"+string(rune('a'+i)))
		require.NoError(t, repo.Create(ctx, session))
	}

	p := NewPagination(1, 10)
	sessions, err := repo.FindByUserID(ctx, 7, p)
	require.NoError(t, err)
	assert.Len(t, sessions, 10)
	assert.Equal(t, int64(15), p.Total)

	p2 := NewPagination(2, 10)
	sessions, err = repo.FindByUserID(ctx, 7, p2)
	require.NoError(t, err)
	assert.Len(t, sessions, 5)
}

func TestGameSessionRepository_EndSession(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	session := CreateTestGameSession(1, "sess-end")
	session.StartedAt = time.Now().Add(-2 * time.Minute)
	require.NoError(t, repo.Create(ctx, session))

	require.NoError(t, repo.EndSession(ctx, "sess-end"))

	found, err := repo.FindBySessionID(ctx, "sess-end")
	require.NoError(t, err)
	assert.Equal(t, "finished", found.Status)
	assert.NotNil(t, found.EndedAt)
	assert.GreaterOrEqual(t, found.Duration, 119)
}

func TestGameSessionRepository_CleanupExpiredSessions(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameSessionRepository(db)
	ctx := context.Background()

	stale := CreateTestGameSession(1, "sess-stale")
	require.NoError(t, repo.Create(ctx, stale))

	// 手动将更新时间拨回过去
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(stale).UpdateColumn("updated_at", past).Error)

	fresh := CreateTestGameSession(1, "sess-fresh")
	require.NoError(t, repo.Create(ctx, fresh))

	count, err := repo.CleanupExpiredSessions(ctx, time.Now().Add(-1*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	found, err := repo.FindBySessionID(ctx, "sess-stale")
	require.NoError(t, err)
	assert.Equal(t, "abandoned", found.Status)

	found, err = repo.FindBySessionID(ctx, "sess-fresh")
	require.NoError(t, err)
	assert.Equal(t, "playing", found.Status)
}

func TestMatchResultRepository(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	sessions := NewGameSessionRepository(db)
	results := NewMatchResultRepository(db)
	ctx := context.Background()

	session := CreateTestGameSession(1, "sess-result")
	require.NoError(t, sessions.Create(ctx, session))

	result := CreateTestMatchResult(session.ID, "round-001", 5, 3)
	require.NoError(t, results.Create(ctx, result))

	found, err := results.FindByRoundID(ctx, "round-001")
	require.NoError(t, err)
	assert.Equal(t, "player_1", found.WinnerSeat)
	assert.False(t, found.IsDraw)
	assert.Equal(t, 5, found.Player1Score)
	assert.Equal(t, 3, found.Player2Score)

	// 平局
	draw := CreateTestMatchResult(session.ID, "round-002", 4, 4)
	require.NoError(t, results.Create(ctx, draw))

	found, err = results.FindByRoundID(ctx, "round-002")
	require.NoError(t, err)
	assert.True(t, found.IsDraw)
	assert.Empty(t, found.WinnerSeat)

	list, err := results.FindBySessionID(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMoveRecordRepository(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewMoveRecordRepository(db)
	ctx := context.Background()

	moves := make([]*models.MoveRecord, 0, 4)
	for i := 0; i < 4; i++ {
		moves = append(moves, &models.MoveRecord{
			SessionID: 9,
			MoveIndex: i,
			Seat:      "player_1",
			FirstPos:  i * 2,
			SecondPos: i*2 + 1,
			IsMatch:   i%2 == 0,
			PlayedAt:  time.Now(),
		})
	}
	require.NoError(t, repo.BatchCreate(ctx, moves))

	count, err := repo.CountBySessionID(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	list, err := repo.FindBySessionID(ctx, 9)
	require.NoError(t, err)
	require.Len(t, list, 4)
	// 保持落子顺序
	for i, m := range list {
		assert.Equal(t, i, m.MoveIndex)
	}

	require.NoError(t, repo.DeleteBySessionID(ctx, 9))
	count, err = repo.CountBySessionID(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGameStateRepository_SaveAndOverwrite(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	repo := NewGameStateRepository(db)
	ctx := context.Background()

	state := &models.GameState{
		SessionID:    "sess-state",
		UserID:       1,
		CurrentState: "playing",
		StateData:    `{"matched_pairs":0}`,
	}
	require.NoError(t, repo.Save(ctx, state))

	// 同一会话再次保存应覆盖
	state2 := &models.GameState{
		SessionID:    "sess-state",
		UserID:       1,
		CurrentState: "paused",
		StateData:    `{"matched_pairs":3}`,
	}
	require.NoError(t, repo.Save(ctx, state2))

	found, err := repo.FindBySessionID(ctx, "sess-state")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "paused", found.CurrentState)
	assert.Contains(t, found.StateData, "3")

	// 不存在的会话返回nil
	missing, err := repo.FindBySessionID(ctx, "sess-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Delete(ctx, "sess-state"))
	found, err = repo.FindBySessionID(ctx, "sess-state")
	require.NoError(t, err)
	assert.Nil(t, found)
}
