package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/game/memory"
	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestGameService 零延迟配置的对局服务，失配同步翻回保证断言确定
func newTestGameService(t *testing.T) (*GameService, uint) {
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
		Username: "player",
		Email:    "player@example.com",
		Status:   "active",
	}
	require.NoError(t, db.Create(user).Error)

	svc := NewGameService(&GameServiceConfig{
		DB:             db,
		Logger:         zap.NewNop(),
		Timing:         config.TurnTimingConfig{},
		SessionTimeout: 30 * time.Minute,
		MaxSessions:    16,
	})
	return svc, user.ID
}

func localGameRequest() *CreateGameRequest {
	return &CreateGameRequest{
		Mode:      "local",
		MatchType: "rank",
		BoardSize: "4x4",
	}
}

func TestGameService_CreateGame(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)
	assert.Equal(t, userID, info.UserID)
	assert.Equal(t, StatePlaying, info.State)
	assert.Equal(t, "local", info.Mode)
	require.NotNil(t, info.Board)
	assert.Len(t, info.Board.Cards, 16)

	// 会话记录已落盘
	record, err := svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "playing", record.Status)
}

func TestGameService_CreateGameUnknownUser(t *testing.T) {
	svc, _ := newTestGameService(t)

	_, err := svc.CreateGame(context.Background(), 9999, localGameRequest())
	assert.ErrorContains(t, err, "用户不存在")
}

func TestGameService_CreateGameAbandonsPrevious(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	first, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)

	second, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)
	require.NotEqual(t, first.SessionID, second.SessionID)

	// 旧对局被放弃且已移出内存
	record, err := svc.gameSessionRepo.FindBySessionID(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "abandoned", record.Status)

	_, err = svc.sessionManager.GetSession(first.SessionID)
	assert.Error(t, err)
}

func TestGameService_FlipAndHint(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)

	hint, err := svc.Hint(ctx, info.SessionID)
	require.NoError(t, err)
	require.True(t, hint.Found)

	resp, err := svc.Flip(ctx, info.SessionID, memory.SeatOne, hint.First)
	require.NoError(t, err)
	assert.False(t, resp.PairResolved)

	resp, err = svc.Flip(ctx, info.SessionID, memory.SeatOne, hint.Second)
	require.NoError(t, err)
	assert.True(t, resp.PairResolved)
	assert.True(t, resp.Matched)
	assert.Equal(t, 1, resp.Scores[memory.SeatOne])

	// 不存在的会话
	_, err = svc.Flip(ctx, "no-such-session", memory.SeatOne, 0)
	assert.ErrorContains(t, err, "会话不存在")
}

func TestGameService_PauseResume(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)

	require.NoError(t, svc.Pause(ctx, info.SessionID))
	record, err := svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "paused", record.Status)

	_, err = svc.Flip(ctx, info.SessionID, memory.SeatOne, 0)
	assert.Error(t, err)

	require.NoError(t, svc.Resume(ctx, info.SessionID))
	record, err = svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "playing", record.Status)
}

func TestGameService_FinishPersistsResult(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)

	// 第一席位连续配对直到清空牌面
	for {
		hint, err := svc.Hint(ctx, info.SessionID)
		require.NoError(t, err)
		require.True(t, hint.Found)

		_, err = svc.Flip(ctx, info.SessionID, memory.SeatOne, hint.First)
		require.NoError(t, err)
		resp, err := svc.Flip(ctx, info.SessionID, memory.SeatOne, hint.Second)
		require.NoError(t, err)
		require.True(t, resp.Matched)
		if resp.Finished {
			assert.Len(t, resp.Winners, 1)
			break
		}
	}

	// 收尾在后台执行：等待对局记录关闭且结果落盘
	require.Eventually(t, func() bool {
		record, err := svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
		return err == nil && record.Status == "finished"
	}, 3*time.Second, 20*time.Millisecond)

	dbSession, err := svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 8, dbSession.TotalMoves)

	results := repository.NewMatchResultRepository(svc.db)
	require.Eventually(t, func() bool {
		list, err := results.FindBySessionID(ctx, dbSession.ID)
		return err == nil && len(list) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// 创建者获胜计入用户统计
	require.Eventually(t, func() bool {
		user, err := svc.userRepo.FindByID(ctx, userID)
		return err == nil && user.GamesPlayed == 1 && user.GamesWon == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestGameService_EndSessionMarksAbandoned(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(ctx, info.SessionID))

	record, err := svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "abandoned", record.Status)

	_, err = svc.sessionManager.GetSession(info.SessionID)
	assert.Error(t, err)

	// 明确结束的对局快照同步删除，不再可查
	_, err = svc.GetSessionInfo(ctx, info.SessionID)
	assert.ErrorContains(t, err, "会话不存在")
}

func TestGameService_EndSessionStopsAIDrive(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, &CreateGameRequest{
		Mode:        "ai_vs_ai",
		MatchType:   "rank",
		BoardSize:   "4x4",
		Difficulty:  "easy",
		Difficulty2: "easy",
	})
	require.NoError(t, err)

	session, err := svc.sessionManager.GetSession(info.SessionID)
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(ctx, info.SessionID))

	// 会话移除时AI驱动的context被取消
	assert.ErrorIs(t, session.AIContext().Err(), context.Canceled)

	// 驱动协程退出后不再翻牌
	moves := len(session.Orchestrator.Board().Moves)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, moves, len(session.Orchestrator.Board().Moves))

	// 被放弃的对局不会被后台收尾改写成完成
	record, err := svc.gameSessionRepo.FindBySessionID(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "abandoned", record.Status)
}

func TestGameService_CreateGameValidatesBoardOptions(t *testing.T) {
	svc, userID := newTestGameService(t)
	svc.memoryCfg = config.MemoryGameConfig{
		DefaultBoardSize: "4x4",
		DefaultMatchType: "rank",
		BoardSizes:       []string{"4x4", "4x6"},
		MatchTypes:       []string{"rank", "color"},
	}
	ctx := context.Background()

	// 白名单之外的取值被拒绝
	req := localGameRequest()
	req.BoardSize = "6x6"
	_, err := svc.CreateGame(ctx, userID, req)
	assert.ErrorContains(t, err, "不支持的牌面规格")

	req = localGameRequest()
	req.MatchType = "suit"
	_, err = svc.CreateGame(ctx, userID, req)
	assert.ErrorContains(t, err, "不支持的配对规则")

	// 未指定时回落到配置默认值
	info, err := svc.CreateGame(ctx, userID, &CreateGameRequest{Mode: "local"})
	require.NoError(t, err)
	require.NotNil(t, info.Board)
	assert.Equal(t, "4x4", info.Board.BoardSize)
	assert.Equal(t, "rank", info.Board.MatchType)
}

func TestGameService_GetSessionInfoSnapshotFallback(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)

	// 移出内存后仍能从落库快照查到会话状态
	require.NoError(t, svc.sessionManager.RemoveSession(ctx, info.SessionID))

	restored, err := svc.GetSessionInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, info.SessionID, restored.SessionID)
	assert.Equal(t, userID, restored.UserID)
	assert.Equal(t, StatePlaying, restored.State)
	assert.Nil(t, restored.Board)

	// 查不到快照时报会话不存在
	_, err = svc.GetSessionInfo(ctx, "ghost-session")
	assert.ErrorContains(t, err, "会话不存在")
}

func TestGameService_HistoryAndStats(t *testing.T) {
	svc, userID := newTestGameService(t)
	ctx := context.Background()

	info, err := svc.CreateGame(ctx, userID, localGameRequest())
	require.NoError(t, err)
	require.NoError(t, svc.EndSession(ctx, info.SessionID))

	history, err := svc.GetUserGameHistory(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, info.SessionID, history[0].SessionID)

	stats, err := svc.GetUserStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalGames)
	assert.Equal(t, int64(0), stats.TotalWins)
}
