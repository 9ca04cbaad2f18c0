package repository

import (
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testModels 测试库需要迁移的全部模型
var testModels = []interface{}{
	&models.User{},
	&models.UserAuth{},
	&models.UserSession{},
	&models.GameSession{},
	&models.MatchResult{},
	&models.MoveRecord{},
	&models.GameState{},
}

// SetupTestDB 打开一个迁移完成的内存sqlite库
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	if err := db.AutoMigrate(testModels...); err != nil {
		panic(err)
	}
	return db
}

// CleanupTestDB 关闭测试数据库连接
func CleanupTestDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// CreateTestUser 创建测试用户
func CreateTestUser(username string) *models.User {
	return &models.User{
		Username: username,
		Nickname: "测试" + username,
		Email:    username + "@example.com",
		Status:   "active",
	}
}

// CreateTestGameSession 创建测试对局会话
func CreateTestGameSession(userID uint, sessionID string) *models.GameSession {
	return &models.GameSession{
		UserID:     userID,
		SessionID:  sessionID,
		Mode:       "ai",
		MatchType:  "color",
		BoardSize:  "4x4",
		Difficulty: "medium",
		Status:     "playing",
		StartedAt:  time.Now(),
	}
}

// CreateTestMatchResult 创建测试对局结果
func CreateTestMatchResult(sessionID uint, roundID string, p1, p2 int) *models.MatchResult {
	return &models.MatchResult{
		SessionID:    sessionID,
		RoundID:      roundID,
		WinnerSeat:   winnerSeatFor(p1, p2),
		IsDraw:       p1 == p2,
		Player1Score: p1,
		Player2Score: p2,
		TotalPairs:   p1 + p2,
		FinishedAt:   time.Now(),
	}
}

func winnerSeatFor(p1, p2 int) string {
	switch {
	case p1 > p2:
		return "player_1"
	case p2 > p1:
		return "player_2"
	default:
		return ""
	}
}
