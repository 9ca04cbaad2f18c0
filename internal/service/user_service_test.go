package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/utils"
)

// UserServiceTestSuite 用户服务测试套件
type UserServiceTestSuite struct {
	suite.Suite
	ctx         context.Context
	db          *gorm.DB
	userService UserService
}

func (suite *UserServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()

	// 每个测试用独立的内存数据库
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.Require().NoError(err)
	suite.Require().NoError(db.AutoMigrate(
		&models.User{},
		&models.UserAuth{},
		&models.UserSession{},
		&models.GameSession{},
		&models.MatchResult{},
		&models.MoveRecord{},
	))
	suite.db = db

	suite.userService = NewUserService(db, zap.NewNop())

	suite.seedUsers()
}

// seedUsers 预置三个用户，密码统一为 password123
func (suite *UserServiceTestSuite) seedUsers() {
	seeds := []struct {
		username, email, nickname, status string
	}{
		{"testuser1", "test1@example.com", "TestNick1", "active"},
		{"testuser2", "test2@example.com", "TestNick2", "active"},
		{"banneduser", "banned@example.com", "BannedNick", "banned"},
	}

	hashedPassword, _ := utils.HashPassword("password123")
	for _, s := range seeds {
		user := models.User{Username: s.username, Email: s.email, Nickname: s.nickname, Status: s.status}
		suite.db.Create(&user)
		suite.db.Create(&models.UserAuth{UserID: user.ID, Password: hashedPassword})
	}
}

// userByName 按用户名取出预置用户
func (suite *UserServiceTestSuite) userByName(username string) *models.User {
	var user models.User
	suite.Require().NoError(suite.db.First(&user, "username = ?", username).Error)
	return &user
}

// createFinishedSession 创建一局已结束的对局及结果
func (suite *UserServiceTestSuite) createFinishedSession(userID uint, idx int, winnerSeat string, isDraw bool, moves int) {
	now := time.Now()
	ended := now
	session := models.GameSession{
		UserID:     userID,
		SessionID:  fmt.Sprintf("session-%d-%d", userID, idx),
		Mode:       "ai",
		MatchType:  "rank",
		BoardSize:  "4x4",
		Difficulty: "medium",
		Status:     "finished",
		StartedAt:  now.Add(-5 * time.Minute),
		EndedAt:    &ended,
		Duration:   300,
		TotalMoves: moves,
	}
	suite.db.Create(&session)

	suite.db.Create(&models.MatchResult{
		SessionID:  session.ID,
		RoundID:    fmt.Sprintf("round-%d-%d", userID, idx),
		WinnerSeat: winnerSeat,
		IsDraw:     isDraw,
		TotalPairs: 8,
		TotalMoves: moves,
		FinishedAt: now,
	})
}

// 按ID、用户名、邮箱三种方式查询用户
func (suite *UserServiceTestSuite) TestGetUser() {
	seeded := suite.userByName("testuser1")

	byID, err := suite.userService.GetUserByID(suite.ctx, seeded.ID)
	suite.NoError(err)
	suite.Equal("testuser1", byID.Username)

	byName, err := suite.userService.GetUserByUsername(suite.ctx, "testuser2")
	suite.NoError(err)
	suite.Equal("test2@example.com", byName.Email)

	byEmail, err := suite.userService.GetUserByEmail(suite.ctx, "test1@example.com")
	suite.NoError(err)
	suite.Equal("testuser1", byEmail.Username)

	// 不存在的用户
	_, err = suite.userService.GetUserByID(suite.ctx, 99999)
	suite.Error(err)
	_, err = suite.userService.GetUserByUsername(suite.ctx, "nonexistent")
	suite.Error(err)
	_, err = suite.userService.GetUserByEmail(suite.ctx, "nonexistent@example.com")
	suite.Error(err)
}

func (suite *UserServiceTestSuite) TestUpdateUser() {
	user := suite.userByName("testuser1")

	err := suite.userService.UpdateUser(suite.ctx, user.ID, map[string]interface{}{
		"email":    "newemail@example.com",
		"nickname": "NewNickname",
		"avatar":   "new_avatar.png",
	})
	suite.NoError(err)

	updated := suite.userByName("testuser1")
	suite.Equal("newemail@example.com", updated.Email)
	suite.Equal("NewNickname", updated.Nickname)
	suite.Equal("new_avatar.png", updated.Avatar)
}

func (suite *UserServiceTestSuite) TestUpdatePassword() {
	user := suite.userByName("testuser1")

	err := suite.userService.UpdatePassword(suite.ctx, user.ID, "password123", "newPassword456")
	suite.NoError(err)

	var auth models.UserAuth
	suite.db.First(&auth, "user_id = ?", user.ID)
	valid, _ := utils.VerifyPassword("newPassword456", auth.Password)
	suite.True(valid)

	// 旧密码错误
	err = suite.userService.UpdatePassword(suite.ctx, user.ID, "wrongOldPassword", "anotherNewPassword")
	suite.Error(err)
}

func (suite *UserServiceTestSuite) TestUpdateProfile() {
	user := suite.userByName("testuser1")

	err := suite.userService.UpdateProfile(suite.ctx, user.ID, &UserProfile{
		Nickname: "TestNick",
		Avatar:   "avatar.jpg",
	})
	suite.NoError(err)

	updated := suite.userByName("testuser1")
	suite.Equal("TestNick", updated.Nickname)
	suite.Equal("avatar.jpg", updated.Avatar)

	// 空资料被拒绝
	err = suite.userService.UpdateProfile(suite.ctx, user.ID, &UserProfile{})
	suite.Error(err)
}

func (suite *UserServiceTestSuite) TestGetUserList() {
	users, total, err := suite.userService.GetUserList(suite.ctx, 0, 10)
	suite.NoError(err)
	suite.Equal(int64(3), total)
	suite.Len(users, 3)

	// 分页
	users, total, err = suite.userService.GetUserList(suite.ctx, 0, 2)
	suite.NoError(err)
	suite.Equal(int64(3), total)
	suite.Len(users, 2)
}

func (suite *UserServiceTestSuite) TestUpdateUserStatus() {
	user := suite.userByName("testuser1")

	suite.NoError(suite.userService.UpdateUserStatus(suite.ctx, user.ID, "frozen"))
	suite.Equal("frozen", suite.userByName("testuser1").Status)

	suite.Error(suite.userService.UpdateUserStatus(suite.ctx, user.ID, "whatever"))
}

// 两胜一平一负的统计汇总
func (suite *UserServiceTestSuite) TestGetUserStats() {
	user := suite.userByName("testuser1")

	suite.createFinishedSession(user.ID, 1, "player_1", false, 12)
	suite.createFinishedSession(user.ID, 2, "player_1", false, 14)
	suite.createFinishedSession(user.ID, 3, "", true, 16)
	suite.createFinishedSession(user.ID, 4, "player_2", false, 18)

	stats, err := suite.userService.GetUserStats(suite.ctx, user.ID)
	suite.NoError(err)
	suite.Equal(int64(4), stats.TotalGames)
	suite.Equal(int64(2), stats.TotalWins)
	suite.Equal(int64(1), stats.TotalDraws)
	suite.InDelta(50.0, stats.WinRate, 0.01)
	suite.InDelta(15.0, stats.AverageMoves, 0.01)
}

func (suite *UserServiceTestSuite) TestGetUserGameHistory() {
	user := suite.userByName("testuser1")
	for i := 0; i < 5; i++ {
		suite.createFinishedSession(user.ID, i, "player_1", false, 10+i)
	}

	history, total, err := suite.userService.GetUserGameHistory(suite.ctx, user.ID, 1, 3)
	suite.NoError(err)
	suite.Equal(int64(5), total)
	suite.Len(history, 3)
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceTestSuite))
}
