package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestRouter 构建带内存数据库的完整路由器
func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.UserAuth{},
		&models.UserSession{},
		&models.GameSession{},
		&models.GameState{},
		&models.MatchResult{},
		&models.MoveRecord{},
	)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Security.JWT.Secret = "integration-test-secret"
	cfg.Security.JWT.ExpireHours = 1
	cfg.Security.JWT.RefreshHours = 24
	// 回合节奏保持零值，失配同步翻回，便于断言
	cfg.Game.Session.IdleTimeout = time.Minute
	cfg.Game.Session.MaxSessions = 10

	router := NewRouter(db, cfg, zap.NewNop())
	t.Cleanup(func() {
		router.Shutdown(context.Background())
	})
	return router
}

// doJSON 发送JSON请求，token非空时携带Bearer认证
func doJSON(r *Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.GetEngine().ServeHTTP(w, req)
	return w
}

// registerTestUser 注册用户并返回访问令牌
func registerTestUser(t *testing.T, r *Router) string {
	t.Helper()
	username := fmt.Sprintf("player_%d", time.Now().UnixNano())
	w := doJSON(r, "POST", "/api/v1/auth/register", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestAuthFlow(t *testing.T) {
	router := newTestRouter(t)

	username := fmt.Sprintf("auth_user_%d", time.Now().UnixNano())

	// 注册
	w := doJSON(router, "POST", "/api/v1/auth/register", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 重复注册同名用户失败
	w = doJSON(router, "POST", "/api/v1/auth/register", "", map[string]string{
		"username":         username,
		"email":            "other_" + username + "@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 登录
	w = doJSON(router, "POST", "/api/v1/auth/login", "", map[string]string{
		"account":  username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var loginResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResp))
	assert.Equal(t, "Bearer", loginResp.TokenType)

	// 用令牌访问用户信息
	w = doJSON(router, "GET", "/api/v1/auth/profile", loginResp.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 密码错误登录失败
	w = doJSON(router, "POST", "/api/v1/auth/login", "", map[string]string{
		"account":  username,
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGameFlow(t *testing.T) {
	router := newTestRouter(t)
	token := registerTestUser(t, router)

	// 创建本地双人对局
	w := doJSON(router, "POST", "/api/v1/games", token, map[string]string{
		"mode":       "local",
		"match_type": "rank",
		"board_size": "4x4",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var info struct {
		SessionID string `json:"session_id"`
		Mode      string `json:"mode"`
		Board     struct {
			BoardSize string     `json:"board_size"`
			Cards     []struct{} `json:"cards"`
		} `json:"board"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.NotEmpty(t, info.SessionID)
	assert.Equal(t, "local", info.Mode)
	assert.Equal(t, "4x4", info.Board.BoardSize)
	assert.Len(t, info.Board.Cards, 16)

	gamePath := "/api/v1/games/" + info.SessionID

	// 翻开第一张牌
	w = doJSON(router, "POST", gamePath+"/flip", token, map[string]interface{}{
		"seat":     "player_1",
		"position": 0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var flipResp struct {
		Position     int  `json:"position"`
		PairResolved bool `json:"pair_resolved"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flipResp))
	assert.Equal(t, 0, flipResp.Position)
	assert.False(t, flipResp.PairResolved)

	// 未轮到的座位翻牌被拒绝
	w = doJSON(router, "POST", gamePath+"/flip", token, map[string]interface{}{
		"seat":     "player_2",
		"position": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 提示
	w = doJSON(router, "GET", gamePath+"/hint", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 暂停与继续
	w = doJSON(router, "POST", gamePath+"/pause", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, "POST", gamePath+"/resume", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 查询对局状态
	w = doJSON(router, "GET", gamePath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 结束对局后再查询返回404
	w = doJSON(router, "DELETE", gamePath, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, "GET", gamePath, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGameHistoryAndStats(t *testing.T) {
	router := newTestRouter(t)
	token := registerTestUser(t, router)

	// 创建一局并立即结束，历史里应能看到记录
	w := doJSON(router, "POST", "/api/v1/games", token, map[string]string{
		"mode":       "local",
		"match_type": "color",
		"board_size": "4x4",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var info struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))

	w = doJSON(router, "DELETE", "/api/v1/games/"+info.SessionID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "GET", "/api/v1/games/history?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var historyResp struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &historyResp))
	assert.NotEmpty(t, historyResp.Data)

	w = doJSON(router, "GET", "/api/v1/games/stats", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUnauthorizedAccess(t *testing.T) {
	router := newTestRouter(t)

	// 无令牌
	w := doJSON(router, "POST", "/api/v1/games", "", map[string]string{
		"mode":       "local",
		"match_type": "rank",
		"board_size": "4x4",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 伪造令牌
	w = doJSON(router, "GET", "/api/v1/games/history", "not-a-real-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvalidRequests(t *testing.T) {
	router := newTestRouter(t)
	token := registerTestUser(t, router)

	// 非法模式
	w := doJSON(router, "POST", "/api/v1/games", token, map[string]string{
		"mode":       "telepathy",
		"match_type": "rank",
		"board_size": "4x4",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 非法座位
	w = doJSON(router, "POST", "/api/v1/games", token, map[string]string{
		"mode":       "local",
		"match_type": "rank",
		"board_size": "4x4",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var info struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))

	w = doJSON(router, "POST", "/api/v1/games/"+info.SessionID+"/flip", token, map[string]interface{}{
		"seat":     "player_3",
		"position": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 不存在的对局
	w = doJSON(router, "GET", "/api/v1/games/no-such-session", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// profileUser 取当前登录用户的资料
func profileUser(t *testing.T, r *Router, token string) map[string]interface{} {
	t.Helper()
	w := doJSON(r, "GET", "/api/v1/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		User map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.User
}

func TestSessionManagement(t *testing.T) {
	router := newTestRouter(t)
	token := registerTestUser(t, router)
	user := profileUser(t, router, token)

	// 再登录一次产生第二个会话
	w := doJSON(router, "POST", "/api/v1/auth/login", "", map[string]string{
		"account":  user["username"].(string),
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, "GET", "/api/v1/auth/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var listResp struct {
		Data []struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Data, 2)

	// 撤销最近一次登录的会话，注册时拿到的令牌仍可用
	w = doJSON(router, "DELETE", "/api/v1/auth/sessions/"+listResp.Data[0].SessionID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 撤销不存在的会话
	w = doJSON(router, "DELETE", "/api/v1/auth/sessions/no-such-session", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 撤销全部会话后当前令牌随之失效
	w = doJSON(router, "DELETE", "/api/v1/auth/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(router, "GET", "/api/v1/auth/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserLookupAndGames(t *testing.T) {
	router := newTestRouter(t)
	token := registerTestUser(t, router)
	user := profileUser(t, router, token)
	username := user["username"].(string)
	userID := fmt.Sprintf("%v", int64(user["id"].(float64)))

	// 按用户名查找
	w := doJSON(router, "GET", "/api/v1/users/lookup?username="+username, token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 不存在的用户名
	w = doJSON(router, "GET", "/api/v1/users/lookup?username=nobody", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 缺少查询参数
	w = doJSON(router, "GET", "/api/v1/users/lookup", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 公开资料
	w = doJSON(router, "GET", "/api/v1/users/"+userID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 对局历史分页
	w = doJSON(router, "GET", "/api/v1/users/"+userID+"/games?page=1&page_size=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pageResp struct {
		Total    int64 `json:"total"`
		PageSize int   `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pageResp))
	assert.Equal(t, int64(0), pageResp.Total)
	assert.Equal(t, 5, pageResp.PageSize)
}

func TestAdminEndpoints(t *testing.T) {
	router := newTestRouter(t)
	adminToken := registerTestUser(t, router)
	admin := profileUser(t, router, adminToken)

	playerToken := registerTestUser(t, router)
	player := profileUser(t, router, playerToken)
	playerID := fmt.Sprintf("%v", int64(player["id"].(float64)))

	// 普通用户禁止访问管理接口
	w := doJSON(router, "GET", "/api/v1/admin/users", playerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 提升为管理员
	require.NoError(t, router.db.Model(&models.User{}).
		Where("id = ?", uint(admin["id"].(float64))).
		Update("role", "admin").Error)

	w = doJSON(router, "GET", "/api/v1/admin/users?page=1&page_size=10", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var listResp struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, int64(2), listResp.Total)

	// 更新用户昵称
	w = doJSON(router, "PUT", "/api/v1/admin/users/"+playerID, adminToken, map[string]string{
		"nickname": "新昵称",
	})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 封禁后该用户无法登录
	w = doJSON(router, "PUT", "/api/v1/admin/users/"+playerID+"/status", adminToken, map[string]string{
		"status": "banned",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, "POST", "/api/v1/auth/login", "", map[string]string{
		"account":  player["username"].(string),
		"password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 非法状态值
	w = doJSON(router, "PUT", "/api/v1/admin/users/"+playerID+"/status", adminToken, map[string]string{
		"status": "vaporized",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFoundRoute(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(router, "GET", "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp["code"])
}
