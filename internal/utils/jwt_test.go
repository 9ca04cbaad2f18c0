package utils

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager("test-secret-key", 1*time.Hour, 7*24*time.Hour)
}

// 测试访问令牌签发与验证的完整往返
func (suite *JWTTestSuite) TestAccessTokenRoundTrip() {
	token, err := suite.manager.GenerateAccessToken(123, "testuser", "test@example.com", "session-123")
	suite.NoError(err)
	suite.NotEmpty(token)

	claims, err := suite.manager.ValidateToken(token)
	suite.NoError(err)
	suite.Equal(uint(123), claims.UserID)
	suite.Equal("testuser", claims.Username)
	suite.Equal("test@example.com", claims.Email)
	suite.Equal("session-123", claims.SessionID)
	suite.Equal(TokenTypeAccess, claims.TokenType)

	// 标准声明
	suite.Equal("memory-game", claims.Issuer)
	suite.Equal("testuser", claims.Subject)
	suite.NotNil(claims.IssuedAt)
	suite.NotNil(claims.ExpiresAt)
	suite.Greater(claims.ExpiresAt.Unix(), claims.IssuedAt.Unix())
}

// 刷新令牌不携带用户名与邮箱
func (suite *JWTTestSuite) TestRefreshTokenRoundTrip() {
	token, err := suite.manager.GenerateRefreshToken(456, "session-456")
	suite.NoError(err)

	claims, err := suite.manager.ValidateToken(token)
	suite.NoError(err)
	suite.Equal(uint(456), claims.UserID)
	suite.Equal("session-456", claims.SessionID)
	suite.Empty(claims.Username)
	suite.Equal(TokenTypeRefresh, claims.TokenType)
}

func (suite *JWTTestSuite) TestValidateRejectsBadTokens() {
	cases := []struct {
		name  string
		token string
	}{
		{"格式错误", "invalid.token.format"},
		{"空字符串", ""},
	}
	for _, tc := range cases {
		claims, err := suite.manager.ValidateToken(tc.token)
		suite.Error(err, tc.name)
		suite.Nil(claims, tc.name)
	}

	// 其他密钥签发的令牌
	other := NewJWTManager("wrong-secret", time.Hour, 24*time.Hour)
	forged, _ := other.GenerateAccessToken(1, "user", "email", "session")
	claims, err := suite.manager.ValidateToken(forged)
	suite.Error(err)
	suite.Nil(claims)
}

func (suite *JWTTestSuite) TestValidateRejectsExpiredToken() {
	expired := NewJWTManager("test-secret-key", -time.Hour, -time.Hour)
	token, _ := expired.GenerateAccessToken(111, "expired", "expired@test.com", "session")

	claims, err := suite.manager.ValidateToken(token)
	suite.Error(err)
	suite.Nil(claims)
}

// 用刷新令牌换取新的访问令牌
func (suite *JWTTestSuite) TestRefreshAccessToken() {
	refreshToken, _ := suite.manager.GenerateRefreshToken(222, "session-222")

	newToken, err := suite.manager.RefreshAccessToken(refreshToken, "refreshuser", "refresh@example.com")
	suite.NoError(err)

	claims, err := suite.manager.ValidateToken(newToken)
	suite.NoError(err)
	suite.Equal(uint(222), claims.UserID)
	suite.Equal("refreshuser", claims.Username)
	suite.Equal("session-222", claims.SessionID)
	suite.Equal(TokenTypeAccess, claims.TokenType)
}

// 访问令牌不能充当刷新令牌
func (suite *JWTTestSuite) TestRefreshRejectsAccessToken() {
	accessToken, _ := suite.manager.GenerateAccessToken(1, "user", "email", "session")

	newToken, err := suite.manager.RefreshAccessToken(accessToken, "user", "email")
	suite.Error(err)
	suite.Empty(newToken)

	newToken, err = suite.manager.RefreshAccessToken("invalid.token", "user", "email")
	suite.Error(err)
	suite.Empty(newToken)
}

func (suite *JWTTestSuite) TestGetTokenExpiry() {
	suite.Equal(1*time.Hour, suite.manager.GetTokenExpiry(TokenTypeAccess))
	suite.Equal(7*24*time.Hour, suite.manager.GetTokenExpiry(TokenTypeRefresh))
	// 未知类型按访问令牌处理
	suite.Equal(1*time.Hour, suite.manager.GetTokenExpiry("unknown"))
}

// 空参数也能签发合法令牌，校验交给上层
func (suite *JWTTestSuite) TestEmptyClaimFields() {
	token, err := suite.manager.GenerateAccessToken(1, "", "", "")
	suite.NoError(err)

	claims, err := suite.manager.ValidateToken(token)
	suite.NoError(err)
	suite.Equal(uint(1), claims.UserID)
	suite.Empty(claims.Username)
}

func (suite *JWTTestSuite) TestConcurrentTokenGeneration() {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			token, err := suite.manager.GenerateAccessToken(
				uint(id),
				fmt.Sprintf("user%d", id),
				fmt.Sprintf("user%d@test.com", id),
				fmt.Sprintf("session-%d", id),
			)
			suite.NoError(err)
			suite.NotEmpty(token)
		}(i)
	}
	wg.Wait()
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
