package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "memory-game"

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// 令牌校验失败的哨兵错误
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// JWTClaims 业务声明加标准声明
type JWTClaims struct {
	UserID    uint   `json:"user_id"`
	SessionID string `json:"session_id"`
	TokenType string `json:"token_type"` // access or refresh
	Username  string `json:"username"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// JWTManager 负责令牌的签发与校验
type JWTManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:     []byte(secretKey),
		accessTTL:  accessExpiry,
		refreshTTL: refreshExpiry,
	}
}

// sign 按HS256签发令牌
func (j *JWTManager) sign(claims *JWTClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// keyFunc 仅接受HMAC族签名算法
func (j *JWTManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return j.secret, nil
}

// GenerateAccessToken 生成访问令牌
func (j *JWTManager) GenerateAccessToken(userID uint, username, email, sessionID string) (string, error) {
	now := time.Now()

	return j.sign(&JWTClaims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: TokenTypeAccess,
		Username:  username,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   username,
		},
	})
}

// GenerateRefreshToken 生成刷新令牌，只携带用户ID与会话ID
func (j *JWTManager) GenerateRefreshToken(userID uint, sessionID string) (string, error) {
	now := time.Now()

	return j.sign(&JWTClaims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	})
}

// ValidateToken 验证令牌签名与有效期
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if exp := claims.ExpiresAt; exp != nil && exp.Before(time.Now()) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// RefreshAccessToken 使用刷新令牌签发新的访问令牌
func (j *JWTManager) RefreshAccessToken(refreshToken string, username, email string) (string, error) {
	claims, err := j.ValidateToken(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", errors.New("not a refresh token")
	}

	return j.GenerateAccessToken(claims.UserID, username, email, claims.SessionID)
}

// GetTokenExpiry 按令牌类型返回有效期，未知类型按访问令牌处理
func (j *JWTManager) GetTokenExpiry(tokenType string) time.Duration {
	if tokenType == TokenTypeRefresh {
		return j.refreshTTL
	}
	return j.accessTTL
}
