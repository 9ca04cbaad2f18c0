package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	saltLength      = 16
	sessionIDLength = 32
)

var (
	ErrInvalidHashFormat  = errors.New("invalid encoded hash format")
	ErrUnsupportedHash    = errors.New("unsupported hash algorithm")
	ErrIncompatibleArgon2 = errors.New("incompatible argon2 version")
)

// PasswordConfig Argon2id参数
type PasswordConfig struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultPasswordConfig 默认参数，64MB内存、单轮、4线程
var DefaultPasswordConfig = &PasswordConfig{
	Memory:  64 * 1024,
	Time:    1,
	Threads: 4,
	KeyLen:  32,
}

// HashPassword 用默认参数哈希密码
func HashPassword(password string) (string, error) {
	return HashPasswordWithConfig(password, DefaultPasswordConfig)
}

// HashPasswordWithConfig 使用指定配置哈希密码，
// 结果形如 $argon2id$v=19$m=65536,t=1,p=4$salt$hash
func HashPasswordWithConfig(password string, config *PasswordConfig) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, config.Time, config.Memory, config.Threads, config.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		config.Memory, config.Time, config.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// decodeHash 解析编码的哈希串，返回参数、盐和哈希值
func decodeHash(encoded string) (*PasswordConfig, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, nil, ErrInvalidHashFormat
	}
	if parts[1] != "argon2id" {
		return nil, nil, nil, ErrUnsupportedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, err
	}
	if version != argon2.Version {
		return nil, nil, nil, ErrIncompatibleArgon2
	}

	config := &PasswordConfig{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&config.Memory, &config.Time, &config.Threads); err != nil {
		return nil, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, err
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, err
	}
	config.KeyLen = uint32(len(hash))

	return config, salt, hash, nil
}

// VerifyPassword 验证密码，恒定时间比较
func VerifyPassword(password, encoded string) (bool, error) {
	config, salt, hash, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	comparison := argon2.IDKey([]byte(password), salt,
		config.Time, config.Memory, config.Threads, config.KeyLen)

	return subtle.ConstantTimeCompare(hash, comparison) == 1, nil
}

// GenerateRandomString 生成指定长度的URL安全随机字符串
func GenerateRandomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base64.URLEncoding.EncodeToString(buf)
	return encoded[:length], nil
}

// GenerateSessionID 生成登录会话ID
func GenerateSessionID() (string, error) {
	return GenerateRandomString(sessionIDLength)
}
