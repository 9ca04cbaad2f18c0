package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	System   SystemConfig   `mapstructure:"system"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Mode            string        `mapstructure:"mode"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库连接与连接池配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// GameConfig 对局配置
type GameConfig struct {
	Memory  MemoryGameConfig `mapstructure:"memory"`
	AI      AIConfig         `mapstructure:"ai"`
	Session SessionConfig    `mapstructure:"session"`
	Turn    TurnTimingConfig `mapstructure:"turn"`
}

// MemoryGameConfig 翻牌对局配置
type MemoryGameConfig struct {
	DefaultBoardSize string   `mapstructure:"default_board_size"`
	DefaultMatchType string   `mapstructure:"default_match_type"`
	BoardSizes       []string `mapstructure:"board_sizes"`
	MatchTypes       []string `mapstructure:"match_types"`
}

// AIConfig AI对手配置
type AIConfig struct {
	DefaultDifficulty string        `mapstructure:"default_difficulty"`
	DecisionTimeout   time.Duration `mapstructure:"decision_timeout"`
}

// SessionConfig 对局会话配置
type SessionConfig struct {
	MaxSessions     int           `mapstructure:"max_sessions"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// TurnTimingConfig 回合节奏配置
type TurnTimingConfig struct {
	FlipStagger     time.Duration `mapstructure:"flip_stagger"`     // AI两次翻牌之间的间隔
	MismatchDelay   time.Duration `mapstructure:"mismatch_delay"`   // 不匹配后翻回背面前的展示时间
	MatchDelay      time.Duration `mapstructure:"match_delay"`      // 匹配成功后继续行动前的间隔
	WatchdogTimeout time.Duration `mapstructure:"watchdog_timeout"` // 单回合最长结算时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件切割配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	Compress   bool   `mapstructure:"compress"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	JWT       JWTConfig       `mapstructure:"jwt"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// JWTConfig 令牌签发配置
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	RefreshHours int    `mapstructure:"refresh_hours"`
	ExpireHours  int    `mapstructure:"expire_hours"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	v    *viper.Viper
	cfg  *Config
	mu   sync.RWMutex
	once sync.Once
)

// bindSource 指定配置文件来源，未指定路径时走默认搜索
func bindSource(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
}

// Init 加载配置。优先级：环境变量 > 配置文件 > 默认值。
// 配置文件缺失不算错误，使用默认配置启动。
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()
		bindSource(v, configPath)

		v.SetEnvPrefix("MEMORY_GAME")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		cfg = &Config{}
		err = v.Unmarshal(cfg)
	})
	return err
}

// setDefaults 登记全部默认配置值
func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		// 服务器
		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.mode":             "development",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.shutdown_timeout": "10s",

		// 数据库
		"database.driver":            "sqlite",
		"database.dsn":               "./data/memory-game.db",
		"database.max_idle_conns":    10,
		"database.max_open_conns":    100,
		"database.conn_max_lifetime": "1h",
		"database.log_level":         "info",
		"database.auto_migrate":      true,

		// 对局
		"game.memory.default_board_size": "4x4",
		"game.memory.default_match_type": "color",
		"game.memory.board_sizes":        []string{"4x4", "4x6", "6x6"},
		"game.memory.match_types":        []string{"color", "rank", "suit"},
		"game.ai.default_difficulty":     "medium",
		"game.ai.decision_timeout":       "10s",
		"game.session.max_sessions":      1000,
		"game.session.idle_timeout":      "30m",
		"game.session.cleanup_interval":  "5m",
		"game.turn.flip_stagger":         "600ms",
		"game.turn.mismatch_delay":       "1.5s",
		"game.turn.match_delay":          "1s",
		"game.turn.watchdog_timeout":     "30s",

		// 日志
		"log.level":            "info",
		"log.format":           "json",
		"log.output":           "both",
		"log.file.path":        "./logs",
		"log.file.filename":    "memory-game.log",
		"log.file.max_size":    100,
		"log.file.max_age":     30,
		"log.file.max_backups": 7,
		"log.file.compress":    true,

		// 安全
		"security.jwt.secret":                     "memory-game-dev-secret",
		"security.jwt.expire_hours":               24,
		"security.jwt.refresh_hours":              168,
		"security.rate_limit.enabled":             false,
		"security.rate_limit.requests_per_minute": 120,
		"security.rate_limit.burst":               20,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Get 获取当前配置快照
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化，重载成功后回调
func Watch(callback func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		next := &Config{}
		if err := v.Unmarshal(next); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = next
		mu.Unlock()

		if callback != nil {
			callback(next)
		}
	})
	v.WatchConfig()
}
