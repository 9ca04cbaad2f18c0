package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/wfunc/memory-game/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// state 进程级日志状态，Init之后只读
type state struct {
	root    *zap.Logger
	modules map[string]*zap.Logger
}

var (
	mu      sync.RWMutex
	current *state
	initial sync.Once
)

// Init 初始化日志系统，重复调用只生效一次
func Init(cfg *config.LogConfig) error {
	var initErr error
	initial.Do(func() {
		st, err := build(cfg)
		if err != nil {
			initErr = err
			return
		}
		mu.Lock()
		current = st
		mu.Unlock()
	})
	return initErr
}

func build(cfg *config.LogConfig) (*state, error) {
	enc := encoderFor(cfg.Format)
	level := levelFor(cfg.Level)

	cores, err := sinkCores(cfg, enc, level)
	if err != nil {
		return nil, err
	}

	root := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	// 按模块覆盖日志级别，只输出到stdout
	modules := make(map[string]*zap.Logger, len(cfg.Modules))
	for name, lv := range cfg.Modules {
		core := zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), levelFor(lv))
		modules[name] = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return &state{root: root, modules: modules}, nil
}

// encoderFor json输出用于采集，其余按带颜色的控制台格式
func encoderFor(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.MessageKey = "msg"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.SecondsDurationEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

func levelFor(s string) zapcore.Level {
	if lv, err := zapcore.ParseLevel(s); err == nil {
		return lv
	}
	return zapcore.InfoLevel
}

// sinkCores 组装输出目标，file与both模式下错误日志单独落盘
func sinkCores(cfg *config.LogConfig, enc zapcore.Encoder, level zapcore.Level) ([]zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output == "stdout" || cfg.Output == "both" {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level))
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return nil, err
		}
		cores = append(cores,
			zapcore.NewCore(enc, zapcore.AddSync(rotatedFile(cfg, cfg.File.Filename)), level),
			zapcore.NewCore(enc, zapcore.AddSync(rotatedFile(cfg, "error.log")), zapcore.ErrorLevel),
		)
	}

	return cores, nil
}

// rotatedFile 由lumberjack负责按大小和时间轮转
func rotatedFile(cfg *config.LogConfig, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.File.Path, name),
		MaxSize:    cfg.File.MaxSize,
		MaxAge:     cfg.File.MaxAge,
		MaxBackups: cfg.File.MaxBackups,
		Compress:   cfg.File.Compress,
	}
}

func snapshot() *state {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// GetLogger 获取全局日志器，未初始化时退回zap生产配置
func GetLogger() *zap.Logger {
	if st := snapshot(); st != nil {
		return st.root
	}
	fallback, _ := zap.NewProduction()
	return fallback
}

// WithModule 获取模块日志器，未单独配置的模块回落到全局日志器
func WithModule(module string) *zap.Logger {
	if st := snapshot(); st != nil {
		if l, ok := st.modules[module]; ok {
			return l
		}
	}
	return GetLogger()
}

// Sync 刷新日志缓冲区
func Sync() error {
	if st := snapshot(); st != nil {
		return st.root.Sync()
	}
	return nil
}

func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// Fatal 输出致命日志并退出进程
func Fatal(msg string, fields ...zap.Field) { GetLogger().Fatal(msg, fields...) }
