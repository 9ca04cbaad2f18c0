package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB 全局数据库实例
var DB *gorm.DB

// 慢查询阈值
const slowQueryThreshold = time.Second

// openDialector 按驱动名选择方言
func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}
}

// parseGormLevel 将配置级别映射到GORM日志级别
func parseGormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	default:
		return gormlogger.Info
	}
}

// Init 初始化数据库连接并配置连接池
func Init(cfg *config.DatabaseConfig) error {
	dialector, err := openDialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger:                                   NewGormLogger(logger.GetLogger(), parseGormLevel(cfg.LogLevel)),
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: false,
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := sqlConn()
	if err != nil {
		return fmt.Errorf("获取数据库实例失败: %w", err)
	}

	// 连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("数据库连通性检查失败: %w", err)
	}

	logger.Info("数据库连接就绪",
		zap.String("driver", cfg.Driver),
		zap.Int("max_idle", cfg.MaxIdleConns),
		zap.Int("max_open", cfg.MaxOpenConns))
	return nil
}

// sqlConn 取底层sql.DB，未初始化时报错
func sqlConn() (*sql.DB, error) {
	if DB == nil {
		return nil, fmt.Errorf("数据库尚未初始化")
	}
	return DB.DB()
}

// Close 关闭数据库连接，未初始化时为空操作
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := sqlConn()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// IsConnected 检查数据库连接是否可用
func IsConnected() bool {
	sqlDB, err := sqlConn()
	return err == nil && sqlDB.Ping() == nil
}

// Transaction 在事务中执行fn
func Transaction(fn func(*gorm.DB) error) error {
	return DB.Transaction(fn)
}

// GormLogger 把GORM的日志输出转到zap
type GormLogger struct {
	logLevel gormlogger.LogLevel
	logger   *zap.Logger
}

// NewGormLogger 创建GORM日志适配器
func NewGormLogger(logger *zap.Logger, level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{logLevel: level, logger: logger}
}

// LogMode 调整日志级别，返回自身满足gorm的接口约定
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	l.logLevel = level
	return l
}

// printf 级别达标时转发到zap的格式化输出
func (l *GormLogger) printf(min gormlogger.LogLevel, emit func(string, ...interface{}), msg string, data []interface{}) {
	if l.logLevel >= min {
		emit(msg, data...)
	}
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(gormlogger.Info, l.logger.Sugar().Infof, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(gormlogger.Warn, l.logger.Sugar().Warnf, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(gormlogger.Error, l.logger.Sugar().Errorf, msg, data)
}

// Trace 记录SQL执行情况，超过阈值按慢查询告警
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	sql, rows := fc()
	elapsed := time.Since(begin)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		l.logger.Error("SQL执行错误", append(fields, zap.Error(err))...)
	case elapsed > slowQueryThreshold && l.logLevel >= gormlogger.Warn:
		l.logger.Warn("SQL执行缓慢", fields...)
	case l.logLevel >= gormlogger.Info:
		l.logger.Debug("SQL执行", fields...)
	}
}
