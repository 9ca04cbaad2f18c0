package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wfunc/memory-game/internal/logger"
	"go.uber.org/zap"
)

const (
	lockRetryInterval = time.Second
	lockMaxRetries    = 30
	lockStaleAfter    = 5 * time.Minute
	staleSweepAfter   = 10 * time.Minute
)

// removeIfStale 删除超龄的锁文件，返回是否做了删除
func removeIfStale(path string, maxAge time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) <= maxAge {
		return false
	}
	os.Remove(path)
	return true
}

// acquireMigrationLock 以独占文件方式获取迁移锁，
// 避免多个进程同时迁移同一个SQLite文件
func acquireMigrationLock(dbPath string) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < lockMaxRetries; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			logger.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 持有进程崩溃会留下旧锁，超龄直接删除
		if removeIfStale(lockPath, lockStaleAfter) {
			logger.Warn("迁移锁文件过期，已删除", zap.String("lock", lockPath))
			continue
		}

		logger.Debug("等待迁移锁...", zap.Int("attempt", i+1))
		time.Sleep(lockRetryInterval)
	}

	return nil, fmt.Errorf("无法获取迁移锁，可能有其他进程正在执行迁移")
}

// releaseMigrationLock 释放迁移锁，入参为nil时忽略
func releaseMigrationLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}
	path := lockFile.Name()
	lockFile.Close()
	if err := os.Remove(path); err == nil {
		logger.Debug("释放迁移锁", zap.String("lock", path))
	}
}

// getDBPath 获取SQLite数据库文件路径，非SQLite返回空串
func getDBPath() string {
	const defaultPath = "./data/memory-game.db"

	if DB == nil {
		return defaultPath
	}

	switch DB.Dialector.Name() {
	case "sqlite", "sqlite3":
		sqlDB, err := DB.DB()
		if err != nil {
			return defaultPath
		}
		// database_list返回 seq/name/file 三列，file为空表示内存库
		var (
			seq        int
			name, file string
		)
		if err := sqlDB.QueryRow("PRAGMA database_list").Scan(&seq, &name, &file); err == nil && file != "" {
			return file
		}
		return defaultPath
	default:
		return ""
	}
}

// CleanupStaleLocks 清理遗留的超龄锁文件
func CleanupStaleLocks() {
	patterns := []string{
		"./data/*.lock",
		"./data/memory-game.db*.lock",
		"./*.lock",
	}

	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, lockFile := range matches {
			if removeIfStale(lockFile, staleSweepAfter) {
				logger.Info("清理过期锁文件", zap.String("file", lockFile))
			}
		}
	}
}
