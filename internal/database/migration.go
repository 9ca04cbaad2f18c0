package database

import (
	"fmt"

	"github.com/wfunc/memory-game/internal/logger"
	"github.com/wfunc/memory-game/internal/models"
	"go.uber.org/zap"
)

// migrationModels 迁移范围内的全部模型，新模型在这里登记
var migrationModels = []interface{}{
	// 用户相关
	&models.User{},
	&models.UserAuth{},
	&models.UserSession{},

	// 对局相关
	&models.GameSession{},
	&models.MatchResult{},
	&models.MoveRecord{},
	&models.GameState{},
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	CleanupStaleLocks()

	// SQLite文件库要拿迁移锁，避免多个进程同时迁移
	if dbPath := getDBPath(); dbPath != "" {
		lock, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("获取迁移锁失败", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lock)
	}

	logger.Info("开始数据库迁移...")

	// SQLite重建表时外键约束会碍事，迁移期间先关掉
	if DB.Dialector.Name() == "sqlite" {
		DB.Exec("PRAGMA foreign_keys = OFF")
		defer DB.Exec("PRAGMA foreign_keys = ON")
	}

	if err := migrateModels(); err != nil {
		return err
	}
	createIndexes()

	logger.Info("数据库迁移完成")
	return nil
}

func migrateModels() error {
	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err))
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}
	return nil
}

// createIndexes 创建查询热路径上的索引，失败只告警不中断
func createIndexes() {
	for _, idx := range []struct {
		name  string
		table string
		col   string
	}{
		{"idx_users_username", "users", "username"},
		{"idx_game_sessions_user_id", "game_sessions", "user_id"},
		{"idx_game_sessions_status", "game_sessions", "status"},
		{"idx_move_records_session_id", "move_records", "session_id"},
		{"idx_match_results_session_id", "match_results", "session_id"},
	} {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", idx.name, idx.table, idx.col)
		if err := DB.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx.name), zap.Error(err))
		}
	}
	logger.Info("数据库索引创建完成")
}

// DropAllTables 清空整个库，只给测试环境用
func DropAllTables() error {
	if _, err := sqlConn(); err != nil {
		return err
	}

	var tables []string
	if err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables).Error; err != nil {
		return err
	}

	for _, table := range tables {
		if err := DB.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
			logger.Error("清除数据表失败", zap.String("table", table), zap.Error(err))
			return err
		}
	}
	logger.Info("数据表已全部清除")
	return nil
}
