package storage

import (
	"os"
	"path/filepath"
	"runtime"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 打开数据库连接并自动迁移；path 为空时使用平台默认路径
func Open(path string) (*gorm.DB, error) {
	if path == "" {
		p, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := autoMigrate(db); err != nil {
		_ = Close(db)
		return nil, err
	}
	return db, nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DefaultDBPath 获取跨平台的数据库文件路径
func DefaultDBPath() (string, error) {
	baseDir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "mediasniff", "data.db"), nil
}

func dataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		// %APPDATA%/mediasniff/data.db
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir, nil
		}
		return filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming"), nil
	case "darwin":
		// ~/Library/Application Support/mediasniff/data.db
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		// Linux: ~/.local/share/mediasniff/data.db
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// autoMigrate 自动迁移所有模型
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Setting{},
		&DeliveryRecord{},
	)
}
