package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 打开下载历史数据库并迁移表结构。
// 句柄显式返回给调用方持有，不使用包级全局实例。
func Open(dbPath string, log *logger.Logger) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := db.AutoMigrate(&model.DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}

	log.Infof("下载历史数据库就绪: %s", dbPath)
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
