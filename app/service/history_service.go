package service

import (
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"

	"gorm.io/gorm"
)

// HistoryService 把终结状态的条目写入下载历史归档
type HistoryService struct {
	db     *gorm.DB
	logger *logger.Logger
}

// NewHistoryService 创建历史归档服务。db 为 nil 时服务退化为空操作
// （历史功能被配置关闭）。
func NewHistoryService(db *gorm.DB, log *logger.Logger) *HistoryService {
	return &HistoryService{db: db, logger: log}
}

// Record 写入一条归档记录
func (s *HistoryService) Record(rec *model.DownloadRecord) {
	if s.db == nil {
		return
	}
	if err := s.db.Create(rec).Error; err != nil {
		// 归档失败不影响运行结果
		s.logger.Warnf("写入下载历史失败: %v", err)
	}
}

// Recent 返回最近 limit 条归档记录（供状态接口展示）
func (s *HistoryService) Recent(limit int) []model.DownloadRecord {
	if s.db == nil {
		return nil
	}
	var records []model.DownloadRecord
	if err := s.db.Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		s.logger.Warnf("读取下载历史失败: %v", err)
		return nil
	}
	return records
}
