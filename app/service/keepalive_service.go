package service

import (
	"context"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/browser"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"

	"github.com/robfig/cron/v3"
)

// KeepaliveService 在长时间下载期间按计划把最新会话 Cookie 写回磁盘，
// 减少下次运行重新过验证的概率。
type KeepaliveService struct {
	cfg       config.KeepaliveConfig
	automator browser.Automator
	logger    *logger.Logger
	cron      *cron.Cron
}

// NewKeepaliveService 创建会话保活服务
func NewKeepaliveService(cfg config.KeepaliveConfig, automator browser.Automator, log *logger.Logger) *KeepaliveService {
	return &KeepaliveService{
		cfg:       cfg,
		automator: automator,
		logger:    log,
	}
}

// Start 启动定时刷新。未启用或 cron 表达式非法时记录并跳过。
func (s *KeepaliveService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.automator.FreshCookies(ctx); err != nil {
			s.logger.Warnf("会话保活刷新 Cookie 失败: %v", err)
			return
		}
		s.logger.Debugf("会话保活：已刷新 Cookie")
	})
	if err != nil {
		s.logger.Warnf("会话保活计划表达式非法 %q: %v", s.cfg.Schedule, err)
		s.cron = nil
		return
	}

	s.cron.Start()
	s.logger.Infof("会话保活服务已启动，计划: %s", s.cfg.Schedule)
}

// Stop 停止定时刷新
func (s *KeepaliveService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.logger.Info("会话保活服务已停止")
	}
}
