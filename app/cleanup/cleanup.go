package cleanup

import (
	"os"
	"sync"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
)

// Manager 登记运行期间产生的临时产物并按策略清理。
// 运行完全成功时删除已完成条目的产物；运行终局失败时只删除
// 不可恢复条目的产物，可续传条目的半成品保留给下次运行。
type Manager struct {
	logger *logger.Logger

	mu        sync.Mutex
	artifacts map[string][]string // 条目 -> 临时文件列表
}

// NewManager 创建清理管理器
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		logger:    log,
		artifacts: make(map[string][]string),
	}
}

// Register 登记一个条目的临时产物
func (m *Manager) Register(item, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.artifacts[item] {
		if p == path {
			return
		}
	}
	m.artifacts[item] = append(m.artifacts[item], path)
}

// Deregister 注销一个临时产物（文件已被晋升或合并消耗时调用）
func (m *Manager) Deregister(item, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.artifacts[item]
	for i, p := range list {
		if p == path {
			m.artifacts[item] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Artifacts 返回条目当前登记的产物（拷贝）
func (m *Manager) Artifacts(item string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.artifacts[item]...)
}

// SweepItem 删除单个条目的全部临时产物
func (m *Manager) SweepItem(item string) {
	m.mu.Lock()
	list := m.artifacts[item]
	delete(m.artifacts, item)
	m.mu.Unlock()

	for _, p := range list {
		m.removeFile(p)
	}
}

// SweepCompleted 运行完全成功后调用，清掉所有已完成条目的临时产物
func (m *Manager) SweepCompleted(completed []string) {
	for _, item := range completed {
		m.SweepItem(item)
	}
}

// SweepUnrecoverable 运行终局失败后调用：只删除不可恢复条目的产物，
// resumable 判定为 true 的条目产物原样保留
func (m *Manager) SweepUnrecoverable(resumable func(item string) bool) {
	m.mu.Lock()
	items := make([]string, 0, len(m.artifacts))
	for item := range m.artifacts {
		items = append(items, item)
	}
	m.mu.Unlock()

	for _, item := range items {
		if resumable(item) {
			m.logger.Infof("条目 %s 可续传，保留临时产物", item)
			continue
		}
		m.SweepItem(item)
	}
}

func (m *Manager) removeFile(path string) {
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warnf("删除临时文件失败: %s: %v", path, err)
		}
		return
	}
	m.logger.Infof("已删除临时文件: %s", path)
}
