package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
)

// ErrCorrupted 状态文件存在但无法解析。
// 调用方必须把它当作独立错误向操作者报告，不允许静默回退到全新状态。
var ErrCorrupted = errors.New("状态文件已损坏")

// Store 负责运行状态的持久化。同一个状态文件同一时刻只允许
// 一个进程持有，不提供并发写保护。
type Store struct {
	path string
}

// New 创建状态存储
func New(path string) *Store {
	return &Store{path: path}
}

// Path 返回状态文件路径
func (s *Store) Path() string {
	return s.path
}

// Load 读取持久化状态。文件不存在时返回全新默认状态；
// 文件存在但内容非法时返回 ErrCorrupted。
func (s *Store) Load() (*model.RunState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewRunState(), nil
		}
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	}

	st := model.NewRunState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, s.path, err)
	}
	if st.Progress == nil {
		st.Progress = make(map[string]model.ItemStatus)
	}
	return st, nil
}

// Persist 原子写入状态：先写临时文件再重命名覆盖，
// 进程在任意时刻崩溃都不会留下半写的正式文件。
func (s *Store) Persist(st *model.RunState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入临时状态文件失败: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("替换状态文件失败: %w", err)
	}
	return nil
}

// Remove 删除状态文件（运行完全成功后调用）
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除状态文件失败: %w", err)
	}
	return nil
}
