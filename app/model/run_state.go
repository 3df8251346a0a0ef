package model

import (
	"strings"
	"time"
)

// ItemStatus 单个剧集/影片的下载状态
type ItemStatus string

// 状态常量
const (
	ItemStatusPending     ItemStatus = "pending"     // 等待中
	ItemStatusDownloading ItemStatus = "downloading" // 下载中
	ItemStatusCompleted   ItemStatus = "completed"   // 已完成
	ItemStatusFailed      ItemStatus = "failed"      // 失败
)

// Terminal 判断是否为终态。failed 条目在后续运行中会被重试，不算终态。
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted
}

// RunState 一次抓取运行的持久化状态，由 Run Controller 独占持有。
// 约定：同一个状态文件同一时刻只允许一个进程写入，不提供跨进程锁。
type RunState struct {
	SearchQuery   string                `json:"search_query"`
	SelectedTitle string                `json:"selected_title"`
	Language      string                `json:"language"`
	Season        string                `json:"season,omitempty"`
	Episodes      []string              `json:"episodes"`
	Progress      map[string]ItemStatus `json:"download_progress"`
	MediaDone     map[string][]string   `json:"media_completed,omitempty"`
	RunCompleted  bool                  `json:"run_completed"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// NewRunState 创建默认状态
func NewRunState() *RunState {
	now := time.Now()
	return &RunState{
		Progress:  make(map[string]ItemStatus),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetStatus 更新某个条目的状态并刷新完成标记。
// 不变量：Progress 的键集合永远是 Episodes 的子集。
func (s *RunState) SetStatus(item string, status ItemStatus) {
	if s.Progress == nil {
		s.Progress = make(map[string]ItemStatus)
	}
	if !s.hasEpisode(item) {
		return
	}
	s.Progress[item] = status
	s.RunCompleted = s.allCompleted()
	s.UpdatedAt = time.Now()
}

// MarkMediaDone 记录条目的某种媒体流已下载完成（临时文件落盘）。
// 条目进入 completed 终态后应调用 ClearMedia 清除，临时文件已被消费。
func (s *RunState) MarkMediaDone(item string, media string) {
	if !s.hasEpisode(item) {
		return
	}
	if s.MediaDone == nil {
		s.MediaDone = make(map[string][]string)
	}
	for _, m := range s.MediaDone[item] {
		if m == media {
			return
		}
	}
	s.MediaDone[item] = append(s.MediaDone[item], media)
	s.UpdatedAt = time.Now()
}

// IsMediaDone 判断条目的某种媒体流是否已下载完成
func (s *RunState) IsMediaDone(item string, media string) bool {
	for _, m := range s.MediaDone[item] {
		if m == media {
			return true
		}
	}
	return false
}

// ClearMedia 清除条目的媒体流下载记录
func (s *RunState) ClearMedia(item string) {
	delete(s.MediaDone, item)
}

// Status 返回条目当前状态，未记录时为 pending
func (s *RunState) Status(item string) ItemStatus {
	if st, ok := s.Progress[item]; ok {
		return st
	}
	return ItemStatusPending
}

// SetEpisodes 设置选中的剧集列表，并清除不在列表中的旧进度
func (s *RunState) SetEpisodes(episodes []string) {
	s.Episodes = episodes
	for k := range s.Progress {
		found := false
		for _, ep := range episodes {
			if ep == k {
				found = true
				break
			}
		}
		if !found {
			delete(s.Progress, k)
			delete(s.MediaDone, k)
		}
	}
	s.RunCompleted = s.allCompleted()
	s.UpdatedAt = time.Now()
}

// ResumePoint 返回第一个未完成的条目，全部完成时返回空串
func (s *RunState) ResumePoint() string {
	for _, ep := range s.Episodes {
		if !s.Status(ep).Terminal() {
			return ep
		}
	}
	return ""
}

// Matches 判断持久化状态是否与本次调用兼容（查询词一致即可续传）
func (s *RunState) Matches(query string) bool {
	return normalizeQuery(s.SearchQuery) == normalizeQuery(query)
}

func (s *RunState) hasEpisode(item string) bool {
	for _, ep := range s.Episodes {
		if ep == item {
			return true
		}
	}
	return false
}

func (s *RunState) allCompleted() bool {
	if len(s.Episodes) == 0 {
		return false
	}
	for _, ep := range s.Episodes {
		if s.Progress[ep] != ItemStatusCompleted {
			return false
		}
	}
	return true
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
