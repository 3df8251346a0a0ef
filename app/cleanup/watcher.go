package cleanup

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"

	"github.com/fsnotify/fsnotify"
)

// ArtifactWatcher 监控条目工作目录，把出现的临时后缀文件自动登记到
// 清理管理器。yt-dlp 会在目标文件旁产生分片等副产品文件，协调器自身
// 无法枚举它们，靠文件系统事件兜底。
type ArtifactWatcher struct {
	manager *Manager
	logger  *logger.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	dirs     map[string]string // 监控目录 → 归属条目
	watching bool
}

// 临时产物的识别后缀
var tempSuffixes = []string{".v.mp4", ".a.m4a", ".part", ".ytdl", ".frag", ".tmp"}

// NewArtifactWatcher 创建临时产物监控器
func NewArtifactWatcher(manager *Manager, log *logger.Logger) (*ArtifactWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}
	return &ArtifactWatcher{
		manager: manager,
		logger:  log,
		watcher: w,
		stopCh:  make(chan struct{}),
		dirs:    make(map[string]string),
	}, nil
}

// WatchItem 开始监控某个条目的工作目录。目录必须已存在。
// 先前条目的目录保持监控，迟到的副产品文件仍按目录归属到正确条目。
func (w *ArtifactWatcher) WatchItem(item, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("添加监控目录失败: %s: %w", dir, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirs[dir] = item
	if !w.watching {
		w.watching = true
		w.wg.Add(1)
		go w.loop()
	}
	return nil
}

// UnwatchDir 停止监控一个目录
func (w *ArtifactWatcher) UnwatchDir(dir string) {
	_ = w.watcher.Remove(dir)
	w.mu.Lock()
	delete(w.dirs, dir)
	w.mu.Unlock()
}

// Stop 停止监控
func (w *ArtifactWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.watching = false
}

func (w *ArtifactWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			if !IsTempArtifact(event.Name) {
				continue
			}
			w.mu.Lock()
			item := w.dirs[filepath.Dir(event.Name)]
			w.mu.Unlock()
			if item == "" {
				continue
			}
			w.manager.Register(item, event.Name)
			w.logger.Debugf("登记临时产物: %s -> %s", item, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("文件监控错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// IsTempArtifact 判断文件名是否是已知的临时产物后缀
func IsTempArtifact(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
