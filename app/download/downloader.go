package download

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"

	gocache "github.com/patrickmn/go-cache"
	"resty.dev/v3"
)

// Coordinator 驱动外部 yt-dlp 子进程完成单个媒体类型的下载。
// 进度事件通过 Progress 通道对外暴露，只做展示，不参与控制决策。
type Coordinator struct {
	cfg      config.DownloaderConfig
	binary   string
	logger   *logger.Logger
	progress chan model.ProgressEvent

	probe      *resty.Client
	probeCache *gocache.Cache
}

// New 创建下载协调器
func New(cfg config.DownloaderConfig, binary string, log *logger.Logger) *Coordinator {
	ttl := time.Duration(cfg.ProbeCacheTTLSec) * time.Second
	client := resty.New().
		SetTimeout(time.Duration(cfg.ProbeTimeoutSec)*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Referer", cfg.Referer)

	return &Coordinator{
		cfg:        cfg,
		binary:     binary,
		logger:     log,
		progress:   make(chan model.ProgressEvent, 64),
		probe:      client,
		probeCache: gocache.New(ttl, ttl*2),
	}
}

// Progress 进度事件流
func (c *Coordinator) Progress() <-chan model.ProgressEvent {
	return c.progress
}

// CloseProgress 结束进度流（运行收尾时调用一次）
func (c *Coordinator) CloseProgress() {
	close(c.progress)
}

// ShouldSkip 断点续传判定：状态已完成且临时文件仍然存在时跳过下载
func (c *Coordinator) ShouldSkip(task model.DownloadTask, recorded model.ItemStatus) bool {
	if !recorded.Terminal() {
		return false
	}
	if _, err := os.Stat(task.TempPath); err != nil {
		return false
	}
	return true
}

// Run 执行一个下载任务，内部按配置重试。返回的任务副本带有
// 最终状态与尝试次数；所有尝试失败时返回最后一次错误。
func (c *Coordinator) Run(ctx context.Context, task model.DownloadTask) (model.DownloadTask, error) {
	if task.URL == "" {
		task.Status = model.ItemStatusFailed
		return task, fmt.Errorf("下载任务缺少候选流地址")
	}

	c.probeCandidate(ctx, task.URL)

	retryDelay := time.Duration(c.cfg.RetryDelaySeconds) * time.Second
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		task.Attempts = attempt
		err := c.runOnce(ctx, task)
		if err == nil {
			task.Status = model.ItemStatusCompleted
			c.logger.Infof("下载完成: %s", task.TempPath)
			return task, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warnf("yt-dlp 第 %d/%d 次尝试失败: %v", attempt, c.cfg.Retries, err)
		if attempt < c.cfg.Retries {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				task.Status = model.ItemStatusFailed
				return task, ctx.Err()
			}
		}
	}

	task.Status = model.ItemStatusFailed
	return task, fmt.Errorf("下载 %s 流失败（共尝试 %d 次）: %w", task.Type, task.Attempts, lastErr)
}

// runOnce 启动一次 yt-dlp 子进程并等待退出，同时消费进度输出
func (c *Coordinator) runOnce(ctx context.Context, task model.DownloadTask) error {
	args := append([]string{}, c.cfg.BaseFlags...)
	args = append(args,
		"--concurrent-fragments", strconv.Itoa(c.cfg.ConcurrentFragments),
		"--user-agent", c.cfg.UserAgent,
		"--referer", c.cfg.Referer,
		"-o", task.TempPath,
		task.URL,
	)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("创建输出管道失败: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 yt-dlp 失败: %w", err)
	}

	// 进度消费与等待退出并行，进度解析失败不影响结果
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if ev, ok := parseProgressLine(scanner.Text(), task); ok {
			select {
			case c.progress <- ev:
			default:
				// 没有消费者时丢弃进度
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("yt-dlp 退出异常: %w", err)
	}
	return nil
}

// probeCandidate 下载前用 GET 轻量探测候选地址可达性。
// 结果带 TTL 缓存，运行级重试时不再重复请求；探测失败只记日志，
// 最终判定仍以 yt-dlp 为准。
func (c *Coordinator) probeCandidate(ctx context.Context, url string) {
	if cached, ok := c.probeCache.Get(url); ok {
		if reachable, _ := cached.(bool); !reachable {
			c.logger.Warnf("候选地址此前探测不可达（缓存）: %s", url)
		}
		return
	}

	resp, err := c.probe.R().SetContext(ctx).Get(url)
	reachable := err == nil && resp.StatusCode() < 400
	c.probeCache.Set(url, reachable, gocache.DefaultExpiration)

	if !reachable {
		if err != nil {
			c.logger.Warnf("候选地址探测失败: %s: %v", url, err)
		} else {
			c.logger.Warnf("候选地址探测返回 %d: %s", resp.StatusCode(), url)
		}
	}
}
