package merge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
)

// Merger 决定并执行单个条目的混流或直接晋升。
// 混流失败时保留已下载的临时媒体，便于续传或人工恢复。
type Merger struct {
	cfg    config.FFmpegConfig
	binary string
	logger *logger.Logger
}

// New 创建合并协调器
func New(cfg config.FFmpegConfig, binary string, log *logger.Logger) *Merger {
	return &Merger{
		cfg:    cfg,
		binary: binary,
		logger: log,
	}
}

// CheckBinary 确认混流工具存在。缺失属于致命错误，应在任何下载开始前发现。
func (m *Merger) CheckBinary() error {
	if _, err := exec.LookPath(m.binary); err != nil {
		return fmt.Errorf("未找到混流工具 %s，请先安装: %w", m.binary, err)
	}
	return nil
}

// Run 执行合并决策：
//   - 音频临时文件存在（任务已完成）→ 调用 ffmpeg 混流
//   - 否则 → 把视频临时文件重命名为最终输出，不调用混流工具
func (m *Merger) Run(ctx context.Context, job model.MergeJob) error {
	if job.NeedsMux() {
		return m.mux(ctx, job)
	}
	return m.promote(job)
}

// mux 调用 ffmpeg 合并视频与音频
func (m *Merger) mux(ctx context.Context, job model.MergeJob) error {
	m.logger.Infof("正在混流: %s", job.OutputPath)

	args := []string{}
	if m.cfg.Overwrite {
		args = append(args, "-y")
	}
	args = append(args, "-i", job.VideoPath, "-i", job.AudioPath)
	if m.cfg.CodecCopy {
		args = append(args, "-c", "copy")
	}
	if m.cfg.MovflagsFaststart {
		// 流媒体友好布局，moov 前置
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, job.OutputPath)

	cmd := exec.CommandContext(ctx, m.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// 临时媒体不删除，留给续传或人工恢复
		return fmt.Errorf("ffmpeg 混流失败: %w: %s", err, tail(stderr.String(), 512))
	}

	m.logger.Infof("混流完成: %s", job.OutputPath)
	return nil
}

// promote 无独立音频时直接把视频临时文件晋升为最终输出
func (m *Merger) promote(job model.MergeJob) error {
	if err := os.Rename(job.VideoPath, job.OutputPath); err != nil {
		return fmt.Errorf("晋升视频文件失败: %w", err)
	}
	m.logger.Infof("无独立音频，已直接输出: %s", job.OutputPath)
	return nil
}

// tail 截取错误输出的末尾，避免日志爆炸
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
