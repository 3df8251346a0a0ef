package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
)

// Interceptor 消费浏览器层推送的网络观测流，过滤、分类并选出候选流。
// 观测序列本身无序且混有无关流量，分类结果只由 URL 和到达顺序决定，
// 同一条观测序列永远得到同一组候选。
type Interceptor struct {
	captureCfg config.CaptureConfig
	streamCfg  config.StreamConfig
	logger     *logger.Logger

	mu         sync.Mutex
	candidates []model.StreamCandidate
	seq        int
}

// New 创建拦截分类器
func New(captureCfg config.CaptureConfig, streamCfg config.StreamConfig, log *logger.Logger) *Interceptor {
	return &Interceptor{
		captureCfg: captureCfg,
		streamCfg:  streamCfg,
		logger:     log,
	}
}

// Reset 清空当前捕获窗口，开始处理下一个条目。observations 是浏览器层的
// 会话级观测通道，在播放开始前把上一个条目遗留的缓冲观测全部丢弃，
// 保证每个条目只消费自己播放期间产生的流量。
func (it *Interceptor) Reset(observations <-chan model.Observation) {
	it.mu.Lock()
	it.candidates = it.candidates[:0]
	it.seq = 0
	it.mu.Unlock()

	for {
		select {
		case _, ok := <-observations:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Offer 提交一条原始观测。通过过滤的候选按到达顺序编号入队。
func (it *Interceptor) Offer(obs model.Observation) {
	if !it.match(obs.URL) {
		return
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	// 同一地址只记录第一次出现
	for _, c := range it.candidates {
		if c.URL == obs.URL {
			return
		}
	}

	c := model.StreamCandidate{
		URL:  obs.URL,
		Type: it.categorize(obs.URL),
		Seq:  it.seq,
	}
	it.seq++
	it.candidates = append(it.candidates, c)
	it.logger.Infof("捕获到候选流地址 [%s]: %s", c.Type, c.URL)
}

// match 过滤谓词：必须包含流标记且不含任何跳过关键字
func (it *Interceptor) match(url string) bool {
	lower := strings.ToLower(url)
	if !strings.Contains(lower, it.captureCfg.M3U8Indicator) {
		return false
	}
	for _, skip := range it.captureCfg.SkipKeywords {
		if strings.Contains(lower, skip) {
			return false
		}
	}
	return true
}

// categorize 分类规则（确定性的子串匹配）：
//   - URL 含音频路径片段且以流扩展名结尾 → audio
//   - URL 含视频标记且不含音频路径片段 → video
//   - 其余 → unknown
func (it *Interceptor) categorize(url string) model.MediaType {
	hasAudioFragment := strings.Contains(url, it.streamCfg.AudioPathFragment)
	if hasAudioFragment && strings.HasSuffix(url, it.streamCfg.StreamExtension) {
		return model.MediaTypeAudio
	}
	if strings.Contains(url, it.streamCfg.VideoToken) && !hasAudioFragment {
		return model.MediaTypeVideo
	}
	return model.MediaTypeUnknown
}

// Select 在已捕获的候选中选流。策略刻意简单：每种媒体类型取第一个
// 到达的候选，视频优先取首个命中偏好域名的候选；不做画质比较。
// 缺少音频不算失败，缺少视频返回 false。
func (it *Interceptor) Select() (model.StreamSet, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()

	var set model.StreamSet
	for i := range it.candidates {
		c := it.candidates[i]
		switch c.Type {
		case model.MediaTypeVideo:
			if set.Video == nil {
				set.Video = &c
			} else if it.streamCfg.PreferredVideoDomain != "" &&
				!strings.Contains(set.Video.URL, it.streamCfg.PreferredVideoDomain) &&
				strings.Contains(c.URL, it.streamCfg.PreferredVideoDomain) {
				// 偏好域名的首个视频候选覆盖先到的普通候选
				set.Video = &c
			}
		case model.MediaTypeAudio:
			if set.Audio == nil {
				set.Audio = &c
			}
		}
	}
	return set, set.Video != nil
}

// Wait 在捕获窗口内等待出现可用的视频候选。observe 推进观测消费；
// 超时仍无视频候选时返回错误，调用方据此判定条目失败。
func (it *Interceptor) Wait(ctx context.Context, observations <-chan model.Observation) (model.StreamSet, error) {
	timeout := time.Duration(it.captureCfg.WaitSeconds) * time.Second
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// 视频候选出现后再多等一小段，给音频候选留到达时间
	var grace <-chan time.Time

	for {
		select {
		case obs, ok := <-observations:
			if !ok {
				if set, found := it.Select(); found {
					return set, nil
				}
				return model.StreamSet{}, fmt.Errorf("观测流已关闭，未捕获到视频流")
			}
			it.Offer(obs)
			if set, found := it.Select(); found {
				if set.HasAudio() {
					return set, nil
				}
				if grace == nil {
					grace = time.After(graceWindow(timeout))
				}
			}
		case <-grace:
			set, _ := it.Select()
			return set, nil
		case <-deadline.C:
			if set, found := it.Select(); found {
				return set, nil
			}
			return model.StreamSet{}, fmt.Errorf("捕获窗口 %s 内未发现视频流", timeout)
		case <-ctx.Done():
			return model.StreamSet{}, ctx.Err()
		}
	}
}

// graceWindow 音频候选的宽限时间，取整体窗口的五分之一
func graceWindow(total time.Duration) time.Duration {
	g := total / 5
	if g < time.Second {
		g = time.Second
	}
	return g
}
