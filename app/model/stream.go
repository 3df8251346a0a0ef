package model

// MediaType 流媒体类型
type MediaType string

const (
	MediaTypeVideo   MediaType = "video"
	MediaTypeAudio   MediaType = "audio"
	MediaTypeUnknown MediaType = "unknown"
)

// TempSuffix 返回该类型临时文件的后缀，用于断点续传时识别半成品
func (m MediaType) TempSuffix() string {
	switch m {
	case MediaTypeVideo:
		return ".v.mp4"
	case MediaTypeAudio:
		return ".a.m4a"
	default:
		return ".tmp"
	}
}

// Observation 浏览器层推送的一条原始网络请求观测
type Observation struct {
	URL string
	Seq int
}

// StreamCandidate 经过过滤与分类后的候选流地址。
// 只在单个条目的捕获窗口内有效，不做持久化。
type StreamCandidate struct {
	URL  string
	Type MediaType
	Seq  int
}

// StreamSet 一个条目最终选定的流，Audio 可以为空
type StreamSet struct {
	Video *StreamCandidate
	Audio *StreamCandidate
}

// HasAudio 是否存在独立音频流
func (s StreamSet) HasAudio() bool {
	return s.Audio != nil
}
