package model

// DownloadTask 单个媒体类型的下载任务描述，按值传给下载协调器
type DownloadTask struct {
	Item     string    // 条目标识（剧集或影片的安全名称）
	Type     MediaType // 媒体类型
	URL      string    // 候选流地址
	TempPath string    // 目标临时文件路径，后缀编码媒体类型
	Attempts int       // 已尝试次数
	Status   ItemStatus
}

// MergeJob 合并任务描述，下载阶段结束后创建
type MergeJob struct {
	Item       string
	VideoPath  string
	AudioPath  string // 为空表示无独立音频
	OutputPath string
}

// NeedsMux 是否需要调用外部混流工具
func (j MergeJob) NeedsMux() bool {
	return j.AudioPath != ""
}

// ProgressEvent 下载子进程输出的进度事件，仅用于展示，不参与控制流
type ProgressEvent struct {
	Item    string
	Type    MediaType
	Percent float64
	Total   string // 如 "120.5MiB"，未知时为空
	Rate    string // 如 "2.31MiB/s"，未知时为空
}
