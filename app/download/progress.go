package download

import (
	"regexp"
	"strconv"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
)

// yt-dlp --newline 模式下的进度行，例如：
//
//	[download]  42.3% of ~120.50MiB at 2.31MiB/s ETA 00:31
//	[download] 100.0% of 98.12MiB in 00:42
var progressLine = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%(?:.*?of\s+~?([\d.]+\w+))?(?:.*?at\s+([\d.]+\w+/s))?`)

// parseProgressLine 解析一行子进程输出，非进度行返回 false。
// 进度只用于展示，解析失败不影响下载结果判定。
func parseProgressLine(line string, task model.DownloadTask) (model.ProgressEvent, bool) {
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return model.ProgressEvent{}, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return model.ProgressEvent{}, false
	}

	return model.ProgressEvent{
		Item:    task.Item,
		Type:    task.Type,
		Percent: percent,
		Total:   m[2],
		Rate:    m[3],
	}, true
}
