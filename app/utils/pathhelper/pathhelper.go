package pathhelper

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var unsafeChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Sanitize 把任意标题转成安全的文件名。
// 先做 NFC 规范化，避免同一标题在不同平台产生不同字节序列。
func Sanitize(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = unsafeChars.ReplaceAllString(name, "_")
	if name == "" {
		return "_"
	}
	return name
}

// Layout 描述一次运行的输出目录结构：
// <download_root>/<title>/[<season>/]<episode>.<container>
type Layout struct {
	Root      string
	Title     string
	Season    string // 可为空（电影或单集）
	Container string
}

// ItemDir 条目所在目录
func (l Layout) ItemDir() string {
	dir := filepath.Join(l.Root, Sanitize(l.Title))
	if l.Season != "" {
		dir = filepath.Join(dir, Sanitize(l.Season))
	}
	return dir
}

// FinalPath 条目的最终输出文件路径
func (l Layout) FinalPath(item string) string {
	return filepath.Join(l.ItemDir(), Sanitize(item)+"."+l.Container)
}

// TempPath 条目某个媒体类型的临时文件路径，suffix 形如 ".v.mp4"
func (l Layout) TempPath(item, suffix string) string {
	return filepath.Join(l.ItemDir(), Sanitize(item)+suffix)
}
