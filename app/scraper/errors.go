package scraper

import (
	"errors"
	"fmt"
)

// Kind 运行错误的分类，重试循环据此决定如何处置
type Kind string

const (
	KindAuthentication   Kind = "authentication"    // 会话/Cookie 失效或验证失败
	KindNavigation       Kind = "navigation"        // 站点结构不匹配，选择器找不到
	KindInterceptTimeout Kind = "intercept_timeout" // 捕获窗口内没有合格候选
	KindDownload         Kind = "download"          // 下载子进程失败
	KindMerge            Kind = "merge"             // 混流工具缺失或失败
	KindStateCorruption  Kind = "state_corruption"  // 持久化状态不可读
	KindConfiguration    Kind = "configuration"     // 配置非法或缺失
)

// Error 带分类的运行错误。Fatal 为 true 时绕过重试预算直接终止。
type Error struct {
	Kind  Kind
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr 按分类包装错误
func wrapErr(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// fatalErr 包装致命错误（如必需外部工具缺失），不消耗重试预算
func fatalErr(kind Kind, err error) *Error {
	return &Error{Kind: kind, Fatal: true, Err: err}
}

// KindOf 取出错误分类，未分类返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal 判断错误是否致命
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal
	}
	return false
}
