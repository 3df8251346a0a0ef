// Package browser 封装站点浏览器会话。编排器只依赖 Automator 接口，
// 具体引擎（go-rod 驱动的 Chromium）是可替换的外部协作者。
package browser

import (
	"context"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
)

// TitleInfo 搜索结果中的一个条目
type TitleInfo struct {
	Index int
	Name  string
}

// SeasonInfo 季选择器中的一个选项
type SeasonInfo struct {
	Index int
	Text  string
	Value string
}

// EpisodeInfo 剧集列表中的一集
type EpisodeInfo struct {
	Number string
	Title  string
	ID     string
}

// Automator 浏览器自动化服务。所有阻塞操作都接受 context，
// 站点结构不匹配（选择器找不到）时返回错误由编排器归类处理。
type Automator interface {
	// Setup 启动浏览器会话并开始网络观测
	Setup(ctx context.Context) error
	// NavigateHome 注入 Cookie 并导航到站点首页，
	// 落到验证页且无法通过时返回认证错误
	NavigateHome(ctx context.Context) error
	// Search 打开搜索框并提交查询词
	Search(ctx context.Context, query string) error
	// SearchResults 返回当前搜索结果列表
	SearchResults(ctx context.Context) ([]TitleInfo, error)
	// SelectTitle 点击第 index 个搜索结果
	SelectTitle(ctx context.Context, index int) error
	// Languages 返回可用音轨语言
	Languages(ctx context.Context) ([]string, error)
	// SelectLanguage 切换到指定语言
	SelectLanguage(ctx context.Context, language string) error
	// Seasons 返回季列表，站点没有季选择器时返回空切片
	Seasons(ctx context.Context) ([]SeasonInfo, error)
	// SelectSeason 切换到第 index 季
	SelectSeason(ctx context.Context, index int) error
	// Episodes 返回当前季的剧集列表，没有剧集列表时返回空切片
	Episodes(ctx context.Context) ([]EpisodeInfo, error)
	// PlayEpisode 点击第 index 集，触发播放以便捕获流量
	PlayEpisode(ctx context.Context, index int) error
	// PlayFeature 播放电影/单集内容
	PlayFeature(ctx context.Context) error
	// Back 从播放页返回剧集列表
	Back(ctx context.Context) error
	// Observations 网络观测流，浏览器关闭时通道关闭
	Observations() <-chan model.Observation
	// FreshCookies 把当前会话 Cookie 写回 Cookie 文件
	FreshCookies(ctx context.Context) error
	// Close 关闭浏览器会话
	Close() error
}
