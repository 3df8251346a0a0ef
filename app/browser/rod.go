package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// 站点选择器
const (
	selSearchButton   = "button.searchTab"
	selSearchInput    = "input#searchInput"
	selSearchResults  = "div.search-post"
	selResultTitle    = "p.fallback-text"
	selSeasonSelect   = "select.season-box"
	selSeasonOption   = "select.season-box option"
	selEpisodeItem    = "div.episode-item"
	selEpisodeIndex   = ".titleCard-title_index"
	selEpisodeTitle   = ".titleCard-title_text"
	selLanguageOption = "div.audio_lang_list a"
	selBackButton     = "div.btn-payer-back"
	selPlayButton     = "a.playLink.modal-main-play"
	selAuthReady      = ".searchTab"
)

// cookieRecord cookies.json 中的一条记录（浏览器导出格式）
type cookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expirationDate,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// RodAutomator 基于 go-rod 的浏览器自动化实现
type RodAutomator struct {
	cfg     *config.Config
	logger  *logger.Logger
	browser *rod.Browser
	page    *rod.Page
	obsCh   chan model.Observation
	obsSeq  int
	stopObs context.CancelFunc
}

// NewRod 创建 go-rod 自动化实例
func NewRod(cfg *config.Config, log *logger.Logger) *RodAutomator {
	return &RodAutomator{
		cfg:    cfg,
		logger: log,
		obsCh:  make(chan model.Observation, 256),
	}
}

// Setup 启动浏览器并订阅网络事件
func (a *RodAutomator) Setup(ctx context.Context) error {
	a.logger.Info("正在启动浏览器...")

	launch := launcher.New().
		Headless(a.cfg.Browser.Headless).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Set(flags.Flag("no-first-run"))

	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}
	a.browser = b

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("创建页面失败: %w", err)
	}
	a.page = page

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             a.cfg.Browser.ViewportWidth,
		Height:            a.cfg.Browser.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		a.logger.Warnf("设置视口失败: %v", err)
	}

	if err := (proto.NetworkSetUserAgentOverride{
		UserAgent: a.cfg.Browser.UserAgent,
	}).Call(page); err != nil {
		a.logger.Warnf("设置 User-Agent 失败: %v", err)
	}

	// 屏蔽 webdriver 痕迹
	if _, err := page.EvalOnNewDocument(
		`Object.defineProperty(navigator, 'webdriver', { get: () => undefined })`,
	); err != nil {
		a.logger.Warnf("注入反检测脚本失败: %v", err)
	}

	a.startObservations(ctx)
	a.logger.Info("浏览器启动成功")
	return nil
}

// startObservations 订阅 NetworkRequestWillBeSent 事件，推送到观测通道。
// 每次会话建立都换一条新通道，上一条在会话结束时已被关闭。
func (a *RodAutomator) startObservations(ctx context.Context) {
	obsCtx, cancel := context.WithCancel(ctx)
	a.stopObs = cancel

	ch := make(chan model.Observation, 256)
	a.obsCh = ch

	if err := (proto.NetworkEnable{}).Call(a.page); err != nil {
		a.logger.Warnf("开启网络事件失败: %v", err)
	}

	wait := a.page.Context(obsCtx).EachEvent(func(ev *proto.NetworkRequestWillBeSent) {
		a.obsSeq++
		select {
		case ch <- model.Observation{URL: ev.Request.URL, Seq: a.obsSeq}:
		default:
			// 通道满时丢弃，观测流本身就是尽力而为的
		}
	})
	go func() {
		wait()
		close(ch)
	}()
}

// Observations 网络观测流
func (a *RodAutomator) Observations() <-chan model.Observation {
	return a.obsCh
}

// NavigateHome 注入 Cookie、导航首页并确认认证成功
func (a *RodAutomator) NavigateHome(ctx context.Context) error {
	if err := a.applyCookies(); err != nil {
		return err
	}

	a.logger.Infof("正在导航到 %s ...", a.cfg.Site.HomeURL)
	navTimeout := time.Duration(a.cfg.Browser.NavTimeoutSec) * time.Second
	if err := a.page.Context(ctx).Timeout(navTimeout).Navigate(a.cfg.Site.HomeURL); err != nil {
		return fmt.Errorf("导航到首页失败: %w", err)
	}
	a.randomDelay()

	info, err := a.page.Info()
	if err == nil && strings.Contains(info.URL, a.cfg.Site.VerifyKeyword) {
		// 人机验证页无法保证绕过，交给上层按认证失败处理
		return fmt.Errorf("被重定向到验证页: %s", info.URL)
	}

	selTimeout := time.Duration(a.cfg.Browser.SelectTimeoutSec) * time.Second
	if _, err := a.page.Context(ctx).Timeout(selTimeout).Element(selAuthReady); err != nil {
		return fmt.Errorf("等待首页就绪超时，认证可能已失效: %w", err)
	}

	a.logger.Info("站点认证成功")
	if err := a.FreshCookies(ctx); err != nil {
		a.logger.Warnf("保存最新 Cookie 失败: %v", err)
	}
	return nil
}

// applyCookies 从 Cookie 文件读取并注入浏览器
func (a *RodAutomator) applyCookies() error {
	data, err := os.ReadFile(a.cfg.App.CookiesFile)
	if err != nil {
		return fmt.Errorf("读取 Cookie 文件失败: %w", err)
	}

	var records []cookieRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("解析 Cookie 文件失败: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(records))
	for _, c := range records {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}

	if err := a.page.SetCookies(params); err != nil {
		return fmt.Errorf("注入 Cookie 失败: %w", err)
	}
	a.logger.Infof("已注入 %d 条 Cookie", len(params))
	return nil
}

// FreshCookies 把当前会话 Cookie 写回 Cookie 文件，便于下次免验证
func (a *RodAutomator) FreshCookies(ctx context.Context) error {
	cookies, err := a.page.Context(ctx).Cookies(nil)
	if err != nil {
		return fmt.Errorf("读取浏览器 Cookie 失败: %w", err)
	}

	records := make([]cookieRecord, 0, len(cookies))
	for _, c := range cookies {
		records = append(records, cookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化 Cookie 失败: %w", err)
	}
	if err := os.WriteFile(a.cfg.App.CookiesFile, data, 0600); err != nil {
		return fmt.Errorf("写入 Cookie 文件失败: %w", err)
	}
	return nil
}

// Search 点击搜索入口并输入查询词
func (a *RodAutomator) Search(ctx context.Context, query string) error {
	if err := a.click(ctx, selSearchButton); err != nil {
		return fmt.Errorf("点击搜索按钮失败: %w", err)
	}
	el, err := a.element(ctx, selSearchInput)
	if err != nil {
		return fmt.Errorf("定位搜索输入框失败: %w", err)
	}
	if err := el.Input(query); err != nil {
		return fmt.Errorf("填写搜索词失败: %w", err)
	}
	a.randomDelay()
	return nil
}

// SearchResults 返回搜索结果标题列表
func (a *RodAutomator) SearchResults(ctx context.Context) ([]TitleInfo, error) {
	if _, err := a.element(ctx, selSearchResults); err != nil {
		return nil, fmt.Errorf("等待搜索结果超时: %w", err)
	}
	els, err := a.page.Context(ctx).Elements(selSearchResults)
	if err != nil {
		return nil, fmt.Errorf("读取搜索结果失败: %w", err)
	}

	titles := make([]TitleInfo, 0, len(els))
	for i, el := range els {
		name := fmt.Sprintf("未知标题 %d", i+1)
		if t, err := el.Element(selResultTitle); err == nil {
			if text, err := t.Text(); err == nil {
				name = strings.TrimSpace(text)
			}
		}
		titles = append(titles, TitleInfo{Index: i, Name: name})
	}
	return titles, nil
}

// SelectTitle 点击第 index 个搜索结果
func (a *RodAutomator) SelectTitle(ctx context.Context, index int) error {
	els, err := a.page.Context(ctx).Elements(selSearchResults)
	if err != nil {
		return fmt.Errorf("读取搜索结果失败: %w", err)
	}
	if index < 0 || index >= len(els) {
		return fmt.Errorf("搜索结果序号越界: %d", index)
	}
	if err := els[index].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击搜索结果失败: %w", err)
	}
	a.randomDelay()
	return nil
}

// Languages 返回可用音轨语言列表
func (a *RodAutomator) Languages(ctx context.Context) ([]string, error) {
	if _, err := a.element(ctx, selLanguageOption); err != nil {
		return nil, fmt.Errorf("等待语言列表超时: %w", err)
	}
	els, err := a.page.Context(ctx).Elements(selLanguageOption)
	if err != nil {
		return nil, fmt.Errorf("读取语言列表失败: %w", err)
	}

	var langs []string
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" && !strings.EqualFold(text, "unknown") {
			langs = append(langs, text)
		}
	}
	return langs, nil
}

// SelectLanguage 点击指定语言链接
func (a *RodAutomator) SelectLanguage(ctx context.Context, language string) error {
	els, err := a.page.Context(ctx).Elements(selLanguageOption)
	if err != nil {
		return fmt.Errorf("读取语言列表失败: %w", err)
	}
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(text), language) {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				return fmt.Errorf("切换语言失败: %w", err)
			}
			a.randomDelay()
			return nil
		}
	}
	return fmt.Errorf("语言 %s 不在可选列表中", language)
}

// Seasons 返回季列表，站点没有季选择器时返回空切片
func (a *RodAutomator) Seasons(ctx context.Context) ([]SeasonInfo, error) {
	short, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := a.page.Context(short).Element(selSeasonSelect); err != nil {
		// 电影或单集内容没有季选择器，不算错误
		return nil, nil
	}

	els, err := a.page.Context(ctx).Elements(selSeasonOption)
	if err != nil {
		return nil, fmt.Errorf("读取季选项失败: %w", err)
	}

	seasons := make([]SeasonInfo, 0, len(els))
	for i, el := range els {
		text, _ := el.Text()
		value := ""
		if v, err := el.Attribute("value"); err == nil && v != nil {
			value = *v
		}
		seasons = append(seasons, SeasonInfo{Index: i, Text: strings.TrimSpace(text), Value: value})
	}
	return seasons, nil
}

// SelectSeason 切换到第 index 季
func (a *RodAutomator) SelectSeason(ctx context.Context, index int) error {
	els, err := a.page.Context(ctx).Elements(selSeasonOption)
	if err != nil {
		return fmt.Errorf("读取季选项失败: %w", err)
	}
	if index < 0 || index >= len(els) {
		return fmt.Errorf("季序号越界: %d", index)
	}
	sel, err := a.element(ctx, selSeasonSelect)
	if err != nil {
		return fmt.Errorf("定位季选择器失败: %w", err)
	}
	text, _ := els[index].Text()
	if err := sel.Select([]string{strings.TrimSpace(text)}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("切换季失败: %w", err)
	}
	a.randomDelay()
	return nil
}

// Episodes 返回当前季的剧集列表，没有剧集列表时返回空切片
func (a *RodAutomator) Episodes(ctx context.Context) ([]EpisodeInfo, error) {
	short, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := a.page.Context(short).Element(selEpisodeItem); err != nil {
		return nil, nil
	}

	els, err := a.page.Context(ctx).Elements(selEpisodeItem)
	if err != nil {
		return nil, fmt.Errorf("读取剧集列表失败: %w", err)
	}

	episodes := make([]EpisodeInfo, 0, len(els))
	for _, el := range els {
		ep := EpisodeInfo{Number: "N/A", Title: "未知剧集"}
		if idx, err := el.Element(selEpisodeIndex); err == nil {
			if text, err := idx.Text(); err == nil {
				ep.Number = strings.TrimSpace(text)
			}
		}
		if t, err := el.Element(selEpisodeTitle); err == nil {
			if text, err := t.Text(); err == nil {
				ep.Title = strings.TrimSpace(text)
			}
		}
		if id, err := el.Attribute("data-ep_id"); err == nil && id != nil {
			ep.ID = *id
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

// PlayEpisode 点击第 index 集触发播放
func (a *RodAutomator) PlayEpisode(ctx context.Context, index int) error {
	els, err := a.page.Context(ctx).Elements(selEpisodeItem)
	if err != nil {
		return fmt.Errorf("读取剧集列表失败: %w", err)
	}
	if index < 0 || index >= len(els) {
		return fmt.Errorf("剧集序号越界: %d", index)
	}
	if err := els[index].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("点击剧集失败: %w", err)
	}
	return nil
}

// PlayFeature 播放电影/单集内容，播放按钮缺失时依赖自动播放
func (a *RodAutomator) PlayFeature(ctx context.Context) error {
	if err := a.click(ctx, selPlayButton); err != nil {
		a.logger.Warnf("未找到播放按钮，等待自动播放: %v", err)
	}
	return nil
}

// Back 从播放页返回剧集列表
func (a *RodAutomator) Back(ctx context.Context) error {
	if err := a.click(ctx, selBackButton); err != nil {
		return fmt.Errorf("点击返回按钮失败: %w", err)
	}
	a.randomDelay()
	return nil
}

// Close 关闭浏览器会话
func (a *RodAutomator) Close() error {
	a.logger.Info("正在关闭浏览器...")
	if a.stopObs != nil {
		a.stopObs()
	}
	if a.browser != nil {
		return a.browser.Close()
	}
	return nil
}

func (a *RodAutomator) element(ctx context.Context, selector string) (*rod.Element, error) {
	timeout := time.Duration(a.cfg.Browser.SelectTimeoutSec) * time.Second
	return a.page.Context(ctx).Timeout(timeout).Element(selector)
}

func (a *RodAutomator) click(ctx context.Context, selector string) error {
	el, err := a.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// randomDelay 在配置区间内随机停顿，模拟人工操作节奏
func (a *RodAutomator) randomDelay() {
	min := a.cfg.Browser.MinDelayMs
	max := a.cfg.Browser.MaxDelayMs
	if max <= min {
		time.Sleep(time.Duration(min) * time.Millisecond)
		return
	}
	ms := min + rand.Intn(max-min)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}
