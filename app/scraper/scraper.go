// Package scraper 是运行编排器：驱动浏览器会话、流量捕获、
// 下载与合并的完整流水线，并维护可续传的运行状态。
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/browser"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/capture"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/cleanup"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/service"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/state"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/utils/pathhelper"
)

// retryPause 运行级重试之间的等待时间
const retryPause = 5 * time.Second

// Downloader 下载协调器能力
type Downloader interface {
	Run(ctx context.Context, task model.DownloadTask) (model.DownloadTask, error)
	ShouldSkip(task model.DownloadTask, recorded model.ItemStatus) bool
}

// StreamMerger 合并阶段能力
type StreamMerger interface {
	CheckBinary() error
	Run(ctx context.Context, job model.MergeJob) error
}

// Prompter 交互式选择能力，编排器在状态缺少答案时向用户提问
type Prompter interface {
	// Input 读取一行自由文本
	Input(label string) (string, error)
	// SelectIndex 从选项中选择一项，返回下标
	SelectIndex(label string, options []string) (int, error)
	// SelectMulti 从选项中选择多项，空输入表示全选
	SelectMulti(label string, options []string) ([]int, error)
	// Confirm 是/否确认
	Confirm(label string) bool
}

// Deps 编排器的协作者集合。history、keepalive 和 watcher 允许为 nil。
type Deps struct {
	Store     *state.Store
	Automator browser.Automator
	Intercept *capture.Interceptor
	Download  Downloader
	Merger    StreamMerger
	Cleaner   *cleanup.Manager
	Watcher   *cleanup.ArtifactWatcher
	Prompter  Prompter
	History   *service.HistoryService
	Keepalive *service.KeepaliveService
}

// Scraper 运行编排器。单次运行由一个编排协程驱动，
// 状态快照允许其他协程通过 Snapshot 并发读取。
type Scraper struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *state.Store
	automator browser.Automator
	intercept *capture.Interceptor
	download  Downloader
	merger    StreamMerger
	cleaner   *cleanup.Manager
	watcher   *cleanup.ArtifactWatcher
	prompter  Prompter
	history   *service.HistoryService
	keepalive *service.KeepaliveService

	retryPause time.Duration

	mu sync.Mutex
	st *model.RunState

	movie     bool           // 无剧集列表的内容按单条目处理
	pageIndex map[string]int // 条目标识 → 当前页面剧集下标
}

// New 创建编排器
func New(cfg *config.Config, log *logger.Logger, deps Deps) *Scraper {
	return &Scraper{
		cfg:        cfg,
		log:        log,
		store:      deps.Store,
		automator:  deps.Automator,
		intercept:  deps.Intercept,
		download:   deps.Download,
		merger:     deps.Merger,
		cleaner:    deps.Cleaner,
		watcher:    deps.Watcher,
		prompter:   deps.Prompter,
		history:    deps.History,
		keepalive:  deps.Keepalive,
		retryPause: retryPause,
	}
}

// Execute 执行一次完整运行：加载或续传状态，然后在重试预算内
// 反复尝试，直到成功、预算耗尽或遇到致命错误。
func (s *Scraper) Execute(ctx context.Context, query string) error {
	if err := s.checkBinaries(); err != nil {
		return err
	}
	if err := s.loadState(query); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx)
		if err == nil {
			s.finishRun()
			return nil
		}
		lastErr = err
		if IsFatal(err) || errors.Is(err, context.Canceled) {
			s.flush()
			return err
		}
		if attempt >= s.cfg.App.MaxRetries {
			break
		}
		s.log.Warnf("第 %d 次运行失败，%s 后从 %q 续传: %v",
			attempt+1, s.retryPause, s.resumeLabel(), err)
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case <-time.After(s.retryPause):
		}
	}

	s.flush()
	s.cleaner.SweepUnrecoverable(s.resumable)
	return fmt.Errorf("重试预算（%d 次）耗尽: %w", s.cfg.App.MaxRetries, lastErr)
}

// Snapshot 返回运行状态的深拷贝，供状态服务并发读取
func (s *Scraper) Snapshot() model.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return *model.NewRunState()
	}
	cp := *s.st
	cp.Episodes = append([]string(nil), s.st.Episodes...)
	cp.Progress = make(map[string]model.ItemStatus, len(s.st.Progress))
	for k, v := range s.st.Progress {
		cp.Progress[k] = v
	}
	cp.MediaDone = make(map[string][]string, len(s.st.MediaDone))
	for k, v := range s.st.MediaDone {
		cp.MediaDone[k] = append([]string(nil), v...)
	}
	return cp
}

// checkBinaries 前置检查外部工具，缺失时不进入浏览器阶段
func (s *Scraper) checkBinaries() error {
	if _, err := exec.LookPath(s.cfg.Binaries.YtDlp); err != nil {
		return fatalErr(KindDownload, fmt.Errorf("找不到下载工具 %s: %w", s.cfg.Binaries.YtDlp, err))
	}
	if err := s.merger.CheckBinary(); err != nil {
		return fatalErr(KindMerge, err)
	}
	return nil
}

// loadState 加载持久化状态并决定续传还是重新开始
func (s *Scraper) loadState(query string) error {
	st, err := s.store.Load()
	if err != nil {
		return fatalErr(KindStateCorruption,
			fmt.Errorf("加载运行状态失败，请执行 clean 子命令后重试: %w", err))
	}

	switch {
	case st.SearchQuery == "":
		// 全新状态
	case st.RunCompleted:
		s.log.Infof("上次运行（%q）已全部完成，开始新的运行", st.SearchQuery)
		st = model.NewRunState()
	case query != "" && !st.Matches(query):
		s.log.Warnf("检测到 %q 的未完成运行，与本次查询 %q 不一致，丢弃旧状态",
			st.SearchQuery, query)
		st = model.NewRunState()
	case query != "":
		s.log.Infof("检测到 %q 的未完成运行，自动续传", st.SearchQuery)
	default:
		if !s.prompter.Confirm(fmt.Sprintf("检测到 %q 的未完成运行，是否续传", st.SearchQuery)) {
			st = model.NewRunState()
		}
	}

	if query != "" {
		st.SearchQuery = query
	}
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
	return nil
}

// runOnce 单次完整运行：会话建立、内容选择、逐条目流水线
func (s *Scraper) runOnce(ctx context.Context) error {
	if err := s.automator.Setup(ctx); err != nil {
		return wrapErr(KindNavigation, fmt.Errorf("浏览器会话启动失败: %w", err))
	}
	defer s.automator.Close()

	if err := s.automator.NavigateHome(ctx); err != nil {
		return wrapErr(KindAuthentication, err)
	}
	if s.keepalive != nil {
		s.keepalive.Start(ctx)
		defer s.keepalive.Stop()
	}

	if err := s.selectContent(ctx); err != nil {
		return err
	}
	return s.processItems(ctx)
}

// selectContent 搜索并完成片名/语言/季/剧集的选择。
// 状态里已有答案的环节直接复用，缺少答案时向用户提问并立即落盘。
func (s *Scraper) selectContent(ctx context.Context) error {
	query := s.st.SearchQuery
	if query == "" {
		q, err := s.prompter.Input("搜索内容")
		if err != nil || strings.TrimSpace(q) == "" {
			return fatalErr(KindConfiguration, fmt.Errorf("未提供搜索词"))
		}
		query = strings.TrimSpace(q)
		s.update(func(st *model.RunState) { st.SearchQuery = query })
		s.flush()
	}

	if err := s.automator.Search(ctx, query); err != nil {
		return wrapErr(KindNavigation, err)
	}
	results, err := s.automator.SearchResults(ctx)
	if err != nil {
		return wrapErr(KindNavigation, err)
	}
	if len(results) == 0 {
		return wrapErr(KindNavigation, fmt.Errorf("搜索 %q 没有任何结果", query))
	}

	idx := s.matchTitle(results)
	if idx < 0 {
		names := make([]string, len(results))
		for i, r := range results {
			names[i] = r.Name
		}
		idx, err = s.prompter.SelectIndex("选择片名", names)
		if err != nil {
			return fatalErr(KindConfiguration, err)
		}
	}
	title := results[idx].Name
	s.update(func(st *model.RunState) { st.SelectedTitle = title })
	s.flush()
	if err := s.automator.SelectTitle(ctx, results[idx].Index); err != nil {
		return wrapErr(KindNavigation, err)
	}

	if err := s.selectLanguage(ctx); err != nil {
		return err
	}
	if err := s.selectSeason(ctx); err != nil {
		return err
	}
	return s.selectEpisodes(ctx, title)
}

func (s *Scraper) selectLanguage(ctx context.Context) error {
	langs, err := s.automator.Languages(ctx)
	if err != nil {
		return wrapErr(KindNavigation, err)
	}
	if len(langs) == 0 {
		return nil
	}
	lang := s.st.Language
	if !containsString(langs, lang) {
		idx, err := s.prompter.SelectIndex("选择音轨语言", langs)
		if err != nil {
			return fatalErr(KindConfiguration, err)
		}
		lang = langs[idx]
	}
	if err := s.automator.SelectLanguage(ctx, lang); err != nil {
		return wrapErr(KindNavigation, err)
	}
	s.update(func(st *model.RunState) { st.Language = lang })
	s.flush()
	return nil
}

func (s *Scraper) selectSeason(ctx context.Context) error {
	seasons, err := s.automator.Seasons(ctx)
	if err != nil {
		return wrapErr(KindNavigation, err)
	}
	if len(seasons) == 0 {
		return nil
	}
	idx := -1
	for i, se := range seasons {
		if se.Text == s.st.Season {
			idx = i
			break
		}
	}
	if idx < 0 {
		texts := make([]string, len(seasons))
		for i, se := range seasons {
			texts[i] = se.Text
		}
		idx, err = s.prompter.SelectIndex("选择季", texts)
		if err != nil {
			return fatalErr(KindConfiguration, err)
		}
	}
	s.update(func(st *model.RunState) { st.Season = seasons[idx].Text })
	s.flush()
	if err := s.automator.SelectSeason(ctx, seasons[idx].Index); err != nil {
		return wrapErr(KindNavigation, err)
	}
	return nil
}

func (s *Scraper) selectEpisodes(ctx context.Context, title string) error {
	eps, err := s.automator.Episodes(ctx)
	if err != nil {
		return wrapErr(KindNavigation, err)
	}

	if len(eps) == 0 {
		// 电影或单集内容：整个作品就是唯一条目
		s.movie = true
		s.pageIndex = nil
		if len(s.st.Episodes) == 0 {
			item := pathhelper.Sanitize(title)
			s.update(func(st *model.RunState) { st.SetEpisodes([]string{item}) })
			s.flush()
		}
		return nil
	}

	s.movie = false
	if len(s.st.Episodes) == 0 {
		labels := make([]string, len(eps))
		for i, ep := range eps {
			labels[i] = itemKey(ep)
		}
		picks, err := s.prompter.SelectMulti("选择要下载的剧集（逗号分隔，留空为全部）", labels)
		if err != nil {
			return fatalErr(KindConfiguration, err)
		}
		items := make([]string, 0, len(picks))
		for _, p := range picks {
			items = append(items, itemKey(eps[p]))
		}
		s.update(func(st *model.RunState) { st.SetEpisodes(items) })
		s.flush()
	}

	// 续传时按名称在当前页面重新定位每个条目
	s.pageIndex = make(map[string]int, len(eps))
	for i, ep := range eps {
		s.pageIndex[itemKey(ep)] = i
	}
	return nil
}

// processItems 逐条目执行 捕获→下载→合并 流水线，已完成的条目跳过
func (s *Scraper) processItems(ctx context.Context) error {
	layout := pathhelper.Layout{
		Root:      s.cfg.App.DownloadDir,
		Title:     s.st.SelectedTitle,
		Season:    s.st.Season,
		Container: s.cfg.App.Container,
	}

	for _, item := range s.st.Episodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.st.Status(item).Terminal() {
			s.log.Infof("条目 %q 已完成，跳过", item)
			continue
		}
		if err := s.processItem(ctx, item, layout); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) processItem(ctx context.Context, item string, layout pathhelper.Layout) error {
	dir := layout.ItemDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fatalErr(KindConfiguration, fmt.Errorf("无法创建下载目录 %s: %w", dir, err))
	}
	if s.watcher != nil {
		if err := s.watcher.WatchItem(item, dir); err != nil {
			s.log.Warnf("临时文件监听失败: %v", err)
		}
	}

	s.intercept.Reset(s.automator.Observations())
	if s.movie {
		if err := s.automator.PlayFeature(ctx); err != nil {
			return wrapErr(KindNavigation, err)
		}
	} else {
		idx, ok := s.pageIndex[item]
		if !ok {
			return wrapErr(KindNavigation, fmt.Errorf("当前剧集列表中找不到条目 %q", item))
		}
		if err := s.automator.PlayEpisode(ctx, idx); err != nil {
			return wrapErr(KindNavigation, err)
		}
	}

	set, err := s.intercept.Wait(ctx, s.automator.Observations())
	if err != nil {
		s.setStatus(item, model.ItemStatusFailed)
		return wrapErr(KindInterceptTimeout, fmt.Errorf("条目 %q: %w", item, err))
	}
	s.setStatus(item, model.ItemStatusDownloading)

	videoTemp := layout.TempPath(item, model.MediaTypeVideo.TempSuffix())
	if err := s.fetchMedia(ctx, item, model.MediaTypeVideo, set.Video.URL, videoTemp); err != nil {
		s.setStatus(item, model.ItemStatusFailed)
		return wrapErr(KindDownload, err)
	}

	// 音频失败不终止条目，降级为仅视频输出。
	// 运行被中断导致的失败不降级，条目留给下次续传补齐音轨。
	audioTemp := ""
	if set.HasAudio() {
		audioTemp = layout.TempPath(item, model.MediaTypeAudio.TempSuffix())
		if err := s.fetchMedia(ctx, item, model.MediaTypeAudio, set.Audio.URL, audioTemp); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return wrapErr(KindDownload, err)
			}
			s.log.Warnf("条目 %q 音频下载失败，输出将不含独立音轨: %v", item, err)
			audioTemp = ""
		}
	}

	job := model.MergeJob{
		Item:       item,
		VideoPath:  videoTemp,
		AudioPath:  audioTemp,
		OutputPath: layout.FinalPath(item),
	}
	if err := s.merger.Run(ctx, job); err != nil {
		s.setStatus(item, model.ItemStatusFailed)
		s.recordHistory(item, job, err)
		return wrapErr(KindMerge, fmt.Errorf("条目 %q 合并失败: %w", item, err))
	}

	s.update(func(st *model.RunState) {
		st.ClearMedia(item)
		st.SetStatus(item, model.ItemStatusCompleted)
	})
	s.flush()
	s.cleaner.SweepItem(item)
	s.recordHistory(item, job, nil)
	s.log.Infof("条目 %q 已完成: %s", item, job.OutputPath)

	if !s.movie {
		if err := s.automator.Back(ctx); err != nil {
			s.log.Warnf("返回剧集列表失败: %v", err)
		}
	}
	return nil
}

// fetchMedia 下载单个媒体流，已落盘的流在续传时跳过
func (s *Scraper) fetchMedia(ctx context.Context, item string, mt model.MediaType, url, temp string) error {
	s.cleaner.Register(item, temp)

	task := model.DownloadTask{Item: item, Type: mt, URL: url, TempPath: temp}
	recorded := model.ItemStatusPending
	if s.st.IsMediaDone(item, string(mt)) {
		recorded = model.ItemStatusCompleted
	}
	if s.download.ShouldSkip(task, recorded) {
		s.log.Infof("条目 %q 的 %s 流已下载过，跳过", item, mt)
		return nil
	}

	done, err := s.download.Run(ctx, task)
	if err != nil {
		return fmt.Errorf("条目 %q 的 %s 流下载失败（尝试 %d 次）: %w", item, mt, done.Attempts, err)
	}
	s.update(func(st *model.RunState) { st.MarkMediaDone(item, string(mt)) })
	s.flush()
	return nil
}

// finishRun 运行成功后的收尾：清理临时文件、删除状态文件
func (s *Scraper) finishRun() {
	s.flush()
	s.cleaner.SweepCompleted(s.st.Episodes)
	if err := s.store.Remove(); err != nil {
		s.log.Warnf("删除状态文件失败: %v", err)
	}
	s.log.Infof("运行结束，共处理 %d 个条目", len(s.st.Episodes))
}

func (s *Scraper) recordHistory(item string, job model.MergeJob, runErr error) {
	if s.history == nil {
		return
	}
	rec := &model.DownloadRecord{
		SearchQuery: s.st.SearchQuery,
		Title:       s.st.SelectedTitle,
		Season:      s.st.Season,
		Episode:     item,
		Language:    s.st.Language,
		OutputPath:  job.OutputPath,
		Merged:      job.NeedsMux(),
		Status:      string(model.ItemStatusCompleted),
	}
	if runErr != nil {
		rec.Status = string(model.ItemStatusFailed)
		rec.LastError = runErr.Error()
	}
	s.history.Record(rec)
}

// resumable 判断条目的临时产物是否值得保留（已有完整落盘的媒体流）
func (s *Scraper) resumable(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.IsMediaDone(item, string(model.MediaTypeVideo)) ||
		s.st.IsMediaDone(item, string(model.MediaTypeAudio))
}

func (s *Scraper) resumeLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.st.ResumePoint(); p != "" {
		return p
	}
	return s.st.SearchQuery
}

// matchTitle 续传时按名称在搜索结果中重新定位已选片名
func (s *Scraper) matchTitle(results []browser.TitleInfo) int {
	if s.st.SelectedTitle == "" {
		return -1
	}
	for i, r := range results {
		if r.Name == s.st.SelectedTitle {
			return i
		}
	}
	return -1
}

func (s *Scraper) update(fn func(*model.RunState)) {
	s.mu.Lock()
	fn(s.st)
	s.mu.Unlock()
}

// flush 把当前状态落盘。状态写入失败不终止运行，只影响续传能力。
func (s *Scraper) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return
	}
	if err := s.store.Persist(s.st); err != nil {
		s.log.Warnf("状态落盘失败: %v", err)
	}
}

// setStatus 更新条目状态并立即落盘，保证崩溃后可以恢复
func (s *Scraper) setStatus(item string, status model.ItemStatus) {
	s.update(func(st *model.RunState) { st.SetStatus(item, status) })
	s.flush()
}

// itemKey 由剧集信息生成条目标识，同时用作文件名
func itemKey(ep browser.EpisodeInfo) string {
	label := strings.TrimSpace(ep.Title)
	if ep.Number != "" {
		label = fmt.Sprintf("%s. %s", strings.TrimSpace(ep.Number), label)
	}
	return pathhelper.Sanitize(label)
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
