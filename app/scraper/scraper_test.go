package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/browser"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/capture"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/cleanup"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAutomator 不触碰真实浏览器，按预设数据回应编排器。
// 观测通道模拟真实实现：Setup 建立会话级通道，播放动作向其推送观测，
// Close 关闭通道。
type fakeAutomator struct {
	mu         sync.Mutex
	setupCalls int
	navErr     error
	titles     []browser.TitleInfo
	langs      []string
	seasons    []browser.SeasonInfo
	episodes   []browser.EpisodeInfo
	obs        []model.Observation
	obsByEp    map[int][]model.Observation // 覆盖单集的播放观测
	ch         chan model.Observation
	playedEps  []int
	playedFeat int
	backs      int
}

func (f *fakeAutomator) Setup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupCalls++
	f.ch = make(chan model.Observation, 64)
	return nil
}

func (f *fakeAutomator) NavigateHome(ctx context.Context) error { return f.navErr }
func (f *fakeAutomator) Search(ctx context.Context, query string) error {
	return nil
}

func (f *fakeAutomator) SearchResults(ctx context.Context) ([]browser.TitleInfo, error) {
	return f.titles, nil
}
func (f *fakeAutomator) SelectTitle(ctx context.Context, index int) error { return nil }
func (f *fakeAutomator) Languages(ctx context.Context) ([]string, error)  { return f.langs, nil }
func (f *fakeAutomator) SelectLanguage(ctx context.Context, language string) error {
	return nil
}

func (f *fakeAutomator) Seasons(ctx context.Context) ([]browser.SeasonInfo, error) {
	return f.seasons, nil
}
func (f *fakeAutomator) SelectSeason(ctx context.Context, index int) error { return nil }
func (f *fakeAutomator) Episodes(ctx context.Context) ([]browser.EpisodeInfo, error) {
	return f.episodes, nil
}

func (f *fakeAutomator) PlayEpisode(ctx context.Context, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playedEps = append(f.playedEps, index)
	obs := f.obs
	if o, ok := f.obsByEp[index]; ok {
		obs = o
	}
	f.emit(obs)
	return nil
}

func (f *fakeAutomator) PlayFeature(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playedFeat++
	f.emit(f.obs)
	return nil
}

func (f *fakeAutomator) emit(obs []model.Observation) {
	for _, o := range obs {
		f.ch <- o
	}
}

func (f *fakeAutomator) Back(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backs++
	return nil
}

func (f *fakeAutomator) Observations() <-chan model.Observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

func (f *fakeAutomator) FreshCookies(ctx context.Context) error { return nil }

func (f *fakeAutomator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		close(f.ch)
		f.ch = nil
	}
	return nil
}

type fakeDownloader struct {
	mu        sync.Mutex
	runs      []model.DownloadTask
	failTypes map[model.MediaType]bool
	onRun     func(task model.DownloadTask)
}

func (f *fakeDownloader) Run(ctx context.Context, task model.DownloadTask) (model.DownloadTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, task)
	task.Attempts = 1
	if f.onRun != nil {
		f.onRun(task)
	}
	if f.failTypes[task.Type] {
		task.Status = model.ItemStatusFailed
		return task, errors.New("下载子进程退出码 1")
	}
	task.Status = model.ItemStatusCompleted
	return task, nil
}

func (f *fakeDownloader) ShouldSkip(task model.DownloadTask, recorded model.ItemStatus) bool {
	return recorded == model.ItemStatusCompleted
}

func (f *fakeDownloader) tasksOf(mt model.MediaType) []model.DownloadTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DownloadTask
	for _, task := range f.runs {
		if task.Type == mt {
			out = append(out, task)
		}
	}
	return out
}

type fakeMerger struct {
	mu       sync.Mutex
	jobs     []model.MergeJob
	checkErr error
	runErr   error
}

func (f *fakeMerger) CheckBinary() error { return f.checkErr }

func (f *fakeMerger) Run(ctx context.Context, job model.MergeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.runErr
}

type fakePrompter struct {
	input   string
	confirm bool
}

func (f *fakePrompter) Input(label string) (string, error) { return f.input, nil }
func (f *fakePrompter) SelectIndex(label string, options []string) (int, error) {
	return 0, nil
}

func (f *fakePrompter) SelectMulti(label string, options []string) ([]int, error) {
	all := make([]int, len(options))
	for i := range options {
		all[i] = i
	}
	return all, nil
}

func (f *fakePrompter) Confirm(label string) bool { return f.confirm }

func defaultObservations() []model.Observation {
	return []model.Observation{
		{URL: "https://net51.cc/v/master::kp.m3u8"},
		{URL: "https://net51.cc/a/track.m3u8"},
	}
}

func seriesAutomator() *fakeAutomator {
	return &fakeAutomator{
		titles: []browser.TitleInfo{{Index: 0, Name: "Dark"}},
		langs:  []string{"English", "German"},
		episodes: []browser.EpisodeInfo{
			{Number: "1", Title: "One"},
			{Number: "2", Title: "Two"},
		},
		obs: defaultObservations(),
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{
			MaxRetries:  2,
			DownloadDir: t.TempDir(),
			Container:   "mp4",
		},
		// 前置检查只要求可执行文件存在
		Binaries: config.BinariesConfig{YtDlp: "sh", FFmpeg: "sh"},
		Capture: config.CaptureConfig{
			M3U8Indicator: ".m3u8",
			SkipKeywords:  []string{"drm"},
			WaitSeconds:   1,
		},
		Stream: config.StreamConfig{
			AudioPathFragment:    "/a/",
			StreamExtension:      ".m3u8",
			VideoToken:           "::kp",
			PreferredVideoDomain: "net51.cc",
		},
	}
}

func newTestScraper(t *testing.T, auto *fakeAutomator, dl *fakeDownloader, mg *fakeMerger) (*Scraper, *state.Store) {
	t.Helper()
	cfg := testConfig(t)
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	store := state.New(filepath.Join(t.TempDir(), "state.json"))

	s := New(cfg, log, Deps{
		Store:     store,
		Automator: auto,
		Intercept: capture.New(cfg.Capture, cfg.Stream, log),
		Download:  dl,
		Merger:    mg,
		Cleaner:   cleanup.NewManager(log),
		Prompter:  &fakePrompter{input: "dark", confirm: true},
	})
	s.retryPause = time.Millisecond
	return s, store
}

func TestScraper_Execute_SeriesHappyPath(t *testing.T) {
	auto := seriesAutomator()
	dl := &fakeDownloader{}
	mg := &fakeMerger{}
	s, store := newTestScraper(t, auto, dl, mg)

	err := s.Execute(context.Background(), "dark")

	require.NoError(t, err)
	assert.Equal(t, 1, auto.setupCalls)
	assert.Equal(t, []int{0, 1}, auto.playedEps)
	assert.Equal(t, 2, auto.backs)

	require.Len(t, dl.tasksOf(model.MediaTypeVideo), 2)
	require.Len(t, dl.tasksOf(model.MediaTypeAudio), 2)

	require.Len(t, mg.jobs, 2)
	for _, job := range mg.jobs {
		assert.True(t, job.NeedsMux())
		assert.Contains(t, job.OutputPath, "Dark")
	}

	// 运行完全成功后状态文件被删除
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestScraper_Execute_MoviePlaysFeatureOnce(t *testing.T) {
	auto := &fakeAutomator{
		titles: []browser.TitleInfo{{Index: 0, Name: "Oldboy"}},
		obs:    defaultObservations(),
	}
	dl := &fakeDownloader{}
	mg := &fakeMerger{}
	s, _ := newTestScraper(t, auto, dl, mg)

	err := s.Execute(context.Background(), "oldboy")

	require.NoError(t, err)
	assert.Equal(t, 1, auto.playedFeat)
	assert.Empty(t, auto.playedEps)
	assert.Zero(t, auto.backs)
	require.Len(t, mg.jobs, 1)
	assert.Contains(t, mg.jobs[0].OutputPath, "Oldboy")
}

func TestScraper_Execute_AudioFailureDegradesToVideoOnly(t *testing.T) {
	auto := seriesAutomator()
	dl := &fakeDownloader{failTypes: map[model.MediaType]bool{model.MediaTypeAudio: true}}
	mg := &fakeMerger{}
	s, _ := newTestScraper(t, auto, dl, mg)

	err := s.Execute(context.Background(), "dark")

	require.NoError(t, err)
	require.Len(t, mg.jobs, 2)
	for _, job := range mg.jobs {
		assert.False(t, job.NeedsMux())
	}
}

func TestScraper_Execute_CandidatesScopedToOwnPlayback(t *testing.T) {
	auto := seriesAutomator()
	// 第一集多推一次播放列表请求，模拟播放器的重复拉取残留在通道里
	auto.obsByEp = map[int][]model.Observation{
		0: {
			{URL: "https://net51.cc/ep1/v/master::kp.m3u8"},
			{URL: "https://net51.cc/ep1/a/track.m3u8"},
			{URL: "https://net51.cc/ep1/v/master::kp.m3u8"},
		},
		1: {
			{URL: "https://net51.cc/ep2/v/master::kp.m3u8"},
			{URL: "https://net51.cc/ep2/a/track.m3u8"},
		},
	}
	dl := &fakeDownloader{}
	mg := &fakeMerger{}
	s, _ := newTestScraper(t, auto, dl, mg)

	err := s.Execute(context.Background(), "dark")

	require.NoError(t, err)
	videos := dl.tasksOf(model.MediaTypeVideo)
	require.Len(t, videos, 2)
	assert.Contains(t, videos[0].URL, "/ep1/")
	// 第二集不得消费第一集残留的候选
	assert.Contains(t, videos[1].URL, "/ep2/")
}

func TestScraper_Execute_InterruptDuringAudioDoesNotDegrade(t *testing.T) {
	auto := seriesAutomator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 音频下载中途收到中断信号：子进程被杀并报错
	dl := &fakeDownloader{
		failTypes: map[model.MediaType]bool{model.MediaTypeAudio: true},
		onRun: func(task model.DownloadTask) {
			if task.Type == model.MediaTypeAudio {
				cancel()
			}
		},
	}
	mg := &fakeMerger{}
	s, store := newTestScraper(t, auto, dl, mg)

	err := s.Execute(ctx, "dark")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// 条目不允许被晋升为仅视频输出
	assert.Empty(t, mg.jobs)

	st, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.NotEqual(t, model.ItemStatusCompleted, st.Status("1. One"))
	// 已落盘的视频流保留，续传时补齐音轨即可
	assert.True(t, st.IsMediaDone("1. One", "video"))
	assert.False(t, st.IsMediaDone("1. One", "audio"))
}

func TestScraper_Execute_VideoFailureFailsItem(t *testing.T) {
	auto := seriesAutomator()
	dl := &fakeDownloader{failTypes: map[model.MediaType]bool{model.MediaTypeVideo: true}}
	mg := &fakeMerger{}
	s, store := newTestScraper(t, auto, dl, mg)

	err := s.Execute(context.Background(), "dark")

	require.Error(t, err)
	assert.Equal(t, KindDownload, KindOf(err))
	assert.Empty(t, mg.jobs)

	// 失败后状态保留，条目标记为 failed
	st, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, model.ItemStatusFailed, st.Status("1. One"))
	assert.False(t, st.RunCompleted)
}

func TestScraper_Execute_RetryBudgetIsBounded(t *testing.T) {
	auto := seriesAutomator()
	auto.navErr = errors.New("会话被重定向到验证页")
	s, _ := newTestScraper(t, auto, &fakeDownloader{}, &fakeMerger{})

	err := s.Execute(context.Background(), "dark")

	require.Error(t, err)
	// MaxRetries=2：首次运行 + 2 次重试
	assert.Equal(t, 3, auto.setupCalls)
	assert.Equal(t, KindAuthentication, KindOf(err))
}

func TestScraper_Execute_FatalSkipsBrowserAndRetries(t *testing.T) {
	auto := seriesAutomator()
	mg := &fakeMerger{checkErr: errors.New("未找到混流工具")}
	s, _ := newTestScraper(t, auto, &fakeDownloader{}, mg)

	err := s.Execute(context.Background(), "dark")

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, KindMerge, KindOf(err))
	assert.Zero(t, auto.setupCalls)
}

func TestScraper_Execute_CorruptedStateIsFatal(t *testing.T) {
	auto := seriesAutomator()
	s, store := newTestScraper(t, auto, &fakeDownloader{}, &fakeMerger{})
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{broken"), 0644))

	err := s.Execute(context.Background(), "dark")

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.Equal(t, KindStateCorruption, KindOf(err))
	assert.ErrorIs(t, err, state.ErrCorrupted)
	assert.Zero(t, auto.setupCalls)
}

func TestScraper_Execute_ResumeSkipsCompletedItems(t *testing.T) {
	auto := seriesAutomator()
	dl := &fakeDownloader{}
	mg := &fakeMerger{}
	s, store := newTestScraper(t, auto, dl, mg)

	prev := model.NewRunState()
	prev.SearchQuery = "dark"
	prev.SelectedTitle = "Dark"
	prev.Language = "English"
	prev.SetEpisodes([]string{"1. One", "2. Two"})
	prev.SetStatus("1. One", model.ItemStatusCompleted)
	require.NoError(t, store.Persist(prev))

	err := s.Execute(context.Background(), "Dark")

	require.NoError(t, err)
	// 只播放第二集
	assert.Equal(t, []int{1}, auto.playedEps)
	require.Len(t, mg.jobs, 1)
	assert.Equal(t, "2. Two", mg.jobs[0].Item)
}

func TestScraper_Execute_MismatchedQueryDiscardsOldState(t *testing.T) {
	auto := seriesAutomator()
	dl := &fakeDownloader{}
	s, store := newTestScraper(t, auto, dl, &fakeMerger{})

	prev := model.NewRunState()
	prev.SearchQuery = "something else"
	prev.SetEpisodes([]string{"1. One"})
	prev.SetStatus("1. One", model.ItemStatusCompleted)
	require.NoError(t, store.Persist(prev))

	err := s.Execute(context.Background(), "dark")

	require.NoError(t, err)
	// 旧进度被丢弃，两集全部处理
	assert.Equal(t, []int{0, 1}, auto.playedEps)
}

func TestScraper_Execute_ResumeSkipsDownloadedMedia(t *testing.T) {
	auto := seriesAutomator()
	dl := &fakeDownloader{}
	mg := &fakeMerger{}
	s, store := newTestScraper(t, auto, dl, mg)

	prev := model.NewRunState()
	prev.SearchQuery = "dark"
	prev.SelectedTitle = "Dark"
	prev.Language = "English"
	prev.SetEpisodes([]string{"1. One", "2. Two"})
	prev.SetStatus("1. One", model.ItemStatusDownloading)
	prev.MarkMediaDone("1. One", "video")
	require.NoError(t, store.Persist(prev))

	err := s.Execute(context.Background(), "dark")

	require.NoError(t, err)
	// 第一集的视频流不再重新下载
	videos := dl.tasksOf(model.MediaTypeVideo)
	require.Len(t, videos, 1)
	assert.Equal(t, "2. Two", videos[0].Item)
	assert.Len(t, dl.tasksOf(model.MediaTypeAudio), 2)
	assert.Len(t, mg.jobs, 2)
}

func TestScraper_Execute_MergeFailureConsumesBudget(t *testing.T) {
	auto := seriesAutomator()
	mg := &fakeMerger{runErr: errors.New("ffmpeg 混流失败")}
	s, _ := newTestScraper(t, auto, &fakeDownloader{}, mg)

	err := s.Execute(context.Background(), "dark")

	require.Error(t, err)
	assert.Equal(t, KindMerge, KindOf(err))
	assert.False(t, IsFatal(err))
	assert.Equal(t, 3, auto.setupCalls)
}

func TestScraper_Snapshot_IsDeepCopy(t *testing.T) {
	s, _ := newTestScraper(t, seriesAutomator(), &fakeDownloader{}, &fakeMerger{})
	require.NoError(t, s.loadState("dark"))
	s.update(func(st *model.RunState) {
		st.SetEpisodes([]string{"1. One"})
		st.SetStatus("1. One", model.ItemStatusDownloading)
	})

	snap := s.Snapshot()
	snap.Progress["1. One"] = model.ItemStatusFailed
	snap.Episodes[0] = "mutated"

	assert.Equal(t, model.ItemStatusDownloading, s.st.Progress["1. One"])
	assert.Equal(t, "1. One", s.st.Episodes[0])
}

func TestKindOf_UnclassifiedErrorIsEmpty(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsFatal(errors.New("plain")))

	wrapped := wrapErr(KindNavigation, errors.New("选择器找不到"))
	assert.Equal(t, KindNavigation, KindOf(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.True(t, IsFatal(fatalErr(KindDownload, errors.New("缺少工具"))))
}
