package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// UserDirName 用户级配置目录名（位于 HOME 下）
const UserDirName = ".netflix-scrapper"

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Binaries   BinariesConfig   `mapstructure:"binaries"`
	Site       SiteConfig       `mapstructure:"site"`
	Capture    CaptureConfig    `mapstructure:"capture"`
	Stream     StreamConfig     `mapstructure:"stream_matching"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
	Keepalive  KeepaliveConfig  `mapstructure:"keepalive"`
	History    HistoryConfig    `mapstructure:"history"`
	Status     StatusConfig     `mapstructure:"status"`
	Log        LogConfig        `mapstructure:"log"`
}

type AppConfig struct {
	StateFile   string `mapstructure:"state_file"`   // 运行状态文件
	CookiesFile string `mapstructure:"cookies_file"` // 会话 Cookie 文件
	MaxRetries  int    `mapstructure:"max_retries"`  // 运行级重试预算
	DownloadDir string `mapstructure:"download_dir"` // 下载根目录
	Container   string `mapstructure:"container"`    // 最终输出容器格式
}

type BinariesConfig struct {
	FFmpeg string `mapstructure:"ffmpeg"`
	YtDlp  string `mapstructure:"yt_dlp"`
}

type SiteConfig struct {
	HomeURL       string `mapstructure:"home_url"`
	VerifyKeyword string `mapstructure:"verify_keyword"` // URL 中出现该关键字说明进入了人机验证页
}

type CaptureConfig struct {
	M3U8Indicator string   `mapstructure:"m3u8_indicator"`
	SkipKeywords  []string `mapstructure:"skip_keywords"`
	WaitSeconds   int      `mapstructure:"wait_seconds"` // 捕获窗口超时（秒）
}

type StreamConfig struct {
	AudioPathFragment    string `mapstructure:"audio_path_fragment"`
	StreamExtension      string `mapstructure:"stream_extension"`
	VideoToken           string `mapstructure:"video_token"`
	PreferredVideoDomain string `mapstructure:"preferred_video_domain"`
}

type BrowserConfig struct {
	Engine           string `mapstructure:"engine"` // 浏览器内核选择
	Headless         bool   `mapstructure:"headless"`
	ViewportWidth    int    `mapstructure:"viewport_width"`
	ViewportHeight   int    `mapstructure:"viewport_height"`
	UserAgent        string `mapstructure:"user_agent"`
	NavTimeoutSec    int    `mapstructure:"nav_timeout_seconds"`
	SelectTimeoutSec int    `mapstructure:"select_timeout_seconds"`
	MinDelayMs       int    `mapstructure:"min_delay_ms"` // 模拟人工操作的随机延迟下界
	MaxDelayMs       int    `mapstructure:"max_delay_ms"`
}

type DownloaderConfig struct {
	Retries             int      `mapstructure:"retries"`
	RetryDelaySeconds   int      `mapstructure:"retry_delay_seconds"`
	ConcurrentFragments int      `mapstructure:"concurrent_fragments"`
	UserAgent           string   `mapstructure:"user_agent"`
	Referer             string   `mapstructure:"referer"`
	BaseFlags           []string `mapstructure:"base_flags"`
	ProbeTimeoutSec     int      `mapstructure:"probe_timeout_seconds"`
	ProbeCacheTTLSec    int      `mapstructure:"probe_cache_ttl_seconds"`
}

type FFmpegConfig struct {
	Overwrite         bool `mapstructure:"overwrite"`
	CodecCopy         bool `mapstructure:"codec_copy"`
	MovflagsFaststart bool `mapstructure:"movflags_faststart"`
}

type KeepaliveConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"` // cron 表达式，默认每 5 分钟
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type StatusConfig struct {
	Port int `mapstructure:"port"` // 0 表示不启动状态服务
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json 或 text
	Output     string `mapstructure:"output"` // stdout 或 file
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// UserDir 返回用户级配置目录，不存在时创建
func UserDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return UserDirName
	}
	dir := filepath.Join(home, UserDirName)
	_ = os.MkdirAll(dir, 0755)
	return dir
}

// Load 加载配置。解析顺序（全序）：
//  1. 显式 --config 指定的路径
//  2. ~/.netflix-scrapper/config.yaml
//  3. ./config.yaml
//  4. 内置默认值
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", explicitPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(UserDir())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("读取配置文件出错: %w", err)
			}
			// 未找到配置文件时直接使用默认配置
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法解码配置: %w", err)
	}

	resolvePaths(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.state_file", "scraper_state.json")
	v.SetDefault("app.cookies_file", "cookies.json")
	v.SetDefault("app.max_retries", 3)
	v.SetDefault("app.download_dir", "~/Downloads")
	v.SetDefault("app.container", "mp4")

	v.SetDefault("binaries.ffmpeg", "ffmpeg")
	v.SetDefault("binaries.yt_dlp", "yt-dlp")

	v.SetDefault("site.home_url", "https://net22.cc/home")
	v.SetDefault("site.verify_keyword", "verify")

	v.SetDefault("capture.m3u8_indicator", ".m3u8")
	v.SetDefault("capture.skip_keywords", []string{"ping.gif", "drm", "google", "analytics", "jwpltx", "prcdn"})
	v.SetDefault("capture.wait_seconds", 15)

	v.SetDefault("stream_matching.audio_path_fragment", "/a/")
	v.SetDefault("stream_matching.stream_extension", ".m3u8")
	v.SetDefault("stream_matching.video_token", "::kp")
	v.SetDefault("stream_matching.preferred_video_domain", "net51.cc")

	v.SetDefault("browser.engine", "chromium")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.viewport_width", 1200)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.select_timeout_seconds", 15)
	v.SetDefault("browser.min_delay_ms", 800)
	v.SetDefault("browser.max_delay_ms", 2500)

	v.SetDefault("downloader.retries", 5)
	v.SetDefault("downloader.retry_delay_seconds", 5)
	v.SetDefault("downloader.concurrent_fragments", 16)
	v.SetDefault("downloader.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("downloader.referer", "https://net51.cc/")
	v.SetDefault("downloader.base_flags", []string{"--no-part", "--no-warnings", "--newline"})
	v.SetDefault("downloader.probe_timeout_seconds", 10)
	v.SetDefault("downloader.probe_cache_ttl_seconds", 300)

	v.SetDefault("ffmpeg.overwrite", true)
	v.SetDefault("ffmpeg.codec_copy", true)
	v.SetDefault("ffmpeg.movflags_faststart", true)

	v.SetDefault("keepalive.enabled", true)
	v.SetDefault("keepalive.schedule", "@every 5m")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", "history.db")

	v.SetDefault("status.port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "scraper.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

// resolvePaths 把 app 段里的相对路径解析到用户配置目录下，~ 展开为 HOME
func resolvePaths(cfg *Config) {
	dir := UserDir()
	if !filepath.IsAbs(cfg.App.StateFile) {
		cfg.App.StateFile = filepath.Join(dir, cfg.App.StateFile)
	}
	if !filepath.IsAbs(cfg.App.CookiesFile) {
		cfg.App.CookiesFile = filepath.Join(dir, cfg.App.CookiesFile)
	}
	if !filepath.IsAbs(cfg.History.DBPath) {
		cfg.History.DBPath = filepath.Join(dir, cfg.History.DBPath)
	}
	cfg.App.DownloadDir = expandHome(cfg.App.DownloadDir)
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// validateConfig 验证配置的有效性
func validateConfig(cfg *Config) error {
	if cfg.Site.HomeURL == "" {
		return fmt.Errorf("站点首页地址未设置")
	}
	if cfg.App.MaxRetries < 0 {
		return fmt.Errorf("重试预算不能为负数: %d", cfg.App.MaxRetries)
	}
	if cfg.Binaries.FFmpeg == "" || cfg.Binaries.YtDlp == "" {
		return fmt.Errorf("外部工具名称未设置")
	}
	if cfg.Capture.M3U8Indicator == "" {
		return fmt.Errorf("流地址匹配标记未设置")
	}
	if cfg.Capture.WaitSeconds <= 0 {
		return fmt.Errorf("捕获窗口超时必须为正数: %d", cfg.Capture.WaitSeconds)
	}
	if cfg.Downloader.Retries <= 0 {
		return fmt.Errorf("下载重试次数必须为正数: %d", cfg.Downloader.Retries)
	}
	if cfg.Browser.MinDelayMs > cfg.Browser.MaxDelayMs {
		return fmt.Errorf("浏览器随机延迟区间无效: [%d, %d]", cfg.Browser.MinDelayMs, cfg.Browser.MaxDelayMs)
	}
	return nil
}
