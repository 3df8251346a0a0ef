package cmd

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/browser"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/capture"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/cleanup"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/database"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/download"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/merge"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/scraper"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/server"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/service"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/state"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/ui"

	"github.com/spf13/cobra"
)

var (
	runQuery      string
	runEngine     string
	runHeadless   bool
	runOutputDir  string
	runStatusPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一次采集运行",
	Long:  "建立浏览器会话，搜索并选择内容，捕获流地址后调度下载与合并。中断后再次执行可续传。",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			stdlog.Println("配置加载失败:", err)
			os.Exit(1)
		}

		// 命令行参数覆盖配置文件
		if runEngine != "" {
			cfg.Browser.Engine = runEngine
		}
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = runHeadless
		}
		if runOutputDir != "" {
			cfg.App.DownloadDir = runOutputDir
		}
		if cmd.Flags().Changed("status-port") {
			cfg.Status.Port = runStatusPort
		}

		log := logger.New(cfg.Log)
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// 历史归档，数据库不可用时降级为不记录
		history := service.NewHistoryService(nil, log)
		if cfg.History.Enabled {
			db, err := database.Open(cfg.History.DBPath, log)
			if err != nil {
				log.Warnf("历史数据库不可用，本次运行不记录历史: %v", err)
			} else {
				defer database.Close(db)
				history = service.NewHistoryService(db, log)
			}
		}

		automator := browser.NewRod(cfg, log)
		cleaner := cleanup.NewManager(log)
		watcher, err := cleanup.NewArtifactWatcher(cleaner, log)
		if err != nil {
			log.Warnf("无法创建临时文件监听器: %v", err)
		} else {
			defer watcher.Stop()
		}

		var keepalive *service.KeepaliveService
		if cfg.Keepalive.Enabled {
			keepalive = service.NewKeepaliveService(cfg.Keepalive, automator, log)
		}

		coordinator := download.New(cfg.Downloader, cfg.Binaries.YtDlp, log)
		go displayProgress(coordinator)

		s := scraper.New(cfg, log, scraper.Deps{
			Store:     state.New(cfg.App.StateFile),
			Automator: automator,
			Intercept: capture.New(cfg.Capture, cfg.Stream, log),
			Download:  coordinator,
			Merger:    merge.New(cfg.FFmpeg, cfg.Binaries.FFmpeg, log),
			Cleaner:   cleaner,
			Watcher:   watcher,
			Prompter:  ui.NewPrompt(),
			History:   history,
			Keepalive: keepalive,
		})

		// 可选的只读状态服务
		var srv *server.Server
		if cfg.Status.Port > 0 {
			srv = server.New(cfg.Status.Port, s, history, log)
			go func() {
				if err := srv.Start(); err != nil {
					log.Errorf("状态服务异常退出: %v", err)
				}
			}()
		}

		runErr := s.Execute(ctx, strings.TrimSpace(runQuery))
		coordinator.CloseProgress()
		fmt.Println()

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorf("状态服务关闭失败: %v", err)
			}
			cancel()
		}

		if runErr != nil {
			log.Errorf("运行失败: %v", runErr)
			os.Exit(1)
		}
		log.Infof("运行成功")
	},
}

// displayProgress 消费下载进度流并刷新同一行展示
func displayProgress(coordinator *download.Coordinator) {
	for ev := range coordinator.Progress() {
		if ev.Total != "" {
			fmt.Printf("\r[%s/%s] %5.1f%% / %s  %s   ", ev.Item, ev.Type, ev.Percent, ev.Total, ev.Rate)
		} else {
			fmt.Printf("\r[%s/%s] %5.1f%%   ", ev.Item, ev.Type, ev.Percent)
		}
	}
}

func init() {
	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "搜索词，留空时交互式输入")
	runCmd.Flags().StringVarP(&runEngine, "browser", "b", "", "浏览器内核（默认取配置文件）")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "无头模式运行浏览器")
	runCmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "下载根目录（默认取配置文件）")
	runCmd.Flags().IntVar(&runStatusPort, "status-port", 0, "状态服务端口，0 表示不启动")
	rootCmd.AddCommand(runCmd)
}
