package cmd

import (
	"fmt"
	stdlog "log"
	"os"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/database"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/service"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查看下载历史",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			stdlog.Println("配置加载失败:", err)
			os.Exit(1)
		}
		log := logger.New(cfg.Log)
		defer log.Sync()

		db, err := database.Open(cfg.History.DBPath, log)
		if err != nil {
			log.Errorf("打开历史数据库失败: %v", err)
			os.Exit(1)
		}
		defer database.Close(db)

		records := service.NewHistoryService(db, log).Recent(historyLimit)
		if len(records) == 0 {
			fmt.Println("暂无下载历史")
			return
		}
		for _, r := range records {
			line := fmt.Sprintf("%s  [%s]  %s", r.CreatedAt.Format("2006-01-02 15:04"), r.Status, r.Title)
			if r.Episode != "" && r.Episode != r.Title {
				line += " / " + r.Episode
			}
			if r.Status == "completed" {
				line += "  -> " + r.OutputPath
			} else if r.LastError != "" {
				line += "  (" + r.LastError + ")"
			}
			fmt.Println(line)
		}
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "显示条数")
	rootCmd.AddCommand(historyCmd)
}
