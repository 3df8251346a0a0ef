package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// cfgFile --config 指定的配置文件路径，为空时走默认搜索顺序
var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "netflix-scrapper",
	Short:   "流媒体采集工具",
	Long:    "一个驱动浏览器会话捕获流地址并调度下载与合并的采集工具",
	Version: "1.0.0",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认依次查找 ~/.netflix-scrapper/config.yaml 与 ./config.yaml）")
}
