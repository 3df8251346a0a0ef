package cmd

import (
	"fmt"
	"io/fs"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/cleanup"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/state"

	"github.com/spf13/cobra"
)

var cleanTemps bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "清除运行状态",
	Long:  "删除持久化的运行状态文件，使下一次运行重新开始。加 --temps 时同时扫描并删除下载目录中的临时产物。",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			stdlog.Println("配置加载失败:", err)
			os.Exit(1)
		}
		log := logger.New(cfg.Log)
		defer log.Sync()

		store := state.New(cfg.App.StateFile)
		if err := store.Remove(); err != nil {
			log.Errorf("删除状态文件失败: %v", err)
			os.Exit(1)
		}
		fmt.Println("状态文件已清除:", store.Path())

		if cleanTemps {
			n := sweepOrphans(cfg.App.DownloadDir, log)
			fmt.Printf("已删除 %d 个临时产物\n", n)
		}
	},
}

// sweepOrphans 扫描下载目录，删除所有已知后缀的临时产物
func sweepOrphans(root string, log *logger.Logger) int {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !cleanup.IsTempArtifact(path) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			log.Warnf("删除临时产物 %s 失败: %v", path, err)
			return nil
		}
		log.Infof("已删除临时产物: %s", path)
		removed++
		return nil
	})
	if err != nil {
		log.Warnf("扫描下载目录失败: %v", err)
	}
	return removed
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanTemps, "temps", false, "同时删除下载目录中的临时产物")
	rootCmd.AddCommand(cleanCmd)
}
