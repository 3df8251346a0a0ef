package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.App.MaxRetries)
	assert.Equal(t, "mp4", cfg.App.Container)
	assert.Equal(t, "yt-dlp", cfg.Binaries.YtDlp)
	assert.Equal(t, "ffmpeg", cfg.Binaries.FFmpeg)
	assert.Equal(t, ".m3u8", cfg.Capture.M3U8Indicator)
	assert.Contains(t, cfg.Capture.SkipKeywords, "drm")
	assert.Equal(t, "/a/", cfg.Stream.AudioPathFragment)
	assert.Equal(t, "::kp", cfg.Stream.VideoToken)
	assert.Equal(t, "net51.cc", cfg.Stream.PreferredVideoDomain)
	assert.Equal(t, 0, cfg.Status.Port)
}

func TestLoad_ResolvesRelativePathsToUserDir(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.App.StateFile), "state file: %s", cfg.App.StateFile)
	assert.Contains(t, cfg.App.StateFile, UserDirName)
	assert.True(t, filepath.IsAbs(cfg.History.DBPath))
	assert.NotContains(t, cfg.App.DownloadDir, "~")
}

func TestLoad_ExplicitFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  max_retries: 7
  container: mkv
site:
  home_url: https://example.com/home
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.App.MaxRetries)
	assert.Equal(t, "mkv", cfg.App.Container)
	assert.Equal(t, "https://example.com/home", cfg.Site.HomeURL)
	// 未覆盖的字段保持默认
	assert.Equal(t, "yt-dlp", cfg.Binaries.YtDlp)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative retries": "app:\n  max_retries: -1\n",
		"zero wait":        "capture:\n  wait_seconds: 0\n",
		"bad delay range":  "browser:\n  min_delay_ms: 500\n  max_delay_ms: 100\n",
		"empty home url":   "site:\n  home_url: \"\"\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := Load(path)
		assert.Error(t, err, name)
	}
}
