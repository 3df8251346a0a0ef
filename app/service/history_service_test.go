package service

import (
	"path/filepath"
	"testing"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/database"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHistoryService(t *testing.T) *HistoryService {
	t.Helper()
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	db, err := database.Open(filepath.Join(t.TempDir(), "history.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return NewHistoryService(db, log)
}

func TestHistoryService_RecordAndRecent(t *testing.T) {
	s := testHistoryService(t)

	s.Record(&model.DownloadRecord{
		SearchQuery: "dark",
		Title:       "Dark",
		Season:      "Season 1",
		Episode:     "1. Secrets",
		Language:    "German",
		OutputPath:  "/downloads/Dark/Season 1/1. Secrets.mp4",
		Merged:      true,
		Status:      "completed",
	})
	s.Record(&model.DownloadRecord{
		Title:     "Dark",
		Episode:   "2. Lies",
		Status:    "failed",
		LastError: "捕获窗口内未发现视频流",
	})

	records := s.Recent(10)
	require.Len(t, records, 2)
	// 最新的记录在前
	assert.Equal(t, "2. Lies", records[0].Episode)
	assert.Equal(t, "1. Secrets", records[1].Episode)
	assert.True(t, records[1].Merged)
}

func TestHistoryService_Recent_HonorsLimit(t *testing.T) {
	s := testHistoryService(t)
	for i := 0; i < 5; i++ {
		s.Record(&model.DownloadRecord{Title: "Dark", Episode: "ep", Status: "completed"})
	}

	assert.Len(t, s.Recent(3), 3)
}

func TestHistoryService_NilDBIsNoop(t *testing.T) {
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	s := NewHistoryService(nil, log)

	s.Record(&model.DownloadRecord{Title: "Dark"})

	assert.Nil(t, s.Recent(10))
}
