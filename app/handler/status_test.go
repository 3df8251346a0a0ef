package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/config"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/logger"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	st model.RunState
}

func (s *stubProvider) Snapshot() model.RunState { return s.st }

func statusRouter(provider RunStateProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	h := NewStatusHandler(provider, service.NewHistoryService(nil, log))

	r := gin.New()
	r.GET("/api/status", h.GetStatus)
	r.GET("/api/history", h.GetHistory)
	return r
}

func TestStatusHandler_GetStatus_ReturnsSnapshot(t *testing.T) {
	st := model.NewRunState()
	st.SearchQuery = "dark"
	st.SetEpisodes([]string{"1. One"})
	st.SetStatus("1. One", model.ItemStatusDownloading)
	r := statusRouter(&stubProvider{st: *st})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Code int            `json:"code"`
		Data model.RunState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "dark", body.Data.SearchQuery)
	assert.Equal(t, model.ItemStatusDownloading, body.Data.Status("1. One"))
}

func TestStatusHandler_GetHistory_RejectsBadLimit(t *testing.T) {
	r := statusRouter(&stubProvider{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
