package handler

import (
	"net/http"
	"strconv"

	"github.com/AliHaSSan-13/Netflix-scrapper/app/model"
	"github.com/AliHaSSan-13/Netflix-scrapper/app/service"

	"github.com/gin-gonic/gin"
)

// RunStateProvider 运行状态快照来源
type RunStateProvider interface {
	Snapshot() model.RunState
}

// StatusHandler 运行状态处理器
type StatusHandler struct {
	provider RunStateProvider
	history  *service.HistoryService
}

// NewStatusHandler 创建运行状态处理器
func NewStatusHandler(provider RunStateProvider, history *service.HistoryService) *StatusHandler {
	return &StatusHandler{provider: provider, history: history}
}

// GetStatus 获取当前运行状态快照
func (h *StatusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    h.provider.Snapshot(),
	})
}

// GetHistory 获取最近的下载历史
func (h *StatusHandler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "无效的 limit 参数",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    h.history.Recent(limit),
	})
}
