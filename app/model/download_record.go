package model

import (
	"time"
)

// DownloadRecord 下载历史归档模型，条目完成或最终失败时写入一行
type DownloadRecord struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	SearchQuery string    `json:"search_query" gorm:"size:255;index;comment:搜索词"`
	Title       string    `json:"title" gorm:"size:255;not null;comment:片名"`
	Season      string    `json:"season" gorm:"size:64;comment:季"`
	Episode     string    `json:"episode" gorm:"size:255;not null;comment:剧集标识"`
	Language    string    `json:"language" gorm:"size:64;comment:音轨语言"`
	OutputPath  string    `json:"output_path" gorm:"type:text;comment:最终输出文件"`
	Merged      bool      `json:"merged" gorm:"comment:是否经过混流"`
	Status      string    `json:"status" gorm:"size:20;not null;comment:最终状态"`
	LastError   string    `json:"last_error" gorm:"type:text;comment:最后一次错误信息"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (DownloadRecord) TableName() string {
	return "download_records"
}
