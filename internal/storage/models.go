package storage

import (
	"time"
)

// Setting 用户设置表
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// 预定义的设置 Key
const (
	SettingKeyAria2URL   = "aria2Url"
	SettingKeyAria2Token = "aria2Token"
)

// 投递动作
const (
	DeliveryNative = "native"
	DeliveryTab    = "tab"
	DeliveryAria2  = "aria2"
)

// DeliveryRecord 投递历史表
type DeliveryRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Action    string    `gorm:"index" json:"action"` // native / tab / aria2
	ItemKey   string    `gorm:"index" json:"itemKey"`
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	Success   bool      `json:"success"`
	Result    string    `json:"result"` // downloadId / tabId / gid
	Error     string    `json:"error"`
	Timestamp int64     `gorm:"index" json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}
