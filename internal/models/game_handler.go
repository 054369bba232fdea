package models

import (
	"time"
)

// GameHandler 对局状态记录（共享存储中的一行）
type GameHandler struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	State     []byte    `gorm:"not null" json:"state"`   // 序列化后的对局状态
	Version   int64     `gorm:"not null;default:0" json:"version"` // 每次写入递增
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (GameHandler) TableName() string {
	return "game_handlers"
}

// UiSession 界面会话存活记录
type UiSession struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	LastSeenAt time.Time `gorm:"index;not null" json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName 指定表名
func (UiSession) TableName() string {
	return "ui_sessions"
}
