package model

import (
	"time"
)

// Subscriber 订阅者计量表
// 滚动计数器只在用量提交事务内更新；monthly_reset_at 与当前月份不同时惰性清零
type Subscriber struct {
	SubscriberID         string    `gorm:"primaryKey;type:varchar(36)"`
	UserID               string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	Email                string    `gorm:"type:varchar(255)"`
	Tier                 string    `gorm:"type:varchar(32);not null;default:'free'"`
	UnlimitedAccess      bool      `gorm:"not null;default:false"`
	AudiobookCharsUsed   int64     `gorm:"not null;default:0"`
	TranslationCharsUsed int64     `gorm:"not null;default:0"`
	OverageCents         int64     `gorm:"not null;default:0"`
	MonthlyResetAt       time.Time `gorm:"not null"`
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Subscriber) TableName() string {
	return "subscriber"
}
