package model

import (
	"time"
)

// UsageRecord 用量流水表（只增不改）
type UsageRecord struct {
	UsageRecordID  string    `gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `gorm:"type:varchar(36);not null;index:idx_user_month,priority:1"`
	ServiceType    string    `gorm:"type:varchar(32);not null"`
	ResourceID     string    `gorm:"type:varchar(64)"`
	CharacterCount int64     `gorm:"not null;default:0"`
	CostCents      int64     `gorm:"not null;default:0"`
	WasOverage     bool      `gorm:"not null;default:false"`
	BillingMonth   string    `gorm:"type:varchar(7);not null;index:idx_user_month,priority:2"` // 2024-11
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (UsageRecord) TableName() string {
	return "usage_record"
}
