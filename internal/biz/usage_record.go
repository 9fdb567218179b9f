package biz

import (
	"context"
	"time"
)

// UsageRecord 用量流水领域对象
// 流水只增不改：更正通过新记录完成，从不原地修改（计费可审计性不变式）
type UsageRecord struct {
	ID             string
	UserID         string
	ServiceType    string
	ResourceID     string
	CharacterCount int64
	CostCents      int64
	WasOverage     bool
	BillingMonth   string // YYYY-MM
	CreatedAt      time.Time
}

// UsageSum 按用户+服务+账单月份的用量汇总
type UsageSum struct {
	ServiceType    string
	CharacterCount int64
	CostCents      int64
	RecordCount    int64
}

// UsageRecordRepo 用量流水数据层接口（定义在 biz 层）
// 只暴露插入与汇总查询，没有更新或删除操作
type UsageRecordRepo interface {
	CreateUsageRecord(ctx context.Context, record *UsageRecord) error
	// SumUsageByMonth 汇总某用户某账单月份的用量（按服务分组）
	SumUsageByMonth(ctx context.Context, userID, month string) ([]*UsageSum, error)
	ListUsageRecords(ctx context.Context, userID string, page, pageSize int) ([]*UsageRecord, int64, error)
}
