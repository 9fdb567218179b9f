package data

import (
	"context"

	"subscription-service/internal/biz"
	"subscription-service/internal/data/model"
	meteringErrors "subscription-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// usageRecordRepo 用量流水相关数据访问
// 只增不改：本文件不包含任何 UPDATE/DELETE 操作（计费可审计性不变式）
type usageRecordRepo struct {
	data *Data
	log  *log.Helper
}

// NewUsageRecordRepo 创建用量流水 repo（返回 biz.UsageRecordRepo 接口）
func NewUsageRecordRepo(data *Data, logger log.Logger) biz.UsageRecordRepo {
	return &usageRecordRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateUsageRecord 插入用量流水
func (r *usageRecordRepo) CreateUsageRecord(ctx context.Context, record *biz.UsageRecord) error {
	recordID := record.ID
	if recordID == "" {
		recordID = uuid.New().String()
	}
	m := model.UsageRecord{
		UsageRecordID:  recordID,
		UserID:         record.UserID,
		ServiceType:    record.ServiceType,
		ResourceID:     record.ResourceID,
		CharacterCount: record.CharacterCount,
		CostCents:      record.CostCents,
		WasOverage:     record.WasOverage,
		BillingMonth:   record.BillingMonth,
	}
	if err := r.data.db.WithContext(ctx).Create(&m).Error; err != nil {
		return pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeUsageRecordCreateFailed)
	}
	record.ID = recordID
	return nil
}

// SumUsageByMonth 按服务分组汇总某用户某账单月份的用量
func (r *usageRecordRepo) SumUsageByMonth(ctx context.Context, userID, month string) ([]*biz.UsageSum, error) {
	var rows []struct {
		ServiceType    string
		CharacterCount int64
		CostCents      int64
		RecordCount    int64
	}

	if err := r.data.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Where("user_id = ? AND billing_month = ?", userID, month).
		Select(
			"service_type",
			"COALESCE(SUM(character_count), 0) as character_count",
			"COALESCE(SUM(cost_cents), 0) as cost_cents",
			"COUNT(*) as record_count",
		).
		Group("service_type").
		Scan(&rows).Error; err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeUsageSumFailed)
	}

	sums := make([]*biz.UsageSum, 0, len(rows))
	for _, row := range rows {
		sums = append(sums, &biz.UsageSum{
			ServiceType:    row.ServiceType,
			CharacterCount: row.CharacterCount,
			CostCents:      row.CostCents,
			RecordCount:    row.RecordCount,
		})
	}
	return sums, nil
}

// ListUsageRecords 获取用量流水列表
func (r *usageRecordRepo) ListUsageRecords(ctx context.Context, userID string, page, pageSize int) ([]*biz.UsageRecord, int64, error) {
	var models []model.UsageRecord
	var total int64

	offset := (page - 1) * pageSize
	db := r.data.db.WithContext(ctx).Model(&model.UsageRecord{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Offset(offset).Limit(pageSize).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, 0, err
	}

	var records []*biz.UsageRecord
	for _, m := range models {
		records = append(records, &biz.UsageRecord{
			ID:             m.UsageRecordID,
			UserID:         m.UserID,
			ServiceType:    m.ServiceType,
			ResourceID:     m.ResourceID,
			CharacterCount: m.CharacterCount,
			CostCents:      m.CostCents,
			WasOverage:     m.WasOverage,
			BillingMonth:   m.BillingMonth,
			CreatedAt:      m.CreatedAt,
		})
	}
	return records, total, nil
}
