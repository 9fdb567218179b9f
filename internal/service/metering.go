package service

import (
	"context"
	"time"

	"subscription-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// MeteringService 面向调用方（应用路由层）的计量服务
type MeteringService struct {
	uc  *biz.MeteringUseCase
	log *log.Helper
}

// NewMeteringService 创建 MeteringService
func NewMeteringService(uc *biz.MeteringUseCase, logger log.Logger) *MeteringService {
	return &MeteringService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// CheckQuotaRequest 配额判定请求
type CheckQuotaRequest struct {
	UserID         string `json:"user_id"`
	ServiceType    string `json:"service_type"`
	CharacterCount int64  `json:"character_count"`
}

// QuotaDecisionReply 配额判定响应
// 策略性拒绝（can_proceed=false）是正常响应，系统故障才返回错误
type QuotaDecisionReply struct {
	CanProceed         bool   `json:"can_proceed"`
	WithinLimit        bool   `json:"within_limit"`
	EstimatedCostCents int64  `json:"estimated_cost_cents"`
	OverageCostCents   int64  `json:"overage_cost_cents"`
	RemainingQuota     int64  `json:"remaining_quota"`
	Reason             string `json:"reason"`
}

// CheckQuota 配额判定
func (s *MeteringService) CheckQuota(ctx context.Context, req *CheckQuotaRequest) (*QuotaDecisionReply, error) {
	decision, err := s.uc.CanPerformAction(ctx, req.UserID, req.ServiceType, req.CharacterCount)
	if err != nil {
		s.log.Errorf("CheckQuota failed: %v", err)
		return nil, err
	}

	return &QuotaDecisionReply{
		CanProceed:         decision.CanProceed,
		WithinLimit:        decision.WithinLimit,
		EstimatedCostCents: decision.EstimatedCostCents,
		OverageCostCents:   decision.OverageCostCents,
		RemainingQuota:     decision.RemainingQuota,
		Reason:             decision.Reason,
	}, nil
}

// RecordUsageRequest 用量记录请求
type RecordUsageRequest struct {
	UserID         string `json:"user_id"`
	ServiceType    string `json:"service_type"`
	ResourceID     string `json:"resource_id"`
	CharacterCount int64  `json:"character_count"`
	CostCents      int64  `json:"cost_cents"`
	WasOverage     bool   `json:"was_overage"`
}

// RecordUsageReply 用量记录响应
type RecordUsageReply struct {
	RecordID string `json:"record_id"`
}

// RecordUsage 记录用量
// 写入失败向调用方返回错误；调用方可重试记录本身，绝不重试已完成的业务动作
func (s *MeteringService) RecordUsage(ctx context.Context, req *RecordUsageRequest) (*RecordUsageReply, error) {
	recordID, err := s.uc.RecordUsage(ctx, req.UserID, req.ServiceType, req.ResourceID,
		req.CharacterCount, req.CostCents, req.WasOverage)
	if err != nil {
		s.log.Errorf("RecordUsage failed: %v", err)
		return nil, err
	}

	return &RecordUsageReply{RecordID: recordID}, nil
}

// UsageSummaryRequest 用量汇总请求
type UsageSummaryRequest struct {
	UserID string `json:"user_id"`
}

// ServiceUsageReply 单个服务的用量/配额
type ServiceUsageReply struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// UsageSummaryReply 用量汇总响应
type UsageSummaryReply struct {
	UserID         string            `json:"user_id"`
	Tier           string            `json:"tier"`
	Audiobook      ServiceUsageReply `json:"audiobook"`
	Translation    ServiceUsageReply `json:"translation"`
	OverageCents   int64             `json:"overage_cents"`
	MonthlyResetAt time.Time         `json:"monthly_reset_at"`
}

// GetUsageSummary 获取用量汇总
func (s *MeteringService) GetUsageSummary(ctx context.Context, req *UsageSummaryRequest) (*UsageSummaryReply, error) {
	summary, err := s.uc.GetUserUsageSummary(ctx, req.UserID)
	if err != nil {
		s.log.Errorf("GetUsageSummary failed: %v", err)
		return nil, err
	}

	return &UsageSummaryReply{
		UserID: summary.UserID,
		Tier:   summary.Tier,
		Audiobook: ServiceUsageReply{
			Used:  summary.Audiobook.Used,
			Limit: summary.Audiobook.Limit,
		},
		Translation: ServiceUsageReply{
			Used:  summary.Translation.Used,
			Limit: summary.Translation.Limit,
		},
		OverageCents:   summary.OverageCents,
		MonthlyResetAt: summary.MonthlyResetAt,
	}, nil
}

// TierRequest 套餐查询请求
type TierRequest struct {
	Name string `json:"name"`
}

// TierReply 套餐信息响应
type TierReply struct {
	Name              string             `json:"name"`
	MonthlyPriceCents int64              `json:"monthly_price_cents"`
	Quotas            map[string]int64   `json:"quotas"`
	OverageRates      map[string]float64 `json:"overage_rates"`
	Features          []string           `json:"features"`
}

// GetTier 获取套餐信息
func (s *MeteringService) GetTier(ctx context.Context, req *TierRequest) (*TierReply, error) {
	tier := s.uc.GetTierInfo(req.Name)

	return &TierReply{
		Name:              tier.Name,
		MonthlyPriceCents: tier.MonthlyPriceCents,
		Quotas:            tier.Quotas,
		OverageRates:      tier.OverageRates,
		Features:          tier.Features,
	}, nil
}

// ListRecordsRequest 用量流水查询请求
type ListRecordsRequest struct {
	UserID   string `json:"user_id"`
	Page     int32  `json:"page"`
	PageSize int32  `json:"page_size"`
}

// UsageRecordReply 用量流水条目
type UsageRecordReply struct {
	ID             string    `json:"id"`
	ServiceType    string    `json:"service_type"`
	ResourceID     string    `json:"resource_id"`
	CharacterCount int64     `json:"character_count"`
	CostCents      int64     `json:"cost_cents"`
	WasOverage     bool      `json:"was_overage"`
	BillingMonth   string    `json:"billing_month"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListRecordsReply 用量流水响应
type ListRecordsReply struct {
	Total   int64               `json:"total"`
	Records []*UsageRecordReply `json:"records"`
}

// ListRecords 获取用量流水
func (s *MeteringService) ListRecords(ctx context.Context, req *ListRecordsRequest) (*ListRecordsReply, error) {
	page := int(req.Page)
	if page <= 0 {
		page = 1
	}
	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = 20
	}

	records, total, err := s.uc.ListRecords(ctx, req.UserID, page, pageSize)
	if err != nil {
		s.log.Errorf("ListRecords failed: %v", err)
		return nil, err
	}

	reply := &ListRecordsReply{
		Total:   total,
		Records: make([]*UsageRecordReply, 0, len(records)),
	}

	for _, r := range records {
		reply.Records = append(reply.Records, &UsageRecordReply{
			ID:             r.ID,
			ServiceType:    r.ServiceType,
			ResourceID:     r.ResourceID,
			CharacterCount: r.CharacterCount,
			CostCents:      r.CostCents,
			WasOverage:     r.WasOverage,
			BillingMonth:   r.BillingMonth,
			CreatedAt:      r.CreatedAt,
		})
	}

	return reply, nil
}
