package biz

import (
	"context"
	"math"
	"time"

	"subscription-service/internal/constants"
	meteringErrors "subscription-service/internal/errors"
	"subscription-service/internal/metrics"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// QuotaDecision 配额判定结果
// EstimatedCostCents 为本次动作的增量费用，等于超额部分费用（额度内字符已含在套餐内）
type QuotaDecision struct {
	CanProceed         bool
	WithinLimit        bool
	EstimatedCostCents int64
	OverageCostCents   int64
	RemainingQuota     int64
	Reason             string
}

// ServiceUsage 单个服务的用量/配额
type ServiceUsage struct {
	Used  int64
	Limit int64
}

// UsageSummary 用量汇总（展示用）
type UsageSummary struct {
	UserID         string
	Tier           string
	Audiobook      ServiceUsage
	Translation    ServiceUsage
	OverageCents   int64
	MonthlyResetAt time.Time
}

// MeteringRepo 统一数据层接口（用于跨领域事务）
// 用量提交必须在一个事务内完成流水插入、月份惰性重置与计数器原子自增
type MeteringRepo interface {
	// 订阅者相关
	GetSubscriber(ctx context.Context, userID string) (*Subscriber, error)
	ListUserIDs(ctx context.Context) ([]string, error)

	// 用量提交（事务）
	// 返回流水ID；event.RecordID 为空时由数据层生成
	CommitUsage(ctx context.Context, event *UsageEvent) (string, error)
	BatchCommitUsage(ctx context.Context, events []*UsageEvent) error

	// 流水相关
	SumUsageByMonth(ctx context.Context, userID, month string) ([]*UsageSum, error)
	ListUsageRecords(ctx context.Context, userID string, page, pageSize int) ([]*UsageRecord, int64, error)

	// 对账相关：以流水之和修复某用户当月计数器
	ReconcileSubscriber(ctx context.Context, userID, month string) error
}

// MeteringUseCase 计量业务逻辑
// 配额判定是纯读操作，可重复调用；状态只由 RecordUsage 在动作确认完成后变更
type MeteringUseCase struct {
	catalog *TierCatalog
	repo    MeteringRepo
	conf    *MeteringConfig
	log     *log.Helper
	metrics *metrics.MeteringMetrics
}

// NewMeteringUseCase 创建计量 UseCase
func NewMeteringUseCase(catalog *TierCatalog, repo MeteringRepo, conf *MeteringConfig, logger log.Logger) *MeteringUseCase {
	return &MeteringUseCase{
		catalog: catalog,
		repo:    repo,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// validServiceType 服务类型是否合法
func validServiceType(serviceType string) bool {
	switch serviceType {
	case constants.ServiceTypeAudiobook, constants.ServiceTypeTranslation:
		return true
	}
	return false
}

// CanPerformAction 配额判定
// 纯读、无副作用，可用于界面上的费用预估；存储层错误直接向上传播，不回退默认值
func (uc *MeteringUseCase) CanPerformAction(ctx context.Context, userID, serviceType string, characterCount int64) (*QuotaDecision, error) {
	startTime := time.Now()
	defer func() {
		if uc.metrics != nil {
			uc.metrics.QuotaCheckDuration.WithLabelValues(serviceType).Observe(time.Since(startTime).Seconds())
		}
	}()

	if !validServiceType(serviceType) {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeUnknownServiceType)
	}
	if characterCount < 0 {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeInvalidCharacterCount)
	}

	sub, err := uc.repo.GetSubscriber(ctx, userID)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.QuotaCheckTotal.WithLabelValues(serviceType, constants.QuotaCheckResultError).Inc()
		}
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeQuotaCheckFailed)
	}

	// 未知用户必须显式失败：不能默认按 free 套餐处理，否则是计费/安全漏洞
	if sub == nil {
		if uc.metrics != nil {
			uc.metrics.QuotaCheckTotal.WithLabelValues(serviceType, constants.QuotaCheckResultError).Inc()
		}
		return nil, pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeSubscriberNotFound)
	}

	// 特权账号短路：不限量、零费用
	// 以账号上的能力标记判定，开通时授予，可审计、可撤销
	if sub.UnlimitedAccess {
		if uc.metrics != nil {
			uc.metrics.QuotaCheckTotal.WithLabelValues(serviceType, constants.QuotaCheckResultAllowed).Inc()
		}
		return &QuotaDecision{
			CanProceed:     true,
			WithinLimit:    true,
			RemainingQuota: math.MaxInt64,
			Reason:         constants.DecisionReasonUnlimited,
		}, nil
	}

	tier := uc.catalog.GetTier(sub.Tier)

	// 配额为 0 的服务直接拒绝，不提供按量付费
	// 这是正常的判定结果，不是错误
	if !tier.OffersService(serviceType) {
		if uc.metrics != nil {
			uc.metrics.QuotaCheckTotal.WithLabelValues(serviceType, constants.QuotaCheckResultDenied).Inc()
		}
		return &QuotaDecision{
			CanProceed: false,
			Reason:     constants.DecisionReasonNotOffered,
		}, nil
	}

	now := time.Now()
	limit := tier.QuotaFor(serviceType)
	used := sub.UsedFor(serviceType, now)

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	withinChars := characterCount
	if withinChars > remaining {
		withinChars = remaining
	}
	overageChars := characterCount - withinChars

	// 超额费用向上取整到分，从不向下舍入（不少计费）
	var overageCost int64
	if overageChars > 0 {
		overageCost = int64(math.Ceil(float64(overageChars) * tier.OverageRateFor(serviceType) / 1000.0))
	}

	if uc.metrics != nil {
		uc.metrics.QuotaCheckTotal.WithLabelValues(serviceType, constants.QuotaCheckResultAllowed).Inc()
		// 检查配额是否即将用尽（剩余 < 阈值）
		remainingPercent := float64(remaining) / float64(limit) * 100
		if remainingPercent < uc.conf.QuotaLowPercentThreshold {
			uc.metrics.QuotaLowAlert.WithLabelValues(serviceType).Set(1)
		} else {
			uc.metrics.QuotaLowAlert.WithLabelValues(serviceType).Set(0)
		}
	}

	reason := constants.DecisionReasonIncluded
	if overageChars > 0 {
		reason = constants.DecisionReasonOverage
	}

	// 合规套餐允许超出配额继续使用（按量付费），第 3 步的服务门槛是唯一的硬性拒绝
	return &QuotaDecision{
		CanProceed:         true,
		WithinLimit:        overageChars == 0,
		EstimatedCostCents: overageCost,
		OverageCostCents:   overageCost,
		RemainingQuota:     remaining,
		Reason:             reason,
	}, nil
}

// RecordUsage 记录用量
// 调用方应先判定配额、执行动作，确认动作完成后再记录，避免为失败的工作计费
// 写入失败向调用方返回错误（可重试记录本身，绝不重试已完成的业务动作）
func (uc *MeteringUseCase) RecordUsage(ctx context.Context, userID, serviceType, resourceID string, characterCount, costCents int64, wasOverage bool) (string, error) {
	startTime := time.Now()

	if !validServiceType(serviceType) {
		return "", pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeUnknownServiceType)
	}
	if characterCount < 0 {
		return "", pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeInvalidCharacterCount)
	}

	now := time.Now()
	event := &UsageEvent{
		UserID:         userID,
		ServiceType:    serviceType,
		ResourceID:     resourceID,
		CharacterCount: characterCount,
		CostCents:      costCents,
		WasOverage:     wasOverage,
		RecordedAt:     now,
		Month:          now.Format(constants.TimeFormatMonth),
	}

	recordID, err := uc.repo.CommitUsage(ctx, event)

	if uc.metrics != nil {
		uc.metrics.RecordUsageDuration.WithLabelValues(serviceType).Observe(time.Since(startTime).Seconds())
		if err != nil {
			uc.metrics.RecordFailedTotal.Inc()
		} else {
			kind := constants.UsageKindIncluded
			if wasOverage {
				kind = constants.UsageKindOverage
				uc.metrics.OverageCentsTotal.WithLabelValues(serviceType).Add(float64(costCents))
			}
			uc.metrics.RecordUsageTotal.WithLabelValues(serviceType, kind).Inc()
			uc.metrics.RecordedCharacters.WithLabelValues(serviceType, kind).Add(float64(characterCount))
		}
	}

	return recordID, err
}

// GetUserUsageSummary 获取用量汇总
// 纯读，不触发月份重置：月份切换后、下一次记录前读取到的计数器可能是上月残留，
// 读取侧按当前月份折算为 0 展示（见 Subscriber.UsedFor）
func (uc *MeteringUseCase) GetUserUsageSummary(ctx context.Context, userID string) (*UsageSummary, error) {
	sub, err := uc.repo.GetSubscriber(ctx, userID)
	if err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeSubscriberGetFailed)
	}
	if sub == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeSubscriberNotFound)
	}

	tier := uc.catalog.GetTier(sub.Tier)
	now := time.Now()

	return &UsageSummary{
		UserID: sub.UserID,
		Tier:   tier.Name,
		Audiobook: ServiceUsage{
			Used:  sub.UsedFor(constants.ServiceTypeAudiobook, now),
			Limit: tier.QuotaFor(constants.ServiceTypeAudiobook),
		},
		Translation: ServiceUsage{
			Used:  sub.UsedFor(constants.ServiceTypeTranslation, now),
			Limit: tier.QuotaFor(constants.ServiceTypeTranslation),
		},
		OverageCents:   sub.CurrentOverageCents(now),
		MonthlyResetAt: sub.MonthlyResetAt,
	}, nil
}

// GetTierInfo 获取套餐信息（纯查表）
func (uc *MeteringUseCase) GetTierInfo(name string) *Tier {
	return uc.catalog.GetTier(name)
}

// ListRecords 获取用量流水
func (uc *MeteringUseCase) ListRecords(ctx context.Context, userID string, page, pageSize int) ([]*UsageRecord, int64, error) {
	return uc.repo.ListUsageRecords(ctx, userID, page, pageSize)
}

// ReconcileMonthlyCounters 以流水之和修复所有订阅者的当月计数器（cron 调用）
// 反范式计数器与只增流水之间的漂移由此兜底修复
func (uc *MeteringUseCase) ReconcileMonthlyCounters(ctx context.Context) (int, []string, error) {
	month := time.Now().Format(constants.TimeFormatMonth)

	userIDs, err := uc.repo.ListUserIDs(ctx)
	if err != nil {
		return 0, nil, pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeListUserIDsFailed)
	}

	if len(userIDs) == 0 {
		uc.log.Info("No subscribers found, skip reconcile")
		return 0, []string{}, nil
	}

	successCount := 0
	successUserIDs := []string{}

	for _, userID := range userIDs {
		if err := uc.repo.ReconcileSubscriber(ctx, userID, month); err != nil {
			uc.log.Warnf("ReconcileSubscriber failed for user=%s, month=%s: %v", userID, month, err)
			continue
		}
		successCount++
		successUserIDs = append(successUserIDs, userID)
	}

	uc.log.Infof("Reconcile counters completed: month=%s, totalUsers=%d, successUsers=%d",
		month, len(userIDs), successCount)

	return successCount, successUserIDs, nil
}
