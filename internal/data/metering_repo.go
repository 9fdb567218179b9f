package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"subscription-service/internal/biz"
	"subscription-service/internal/constants"
	"subscription-service/internal/data/model"
	meteringErrors "subscription-service/internal/errors"
	"subscription-service/internal/metrics"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const reserveScript = `
local quotaKey = KEYS[1]
local count = tonumber(ARGV[1])

-- Get remaining quota for the current month
local remaining = redis.call('GET', quotaKey)
if not remaining then
    return {-1, 0} -- Quota Cache Missing
end
remaining = tonumber(remaining)

-- Reserve the in-quota portion; the rest is overage and needs no reservation
local within = count
if within > remaining then
    within = remaining
end
if within > 0 then
    redis.call('DECRBY', quotaKey, within)
end
return {1, within}
`

// meteringRepo 组合 repo，实现 biz.MeteringRepo 接口
type meteringRepo struct {
	data            *Data
	log             *log.Helper
	sync            *redsync.Redsync
	catalog         *biz.TierCatalog
	metrics         *metrics.MeteringMetrics
	subscriberRepo  biz.SubscriberRepo
	usageRecordRepo biz.UsageRecordRepo
}

// NewMeteringRepo 创建组合 repo
func NewMeteringRepo(
	data *Data,
	sync *redsync.Redsync,
	catalog *biz.TierCatalog,
	logger log.Logger,
	subscriberRepo biz.SubscriberRepo,
	usageRecordRepo biz.UsageRecordRepo,
) biz.MeteringRepo {
	return &meteringRepo{
		data:            data,
		log:             log.NewHelper(logger),
		sync:            sync,
		catalog:         catalog,
		metrics:         metrics.GetMetrics(),
		subscriberRepo:  subscriberRepo,
		usageRecordRepo: usageRecordRepo,
	}
}

// ========== 订阅者相关 ==========

// GetSubscriber 获取订阅者
func (r *meteringRepo) GetSubscriber(ctx context.Context, userID string) (*biz.Subscriber, error) {
	return r.subscriberRepo.GetSubscriber(ctx, userID)
}

// ListUserIDs 获取所有订阅者的用户ID
func (r *meteringRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	return r.subscriberRepo.ListUserIDs(ctx)
}

// ========== 流水相关 ==========

// SumUsageByMonth 汇总某用户某账单月份的用量
func (r *meteringRepo) SumUsageByMonth(ctx context.Context, userID, month string) ([]*biz.UsageSum, error) {
	return r.usageRecordRepo.SumUsageByMonth(ctx, userID, month)
}

// ListUsageRecords 获取用量流水列表
func (r *meteringRepo) ListUsageRecords(ctx context.Context, userID string, page, pageSize int) ([]*biz.UsageRecord, int64, error) {
	return r.usageRecordRepo.ListUsageRecords(ctx, userID, page, pageSize)
}

// ========== 用量提交 ==========

// CommitUsage 核心用量提交逻辑
// 优化版：优先使用 Redis Lua 预占配额 + RocketMQ 异步落库
// 降级版：如果 MQ 未启用，回退到 DB 事务
func (r *meteringRepo) CommitUsage(ctx context.Context, event *biz.UsageEvent) (string, error) {
	// 如果 MQ 未启用，走降级方案（DB事务）
	if r.data.mq == nil {
		return r.commitUsageDB(ctx, event)
	}

	quotaKey := fmt.Sprintf("%s%s:%s:%s", constants.RedisKeyQuota, event.UserID, event.ServiceType, event.Month)

	// 执行 Lua 脚本
	// 重试机制：如果 Cache Missing，加载后重试
	for i := 0; i < 2; i++ {
		res, err := r.data.rdb.Eval(ctx, reserveScript, []string{quotaKey}, event.CharacterCount).Result()
		if err != nil {
			r.log.Errorf("Lua script failed: %v", err)
			return r.commitUsageDB(ctx, event) // 出错降级
		}

		vals, ok := res.([]interface{})
		if !ok || len(vals) != 2 {
			r.log.Errorf("Lua script returned invalid result: %v", res)
			return r.commitUsageDB(ctx, event)
		}

		code := int(vals[0].(int64))

		if code == 1 {
			// 预占成功，发送消息到 RocketMQ
			if event.RecordID == "" {
				event.RecordID = uuid.New().String()
			}
			msgBytes, _ := json.Marshal(event)
			msg := primitive.NewMessage(r.data.mqTopic, msgBytes)

			if _, err := r.data.mq.SendSync(ctx, msg); err != nil {
				r.log.Errorf("Send RocketMQ failed: %v", err)
				// 降级回 DB 事务
				return r.commitUsageDB(ctx, event)
			}

			// 订阅者缓存已过期，删除以便下次回源
			r.invalidateSubscriberCache(event.UserID)

			return event.RecordID, nil
		} else if code == -1 {
			// Cache Missing，加载数据后重试
			if i == 0 {
				r.loadQuotaCache(ctx, event.UserID, event.ServiceType, event.Month)
				continue
			}
			// 还是缺失，降级
			return r.commitUsageDB(ctx, event)
		}
	}

	return r.commitUsageDB(ctx, event)
}

// BatchCommitUsage 批量落库用量事件（Consumer调用）
func (r *meteringRepo) BatchCommitUsage(ctx context.Context, events []*biz.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range events {
			if err := r.applyUsageTx(tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, event := range events {
		r.invalidateSubscriberCache(event.UserID)
	}
	return nil
}

// commitUsageDB DB 事务用量提交
// 按用户加分布式锁串行化，避免并发请求联合超扣时计数器失真
func (r *meteringRepo) commitUsageDB(ctx context.Context, event *biz.UsageEvent) (string, error) {
	lockKey := fmt.Sprintf("%s%s", constants.RedisKeyMeterLock, event.UserID)
	if r.sync != nil {
		lockStartTime := time.Now()
		mutex := r.sync.NewMutex(lockKey, redsync.WithExpiry(5*time.Second))
		if err := mutex.Lock(); err != nil {
			r.log.Errorf("Failed to acquire lock for commit usage: user_id=%s, service=%s, error=%v", event.UserID, event.ServiceType, err)
			if r.metrics != nil {
				r.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultFailed).Inc()
				r.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
			}
			return "", pkgErrors.NewBizErrorWithLang(ctx, meteringErrors.ErrCodeMeterLockFailed)
		}
		if r.metrics != nil {
			r.metrics.LockAcquireTotal.WithLabelValues(constants.LockResultSuccess).Inc()
			r.metrics.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		}
		defer func() {
			if ok, err := mutex.Unlock(); !ok || err != nil {
				r.log.Warnf("Failed to unlock for commit usage: user_id=%s, service=%s, error=%v", event.UserID, event.ServiceType, err)
			}
		}()
	}

	if event.RecordID == "" {
		event.RecordID = uuid.New().String()
	}

	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.applyUsageTx(tx, event)
	})
	if err != nil {
		return "", err
	}

	// 事务提交成功后，失效相关缓存（使用独立的短超时 context，不阻塞主流程）
	r.invalidateSubscriberCache(event.UserID)
	r.invalidateQuotaCache(event.UserID, event.ServiceType, event.Month)

	return event.RecordID, nil
}

// applyUsageTx 在事务内应用一条用量事件
// 1. 行锁加载订阅者
// 2. 月份切换检测：重置时间与事件月份不同则先清零所有滚动计数器再自增
// 3. 计数器原子自增（SQL 表达式，不做读改写）
// 4. 插入只增流水
func (r *meteringRepo) applyUsageTx(tx *gorm.DB, event *biz.UsageEvent) error {
	var m model.Subscriber
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", event.UserID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgErrors.NewBizErrorWithLang(context.Background(), meteringErrors.ErrCodeSubscriberNotFound)
		}
		return pkgErrors.WrapErrorWithLang(context.Background(), err, pkgErrors.ErrCodeDatabaseError)
	}

	// 月份切换：清零后再计入本次用量，保证计数器只反映当前账单月份
	if m.MonthlyResetAt.Format(constants.TimeFormatMonth) != event.Month {
		if err := tx.Model(&model.Subscriber{}).
			Where("user_id = ?", event.UserID).
			Updates(map[string]interface{}{
				"audiobook_chars_used":   0,
				"translation_chars_used": 0,
				"overage_cents":          0,
				"monthly_reset_at":       event.RecordedAt,
			}).Error; err != nil {
			return pkgErrors.WrapErrorWithLang(context.Background(), err, meteringErrors.ErrCodeUsageCounterUpdateFailed)
		}
		if r.metrics != nil {
			r.metrics.MonthRolloverTotal.Inc()
		}
	}

	updates := map[string]interface{}{
		counterColumn(event.ServiceType): gorm.Expr(counterColumn(event.ServiceType)+" + ?", event.CharacterCount),
	}
	if event.CostCents > 0 {
		updates["overage_cents"] = gorm.Expr("overage_cents + ?", event.CostCents)
	}
	if err := tx.Model(&model.Subscriber{}).
		Where("user_id = ?", event.UserID).
		Updates(updates).Error; err != nil {
		return pkgErrors.WrapErrorWithLang(context.Background(), err, meteringErrors.ErrCodeUsageCounterUpdateFailed)
	}

	record := model.UsageRecord{
		UsageRecordID:  event.RecordID,
		UserID:         event.UserID,
		ServiceType:    event.ServiceType,
		ResourceID:     event.ResourceID,
		CharacterCount: event.CharacterCount,
		CostCents:      event.CostCents,
		WasOverage:     event.WasOverage,
		BillingMonth:   event.Month,
		CreatedAt:      event.RecordedAt,
	}
	if err := tx.Create(&record).Error; err != nil {
		return pkgErrors.WrapErrorWithLang(context.Background(), err, meteringErrors.ErrCodeUsageRecordCreateFailed)
	}

	return nil
}

// ========== 对账相关 ==========

// ReconcileSubscriber 以流水之和修复某用户当月计数器
// 重置时间不在目标月份时跳过（交给下一次记录的惰性重置处理）
func (r *meteringRepo) ReconcileSubscriber(ctx context.Context, userID, month string) error {
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Subscriber
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if m.MonthlyResetAt.Format(constants.TimeFormatMonth) != month {
			return nil
		}

		var rows []struct {
			ServiceType    string
			CharacterCount int64
			CostCents      int64
		}
		if err := tx.Model(&model.UsageRecord{}).
			Where("user_id = ? AND billing_month = ?", userID, month).
			Select(
				"service_type",
				"COALESCE(SUM(character_count), 0) as character_count",
				"COALESCE(SUM(cost_cents), 0) as cost_cents",
			).
			Group("service_type").
			Scan(&rows).Error; err != nil {
			return err
		}

		var audiobookChars, translationChars, overageCents int64
		for _, row := range rows {
			switch row.ServiceType {
			case constants.ServiceTypeAudiobook:
				audiobookChars = row.CharacterCount
			case constants.ServiceTypeTranslation:
				translationChars = row.CharacterCount
			}
			overageCents += row.CostCents
		}

		if m.AudiobookCharsUsed == audiobookChars &&
			m.TranslationCharsUsed == translationChars &&
			m.OverageCents == overageCents {
			return nil
		}

		r.log.Warnf("Counter drift detected for user=%s, month=%s: audiobook %d->%d, translation %d->%d, overage %d->%d",
			userID, month, m.AudiobookCharsUsed, audiobookChars,
			m.TranslationCharsUsed, translationChars, m.OverageCents, overageCents)

		return tx.Model(&model.Subscriber{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"audiobook_chars_used":   audiobookChars,
				"translation_chars_used": translationChars,
				"overage_cents":          overageCents,
			}).Error
	})
	if err != nil {
		return pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeReconcileFailed)
	}

	r.invalidateSubscriberCache(userID)
	r.invalidateQuotaCache(userID, constants.ServiceTypeAudiobook, month)
	r.invalidateQuotaCache(userID, constants.ServiceTypeTranslation, month)
	return nil
}

// ========== 缓存相关 ==========

// loadQuotaCache 加载当月剩余配额缓存（同步）
func (r *meteringRepo) loadQuotaCache(ctx context.Context, userID, serviceType, month string) {
	sub, err := r.subscriberRepo.GetSubscriber(ctx, userID)
	if err != nil || sub == nil {
		return
	}

	tier := r.catalog.GetTier(sub.Tier)
	remaining := tier.QuotaFor(serviceType) - sub.UsedFor(serviceType, time.Now())
	if remaining < 0 {
		remaining = 0
	}

	quotaKey := fmt.Sprintf("%s%s:%s:%s", constants.RedisKeyQuota, userID, serviceType, month)
	r.data.rdb.Set(ctx, quotaKey, remaining, 5*time.Minute)
}

// invalidateSubscriberCache 失效订阅者缓存
func (r *meteringRepo) invalidateSubscriberCache(userID string) {
	cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cacheCancel()
	cacheKey := fmt.Sprintf("%s%s", constants.RedisKeySubscriber, userID)
	if err := r.data.rdb.Del(cacheCtx, cacheKey).Err(); err != nil {
		// 缓存失效失败不影响主流程，只记录日志
		r.log.Warnf("failed to invalidate subscriber cache: %v", err)
	}
}

// invalidateQuotaCache 失效剩余配额缓存
func (r *meteringRepo) invalidateQuotaCache(userID, serviceType, month string) {
	cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cacheCancel()
	quotaKey := fmt.Sprintf("%s%s:%s:%s", constants.RedisKeyQuota, userID, serviceType, month)
	if err := r.data.rdb.Del(cacheCtx, quotaKey).Err(); err != nil {
		r.log.Warnf("failed to invalidate quota cache: %v", err)
	}
}

// counterColumn 服务类型对应的计数器列名
func counterColumn(serviceType string) string {
	if serviceType == constants.ServiceTypeTranslation {
		return "translation_chars_used"
	}
	return "audiobook_chars_used"
}
