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

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// subscriberRepo 订阅者相关数据访问
type subscriberRepo struct {
	data    *Data
	log     *log.Helper
	metrics *metrics.MeteringMetrics
}

// NewSubscriberRepo 创建订阅者 repo（返回 biz.SubscriberRepo 接口）
func NewSubscriberRepo(data *Data, logger log.Logger) biz.SubscriberRepo {
	return &subscriberRepo{
		data:    data,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// GetSubscriber 获取订阅者
// 先查 Redis 缓存，未命中回源数据库并异步回填；不存在返回 (nil, nil)，由业务层决定语义
func (r *subscriberRepo) GetSubscriber(ctx context.Context, userID string) (*biz.Subscriber, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}

	cacheKey := fmt.Sprintf("%s%s", constants.RedisKeySubscriber, userID)
	cached, err := r.data.rdb.Get(ctx, cacheKey).Result()
	if err == nil {
		var sub biz.Subscriber
		if err := json.Unmarshal([]byte(cached), &sub); err == nil {
			if r.metrics != nil {
				r.metrics.SubscriberCacheTotal.WithLabelValues("hit").Inc()
			}
			return &sub, nil
		}
	}
	if r.metrics != nil {
		r.metrics.SubscriberCacheTotal.WithLabelValues("miss").Inc()
	}

	// 缓存未命中，从数据库查询
	var m model.Subscriber
	if err := r.data.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 订阅者不存在，返回 nil 而不是错误（业务层处理为未知用户错误）
			return nil, nil
		}
		r.log.Errorf("GetSubscriber failed: userID=%s, error=%v", userID, err)
		return nil, fmt.Errorf("failed to query subscriber from database: %w", err)
	}

	result := toBizSubscriber(&m)

	// 更新缓存（异步，不阻塞，设置超时避免长时间等待）
	go func() {
		cacheCtx, cacheCancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cacheCancel()
		if payload, err := json.Marshal(result); err == nil {
			// 缓存更新失败不影响主流程
			r.data.rdb.Set(cacheCtx, cacheKey, payload, 5*time.Minute)
		}
	}()

	return result, nil
}

// ListUserIDs 获取所有订阅者的用户ID（用于对账）
func (r *subscriberRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	if err := r.data.db.WithContext(ctx).
		Model(&model.Subscriber{}).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, pkgErrors.WrapErrorWithLang(ctx, err, meteringErrors.ErrCodeListUserIDsFailed)
	}
	return userIDs, nil
}

// toBizSubscriber 模型转换
func toBizSubscriber(m *model.Subscriber) *biz.Subscriber {
	return &biz.Subscriber{
		UserID:               m.UserID,
		Email:                m.Email,
		Tier:                 m.Tier,
		UnlimitedAccess:      m.UnlimitedAccess,
		AudiobookCharsUsed:   m.AudiobookCharsUsed,
		TranslationCharsUsed: m.TranslationCharsUsed,
		OverageCents:         m.OverageCents,
		MonthlyResetAt:       m.MonthlyResetAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
