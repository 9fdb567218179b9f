package biz

import (
	"context"
	"time"

	"subscription-service/internal/constants"
)

// Subscriber 订阅者领域对象
// 账号体系归外部的用户子系统所有，这里只读写计量相关字段
// 滚动计数器是当月用量流水之和的反范式缓存，月份切换时由记录侧惰性重置
type Subscriber struct {
	UserID               string
	Email                string
	Tier                 string
	UnlimitedAccess      bool // 特权账号：不限量、零费用（开通时授予，非身份字符串比较）
	AudiobookCharsUsed   int64
	TranslationCharsUsed int64
	OverageCents         int64
	MonthlyResetAt       time.Time
	UpdatedAt            time.Time
}

// UsedFor 返回指定服务当月已用字符数
// 计数器的重置时间不在当前月份时视为 0（尚未被记录侧惰性重置）
func (s *Subscriber) UsedFor(serviceType string, now time.Time) int64 {
	if s.MonthlyResetAt.Format(constants.TimeFormatMonth) != now.Format(constants.TimeFormatMonth) {
		return 0
	}
	switch serviceType {
	case constants.ServiceTypeAudiobook:
		return s.AudiobookCharsUsed
	case constants.ServiceTypeTranslation:
		return s.TranslationCharsUsed
	}
	return 0
}

// CurrentOverageCents 返回当月已累计的超额费用（分）
func (s *Subscriber) CurrentOverageCents(now time.Time) int64 {
	if s.MonthlyResetAt.Format(constants.TimeFormatMonth) != now.Format(constants.TimeFormatMonth) {
		return 0
	}
	return s.OverageCents
}

// SubscriberRepo 订阅者数据层接口（定义在 biz 层）
// 计数器只能由用量记录事务原子更新，此接口不暴露写计数器的方法
type SubscriberRepo interface {
	// GetSubscriber 获取订阅者，不存在时返回 (nil, nil)
	GetSubscriber(ctx context.Context, userID string) (*Subscriber, error)
	// ListUserIDs 获取所有订阅者的用户ID（用于对账）
	ListUserIDs(ctx context.Context) ([]string, error)
}
