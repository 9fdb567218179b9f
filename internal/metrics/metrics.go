package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MeteringMetrics 计量服务指标
type MeteringMetrics struct {
	// 配额判定相关指标
	QuotaCheckTotal    *prometheus.CounterVec   // 配额判定总数（按服务、结果）
	QuotaCheckDuration *prometheus.HistogramVec // 配额判定耗时
	QuotaLowAlert      *prometheus.GaugeVec     // 配额即将用尽告警（剩余配额 < 阈值）

	// 用量记录相关指标
	RecordUsageTotal    *prometheus.CounterVec   // 用量记录总数（按服务、类型）
	RecordUsageDuration *prometheus.HistogramVec // 用量记录耗时
	RecordedCharacters  *prometheus.CounterVec   // 记录字符数（按服务、类型）
	OverageCentsTotal   *prometheus.CounterVec   // 超额计费金额（分，按服务）
	RecordFailedTotal   prometheus.Counter       // 用量记录失败总数
	MonthRolloverTotal  prometheus.Counter       // 月度计数器重置总数

	// 缓存相关指标
	SubscriberCacheTotal *prometheus.CounterVec // 订阅者缓存查询总数（按结果 hit/miss）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewMeteringMetrics 创建计量服务指标
func NewMeteringMetrics() *MeteringMetrics {
	return &MeteringMetrics{
		// 配额判定指标
		QuotaCheckTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_quota_check_total",
				Help: "Total number of quota checks",
			},
			[]string{"service", "result"}, // result: allowed/denied/error
		),
		QuotaCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metering_quota_check_duration_seconds",
				Help:    "Duration of quota check operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		QuotaLowAlert: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "metering_quota_low_alert",
				Help: "Set when remaining quota drops below the configured threshold",
			},
			[]string{"service"},
		),

		// 用量记录指标
		RecordUsageTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_record_usage_total",
				Help: "Total number of usage records committed",
			},
			[]string{"service", "kind"}, // kind: included/overage
		),
		RecordUsageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metering_record_usage_duration_seconds",
				Help:    "Duration of usage record operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		RecordedCharacters: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_recorded_characters_total",
				Help: "Total characters recorded against quotas",
			},
			[]string{"service", "kind"},
		),
		OverageCentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_overage_cents_total",
				Help: "Total overage charges accrued, in cents",
			},
			[]string{"service"},
		),
		RecordFailedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "metering_record_failed_total",
				Help: "Total number of failed usage record writes",
			},
		),
		MonthRolloverTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "metering_month_rollover_total",
				Help: "Total number of lazy monthly counter resets",
			},
		),

		// 缓存指标
		SubscriberCacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_subscriber_cache_total",
				Help: "Total number of subscriber cache lookups",
			},
			[]string{"result"}, // result: hit/miss
		),

		// 分布式锁指标
		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "metering_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

// 全局指标实例
var defaultMetrics *MeteringMetrics

// InitMetrics 初始化全局指标
func InitMetrics() {
	defaultMetrics = NewMeteringMetrics()
}

// GetMetrics 获取全局指标实例
func GetMetrics() *MeteringMetrics {
	if defaultMetrics == nil {
		InitMetrics()
	}
	return defaultMetrics
}
