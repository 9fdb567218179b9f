package constants

// 时间格式常量
const (
	// TimeFormatMonth 账单月份格式 (YYYY-MM)
	TimeFormatMonth = "2006-01"
)

// Redis Key 前缀常量
const (
	// RedisKeySubscriber 订阅者缓存 key 前缀
	RedisKeySubscriber = "meter:sub:"
	// RedisKeyQuota 当月剩余配额缓存 key 前缀
	RedisKeyQuota = "meter:quota:"
	// RedisKeyMeterLock 用量记录锁 key 前缀
	RedisKeyMeterLock = "meter:lock:"
)

// 服务类型常量
const (
	// ServiceTypeAudiobook 有声书生成（TTS）
	ServiceTypeAudiobook = "audiobook"
	// ServiceTypeTranslation 翻译
	ServiceTypeTranslation = "translation"
)

// 订阅套餐常量
const (
	// TierFree 免费套餐
	TierFree = "free"
	// TierStarter 入门套餐
	TierStarter = "starter"
	// TierPremium 高级套餐
	TierPremium = "premium"
	// TierStudio 工作室套餐
	TierStudio = "studio"
)

// 配额判定结果消息常量
const (
	// DecisionReasonIncluded 套餐额度内
	DecisionReasonIncluded = "included"
	// DecisionReasonOverage 超出额度，按超额费率计费
	DecisionReasonOverage = "overage"
	// DecisionReasonUnlimited 特权账号，不限量
	DecisionReasonUnlimited = "unlimited"
	// DecisionReasonNotOffered 套餐不包含该服务
	DecisionReasonNotOffered = "service not offered by tier"
)

// 配额判定指标结果常量
const (
	// QuotaCheckResultAllowed 允许
	QuotaCheckResultAllowed = "allowed"
	// QuotaCheckResultDenied 拒绝
	QuotaCheckResultDenied = "denied"
	// QuotaCheckResultError 错误
	QuotaCheckResultError = "error"
)

// 用量类型常量（用于指标）
const (
	// UsageKindIncluded 套餐额度内用量
	UsageKindIncluded = "included"
	// UsageKindOverage 超额用量
	UsageKindOverage = "overage"
)

// 锁结果常量（用于指标）
const (
	// LockResultSuccess 成功
	LockResultSuccess = "success"
	// LockResultFailed 失败
	LockResultFailed = "failed"
)
