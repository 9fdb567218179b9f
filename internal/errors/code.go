package errors

import (
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// Subscription Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Subscription 固定为 21
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块（复用 go-pkg 通用错误码）
//   01: 订阅者模块
//   02: 配额判定模块
//   03: 用量记录模块
//   04: 锁模块
//   05: 对账模块
//   06-99: 预留扩展

// 订阅者模块错误码 (210100-210199)
const (
	// ErrCodeSubscriberNotFound 订阅者不存在
	ErrCodeSubscriberNotFound = 210101
	// ErrCodeSubscriberGetFailed 获取订阅者失败
	ErrCodeSubscriberGetFailed = 210102
	// ErrCodeSubscriberUpdateFailed 更新订阅者失败
	ErrCodeSubscriberUpdateFailed = 210103
)

// 配额判定模块错误码 (210200-210299)
const (
	// ErrCodeUnknownServiceType 未知的服务类型
	ErrCodeUnknownServiceType = 210201
	// ErrCodeInvalidCharacterCount 无效的字符数
	ErrCodeInvalidCharacterCount = 210202
	// ErrCodeQuotaCheckFailed 配额判定失败
	ErrCodeQuotaCheckFailed = 210203
)

// 用量记录模块错误码 (210300-210399)
const (
	// ErrCodeUsageRecordCreateFailed 用量流水创建失败
	ErrCodeUsageRecordCreateFailed = 210301
	// ErrCodeUsageCounterUpdateFailed 用量计数器更新失败
	ErrCodeUsageCounterUpdateFailed = 210302
	// ErrCodeUsageSumFailed 用量汇总查询失败
	ErrCodeUsageSumFailed = 210303
)

// 锁模块错误码 (210400-210499)
const (
	// ErrCodeMeterLockFailed 获取用量记录锁失败
	ErrCodeMeterLockFailed = 210401
)

// 对账模块错误码 (210500-210599)
const (
	// ErrCodeListUserIDsFailed 获取订阅者ID列表失败
	ErrCodeListUserIDsFailed = 210501
	// ErrCodeReconcileFailed 计数器对账失败
	ErrCodeReconcileFailed = 210502
)
