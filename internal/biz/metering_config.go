package biz

import (
	"subscription-service/internal/conf"
)

// MeteringConfig 计量配置
type MeteringConfig struct {
	QuotaLowPercentThreshold float64 // 配额低阈值（剩余百分比）
}

// NewMeteringConfig 从配置创建 MeteringConfig
func NewMeteringConfig(c *conf.Bootstrap) *MeteringConfig {
	config := &MeteringConfig{
		QuotaLowPercentThreshold: 20.0, // 默认值
	}
	if c != nil && c.Metering != nil && c.Metering.QuotaLowPercentThreshold > 0 {
		config.QuotaLowPercentThreshold = c.Metering.QuotaLowPercentThreshold
	}
	return config
}
