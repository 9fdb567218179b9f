package biz

import (
	"subscription-service/internal/conf"
	"subscription-service/internal/constants"
)

// Tier 订阅套餐领域对象
// 配额为每月可用字符数，超额费率为每 1000 字符的费用（分）
type Tier struct {
	Name              string
	MonthlyPriceCents int64
	Quotas            map[string]int64
	OverageRates      map[string]float64
	Features          []string
}

// QuotaFor 返回指定服务的每月字符配额
func (t *Tier) QuotaFor(serviceType string) int64 {
	return t.Quotas[serviceType]
}

// OverageRateFor 返回指定服务的超额费率（分/1000字符）
func (t *Tier) OverageRateFor(serviceType string) float64 {
	return t.OverageRates[serviceType]
}

// OffersService 套餐是否包含该服务
// 配额为 0 的服务不提供按量付费，配额是使用的前提而非折扣门槛
func (t *Tier) OffersService(serviceType string) bool {
	return t.Quotas[serviceType] > 0
}

// defaultTiers 编译期套餐表
// free 套餐配额与费率必须为 0（不允许任何付费使用）
func defaultTiers() map[string]*Tier {
	return map[string]*Tier{
		constants.TierFree: {
			Name:              constants.TierFree,
			MonthlyPriceCents: 0,
			Quotas: map[string]int64{
				constants.ServiceTypeAudiobook:   0,
				constants.ServiceTypeTranslation: 0,
			},
			OverageRates: map[string]float64{
				constants.ServiceTypeAudiobook:   0,
				constants.ServiceTypeTranslation: 0,
			},
			Features: []string{"manuscript_editor"},
		},
		constants.TierStarter: {
			Name:              constants.TierStarter,
			MonthlyPriceCents: 900,
			Quotas: map[string]int64{
				constants.ServiceTypeAudiobook:   50000,
				constants.ServiceTypeTranslation: 20000,
			},
			OverageRates: map[string]float64{
				constants.ServiceTypeAudiobook:   2.0,
				constants.ServiceTypeTranslation: 2.5,
			},
			Features: []string{"manuscript_editor", "audiobook", "translation"},
		},
		constants.TierPremium: {
			Name:              constants.TierPremium,
			MonthlyPriceCents: 1900,
			Quotas: map[string]int64{
				constants.ServiceTypeAudiobook:   200000,
				constants.ServiceTypeTranslation: 100000,
			},
			OverageRates: map[string]float64{
				constants.ServiceTypeAudiobook:   1.5,
				constants.ServiceTypeTranslation: 2.0,
			},
			Features: []string{"manuscript_editor", "audiobook", "translation", "priority_generation"},
		},
		constants.TierStudio: {
			Name:              constants.TierStudio,
			MonthlyPriceCents: 4900,
			Quotas: map[string]int64{
				constants.ServiceTypeAudiobook:   500000,
				constants.ServiceTypeTranslation: 250000,
			},
			OverageRates: map[string]float64{
				constants.ServiceTypeAudiobook:   1.0,
				constants.ServiceTypeTranslation: 1.5,
			},
			Features: []string{"manuscript_editor", "audiobook", "translation", "priority_generation", "bulk_export"},
		},
	}
}

// TierCatalog 套餐目录（纯内存查表，无副作用）
type TierCatalog struct {
	tiers map[string]*Tier
}

// NewTierCatalog 创建套餐目录
// 配置中的配额/费率覆盖编译期默认值；free 套餐不可覆盖（保持零配额不变式）
func NewTierCatalog(c *conf.Bootstrap) *TierCatalog {
	tiers := defaultTiers()

	if c != nil && c.Metering != nil {
		for tierName, quotas := range c.Metering.Quotas {
			if tierName == constants.TierFree {
				continue
			}
			t, ok := tiers[tierName]
			if !ok {
				continue
			}
			for serviceType, quota := range quotas {
				if quota >= 0 {
					t.Quotas[serviceType] = quota
				}
			}
		}
		for tierName, rates := range c.Metering.OverageRates {
			if tierName == constants.TierFree {
				continue
			}
			t, ok := tiers[tierName]
			if !ok {
				continue
			}
			for serviceType, rate := range rates {
				if rate >= 0 {
					t.OverageRates[serviceType] = rate
				}
			}
		}
	}

	return &TierCatalog{tiers: tiers}
}

// GetTier 获取套餐
// 未知或空套餐名回退到 free 套餐（安全默认值，不返回错误）
// 防止用户记录中残留空或历史套餐名导致的数据漂移
func (c *TierCatalog) GetTier(name string) *Tier {
	if t, ok := c.tiers[name]; ok {
		return t
	}
	return c.tiers[constants.TierFree]
}
