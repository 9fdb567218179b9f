package biz

import (
	"testing"

	"subscription-service/internal/conf"
	"subscription-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierCatalog_Defaults(t *testing.T) {
	catalog := NewTierCatalog(nil)

	free := catalog.GetTier(constants.TierFree)
	require.NotNil(t, free)
	assert.Equal(t, int64(0), free.QuotaFor(constants.ServiceTypeAudiobook))
	assert.Equal(t, int64(0), free.QuotaFor(constants.ServiceTypeTranslation))
	assert.Equal(t, float64(0), free.OverageRateFor(constants.ServiceTypeAudiobook))
	assert.False(t, free.OffersService(constants.ServiceTypeAudiobook))
	assert.False(t, free.OffersService(constants.ServiceTypeTranslation))

	starter := catalog.GetTier(constants.TierStarter)
	require.NotNil(t, starter)
	assert.Equal(t, int64(900), starter.MonthlyPriceCents)
	assert.Equal(t, int64(50000), starter.QuotaFor(constants.ServiceTypeAudiobook))
	assert.Equal(t, int64(20000), starter.QuotaFor(constants.ServiceTypeTranslation))
	assert.Equal(t, 2.0, starter.OverageRateFor(constants.ServiceTypeAudiobook))
	assert.Equal(t, 2.5, starter.OverageRateFor(constants.ServiceTypeTranslation))
	assert.True(t, starter.OffersService(constants.ServiceTypeAudiobook))

	premium := catalog.GetTier(constants.TierPremium)
	require.NotNil(t, premium)
	assert.Equal(t, int64(200000), premium.QuotaFor(constants.ServiceTypeAudiobook))
	assert.Equal(t, 1.5, premium.OverageRateFor(constants.ServiceTypeAudiobook))

	studio := catalog.GetTier(constants.TierStudio)
	require.NotNil(t, studio)
	assert.Equal(t, int64(500000), studio.QuotaFor(constants.ServiceTypeAudiobook))
	assert.Equal(t, int64(250000), studio.QuotaFor(constants.ServiceTypeTranslation))
	assert.Equal(t, 1.0, studio.OverageRateFor(constants.ServiceTypeAudiobook))
}

func TestTierCatalog_UnknownNameFallsBackToFree(t *testing.T) {
	catalog := NewTierCatalog(nil)

	tier := catalog.GetTier("enterprise")
	require.NotNil(t, tier)
	assert.Equal(t, constants.TierFree, tier.Name)

	tier = catalog.GetTier("")
	require.NotNil(t, tier)
	assert.Equal(t, constants.TierFree, tier.Name)
}

func TestTierCatalog_ConfigOverrides(t *testing.T) {
	bc := &conf.Bootstrap{
		Metering: &conf.Metering{
			Quotas: map[string]map[string]int64{
				constants.TierStarter: {
					constants.ServiceTypeAudiobook: 80000,
				},
			},
			OverageRates: map[string]map[string]float64{
				constants.TierStarter: {
					constants.ServiceTypeAudiobook: 1.8,
				},
			},
		},
	}

	catalog := NewTierCatalog(bc)

	starter := catalog.GetTier(constants.TierStarter)
	assert.Equal(t, int64(80000), starter.QuotaFor(constants.ServiceTypeAudiobook))
	assert.Equal(t, 1.8, starter.OverageRateFor(constants.ServiceTypeAudiobook))
	// 未覆盖的服务保持默认值
	assert.Equal(t, int64(20000), starter.QuotaFor(constants.ServiceTypeTranslation))
	assert.Equal(t, 2.5, starter.OverageRateFor(constants.ServiceTypeTranslation))
}

func TestTierCatalog_FreeNotOverridable(t *testing.T) {
	bc := &conf.Bootstrap{
		Metering: &conf.Metering{
			Quotas: map[string]map[string]int64{
				constants.TierFree: {
					constants.ServiceTypeAudiobook: 10000,
				},
			},
		},
	}

	catalog := NewTierCatalog(bc)

	free := catalog.GetTier(constants.TierFree)
	assert.Equal(t, int64(0), free.QuotaFor(constants.ServiceTypeAudiobook))
	assert.False(t, free.OffersService(constants.ServiceTypeAudiobook))
}

func TestTierCatalog_NegativeOverrideIgnored(t *testing.T) {
	bc := &conf.Bootstrap{
		Metering: &conf.Metering{
			Quotas: map[string]map[string]int64{
				constants.TierPremium: {
					constants.ServiceTypeAudiobook: -1,
				},
			},
		},
	}

	catalog := NewTierCatalog(bc)

	premium := catalog.GetTier(constants.TierPremium)
	assert.Equal(t, int64(200000), premium.QuotaFor(constants.ServiceTypeAudiobook))
}
