package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// QuotaConfig maps premium SKU ids to webhook quotas. DefaultMaxWebhooks is
// the free-tier floor applied when a guild holds no recognized entitlement.
type QuotaConfig struct {
	DefaultMaxWebhooks int         `mapstructure:"defaultMaxWebhooks"`
	Tiers              []QuotaTier `mapstructure:"tiers"`
}

// QuotaTier binds one SKU to its webhook quota.
type QuotaTier struct {
	SKUID       string `mapstructure:"skuId"`
	MaxWebhooks int    `mapstructure:"maxWebhooks"`
}

func DefaultQuotaConfig(cfg Config) QuotaConfig {
	tiers := make([]QuotaTier, 0, 2)
	if cfg.PlusSKUID != "" {
		tiers = append(tiers, QuotaTier{SKUID: cfg.PlusSKUID, MaxWebhooks: 20})
	}
	if cfg.ProSKUID != "" {
		tiers = append(tiers, QuotaTier{SKUID: cfg.ProSKUID, MaxWebhooks: 200})
	}
	return QuotaConfig{
		DefaultMaxWebhooks: 5,
		Tiers:              tiers,
	}
}

// QuotaForSKU returns the quota for a single SKU and whether it is a
// recognized premium tier.
func (c QuotaConfig) QuotaForSKU(skuID string) (int, bool) {
	for _, tier := range c.Tiers {
		if tier.SKUID == skuID {
			return tier.MaxWebhooks, true
		}
	}
	return 0, false
}

// Resolve derives a guild quota from the SKUs of its active entitlements.
// The highest matching tier wins regardless of entitlement count; with no
// match the free-tier default applies.
func (c QuotaConfig) Resolve(skuIDs []string) int {
	quota := c.DefaultMaxWebhooks
	for _, sku := range skuIDs {
		if tierQuota, ok := c.QuotaForSKU(sku); ok && tierQuota > quota {
			quota = tierQuota
		}
	}
	return quota
}

// QuotaConfigHolder serves the current quota table and hot-reloads it when
// the backing file changes.
type QuotaConfigHolder struct {
	current atomic.Value // holds QuotaConfig
}

func NewQuotaConfigHolder(cfg Config) (*QuotaConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("quotas")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/tacows")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TACOWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultQuotaConfig(cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("quotas.defaultMaxWebhooks", defaults.DefaultMaxWebhooks)
		v.SetDefault("quotas.tiers", defaults.Tiers)
	}

	holder := &QuotaConfigHolder{}
	if err := holder.reload(v, defaults); err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(fsnotify.Event) {
			_ = holder.reload(v, defaults)
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *QuotaConfigHolder) reload(v *viper.Viper, defaults QuotaConfig) error {
	var cfg QuotaConfig
	if err := v.UnmarshalKey("quotas", &cfg); err != nil {
		return err
	}
	if cfg.DefaultMaxWebhooks <= 0 {
		cfg.DefaultMaxWebhooks = defaults.DefaultMaxWebhooks
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = defaults.Tiers
	}
	h.current.Store(cfg)
	return nil
}

// Current returns the active quota table.
func (h *QuotaConfigHolder) Current() QuotaConfig {
	if cfg, ok := h.current.Load().(QuotaConfig); ok {
		return cfg
	}
	return QuotaConfig{DefaultMaxWebhooks: 5}
}
