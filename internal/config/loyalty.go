package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LoyaltyConfig carries operational knobs that operators tune without a
// redeploy: sweep batch sizes and a hard ceiling on per-program daily limits.
type LoyaltyConfig struct {
	// MaxDailyStampLimit caps the daily_stamp_limit a program may configure.
	MaxDailyStampLimit int `mapstructure:"maxDailyStampLimit"`
	// ExpirySweepBatchSize bounds how many cards a single sweep pass expires.
	ExpirySweepBatchSize int `mapstructure:"expirySweepBatchSize"`
	// OutboxDispatchBatchSize bounds outbox rows delivered per pass.
	OutboxDispatchBatchSize int `mapstructure:"outboxDispatchBatchSize"`
}

func DefaultLoyaltyConfig() LoyaltyConfig {
	return LoyaltyConfig{
		MaxDailyStampLimit:      100,
		ExpirySweepBatchSize:    200,
		OutboxDispatchBatchSize: 100,
	}
}

type LoyaltyConfigHolder struct {
	current atomic.Value // holds LoyaltyConfig
}

func NewLoyaltyConfigHolder() (*LoyaltyConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("loyalty")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/perkly/config") // Volume-mounted config
	v.AddConfigPath("/etc/perkly")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("PERKLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLoyaltyConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("loyalty.maxDailyStampLimit", defaults.MaxDailyStampLimit)
		v.SetDefault("loyalty.expirySweepBatchSize", defaults.ExpirySweepBatchSize)
		v.SetDefault("loyalty.outboxDispatchBatchSize", defaults.OutboxDispatchBatchSize)
	}

	var cfg LoyaltyConfig
	if err := v.UnmarshalKey("loyalty", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateLoyaltyConfig(cfg); err != nil {
		return nil, err
	}

	holder := &LoyaltyConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LoyaltyConfig
		if err := v.UnmarshalKey("loyalty", &updated); err != nil {
			log.Printf("[loyalty-config] reload failed: %v", err)
			return
		}
		updated = updated.withDefaults()
		if err := validateLoyaltyConfig(updated); err != nil {
			log.Printf("[loyalty-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[loyalty-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *LoyaltyConfigHolder) Get() LoyaltyConfig {
	if h == nil {
		return DefaultLoyaltyConfig()
	}
	value, ok := h.current.Load().(LoyaltyConfig)
	if !ok {
		return DefaultLoyaltyConfig()
	}
	return value
}

func (c LoyaltyConfig) withDefaults() LoyaltyConfig {
	defaults := DefaultLoyaltyConfig()
	if c.MaxDailyStampLimit <= 0 {
		c.MaxDailyStampLimit = defaults.MaxDailyStampLimit
	}
	if c.ExpirySweepBatchSize <= 0 {
		c.ExpirySweepBatchSize = defaults.ExpirySweepBatchSize
	}
	if c.OutboxDispatchBatchSize <= 0 {
		c.OutboxDispatchBatchSize = defaults.OutboxDispatchBatchSize
	}
	return c
}

func validateLoyaltyConfig(cfg LoyaltyConfig) error {
	if cfg.MaxDailyStampLimit <= 0 {
		return errors.New("loyalty.maxDailyStampLimit must be positive")
	}
	return nil
}
