package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ServingRules tunes how a flavor's per-serving quantity is adjusted for
// particular menu families.
type ServingRules struct {
	BlendedKeywords   []string `mapstructure:"blendedKeywords"`
	BlendedMinGrams   float64  `mapstructure:"blendedMinGrams"`
	LightKeywords     []string `mapstructure:"lightKeywords"`
	LightMaxMl        float64  `mapstructure:"lightMaxMl"`
	PremiumKeywords   []string `mapstructure:"premiumKeywords"`
	PremiumMultiplier float64  `mapstructure:"premiumMultiplier"`

	// Per-serving defaults for auto-created flavor mappings.
	DefaultMlPerServing   float64 `mapstructure:"defaultMlPerServing"`
	DefaultGramPerServing float64 `mapstructure:"defaultGramPerServing"`
}

func DefaultServingRules() ServingRules {
	return ServingRules{
		BlendedKeywords:       []string{"milkshake"},
		BlendedMinGrams:       30,
		LightKeywords:         []string{"squash"},
		LightMaxMl:            20,
		PremiumKeywords:       []string{"custom", "special", "premium"},
		PremiumMultiplier:     1.4,
		DefaultMlPerServing:   25,
		DefaultGramPerServing: 30,
	}
}

type ServingRulesHolder struct {
	current atomic.Value // holds ServingRules
}

// NewStaticServingRules returns a holder that never reloads.
func NewStaticServingRules(rules ServingRules) *ServingRulesHolder {
	holder := &ServingRulesHolder{}
	holder.current.Store(rules)
	return holder
}

func NewServingRulesHolder(log *zap.Logger) (*ServingRulesHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.serving_rules")

	v := viper.New()
	v.SetConfigName("serving_rules")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/pantry/config")
	v.AddConfigPath("/etc/pantry")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PANTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultServingRules()
	v.SetDefault("serving.blendedKeywords", defaults.BlendedKeywords)
	v.SetDefault("serving.blendedMinGrams", defaults.BlendedMinGrams)
	v.SetDefault("serving.lightKeywords", defaults.LightKeywords)
	v.SetDefault("serving.lightMaxMl", defaults.LightMaxMl)
	v.SetDefault("serving.premiumKeywords", defaults.PremiumKeywords)
	v.SetDefault("serving.premiumMultiplier", defaults.PremiumMultiplier)
	v.SetDefault("serving.defaultMlPerServing", defaults.DefaultMlPerServing)
	v.SetDefault("serving.defaultGramPerServing", defaults.DefaultGramPerServing)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var rules ServingRules
	if err := v.UnmarshalKey("serving", &rules); err != nil {
		return nil, err
	}
	if err := validateServingRules(rules); err != nil {
		return nil, err
	}

	holder := NewStaticServingRules(rules)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ServingRules
		if err := v.UnmarshalKey("serving", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateServingRules(updated); err != nil {
			log.Warn("invalid serving rules ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("serving rules reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *ServingRulesHolder) Get() ServingRules {
	if h == nil {
		return DefaultServingRules()
	}
	return h.current.Load().(ServingRules)
}

func validateServingRules(r ServingRules) error {
	if r.BlendedMinGrams < 0 || r.LightMaxMl < 0 {
		return errors.New("serving quantities cannot be negative")
	}
	if r.PremiumMultiplier <= 0 {
		return errors.New("serving.premiumMultiplier must be positive")
	}
	if r.DefaultMlPerServing <= 0 || r.DefaultGramPerServing <= 0 {
		return errors.New("default per-serving quantities must be positive")
	}
	return nil
}
