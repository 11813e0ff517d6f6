package infra

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the engine. Loaded from YAML, then
// selectively overridden from the environment so deployments can patch
// endpoints without editing the file.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		URL       string   `yaml:"url"`
		Symbols   []string `yaml:"symbols"`
		InboxSize int      `yaml:"inbox_size"`
		// Dial circuit breaker: consecutive failures before it opens
		// and the cool-off before a half-open trial. Zero selects the
		// built-in defaults.
		BreakerFailures   int `yaml:"breaker_failures"`
		BreakerCooloffSec int `yaml:"breaker_cooloff_sec"`
	} `yaml:"feed"`

	Features struct {
		OFILevels        []int   `yaml:"ofi_levels"`
		ImbalanceLevels  int     `yaml:"imbalance_levels"`
		ImbalanceDecay   float64 `yaml:"imbalance_decay"`
		VolatilityWindow int     `yaml:"volatility_window"`
		Annualization    float64 `yaml:"annualization"`
		BufferSize       int     `yaml:"buffer_size"`

		FracDiffD         float64 `yaml:"fracdiff_d"`
		FracDiffThreshold float64 `yaml:"fracdiff_threshold"`
		FracDiffMaxTerms  int     `yaml:"fracdiff_max_terms"`

		RSIPeriod       int     `yaml:"rsi_period"`
		MACDFast        int     `yaml:"macd_fast"`
		MACDSlow        int     `yaml:"macd_slow"`
		MACDSignal      int     `yaml:"macd_signal"`
		BollingerPeriod int     `yaml:"bollinger_period"`
		BollingerStd    float64 `yaml:"bollinger_std"`
	} `yaml:"features"`

	Hawkes struct {
		Kernel           string  `yaml:"kernel"`
		Mu               float64 `yaml:"mu"`
		Alpha            float64 `yaml:"alpha"`
		Beta             float64 `yaml:"beta"`
		CrossAlpha       float64 `yaml:"cross_alpha"`
		FitMethod        string  `yaml:"fit_method"`
		RefitIntervalSec int     `yaml:"refit_interval_sec"`
		HistoryCap       int     `yaml:"history_cap"`
	} `yaml:"hawkes"`

	Bars struct {
		Ticks  int     `yaml:"ticks"`
		Volume float64 `yaml:"volume"`
		Dollar float64 `yaml:"dollar"`
	} `yaml:"bars"`

	Store struct {
		Path         string `yaml:"path"`
		SnapshotDir  string `yaml:"snapshot_dir"`
		SnapshotKeep int    `yaml:"snapshot_keep"`
	} `yaml:"store"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.URL == "" || (!hasPrefix(c.Feed.URL, "ws://") && !hasPrefix(c.Feed.URL, "wss://")) {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.URL)
	}
	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Feed.InboxSize < 0 {
		return fmt.Errorf("inbox size must be non-negative")
	}
	if c.Feed.BreakerFailures < 0 || c.Feed.BreakerCooloffSec < 0 {
		return fmt.Errorf("feed breaker limits must be non-negative")
	}

	switch c.Hawkes.Kernel {
	case "", "exponential", "exp", "powerlaw", "power_law", "expsum", "sum_exponentials":
	default:
		return fmt.Errorf("unknown hawkes kernel: %s", c.Hawkes.Kernel)
	}
	switch c.Hawkes.FitMethod {
	case "", "mle", "MLE", "em", "EM":
	default:
		return fmt.Errorf("unknown hawkes fit method: %s", c.Hawkes.FitMethod)
	}
	if c.Hawkes.RefitIntervalSec < 0 {
		return fmt.Errorf("refit interval must be non-negative")
	}

	if c.Bars.Ticks < 0 || c.Bars.Volume < 0 || c.Bars.Dollar < 0 {
		return fmt.Errorf("bar thresholds must be non-negative")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment variables on top of the file.
// Environment wins so containerized deployments can repoint the feed or
// database without a config rebuild.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("MICROFLOW_FEED_URL"); url != "" {
		cfg.Feed.URL = url
	}
	if path := os.Getenv("MICROFLOW_DB_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if addr := os.Getenv("MICROFLOW_METRICS_ADDR"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if level := os.Getenv("MICROFLOW_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if sec := os.Getenv("MICROFLOW_REFIT_INTERVAL_SEC"); sec != "" {
		if v, err := strconv.Atoi(sec); err == nil {
			cfg.Hawkes.RefitIntervalSec = v
		}
	}
}
