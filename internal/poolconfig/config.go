// Package poolconfig holds the validated, builder-style configuration
// surface described in spec §6: Monitoring, Alerts, Scaling, Persistence
// and Pool sections. It contains plain data plus validation and a file
// loader, and no imports of the subsystem packages, so every subsystem can
// depend on it without creating an import cycle; internal/pool is the
// place that turns a Config into running components.
package poolconfig

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Monitoring is the §6 "Monitoring" configuration group.
type Monitoring struct {
	MonitoringPeriodMS    int64    `yaml:"monitoring_period_ms" mapstructure:"monitoring_period_ms"`
	SamplingIntervalMS    int64    `yaml:"sampling_interval_ms" mapstructure:"sampling_interval_ms"`
	EnableDetailedMetrics bool     `yaml:"enable_detailed_metrics" mapstructure:"enable_detailed_metrics"`
	EnableQueueMetrics    bool     `yaml:"enable_queue_metrics" mapstructure:"enable_queue_metrics"`
	EnableTaskMetrics     bool     `yaml:"enable_task_metrics" mapstructure:"enable_task_metrics"`
	EnableThreadMetrics   bool     `yaml:"enable_thread_metrics" mapstructure:"enable_thread_metrics"`
	EnableLatencyMetrics  bool     `yaml:"enable_latency_metrics" mapstructure:"enable_latency_metrics"`
	EnableRejectionMetric bool     `yaml:"enable_rejection_metrics" mapstructure:"enable_rejection_metrics"`
	LatencyPercentiles    []int    `yaml:"latency_percentiles" mapstructure:"latency_percentiles"`
}

// Alerts is the §6 "Alerts" configuration group.
type Alerts struct {
	QueueSizeWarningThreshold int    `yaml:"queue_size_warning_threshold" mapstructure:"queue_size_warning_threshold"`
	TaskTimeoutMS             int64  `yaml:"task_timeout_ms" mapstructure:"task_timeout_ms"`
	ThreadPoolUsageThreshold  int    `yaml:"thread_pool_usage_threshold" mapstructure:"thread_pool_usage_threshold"`
	MinimumAlertLevel         string `yaml:"minimum_alert_level" mapstructure:"minimum_alert_level"` // INFO|WARNING|ERROR|CRITICAL
}

// Scaling is the §6 "Scaling" configuration group. StrategyName selects a
// built-in strategy ("load", "queue", "composite", "" for none); a
// programmatic caller that wants a custom scaling.Strategy passes it
// directly to pool.New instead of through this struct.
type Scaling struct {
	StrategyName         string  `yaml:"strategy" mapstructure:"strategy"`
	ScalingCheckPeriodMS int64   `yaml:"scaling_check_period_ms" mapstructure:"scaling_check_period_ms"`
	MinThreads           int     `yaml:"min_threads" mapstructure:"min_threads"`
	MaxThreads           int     `yaml:"max_threads" mapstructure:"max_threads"`
	LoadHighThreshold    float64 `yaml:"load_high_threshold" mapstructure:"load_high_threshold"`
	LoadLowThreshold     float64 `yaml:"load_low_threshold" mapstructure:"load_low_threshold"`
	QueueThreshold       int     `yaml:"queue_threshold" mapstructure:"queue_threshold"`
	QueueCapacityRatio   float64 `yaml:"queue_capacity_ratio" mapstructure:"queue_capacity_ratio"`
	ScaleUpStep          int     `yaml:"scale_up_step" mapstructure:"scale_up_step"`
	ScaleDownStep        int     `yaml:"scale_down_step" mapstructure:"scale_down_step"`
	KeepAliveAdjustMS    int64   `yaml:"keep_alive_adjust_ms" mapstructure:"keep_alive_adjust_ms"`
}

// PersistenceBackend names the persistence backend a Config describes.
// Validate checks the settings each backend needs, but pool.New does not
// build a PersistenceStrategy from it; the strategy is passed with
// pool.WithPersistence.
type PersistenceBackend string

const (
	PersistenceNone     PersistenceBackend = "none"
	PersistenceFile     PersistenceBackend = "file"
	PersistenceDatabase PersistenceBackend = "database"
)

// Persistence is the §6 "Persistence" configuration group.
type Persistence struct {
	Enabled    bool               `yaml:"enabled" mapstructure:"enabled"`
	Backend    PersistenceBackend `yaml:"backend" mapstructure:"backend"`
	FilePath   string             `yaml:"file_path" mapstructure:"file_path"`
	DatabaseDSN string            `yaml:"database_dsn" mapstructure:"database_dsn"`
}

// Pool is the §6 "Pool" configuration group.
type Pool struct {
	CorePoolSize  int           `yaml:"core_pool_size" mapstructure:"core_pool_size"`
	MaxPoolSize   int           `yaml:"max_pool_size" mapstructure:"max_pool_size"`
	KeepAliveTime time.Duration `yaml:"keep_alive_time" mapstructure:"keep_alive_time"`
	QueueCapacity int           `yaml:"queue_capacity" mapstructure:"queue_capacity"`
	PoolName      string        `yaml:"pool_name" mapstructure:"pool_name"`
}

// Config is the full validated configuration surface.
type Config struct {
	Monitoring  Monitoring  `yaml:"monitoring" mapstructure:"monitoring"`
	Alerts      Alerts      `yaml:"alerts" mapstructure:"alerts"`
	Scaling     Scaling     `yaml:"scaling" mapstructure:"scaling"`
	Persistence Persistence `yaml:"persistence" mapstructure:"persistence"`
	Pool        Pool        `yaml:"pool" mapstructure:"pool"`
}

// Default returns a Config populated with every default named in spec §6.
func Default() Config {
	return Config{
		Monitoring: Monitoring{
			MonitoringPeriodMS:    5000,
			SamplingIntervalMS:    1000,
			EnableDetailedMetrics: true,
			EnableQueueMetrics:    true,
			EnableTaskMetrics:     true,
			EnableThreadMetrics:   true,
			EnableLatencyMetrics:  true,
			EnableRejectionMetric: true,
			LatencyPercentiles:    []int{50, 75, 90, 95, 99},
		},
		Alerts: Alerts{
			QueueSizeWarningThreshold: 1000,
			TaskTimeoutMS:             60000,
			ThreadPoolUsageThreshold:  80,
			MinimumAlertLevel:         "WARNING",
		},
		Scaling: Scaling{
			ScalingCheckPeriodMS: 30000,
			MinThreads:           1,
			MaxThreads:           2 * runtime.NumCPU(),
			LoadHighThreshold:    0.8,
			LoadLowThreshold:     0.2,
			QueueCapacityRatio:   0.5,
			ScaleUpStep:          2,
			ScaleDownStep:        1,
			KeepAliveAdjustMS:    1000,
		},
		Persistence: Persistence{
			Enabled: false,
			Backend: PersistenceNone,
		},
		Pool: Pool{
			CorePoolSize:  2,
			MaxPoolSize:   2 * runtime.NumCPU(),
			KeepAliveTime: 60 * time.Second,
			QueueCapacity: 1000,
			PoolName:      "pool",
		},
	}
}

// Validate checks every constraint spec §6 names, failing construction
// with a wrapped ErrInvalid describing the first violation found.
func (c Config) Validate() error {
	if c.Monitoring.MonitoringPeriodMS <= 0 {
		return fmt.Errorf("%w: monitoringPeriodMs must be > 0", ErrInvalid)
	}
	if c.Monitoring.SamplingIntervalMS <= 0 || c.Monitoring.SamplingIntervalMS > c.Monitoring.MonitoringPeriodMS {
		return fmt.Errorf("%w: samplingIntervalMs must be > 0 and <= monitoringPeriodMs", ErrInvalid)
	}
	for _, p := range c.Monitoring.LatencyPercentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("%w: latencyPercentiles must be in [0,100], got %d", ErrInvalid, p)
		}
	}

	if c.Alerts.QueueSizeWarningThreshold <= 0 {
		return fmt.Errorf("%w: queueSizeWarningThreshold must be > 0", ErrInvalid)
	}
	if c.Alerts.TaskTimeoutMS <= 0 {
		return fmt.Errorf("%w: taskTimeoutMs must be > 0", ErrInvalid)
	}
	if c.Alerts.ThreadPoolUsageThreshold < 1 || c.Alerts.ThreadPoolUsageThreshold > 100 {
		return fmt.Errorf("%w: threadPoolUsageThreshold must be in [1,100]", ErrInvalid)
	}

	if c.Scaling.MinThreads < 0 {
		return fmt.Errorf("%w: minThreads must be >= 0", ErrInvalid)
	}
	if c.Scaling.MaxThreads <= 0 || c.Scaling.MaxThreads < c.Scaling.MinThreads {
		return fmt.Errorf("%w: maxThreads must be > 0 and >= minThreads", ErrInvalid)
	}

	if c.Persistence.Enabled && c.Persistence.Backend == "" {
		return fmt.Errorf("%w: persistence enabled requires a backend", ErrInvalid)
	}
	if c.Persistence.Enabled && c.Persistence.Backend == PersistenceFile && c.Persistence.FilePath == "" {
		return fmt.Errorf("%w: file persistence requires file_path", ErrInvalid)
	}
	if c.Persistence.Enabled && c.Persistence.Backend == PersistenceDatabase && c.Persistence.DatabaseDSN == "" {
		return fmt.Errorf("%w: database persistence requires database_dsn", ErrInvalid)
	}

	if c.Pool.CorePoolSize < 0 {
		return fmt.Errorf("%w: corePoolSize must be >= 0", ErrInvalid)
	}
	if c.Pool.MaxPoolSize <= 0 || c.Pool.MaxPoolSize < c.Pool.CorePoolSize {
		return fmt.Errorf("%w: maxPoolSize must be > 0 and >= corePoolSize", ErrInvalid)
	}
	if c.Pool.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queueCapacity must be > 0", ErrInvalid)
	}
	if c.Pool.PoolName == "" {
		return fmt.Errorf("%w: poolName must be non-empty", ErrInvalid)
	}

	return nil
}

// LoadFromFile reads path (any format viper supports: yaml, json, toml)
// and merges it over Default(). Grounded on the teacher pack's use of
// spf13/viper for layered configuration (brainless-PubDataHub,
// aipilotbyjd-linkflow-ai).
func LoadFromFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("poolconfig: read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("poolconfig: unmarshal config: %w", err)
	}
	return cfg, nil
}
