package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Broker struct {
		URL              string        `yaml:"url"`
		Token            string        `yaml:"token"`
		PingInterval     time.Duration `yaml:"ping_interval"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	} `yaml:"broker"`

	Reconnect struct {
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
		Multiplier   float64       `yaml:"multiplier"`
		MaxAttempts  int           `yaml:"max_attempts"`
	} `yaml:"reconnect"`

	Display struct {
		MaxFPS             int           `yaml:"max_fps"`
		MinFPS             int           `yaml:"min_fps"`
		Adaptive           bool          `yaml:"adaptive"`
		RenderWindow       int           `yaml:"render_window"`
		LowFPSThreshold    float64       `yaml:"low_fps_threshold"`
		HighLatency        time.Duration `yaml:"high_latency"`
	} `yaml:"display"`

	Audio struct {
		Enabled  bool    `yaml:"enabled"`
		QueueCap int     `yaml:"queue_cap"`
		Volume   float64 `yaml:"volume"`
	} `yaml:"audio"`

	StatsExport struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"stats_export"`

	Devices []string `yaml:"devices"`

	API struct {
		Enabled   bool   `yaml:"enabled"`
		Address   string `yaml:"address"`
		RateLimit struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"rate_limit"`
	} `yaml:"api"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Broker
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url must not be empty")
	}
	if c.Broker.PingInterval <= 0 {
		return fmt.Errorf("broker.ping_interval must be > 0")
	}
	if c.Broker.WriteTimeout <= 0 {
		return fmt.Errorf("broker.write_timeout must be > 0")
	}

	// Reconnect
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect.initial_delay must be > 0")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay must be >= reconnect.initial_delay")
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must be >= 0")
	}

	// Display
	if c.Display.MaxFPS < 1 {
		return fmt.Errorf("display.max_fps must be >= 1")
	}
	if c.Display.Adaptive {
		if c.Display.MinFPS < 1 || c.Display.MinFPS > c.Display.MaxFPS {
			return fmt.Errorf("display.min_fps must be in [1, max_fps] when adaptive is enabled")
		}
		if c.Display.RenderWindow < 2 {
			return fmt.Errorf("display.render_window must be >= 2 when adaptive is enabled")
		}
	}
	if c.Display.LowFPSThreshold < 0 {
		return fmt.Errorf("display.low_fps_threshold must be >= 0")
	}
	if c.Display.HighLatency <= 0 {
		return fmt.Errorf("display.high_latency must be > 0")
	}

	// Audio
	if c.Audio.Enabled {
		if c.Audio.QueueCap <= 0 {
			return fmt.Errorf("audio.queue_cap must be > 0 when audio.enabled=true")
		}
		if c.Audio.Volume < 0 || c.Audio.Volume > 2 {
			return fmt.Errorf("audio.volume must be in [0, 2]")
		}
	}

	// Stats export
	if c.StatsExport.Enabled && c.StatsExport.Interval <= 0 {
		return fmt.Errorf("stats_export.interval must be > 0 when stats_export.enabled=true")
	}

	// API
	if c.API.Enabled && c.API.Address == "" {
		return fmt.Errorf("api.address must not be empty when api.enabled=true")
	}
	if c.API.RateLimit.Enabled {
		if c.API.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("api.rate_limit.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.API.RateLimit.Burst <= 0 {
			return fmt.Errorf("api.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Broker.URL = "ws://localhost:8000/ws"
	cfg.Broker.PingInterval = 30 * time.Second
	cfg.Broker.WriteTimeout = 10 * time.Second
	cfg.Broker.HandshakeTimeout = 10 * time.Second

	cfg.Reconnect.InitialDelay = 3 * time.Second
	cfg.Reconnect.MaxDelay = 30 * time.Second
	cfg.Reconnect.Multiplier = 2.0
	cfg.Reconnect.MaxAttempts = 10

	cfg.Display.MaxFPS = 10
	cfg.Display.MinFPS = 1
	cfg.Display.Adaptive = false
	cfg.Display.RenderWindow = 10
	cfg.Display.LowFPSThreshold = 3
	cfg.Display.HighLatency = 2 * time.Second

	cfg.Audio.Enabled = true
	cfg.Audio.QueueCap = 16
	cfg.Audio.Volume = 1.0

	cfg.StatsExport.Enabled = false
	cfg.StatsExport.Interval = 5 * time.Second

	cfg.API.Enabled = false
	cfg.API.Address = ":8090"
	cfg.API.RateLimit.Enabled = false
	cfg.API.RateLimit.RequestsPerSecond = 50
	cfg.API.RateLimit.Burst = 100
	cfg.API.RateLimit.MaxConcurrent = 64

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9091

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if url := os.Getenv("HOMESTREAM_BROKER_URL"); url != "" {
		c.Broker.URL = url
	}
	if token := os.Getenv("HOMESTREAM_BROKER_TOKEN"); token != "" {
		c.Broker.Token = token
	}
	if level := os.Getenv("HOMESTREAM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("HOMESTREAM_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
