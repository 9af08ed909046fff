package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// TrustedProxies lists proxy addresses or CIDRs whose
		// X-Forwarded-For header is honoured. Empty trusts none.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	// Signal holds WebSocket session settings.
	Signal struct {
		Path           string        `yaml:"path"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		SendBufferSize int           `yaml:"send_buffer_size"`
		MaxSessions    int           `yaml:"max_sessions"` // 0 = unlimited
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"signal"`

	Chat struct {
		MaxContentLength int    `yaml:"max_content_length"`
		ExcludeSender    bool   `yaml:"exclude_sender"`
		DefaultRoom      string `yaml:"default_room"`
	} `yaml:"chat"`

	Counters struct {
		KeyPrefix    string        `yaml:"key_prefix"`
		Timeout      time.Duration `yaml:"timeout"`
		ReadCacheTTL time.Duration `yaml:"read_cache_ttl"`
	} `yaml:"counters"`

	// Backup snapshots like counters to disk when Redis is not used.
	Backup struct {
		Enabled   bool          `yaml:"enabled"`
		Directory string        `yaml:"directory"`
		Interval  time.Duration `yaml:"interval"`
		Keep      int           `yaml:"keep"`
	} `yaml:"backup"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	// Fanout relays room broadcasts to other instances over Redis pub/sub.
	Fanout struct {
		Enabled bool   `yaml:"enabled"`
		Channel string `yaml:"channel"`
	} `yaml:"fanout"`

	// Presence makes online counts cluster-wide.
	Presence struct {
		Enabled           bool          `yaml:"enabled"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		InstanceTTL       time.Duration `yaml:"instance_ttl"`
	} `yaml:"presence"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		RequireToken    bool          `yaml:"require_token"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Reliability struct {
		RetryAttempts      int           `yaml:"retry_attempts"`
		RetryInitialDelay  time.Duration `yaml:"retry_initial_delay"`
		BreakerFailures    int           `yaml:"breaker_failures"`
		BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
	} `yaml:"reliability"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

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
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Signal.Path == "" {
		return fmt.Errorf("signal.path must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.SendBufferSize <= 0 {
		return fmt.Errorf("signal.send_buffer_size must be > 0")
	}
	if c.Signal.MaxSessions < 0 {
		return fmt.Errorf("signal.max_sessions must be >= 0")
	}

	if c.Chat.MaxContentLength <= 0 {
		return fmt.Errorf("chat.max_content_length must be > 0")
	}

	if c.Counters.KeyPrefix == "" {
		return fmt.Errorf("counters.key_prefix must not be empty")
	}
	if c.Counters.Timeout <= 0 {
		return fmt.Errorf("counters.timeout must be > 0")
	}
	if c.Counters.ReadCacheTTL < 0 {
		return fmt.Errorf("counters.read_cache_ttl must be >= 0")
	}

	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0")
		}
		if c.Backup.Keep <= 0 {
			return fmt.Errorf("backup.keep must be > 0")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}
	if c.Fanout.Enabled {
		if !c.Redis.Enabled {
			return fmt.Errorf("fanout.enabled requires redis.enabled=true")
		}
		if c.Fanout.Channel == "" {
			return fmt.Errorf("fanout.channel must not be empty when fanout.enabled=true")
		}
	}
	if c.Presence.Enabled {
		if !c.Redis.Enabled {
			return fmt.Errorf("presence.enabled requires redis.enabled=true")
		}
		if c.Presence.HeartbeatInterval <= 0 {
			return fmt.Errorf("presence.heartbeat_interval must be > 0")
		}
		if c.Presence.InstanceTTL <= c.Presence.HeartbeatInterval {
			return fmt.Errorf("presence.instance_ttl must be greater than presence.heartbeat_interval")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	if c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts must be >= 0")
	}
	if c.Reliability.BreakerFailures <= 0 {
		return fmt.Errorf("reliability.breaker_failures must be > 0")
	}
	if c.Reliability.BreakerOpenTimeout <= 0 {
		return fmt.Errorf("reliability.breaker_open_timeout must be > 0")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBufferSize = 64
	cfg.Signal.MaxSessions = 0
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Chat.MaxContentLength = 500
	cfg.Chat.ExcludeSender = false
	cfg.Chat.DefaultRoom = "lobby"

	cfg.Counters.KeyPrefix = "livecast:counter:"
	cfg.Counters.Timeout = 2 * time.Second
	cfg.Counters.ReadCacheTTL = time.Second

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "data/snapshots"
	cfg.Backup.Interval = time.Minute
	cfg.Backup.Keep = 5

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Fanout.Enabled = false
	cfg.Fanout.Channel = "livecast:rooms"

	cfg.Presence.Enabled = false
	cfg.Presence.HeartbeatInterval = 10 * time.Second
	cfg.Presence.InstanceTTL = 30 * time.Second

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.RequireToken = true

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 10
	cfg.RateLimiting.WebSocket.Burst = 20
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 16 * 1024

	cfg.Reliability.RetryAttempts = 1
	cfg.Reliability.RetryInitialDelay = 50 * time.Millisecond
	cfg.Reliability.BreakerFailures = 5
	cfg.Reliability.BreakerOpenTimeout = 10 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LIVECAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("LIVECAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("LIVECAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("LIVECAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if pass := os.Getenv("LIVECAST_REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}
	if v := os.Getenv("LIVECAST_FANOUT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Fanout.Enabled = enabled
		}
	}
	if dir := os.Getenv("LIVECAST_BACKUP_DIR"); dir != "" {
		c.Backup.Directory = dir
		c.Backup.Enabled = true
	}
	if v := os.Getenv("LIVECAST_REQUIRE_TOKEN"); v != "" {
		if required, err := strconv.ParseBool(v); err == nil {
			c.Auth.RequireToken = required
		}
	}
}
