package config

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/kestrelworks/redisfailover/backoff"
	"github.com/kestrelworks/redisfailover/circuitbreaker"
	"github.com/kestrelworks/redisfailover/failover"
	"github.com/kestrelworks/redisfailover/retry"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type EndpointConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts"`
	WaitDuration      string  `mapstructure:"wait_duration"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

type BreakerConfig struct {
	SlidingWindowType         string  `mapstructure:"sliding_window_type"`
	SlidingWindowSize         int     `mapstructure:"sliding_window_size"`
	MinimumCalls              int     `mapstructure:"minimum_calls"`
	FailureRateThreshold      float64 `mapstructure:"failure_rate_threshold"`
	SlowCallDurationThreshold string  `mapstructure:"slow_call_duration_threshold"`
	SlowCallRateThreshold     float64 `mapstructure:"slow_call_rate_threshold"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Endpoints []EndpointConfig `mapstructure:"endpoints"`
	Retry     RetryConfig      `mapstructure:"retry"`
	Breaker   BreakerConfig    `mapstructure:"breaker"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// Load reads config.yaml from ./config or the working directory, applies
// FAILOVER_-prefixed environment overrides, and validates the result.
// Endpoints have no default and must come from the file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.wait_duration", "500ms")
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("breaker.sliding_window_type", string(circuitbreaker.WindowTypeCount))
	v.SetDefault("breaker.sliding_window_size", 100)
	v.SetDefault("breaker.minimum_calls", 100)
	v.SetDefault("breaker.failure_rate_threshold", 50.0)
	v.SetDefault("breaker.slow_call_duration_threshold", "60s")
	v.SetDefault("breaker.slow_call_rate_threshold", 100.0)
	v.SetDefault("logging.level", LogLevelInfo)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FAILOVER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoints,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateEndpoint)),
		),
		validation.Field(&c.Retry,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RetryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.MaxAttempts,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&rc.WaitDuration,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&rc.BackoffMultiplier,
						validation.Required,
						validation.Min(1.0),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.SlidingWindowType,
						validation.Required,
						validation.In(
							string(circuitbreaker.WindowTypeCount),
							string(circuitbreaker.WindowTypeTime),
						),
					),
					validation.Field(&bc.SlidingWindowSize,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.MinimumCalls,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.FailureRateThreshold,
						validation.Required,
						validation.Min(0.0).Exclusive(),
						validation.Max(100.0),
					),
					validation.Field(&bc.SlowCallDurationThreshold,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&bc.SlowCallRateThreshold,
						validation.Required,
						validation.Min(0.0).Exclusive(),
						validation.Max(100.0),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

func validateEndpoint(value interface{}) error {
	endpoint, ok := value.(EndpointConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an EndpointConfig")
	}

	if endpoint.Address == "" {
		return validation.NewError("validation_empty_address", "endpoint address cannot be empty")
	}

	if err := validateHostPort(endpoint.Address); err != nil {
		return err
	}

	if endpoint.DB < 0 {
		return validation.NewError("validation_invalid_db", "db must not be negative")
	}

	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 500ms, 60s)")
	}

	return nil
}

// EndpointConfigs converts the configured endpoint list; list order defines
// failover priority.
func (c *Config) EndpointConfigs() []failover.EndpointConfig {
	endpoints := make([]failover.EndpointConfig, 0, len(c.Endpoints))
	for _, e := range c.Endpoints {
		endpoints = append(endpoints, failover.EndpointConfig{
			Address:  e.Address,
			Username: e.Username,
			Password: e.Password,
			DB:       e.DB,
		})
	}

	return endpoints
}

// ProviderOptions converts the retry and breaker sections into provider
// options. The config must have been validated first.
func (c *Config) ProviderOptions() ([]failover.Option, error) {
	waitDuration, err := time.ParseDuration(c.Retry.WaitDuration)
	if err != nil {
		return nil, err
	}

	slowCallDuration, err := time.ParseDuration(c.Breaker.SlowCallDurationThreshold)
	if err != nil {
		return nil, err
	}

	policy, err := retry.NewCircuitAwarePolicy("failover",
		retry.WithMaxAttempts(c.Retry.MaxAttempts),
		retry.WithBackoff(backoff.NewExponential(waitDuration,
			backoff.WithMultiplier(c.Retry.BackoffMultiplier),
		)),
		retry.WithRetryErrors(failover.ErrConnection),
	)
	if err != nil {
		return nil, err
	}

	windowType := circuitbreaker.WindowType(c.Breaker.SlidingWindowType)
	windowSize := c.Breaker.SlidingWindowSize

	return []failover.Option{
		failover.WithLogger(c.Logger()),
		failover.WithRetryPolicy(policy),
		failover.WithWindowFactory(func() circuitbreaker.Window {
			return circuitbreaker.NewWindow(windowType, windowSize)
		}),
		failover.WithBreakerOptions(
			circuitbreaker.WithMinimumNumberOfCalls(c.Breaker.MinimumCalls),
			circuitbreaker.WithFailureRateThreshold(c.Breaker.FailureRateThreshold),
			circuitbreaker.WithSlowCallRateThreshold(c.Breaker.SlowCallRateThreshold),
			circuitbreaker.WithSlowCallDurationThreshold(slowCallDuration),
		),
	}, nil
}

// NewProvider builds the failover provider described by this config.
func (c *Config) NewProvider() (*failover.Provider, error) {
	opts, err := c.ProviderOptions()
	if err != nil {
		return nil, err
	}

	return failover.New(c.EndpointConfigs(), opts...)
}

// Logger builds a text slog logger at the configured level.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case LogLevelDebug:
		level = slog.LevelDebug
	case LogLevelWarn:
		level = slog.LevelWarn
	case LogLevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
