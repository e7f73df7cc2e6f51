package domain

import (
	"net"
	"strconv"
	"time"
)

// Config is everything cmd/ruler needs to start.
type Config struct {
	Tier      Tier            `json:"tier"`
	Server    ServerConfig    `json:"server"`
	Estimator EstimatorConfig `json:"estimator"`
	Cache     CacheConfig     `json:"cache"`
	EventBus  EventBusConfig  `json:"eventBus"`
	Logging   LoggingConfig   `json:"logging"`
	Tracing   TracingConfig   `json:"tracing"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`

	// MaxBodyBytes caps request bodies. Rules and declarations are small.
	MaxBodyBytes int64 `json:"maxBodyBytes"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// EstimatorConfig is the reference profile, heuristic calibration and
// advisory thresholds the impact service runs with.
type EstimatorConfig struct {
	Profile     ReferenceProfile   `json:"profile"`
	Calibration Calibration        `json:"calibration"`
	Advisory    AdvisoryThresholds `json:"advisory"`

	// NoiseMode is NoiseSeeded or NoiseNone.
	NoiseMode string `json:"noiseMode"`

	// CalibrationFile, when set, was overlaid onto the three sections above.
	CalibrationFile string `json:"calibrationFile,omitempty"`

	CacheTTLSeconds int `json:"cacheTtlSeconds"`
}

// Noise modes. Seeded noise derives its seed from the rule unless the
// caller passes one.
const (
	NoiseSeeded = "seeded"
	NoiseNone   = "none"
)

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier picks a coherent set of backends.
type Tier string

const (
	// TierStandalone keeps everything in one process: LRU cache, channel bus.
	TierStandalone Tier = "standalone"

	// TierShared lets replicas share estimates through Redis and rule
	// events through NATS.
	TierShared Tier = "shared"
)

// DefaultConfig is the standalone configuration.
func DefaultConfig() *Config {
	return &Config{
		Tier: TierStandalone,
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Estimator: EstimatorConfig{
			Profile:         DefaultProfile(),
			Calibration:     DefaultCalibration(),
			Advisory:        DefaultAdvisoryThresholds(),
			NoiseMode:       NoiseSeeded,
			CacheTTLSeconds: 600,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
			ConsumerGroup:     "ruler",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{ServiceName: "ruler"},
	}
}

// SharedConfig is DefaultConfig switched to Redis (behind a local LRU) and
// NATS, with tracing on.
func SharedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierShared
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus.Type = "nats"
	cfg.EventBus.NATSUrl = "nats://localhost:4222"
	cfg.Tracing.Enabled = true
	return cfg
}
