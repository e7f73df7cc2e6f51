// Package config builds the service configuration from defaults, an optional
// .env file, RULER_* environment variables and an optional YAML calibration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opencustomruler/ruler/internal/domain"
)

// CalibrationFile is the YAML document accepted by RULER_CALIBRATION_FILE.
// Any section or key left out keeps its current value. A non-empty offices
// list replaces the configured offices.
type CalibrationFile struct {
	Profile     *domain.ReferenceProfile   `yaml:"profile"`
	Calibration *domain.Calibration        `yaml:"calibration"`
	Advisory    *domain.AdvisoryThresholds `yaml:"advisory"`
}

// Load returns the configuration for this process.
func Load() (*domain.Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if strings.EqualFold(getEnv("RULER_TIER", ""), string(domain.TierShared)) {
		cfg = domain.SharedConfig()
	}

	cfg.Server.Host = getEnv("RULER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("RULER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("RULER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("RULER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.MaxBodyBytes = int64(getEnvInt("RULER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Logging.Level = getEnv("RULER_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("RULER_LOG_FORMAT", cfg.Logging.Format)
	if getEnvBool("RULER_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Tracing.Enabled = getEnvBool("RULER_TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = getEnv("RULER_SERVICE_NAME", cfg.Tracing.ServiceName)

	cfg.Cache.Type = getEnv("RULER_CACHE", cfg.Cache.Type)
	cfg.Cache.LocalMaxSize = getEnvInt("RULER_CACHE_SIZE", cfg.Cache.LocalMaxSize)
	cfg.Cache.LocalTTL = getEnvDuration("RULER_CACHE_LOCAL_TTL", cfg.Cache.LocalTTL)
	cfg.Cache.RedisAddr = getEnv("RULER_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("RULER_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("RULER_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.EnableTwoPhase = getEnvBool("RULER_CACHE_TWO_PHASE", cfg.Cache.EnableTwoPhase)

	cfg.EventBus.Type = getEnv("RULER_BUS", cfg.EventBus.Type)
	cfg.EventBus.ChannelBufferSize = getEnvInt("RULER_BUS_BUFFER", cfg.EventBus.ChannelBufferSize)
	cfg.EventBus.NATSUrl = getEnv("RULER_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("RULER_NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.KafkaBrokers = getEnvList("RULER_KAFKA_BROKERS", cfg.EventBus.KafkaBrokers)
	cfg.EventBus.ConsumerGroup = getEnv("RULER_BUS_GROUP", cfg.EventBus.ConsumerGroup)
	if cfg.EventBus.Type == "kafka" && len(cfg.EventBus.KafkaBrokers) == 0 {
		cfg.EventBus.KafkaBrokers = []string{"localhost:9092"}
	}

	est := &cfg.Estimator
	est.NoiseMode = strings.ToLower(getEnv("RULER_NOISE", est.NoiseMode))
	est.CacheTTLSeconds = getEnvInt("RULER_ESTIMATE_TTL_SECONDS", est.CacheTTLSeconds)

	p := &est.Profile
	p.TotalDeclarations = getEnvInt("RULER_TOTAL_DECLARATIONS", p.TotalDeclarations)
	p.AvgDeclarationValue = getEnvFloat("RULER_AVG_DECLARATION_VALUE", p.AvgDeclarationValue)
	p.ControlCostPerDeclaration = getEnvFloat("RULER_CONTROL_COST", p.ControlCostPerDeclaration)
	p.AvgRecoveryRate = getEnvFloat("RULER_RECOVERY_RATE", p.AvgRecoveryRate)
	p.CurrentlyControlledRate = getEnvFloat("RULER_CONTROLLED_RATE", p.CurrentlyControlledRate)

	if path := getEnv("RULER_CALIBRATION_FILE", ""); path != "" {
		est.CalibrationFile = path
		if err := LoadCalibrationFile(path, est); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCalibrationFile overlays a YAML calibration file onto est.
func LoadCalibrationFile(path string, est *domain.EstimatorConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read calibration file: %w", err)
	}
	if err := ApplyCalibration(data, est); err != nil {
		return fmt.Errorf("calibration file %s: %w", path, err)
	}
	return nil
}

// ApplyCalibration overlays a YAML calibration document onto est.
func ApplyCalibration(data []byte, est *domain.EstimatorConfig) error {
	profile := est.Profile.Clone()
	profile.Offices = nil
	file := CalibrationFile{
		Profile:     &profile,
		Calibration: ptr(est.Calibration),
		Advisory:    ptr(est.Advisory),
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}

	// An empty section decodes to nil.
	if file.Profile != nil {
		if len(file.Profile.Offices) == 0 {
			file.Profile.Offices = est.Profile.Offices
		}
		est.Profile = *file.Profile
	}
	if file.Calibration != nil {
		est.Calibration = *file.Calibration
	}
	if file.Advisory != nil {
		est.Advisory = *file.Advisory
	}
	return nil
}

// Validate rejects settings the service cannot start with. Profile arithmetic
// is checked by the estimator on every call.
func Validate(cfg *domain.Config) error {
	switch cfg.Estimator.NoiseMode {
	case domain.NoiseSeeded, domain.NoiseNone:
	default:
		return fmt.Errorf("RULER_NOISE must be %q or %q, got %q", domain.NoiseSeeded, domain.NoiseNone, cfg.Estimator.NoiseMode)
	}
	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	switch cfg.EventBus.Type {
	case "channel", "nats", "kafka":
	default:
		return fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("RULER_MAX_BODY_BYTES must be positive, got %d", cfg.Server.MaxBodyBytes)
	}
	if err := validateCalibration(cfg.Estimator.Calibration); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if err := validateAdvisory(cfg.Estimator.Advisory); err != nil {
		return fmt.Errorf("advisory: %w", err)
	}
	return nil
}

func validateCalibration(c domain.Calibration) error {
	if c.MinPrecision > c.MaxPrecision {
		return fmt.Errorf("min_precision %g above max_precision %g", c.MinPrecision, c.MaxPrecision)
	}
	if c.MinRecall > c.MaxRecall {
		return fmt.Errorf("min_recall %g above max_recall %g", c.MinRecall, c.MaxRecall)
	}
	if c.MaxImpactRate < 0 || c.MaxImpactRate > 1 {
		return fmt.Errorf("max_impact_rate must be within [0, 1], got %g", c.MaxImpactRate)
	}
	if c.MediumConfidenceConditions < 1 || c.HighConfidenceConditions < 1 {
		return fmt.Errorf("confidence thresholds must be at least 1, got medium %d high %d",
			c.MediumConfidenceConditions, c.HighConfidenceConditions)
	}
	if c.MediumConfidenceConditions > c.HighConfidenceConditions {
		return fmt.Errorf("medium_confidence_conditions %d above high_confidence_conditions %d",
			c.MediumConfidenceConditions, c.HighConfidenceConditions)
	}
	if c.OfficeNoiseBound < 0 {
		return fmt.Errorf("office_noise_bound must not be negative, got %g", c.OfficeNoiseBound)
	}
	if c.OfficeLoadDivisor <= 0 {
		return fmt.Errorf("office_load_divisor must be positive, got %g", c.OfficeLoadDivisor)
	}
	if c.StaffHoursPerDeclaration < 0 {
		return fmt.Errorf("staff_hours_per_declaration must not be negative, got %g", c.StaffHoursPerDeclaration)
	}
	if c.OverloadThreshold <= 0 {
		return fmt.Errorf("overload_threshold must be positive, got %g", c.OverloadThreshold)
	}
	return nil
}

func validateAdvisory(a domain.AdvisoryThresholds) error {
	for name, v := range map[string]float64{
		"max_false_positive_risk": a.MaxFalsePositiveRisk,
		"positive_precision":      a.PositivePrecision,
		"strong_precision":        a.StrongPrecision,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %g", name, v)
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
