package impact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opencustomruler/ruler/internal/advisory"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/metrics"
	"github.com/opencustomruler/ruler/internal/rules"
)

var tracer = otel.Tracer("ruler-impact")

// Service wraps the estimator with the configured profile, advisory
// assessment, noise seeding and the estimate cache.
type Service struct {
	estimator *Estimator
	profile   domain.ReferenceProfile
	advisor   *advisory.Processor
	noiseMode string
	cache     domain.ReportCache
	ttl       time.Duration

	// settings hashes everything besides the rule that shapes a report.
	settings uint64
}

// NewService creates a service. cache may be nil.
func NewService(cfg domain.EstimatorConfig, cache domain.ReportCache) *Service {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		estimator: NewEstimator(cfg.Calibration),
		profile:   cfg.Profile.Clone(),
		advisor:   advisory.NewProcessor(cfg.Advisory),
		noiseMode: cfg.NoiseMode,
		cache:     cache,
		ttl:       ttl,
		settings:  SettingsHash(cfg),
	}
}

// SettingsHash fingerprints the profile, calibration, advisory thresholds and
// noise mode. Services sharing a cache only share entries when it matches.
func SettingsHash(cfg domain.EstimatorConfig) uint64 {
	data, err := json.Marshal(struct {
		Profile     domain.ReferenceProfile
		Calibration domain.Calibration
		Advisory    domain.AdvisoryThresholds
		NoiseMode   string
	}{cfg.Profile, cfg.Calibration, cfg.Advisory, cfg.NoiseMode})
	if err != nil {
		// NaN or Inf in the profile; the estimator rejects it anyway.
		return xxhash.Sum64String(fmt.Sprintf("%+v", cfg))
	}
	return xxhash.Sum64(data)
}

// Profile returns a copy of the reference profile in use.
func (s *Service) Profile() domain.ReferenceProfile {
	return s.profile.Clone()
}

// Calibration returns the heuristic constants in use.
func (s *Service) Calibration() domain.Calibration {
	return s.estimator.Calibration()
}

// Thresholds returns the advisory thresholds in use.
func (s *Service) Thresholds() domain.AdvisoryThresholds {
	return s.advisor.Thresholds
}

// noiseFor resolves the noise source and the seed reported with the estimate.
// Without an explicit seed the rule fingerprint seeds the generator, so an
// unchanged rule always gets the same office distribution.
func (s *Service) noiseFor(fingerprint uint64, seed *uint64) (NoiseSource, uint64) {
	if s.noiseMode == domain.NoiseNone {
		return ZeroNoise{}, 0
	}
	sd := fingerprint
	if seed != nil {
		sd = *seed
	}
	return NewSeededNoise(sd), sd
}

// Estimate computes a fresh report for rule. Nothing is cached.
func (s *Service) Estimate(ctx context.Context, rule *domain.Rule, seed *uint64) (*domain.ImpactReport, error) {
	_, span := tracer.Start(ctx, "impact.Estimate")
	defer span.End()

	if rule == nil {
		return nil, domain.Validationf("impact.Service.Estimate", "rule is required")
	}

	fp := rules.Fingerprint(rule)
	noise, usedSeed := s.noiseFor(fp, seed)

	span.SetAttributes(
		attribute.String("rule.id", rule.ID),
		attribute.Int("rule.conditions", len(rule.Conditions)),
		attribute.Int64("impact.seed", int64(usedSeed)),
	)

	start := time.Now()
	est, err := s.estimator.Estimate(rule, s.profile, noise)
	metrics.EstimateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EstimateErrorsTotal.WithLabelValues(domain.ErrorCode(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.EstimatesTotal.WithLabelValues(string(est.Revenue.Confidence)).Inc()

	assessment := s.advisor.Assess(rule, est)
	metrics.VerdictsTotal.WithLabelValues(string(assessment.Verdict)).Inc()

	span.SetAttributes(
		attribute.String("impact.confidence", string(est.Revenue.Confidence)),
		attribute.String("impact.verdict", string(assessment.Verdict)),
	)

	return &domain.ImpactReport{
		RuleID:      rule.ID,
		Fingerprint: fmt.Sprintf("%016x", fp),
		Seed:        usedSeed,
		Estimate:    *est,
		Assessment:  assessment,
	}, nil
}

// Report returns the cached report for rule's current shape, computing and
// caching it on a miss. Cache failures degrade to a fresh estimate.
func (s *Service) Report(ctx context.Context, rule *domain.Rule, seed *uint64) (*domain.ImpactReport, error) {
	if rule == nil {
		return nil, domain.Validationf("impact.Service.Report", "rule is required")
	}
	if s.cache == nil {
		return s.Estimate(ctx, rule, seed)
	}

	fp := rules.Fingerprint(rule)
	_, usedSeed := s.noiseFor(fp, seed)
	key := CacheKey(s.settings, fp, usedSeed)

	cached, err := s.cache.GetReport(ctx, key)
	if err != nil {
		slog.Warn("estimate cache read failed", "key", key, "error", err)
	}
	if cached != nil {
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		cached.RuleID = rule.ID
		cached.Cached = true
		return cached, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()

	report, err := s.Estimate(ctx, rule, seed)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetReport(ctx, key, report, s.ttl); err != nil {
		slog.Warn("estimate cache write failed", "key", key, "error", err)
	}
	return report, nil
}

// CacheKey identifies an estimate by service settings, rule shape and noise
// seed.
func CacheKey(settings, fingerprint, seed uint64) string {
	return fmt.Sprintf("impact:%016x:%016x:%d", settings, fingerprint, seed)
}
