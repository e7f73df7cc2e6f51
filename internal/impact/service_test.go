package impact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencustomruler/ruler/internal/cache"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/rules"
)

func testConfig(noise string) domain.EstimatorConfig {
	cfg := domain.DefaultConfig().Estimator
	cfg.NoiseMode = noise
	return cfg
}

// brokenCache fails every call.
type brokenCache struct {
	sets int
}

var errBroken = errors.New("cache down")

func (b *brokenCache) GetReport(context.Context, string) (*domain.ImpactReport, error) {
	return nil, errBroken
}
func (b *brokenCache) SetReport(context.Context, string, *domain.ImpactReport, time.Duration) error {
	b.sets++
	return errBroken
}
func (b *brokenCache) Ping(context.Context) error { return errBroken }
func (b *brokenCache) Close() error               { return nil }

func TestService_ReportCaches(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testConfig(domain.NoiseSeeded), cache.NewMemory(10))
	r := chinaHighValue()

	first, err := svc.Report(ctx, r, nil)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Report(ctx, r, nil)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Estimate, second.Estimate)
	assert.Equal(t, first.Assessment, second.Assessment)

	// A different seed is a different entry.
	seed := uint64(7)
	third, err := svc.Report(ctx, r, &seed)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, uint64(7), third.Seed)
}

func TestService_CacheFollowsRuleShape(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testConfig(domain.NoiseNone), cache.NewMemory(10))

	a := chinaHighValue()
	_, err := svc.Report(ctx, a, nil)
	require.NoError(t, err)

	// Same conditions under another id share the entry.
	b := a.Clone()
	b.ID = "rule-2"
	got, err := svc.Report(ctx, b, nil)
	require.NoError(t, err)
	assert.True(t, got.Cached)
	assert.Equal(t, "rule-2", got.RuleID)

	// A new condition invalidates it.
	b.Conditions = append(b.Conditions, cond("c3", domain.FieldWeightKg, domain.OpGreaterThan, domain.Number(500)))
	got, err = svc.Report(ctx, b, nil)
	require.NoError(t, err)
	assert.False(t, got.Cached)
	assert.Equal(t, domain.ConfidenceHigh, got.Estimate.Revenue.Confidence)
}

func TestService_SeedResolution(t *testing.T) {
	ctx := context.Background()
	r := chinaHighValue()
	fp := rules.Fingerprint(r)

	seeded := NewService(testConfig(domain.NoiseSeeded), nil)
	report, err := seeded.Estimate(ctx, r, nil)
	require.NoError(t, err)
	assert.Equal(t, fp, report.Seed)
	assert.Equal(t, rules.FingerprintHex(r), report.Fingerprint)

	again, err := seeded.Estimate(ctx, r, nil)
	require.NoError(t, err)
	assert.Equal(t, report.Estimate, again.Estimate)

	quiet := NewService(testConfig(domain.NoiseNone), nil)
	seed := uint64(99)
	report, err = quiet.Estimate(ctx, r, &seed)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), report.Seed)
	for _, o := range report.Estimate.Offices.MostImpacted {
		assert.Equal(t, 868, o.AdditionalLoad)
	}
}

func TestService_CacheFailureDegrades(t *testing.T) {
	broken := &brokenCache{}
	svc := NewService(testConfig(domain.NoiseSeeded), broken)

	report, err := svc.Report(context.Background(), chinaHighValue(), nil)
	require.NoError(t, err)
	assert.False(t, report.Cached)
	assert.Equal(t, 1, broken.sets)
}

func TestService_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(domain.NoiseNone)
	cfg.Profile.CurrentlyControlledRate = 0
	svc := NewService(cfg, cache.NewMemory(10))

	_, err := svc.Report(ctx, chinaHighValue(), nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidReferenceProfile))

	_, err = svc.Report(ctx, nil, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestService_AssessesEstimate(t *testing.T) {
	svc := NewService(testConfig(domain.NoiseNone), nil)

	report, err := svc.Estimate(context.Background(), chinaHighValue(), nil)
	require.NoError(t, err)

	// Every default office ends above the overload threshold.
	assert.Equal(t, domain.VerdictReview, report.Assessment.Verdict)
	assert.True(t, report.Assessment.NeedsReview)
	assert.True(t, report.Assessment.PositiveImpact)
}

func TestService_ProfileIsACopy(t *testing.T) {
	svc := NewService(testConfig(domain.NoiseNone), nil)
	p := svc.Profile()
	p.Offices[0].Name = "changed"
	assert.Equal(t, "Roissy CDG", svc.Profile().Offices[0].Name)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "impact:0000000000000001:00000000000000ff:3", CacheKey(1, 0xff, 3))
}

func TestService_SharedCacheFollowsSettings(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewMemory(10)
	r := chinaHighValue()

	before := NewService(testConfig(domain.NoiseNone), shared)
	old, err := before.Report(ctx, r, nil)
	require.NoError(t, err)
	assert.Equal(t, 3472, old.Estimate.Declarations.Controlled)

	cfg := testConfig(domain.NoiseNone)
	cfg.Profile.TotalDeclarations = 50000
	after := NewService(cfg, shared)

	got, err := after.Report(ctx, r, nil)
	require.NoError(t, err)
	assert.False(t, got.Cached, "report computed under another profile was served")

	fresh, err := after.Estimate(ctx, r, nil)
	require.NoError(t, err)
	assert.Equal(t, fresh.Estimate.Declarations.Controlled, got.Estimate.Declarations.Controlled)
	assert.NotEqual(t, old.Estimate.Declarations.Controlled, got.Estimate.Declarations.Controlled)

	// An identically configured replica reuses the entry.
	replica := NewService(testConfig(domain.NoiseNone), shared)
	again, err := replica.Report(ctx, r, nil)
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestSettingsHash(t *testing.T) {
	base := testConfig(domain.NoiseSeeded)
	assert.Equal(t, SettingsHash(base), SettingsHash(testConfig(domain.NoiseSeeded)))

	tests := []struct {
		name   string
		mutate func(*domain.EstimatorConfig)
	}{
		{"profile", func(c *domain.EstimatorConfig) { c.Profile.Offices[0].CurrentCapacity = 0.5 }},
		{"calibration", func(c *domain.EstimatorConfig) { c.Calibration.MaxImpactRate = 0.30 }},
		{"advisory", func(c *domain.EstimatorConfig) { c.Advisory.MinROI = 250 }},
		{"noise mode", func(c *domain.EstimatorConfig) { c.NoiseMode = domain.NoiseNone }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(domain.NoiseSeeded)
			tt.mutate(&cfg)
			assert.NotEqual(t, SettingsHash(base), SettingsHash(cfg))
		})
	}
}
