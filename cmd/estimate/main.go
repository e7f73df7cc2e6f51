// Batch impact estimator for customs control rules.
//
// Usage:
//
//	go run ./cmd/estimate -rules rules.json [-config calibration.yaml] [-seed 42]
//	go run ./cmd/estimate -rules rules.json -url http://localhost:8080
//
// This tool:
//  1. Reads a JSON array of rules
//  2. Estimates each rule locally, or posts it to a running ruler's /estimate
//  3. Prints one line per rule and the combined totals
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/opencustomruler/ruler/internal/api"
	"github.com/opencustomruler/ruler/internal/config"
	"github.com/opencustomruler/ruler/internal/domain"
	"github.com/opencustomruler/ruler/internal/impact"
	"github.com/opencustomruler/ruler/internal/rules"
)

// Estimator produces one report per rule.
type Estimator interface {
	Report(ctx context.Context, rule *domain.Rule, seed *uint64) (*domain.ImpactReport, error)
}

// Totals aggregates a batch.
type Totals struct {
	Estimated  int64
	Errors     int64
	Review     int64
	Controlled int64

	mu      sync.Mutex
	revenue float64
	cost    float64
}

func (t *Totals) add(r *domain.ImpactReport) {
	atomic.AddInt64(&t.Estimated, 1)
	atomic.AddInt64(&t.Controlled, int64(r.Estimate.Declarations.Controlled))
	if r.Assessment.Verdict == domain.VerdictReview {
		atomic.AddInt64(&t.Review, 1)
	}
	t.mu.Lock()
	t.revenue += r.Estimate.Revenue.Expected
	t.cost += r.Estimate.Costs.ControlCost
	t.mu.Unlock()
}

type result struct {
	report *domain.ImpactReport
	err    error
}

func main() {
	rulesPath := flag.String("rules", "", "Path to a JSON array of rules")
	calibration := flag.String("config", "", "YAML calibration file (profile, calibration, advisory)")
	seedFlag := flag.String("seed", "", "Noise seed (default: derived from each rule)")
	noise := flag.String("noise", domain.NoiseSeeded, "Noise mode: seeded or none")
	baseURL := flag.String("url", "", "Estimate remotely against a running ruler (e.g. http://localhost:8080)")
	workers := flag.Int("workers", 4, "Number of concurrent estimates")
	verbose := flag.Bool("verbose", false, "Print recommendations for each rule")
	flag.Parse()

	if *rulesPath == "" {
		fmt.Println("Usage: estimate -rules rules.json [-config calibration.yaml] [-seed N] [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	seed, err := parseSeed(*seedFlag)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	list, err := rules.ReadRulesFile(*rulesPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to read rules: %v\n", err)
		os.Exit(1)
	}

	var est Estimator
	if *baseURL != "" {
		if err := checkHealth(*baseURL); err != nil {
			fmt.Printf("ERROR: ruler not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		est = &remoteEstimator{baseURL: *baseURL, client: &http.Client{Timeout: 10 * time.Second}}
	} else {
		cfg := domain.DefaultConfig().Estimator
		cfg.NoiseMode = *noise
		if *calibration != "" {
			if err := config.LoadCalibrationFile(*calibration, &cfg); err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
		}
		est = impact.NewService(cfg, nil)
	}

	fmt.Printf("Rules:    %s (%d)\n", *rulesPath, len(list))
	if *baseURL != "" {
		fmt.Printf("Mode:     remote %s\n", *baseURL)
	} else {
		fmt.Printf("Mode:     local (noise %s)\n", *noise)
	}
	fmt.Println()

	start := time.Now()
	results := run(context.Background(), est, list, seed, *workers)

	totals := &Totals{}
	for i, res := range results {
		if res.err != nil {
			atomic.AddInt64(&totals.Errors, 1)
			fmt.Printf("✗ %-36s %v\n", list[i].Name, res.err)
			continue
		}
		totals.add(res.report)
		printReport(list[i], res.report, *verbose)
	}

	printTotals(totals, time.Since(start))
	if totals.Errors > 0 {
		os.Exit(2)
	}
}

// run estimates every rule with a bounded pool. Results keep input order.
func run(ctx context.Context, est Estimator, list []*domain.Rule, seed *uint64, numWorkers int) []result {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	results := make([]result, len(list))

	work := make(chan int, len(list))
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				report, err := est.Report(ctx, list[idx], seed)
				results[idx] = result{report: report, err: err}
			}
		}()
	}

	for i := range list {
		work <- i
	}
	close(work)
	wg.Wait()

	return results
}

func parseSeed(raw string) (*uint64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("seed must be an unsigned integer: %w", err)
	}
	return &v, nil
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// remoteEstimator posts rules to POST /estimate.
type remoteEstimator struct {
	baseURL string
	client  *http.Client
}

func (e *remoteEstimator) Report(ctx context.Context, rule *domain.Rule, seed *uint64) (*domain.ImpactReport, error) {
	action := rule.Action
	body, err := json.Marshal(api.EstimateRequest{
		ID:         rule.ID,
		Name:       rule.Name,
		Conditions: rule.Conditions,
		Action:     &action,
	})
	if err != nil {
		return nil, err
	}

	url := e.baseURL + "/estimate"
	if seed != nil {
		url += "?seed=" + strconv.FormatUint(*seed, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.EditorHeader, "estimate-cli")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("status %d: %s (%s)", resp.StatusCode, apiErr.Error, apiErr.Code)
	}

	var report domain.ImpactReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

func printReport(rule *domain.Rule, r *domain.ImpactReport, verbose bool) {
	e := r.Estimate
	mark := "✓"
	if r.Assessment.Verdict == domain.VerdictReview {
		mark = "!"
	}
	name := truncate(rule.Name, 36)
	fmt.Printf("%s %-36s | controlled %6d (%+6.1f%%) | precision %.2f | revenue %12.0f | ROI %8.0f%% | %-6s | %s\n",
		mark,
		name,
		e.Declarations.Controlled,
		e.Declarations.PercentageIncrease,
		e.Performance.EstimatedPrecision,
		e.Revenue.Expected,
		e.Revenue.ROI,
		e.Revenue.Confidence,
		r.Assessment.Verdict,
	)
	if !verbose {
		return
	}
	fmt.Printf("    %s\n", rules.Describe(rule))
	for _, o := range e.Offices.MostImpacted {
		fmt.Printf("    %-12s +%-5d %.0f%% -> %.0f%%\n", o.Name, o.AdditionalLoad, o.CurrentCapacity*100, o.ProjectedCapacity*100)
	}
	for _, rec := range r.Assessment.Recommendations {
		fmt.Printf("    [%s] %s\n", rec.Severity, rec.Message)
	}
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func printTotals(t *Totals, duration time.Duration) {
	fmt.Println()
	fmt.Printf("Estimated:        %d\n", t.Estimated)
	fmt.Printf("Errors:           %d\n", t.Errors)
	fmt.Printf("Needs review:     %d\n", t.Review)
	fmt.Printf("Controlled (sum): %d\n", t.Controlled)
	fmt.Printf("Revenue (sum):    %.0f\n", t.revenue)
	fmt.Printf("Cost (sum):       %.0f\n", t.cost)
	if t.cost > 0 {
		fmt.Printf("Combined ROI:     %.0f%%\n", (t.revenue-t.cost)/t.cost*100)
	}
	fmt.Printf("Duration:         %v\n", duration.Round(time.Millisecond))
}
