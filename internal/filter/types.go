package filter

import (
	"github.com/shopspring/decimal"

	"token-sentinel/internal/domain"
)

// Thresholds are the configured health limits a token must satisfy.
type Thresholds struct {
	MinMarketcap decimal.Decimal // marketcap >= MinMarketcap
	MinHolders   decimal.Decimal // holders >= MinHolders
	MaxTop10Pct  decimal.Decimal // top10Percent < MaxTop10Pct
	MaxDevPct    decimal.Decimal // devPercent < MaxDevPct
}

// CheckResult represents pass/fail for one metric check.
type CheckResult struct {
	Metric    domain.MetricName
	Threshold string
	Actual    string // "n/a" when the metric is absent
	Pass      bool
}

// Result is the filter outcome. It is kept for diagnostics and logging only.
type Result struct {
	Passed         bool
	MissingMetrics []domain.MetricName
	Checks         []CheckResult
}

// IsMissing reports whether the metric was absent during evaluation.
func (r *Result) IsMissing(name domain.MetricName) bool {
	for _, m := range r.MissingMetrics {
		if m == name {
			return true
		}
	}
	return false
}

// FailedChecks returns the checks that did not pass.
func (r *Result) FailedChecks() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if !c.Pass {
			out = append(out, c)
		}
	}
	return out
}

// OnlyMissing reports whether every failed check failed because its metric
// was absent, i.e. no present metric violated a threshold.
func (r *Result) OnlyMissing() bool {
	if r.Passed || len(r.MissingMetrics) == 0 {
		return false
	}
	for _, c := range r.FailedChecks() {
		if !r.IsMissing(c.Metric) {
			return false
		}
	}
	return true
}
