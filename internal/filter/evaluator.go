// Package filter applies the conjunctive health predicate to resolved metrics.
package filter

import (
	"github.com/shopspring/decimal"

	"token-sentinel/internal/domain"
)

const notAvailable = "n/a"

// Evaluator evaluates the health thresholds.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates a new evaluator with the given thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t}
}

// Evaluate produces a Result from resolved metrics.
// PASS only if ALL five checks pass. An absent metric is a failed check,
// never a skip.
func (e *Evaluator) Evaluate(m domain.ResolvedMetrics) *Result {
	return Evaluate(m, e.thresholds)
}

// Evaluate is the stateless form of Evaluator.Evaluate.
func Evaluate(m domain.ResolvedMetrics, t Thresholds) *Result {
	checks := []CheckResult{
		check(domain.MetricMarketcap, m.Marketcap, ">= "+t.MinMarketcap.String(),
			func(v decimal.Decimal) bool { return v.GreaterThanOrEqual(t.MinMarketcap) }),
		check(domain.MetricHolders, m.Holders, ">= "+t.MinHolders.String(),
			func(v decimal.Decimal) bool { return v.GreaterThanOrEqual(t.MinHolders) }),
		check(domain.MetricTop10Percent, m.Top10Percent, "< "+t.MaxTop10Pct.String(),
			func(v decimal.Decimal) bool { return v.LessThan(t.MaxTop10Pct) }),
		check(domain.MetricDevPercent, m.DevPercent, "< "+t.MaxDevPct.String(),
			func(v decimal.Decimal) bool { return v.LessThan(t.MaxDevPct) }),
		// Strictly positive: a token with zero volume is not trading.
		check(domain.MetricVolume24h, m.Volume24h, "> 0",
			func(v decimal.Decimal) bool { return v.IsPositive() }),
	}

	result := &Result{Passed: true, Checks: checks}
	for _, c := range checks {
		if c.Actual == notAvailable {
			result.MissingMetrics = append(result.MissingMetrics, c.Metric)
		}
		if !c.Pass {
			result.Passed = false
		}
	}
	return result
}

func check(name domain.MetricName, v decimal.NullDecimal, threshold string, ok func(decimal.Decimal) bool) CheckResult {
	c := CheckResult{
		Metric:    name,
		Threshold: threshold,
		Actual:    notAvailable,
	}
	if !v.Valid {
		return c
	}
	c.Actual = v.Decimal.String()
	c.Pass = ok(v.Decimal)
	return c
}
