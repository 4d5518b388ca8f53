package domain

import (
	"github.com/shopspring/decimal"
)

// MetricName identifies one of the five required metrics.
type MetricName string

const (
	MetricMarketcap    MetricName = "marketcap"
	MetricHolders      MetricName = "holders"
	MetricTop10Percent MetricName = "top10Percent"
	MetricDevPercent   MetricName = "devPercent"
	MetricVolume24h    MetricName = "volume24h"
)

// AllMetrics lists the required metrics in evaluation order.
var AllMetrics = []MetricName{
	MetricMarketcap,
	MetricHolders,
	MetricTop10Percent,
	MetricDevPercent,
	MetricVolume24h,
}

// HolderDerived reports whether the metric is computed from a holder list.
func (m MetricName) HolderDerived() bool {
	return m == MetricTop10Percent || m == MetricDevPercent
}

// ResolvedMetrics is the metrics bundle built by the resolver.
// Absent values have Valid == false.
type ResolvedMetrics struct {
	Marketcap    decimal.NullDecimal
	Holders      decimal.NullDecimal
	Top10Percent decimal.NullDecimal
	DevPercent   decimal.NullDecimal
	Volume24h    decimal.NullDecimal
}

// Get returns the value for a metric.
func (m *ResolvedMetrics) Get(name MetricName) decimal.NullDecimal {
	switch name {
	case MetricMarketcap:
		return m.Marketcap
	case MetricHolders:
		return m.Holders
	case MetricTop10Percent:
		return m.Top10Percent
	case MetricDevPercent:
		return m.DevPercent
	case MetricVolume24h:
		return m.Volume24h
	}
	return decimal.NullDecimal{}
}

// Set stores a value for a metric.
func (m *ResolvedMetrics) Set(name MetricName, v decimal.NullDecimal) {
	switch name {
	case MetricMarketcap:
		m.Marketcap = v
	case MetricHolders:
		m.Holders = v
	case MetricTop10Percent:
		m.Top10Percent = v
	case MetricDevPercent:
		m.DevPercent = v
	case MetricVolume24h:
		m.Volume24h = v
	}
}

// Has reports whether a metric is present.
func (m *ResolvedMetrics) Has(name MetricName) bool {
	return m.Get(name).Valid
}

// Missing returns the metrics still absent, in evaluation order.
func (m *ResolvedMetrics) Missing() []MetricName {
	var out []MetricName
	for _, name := range AllMetrics {
		if !m.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Complete reports whether all metrics are present.
func (m *ResolvedMetrics) Complete() bool {
	return len(m.Missing()) == 0
}

// PartialMetrics is what a single provider returns: only the metrics it had.
type PartialMetrics map[MetricName]decimal.Decimal
