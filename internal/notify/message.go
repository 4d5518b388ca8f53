package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"token-sentinel/internal/domain"
)

// DefaultLinkTemplate points alerts at the DexScreener token page.
const DefaultLinkTemplate = "https://dexscreener.com/{chain}/{address}"

// Message is one alert, rendered once and handed to a sink.
type Message struct {
	Chain   string            `json:"chain"`
	Address string            `json:"address"`
	Creator string            `json:"creator,omitempty"`
	Name    string            `json:"name,omitempty"`
	Symbol  string            `json:"symbol,omitempty"`
	Metrics map[string]string `json:"metrics"`
	Link    string            `json:"link,omitempty"`
	Text    string            `json:"text"`
}

// Formatter renders alerts.
type Formatter struct {
	linkTemplate string
}

// NewFormatter creates a Formatter. An empty template disables links.
func NewFormatter(linkTemplate string) *Formatter {
	return &Formatter{linkTemplate: linkTemplate}
}

// Format builds the message for a token that passed the filter.
func (f *Formatter) Format(cand *domain.CandidateToken, m *domain.ResolvedMetrics) Message {
	msg := Message{
		Chain:   cand.Chain.String(),
		Address: cand.Address,
		Creator: cand.CreatorAddress,
		Name:    stringField(cand, domain.FieldName),
		Symbol:  stringField(cand, domain.FieldSymbol),
		Metrics: map[string]string{
			string(domain.MetricMarketcap):    fixed(m.Marketcap, 2),
			string(domain.MetricHolders):      fixed(m.Holders, 0),
			string(domain.MetricTop10Percent): fixed(m.Top10Percent, 2),
			string(domain.MetricDevPercent):   fixed(m.DevPercent, 2),
			string(domain.MetricVolume24h):    fixed(m.Volume24h, 2),
		},
	}
	if f.linkTemplate != "" {
		msg.Link = strings.NewReplacer(
			"{chain}", msg.Chain,
			"{address}", msg.Address,
		).Replace(f.linkTemplate)
	}

	var b strings.Builder
	b.WriteString("New token passed filters\n")
	if msg.Name != "" || msg.Symbol != "" {
		fmt.Fprintf(&b, "Token: %s", msg.Name)
		if msg.Symbol != "" {
			fmt.Fprintf(&b, " (%s)", msg.Symbol)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Chain: %s\n", msg.Chain)
	fmt.Fprintf(&b, "Address: %s\n", msg.Address)
	creator := msg.Creator
	if creator == "" {
		creator = "unknown"
	}
	fmt.Fprintf(&b, "Creator: %s\n", creator)
	fmt.Fprintf(&b, "Market cap: $%s\n", msg.Metrics[string(domain.MetricMarketcap)])
	fmt.Fprintf(&b, "Holders: %s\n", msg.Metrics[string(domain.MetricHolders)])
	fmt.Fprintf(&b, "Top 10 holders: %s%%\n", msg.Metrics[string(domain.MetricTop10Percent)])
	fmt.Fprintf(&b, "Dev holds: %s%%\n", msg.Metrics[string(domain.MetricDevPercent)])
	fmt.Fprintf(&b, "Volume 24h: $%s", msg.Metrics[string(domain.MetricVolume24h)])
	if msg.Link != "" {
		fmt.Fprintf(&b, "\n%s", msg.Link)
	}
	msg.Text = b.String()

	return msg
}

func fixed(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.StringFixed(places)
}

func stringField(cand *domain.CandidateToken, name string) string {
	v, ok := cand.Field(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
