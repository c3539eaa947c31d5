package generate

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/eteka/biojet-intel-node/internal/record"
)

// PathwayEconomics is the current cost picture of one production pathway.
type PathwayEconomics struct {
	Name             string  `json:"name"`
	CostPerGallonUSD float64 `json:"cost_per_gallon_usd"`
	CostRange        string  `json:"cost_range"`
	Trend            string  `json:"trend"`
	JetFuelParityGap float64 `json:"jet_fuel_parity_gap"`
}

// PathwaySnapshot draws a cost per pathway from its catalog band and
// compares it with the conventional jet fuel price.
func PathwaySnapshot(c *Catalog, conventionalUSD float64, rng *rand.Rand) map[string]PathwayEconomics {
	out := make(map[string]PathwayEconomics, len(c.PathwayEconomics))
	for _, p := range c.PathwayEconomics {
		cost := round2(p.Min + rng.Float64()*(p.Max-p.Min))
		out[p.Pathway] = PathwayEconomics{
			Name:             c.PathwayName(p.Pathway),
			CostPerGallonUSD: cost,
			CostRange:        fmt.Sprintf("$%.2f - $%.2f", p.Min, p.Max),
			Trend:            p.Trend,
			JetFuelParityGap: round2(cost - conventionalUSD),
		}
	}
	return out
}

// Sentiment summarises community signals.
type Sentiment struct {
	Overall     string `json:"overall"`
	Score       int    `json:"score"`
	SignalCount int    `json:"signal_count"`
	Trend       string `json:"trend"`
}

var trends = []string{"improving", "stable", "declining"}

// SentimentSummary averages sentiment_score over signals. Signals without
// a score count as 50.
func SentimentSummary(signals []record.Record, rng *rand.Rand) Sentiment {
	if len(signals) == 0 {
		return Sentiment{Overall: "Neutral", Score: 50, Trend: "stable"}
	}

	var total float64
	for _, s := range signals {
		v, ok := s.Get("sentiment_score")
		if !ok {
			total += 50
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			f = 50
		}
		total += f
	}
	avg := total / float64(len(signals))

	var overall string
	switch {
	case avg >= 75:
		overall = "Very Positive"
	case avg >= 50:
		overall = "Positive"
	case avg >= 25:
		overall = "Neutral"
	default:
		overall = "Concerned"
	}

	return Sentiment{
		Overall:     overall,
		Score:       int(math.RoundToEven(avg)),
		SignalCount: len(signals),
		Trend:       trends[rng.IntN(len(trends))],
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// toFloat accepts the numeric shapes a field can hold, fresh or decoded.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
