// Package generate produces fresh records for each category stream.
//
// Mock generators sample the embedded catalog with a caller-supplied
// random source and clock, so a seeded run is reproducible. Count, age and
// score ranges come from the stream's config entry.
package generate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/record"
)

// Generator produces the new records of one run.
type Generator interface {
	Generate(ctx context.Context) ([]record.Record, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context) ([]record.Record, error)

func (f GeneratorFunc) Generate(ctx context.Context) ([]record.Record, error) { return f(ctx) }

// DetailsFunc derives a run's non-persisted extras from what was generated,
// keyed by stream name.
type DetailsFunc func(generated map[string][]record.Record) map[string]any

type buildFunc func(m *Mock, now time.Time) []record.Record

// Mock generates mode=mock records for one stream.
type Mock struct {
	stream  config.Stream
	catalog *Catalog
	rng     *rand.Rand
	now     func() time.Time
	build   buildFunc
}

func builderFor(category, stream string) (buildFunc, bool) {
	switch category + "/" + stream {
	case config.Feedstock + "/prices":
		return buildPrices, true
	case config.Regulatory + "/alerts":
		return buildAlerts, true
	case config.Capital + "/signals":
		return buildFunding, true
	case config.Technology + "/updates":
		return buildTechUpdates, true
	case config.Market + "/airline_signals":
		return buildAirlineSignals, true
	case config.Market + "/airport_updates":
		return buildAirportUpdates, true
	case config.Community + "/signals":
		return buildCommunitySignals, true
	case config.Community + "/editorials":
		return buildEditorials, true
	}
	return nil, false
}

// NewMock returns the mock generator for a category stream. now defaults to
// time.Now.
func NewMock(category string, s config.Stream, c *Catalog, rng *rand.Rand, now func() time.Time) (*Mock, error) {
	build, ok := builderFor(category, s.Name)
	if !ok {
		return nil, fmt.Errorf("no mock generator for %s/%s", category, s.Name)
	}
	if c == nil || rng == nil {
		return nil, fmt.Errorf("mock %s/%s: catalog and random source are required", category, s.Name)
	}
	if now == nil {
		now = time.Now
	}
	return &Mock{stream: s, catalog: c, rng: rng, now: now, build: build}, nil
}

func (m *Mock) Generate(ctx context.Context) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.build(m, m.now().UTC()), nil
}

// ForCategory builds a mock generator for every stream of a category, plus
// the details hook for categories that report one.
func ForCategory(name string, cat config.Category, c *Catalog, rng *rand.Rand, now func() time.Time) (map[string]Generator, DetailsFunc, error) {
	gens := make(map[string]Generator, len(cat.Streams))
	for _, s := range cat.Streams {
		g, err := NewMock(name, s, c, rng, now)
		if err != nil {
			return nil, nil, err
		}
		gens[s.Name] = g
	}

	var details DetailsFunc
	switch name {
	case config.Technology:
		conventional := cat.ConventionalJetUSDPerGallon
		details = func(map[string][]record.Record) map[string]any {
			return map[string]any{"pathway_economics": PathwaySnapshot(c, conventional, rng)}
		}
	case config.Community:
		details = func(generated map[string][]record.Record) map[string]any {
			return map[string]any{"sentiment_summary": SentimentSummary(generated["signals"], rng)}
		}
	}
	return gens, details, nil
}

// between draws uniformly from the inclusive range.
func (m *Mock) between(r config.Range) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + m.rng.IntN(r.Max-r.Min+1)
}

func (m *Mock) age(now time.Time) time.Time {
	days := m.between(m.stream.AgeDays)
	hours := m.between(m.stream.AgeHours)
	return now.Add(-time.Duration(days)*24*time.Hour - time.Duration(hours)*time.Hour)
}

// pick returns the indexes of up to n distinct templates out of total.
func (m *Mock) pick(n, total int) []int {
	if n > total {
		n = total
	}
	if n < 0 {
		n = 0
	}
	return m.rng.Perm(total)[:n]
}

// count resolves how many records to draw; an unset count takes every
// template.
func (m *Mock) count(total int) int {
	if m.stream.Count.IsZero() {
		return total
	}
	return m.between(m.stream.Count)
}

func buildPrices(m *Mock, now time.Time) []record.Record {
	n := m.count(1)
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"commodity":       m.catalog.Feedstock.Commodity,
			"currency":        m.catalog.Feedstock.Currency,
			"price_per_tonne": m.between(m.stream.Value),
		}))
	}
	return out
}

func buildAlerts(m *Mock, now time.Time) []record.Record {
	all := m.catalog.RegulatoryAlerts
	var out []record.Record
	for _, i := range m.pick(m.count(len(all)), len(all)) {
		a := all[i]
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"source":           a.Source,
			"title":            a.Title,
			"url":              a.URL,
			"keywords_matched": a.KeywordsMatched,
		}))
	}
	return out
}

func buildFunding(m *Mock, now time.Time) []record.Record {
	all := m.catalog.CapitalSignals
	var out []record.Record
	for _, i := range m.pick(m.count(len(all)), len(all)) {
		f := all[i]
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"source":          f.Source,
			"title":           f.Title,
			"amount_usd":      f.AmountUSD,
			"funding_type":    f.FundingType,
			"url":             f.URL,
			"deadline":        f.Deadline,
			"eligibility":     f.Eligibility,
			"focus_areas":     f.FocusAreas,
			"relevance_score": m.between(m.stream.Score),
		}))
	}
	return out
}

func buildTechUpdates(m *Mock, now time.Time) []record.Record {
	all := m.catalog.TechnologyUpdates
	var out []record.Record
	for _, i := range m.pick(m.count(len(all)), len(all)) {
		u := all[i]
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"source":       u.Source,
			"title":        u.Title,
			"pathway":      u.Pathway,
			"pathway_full": m.catalog.PathwayName(u.Pathway),
			"update_type":  u.UpdateType,
			"url":          u.URL,
			"significance": u.Significance,
			"impact_score": u.ImpactScore,
		}))
	}
	return out
}

func buildAirlineSignals(m *Mock, now time.Time) []record.Record {
	all := m.catalog.AirlineSignals
	var out []record.Record
	for _, i := range m.pick(m.count(len(all)), len(all)) {
		s := all[i]
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"airline":              s.Airline,
			"region":               s.Region,
			"signal_type":          s.SignalType,
			"title":                s.Title,
			"volume_tonnes_annual": s.VolumeTonnes,
			"timeframe":            s.Timeframe,
			"url":                  s.URL,
			"relevance":            s.Relevance,
			"confidence_score":     m.between(m.stream.Score),
		}))
	}
	return out
}

func buildAirportUpdates(m *Mock, now time.Time) []record.Record {
	all := m.catalog.AirportUpdates
	var out []record.Record
	for _, i := range m.pick(m.count(len(all)), len(all)) {
		a := all[i]
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"airport":     a.Airport,
			"country":     a.Country,
			"update_type": a.UpdateType,
			"title":       a.Title,
			"status":      a.Status,
		}))
	}
	return out
}

func buildCommunitySignals(m *Mock, now time.Time) []record.Record {
	all := m.catalog.CommunitySignals
	var out []record.Record
	for _, i := range m.pick(m.count(len(all)), len(all)) {
		s := all[i]
		score, _ := m.catalog.SentimentScore(s.Sentiment)
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"source":           s.Source,
			"signal_type":      s.SignalType,
			"title":            s.Title,
			"sentiment":        s.Sentiment,
			"sentiment_score":  score,
			"region":           s.Region,
			"stakeholder_type": s.StakeholderType,
			"key_insight":      s.KeyInsight,
		}))
	}
	return out
}

func buildEditorials(m *Mock, now time.Time) []record.Record {
	all := m.catalog.Editorials
	meta := m.catalog.Editorial
	n := m.count(1)
	out := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		t := all[m.rng.IntN(len(all))]
		out = append(out, record.New(m.age(now), record.Mock, map[string]any{
			"title":                    t.Title,
			"theme":                    t.Theme,
			"hook":                     t.Hook,
			"key_points":               t.KeyPoints,
			"developing_country_angle": t.DevelopingCountryAngle,
			"call_to_action":           t.CallToAction,
			"estimated_word_count":     m.between(m.stream.Value),
			"target_audience":          meta.TargetAudience,
			"geographic_focus":         meta.GeographicFocus,
			"author":                   meta.Author,
			"status":                   "draft",
		}))
	}
	return out
}
