package generate

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type FeedstockInfo struct {
	Commodity string `yaml:"commodity"`
	Currency  string `yaml:"currency"`
}

type Alert struct {
	Source          string   `yaml:"source"`
	Title           string   `yaml:"title"`
	URL             string   `yaml:"url"`
	KeywordsMatched []string `yaml:"keywords_matched"`
}

type FundingCall struct {
	Source      string   `yaml:"source"`
	Title       string   `yaml:"title"`
	AmountUSD   int64    `yaml:"amount_usd"`
	FundingType string   `yaml:"funding_type"`
	URL         string   `yaml:"url"`
	Deadline    string   `yaml:"deadline"`
	Eligibility []string `yaml:"eligibility"`
	FocusAreas  []string `yaml:"focus_areas"`
}

// PathwayCost is the cost band of one production pathway in USD per gallon.
type PathwayCost struct {
	Pathway string  `yaml:"pathway"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Trend   string  `yaml:"trend"`
}

type TechUpdate struct {
	Source       string `yaml:"source"`
	Title        string `yaml:"title"`
	Pathway      string `yaml:"pathway"`
	UpdateType   string `yaml:"update_type"`
	URL          string `yaml:"url"`
	Significance string `yaml:"significance"`
	ImpactScore  int    `yaml:"impact_score"`
}

type AirlineSignal struct {
	Airline      string `yaml:"airline"`
	Region       string `yaml:"region"`
	SignalType   string `yaml:"signal_type"`
	Title        string `yaml:"title"`
	VolumeTonnes int    `yaml:"volume_tonnes"`
	Timeframe    string `yaml:"timeframe"`
	URL          string `yaml:"url"`
	Relevance    string `yaml:"relevance"`
}

type AirportUpdate struct {
	Airport    string `yaml:"airport"`
	Country    string `yaml:"country"`
	UpdateType string `yaml:"update_type"`
	Title      string `yaml:"title"`
	Status     string `yaml:"status"`
}

type CommunitySignal struct {
	Source          string `yaml:"source"`
	SignalType      string `yaml:"signal_type"`
	Title           string `yaml:"title"`
	Sentiment       string `yaml:"sentiment"`
	Region          string `yaml:"region"`
	StakeholderType string `yaml:"stakeholder_type"`
	KeyInsight      string `yaml:"key_insight"`
}

type EditorialMeta struct {
	TargetAudience  string `yaml:"target_audience"`
	GeographicFocus string `yaml:"geographic_focus"`
	Author          string `yaml:"author"`
}

type EditorialTemplate struct {
	Theme                  string   `yaml:"theme"`
	Title                  string   `yaml:"title"`
	Hook                   string   `yaml:"hook"`
	KeyPoints              []string `yaml:"key_points"`
	DevelopingCountryAngle string   `yaml:"developing_country_angle"`
	CallToAction           string   `yaml:"call_to_action"`
}

// Catalog holds the templates mock generators draw from.
type Catalog struct {
	Feedstock         FeedstockInfo       `yaml:"feedstock"`
	RegulatoryAlerts  []Alert             `yaml:"regulatory_alerts"`
	CapitalSignals    []FundingCall       `yaml:"capital_signals"`
	Pathways          map[string]string   `yaml:"pathways"`
	PathwayEconomics  []PathwayCost       `yaml:"pathway_economics"`
	TechnologyUpdates []TechUpdate        `yaml:"technology_updates"`
	AirlineSignals    []AirlineSignal     `yaml:"airline_signals"`
	AirportUpdates    []AirportUpdate     `yaml:"airport_updates"`
	SentimentLevels   []string            `yaml:"sentiment_levels"`
	CommunitySignals  []CommunitySignal   `yaml:"community_signals"`
	Editorial         EditorialMeta       `yaml:"editorial"`
	Editorials        []EditorialTemplate `yaml:"editorials"`
}

// DefaultCatalog decodes the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog decodes and checks a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &c, nil
}

// SentimentScore maps a sentiment level onto 0..100 in steps of 25.
func (c *Catalog) SentimentScore(level string) (int, bool) {
	for i, l := range c.SentimentLevels {
		if l == level {
			return i * 25, true
		}
	}
	return 0, false
}

// PathwayName expands a pathway code, falling back to the code itself.
func (c *Catalog) PathwayName(code string) string {
	if name, ok := c.Pathways[code]; ok {
		return name
	}
	return code
}

func (c *Catalog) validate() error {
	if c.Feedstock.Commodity == "" || c.Feedstock.Currency == "" {
		return errors.New("feedstock commodity and currency are required")
	}
	for name, n := range map[string]int{
		"regulatory_alerts":  len(c.RegulatoryAlerts),
		"capital_signals":    len(c.CapitalSignals),
		"pathway_economics":  len(c.PathwayEconomics),
		"technology_updates": len(c.TechnologyUpdates),
		"airline_signals":    len(c.AirlineSignals),
		"airport_updates":    len(c.AirportUpdates),
		"sentiment_levels":   len(c.SentimentLevels),
		"community_signals":  len(c.CommunitySignals),
		"editorials":         len(c.Editorials),
	} {
		if n == 0 {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	for _, p := range c.PathwayEconomics {
		if p.Min > p.Max {
			return fmt.Errorf("pathway %s: min %.2f exceeds max %.2f", p.Pathway, p.Min, p.Max)
		}
		if _, ok := c.Pathways[p.Pathway]; !ok {
			return fmt.Errorf("pathway %s has economics but no name", p.Pathway)
		}
	}
	for _, s := range c.CommunitySignals {
		if _, ok := c.SentimentScore(s.Sentiment); !ok {
			return fmt.Errorf("community signal %q: unknown sentiment %q", s.Title, s.Sentiment)
		}
	}
	return nil
}
