package config

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: BIOJET_LOG__LEVEL sets log.level.
const EnvPrefix = "BIOJET_"

// Category names, in the order the daily job runs them.
const (
	Feedstock  = "feedstock"
	Regulatory = "regulatory"
	Capital    = "capital"
	Technology = "technology"
	Market     = "market"
	Community  = "community"
)

var CategoryNames = []string{Feedstock, Regulatory, Capital, Technology, Market, Community}

// Range is an inclusive integer interval.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// Stream is one bounded store inside a category, plus the mock ranges used
// to fill it.
type Stream struct {
	Name       string `yaml:"name"`
	File       string `yaml:"file"`
	MaxRecords int    `yaml:"max_records"`
	Count      Range  `yaml:"count"`
	AgeDays    Range  `yaml:"age_days"`
	AgeHours   Range  `yaml:"age_hours"`
	Score      Range  `yaml:"score"`
	Value      Range  `yaml:"value"`
}

type Category struct {
	Title                       string   `yaml:"title"`
	Keywords                    []string `yaml:"keywords"`
	ConventionalJetUSDPerGallon float64  `yaml:"conventional_jet_usd_per_gallon"`
	Streams                     []Stream `yaml:"streams"`
}

// Stream looks up a stream by name.
func (c Category) Stream(name string) (Stream, bool) {
	for _, s := range c.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return Stream{}, false
}

// Source is one external data source from the registry.
type Source struct {
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`
	Type         string `yaml:"type"` // rss, atom, api, html, pdf
	URL          string `yaml:"url"`
	APIURL       string `yaml:"api_url"`
	FeedURL      string `yaml:"feed_url"`
	Frequency    string `yaml:"frequency"`
	Access       string `yaml:"access"`
	Reliability  string `yaml:"reliability"`
	AuthRequired bool   `yaml:"auth_required"`
	Enabled      bool   `yaml:"enabled"`
	Notes        string `yaml:"notes"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	TextfileDir string `yaml:"textfile_dir"`
}

type RunlogConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"`
}

type Config struct {
	DataDir    string              `yaml:"data_dir"`
	Log        LogConfig           `yaml:"log"`
	Metrics    MetricsConfig       `yaml:"metrics"`
	Runlog     RunlogConfig        `yaml:"runlog"`
	Categories map[string]Category `yaml:"categories"`
	Sources    []Source            `yaml:"sources"`
}

// Category returns the named category.
func (c *Config) Category(name string) (Category, error) {
	cat, ok := c.Categories[name]
	if !ok {
		return Category{}, fmt.Errorf("unknown category %q (valid: %s)", name, strings.Join(CategoryNames, ", "))
	}
	return cat, nil
}

// StorePath is where a stream's JSON array lives.
func (c *Config) StorePath(s Stream) string {
	return filepath.Join(c.DataDir, s.File)
}

func (c *Config) RetentionDuration() time.Duration {
	if c.Runlog.Retention == "" {
		return 90 * 24 * time.Hour
	}
	d, err := ParseDuration(c.Runlog.Retention)
	if err != nil {
		return 90 * 24 * time.Hour
	}
	return d
}

// RunlogPath resolves the run ledger location.
func (c *Config) RunlogPath() string {
	if c.Runlog.Path != "" {
		return c.Runlog.Path
	}
	return filepath.Join(xdg.StateHome, "biojet", "runs.db")
}

// SourcesFor returns every registry entry of a category.
func (c *Config) SourcesFor(category string) []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

// FreeAPISources returns public sources with an API endpoint.
func (c *Config) FreeAPISources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.APIURL != "" && s.Access == "public" {
			out = append(out, s)
		}
	}
	return out
}

// RSSSources returns sources that publish a feed.
func (c *Config) RSSSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.FeedURL != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnabledFeeds returns enabled rss/atom sources of a category; an empty
// category selects all of them.
func (c *Config) EnabledFeeds(category string) []Source {
	var out []Source
	for _, s := range c.Sources {
		if !s.Enabled || s.FeedURL == "" {
			continue
		}
		if s.Type != "rss" && s.Type != "atom" {
			continue
		}
		if category != "" && s.Category != category {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ParseDuration accepts time.ParseDuration syntax plus whole days ("30d").
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "biojet", "config.yaml")
}

func defaultBytes() ([]byte, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	return data, nil
}

func loadDefaults() (*Config, error) {
	data, err := defaultBytes()
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return unmarshal(k)
}

// Load layers the embedded defaults, the YAML file at path and BIOJET_*
// environment variables, in increasing precedence. A missing file is
// created from the defaults on a best-effort basis.
func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}
	data, _ := defaultBytes()

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	userData, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(userData), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Non-fatal: the embedded defaults are enough to run.
		_ = writeDefaults(path)
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return nil, err
	}
	mergeDefaultSources(cfg, defaults)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// mergeDefaultSources keeps user-only sources, refreshes the location of
// sources the defaults also know, and appends sources new in the defaults.
func mergeDefaultSources(cfg, defaults *Config) {
	index := make(map[string]int, len(cfg.Sources))
	for i, s := range cfg.Sources {
		index[s.Name] = i
	}
	for _, d := range defaults.Sources {
		i, ok := index[d.Name]
		if !ok {
			cfg.Sources = append(cfg.Sources, d)
			continue
		}
		cfg.Sources[i].URL = d.URL
		cfg.Sources[i].Type = d.Type
		if d.FeedURL != "" {
			cfg.Sources[i].FeedURL = d.FeedURL
		}
		if d.APIURL != "" {
			cfg.Sources[i].APIURL = d.APIURL
		}
	}
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := defaultBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q (valid: debug, info, warn, error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q (valid: json, console)", cfg.Log.Format)
	}
	if cfg.DataDir == "" {
		return errors.New("data_dir is required")
	}

	if err := validateCategories(cfg.Categories); err != nil {
		return err
	}
	return validateSources(cfg.Sources)
}

func validateCategories(cats map[string]Category) error {
	for name := range cats {
		if !isCategory(name) {
			return fmt.Errorf("unknown category %q (valid: %s)", name, strings.Join(CategoryNames, ", "))
		}
	}

	files := map[string]string{}
	for _, name := range CategoryNames {
		cat, ok := cats[name]
		if !ok {
			return fmt.Errorf("category %q is missing", name)
		}
		if len(cat.Streams) == 0 {
			return fmt.Errorf("category %q: at least one stream is required", name)
		}
		seen := map[string]bool{}
		for _, s := range cat.Streams {
			where := fmt.Sprintf("category %q stream %q", name, s.Name)
			if s.Name == "" {
				return fmt.Errorf("category %q: stream name is required", name)
			}
			if seen[s.Name] {
				return fmt.Errorf("%s: duplicate stream", where)
			}
			seen[s.Name] = true

			if err := validateFileName(s.File); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
			if other, dup := files[s.File]; dup {
				return fmt.Errorf("%s: file %q already used by %s", where, s.File, other)
			}
			files[s.File] = name + "/" + s.Name

			if s.MaxRecords <= 0 {
				return fmt.Errorf("%s: max_records must be positive", where)
			}
			for field, r := range map[string]Range{
				"count": s.Count, "age_days": s.AgeDays, "age_hours": s.AgeHours,
				"score": s.Score, "value": s.Value,
			} {
				if r.Min < 0 || r.Min > r.Max {
					return fmt.Errorf("%s: %s range [%d, %d] is invalid", where, field, r.Min, r.Max)
				}
			}
			if s.Count.Min == 0 && !s.Count.IsZero() {
				return fmt.Errorf("%s: count range [0, %d] can yield an empty batch", where, s.Count.Max)
			}
		}
	}
	return nil
}

// validateFileName allows bare file names only, so a store can never be
// written outside data_dir.
func validateFileName(name string) error {
	if name == "" {
		return errors.New("file is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`+"\x00") || filepath.Clean(name) != name {
		return fmt.Errorf("file %q must be a bare file name", name)
	}
	return nil
}

func validateSources(sources []Source) error {
	validTypes := map[string]bool{"rss": true, "atom": true, "api": true, "html": true, "pdf": true}
	for i, s := range sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
		if !validTypes[s.Type] {
			return fmt.Errorf("source %q: unknown type %q (valid: rss, atom, api, html, pdf)", s.Name, s.Type)
		}
		if s.Category != "" && !isCategory(s.Category) {
			return fmt.Errorf("source %q: unknown category %q", s.Name, s.Category)
		}
		for _, raw := range []string{s.URL, s.APIURL, s.FeedURL} {
			if raw == "" {
				continue
			}
			if err := validateHTTPURL(raw); err != nil {
				return fmt.Errorf("source %q: %w", s.Name, err)
			}
		}
		if (s.Type == "rss" || s.Type == "atom") && s.FeedURL == "" {
			return fmt.Errorf("source %q: feed_url is required for type %s", s.Name, s.Type)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

func isCategory(name string) bool {
	for _, c := range CategoryNames {
		if c == name {
			return true
		}
	}
	return false
}
