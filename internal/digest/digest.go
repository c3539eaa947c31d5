// Package digest summarises the on-disk state of every category stream.
package digest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/record"
	"github.com/eteka/biojet-intel-node/internal/store"
)

type Freshness string

const (
	Fresh     Freshness = "Fresh"
	Stale     Freshness = "Stale"
	Old       Freshness = "Old"
	Empty     Freshness = "Empty"
	Malformed Freshness = "Malformed"
)

const (
	freshWithin = 36 * time.Hour
	staleWithin = 7 * 24 * time.Hour
)

// StreamStatus is the digest line of one stream.
type StreamStatus struct {
	Category   string              `json:"category"`
	Title      string              `json:"title"`
	Stream     string              `json:"stream"`
	File       string              `json:"file"`
	Count      int                 `json:"count"`
	Max        int                 `json:"max_records"`
	Newest     *time.Time          `json:"newest,omitempty"`
	Oldest     *time.Time          `json:"oldest,omitempty"`
	Modes      map[record.Mode]int `json:"modes"`
	Freshness  Freshness           `json:"freshness"`
	TopSources string              `json:"top_sources,omitempty"`
	Themes     []string            `json:"themes,omitempty"`
	LastRun    *time.Time          `json:"last_run,omitempty"`
	Error      string              `json:"error,omitempty"`
}

type Report struct {
	DateLabel   string         `json:"date_label"`
	GeneratedAt time.Time      `json:"generated_at"`
	Streams     []StreamStatus `json:"streams"`
}

// LastRunFunc looks up when a category last ran successfully.
type LastRunFunc func(category string) (time.Time, bool)

// Build reads every configured stream strictly, in category order.
// lastRun may be nil.
func Build(cfg *config.Config, lastRun LastRunFunc, now time.Time) Report {
	r := Report{
		DateLabel:   now.Format("Jan 2"),
		GeneratedAt: now.UTC(),
		Streams:     []StreamStatus{},
	}
	for _, name := range config.CategoryNames {
		cat, ok := cfg.Categories[name]
		if !ok {
			continue
		}
		var last *time.Time
		if lastRun != nil {
			if t, ok := lastRun(name); ok {
				last = &t
			}
		}
		for _, s := range cat.Streams {
			st := inspect(cfg.StorePath(s), s.MaxRecords, now)
			st.Category = name
			st.Title = cat.Title
			st.Stream = s.Name
			st.LastRun = last
			r.Streams = append(r.Streams, st)
		}
	}
	return r
}

func inspect(path string, max int, now time.Time) StreamStatus {
	st := StreamStatus{File: path, Max: max, Modes: map[record.Mode]int{}}

	s, err := store.New(path, max, nil)
	if err != nil {
		st.Freshness = Malformed
		st.Error = err.Error()
		return st
	}
	records, err := s.Read()
	if err != nil {
		st.Freshness = Malformed
		if !errors.Is(err, store.ErrMalformed) {
			st.Error = err.Error()
		} else {
			st.Error = "not a JSON array of records"
		}
		return st
	}

	st.Count = len(records)
	if len(records) == 0 {
		st.Freshness = Empty
		return st
	}

	newest, oldest := records[0].Timestamp, records[0].Timestamp
	for _, rec := range records {
		st.Modes[rec.Mode]++
		if rec.Timestamp.After(newest) {
			newest = rec.Timestamp
		}
		if rec.Timestamp.Before(oldest) {
			oldest = rec.Timestamp
		}
	}
	st.Newest = &newest
	st.Oldest = &oldest
	st.Freshness = Classify(len(records), newest, now)
	st.TopSources = topSources(records)
	st.Themes = themes(records)
	return st
}

// Classify labels a stream by the age of its newest record.
func Classify(count int, newest, now time.Time) Freshness {
	if count == 0 {
		return Empty
	}
	age := now.Sub(newest)
	switch {
	case age <= freshWithin:
		return Fresh
	case age <= staleWithin:
		return Stale
	default:
		return Old
	}
}

// JSON renders the report for machines.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// recent is how many of the newest records count as "new" for themes.
const recent = 10

// topSources lists the three most frequent values of a provenance field.
func topSources(records []record.Record) string {
	counts := map[string]int{}
	for _, rec := range records {
		for _, key := range []string{"source", "airline", "airport"} {
			if v, ok := rec.Fields[key].(string); ok && v != "" {
				counts[v]++
				break
			}
		}
	}

	type sc struct {
		name  string
		count int
	}
	var sorted []sc
	for name, count := range counts {
		sorted = append(sorted, sc{name, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})

	limit := 3
	if len(sorted) < limit {
		limit = len(sorted)
	}
	parts := make([]string, limit)
	for i := 0; i < limit; i++ {
		parts[i] = fmt.Sprintf("%s (%d)", sorted[i].name, sorted[i].count)
	}
	return strings.Join(parts, ", ")
}

// themes picks title terms that recur in the newest records and are rare in
// the stream overall (TF-IDF). records must be newest first.
func themes(records []record.Record) []string {
	df := map[string]int{}
	for _, rec := range records {
		seen := map[string]bool{}
		for _, w := range tokenize(title(rec)) {
			if !seen[w] {
				df[w]++
				seen[w] = true
			}
		}
	}

	n := recent
	if len(records) < n {
		n = len(records)
	}
	tf := map[string]int{}
	for _, rec := range records[:n] {
		for _, w := range tokenize(title(rec)) {
			tf[w]++
		}
	}

	type scored struct {
		term  string
		score float64
	}
	var terms []scored
	for term, freq := range tf {
		if freq < 2 {
			continue
		}
		// +1 keeps terms present in every record from scoring zero.
		idf := math.Log(float64(len(records)+1) / float64(df[term]))
		terms = append(terms, scored{term, float64(freq) * idf})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].score != terms[j].score {
			return terms[i].score > terms[j].score
		}
		return terms[i].term < terms[j].term
	})

	limit := 3
	if len(terms) < limit {
		limit = len(terms)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = terms[i].term
	}
	return out
}

func title(rec record.Record) string {
	s, _ := rec.Fields["title"].(string)
	return s
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "this": true,
	"that": true, "into": true, "over": true, "about": true, "after": true, "their": true,
	"new": true, "announces": true, "signs": true, "update": true, "updated": true,
}

func tokenize(s string) []string {
	var tokens []string
	for _, word := range strings.Fields(strings.ToLower(s)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 3 || stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
