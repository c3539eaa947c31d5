package feed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/record"
)

// ErrSourceUnavailable means a live source could not be fetched or parsed.
// Callers never substitute mock data for it.
var ErrSourceUnavailable = errors.New("source unavailable")

const (
	maxItems  = 20
	userAgent = "SAF-HUB-Bot/1.0 (Biojet Intelligence Platform)"
)

// RSSSource turns a feed's keyword-matching items into live records.
type RSSSource struct {
	Name     string
	URL      string
	Keywords []string

	parser *gofeed.Parser
	now    func() time.Time
}

func NewRSSSource(name, url string, keywords []string) *RSSSource {
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	return &RSSSource{Name: name, URL: url, Keywords: keywords, parser: p, now: time.Now}
}

// Sources builds an RSSSource for every enabled feed of a category, matched
// against that category's keywords. An empty category selects all feeds.
func Sources(cfg *config.Config, category string) []*RSSSource {
	var out []*RSSSource
	for _, s := range cfg.EnabledFeeds(category) {
		cat := cfg.Categories[s.Category]
		out = append(out, NewRSSSource(s.Name, s.FeedURL, cat.Keywords))
	}
	return out
}

// Generate fetches the feed and keeps the first maxItems items, emitting a
// record for each item whose title or description mentions a keyword.
func (s *RSSSource) Generate(ctx context.Context) ([]record.Record, error) {
	f, err := s.parser.ParseURLWithContext(s.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, s.Name, err)
	}

	now := s.now().UTC()
	items := f.Items
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	out := []record.Record{}
	for _, item := range items {
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		desc = stripHTML(desc)

		matched := Match(s.Keywords, item.Title, desc)
		if len(matched) == 0 {
			continue
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = "Untitled"
		}
		link := strings.TrimSpace(item.Link)

		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		out = append(out, record.New(now, record.Live, map[string]any{
			"id":               recordID(link, title),
			"source":           s.Name,
			"title":            title,
			"url":              link,
			"summary":          truncate(desc, 300),
			"keywords_matched": matched,
			"pub_date":         item.Published,
			"signal_score":     Score(Input{Title: title, Description: desc, Published: published}, s.Keywords, now),
		}))
	}
	return out, nil
}

func recordID(link, title string) string {
	key := link
	if key == "" {
		key = title
	}
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h[:16])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

type ScanResult struct {
	Records []record.Record
	Errors  []error
}

// ScanAll fetches every source concurrently. Records keep source order; a
// failing source contributes an error and no records.
func ScanAll(ctx context.Context, sources []*RSSSource) ScanResult {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		perSrc = make([][]record.Record, len(sources))
		result ScanResult
	)

	for i, src := range sources {
		wg.Add(1)
		go func(i int, s *RSSSource) {
			defer wg.Done()
			records, err := s.Generate(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, err)
				return
			}
			perSrc[i] = records
		}(i, src)
	}

	wg.Wait()
	result.Records = []record.Record{}
	for _, records := range perSrc {
		result.Records = append(result.Records, records...)
	}
	return result
}
