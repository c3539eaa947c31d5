package feed

import (
	"math"
	"strings"
	"time"
)

// Match returns the keywords found in title or description, in keyword
// order. Matching is a case-insensitive substring test, so "SAF" also hits
// "SAF-ready".
func Match(keywords []string, title, description string) []string {
	content := strings.ToLower(title + " " + description)
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// Input holds the data needed to score a feed item.
type Input struct {
	Title       string
	Description string
	Published   time.Time
}

const (
	weightRecency  = 0.5
	weightKeywords = 0.5
	// keywordSaturation is the number of distinct keyword hits that counts
	// as full coverage.
	keywordSaturation = 3
)

// Score rates a matched item from 0.0 to 1.0 by recency and keyword
// coverage, rounded to two decimals.
func Score(in Input, keywords []string, now time.Time) float64 {
	coverage := float64(len(Match(keywords, in.Title, in.Description))) / keywordSaturation
	if coverage > 1 {
		coverage = 1
	}
	raw := recencyScore(in.Published, now)*weightRecency + coverage*weightKeywords
	return math.Round(raw*100) / 100
}

// recencyScore halves every 72h; an unknown date scores 0.
func recencyScore(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	hours := now.Sub(published).Hours()
	if hours < 0 {
		hours = 0
	}
	// ln(0.5)/72
	return math.Exp(-0.009627 * hours)
}
