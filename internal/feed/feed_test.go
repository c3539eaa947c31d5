package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/record"
)

var scanNow = time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)

func rssDoc(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title><link>https://example.com</link><description>t</description>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rssItem(title, link, desc, pub string) string {
	return fmt.Sprintf(`<item><title>%s</title><link>%s</link><description><![CDATA[%s]]></description><pubDate>%s</pubDate></item>`,
		title, link, desc, pub)
}

func feedServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent = %q, want %q", got, userAgent)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSource(url string) *RSSSource {
	s := NewRSSSource("EASA", url, []string{"SAF", "CORSIA", "ReFuelEU"})
	s.now = func() time.Time { return scanNow }
	return s
}

func TestGenerateMatchesKeywords(t *testing.T) {
	srv := feedServer(t, rssDoc(
		rssItem("New SAF blending guidance", "https://easa.example/1", "<p>Under <b>ReFuelEU</b> rules</p>", "Mon, 03 Feb 2025 08:00:00 GMT"),
		rssItem("Drone regulation update", "https://easa.example/2", "Nothing relevant", "Mon, 03 Feb 2025 07:00:00 GMT"),
		rssItem("  CORSIA review  ", "https://easa.example/3", "", ""),
	), http.StatusOK)

	records, err := testSource(srv.URL).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 matching records, got %d", len(records))
	}

	first := records[0]
	if first.Mode != record.Live {
		t.Errorf("mode = %q, want live", first.Mode)
	}
	if !first.Timestamp.Equal(scanNow) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, scanNow)
	}
	if first.Fields["source"] != "EASA" || first.Fields["url"] != "https://easa.example/1" {
		t.Errorf("unexpected fields: %v", first.Fields)
	}
	matched := first.Fields["keywords_matched"].([]string)
	if strings.Join(matched, ",") != "SAF,ReFuelEU" {
		t.Errorf("keywords_matched = %v", matched)
	}
	if first.Fields["pub_date"] != "Mon, 03 Feb 2025 08:00:00 GMT" {
		t.Errorf("pub_date = %v", first.Fields["pub_date"])
	}
	if first.Fields["summary"] != "Under ReFuelEU rules" {
		t.Errorf("summary = %q", first.Fields["summary"])
	}
	for _, r := range records {
		score, ok := r.Fields["signal_score"].(float64)
		if !ok || score < 0 || score > 1 {
			t.Errorf("signal_score = %v, want a float in [0,1]", r.Fields["signal_score"])
		}
	}

	if records[1].Fields["title"] != "CORSIA review" {
		t.Errorf("title should be trimmed, got %q", records[1].Fields["title"])
	}
}

func TestGenerateLimitsItems(t *testing.T) {
	var items []string
	for i := 0; i < 30; i++ {
		items = append(items, rssItem(fmt.Sprintf("SAF item %d", i), fmt.Sprintf("https://x.example/%d", i), "", ""))
	}
	srv := feedServer(t, rssDoc(items...), http.StatusOK)

	records, err := testSource(srv.URL).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(records) != maxItems {
		t.Errorf("expected %d records, got %d", maxItems, len(records))
	}
}

func TestGenerateNoMatchesIsEmptyNotNil(t *testing.T) {
	srv := feedServer(t, rssDoc(rssItem("Unrelated", "https://x.example/1", "", "")), http.StatusOK)
	records, err := testSource(srv.URL).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", records)
	}
}

func TestGenerateSourceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"server error", "oops", http.StatusInternalServerError},
		{"not a feed", "this is not xml", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := feedServer(t, tt.body, tt.status)
			_, err := testSource(srv.URL).Generate(context.Background())
			if !errors.Is(err, ErrSourceUnavailable) {
				t.Fatalf("expected ErrSourceUnavailable, got %v", err)
			}
			if !strings.Contains(err.Error(), "EASA") {
				t.Errorf("error should name the source: %v", err)
			}
		})
	}
}

func TestScanAllKeepsGoodSources(t *testing.T) {
	good := feedServer(t, rssDoc(rssItem("SAF news", "https://good.example/1", "", "")), http.StatusOK)
	bad := feedServer(t, "", http.StatusBadGateway)

	result := ScanAll(context.Background(), []*RSSSource{testSource(bad.URL), testSource(good.URL)})
	if len(result.Records) != 1 {
		t.Errorf("expected 1 record, got %d", len(result.Records))
	}
	if len(result.Errors) != 1 || !errors.Is(result.Errors[0], ErrSourceUnavailable) {
		t.Errorf("expected one ErrSourceUnavailable, got %v", result.Errors)
	}
}

func TestSourcesFromConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	all := Sources(cfg, "")
	if len(all) == 0 {
		t.Fatal("expected enabled feeds in the default config")
	}
	regulatory := Sources(cfg, config.Regulatory)
	for _, s := range regulatory {
		if len(s.Keywords) == 0 {
			t.Errorf("source %s has no keywords", s.Name)
		}
		if !strings.HasPrefix(s.URL, "https://") {
			t.Errorf("source %s feed url %q", s.Name, s.URL)
		}
	}
	if len(Sources(cfg, config.Technology)) != 0 {
		t.Error("technology has no enabled feeds")
	}
}

func TestRecordID(t *testing.T) {
	id1 := recordID("https://example.com/post-1", "a")
	id2 := recordID("https://example.com/post-2", "a")
	id1again := recordID("https://example.com/post-1", "b")

	if id1 == id2 {
		t.Error("different URLs should produce different IDs")
	}
	if id1 != id1again {
		t.Error("same URL should produce same ID")
	}
	if len(id1) != 32 {
		t.Errorf("expected 32-char hex string, got %d chars: %s", len(id1), id1)
	}
	if recordID("", "x") == recordID("", "y") {
		t.Error("items without a link should fall back to the title")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		n     int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		got := truncate(tt.input, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	input := "Ọ̀yọ́ cassava ìlú"
	got := truncate(input, 5)
	want := string([]rune(input)[:2]) + "..."
	if got != want {
		t.Errorf("truncate(%q, 5) = %q, want %q", input, got, want)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hello</p>", "Hello"},
		{"<b>Bold</b> and <i>italic</i>", "Bold and italic"},
		{"No tags here", "No tags here"},
		{"<div>  Multiple   spaces  </div>", "Multiple spaces"},
		{"", ""},
		{"<a href=\"url\">Link</a> text", "Link text"},
	}
	for _, tt := range tests {
		got := stripHTML(tt.input)
		if got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
