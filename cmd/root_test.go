package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/eteka/biojet-intel-node/internal/agent"
)

type env struct {
	config  string
	dataDir string
	ledger  string
}

func testEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		config:  filepath.Join(dir, "config.yaml"),
		dataDir: filepath.Join(dir, "data"),
		ledger:  filepath.Join(dir, "state", "runs.db"),
	}
	t.Setenv("BIOJET_DATA_DIR", e.dataDir)
	t.Setenv("BIOJET_RUNLOG__PATH", e.ledger)
	t.Setenv("BIOJET_LOG__LEVEL", "error")
	return e
}

// resetFlags restores every flag to its default; cobra keeps flag values
// between Execute calls on the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, e env, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

type summary struct {
	Category  string `json:"category"`
	Mode      string `json:"mode"`
	Written   int    `json:"written"`
	Evicted   int    `json:"evicted"`
	StoreSize int    `json:"store_size"`
	Streams   []struct {
		Stream string `json:"stream"`
	} `json:"streams"`
	Details map[string]json.RawMessage `json:"details"`
}

func TestVersion(t *testing.T) {
	e := testEnv(t)
	SetVersionInfo("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := execute(t, e, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "biojet 1.2.3 (commit: abc, built: today)") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestCategoryPrintsSummary(t *testing.T) {
	e := testEnv(t)

	out, err := execute(t, e, "feedstock")
	if err != nil {
		t.Fatalf("feedstock: %v", err)
	}
	var s summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("stdout is not a summary: %v\n%s", err, out)
	}
	if s.Category != "feedstock" || s.Mode != "mock" || s.Written != 1 || s.StoreSize != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if _, err := os.Stat(filepath.Join(e.dataDir, "prices.json")); err != nil {
		t.Errorf("store not written: %v", err)
	}

	out, err = execute(t, e, "feedstock")
	if err != nil {
		t.Fatalf("second feedstock: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if s.StoreSize != 2 {
		t.Errorf("expected store to grow to 2, got %d", s.StoreSize)
	}
}

func TestCategoryDetails(t *testing.T) {
	e := testEnv(t)
	out, err := execute(t, e, "community")
	if err != nil {
		t.Fatalf("community: %v", err)
	}
	var s summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(s.Streams) != 2 {
		t.Errorf("expected 2 streams, got %d", len(s.Streams))
	}
	if _, ok := s.Details["sentiment_summary"]; !ok {
		t.Errorf("expected sentiment_summary in details: %s", out)
	}
}

func TestLiveIsNotSupported(t *testing.T) {
	e := testEnv(t)
	for _, name := range []string{"feedstock", "regulatory", "capital", "technology", "market", "community"} {
		out, err := execute(t, e, name, "--live")
		if !errors.Is(err, agent.ErrNotSupported) {
			t.Errorf("%s --live: expected ErrNotSupported, got %v", name, err)
		}
		if out != "" {
			t.Errorf("%s --live: expected no stdout, got %q", name, out)
		}
	}
	if _, err := os.Stat(e.dataDir); !os.IsNotExist(err) {
		t.Errorf("live runs must not create the data dir (stat err: %v)", err)
	}
	if _, err := os.Stat(e.ledger); !os.IsNotExist(err) {
		t.Errorf("live runs must not touch the ledger (stat err: %v)", err)
	}
}

func TestAllRunsEveryCategory(t *testing.T) {
	e := testEnv(t)
	out, err := execute(t, e, "all")
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	var sums []summary
	if err := json.Unmarshal([]byte(out), &sums); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	want := []string{"feedstock", "regulatory", "capital", "technology", "market", "community"}
	if len(sums) != len(want) {
		t.Fatalf("expected %d summaries, got %d", len(want), len(sums))
	}
	for i, s := range sums {
		if s.Category != want[i] {
			t.Errorf("summary %d: got %s, want %s", i, s.Category, want[i])
		}
	}
}

func TestAllLiveStopsAtFirst(t *testing.T) {
	e := testEnv(t)
	out, err := execute(t, e, "all", "--live")
	if !errors.Is(err, agent.ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("expected an empty array, got %q", out)
	}
}

func TestMalformedStoreIsReplaced(t *testing.T) {
	e := testEnv(t)
	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.dataDir, "prices.json"), []byte(`{"broken":`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, e, "feedstock")
	if err != nil {
		t.Fatalf("feedstock: %v", err)
	}
	var s summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if s.StoreSize != 1 {
		t.Errorf("expected the malformed store to be replaced by 1 record, got %d", s.StoreSize)
	}
}

func TestHistoryAndStats(t *testing.T) {
	e := testEnv(t)
	for _, name := range []string{"feedstock", "capital"} {
		if _, err := execute(t, e, name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}

	out, err := execute(t, e, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "feedstock") || !strings.Contains(out, "capital") {
		t.Errorf("history missing runs: %q", out)
	}

	out, err = execute(t, e, "history", "--category", "capital")
	if err != nil {
		t.Fatalf("history --category: %v", err)
	}
	if strings.Contains(out, "feedstock") {
		t.Errorf("category filter ignored: %q", out)
	}

	if _, err := execute(t, e, "history", "--category", "weather"); err == nil {
		t.Error("expected error for unknown category")
	}

	out, err = execute(t, e, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Runs: 2") {
		t.Errorf("unexpected stats: %q", out)
	}
}

func TestPrune(t *testing.T) {
	e := testEnv(t)
	if _, err := execute(t, e, "feedstock"); err != nil {
		t.Fatalf("feedstock: %v", err)
	}
	out, err := execute(t, e, "prune", "--older-than", "30d")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(out, "Nothing to prune.") {
		t.Errorf("unexpected prune output: %q", out)
	}
	if _, err := execute(t, e, "prune", "--older-than", "soon"); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestStatusJSON(t *testing.T) {
	e := testEnv(t)
	if _, err := execute(t, e, "regulatory"); err != nil {
		t.Fatalf("regulatory: %v", err)
	}
	out, err := execute(t, e, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report struct {
		Streams []struct {
			Category  string `json:"category"`
			Freshness string `json:"freshness"`
			LastRun   string `json:"last_run"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decoding: %v\n%s", err, out)
	}
	for _, s := range report.Streams {
		switch s.Category {
		case "regulatory":
			if s.Freshness == "Empty" || s.LastRun == "" {
				t.Errorf("regulatory should have data and a last run: %+v", s)
			}
		case "capital":
			if s.Freshness != "Empty" {
				t.Errorf("capital should be empty, got %s", s.Freshness)
			}
		}
	}
}

func TestSources(t *testing.T) {
	e := testEnv(t)
	out, err := execute(t, e, "sources", "--rss", "--category", "regulatory")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if !strings.Contains(out, "EASA") {
		t.Errorf("expected EASA in rss sources: %q", out)
	}
	if strings.Contains(out, "capital") {
		t.Errorf("category filter ignored: %q", out)
	}

	out, err = execute(t, e, "sources", "--free-api")
	if err != nil {
		t.Fatalf("sources --free-api: %v", err)
	}
	if !strings.Contains(out, "World Bank") {
		t.Errorf("expected World Bank in free API sources: %q", out)
	}

	if _, err := execute(t, e, "sources", "--free-api", "--rss"); err == nil {
		t.Error("expected error when combining --free-api and --rss")
	}
}

func TestScanRejectsUnknownCategory(t *testing.T) {
	e := testEnv(t)
	if _, err := execute(t, e, "scan", "--category", "weather"); err == nil {
		t.Error("expected error for unknown category")
	}
	if _, err := execute(t, e, "scan", "--category", "technology"); err == nil {
		t.Error("expected error when a category has no feeds")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{90 * 24 * time.Hour, "90d"},
		{36 * time.Hour, "1d"},
		{5 * time.Hour, "5h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 << 20, "3.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
