package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/digest"
	"github.com/eteka/biojet-intel-node/internal/runlog"
)

var (
	flagPruneOlderThan string
	flagHistoryCat     string
	flagHistoryLimit   int
	flagStatusJSON     bool
)

var errRunlogDisabled = errors.New("run ledger is disabled (runlog.enabled: false)")

func openLedger(cfg *config.Config) (*runlog.Ledger, error) {
	if !cfg.Runlog.Enabled {
		return nil, errRunlogDisabled
	}
	db, err := runlog.Open(cfg.RunlogPath())
	if err != nil {
		return nil, fmt.Errorf("opening run ledger: %w", err)
	}
	return db, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every category store",
	Long: `Read every stream store and report its size, newest record and freshness:
Fresh (newest record at most 36h old), Stale (at most 7 days), Old, Empty or
Malformed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		var lastRun digest.LastRunFunc
		if db, err := openLedger(cfg); err == nil {
			defer db.Close()
			lastRun = db.LastRun
		}

		now := time.Now()
		report := digest.Build(cfg, lastRun, now)
		if flagStatusJSON {
			data, err := report.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), digest.Render(report, now))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the run ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if flagHistoryCat != "" {
			if _, err := cfg.Category(flagHistoryCat); err != nil {
				return err
			}
		}

		db, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.Recent(flagHistoryCat, flagHistoryLimit)
		if err != nil {
			return fmt.Errorf("reading history: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), digest.RenderHistory(runs, time.Now()))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old runs from the run ledger",
	Long: `Delete ledger runs older than the retention period and reclaim disk space.

Uses the retention value from config (default: 90d) unless overridden with --older-than.
Category stores are never pruned here; they are bounded on every write.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		retention := cfg.RetentionDuration()
		if flagPruneOlderThan != "" {
			d, err := config.ParseDuration(flagPruneOlderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			retention = d
		}

		deleted, err := db.Prune(retention)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}

		out := cmd.OutOrStdout()
		if deleted == 0 {
			fmt.Fprintln(out, "Nothing to prune.")
		} else {
			fmt.Fprintf(out, "Pruned %d run(s) older than %s.\n", deleted, formatDuration(retention))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run ledger statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := openLedger(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		dbPath := cfg.RunlogPath()
		count, size, err := db.Stats(dbPath)
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Ledger: %s\n", dbPath)
		fmt.Fprintf(out, "Runs: %d\n", count)
		fmt.Fprintf(out, "Size: %s\n", formatBytes(size))
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 30d, 720h)")
	historyCmd.Flags().StringVar(&flagHistoryCat, "category", "", "only show runs of this category")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum number of runs to show")
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "print the report as JSON")
}

func formatDuration(d time.Duration) string {
	h := d.Hours()
	days := int(h / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dh", int(h))
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
