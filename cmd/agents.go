package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eteka/biojet-intel-node/internal/agent"
	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/generate"
	"github.com/eteka/biojet-intel-node/internal/metrics"
	"github.com/eteka/biojet-intel-node/internal/record"
	"github.com/eteka/biojet-intel-node/internal/runlog"
)

var categoryShort = map[string]string{
	config.Feedstock:  "Track cassava-peel feedstock prices",
	config.Regulatory: "Collect SAF regulatory alerts",
	config.Capital:    "Collect climate-finance and funding signals",
	config.Technology: "Track SAF production pathway updates",
	config.Market:     "Collect airline offtake and airport signals",
	config.Community:  "Collect community sentiment and draft an editorial",
}

func init() {
	for _, name := range config.CategoryNames {
		rootCmd.AddCommand(newCategoryCmd(name))
	}

	var live bool
	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Run every category in sequence",
		Long: `Run all six categories in their fixed order and print a JSON array of run
summaries. The first failing category stops the sequence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategories(cmd.Context(), cmd.OutOrStdout(), config.CategoryNames, modeFor(live), true)
		},
	}
	allCmd.Flags().BoolVar(&live, "live", false, "use live sources (not supported yet)")
	rootCmd.AddCommand(allCmd)
}

func newCategoryCmd(name string) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   name,
		Short: categoryShort[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategories(cmd.Context(), cmd.OutOrStdout(), []string{name}, modeFor(live), false)
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "use live sources (not supported yet)")
	return cmd
}

func modeFor(live bool) record.Mode {
	if live {
		return record.Live
	}
	return record.Mock
}

// runCategories runs each category and prints its summary; asArray prints
// the summaries that completed as one JSON array, even on failure.
func runCategories(ctx context.Context, out io.Writer, names []string, mode record.Mode, asArray bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	catalog, err := generate.DefaultCatalog()
	if err != nil {
		return err
	}
	var observers []agent.Observer
	if mode == record.Mock {
		var closeObservers func()
		observers, closeObservers = buildObservers(cfg, log)
		defer closeObservers()
	}

	seed := uint64(time.Now().UnixNano())
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	summaries := []agent.Summary{}
	var runErr error
	for _, name := range names {
		a, err := agent.Build(cfg, name, catalog, rng, log, observers...)
		if err != nil {
			runErr = err
			break
		}
		sum, err := a.Run(ctx, mode)
		if err != nil {
			runErr = err
			break
		}
		summaries = append(summaries, sum)
	}

	if asArray {
		if err := writeJSON(out, summaries); err != nil {
			return err
		}
	} else if runErr == nil {
		if err := writeJSON(out, summaries[0]); err != nil {
			return err
		}
	}
	return runErr
}

// buildObservers opens the run ledger and metrics exporter when configured.
// Either failing to open is logged and skipped.
func buildObservers(cfg *config.Config, log *zap.Logger) ([]agent.Observer, func()) {
	var (
		observers []agent.Observer
		closers   []func()
	)
	if cfg.Runlog.Enabled {
		ledger, err := runlog.Open(cfg.RunlogPath())
		if err != nil {
			log.Warn("run ledger unavailable", zap.String("path", cfg.RunlogPath()), zap.Error(err))
		} else {
			observers = append(observers, ledger)
			closers = append(closers, func() { ledger.Close() })
		}
	}
	if cfg.Metrics.TextfileDir != "" {
		exporter, err := metrics.NewExporter(cfg.Metrics.TextfileDir)
		if err != nil {
			log.Warn("metrics exporter unavailable", zap.Error(err))
		} else {
			observers = append(observers, exporter)
		}
	}
	return observers, func() {
		for _, c := range closers {
			c()
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
