// Package agent runs one category: generate fresh records for each of its
// streams, then fold them into the streams' bounded stores.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/eteka/biojet-intel-node/internal/config"
	"github.com/eteka/biojet-intel-node/internal/generate"
	"github.com/eteka/biojet-intel-node/internal/record"
	"github.com/eteka/biojet-intel-node/internal/store"
)

// ErrNotSupported is returned for live runs. Nothing is generated or
// written when it is returned.
var ErrNotSupported = errors.New("live mode is not supported")

// Stream pairs a generator with the store it feeds.
type Stream struct {
	Name      string
	Generator generate.Generator
	Store     *store.Store
}

// Observer is told about every finished mock run, successful or not.
// Observer errors are logged and never change the run's outcome.
type Observer interface {
	Observe(ctx context.Context, s Summary, runErr error) error
}

type StreamSummary struct {
	Stream string `json:"stream"`
	File   string `json:"file"`
	store.Result
}

// Summary is what a run reports on stdout. Counts are sums over streams.
type Summary struct {
	Category   string          `json:"category"`
	Mode       record.Mode     `json:"mode"`
	Written    int             `json:"written"`
	Evicted    int             `json:"evicted"`
	StoreSize  int             `json:"store_size"`
	Streams    []StreamSummary `json:"streams"`
	Details    map[string]any  `json:"details,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

type Config struct {
	Category  string
	Streams   []Stream
	Details   generate.DetailsFunc
	Observers []Observer
	Logger    *zap.Logger
	Now       func() time.Time
}

type Agent struct {
	category  string
	streams   []Stream
	details   generate.DetailsFunc
	observers []Observer
	log       *zap.Logger
	now       func() time.Time
}

func New(cfg Config) (*Agent, error) {
	if cfg.Category == "" {
		return nil, errors.New("agent: category is required")
	}
	if len(cfg.Streams) == 0 {
		return nil, fmt.Errorf("agent %s: at least one stream is required", cfg.Category)
	}
	for _, s := range cfg.Streams {
		if s.Generator == nil || s.Store == nil {
			return nil, fmt.Errorf("agent %s: stream %q needs a generator and a store", cfg.Category, s.Name)
		}
	}
	a := &Agent{
		category:  cfg.Category,
		streams:   cfg.Streams,
		details:   cfg.Details,
		observers: cfg.Observers,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Build wires the mock generators and stores of a configured category.
func Build(cfg *config.Config, category string, catalog *generate.Catalog, rng *rand.Rand, log *zap.Logger, observers ...Observer) (*Agent, error) {
	cat, err := cfg.Category(category)
	if err != nil {
		return nil, err
	}
	gens, details, err := generate.ForCategory(category, cat, catalog, rng, nil)
	if err != nil {
		return nil, err
	}

	streams := make([]Stream, 0, len(cat.Streams))
	for _, s := range cat.Streams {
		st, err := store.New(cfg.StorePath(s), s.MaxRecords, log)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", s.Name, err)
		}
		streams = append(streams, Stream{Name: s.Name, Generator: gens[s.Name], Store: st})
	}

	return New(Config{
		Category:  category,
		Streams:   streams,
		Details:   details,
		Observers: observers,
		Logger:    log,
	})
}

func (a *Agent) Category() string { return a.category }

// Run executes one pass in the given mode. Every stream is generated before
// any store is touched, so a generator failure leaves all stores as they
// were.
func (a *Agent) Run(ctx context.Context, mode record.Mode) (Summary, error) {
	switch mode {
	case record.Live:
		return Summary{}, fmt.Errorf("%s: %w", a.category, ErrNotSupported)
	case record.Mock:
	default:
		return Summary{}, fmt.Errorf("%s: unknown mode %q", a.category, mode)
	}

	sum := Summary{Category: a.category, Mode: mode, Streams: []StreamSummary{}}
	err := a.run(ctx, &sum)
	sum.FinishedAt = a.now().UTC()

	if err != nil {
		a.log.Error("run failed", zap.String("category", a.category), zap.Error(err))
	} else {
		a.log.Info("run complete",
			zap.String("category", a.category),
			zap.Int("written", sum.Written),
			zap.Int("evicted", sum.Evicted),
			zap.Int("store_size", sum.StoreSize))
	}
	a.notify(ctx, sum, err)

	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (a *Agent) run(ctx context.Context, sum *Summary) error {
	generated := make(map[string][]record.Record, len(a.streams))
	for _, s := range a.streams {
		out, err := s.Generator.Generate(ctx)
		if err != nil {
			return fmt.Errorf("%s/%s: generating: %w", a.category, s.Name, err)
		}
		a.log.Debug("generated", zap.String("category", a.category), zap.String("stream", s.Name), zap.Int("records", len(out)))
		generated[s.Name] = out
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, s := range a.streams {
		res, err := s.Store.Apply(generated[s.Name])
		if err != nil {
			return fmt.Errorf("%s/%s: %w", a.category, s.Name, err)
		}
		sum.Streams = append(sum.Streams, StreamSummary{Stream: s.Name, File: s.Store.Path(), Result: res})
		sum.Written += res.Written
		sum.Evicted += res.Evicted
		sum.StoreSize += res.Size
	}

	if a.details != nil {
		sum.Details = a.details(generated)
	}
	return nil
}

func (a *Agent) notify(ctx context.Context, sum Summary, runErr error) {
	for _, o := range a.observers {
		if err := o.Observe(ctx, sum, runErr); err != nil {
			a.log.Warn("recording run outcome", zap.String("category", a.category), zap.Error(err))
		}
	}
}
