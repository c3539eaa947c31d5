// Package store keeps one category stream as a bounded, recency-ordered JSON
// array on disk.
//
// Every write is read-merge-trim-sort-write: new records are merged ahead of
// the existing ones, the result is sorted by timestamp descending and cut to
// the configured maximum, and the whole array replaces the previous file via
// a temp file and rename. Readers never observe a partially written file.
//
// A store has exactly one writer. Two concurrent writers of the same file
// can lose each other's records; the daily cadence makes this acceptable.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/eteka/biojet-intel-node/internal/record"
)

var (
	// ErrMalformed means the store file exists but is not a JSON array of
	// records. Load treats it as empty.
	ErrMalformed = errors.New("store file malformed")
	// ErrWrite means the store could not be persisted. The previous file is
	// left untouched.
	ErrWrite = errors.New("store write failed")
)

// Result describes one persist.
type Result struct {
	Written int `json:"written"`
	Evicted int `json:"evicted"`
	Size    int `json:"store_size"`
}

type Store struct {
	path       string
	maxRecords int
	log        *zap.Logger
}

// New returns a store for path bounded to maxRecords. A nil logger discards
// warnings.
func New(path string, maxRecords int, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if maxRecords <= 0 {
		return nil, fmt.Errorf("max records must be positive, got %d", maxRecords)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, maxRecords: maxRecords, log: log}, nil
}

func (s *Store) Path() string    { return s.path }
func (s *Store) MaxRecords() int { return s.maxRecords }

// Read returns the current contents. A missing file is a cold start and
// yields an empty slice with no error.
func (s *Store) Read() ([]record.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []record.Record{}, nil
		}
		return nil, fmt.Errorf("reading store %s: %w", s.path, err)
	}

	var records []record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, s.path, err)
	}
	if records == nil {
		// "null" is valid JSON but not an array.
		return nil, fmt.Errorf("%w: %s: not an array", ErrMalformed, s.path)
	}
	return records, nil
}

// Load is Read that never fails: any read problem degrades to an empty
// store and is logged as a warning.
func (s *Store) Load() []record.Record {
	records, err := s.Read()
	if err == nil {
		return records
	}
	if errors.Is(err, ErrMalformed) {
		s.log.Warn("store malformed, treating as empty; previous records will be replaced",
			zap.String("path", s.path), zap.Error(err))
	} else {
		s.log.Warn("store unreadable, treating as empty",
			zap.String("path", s.path), zap.Error(err))
	}
	return []record.Record{}
}

// Persist merges newRecords into existing, trims to the store bound and
// replaces the file.
func (s *Store) Persist(newRecords, existing []record.Record) (Result, error) {
	kept, evicted := Merge(newRecords, existing, s.maxRecords)
	if err := s.write(kept); err != nil {
		return Result{}, err
	}
	if evicted > 0 {
		s.log.Debug("evicted records", zap.String("path", s.path), zap.Int("evicted", evicted))
	}
	return Result{Written: len(newRecords), Evicted: evicted, Size: len(kept)}, nil
}

// Apply loads the current contents and persists newRecords against them.
func (s *Store) Apply(newRecords []record.Record) (Result, error) {
	return s.Persist(newRecords, s.Load())
}

// Merge concatenates newRecords ahead of existing, sorts newest first and
// keeps at most max records. Equal timestamps keep their concatenation
// order, so new records precede old ones.
func Merge(newRecords, existing []record.Record, max int) ([]record.Record, int) {
	all := make([]record.Record, 0, len(newRecords)+len(existing))
	all = append(all, newRecords...)
	all = append(all, existing...)

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if max < 0 {
		max = 0
	}
	if len(all) <= max {
		return all, 0
	}
	return all[:max], len(all) - max
}

func (s *Store) write(records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrWrite, s.path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrWrite, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", ErrWrite, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: syncing %s: %v", ErrWrite, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: closing %s: %v", ErrWrite, tmpPath, err)
	}
	// CreateTemp uses 0600; the dashboard reads these files over plain HTTP.
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod %s: %v", ErrWrite, tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: renaming into %s: %v", ErrWrite, s.path, err)
	}
	return nil
}
