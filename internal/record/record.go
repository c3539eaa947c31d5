// Package record defines the timestamped, provenance-tagged unit of
// intelligence data shared by every category.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Mode tags where a record (or a run) came from.
type Mode string

const (
	Mock Mode = "mock"
	Live Mode = "live"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Mock, Live:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (valid: mock, live)", s)
}

const (
	keyTimestamp = "timestamp"
	keyMode      = "mode"
)

var (
	ErrMissingTimestamp = errors.New("record has no timestamp")
	ErrMissingMode      = errors.New("record has no mode")
)

// Record is one flat JSON object: category fields plus timestamp and mode.
type Record struct {
	Timestamp time.Time
	Mode      Mode
	Fields    map[string]any
}

// New builds a record, copying fields so the caller's map is not retained.
func New(ts time.Time, mode Mode, fields map[string]any) Record {
	r := Record{Timestamp: ts, Mode: mode, Fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		r.Fields[k] = v
	}
	return r
}

// Get returns a category field.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Timestamp.IsZero() {
		return nil, ErrMissingTimestamp
	}
	if r.Mode == "" {
		return nil, ErrMissingMode
	}
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		if k == keyTimestamp || k == keyMode {
			continue
		}
		out[k] = v
	}
	out[keyTimestamp] = r.Timestamp.Format(time.RFC3339Nano)
	out[keyMode] = r.Mode
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("record is not an object")
	}

	tsRaw, ok := raw[keyTimestamp].(string)
	if !ok || tsRaw == "" {
		return ErrMissingTimestamp
	}
	ts, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", tsRaw, err)
	}

	modeRaw, ok := raw[keyMode].(string)
	if !ok || modeRaw == "" {
		return ErrMissingMode
	}
	mode, err := ParseMode(modeRaw)
	if err != nil {
		return err
	}

	delete(raw, keyTimestamp)
	delete(raw, keyMode)

	r.Timestamp = ts
	r.Mode = mode
	r.Fields = raw
	return nil
}
