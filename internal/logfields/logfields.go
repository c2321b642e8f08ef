package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPath       = "path"
	KeyKind       = "kind"
	KeyFormat     = "format"
	KeyVariant    = "variant"
	KeyOutcome    = "outcome"
	KeyReason     = "reason"
	KeyOutput     = "output"
	KeyCount      = "count"
	KeyWorkers    = "workers"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Format(f string) slog.Attr       { return slog.String(KeyFormat, f) }
func Variant(v string) slog.Attr      { return slog.String(KeyVariant, v) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Output(p string) slog.Attr       { return slog.String(KeyOutput, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Workers(n int) slog.Attr         { return slog.Int(KeyWorkers, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Since reports the elapsed milliseconds since start.
func Since(start time.Time) slog.Attr {
	return DurationMS(float64(time.Since(start).Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
