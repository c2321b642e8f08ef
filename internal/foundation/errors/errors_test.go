package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryTranscode, "encode failed").
			WithSeverity(SeverityError).
			WithContext("format", "webp").
			Build()

		if err.Category() != CategoryTranscode {
			t.Errorf("expected category %s, got %s", CategoryTranscode, err.Category())
		}
		if err.Severity() != SeverityError {
			t.Errorf("expected severity %s, got %s", SeverityError, err.Severity())
		}
		if err.Message() != "encode failed" {
			t.Errorf("expected message 'encode failed', got %s", err.Message())
		}

		format, exists := err.Context().GetString("format")
		if !exists || format != "webp" {
			t.Errorf("expected context format=webp, got %v", format)
		}
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		if !HasCategory(err, CategoryConfig) {
			t.Error("expected error to have config category")
		}
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
	})

	t.Run("Per-item errors retry on the next run", func(t *testing.T) {
		for _, err := range []*ClassifiedError{
			RenderError("bad frontmatter").Build(),
			TranscodeError("decode failed").Build(),
			IOError("read failed").Build(),
		} {
			if err.IsFatal() {
				t.Errorf("%s: expected non-fatal", err.Category())
			}
			if err.RetryStrategy() != RetryNextRun {
				t.Errorf("%s: expected retry next_run, got %s", err.Category(), err.RetryStrategy())
			}
		}
	})

	t.Run("Error wrapping", func(t *testing.T) {
		cause := errors.New("disk full")
		err := WrapError(cause, CategoryCache, "commit build cache").Fatal().Build()

		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
		if err.Error() != "[cache:fatal] commit build cache: disk full" {
			t.Errorf("unexpected message: %s", err.Error())
		}

		wrapped := fmt.Errorf("run: %w", err)
		got, ok := AsClassified(wrapped)
		if !ok || got.Category() != CategoryCache {
			t.Errorf("expected AsClassified to unwrap fmt.Errorf chains")
		}
	})

	t.Run("WithContext does not mutate the original", func(t *testing.T) {
		base := RenderError("render failed").Build()
		derived := base.WithContext("path", "a.md")

		if _, ok := base.Context().Get("path"); ok {
			t.Error("expected base context to stay untouched")
		}
		if p, _ := derived.Context().GetString("path"); p != "a.md" {
			t.Errorf("expected derived path a.md, got %q", p)
		}
	})
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("nil must not be fatal")
	}
	if !IsFatal(errors.New("plain")) {
		t.Error("unclassified errors are fatal")
	}
	if IsFatal(CacheCorruption("unreadable cache").Build()) {
		t.Error("cache corruption must be recoverable")
	}
}

func TestErrorContext_Merge(t *testing.T) {
	a := ErrorContext{"a": 1, "shared": "left"}
	b := ErrorContext{"b": 2, "shared": "right"}

	merged := a.Merge(b)
	if merged["a"] != 1 || merged["b"] != 2 || merged["shared"] != "right" {
		t.Errorf("unexpected merge result: %v", merged)
	}
	if a["shared"] != "left" {
		t.Error("merge must not mutate the receiver")
	}
}
