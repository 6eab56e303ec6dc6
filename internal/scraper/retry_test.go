package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/surface"
)

func TestRetry(t *testing.T) {
	boom := errors.New("renderer crashed")

	tests := []struct {
		name         string
		failures     []error // returned by successive calls, then success
		always       error   // returned by every call when set
		wantCalls    int
		wantRecords  int
		wantTerminal bool
		wantErr      error
	}{
		{
			name:        "succeeds first time",
			wantCalls:   1,
			wantRecords: 2,
		},
		{
			name:        "stale twice then succeeds",
			failures:    []error{surface.ErrStale, fmt.Errorf("clicking: %w", surface.ErrStale)},
			wantCalls:   3,
			wantRecords: 2,
		},
		{
			name:         "always stale",
			always:       surface.ErrStale,
			wantCalls:    MaxAttempts,
			wantTerminal: true,
			wantErr:      ErrRetriesExhausted,
		},
		{
			name:      "non-stale error is not retried",
			failures:  []error{boom},
			wantCalls: 1,
			wantErr:   boom,
		},
		{
			name:      "non-stale error after stale",
			failures:  []error{surface.ErrStale, boom},
			wantCalls: 2,
			wantErr:   boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := logger.NewMetrics()
			r := NewRetrier(0, quietLogger(), metrics)

			calls := 0
			op := func(ctx context.Context) (Page[string], error) {
				calls++
				if tt.always != nil {
					return Page[string]{}, tt.always
				}
				if calls <= len(tt.failures) {
					return Page[string]{Records: []string{"partial"}}, tt.failures[calls-1]
				}
				return Page[string]{Records: []string{"a", "b"}}, nil
			}

			page, err := Retry(context.Background(), r, "test page", op)

			if calls != tt.wantCalls {
				t.Errorf("op called %d times, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Retry() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Retry() error = %v, want %v", err, tt.wantErr)
			}
			if len(page.Records) != tt.wantRecords {
				t.Errorf("got %d records, want %d", len(page.Records), tt.wantRecords)
			}
			if page.Terminal != tt.wantTerminal {
				t.Errorf("Terminal = %v, want %v", page.Terminal, tt.wantTerminal)
			}
		})
	}
}

func TestRetry_CountsStaleAttempts(t *testing.T) {
	metrics := logger.NewMetrics()
	r := NewRetrier(0, quietLogger(), metrics)

	_, err := Retry(context.Background(), r, "test page", func(ctx context.Context) (Page[int], error) {
		return Page[int]{}, surface.ErrStale
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Retry() error = %v, want ErrRetriesExhausted", err)
	}
	if got := metrics.Counter("retry.stale"); got != MaxAttempts {
		t.Errorf("retry.stale = %d, want %d", got, MaxAttempts)
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(0, quietLogger(), logger.NewMetrics())

	calls := 0
	page, err := Retry(ctx, r, "test page", func(ctx context.Context) (Page[int], error) {
		calls++
		cancel()
		return Page[int]{}, surface.ErrStale
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
	if page.Terminal {
		t.Error("a cancelled traversal must not report the end of history")
	}
	if calls != 1 {
		t.Errorf("op called %d times after cancel, want 1", calls)
	}
}
