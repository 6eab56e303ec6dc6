package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/surface"
)

// MaxAttempts bounds how often a page traversal is run before giving up.
const MaxAttempts = 5

// ErrRetriesExhausted is returned when every attempt of a page traversal
// went stale. The accompanying Page is empty and terminal.
var ErrRetriesExhausted = errors.New("page kept re-rendering during traversal")

// Page is the result of traversing one history page.
// Terminal reports that the page signalled the end of available history.
type Page[T any] struct {
	Records  []T
	Terminal bool
}

// Retrier re-runs whole page traversals that fail with surface.ErrStale.
type Retrier struct {
	delay   time.Duration
	log     *logger.Logger
	metrics *logger.Metrics
}

// NewRetrier creates a Retrier waiting delay between attempts.
func NewRetrier(delay time.Duration, log *logger.Logger, metrics *logger.Metrics) *Retrier {
	if log == nil {
		log = logger.Default()
	}
	if metrics == nil {
		metrics = logger.DefaultMetrics()
	}
	return &Retrier{delay: delay, log: log, metrics: metrics}
}

// Retry runs op until it succeeds, fails with an error other than
// surface.ErrStale, or MaxAttempts runs went stale.
//
// Exhaustion yields an empty terminal page and ErrRetriesExhausted. Any
// other failure yields an empty, non-terminal page and the error: the page
// failed and nothing is known about the pages before it.
func Retry[T any](ctx context.Context, r *Retrier, name string, op func(context.Context) (Page[T], error)) (Page[T], error) {
	var (
		page     Page[T]
		attempts int
	)

	operation := func() error {
		attempts++
		p, err := op(ctx)
		if err == nil {
			page = p
			return nil
		}
		if errors.Is(err, surface.ErrStale) {
			r.metrics.IncrCounter("retry.stale")
			r.log.Debug("Page went stale, restarting traversal", logger.Fields{
				"page":    name,
				"attempt": attempts,
				"error":   err.Error(),
			})
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.delay), MaxAttempts-1),
		ctx,
	)

	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		return page, nil
	case ctx.Err() != nil:
		return Page[T]{}, ctx.Err()
	case errors.Is(err, surface.ErrStale):
		r.log.Warn("Page traversal exhausted its retries, treating as end of history", logger.Fields{
			"page":     name,
			"attempts": attempts,
			"error":    err.Error(),
		})
		return Page[T]{Terminal: true}, fmt.Errorf("%s: %w after %d attempts", name, ErrRetriesExhausted, attempts)
	default:
		r.log.Error("Page traversal failed", logger.Fields{
			"page":    name,
			"attempt": attempts,
		}, err)
		return Page[T]{}, err
	}
}
