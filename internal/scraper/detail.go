package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pfrederiksen/status-history/internal/surface"
)

// detail is an incident detail page opened in its own browsing context.
// release closes it and returns to the context that was active before.
type detail struct {
	s        surface.Surface
	original surface.ContextID
	opened   surface.ContextID
}

// openDetail activates link with mod held, waits for the second browsing
// context and switches to it. On failure nothing is left open.
func openDetail(ctx context.Context, s surface.Surface, link surface.Element, mod surface.Modifier, timeout time.Duration) (*detail, error) {
	original, err := s.CurrentContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading current browsing context: %w", err)
	}
	d := &detail{s: s, original: original}

	if err := s.OpenInNewContext(ctx, link, mod); err != nil {
		return nil, multierr.Append(fmt.Errorf("opening detail: %w", err), d.release(ctx))
	}
	if err := s.WaitContexts(ctx, 2, timeout); err != nil {
		return nil, multierr.Append(fmt.Errorf("waiting for detail context: %w", err), d.release(ctx))
	}

	open, err := s.Contexts(ctx)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("listing browsing contexts: %w", err), d.release(ctx))
	}
	for _, id := range open {
		if id != original {
			d.opened = id
			break
		}
	}
	if d.opened == "" {
		return nil, fmt.Errorf("detail context did not open")
	}

	if err := s.SwitchContext(ctx, d.opened); err != nil {
		return nil, multierr.Append(fmt.Errorf("switching to detail context: %w", err), d.release(ctx))
	}
	return d, nil
}

// release closes every context other than the original one and switches
// back to it. It runs even when ctx is already cancelled.
func (d *detail) release(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	open, lerr := d.s.Contexts(ctx)
	if lerr != nil {
		err = multierr.Append(err, fmt.Errorf("listing browsing contexts: %w", lerr))
		if d.opened != "" {
			open = []surface.ContextID{d.opened}
		}
	}
	for _, id := range open {
		if id == d.original {
			continue
		}
		if cerr := d.s.CloseContext(ctx, id); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing browsing context %s: %w", id, cerr))
		}
	}

	if serr := d.s.SwitchContext(ctx, d.original); serr != nil {
		err = multierr.Append(err, fmt.Errorf("restoring browsing context %s: %w", d.original, serr))
	}
	return err
}
