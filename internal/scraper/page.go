package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/status-history/internal/surface"
)

// settle waits d for the page to re-render after a click.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// previousPage clicks the previous-page control and waits for the page to
// settle. It reports false when the page has no such control.
func previousPage(ctx context.Context, s surface.Surface, sel string, wait time.Duration) (bool, error) {
	prev, err := s.Locate(ctx, sel)
	if errors.Is(err, surface.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("locating previous page control: %w", err)
	}
	if err := s.Click(ctx, prev); err != nil {
		return false, fmt.Errorf("clicking previous page control: %w", err)
	}
	return true, settle(ctx, wait)
}

// childText returns the text of the first element matching sel under
// parent, or "" when there is none.
func childText(ctx context.Context, s surface.Surface, parent surface.Element, sel string) (string, error) {
	el, err := s.LocateWithin(ctx, parent, sel)
	if errors.Is(err, surface.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Text(ctx, el)
}

// selectionText returns the whitespace-collapsed text of sel.
func selectionText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// resolveLink makes href absolute against base. Unparseable links are
// returned unchanged.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func parseBase(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}
