package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/pfrederiksen/status-history/internal/config"
	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/record"
	"github.com/pfrederiksen/status-history/internal/surface"
)

// IncidentArchive stores incident history pages partitioned by month.
type IncidentArchive interface {
	WriteIncidents(month time.Time, incidents []*record.Incident) (string, error)
	LoadIncidents(month time.Time) ([]*record.Incident, error)
}

// IncidentExtractor collects the incident history of a status page.
type IncidentExtractor struct {
	s        surface.Surface
	base     *url.URL
	sel      config.IncidentSelectors
	timeouts config.Timeouts
	archive  IncidentArchive
	retrier  *Retrier
	modifier surface.Modifier
	log      *logger.Logger
	metrics  *logger.Metrics
}

// NewIncidentExtractor creates an extractor for the history view s is showing.
func NewIncidentExtractor(s surface.Surface, cfg config.Config, archive IncidentArchive, log *logger.Logger, metrics *logger.Metrics) *IncidentExtractor {
	if log == nil {
		log = logger.Default()
	}
	if metrics == nil {
		metrics = logger.DefaultMetrics()
	}
	return &IncidentExtractor{
		s:        s,
		base:     parseBase(cfg.HistoryURL),
		sel:      cfg.Incident,
		timeouts: cfg.Timeouts,
		archive:  archive,
		retrier:  NewRetrier(cfg.Timeouts.RetryDelay.Std(), log, metrics),
		modifier: surface.PlatformModifier(),
		log:      log.With(logger.Fields{"extractor": "incidents"}),
		metrics:  metrics,
	}
}

// CollectThroughPagination captures every history page, newest first,
// archiving each non-empty page, until a page lists no incidents.
func (e *IncidentExtractor) CollectThroughPagination(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Kind: "incidents", Archives: []Archived{}}
	defer func() { summary.Duration = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Pages++
		e.metrics.IncrCounter("incidents.pages")
		pageStart := time.Now()

		page, err := Retry(ctx, e.retrier, fmt.Sprintf("incidents page %d", summary.Pages), e.loopPage)
		e.metrics.RecordTiming("incidents.page", time.Since(pageStart))
		switch {
		case errors.Is(err, ErrRetriesExhausted):
			summary.Exhausted = true
		case err != nil:
			return summary, fmt.Errorf("incidents page %d: %w", summary.Pages, err)
		}

		if len(page.Records) > 0 {
			if err := e.archivePage(ctx, page.Records, summary); err != nil {
				return summary, err
			}
		}

		if page.Terminal {
			e.log.Info("No more previous incidents, stopping", logger.Fields{
				"pages":   summary.Pages,
				"records": summary.Records,
			})
			return summary, nil
		}

		moved, err := previousPage(ctx, e.s, e.sel.Previous, e.timeouts.Settle.Std())
		if err != nil {
			return summary, fmt.Errorf("incidents page %d: %w", summary.Pages, err)
		}
		if !moved {
			e.log.Info("No previous page control, stopping", logger.Fields{"pages": summary.Pages})
			return summary, nil
		}
	}
}

// loopPage captures every incident listed on the current page.
func (e *IncidentExtractor) loopPage(ctx context.Context) (Page[*record.Incident], error) {
	if err := e.expandAll(ctx); err != nil {
		return Page[*record.Incident]{}, err
	}

	entries, err := e.s.WaitPresent(ctx, e.sel.Entry, e.timeouts.List.Std())
	if errors.Is(err, surface.ErrTimeout) {
		e.log.Info("No incidents found on this page", nil)
		e.metrics.SetGauge("incidents.page_entries", 0)
		return Page[*record.Incident]{Terminal: true}, nil
	}
	if err != nil {
		return Page[*record.Incident]{}, fmt.Errorf("listing incidents: %w", err)
	}
	e.metrics.SetGauge("incidents.page_entries", float64(len(entries)))
	e.log.Debug("Incidents found on this page", logger.Fields{"count": len(entries)})

	incidents := make([]*record.Incident, 0, len(entries))
	for i, entry := range entries {
		inc, err := e.captureIncident(ctx, entry)
		if errors.Is(err, surface.ErrTimeout) && !errors.Is(err, surface.ErrStale) {
			e.log.Warn("Skipping incident whose detail did not load", logger.Fields{
				"index": i,
				"error": err.Error(),
			})
			continue
		}
		if err != nil {
			return Page[*record.Incident]{}, fmt.Errorf("incident %d: %w", i+1, err)
		}
		incidents = append(incidents, inc)
	}

	return Page[*record.Incident]{Records: incidents}, nil
}

// expandAll opens every collapsed group of incidents on the page.
func (e *IncidentExtractor) expandAll(ctx context.Context) error {
	collapsed, err := e.s.LocateAll(ctx, e.sel.ShowAll)
	if err != nil {
		return fmt.Errorf("locating collapsed incidents: %w", err)
	}
	if len(collapsed) == 0 {
		return nil
	}
	for _, el := range collapsed {
		if err := e.s.Click(ctx, el); err != nil {
			return fmt.Errorf("expanding incidents: %w", err)
		}
	}
	e.log.Debug("Expanded collapsed incidents", logger.Fields{"groups": len(collapsed)})
	return settle(ctx, e.timeouts.Settle.Std())
}

// captureIncident reads a list entry, then opens its detail page to read
// the update timeline and affected service. The detail context is closed
// again on every path.
func (e *IncidentExtractor) captureIncident(ctx context.Context, entry surface.Element) (inc *record.Incident, err error) {
	inc, err = e.captureMetadata(ctx, entry)
	if err != nil {
		return nil, err
	}

	d, err := openDetail(ctx, e.s, entry, e.modifier, e.timeouts.Element.Std())
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := d.release(ctx); rerr != nil {
			inc = nil
			err = multierr.Append(err, rerr)
		}
	}()

	if inc.Updates, err = e.captureUpdates(ctx); err != nil {
		return nil, err
	}
	if inc.Service, err = e.captureService(ctx); err != nil {
		return nil, err
	}

	e.metrics.IncrCounter("incidents.records")
	e.log.Debug("Captured incident", logger.Fields{
		"title":   inc.Title,
		"updates": len(inc.Updates),
		"service": inc.ServiceLabel(),
	})
	return inc, nil
}

func (e *IncidentExtractor) captureMetadata(ctx context.Context, entry surface.Element) (*record.Incident, error) {
	title, err := e.s.Text(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("reading incident title: %w", err)
	}
	href, _, err := e.s.Attribute(ctx, entry, "href")
	if err != nil {
		return nil, fmt.Errorf("reading incident link: %w", err)
	}
	class, _, err := e.s.Attribute(ctx, entry, "class")
	if err != nil {
		return nil, fmt.Errorf("reading incident impact: %w", err)
	}

	color, err := e.s.ComputedStyle(ctx, entry, "color")
	if err != nil && !errors.Is(err, surface.ErrNotFound) {
		return nil, fmt.Errorf("reading incident color: %w", err)
	}
	if hex, cerr := record.ColorHex(color); cerr == nil {
		color = hex
	} else if color != "" {
		e.log.Debug("Keeping unparsed incident color", logger.Fields{"color": color})
	}

	var token string
	if fields := strings.Fields(class); len(fields) > 0 {
		token = fields[0]
	}
	impact := record.ParseImpact(token)
	if !impact.Valid() {
		e.log.Debug("Unrecognized impact class", logger.Fields{"class": class, "title": title})
	}

	return &record.Incident{
		Title:  title,
		Link:   resolveLink(e.base, href),
		Color:  color,
		Impact: impact,
	}, nil
}

// captureUpdates reads the update timeline of the open detail page.
// A page without updates yields an empty slice.
func (e *IncidentExtractor) captureUpdates(ctx context.Context) ([]record.Update, error) {
	updates := []record.Update{}

	rows, err := e.s.WaitPresent(ctx, e.sel.UpdateRow, e.timeouts.Element.Std())
	if errors.Is(err, surface.ErrTimeout) {
		e.log.Debug("Incident has no updates", nil)
		return updates, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing updates: %w", err)
	}

	for _, row := range rows {
		var u record.Update
		if u.Title, err = childText(ctx, e.s, row, e.sel.UpdateTitle); err != nil {
			return nil, fmt.Errorf("reading update title: %w", err)
		}
		if u.Body, err = childText(ctx, e.s, row, e.sel.UpdateBody); err != nil {
			return nil, fmt.Errorf("reading update body: %w", err)
		}
		if u.Timestamp, err = childText(ctx, e.s, row, e.sel.UpdateTimestamp); err != nil {
			return nil, fmt.Errorf("reading update timestamp: %w", err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// captureService reads the affected-service label of the open detail page.
// It returns nil when the page names none.
func (e *IncidentExtractor) captureService(ctx context.Context) (*string, error) {
	els, err := e.s.LocateAll(ctx, e.sel.Service)
	if err != nil {
		return nil, fmt.Errorf("locating affected service: %w", err)
	}
	if len(els) == 0 {
		e.log.Debug("Incident lists no affected service", nil)
		return nil, nil
	}

	text, err := e.s.Text(ctx, els[0])
	if err != nil {
		return nil, fmt.Errorf("reading affected service: %w", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return nil, nil
	}
	return &text, nil
}

// archivePage writes the page's incidents to the partition of the month the
// page displays, reporting incidents not seen in that partition before.
func (e *IncidentExtractor) archivePage(ctx context.Context, incidents []*record.Incident, summary *Summary) error {
	heading, err := e.s.Locate(ctx, e.sel.MonthTitle)
	if err != nil {
		return fmt.Errorf("locating month heading: %w", err)
	}
	label, err := e.s.Text(ctx, heading)
	if err != nil {
		return fmt.Errorf("reading month heading: %w", err)
	}
	month, err := record.ParseMonthLabel(label)
	if err != nil {
		return err
	}

	previous, err := e.archive.LoadIncidents(month)
	if err != nil {
		e.log.Warn("Could not read previous archive, reporting all incidents as new", logger.Fields{
			"month": label,
			"error": err.Error(),
		})
	}
	diff := record.Diff(previous, incidents)

	path, err := e.archive.WriteIncidents(month, incidents)
	if err != nil {
		return err
	}

	summary.Records += len(incidents)
	summary.NewIncidents += len(diff.NewIncidents)
	summary.Archives = append(summary.Archives, Archived{Path: path, Label: label, Records: len(incidents)})

	e.log.Info("Archived incidents", logger.Fields{
		"month":   label,
		"path":    path,
		"records": len(incidents),
		"new":     len(diff.NewIncidents),
		"changes": len(diff.Changes),
	})
	return nil
}
