package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/multierr"

	"github.com/pfrederiksen/status-history/internal/config"
	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/record"
	"github.com/pfrederiksen/status-history/internal/surface"
)

// ErrServiceNotFound is returned when the service selector offers no option
// matching the requested service.
var ErrServiceNotFound = errors.New("service not offered by the status page")

// UptimeArchive stores the uptime days captured for a service.
type UptimeArchive interface {
	WriteUptime(service string, days []*record.UptimeDay) (string, error)
}

// UptimeExtractor collects the uptime calendar of one service.
type UptimeExtractor struct {
	s              surface.Surface
	base           *url.URL
	service        string
	defaultService string
	sel            config.UptimeSelectors
	timeouts       config.Timeouts
	archive        UptimeArchive
	retrier        *Retrier
	log            *logger.Logger
	metrics        *logger.Metrics

	// skipped counts malformed days of the page being traversed.
	skipped int
}

// NewUptimeExtractor creates an extractor for service on the uptime view s
// is showing.
func NewUptimeExtractor(s surface.Surface, cfg config.Config, service string, archive UptimeArchive, log *logger.Logger, metrics *logger.Metrics) *UptimeExtractor {
	if log == nil {
		log = logger.Default()
	}
	if metrics == nil {
		metrics = logger.DefaultMetrics()
	}
	service = strings.ToLower(strings.TrimSpace(service))
	return &UptimeExtractor{
		s:              s,
		base:           parseBase(cfg.UptimeURL),
		service:        service,
		defaultService: strings.ToLower(cfg.DefaultService),
		sel:            cfg.Uptime,
		timeouts:       cfg.Timeouts,
		archive:        archive,
		retrier:        NewRetrier(cfg.Timeouts.RetryDelay.Std(), log, metrics),
		log:            log.With(logger.Fields{"extractor": "uptime", "service": service}),
		metrics:        metrics,
	}
}

// SelectService switches the calendar to the extractor's service. The
// default service is shown on load and needs no switch.
func (e *UptimeExtractor) SelectService(ctx context.Context) error {
	if e.service == e.defaultService {
		return nil
	}

	timeout := e.timeouts.Element.Std()
	dropdown, err := e.s.WaitVisible(ctx, e.sel.ServiceDropdown, timeout)
	if err != nil {
		return fmt.Errorf("waiting for service selector: %w", err)
	}
	if err := e.s.Click(ctx, dropdown); err != nil {
		return fmt.Errorf("opening service selector: %w", err)
	}

	menu, err := e.s.WaitVisible(ctx, e.sel.ServiceMenu, timeout)
	if err != nil {
		return fmt.Errorf("waiting for service options: %w", err)
	}
	options, err := e.s.LocateAllWithin(ctx, menu, e.sel.ServiceOption)
	if err != nil {
		return fmt.Errorf("listing service options: %w", err)
	}

	offered := make([]string, 0, len(options))
	for _, opt := range options {
		text, err := e.s.Text(ctx, opt)
		if err != nil {
			return fmt.Errorf("reading service option: %w", err)
		}
		text = strings.TrimSpace(text)
		if strings.EqualFold(text, e.service) {
			if err := e.s.Click(ctx, opt); err != nil {
				return fmt.Errorf("selecting service %q: %w", text, err)
			}
			e.log.Info("Selected service", logger.Fields{"option": text})
			return settle(ctx, e.timeouts.Settle.Std())
		}
		offered = append(offered, text)
	}

	return fmt.Errorf("%w: %q (offered: %s)", ErrServiceNotFound, e.service, strings.Join(offered, ", "))
}

// CollectThroughPagination selects the service, then captures calendar
// pages, newest first, until a day reports no data. Everything captured is
// archived once at the end, also when a page fails.
func (e *UptimeExtractor) CollectThroughPagination(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Kind: "uptime", Service: e.service, Archives: []Archived{}}
	defer func() { summary.Duration = time.Since(start) }()

	if err := e.SelectService(ctx); err != nil {
		return summary, err
	}

	days, runErr := e.collect(ctx, summary)

	summary.Records = len(days)
	path, err := e.archive.WriteUptime(e.service, days)
	if err != nil {
		return summary, multierr.Append(runErr, err)
	}
	summary.Archives = append(summary.Archives, Archived{Path: path, Label: e.service, Records: len(days)})
	e.log.Info("Archived uptime", logger.Fields{
		"path":    path,
		"records": len(days),
		"pages":   summary.Pages,
		"skipped": summary.Skipped,
	})

	return summary, runErr
}

func (e *UptimeExtractor) collect(ctx context.Context, summary *Summary) ([]*record.UptimeDay, error) {
	days := make([]*record.UptimeDay, 0)

	for {
		if err := ctx.Err(); err != nil {
			return days, err
		}

		summary.Pages++
		pageStart := time.Now()

		page, err := Retry(ctx, e.retrier, fmt.Sprintf("uptime page %d", summary.Pages), e.loopCalendar)
		e.metrics.RecordTiming("uptime.page", time.Since(pageStart))
		switch {
		case errors.Is(err, ErrRetriesExhausted):
			summary.Exhausted = true
		case err != nil:
			return days, fmt.Errorf("uptime page %d: %w", summary.Pages, err)
		default:
			summary.Skipped += e.skipped
		}

		days = append(days, page.Records...)

		if page.Terminal {
			e.log.Info("No more previous uptime data, stopping", logger.Fields{
				"pages":   summary.Pages,
				"records": len(days),
			})
			return days, nil
		}

		moved, err := previousPage(ctx, e.s, e.sel.Previous, e.timeouts.Settle.Std())
		if err != nil {
			return days, fmt.Errorf("uptime page %d: %w", summary.Pages, err)
		}
		if !moved {
			e.log.Info("No previous page control, stopping", logger.Fields{"pages": summary.Pages})
			return days, nil
		}
	}
}

// loopCalendar captures every active day of the current calendar page.
// The page is terminal when any day reports no data.
func (e *UptimeExtractor) loopCalendar(ctx context.Context) (Page[*record.UptimeDay], error) {
	e.skipped = 0

	cells, err := e.s.WaitPresent(ctx, e.sel.DayCell, e.timeouts.Element.Std())
	if errors.Is(err, surface.ErrTimeout) {
		e.log.Warn("No active days on this calendar page", nil)
		return Page[*record.UptimeDay]{Terminal: true}, nil
	}
	if err != nil {
		return Page[*record.UptimeDay]{}, fmt.Errorf("listing calendar days: %w", err)
	}
	e.log.Debug("Active calendar days found on this page", logger.Fields{"count": len(cells)})

	var (
		days   []*record.UptimeDay
		noData bool
	)
	for i, cell := range cells {
		day, empty, err := e.hoverDay(ctx, cell)
		switch {
		case errors.Is(err, record.ErrMalformed):
			e.skipped++
			e.metrics.IncrCounter("uptime.malformed")
			e.log.Warn("Skipping day with malformed downtime", logger.Fields{
				"index": i,
				"error": err.Error(),
			})
		case err != nil:
			return Page[*record.UptimeDay]{}, fmt.Errorf("day %d: %w", i+1, err)
		case empty:
			noData = true
		default:
			days = append(days, day)
		}
	}

	e.metrics.AddCounter("uptime.days", int64(len(days)))
	e.metrics.SetGauge("uptime.page_days", float64(len(days)))
	return Page[*record.UptimeDay]{Records: days, Terminal: noData}, nil
}

// hoverDay hovers a calendar cell and reads the tooltip it shows. empty
// reports a day without data, including a tooltip that never appears.
func (e *UptimeExtractor) hoverDay(ctx context.Context, cell surface.Element) (day *record.UptimeDay, empty bool, err error) {
	if err := e.s.Hover(ctx, cell); err != nil {
		return nil, false, fmt.Errorf("hovering day: %w", err)
	}

	tip, err := e.s.WaitVisible(ctx, e.sel.Tooltip, e.timeouts.Tooltip.Std())
	if errors.Is(err, surface.ErrTimeout) {
		e.log.Warn("Tooltip did not appear, treating day as without data", logger.Fields{"cell": cell.String()})
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("waiting for tooltip: %w", err)
	}

	fill, _, err := e.s.Attribute(ctx, cell, "fill")
	if err != nil {
		return nil, false, fmt.Errorf("reading day color: %w", err)
	}
	html, err := e.s.OuterHTML(ctx, tip)
	if err != nil {
		return nil, false, fmt.Errorf("reading tooltip: %w", err)
	}

	day, empty, err = e.parseTooltip(html)
	if err != nil || empty {
		return nil, empty, err
	}
	day.Color = fill
	day.Service = e.service
	return day, false, nil
}

// parseTooltip reads a tooltip snapshot. empty reports the no-data marker.
func (e *UptimeExtractor) parseTooltip(html string) (*record.UptimeDay, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false, fmt.Errorf("parsing tooltip: %w", err)
	}

	date := selectionText(doc.Find(e.sel.TooltipDate).First())

	if msg := doc.Find(e.sel.NoData).First(); msg.Length() > 0 {
		e.log.Info("Day has no data", logger.Fields{"date": date, "message": selectionText(msg)})
		return nil, true, nil
	}

	day := &record.UptimeDay{
		DateText:  date,
		Date:      record.ParseDayLabel(date),
		Outages:   []record.Outage{},
		Incidents: []record.IncidentRef{},
	}

	var perr error
	doc.Find(e.sel.Outage).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := selectionText(s.Find(e.sel.OutageLabel).First())
		minutes, err := record.ParseDowntime(
			selectionText(s.Find(e.sel.OutageHours).First()),
			selectionText(s.Find(e.sel.OutageMinutes).First()),
		)
		if err != nil {
			perr = fmt.Errorf("%s outage on %s: %w", label, date, err)
			return false
		}
		day.Outages = append(day.Outages, record.Outage{Type: label, DowntimeMinutes: minutes})
		return true
	})
	if perr != nil {
		return nil, false, perr
	}

	doc.Find(e.sel.RelatedIncident).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		day.Incidents = append(day.Incidents, record.IncidentRef{
			Title: selectionText(s),
			Link:  resolveLink(e.base, href),
		})
	})

	if day.Date.IsZero() && date != "" {
		e.log.Debug("Unrecognized tooltip date", logger.Fields{"date": date})
	}
	return day, false, nil
}
