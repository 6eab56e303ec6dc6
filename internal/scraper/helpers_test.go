package scraper

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pfrederiksen/status-history/internal/config"
	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/record"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timeouts.Settle = 0
	cfg.Timeouts.RetryDelay = 0
	return cfg
}

func quietLogger() *logger.Logger {
	return logger.New(logger.LevelError, io.Discard)
}

// memArchive records what the extractors archive.
type memArchive struct {
	incidents map[string][]*record.Incident
	uptime    map[string][]*record.UptimeDay
	writes    []string
	writeErr  error
}

func newMemArchive() *memArchive {
	return &memArchive{
		incidents: make(map[string][]*record.Incident),
		uptime:    make(map[string][]*record.UptimeDay),
	}
}

func (m *memArchive) WriteIncidents(month time.Time, incidents []*record.Incident) (string, error) {
	if m.writeErr != nil {
		return "", m.writeErr
	}
	start, end := record.MonthWindow(month)
	path := fmt.Sprintf("incident/incident_history_%s_%s.csv", start, end)
	m.incidents[path] = incidents
	m.writes = append(m.writes, path)
	return path, nil
}

func (m *memArchive) LoadIncidents(month time.Time) ([]*record.Incident, error) {
	start, end := record.MonthWindow(month)
	return m.incidents[fmt.Sprintf("incident/incident_history_%s_%s.csv", start, end)], nil
}

func (m *memArchive) WriteUptime(service string, days []*record.UptimeDay) (string, error) {
	if m.writeErr != nil {
		return "", m.writeErr
	}
	path := "uptime/" + service + "/uptime_history.csv"
	m.uptime[path] = days
	m.writes = append(m.writes, path)
	return path, nil
}

type testIncident struct {
	slug    string
	title   string
	impact  string
	color   string
	updates int
	service string
}

// historyPage renders an incident history page for month. An empty month
// renders the page the history ends with.
func historyPage(month string, incidents ...testIncident) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="pagination"><i class="left-arrow"></i></div>`)
	if month != "" {
		fmt.Fprintf(&b, `<div class="month"><h4 class="month-title">%s</h4><div class="month-incidents">`, month)
		for _, inc := range incidents {
			fmt.Fprintf(&b, `<a class="impact-%s incident-title font-large" href="/incidents/%s" style="color: %s">%s</a>`,
				inc.impact, inc.slug, inc.color, inc.title)
		}
		b.WriteString(`</div></div>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func detailPage(inc testIncident) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><h1>%s</h1><div class="updates">`, inc.title)
	for i := inc.updates; i > 0; i-- {
		fmt.Fprintf(&b, `<div class="row update-row">
			<div class="update-title">Update %d</div>
			<div class="update-body">Body of update %d.</div>
			<div class="update-timestamp">Mar %d, 10:0%d PST</div>
		</div>`, i, i, i, i)
	}
	b.WriteString(`</div>`)
	if inc.service != "" {
		fmt.Fprintf(&b, `<div class="components-affected font-small">%s</div>`, inc.service)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

type testDay struct {
	id      string
	fill    string
	tooltip string
}

// calendarPage renders an uptime calendar with one active cell per day.
func calendarPage(days ...testDay) string {
	var b strings.Builder
	b.WriteString(`<html><body>
		<div class="service-select">
			<div class="select-input__dropdown-indicator css-1xc3v61"><span>v</span></div>
			<div id="menu"></div>
		</div>
		<div class="pagination"><i class="left-arrow"></i></div>
		<div class="calendar">`)
	for _, d := range days {
		fmt.Fprintf(&b, `<svg class="day active" width="12" height="12"><rect fill="%s" data-day="%s" width="12" height="12"></rect></svg>`, d.fill, d.id)
	}
	b.WriteString(`</div><div id="tooltip"></div></body></html>`)
	return b.String()
}

func dataTooltip(date string, outages [][3]string, incidents ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="tooltip-content"><p class="date">%s</p>`, date)
	for _, o := range outages {
		fmt.Fprintf(&b, `<div class="outage-field major"><span class="label">%s</span><span class="value-hrs">%s</span><span class="value-mins">%s</span></div>`, o[0], o[1], o[2])
	}
	if len(incidents) > 0 {
		b.WriteString(`<ul id="related-events-list">`)
		for _, slug := range incidents {
			fmt.Fprintf(&b, `<li class="related-event"><a href="/incidents/%s">Incident %s</a></li>`, slug, slug)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func noDataTooltip(date string) string {
	return fmt.Sprintf(`<div class="tooltip-content"><p class="date">%s</p><div class="no-data-msg">No data exists for this day.</div></div>`, date)
}
