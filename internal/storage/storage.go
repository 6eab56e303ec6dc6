package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/pfrederiksen/status-history/internal/record"
)

var (
	incidentHeader = []string{"Incident_Title", "Incident_Link", "Incident_color", "Incident_Impact", "Updates", "Service"}
	uptimeHeader   = []string{"Date", "Outages", "Outage_Color", "Incidents", "Service"}
)

// Archive handles persistence of captured records
type Archive struct {
	dataDir string
	source  string
	format  Format
	now     func() time.Time
}

// New creates a new Archive rooted at dataDir for the named status page.
func New(dataDir, source string, format Format) (*Archive, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	if format == "" {
		format = FormatCSV
	}

	return &Archive{
		dataDir: dataDir,
		source:  pathSegment(source),
		format:  format,
		now:     time.Now,
	}, nil
}

// SetClock replaces the clock that dates uptime partitions.
func (a *Archive) SetClock(now func() time.Time) {
	a.now = now
}

// Dir returns the root data directory.
func (a *Archive) Dir() string {
	return a.dataDir
}

func pathSegment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(s)
}

// IncidentPath returns the partition file for incidents displayed under month.
func (a *Archive) IncidentPath(month time.Time) string {
	start, end := record.MonthWindow(month)
	name := fmt.Sprintf("incident_history_%s_%s.%s", start, end, a.format)
	return filepath.Join(a.dataDir, "incident", a.source, name)
}

// UptimePath returns the partition file for a service's uptime captured today.
func (a *Archive) UptimePath(service string) string {
	day := a.now().Format("2006-01-02")
	return filepath.Join(a.dataDir, "uptime", day, pathSegment(service), "uptime_history."+string(a.format))
}

func encodeCell(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteIncidents writes the incidents of one history page to its partition.
func (a *Archive) WriteIncidents(month time.Time, incidents []*record.Incident) (string, error) {
	t := &table{sheet: "incidents", header: incidentHeader}
	for _, inc := range incidents {
		updates := inc.Updates
		if updates == nil {
			updates = []record.Update{}
		}
		cell, err := encodeCell(updates)
		if err != nil {
			return "", fmt.Errorf("encoding updates of %s: %w", inc.Link, err)
		}
		t.rows = append(t.rows, []string{
			inc.Title,
			inc.Link,
			inc.Color,
			string(inc.Impact),
			cell,
			inc.ServiceLabel(),
		})
	}

	path := a.IncidentPath(month)
	if err := writeTable(path, a.format, t); err != nil {
		return "", fmt.Errorf("archiving incidents: %w", err)
	}
	return path, nil
}

// WriteUptime writes all uptime days captured for service to today's partition.
func (a *Archive) WriteUptime(service string, days []*record.UptimeDay) (string, error) {
	t := &table{sheet: "uptime", header: uptimeHeader}
	for _, d := range days {
		outages := d.Outages
		if outages == nil {
			outages = []record.Outage{}
		}
		refs := d.Incidents
		if refs == nil {
			refs = []record.IncidentRef{}
		}

		outageCell, err := encodeCell(outages)
		if err != nil {
			return "", fmt.Errorf("encoding outages of %s: %w", d.DateText, err)
		}
		refCell, err := encodeCell(refs)
		if err != nil {
			return "", fmt.Errorf("encoding incidents of %s: %w", d.DateText, err)
		}
		t.rows = append(t.rows, []string{d.DateText, outageCell, d.Color, refCell, d.Service})
	}

	path := a.UptimePath(service)
	if err := writeTable(path, a.format, t); err != nil {
		return "", fmt.Errorf("archiving uptime: %w", err)
	}
	return path, nil
}

// LoadIncidents reads back the incidents archived for month.
// A partition that was never written yields an empty slice.
func (a *Archive) LoadIncidents(month time.Time) ([]*record.Incident, error) {
	path := a.IncidentPath(month)
	t, err := readTable(path, a.format, "incidents")
	if err != nil {
		return nil, err
	}
	if t == nil {
		return []*record.Incident{}, nil
	}

	col := make(map[string]int, len(t.header))
	for i, name := range t.header {
		col[name] = i
	}
	for _, name := range incidentHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}

	cell := func(row []string, name string) string {
		if i := col[name]; i < len(row) {
			return row[i]
		}
		return ""
	}

	incidents := make([]*record.Incident, 0, len(t.rows))
	for n, row := range t.rows {
		inc := &record.Incident{
			Title:  cell(row, "Incident_Title"),
			Link:   cell(row, "Incident_Link"),
			Color:  cell(row, "Incident_color"),
			Impact: record.Impact(cell(row, "Incident_Impact")),
		}
		if raw := cell(row, "Updates"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &inc.Updates); err != nil {
				return nil, fmt.Errorf("%s row %d: decoding updates: %w", path, n+2, err)
			}
		}
		if svc := cell(row, "Service"); svc != "" {
			inc.Service = &svc
		}
		incidents = append(incidents, inc)
	}

	return incidents, nil
}

// Size returns the size in bytes of an archived file.
func Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
