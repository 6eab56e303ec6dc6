package record

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"
)

// Impact is the severity class a status page assigns to an incident.
type Impact string

const (
	ImpactNone        Impact = "none"
	ImpactMinor       Impact = "minor"
	ImpactMajor       Impact = "major"
	ImpactCritical    Impact = "critical"
	ImpactMaintenance Impact = "maintenance"
)

// impactPrefix is how status pages spell the impact class token, e.g. "impact-major".
const impactPrefix = "impact-"

// ParseImpact converts a CSS class token into an Impact.
// Tokens outside the known set are kept verbatim; use Valid to check them.
func ParseImpact(token string) Impact {
	token = strings.ToLower(strings.TrimSpace(token))
	return Impact(strings.TrimPrefix(token, impactPrefix))
}

// Valid reports whether i is one of the known impact classes.
func (i Impact) Valid() bool {
	switch i {
	case ImpactNone, ImpactMinor, ImpactMajor, ImpactCritical, ImpactMaintenance:
		return true
	}
	return false
}

// Update is one entry of an incident's update timeline.
type Update struct {
	Title     string `json:"Update_Title"`
	Body      string `json:"Update_Body"`
	Timestamp string `json:"Update_Timestamp"` // as rendered, not normalized
}

// Incident is one incident opened from the history list.
type Incident struct {
	Title   string   `json:"title"`
	Link    string   `json:"link"`
	Color   string   `json:"color"`
	Impact  Impact   `json:"impact"`
	Updates []Update `json:"updates"` // most recent first, as rendered
	Service *string  `json:"service,omitempty"`
}

// ID returns a deterministic identifier for the incident based on its link,
// falling back to the title when the link is empty.
func (i *Incident) ID() string {
	key := i.Link
	if key == "" {
		key = "title|" + i.Title
	}
	h := sha1.New()
	h.Write([]byte(key))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ServiceLabel returns the affected-service label or "" when absent.
func (i *Incident) ServiceLabel() string {
	if i.Service == nil {
		return ""
	}
	return *i.Service
}

// Outage is one outage line of an uptime tooltip.
type Outage struct {
	Type            string `json:"Outage_Type"`
	DowntimeMinutes int    `json:"Downtime (min)"`
}

// IncidentRef is a cross-reference from a calendar day to an incident.
type IncidentRef struct {
	Title string `json:"Incident_Title"`
	Link  string `json:"Incident_Link"`
}

// UptimeDay is the tooltip content captured for one calendar day.
type UptimeDay struct {
	DateText  string        `json:"date"`
	Date      time.Time     `json:"day"` // zero when DateText is not recognized
	Outages   []Outage      `json:"outages"`
	Color     string        `json:"color"` // rendered fill, not decoded
	Incidents []IncidentRef `json:"incidents"`
	Service   string        `json:"service"`
}

// TotalDowntime sums the downtime of all outages of the day.
func (d *UptimeDay) TotalDowntime() int {
	total := 0
	for _, o := range d.Outages {
		total += o.DowntimeMinutes
	}
	return total
}
