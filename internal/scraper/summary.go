package scraper

import (
	"time"
)

// Archived describes one partition file written during a run.
type Archived struct {
	Path    string `json:"path"`
	Label   string `json:"label"` // month label or service
	Records int    `json:"records"`
}

// Summary reports what one extraction run did.
type Summary struct {
	Kind         string        `json:"kind"`              // "incidents" or "uptime"
	Service      string        `json:"service,omitempty"` // uptime only
	Pages        int           `json:"pages"`
	Records      int           `json:"records"`
	NewIncidents int           `json:"new_incidents,omitempty"`
	Skipped      int           `json:"skipped,omitempty"`
	Exhausted    bool          `json:"exhausted,omitempty"` // stopped after a page kept going stale
	Archives     []Archived    `json:"archives"`
	Duration     time.Duration `json:"duration"`
}
