package record

import (
	"sort"
	"strconv"
	"time"
)

// DiffResult contains the results of comparing a capture against a previous archive.
type DiffResult struct {
	NewIncidents []*Incident
	Changes      []*Change
}

// Change represents a change detected in an incident between two captures.
type Change struct {
	IncidentID string    `json:"incident_id"`
	Link       string    `json:"link"`
	ChangeType string    `json:"change_type"` // "new", "title", "impact", "updates", "service"
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	DetectedAt time.Time `json:"detected_at"`
}

// Diff compares the current incidents against a previously archived set.
// Incidents are matched by ID (derived from the link).
func Diff(previous, current []*Incident) *DiffResult {
	result := &DiffResult{
		NewIncidents: make([]*Incident, 0),
		Changes:      make([]*Change, 0),
	}

	known := make(map[string]*Incident, len(previous))
	for _, inc := range previous {
		known[inc.ID()] = inc
	}

	for _, inc := range current {
		prev, exists := known[inc.ID()]
		if !exists {
			result.NewIncidents = append(result.NewIncidents, inc)
		}
		result.Changes = append(result.Changes, DetectChanges(prev, inc)...)
	}

	sort.SliceStable(result.NewIncidents, func(i, j int) bool {
		return result.NewIncidents[i].Link < result.NewIncidents[j].Link
	})

	return result
}

// DetectChanges compares two captures of one incident and returns detected changes
func DetectChanges(previous, current *Incident) []*Change {
	now := time.Now().UTC()
	change := func(kind, oldValue, newValue string) *Change {
		return &Change{
			IncidentID: current.ID(),
			Link:       current.Link,
			ChangeType: kind,
			OldValue:   oldValue,
			NewValue:   newValue,
			DetectedAt: now,
		}
	}

	if previous == nil {
		return []*Change{change("new", "", current.Title)}
	}

	var changes []*Change
	if previous.Title != current.Title {
		changes = append(changes, change("title", previous.Title, current.Title))
	}
	if previous.Impact != current.Impact {
		changes = append(changes, change("impact", string(previous.Impact), string(current.Impact)))
	}
	if len(previous.Updates) != len(current.Updates) {
		changes = append(changes, change("updates",
			strconv.Itoa(len(previous.Updates)), strconv.Itoa(len(current.Updates))))
	}
	if previous.ServiceLabel() != current.ServiceLabel() {
		changes = append(changes, change("service", previous.ServiceLabel(), current.ServiceLabel()))
	}

	return changes
}
