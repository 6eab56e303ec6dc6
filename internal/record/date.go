package record

import (
	"fmt"
	"strings"
	"time"
)

// ParseMonthLabel parses a month heading such as "January 2024".
func ParseMonthLabel(label string) (time.Time, error) {
	label = strings.Join(strings.Fields(label), " ")
	t, err := time.Parse("January 2006", label)
	if err != nil {
		// Some pages abbreviate the month.
		if t2, err2 := time.Parse("Jan 2006", label); err2 == nil {
			return t2, nil
		}
		return time.Time{}, fmt.Errorf("parsing month label %q: %w", label, err)
	}
	return t, nil
}

// MonthWindow returns the partition window for a displayed month: the month
// two months earlier and the month itself, both formatted as YYYYMM.
func MonthWindow(month time.Time) (start, end string) {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -2, 0).Format("200601"), first.Format("200601")
}

// ParseDayLabel attempts to parse a calendar tooltip date into a time.Time.
// Returns time.Time{} (zero value) if parsing fails.
// Supports formats: "2 Jan 2024", "02 Jan 2024", "Jan 2, 2024", "January 2, 2024", "2024-01-02"
func ParseDayLabel(label string) time.Time {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return time.Time{}
	}

	layouts := []string{
		"2 Jan 2006",
		"02 Jan 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 January 2006",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t
		}
	}

	return time.Time{}
}
