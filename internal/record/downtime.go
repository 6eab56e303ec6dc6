package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed marks a captured value that could not be parsed.
var ErrMalformed = errors.New("malformed record")

// leadingCount parses the leading whitespace-separated token of text
// (e.g. "2 hrs") as a non-negative integer.
func leadingCount(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty count", ErrMalformed)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%w: count %q is not an integer", ErrMalformed, fields[0])
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: count %d is negative", ErrMalformed, n)
	}
	return n, nil
}

// ParseDowntime computes downtime in minutes from the rendered hours and
// minutes fields of an outage, e.g. ("1 hrs", "25 mins") -> 85.
func ParseDowntime(hoursText, minutesText string) (int, error) {
	hours, err := leadingCount(hoursText)
	if err != nil {
		return 0, fmt.Errorf("hours: %w", err)
	}
	minutes, err := leadingCount(minutesText)
	if err != nil {
		return 0, fmt.Errorf("minutes: %w", err)
	}
	return hours*60 + minutes, nil
}
