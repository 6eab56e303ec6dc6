package record

import (
	"fmt"
	"strconv"
	"strings"
)

// ColorHex converts a rendered CSS color ("rgb(r, g, b)", "rgba(r, g, b, a)",
// "#rgb" or "#rrggbb") into a lowercase "#rrggbb" string. Alpha is dropped.
func ColorHex(css string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(css))

	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return "", fmt.Errorf("invalid hex color %q", css)
		}
		if _, err := strconv.ParseUint(hex, 16, 32); err != nil {
			return "", fmt.Errorf("invalid hex color %q", css)
		}
		return "#" + hex, nil
	}

	var args string
	switch {
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		args = s[len("rgba(") : len(s)-1]
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		args = s[len("rgb(") : len(s)-1]
	default:
		return "", fmt.Errorf("unsupported color %q", css)
	}

	parts := strings.Split(args, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return "", fmt.Errorf("invalid color %q", css)
	}

	var rgb [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return "", fmt.Errorf("invalid color component %q in %q", parts[i], css)
		}
		rgb[i] = v
	}

	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2]), nil
}
