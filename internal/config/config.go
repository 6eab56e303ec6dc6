package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Duration is a time.Duration read from strings such as "5s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"'`)
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Timeouts bounds every blocking interaction with the page.
type Timeouts struct {
	// List bounds the wait for incident list entries.
	List Duration `json:"list"`
	// Element bounds waits for update rows, calendar cells, dropdowns and new tabs.
	Element Duration `json:"element"`
	// Tooltip bounds the wait for a calendar tooltip after hovering.
	Tooltip Duration `json:"tooltip"`
	// Settle is slept after clicks that re-render the page.
	Settle Duration `json:"settle"`
	// RetryDelay separates attempts of a page traversal.
	RetryDelay Duration `json:"retry_delay"`
	// Operation bounds every single browser call.
	Operation Duration `json:"operation"`
}

// IncidentSelectors locate the elements of the incident history view.
type IncidentSelectors struct {
	Entry           string `json:"entry"`
	MonthTitle      string `json:"month_title"`
	Previous        string `json:"previous"`
	ShowAll         string `json:"show_all"`
	UpdateRow       string `json:"update_row"`
	UpdateTitle     string `json:"update_title"`
	UpdateBody      string `json:"update_body"`
	UpdateTimestamp string `json:"update_timestamp"`
	Service         string `json:"service"`
}

// UptimeSelectors locate the elements of the uptime calendar view.
type UptimeSelectors struct {
	DayCell         string `json:"day_cell"`
	Tooltip         string `json:"tooltip"`
	TooltipDate     string `json:"tooltip_date"`
	NoData          string `json:"no_data"`
	Outage          string `json:"outage"`
	OutageLabel     string `json:"outage_label"`
	OutageHours     string `json:"outage_hours"`
	OutageMinutes   string `json:"outage_minutes"`
	RelatedIncident string `json:"related_incident"`
	Previous        string `json:"previous"`
	ServiceDropdown string `json:"service_dropdown"`
	ServiceMenu     string `json:"service_menu"`
	ServiceOption   string `json:"service_option"`
}

// Config is the read-only configuration handed to each scraper.
type Config struct {
	// Source names the status page in archive paths, e.g. "openai".
	Source         string   `json:"source"`
	HistoryURL     string   `json:"history_url"`
	UptimeURL      string   `json:"uptime_url"`
	DataDir        string   `json:"data_dir"`
	Format         string   `json:"format"`
	Services       []string `json:"services"`
	DefaultService string   `json:"default_service"`
	Headless       *bool    `json:"headless"`
	ChromePath     string   `json:"chrome_path"`
	LogFile        string   `json:"log_file"`
	LogLevel       string   `json:"log_level"`

	Timeouts Timeouts          `json:"timeouts"`
	Incident IncidentSelectors `json:"incident_selectors"`
	Uptime   UptimeSelectors   `json:"uptime_selectors"`
}

// Default returns the configuration for status.openai.com.
func Default() Config {
	headless := true
	previous := "div.pagination i.left-arrow"

	return Config{
		Source:         "openai",
		HistoryURL:     "https://status.openai.com/history/",
		UptimeURL:      "https://status.openai.com/uptime/",
		DataDir:        "data/raw",
		Format:         FormatCSV,
		Services:       []string{"api", "chatgpt", "labs", "playground"},
		DefaultService: "api",
		Headless:       &headless,
		LogLevel:       "info",
		Timeouts: Timeouts{
			List:       Duration(5 * time.Second),
			Element:    Duration(10 * time.Second),
			Tooltip:    Duration(10 * time.Second),
			Settle:     Duration(time.Second),
			RetryDelay: Duration(500 * time.Millisecond),
			Operation:  Duration(10 * time.Second),
		},
		Incident: IncidentSelectors{
			Entry:           "a.incident-title",
			MonthTitle:      "h4.month-title",
			Previous:        previous,
			ShowAll:         `div.expand-incidents[aria-expanded="false"]`,
			UpdateRow:       "div.row.update-row",
			UpdateTitle:     "div.update-title",
			UpdateBody:      "div.update-body",
			UpdateTimestamp: "div.update-timestamp",
			Service:         "div.components-affected",
		},
		Uptime: UptimeSelectors{
			DayCell:         "svg.day.active > rect",
			Tooltip:         "div.tooltip-content",
			TooltipDate:     "p.date",
			NoData:          "div.no-data-msg",
			Outage:          "div.outage-field",
			OutageLabel:     "span.label",
			OutageHours:     "span.value-hrs",
			OutageMinutes:   "span.value-mins",
			RelatedIncident: "ul#related-events-list > li.related-event a",
			Previous:        previous,
			ServiceDropdown: `div[class*="select-input__dropdown-indicator"] span`,
			ServiceMenu:     `div[class*="select-input__menu-list"]`,
			ServiceOption:   `div[class*="select-input__option"]`,
		},
	}
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

// LocalPath returns the override file read next to path,
// e.g. "config.json5" -> "config.local.json5".
func LocalPath(path string) string {
	prefix, ext := splitExt(path)
	if ext == "" {
		return prefix + ".local"
	}
	return fmt.Sprintf("%s.local.%s", prefix, ext)
}

func readFile(path string, out *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading config %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json5.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return true, nil
}

// Load reads the configuration at path over Default, then the local override
// file over that. Keys absent from a file keep their previous value; keys
// present replace it, zero values included. An empty path or missing files
// yield the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := readFile(path, &cfg); err != nil {
		return cfg, err
	}
	if _, err := readFile(LocalPath(path), &cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()

	return cfg, cfg.Validate()
}

// Override replaces the fields of c that are set in overlay, as command-line
// flags do. Empty strings, empty lists and zero durations in overlay count as
// unset. A non-nil Headless always applies.
func (c *Config) Override(overlay Config) error {
	if overlay.Headless != nil {
		headless := *overlay.Headless
		c.Headless = &headless
		overlay.Headless = nil
	}
	if err := mergo.Merge(c, overlay, mergo.WithOverride); err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}
	c.normalize()
	return nil
}

func (c *Config) normalize() {
	for i, s := range c.Services {
		c.Services[i] = strings.ToLower(strings.TrimSpace(s))
	}
	c.DefaultService = strings.ToLower(strings.TrimSpace(c.DefaultService))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
}

// HasService reports whether name is one of the configured services.
func (c *Config) HasService(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range c.Services {
		if s == name {
			return true
		}
	}
	return false
}

// IsHeadless reports whether the browser runs without a window.
func (c *Config) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// Validate checks that every required field is set.
func (c *Config) Validate() error {
	required := map[string]string{
		"source":                            c.Source,
		"history_url":                       c.HistoryURL,
		"uptime_url":                        c.UptimeURL,
		"data_dir":                          c.DataDir,
		"incident_selectors.entry":          c.Incident.Entry,
		"incident_selectors.month_title":    c.Incident.MonthTitle,
		"incident_selectors.previous":       c.Incident.Previous,
		"incident_selectors.update_row":     c.Incident.UpdateRow,
		"uptime_selectors.day_cell":         c.Uptime.DayCell,
		"uptime_selectors.tooltip":          c.Uptime.Tooltip,
		"uptime_selectors.previous":         c.Uptime.Previous,
		"uptime_selectors.service_dropdown": c.Uptime.ServiceDropdown,
		"uptime_selectors.service_menu":     c.Uptime.ServiceMenu,
		"uptime_selectors.service_option":   c.Uptime.ServiceOption,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s is required", name)
		}
	}

	if c.Format != FormatCSV && c.Format != FormatXLSX {
		return fmt.Errorf("config: invalid format %q (must be %q or %q)", c.Format, FormatCSV, FormatXLSX)
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("config: at least one service is required")
	}
	if !c.HasService(c.DefaultService) {
		return fmt.Errorf("config: default service %q is not in services %v", c.DefaultService, c.Services)
	}
	return nil
}
