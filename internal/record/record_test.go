package record

import (
	"testing"
)

func TestParseImpact(t *testing.T) {
	tests := []struct {
		token     string
		want      Impact
		wantValid bool
	}{
		{"impact-major", ImpactMajor, true},
		{"impact-none", ImpactNone, true},
		{" Impact-Critical ", ImpactCritical, true},
		{"maintenance", ImpactMaintenance, true},
		{"impact-unknown", Impact("unknown"), false},
		{"", Impact(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got := ParseImpact(tt.token)
			if got != tt.want {
				t.Errorf("ParseImpact(%q) = %q, want %q", tt.token, got, tt.want)
			}
			if got.Valid() != tt.wantValid {
				t.Errorf("%q.Valid() = %v, want %v", got, got.Valid(), tt.wantValid)
			}
		})
	}
}

func TestIncident_ID(t *testing.T) {
	a := &Incident{Title: "Elevated errors", Link: "https://status.openai.com/incidents/abc"}
	b := &Incident{Title: "Elevated errors (resolved)", Link: "https://status.openai.com/incidents/abc"}
	c := &Incident{Title: "Elevated errors", Link: "https://status.openai.com/incidents/def"}

	if a.ID() != b.ID() {
		t.Error("ID should depend on the link only")
	}
	if a.ID() == c.ID() {
		t.Error("different links should produce different IDs")
	}
	if len(a.ID()) != 40 { // SHA1 produces 40 hex characters
		t.Errorf("expected ID length of 40, got %d", len(a.ID()))
	}

	noLink := &Incident{Title: "Elevated errors"}
	if noLink.ID() == "" || noLink.ID() == a.ID() {
		t.Errorf("ID without link = %q, want a distinct title-based ID", noLink.ID())
	}
}

func TestIncident_ServiceLabel(t *testing.T) {
	svc := "ChatGPT"
	if got := (&Incident{Service: &svc}).ServiceLabel(); got != "ChatGPT" {
		t.Errorf("ServiceLabel() = %q, want ChatGPT", got)
	}
	if got := (&Incident{}).ServiceLabel(); got != "" {
		t.Errorf("ServiceLabel() = %q, want empty", got)
	}
}

func TestUptimeDay_TotalDowntime(t *testing.T) {
	day := &UptimeDay{Outages: []Outage{
		{Type: "Partial outage", DowntimeMinutes: 85},
		{Type: "Major outage", DowntimeMinutes: 12},
	}}
	if got := day.TotalDowntime(); got != 97 {
		t.Errorf("TotalDowntime() = %d, want 97", got)
	}
	if got := (&UptimeDay{}).TotalDowntime(); got != 0 {
		t.Errorf("TotalDowntime() of empty day = %d, want 0", got)
	}
}

func TestColorHex(t *testing.T) {
	tests := []struct {
		css     string
		want    string
		wantErr bool
	}{
		{"rgb(230, 126, 34)", "#e67e22", false},
		{"rgba(52, 152, 219, 0.5)", "#3498db", false},
		{"RGB(0,0,0)", "#000000", false},
		{"#FFF", "#ffffff", false},
		{"#2ecc71", "#2ecc71", false},
		{"rgb(256, 0, 0)", "", true},
		{"rgb(1, 2)", "", true},
		{"#12345", "", true},
		{"#gggggg", "", true},
		{"orange", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.css, func(t *testing.T) {
			got, err := ColorHex(tt.css)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ColorHex(%q) error = %v, wantErr %v", tt.css, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ColorHex(%q) = %q, want %q", tt.css, got, tt.want)
			}
		})
	}
}
