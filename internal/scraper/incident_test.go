package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pfrederiksen/status-history/internal/logger"
	"github.com/pfrederiksen/status-history/internal/record"
	"github.com/pfrederiksen/status-history/internal/surface"
	"github.com/pfrederiksen/status-history/internal/surface/surfacetest"
)

var (
	apiErrors = testIncident{slug: "abc", title: "Elevated API errors", impact: "major", color: "rgb(230, 126, 34)", updates: 2, service: "API"}
	loginSlow = testIncident{slug: "def", title: "Slow logins", impact: "minor", color: "rgb(241, 196, 15)", updates: 1}
	dbUpgrade = testIncident{slug: "ghi", title: "Database upgrade", impact: "maintenance", color: "#3498db", updates: 3, service: "ChatGPT"}
)

// paginate makes the previous-page control render the next of pages.
func paginate(f *surfacetest.Fake, pages []string, clicks *int) {
	next := 1
	f.OnClick = func(f *surfacetest.Fake, n *surfacetest.Node) error {
		if !n.HasClass("left-arrow") {
			return nil
		}
		*clicks++
		if next < len(pages) {
			f.Render(pages[next])
			next++
		}
		return nil
	}
}

func openDetails(incidents ...testIncident) func(*surfacetest.Fake, *surfacetest.Node) (string, error) {
	return func(f *surfacetest.Fake, n *surfacetest.Node) (string, error) {
		href := n.Attr("href")
		for _, inc := range incidents {
			if strings.HasSuffix(href, "/"+inc.slug) {
				return detailPage(inc), nil
			}
		}
		return "", errors.New("no detail page for " + href)
	}
}

func TestIncidentExtractor_EmptyPage(t *testing.T) {
	ctx := context.Background()
	f := surfacetest.New(historyPage(""))
	archive := newMemArchive()
	e := NewIncidentExtractor(f, testConfig(), archive, quietLogger(), logger.NewMetrics())

	page, err := e.loopPage(ctx)
	if err != nil {
		t.Fatalf("loopPage() error = %v", err)
	}
	if !page.Terminal || len(page.Records) != 0 {
		t.Errorf("loopPage() = %d records, terminal %v; want empty and terminal", len(page.Records), page.Terminal)
	}

	summary, err := e.CollectThroughPagination(ctx)
	if err != nil {
		t.Fatalf("CollectThroughPagination() error = %v", err)
	}
	if summary.Pages != 1 || summary.Records != 0 {
		t.Errorf("summary = %d pages, %d records; want 1 page, 0 records", summary.Pages, summary.Records)
	}
	if f.Calls["Click"] != 0 {
		t.Errorf("clicked %d times on an empty page, want no pagination", f.Calls["Click"])
	}
	if len(archive.writes) != 0 {
		t.Errorf("archived %v for an empty page", archive.writes)
	}
}

func TestIncidentExtractor_CollectThroughPagination(t *testing.T) {
	ctx := context.Background()
	pages := []string{
		historyPage("March 2024", apiErrors, loginSlow),
		historyPage("December 2023", dbUpgrade),
		historyPage(""),
	}

	f := surfacetest.New(pages[0])
	root := f.Active()
	var clicks int
	paginate(f, pages, &clicks)
	f.OnOpen = openDetails(apiErrors, loginSlow, dbUpgrade)

	archive := newMemArchive()
	metrics := logger.NewMetrics()
	e := NewIncidentExtractor(f, testConfig(), archive, quietLogger(), metrics)

	summary, err := e.CollectThroughPagination(ctx)
	if err != nil {
		t.Fatalf("CollectThroughPagination() error = %v", err)
	}

	if summary.Pages != len(pages) {
		t.Errorf("visited %d pages, want %d", summary.Pages, len(pages))
	}
	if clicks != len(pages)-1 {
		t.Errorf("clicked previous %d times, want %d", clicks, len(pages)-1)
	}
	if summary.Records != 3 || summary.NewIncidents != 3 {
		t.Errorf("summary = %d records, %d new; want 3, 3", summary.Records, summary.NewIncidents)
	}
	if got := metrics.Counter("incidents.records"); got != 3 {
		t.Errorf("incidents.records = %d, want 3", got)
	}
	if got, ok := metrics.GetSnapshot().Gauges["incidents.page_entries"]; !ok || got != 0 {
		t.Errorf("incidents.page_entries = %v (set %v), want 0 for the last, empty page", got, ok)
	}

	wantWrites := []string{
		"incident/incident_history_202401_202403.csv",
		"incident/incident_history_202310_202312.csv",
	}
	if diff := cmp.Diff(wantWrites, archive.writes); diff != "" {
		t.Errorf("archive writes mismatch (-want +got):\n%s", diff)
	}

	api := "API"
	want := []*record.Incident{
		{
			Title:  "Elevated API errors",
			Link:   "https://status.openai.com/incidents/abc",
			Color:  "#e67e22",
			Impact: record.ImpactMajor,
			Updates: []record.Update{
				{Title: "Update 2", Body: "Body of update 2.", Timestamp: "Mar 2, 10:02 PST"},
				{Title: "Update 1", Body: "Body of update 1.", Timestamp: "Mar 1, 10:01 PST"},
			},
			Service: &api,
		},
		{
			Title:   "Slow logins",
			Link:    "https://status.openai.com/incidents/def",
			Color:   "#f1c40f",
			Impact:  record.ImpactMinor,
			Updates: []record.Update{{Title: "Update 1", Body: "Body of update 1.", Timestamp: "Mar 1, 10:01 PST"}},
		},
	}
	if diff := cmp.Diff(want, archive.incidents[wantWrites[0]]); diff != "" {
		t.Errorf("March incidents mismatch (-want +got):\n%s", diff)
	}

	if f.LastModifier != surface.PlatformModifier() {
		t.Errorf("opened details with %v, want %v", f.LastModifier, surface.PlatformModifier())
	}
	if open := f.Open(); len(open) != 1 || f.Active() != root {
		t.Errorf("left contexts %v active %q, want only %q", open, f.Active(), root)
	}
}

func TestIncidentExtractor_ReportsNewIncidents(t *testing.T) {
	ctx := context.Background()
	f := surfacetest.New(historyPage("March 2024", apiErrors, loginSlow))
	f.OnOpen = openDetails(apiErrors, loginSlow)
	f.OnClick = func(f *surfacetest.Fake, n *surfacetest.Node) error {
		f.Render(historyPage(""))
		return nil
	}

	archive := newMemArchive()
	archive.incidents["incident/incident_history_202401_202403.csv"] = []*record.Incident{
		{Title: "Elevated API errors", Link: "https://status.openai.com/incidents/abc"},
	}
	e := NewIncidentExtractor(f, testConfig(), archive, quietLogger(), logger.NewMetrics())

	summary, err := e.CollectThroughPagination(ctx)
	if err != nil {
		t.Fatalf("CollectThroughPagination() error = %v", err)
	}
	if summary.NewIncidents != 1 {
		t.Errorf("NewIncidents = %d, want 1", summary.NewIncidents)
	}
	if len(archive.incidents["incident/incident_history_202401_202403.csv"]) != 2 {
		t.Error("partition should be overwritten with the full page")
	}
}

func TestIncidentExtractor_ExpandsCollapsedIncidents(t *testing.T) {
	ctx := context.Background()
	html := strings.Replace(historyPage("March 2024", apiErrors),
		`</div></div></body>`,
		`</div><div class="expand-incidents" aria-expanded="false">Show all</div><div class="collapsed"></div></div></body>`, 1)

	f := surfacetest.New(html)
	f.OnOpen = openDetails(apiErrors, loginSlow)
	f.OnClick = func(f *surfacetest.Fake, n *surfacetest.Node) error {
		if n.HasClass("expand-incidents") {
			n.Sel.SetAttr("aria-expanded", "true")
			f.Patch("div.collapsed", `<a class="impact-minor incident-title" href="/incidents/def">Slow logins</a>`)
		}
		return nil
	}

	e := NewIncidentExtractor(f, testConfig(), newMemArchive(), quietLogger(), logger.NewMetrics())
	page, err := e.loopPage(ctx)
	if err != nil {
		t.Fatalf("loopPage() error = %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("got %d incidents, want the collapsed one too", len(page.Records))
	}
	if page.Records[1].Title != "Slow logins" {
		t.Errorf("second incident = %q, want Slow logins", page.Records[1].Title)
	}
}

func TestIncidentExtractor_RestartsPageAfterRerender(t *testing.T) {
	ctx := context.Background()
	html := historyPage("March 2024", apiErrors, loginSlow)
	f := surfacetest.New(html)
	root := f.Active()

	opens := 0
	details := openDetails(apiErrors, loginSlow)
	f.OnOpen = func(f *surfacetest.Fake, n *surfacetest.Node) (string, error) {
		opens++
		if opens == 1 {
			// The list re-renders while the first detail is open.
			f.Render(html)
		}
		return details(f, n)
	}

	e := NewIncidentExtractor(f, testConfig(), newMemArchive(), quietLogger(), logger.NewMetrics())
	page, err := Retry(ctx, e.retrier, "incidents page 1", e.loopPage)
	if err != nil {
		t.Fatalf("traversal error = %v", err)
	}

	if len(page.Records) != 2 {
		t.Errorf("got %d incidents, want 2 without duplicates", len(page.Records))
	}
	if opens != 3 {
		t.Errorf("opened %d details, want 3 (1 stale attempt + 2)", opens)
	}
	if open := f.Open(); len(open) != 1 || f.Active() != root {
		t.Errorf("left contexts %v active %q, want only %q", open, f.Active(), root)
	}
}

func TestIncidentExtractor_SkipsIncidentWithoutDetail(t *testing.T) {
	ctx := context.Background()
	f := surfacetest.New(historyPage("March 2024", apiErrors, loginSlow))
	f.OnOpen = openDetails(apiErrors, loginSlow)
	// The first detail never opens.
	f.FailNext("WaitContexts", surface.ErrTimeout)

	e := NewIncidentExtractor(f, testConfig(), newMemArchive(), quietLogger(), logger.NewMetrics())
	page, err := e.loopPage(ctx)
	if err != nil {
		t.Fatalf("loopPage() error = %v", err)
	}
	if len(page.Records) != 1 || page.Records[0].Title != "Slow logins" {
		t.Errorf("got %v, want only the second incident", page.Records)
	}
	if page.Terminal {
		t.Error("a skipped incident must not end the history")
	}
}

func TestIncidentExtractor_FailedPageStopsWithoutTerminating(t *testing.T) {
	ctx := context.Background()
	f := surfacetest.New(historyPage("March 2024", apiErrors))
	f.OnOpen = openDetails(apiErrors)
	boom := errors.New("renderer crashed")
	f.FailNext("ComputedStyle", boom)

	archive := newMemArchive()
	e := NewIncidentExtractor(f, testConfig(), archive, quietLogger(), logger.NewMetrics())

	summary, err := e.CollectThroughPagination(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("CollectThroughPagination() error = %v, want %v", err, boom)
	}
	if len(archive.writes) != 0 || f.Calls["Click"] != 0 {
		t.Errorf("failed page was archived (%v) or paginated (%d clicks)", archive.writes, f.Calls["Click"])
	}
	if summary.Pages != 1 {
		t.Errorf("Pages = %d, want 1", summary.Pages)
	}
}

func TestIncidentExtractor_AlwaysStaleStops(t *testing.T) {
	ctx := context.Background()
	f := surfacetest.New(historyPage("March 2024", apiErrors))
	f.OnOpen = openDetails(apiErrors)
	f.FailNext("Text", surface.ErrStale, surface.ErrStale, surface.ErrStale, surface.ErrStale, surface.ErrStale)

	archive := newMemArchive()
	e := NewIncidentExtractor(f, testConfig(), archive, quietLogger(), logger.NewMetrics())

	summary, err := e.CollectThroughPagination(ctx)
	if err != nil {
		t.Fatalf("CollectThroughPagination() error = %v", err)
	}
	if !summary.Exhausted {
		t.Error("Exhausted = false, want true")
	}
	if summary.Pages != 1 || f.Calls["Click"] != 0 {
		t.Errorf("summary = %d pages, %d clicks; want to stop on the first page", summary.Pages, f.Calls["Click"])
	}
	if len(archive.writes) != 0 {
		t.Errorf("archived %v after exhaustion", archive.writes)
	}
}
