// Package scraper drives a status page through a surface.Surface and turns
// what it renders into records.
//
// IncidentExtractor walks the incident history: for every list entry it
// opens the incident in a second browsing context, captures its update
// timeline and affected service, and archives each history page under the
// page's displayed month. UptimeExtractor walks the uptime calendar of one
// service, hovering every active day and reading its tooltip, and archives
// everything it collected once the calendar runs out of data.
//
// Both extractors paginate backwards with the page's "previous" control and
// retry a page from scratch when the page re-renders under them (see Retrier).
package scraper
