// Package record provides the data model captured from a status page.
//
// The record package holds incident records with their update timelines and
// uptime calendar day records with outage and related-incident summaries. It
// also normalizes the rendered values the scrapers read (CSS colors, impact
// class tokens, downtime fields, month and day labels) and compares an
// incident capture against a previously archived one.
package record
