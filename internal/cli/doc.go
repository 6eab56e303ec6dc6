// Package cli implements the command-line interface for status-history.
//
// The cli package provides the Cobra-based CLI with an incidents command and an
// uptime command. Both load the configuration, start one browser session, drive the
// matching scraper through the status page's history and print a summary of the
// archive files written (text table or JSON, optionally sorted).
package cli
