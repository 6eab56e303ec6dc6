// Package config loads the read-only configuration shared by the scrapers.
//
// A Config carries the target URLs, the output layout, the service list of
// the uptime calendar, per-call timeouts and the CSS selectors of every
// element the scrapers touch. Default returns values for status.openai.com.
// Load reads a json5 file over the defaults and "<name>.local.<ext>" over
// that, so a file only needs the fields it changes. Override applies
// command-line values on top.
package config
