// Package storage archives captured records into time-partitioned tables.
//
// An Archive writes one table per partition under its data directory:
//
//	incident/<source>/incident_history_<YYYYMM>_<YYYYMM>.<ext>   (two-month window of the displayed month)
//	uptime/<YYYY-MM-DD>/<service>/uptime_history.<ext>          (execution date and service)
//
// Tables have one header row and one row per record; nested sequences
// (incident updates, outages, related incidents) are JSON-encoded into a
// single cell. Tables are written as CSV or XLSX. Writing a partition
// replaces any file already there; partitions are never merged.
package storage
