package cli

import (
	"sort"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByPath    SortOrder = "path"
	SortByRecords SortOrder = "records"
)

// sortArchives sorts archive rows based on the specified sort order.
// An empty order keeps the order the files were written in.
func sortArchives(rows []ArchiveRow, sortOrder SortOrder) {
	switch sortOrder {
	case SortByPath:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Path < rows[j].Path
		})
	case SortByRecords:
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Records != rows[j].Records {
				return rows[i].Records > rows[j].Records
			}
			// If counts are equal, sort by path
			return rows[i].Path < rows[j].Path
		})
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
