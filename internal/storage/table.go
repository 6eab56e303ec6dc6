package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pfrederiksen/status-history/internal/logger"
)

// Format selects the file format of archived tables.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown archive format %q (must be csv or xlsx)", s)
}

// table is a header row plus data rows of string cells.
type table struct {
	sheet  string
	header []string
	rows   [][]string
}

func excelPos(x, y int) string {
	pos, err := excelize.CoordinatesToCellName(x+1, y+1)
	if err != nil {
		panic(err)
	}
	return pos
}

// writeTable writes t to path, replacing the file atomically.
func writeTable(path string, format Format, t *table) error {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating partition directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck

	switch format {
	case FormatXLSX:
		err = writeXLSX(tmp, t)
	default:
		err = writeCSV(tmp, t)
	}
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if err != nil {
		tmp.Close() // nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	logger.IncrCounter("archive.writes")
	logger.RecordTiming("archive.write", time.Since(start))
	logger.Debug("Wrote archive partition", logger.Fields{
		"path":   path,
		"format": string(format),
		"rows":   len(t.rows),
	})
	return nil
}

func writeCSV(f *os.File, t *table) error {
	w := csv.NewWriter(f)
	if err := w.Write(t.header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := w.WriteAll(t.rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

func writeXLSX(f *os.File, t *table) error {
	xlsx := excelize.NewFile()
	defer xlsx.Close() // nolint:errcheck

	if err := xlsx.SetSheetName("Sheet1", t.sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	xlsx.SetAppProps(&excelize.AppProperties{Application: "status-history"}) // nolint:errcheck

	for x, name := range t.header {
		if err := xlsx.SetCellStr(t.sheet, excelPos(x, 0), name); err != nil {
			return fmt.Errorf("writing xlsx header: %w", err)
		}
	}
	for y, row := range t.rows {
		for x, cell := range row {
			if err := xlsx.SetCellStr(t.sheet, excelPos(x, y+1), cell); err != nil {
				return fmt.Errorf("writing xlsx row %d: %w", y+1, err)
			}
		}
	}

	if len(t.header) > 0 {
		xlsx.AutoFilter(t.sheet, "A1:"+excelPos(len(t.header)-1, 0), nil) // nolint:errcheck
	}

	if err := xlsx.Write(f); err != nil {
		return fmt.Errorf("writing xlsx: %w", err)
	}
	return nil
}

// readTable reads a table written by writeTable. A missing file yields nil.
func readTable(path string, format Format, sheet string) (*table, error) {
	var rows [][]string

	switch format {
	case FormatXLSX:
		xlsx, err := excelize.OpenFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer xlsx.Close() // nolint:errcheck
		rows, err = xlsx.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close() // nolint:errcheck
		rows, err = csv.NewReader(f).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if len(rows) == 0 {
		return &table{sheet: sheet}, nil
	}
	return &table{sheet: sheet, header: rows[0], rows: rows[1:]}, nil
}
