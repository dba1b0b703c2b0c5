// Package source turns uploaded files into bunches of import rows.
//
// Every source checks the header row before yielding data: a file that
// lacks one of the required columns fails with ErrMissingColumns and no row
// is read. Extra columns are passed through and dropped later by the
// importer. Fully blank rows are skipped without consuming a row index.
package source

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// DefaultBunchSize is used when a non-positive bunch size is requested.
const DefaultBunchSize = 100

var (
	// ErrMissingColumns is returned when the header lacks a required column.
	ErrMissingColumns = errors.New("missing required column(s)")

	// ErrUnsupportedFormat is returned by Open for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyFile is returned when the input has no header row.
	ErrEmptyFile = errors.New("empty file")
)

// Open picks a source by file extension. Supported: .csv, .xlsx.
func Open(fileName string, r io.Reader, bunchSize int) (core.RowSource, error) {
	var (
		src core.RowSource
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv", ".txt":
		src, err = NewCSVSource(r, bunchSize)
	case ".xlsx":
		src, err = NewXLSXSource(r, bunchSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// header maps trimmed column names to their position.
type header map[string]int

// parseHeader indexes the header row and verifies the required columns.
// When a name repeats, the first occurrence wins.
func parseHeader(cells []string) (header, error) {
	h := make(header, len(cells))
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if _, dup := h[name]; !dup && name != "" {
			h[name] = i
		}
	}

	var missing []string
	for _, col := range core.Columns {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return h, nil
}

// row builds a core.Row from a record. Cells past the end of a short
// record are left absent.
func (h header) row(record []string) core.Row {
	row := make(core.Row, len(h))
	for name, i := range h {
		if i < len(record) {
			row[name] = strings.ToValidUTF8(record[i], "?")
		}
	}
	return row
}

func isBlank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func bunchSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultBunchSize
	}
	return n
}
