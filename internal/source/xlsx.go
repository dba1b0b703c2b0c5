package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// XLSXSource streams the first worksheet of a spreadsheet.
type XLSXSource struct {
	file      *excelize.File
	rows      *excelize.Rows
	header    header
	bunchSize int
	next      int
	line      int // sheet row of the last Next, 1-based
	done      bool
}

// NewXLSXSource opens the workbook and checks the header row of its first
// sheet. Call Close when done.
func NewXLSXSource(r io.Reader, bunchSize int) (*XLSXSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	s, err := newXLSXSource(f, bunchSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newXLSXSource(f *excelize.File, bunchSize int) (*XLSXSource, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	s := &XLSXSource{
		file:      f,
		rows:      rows,
		bunchSize: bunchSizeOrDefault(bunchSize),
	}

	for {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, fmt.Errorf("read header: %w", err)
			}
			return nil, ErrEmptyFile
		}
		s.line++
		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if isBlank(cells) {
			continue
		}
		if s.header, err = parseHeader(cells); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// NextBunch implements core.RowSource.
func (s *XLSXSource) NextBunch(ctx context.Context) ([]core.SourceRow, error) {
	if s.done {
		return nil, io.EOF
	}

	bunch := make([]core.SourceRow, 0, s.bunchSize)
	for len(bunch) < s.bunchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.rows.Next() {
			s.done = true
			if err := s.rows.Error(); err != nil {
				return nil, fmt.Errorf("parse error at row %d: %w", s.next, err)
			}
			break
		}
		s.line++

		cells, err := s.rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("parse error at row %d: %w", s.next, err)
		}
		if isBlank(cells) {
			continue
		}

		bunch = append(bunch, core.SourceRow{Index: s.next, Line: s.line, Row: s.header.row(cells)})
		s.next++
	}

	if len(bunch) == 0 {
		return nil, io.EOF
	}
	return bunch, nil
}

// Close releases the workbook.
func (s *XLSXSource) Close() error {
	return errors.Join(s.rows.Close(), s.file.Close())
}
