package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/skuimport/internal/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSource streams a comma-separated file. Memory use is bounded by the
// bunch size, not the file size.
type CSVSource struct {
	reader    *csv.Reader
	header    header
	bunchSize int
	next      int
	done      bool
}

// NewCSVSource reads and checks the header row. A leading UTF-8 byte order
// mark is skipped.
func NewCSVSource(r io.Reader, bunchSize int) (*CSVSource, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == string(utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("skip byte order mark: %w", err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h, err := parseHeader(first)
	if err != nil {
		return nil, err
	}

	return &CSVSource{
		reader:    cr,
		header:    h,
		bunchSize: bunchSizeOrDefault(bunchSize),
	}, nil
}

// NextBunch implements core.RowSource.
func (s *CSVSource) NextBunch(ctx context.Context) ([]core.SourceRow, error) {
	if s.done {
		return nil, io.EOF
	}

	bunch := make([]core.SourceRow, 0, s.bunchSize)
	for len(bunch) < s.bunchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			s.done = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse error at row %d: %w", s.next, err)
		}
		if isBlank(record) {
			continue
		}

		line, _ := s.reader.FieldPos(0)
		bunch = append(bunch, core.SourceRow{Index: s.next, Line: line, Row: s.header.row(record)})
		s.next++
	}

	if len(bunch) == 0 {
		return nil, io.EOF
	}
	return bunch, nil
}
