package source

import (
	"context"
	"io"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// SliceSource serves rows that are already in memory. Rows are indexed in
// slice order starting at zero.
type SliceSource struct {
	rows      []core.Row
	bunchSize int
	pos       int
}

// NewSliceSource returns a source over rows. No header check is done.
func NewSliceSource(rows []core.Row, bunchSize int) *SliceSource {
	return &SliceSource{rows: rows, bunchSize: bunchSizeOrDefault(bunchSize)}
}

// NextBunch implements core.RowSource.
func (s *SliceSource) NextBunch(ctx context.Context) ([]core.SourceRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}

	end := min(s.pos+s.bunchSize, len(s.rows))
	bunch := make([]core.SourceRow, 0, end-s.pos)
	for i := s.pos; i < end; i++ {
		bunch = append(bunch, core.SourceRow{Index: i, Row: s.rows[i]})
	}
	s.pos = end
	return bunch, nil
}
