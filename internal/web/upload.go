package web

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/skuimport/internal/core"
	"github.com/JonMunkholm/skuimport/internal/source"
)

// errSpool marks failures copying the upload, as opposed to problems with
// its content.
var errSpool = errors.New("spool upload")

// spooledSource is a row source over a temp copy of an uploaded file. The
// upload itself is released when the request ends but the run keeps reading
// in the background, so the file is copied first and removed on Close.
type spooledSource struct {
	core.RowSource
	file *os.File
}

// openSpooled copies r into a temp file and opens a row source over it.
func openSpooled(fileName string, r io.Reader, bunchSize int) (*spooledSource, error) {
	f, err := os.CreateTemp("", "skuimport-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", errSpool, err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}

	if _, err := io.Copy(f, r); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: copy: %w", errSpool, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: rewind: %w", errSpool, err)
	}

	src, err := source.Open(fileName, f, bunchSize)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &spooledSource{RowSource: src, file: f}, nil
}

// Close releases the inner source and deletes the temp file.
func (s *spooledSource) Close() error {
	var errs []error
	if c, ok := s.RowSource.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.file.Close(), os.Remove(s.file.Name()))
	return errors.Join(errs...)
}
