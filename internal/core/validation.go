package core

// validation.go provides row-level validation before a row is applied.
//
// Every required column is checked and each missing value records its own
// error kind, so a row missing three fields carries three errors. Results
// are memoized by row index for the lifetime of the validator (one run):
// validating the same index twice never records duplicate errors.

import "sync"

// requiredField pairs a required column with the error raised when it is missing.
type requiredField struct {
	column string
	kind   ErrorKind
}

// requiredFields lists the checks in the order errors are recorded.
var requiredFields = []requiredField{
	{ColumnSKU, ErrSkuIsRequired},
	{ColumnPrice, ErrPriceIsRequired},
	{ColumnQty, ErrQtyIsRequired},
	{ColumnVisibility, ErrVisibilityIsRequired},
	{ColumnCategory, ErrCategoryIsRequired},
}

// RowValidator checks required fields and records failures in an ErrorAggregator.
type RowValidator struct {
	errs *ErrorAggregator

	mu        sync.Mutex
	validated map[int]struct{}
}

// NewRowValidator creates a validator that reports into errs.
func NewRowValidator(errs *ErrorAggregator) *RowValidator {
	return &RowValidator{
		errs:      errs,
		validated: make(map[int]struct{}),
	}
}

// Validate reports whether the row is eligible for upsert. A value is
// missing when the column is absent or blank; "0" is a value.
func (v *RowValidator) Validate(sr SourceRow) bool {
	v.mu.Lock()
	_, seen := v.validated[sr.Index]
	v.validated[sr.Index] = struct{}{}
	v.mu.Unlock()

	if seen {
		return !v.errs.IsRowInvalid(sr.Index)
	}

	line := sr.LineNumber()
	for _, f := range requiredFields {
		if sr.Row.Get(f.column) == "" {
			v.errs.AddRowError(f.kind, sr.Index, line, f.column)
		}
	}

	return !v.errs.IsRowInvalid(sr.Index)
}
