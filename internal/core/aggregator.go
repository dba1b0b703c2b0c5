package core

// aggregator.go accumulates per-row errors for a single import run.
//
// Errors are collected, never first-error-wins, so one pass over a file
// reports every reason a row failed. The aggregator also owns the
// termination policy: with the stop-on-error strategy, once the number of
// recorded errors reaches the allowed count the pipeline stops accepting
// rows and marks the rest as skipped.

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrorKind identifies a validation failure. The string values are part of
// the external contract and must not change.
type ErrorKind string

const (
	ErrSkuIsRequired        ErrorKind = "SkuIsRequired"
	ErrPriceIsRequired      ErrorKind = "PriceIsRequired"
	ErrQtyIsRequired        ErrorKind = "QtyIsRequired"
	ErrVisibilityIsRequired ErrorKind = "VisibilityIsRequired"
	ErrCategoryIsRequired   ErrorKind = "CategoryIsRequired"
)

// defaultMessageTemplates maps each error kind to its operator-facing message.
var defaultMessageTemplates = map[ErrorKind]string{
	ErrSkuIsRequired:        "The sku is required",
	ErrPriceIsRequired:      "The price is required",
	ErrQtyIsRequired:        "The qty is required",
	ErrVisibilityIsRequired: "The visibility is required",
	ErrCategoryIsRequired:   "The category is required",
}

// ValidationStrategy decides whether accumulated errors stop the run.
type ValidationStrategy string

const (
	StrategySkipErrors  ValidationStrategy = "skip-errors"
	StrategyStopOnError ValidationStrategy = "stop-on-error"
)

// ParseValidationStrategy converts a configuration string into a strategy.
func ParseValidationStrategy(s string) (ValidationStrategy, error) {
	switch v := ValidationStrategy(strings.ToLower(strings.TrimSpace(s))); v {
	case StrategySkipErrors, StrategyStopOnError:
		return v, nil
	default:
		return "", fmt.Errorf("unknown validation strategy: %q", s)
	}
}

// RowError is one recorded error against one row.
type RowError struct {
	Kind       ErrorKind `json:"kind"`
	RowIndex   int       `json:"rowIndex"`
	LineNumber int       `json:"lineNumber"`
	Column     string    `json:"column,omitempty"`
	Message    string    `json:"message"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("line %d: %s: %s", e.LineNumber, e.Column, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.LineNumber, e.Message)
}

// ErrorAggregator collects row errors and answers termination queries.
// It is safe for concurrent use.
type ErrorAggregator struct {
	strategy      ValidationStrategy
	allowedErrors int

	mu      sync.RWMutex
	errors  []RowError
	invalid map[int]struct{}
	skipped map[int]struct{}
}

// NewErrorAggregator creates an aggregator with the given termination policy.
// A negative allowedErrors is treated as zero.
func NewErrorAggregator(strategy ValidationStrategy, allowedErrors int) *ErrorAggregator {
	if strategy == "" {
		strategy = StrategySkipErrors
	}
	if allowedErrors < 0 {
		allowedErrors = 0
	}
	return &ErrorAggregator{
		strategy:      strategy,
		allowedErrors: allowedErrors,
		invalid:       make(map[int]struct{}),
		skipped:       make(map[int]struct{}),
	}
}

// AddRowError records an error of the given kind against a row. line is the
// file line reported to operators; column may be empty.
func (a *ErrorAggregator) AddRowError(kind ErrorKind, rowIndex, line int, column string) {
	msg, ok := defaultMessageTemplates[kind]
	if !ok {
		msg = string(kind)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.errors = append(a.errors, RowError{
		Kind:       kind,
		RowIndex:   rowIndex,
		LineNumber: line,
		Column:     column,
		Message:    msg,
	})
	a.invalid[rowIndex] = struct{}{}
}

// IsRowInvalid reports whether at least one error was recorded for rowIndex.
func (a *ErrorAggregator) IsRowInvalid(rowIndex int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.invalid[rowIndex]
	return ok
}

// HasToBeTerminated reports whether the run should stop accepting rows.
func (a *ErrorAggregator) HasToBeTerminated() bool {
	if a.strategy != StrategyStopOnError {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.errors) > 0 && len(a.errors) >= a.allowedErrors
}

// AddRowToSkip marks a row as excluded from processing. Skipping is not an error.
func (a *ErrorAggregator) AddRowToSkip(rowIndex int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped[rowIndex] = struct{}{}
}

// ErrorsCount returns the total number of recorded errors.
func (a *ErrorAggregator) ErrorsCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.errors)
}

// Errors returns a copy of all errors ordered by row index, then by
// the order they were recorded.
func (a *ErrorAggregator) Errors() []RowError {
	a.mu.RLock()
	out := make([]RowError, len(a.errors))
	copy(out, a.errors)
	a.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RowIndex < out[j].RowIndex
	})
	return out
}

// ErrorsByKind returns how many errors of each kind were recorded.
func (a *ErrorAggregator) ErrorsByKind() map[ErrorKind]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[ErrorKind]int)
	for _, e := range a.errors {
		out[e.Kind]++
	}
	return out
}

// SkippedRows returns the sorted indices of rows marked to skip, or nil.
func (a *ErrorAggregator) SkippedRows() []int {
	a.mu.RLock()
	if len(a.skipped) == 0 {
		a.mu.RUnlock()
		return nil
	}
	out := make([]int, 0, len(a.skipped))
	for idx := range a.skipped {
		out = append(out, idx)
	}
	a.mu.RUnlock()

	sort.Ints(out)
	return out
}
