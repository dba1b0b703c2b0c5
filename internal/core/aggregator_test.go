package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorAggregator_Accumulates(t *testing.T) {
	a := NewErrorAggregator(StrategySkipErrors, 0)

	a.AddRowError(ErrQtyIsRequired, 5, 9, "")
	a.AddRowError(ErrSkuIsRequired, 2, 4, ColumnSKU)
	a.AddRowError(ErrPriceIsRequired, 5, 9, "")

	assert.Equal(t, 3, a.ErrorsCount())
	assert.True(t, a.IsRowInvalid(5))
	assert.False(t, a.IsRowInvalid(3))

	got := a.Errors()
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].RowIndex)
	assert.Equal(t, "line 4: sku: The sku is required", got[0].Error())
	// Same row keeps recording order.
	assert.Equal(t, ErrQtyIsRequired, got[1].Kind)
	assert.Equal(t, ErrPriceIsRequired, got[2].Kind)
	assert.Equal(t, "line 9: The price is required", got[2].Error())

	assert.Equal(t, map[ErrorKind]int{ErrQtyIsRequired: 1, ErrSkuIsRequired: 1, ErrPriceIsRequired: 1}, a.ErrorsByKind())
}

func TestErrorAggregator_Termination(t *testing.T) {
	tests := []struct {
		name     string
		strategy ValidationStrategy
		allowed  int
		errors   int
		want     bool
	}{
		{"skip errors never terminates", StrategySkipErrors, 1, 10, false},
		{"stop below threshold", StrategyStopOnError, 3, 2, false},
		{"stop at threshold", StrategyStopOnError, 3, 3, true},
		{"stop with zero allowed needs one error", StrategyStopOnError, 0, 0, false},
		{"stop with zero allowed", StrategyStopOnError, 0, 1, true},
		{"negative allowed is zero", StrategyStopOnError, -5, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewErrorAggregator(tt.strategy, tt.allowed)
			for i := 0; i < tt.errors; i++ {
				a.AddRowError(ErrSkuIsRequired, i, i+2, "")
			}
			assert.Equal(t, tt.want, a.HasToBeTerminated())
		})
	}
}

func TestErrorAggregator_SkipIsNotAnError(t *testing.T) {
	a := NewErrorAggregator(StrategyStopOnError, 1)
	a.AddRowToSkip(9)
	a.AddRowToSkip(4)

	assert.False(t, a.IsRowInvalid(9))
	assert.Zero(t, a.ErrorsCount())
	assert.Equal(t, []int{4, 9}, a.SkippedRows())
}

func TestErrorAggregator_Messages(t *testing.T) {
	a := NewErrorAggregator("", 0)
	a.AddRowError(ErrSkuIsRequired, 0, 2, "")
	a.AddRowError(ErrorKind("Custom"), 1, 3, "")

	got := a.Errors()
	assert.Equal(t, "The sku is required", got[0].Message)
	assert.Equal(t, "Custom", got[1].Message)
}

func TestErrorAggregator_Concurrent(t *testing.T) {
	a := NewErrorAggregator(StrategySkipErrors, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.AddRowError(ErrQtyIsRequired, i, i+2, "")
			_ = a.IsRowInvalid(i)
			_ = a.HasToBeTerminated()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, a.ErrorsCount())
	for i := 0; i < 50; i++ {
		assert.True(t, a.IsRowInvalid(i))
	}
}

func TestParseValidationStrategy(t *testing.T) {
	got, err := ParseValidationStrategy(" Stop-On-Error ")
	require.NoError(t, err)
	assert.Equal(t, StrategyStopOnError, got)

	_, err = ParseValidationStrategy("halt")
	assert.Error(t, err)
}
