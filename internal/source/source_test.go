package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// drain reads every bunch and returns them in order.
func drain(t *testing.T, src core.RowSource) [][]core.SourceRow {
	t.Helper()
	var out [][]core.SourceRow
	for {
		bunch, err := src.NextBunch(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, bunch)
	}
}

func TestCSVSource_Bunches(t *testing.T) {
	input := "sku,price,qty,value,category,extra\n" +
		"A1,1.00,1,Catalog,Shoes,x\n" +
		"A2,2.00,0,Search,Hats,y\n" +
		"\n" +
		"A3,3.00,5,Catalog,Shoes,z\n"

	src, err := NewCSVSource(strings.NewReader(input), 2)
	require.NoError(t, err)

	bunches := drain(t, src)
	require.Len(t, bunches, 2)
	assert.Len(t, bunches[0], 2)
	assert.Len(t, bunches[1], 1)

	assert.Equal(t, 0, bunches[0][0].Index)
	assert.Equal(t, "A1", bunches[0][0].Row.Get("sku"))
	assert.Equal(t, "x", bunches[0][0].Row.Get("extra"))
	assert.Equal(t, 2, bunches[1][0].Index)
	assert.Equal(t, "A3", bunches[1][0].Row.Get("sku"))

	_, err = src.NextBunch(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestCSVSource_LineNumbers(t *testing.T) {
	input := "sku,price,qty,value,category\n" + // line 1
		"\n" + // line 2
		"A1,1.00,1,Catalog,Shoes\n" + // line 3
		"\n" + // line 4
		",2.00,0,Search,Hats\n" + // line 5
		"A3,3.00,5,\"Catalog,\nSearch\",Shoes\n" + // lines 6-7
		"A4,4.00,5,Catalog,Shoes\n" // line 8

	src, err := NewCSVSource(strings.NewReader(input), 10)
	require.NoError(t, err)

	bunches := drain(t, src)
	require.Len(t, bunches, 1)
	require.Len(t, bunches[0], 4)

	var lines, indexes []int
	for _, sr := range bunches[0] {
		lines = append(lines, sr.LineNumber())
		indexes = append(indexes, sr.Index)
	}
	assert.Equal(t, []int{3, 5, 6, 8}, lines)
	assert.Equal(t, []int{0, 1, 2, 3}, indexes)
	assert.Equal(t, "Catalog,\nSearch", bunches[0][2].Row.Get(core.ColumnVisibility))
}

func TestCSVSource_BOMAndPaddedHeader(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte(" sku , price,qty,value,category\nA1,1,1,Catalog,Shoes\n")...)

	src, err := NewCSVSource(bytes.NewReader(input), 10)
	require.NoError(t, err)

	bunches := drain(t, src)
	require.Len(t, bunches, 1)
	assert.Equal(t, "A1", bunches[0][0].Row.Get(core.ColumnSKU))
	assert.Equal(t, "1", bunches[0][0].Row.Get(core.ColumnPrice))
}

func TestCSVSource_ShortRecordLeavesColumnsAbsent(t *testing.T) {
	input := "sku,price,qty,value,category\nA1,1.00\n"

	src, err := NewCSVSource(strings.NewReader(input), 10)
	require.NoError(t, err)

	bunches := drain(t, src)
	require.Len(t, bunches, 1)
	row := bunches[0][0].Row
	assert.True(t, row.Has(core.ColumnPrice))
	assert.False(t, row.Has(core.ColumnQty))
}

func TestCSVSource_InvalidUTF8Replaced(t *testing.T) {
	input := []byte("sku,price,qty,value,category\nA\xff1,1,1,Catalog,Shoes\n")

	src, err := NewCSVSource(bytes.NewReader(input), 10)
	require.NoError(t, err)

	bunches := drain(t, src)
	assert.Equal(t, "A?1", bunches[0][0].Row.Get(core.ColumnSKU))
}

func TestCSVSource_HeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty input", "", ErrEmptyFile},
		{"missing qty and category", "sku,price,value\nA1,1,Catalog\n", ErrMissingColumns},
		{"case sensitive names", "SKU,price,qty,value,category\n", ErrMissingColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVSource(strings.NewReader(tt.input), 10)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseHeader_NamesMissingColumns(t *testing.T) {
	_, err := parseHeader([]string{"sku", "price", "value"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qty, category")
}

func TestXLSXSource(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]any{
		{"sku", "price", "qty", "value", "category"},
		{"A1", "19.99", "0", "Catalog", "Shoes"},
		{},
		{"A2", "5", "3", "Catalog, Search", "Hats"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	src, err := NewXLSXSource(buf, 10)
	require.NoError(t, err)
	defer src.Close()

	bunches := drain(t, src)
	require.Len(t, bunches, 1)
	require.Len(t, bunches[0], 2)
	assert.Equal(t, "A1", bunches[0][0].Row.Get(core.ColumnSKU))
	assert.Equal(t, "19.99", bunches[0][0].Row.Get(core.ColumnPrice))
	assert.Equal(t, 1, bunches[0][1].Index)
	assert.Equal(t, "Catalog, Search", bunches[0][1].Row.Get(core.ColumnVisibility))
	// The empty sheet row still counts toward the reported line.
	assert.Equal(t, 2, bunches[0][0].LineNumber())
	assert.Equal(t, 4, bunches[0][1].LineNumber())
}

func TestOpen(t *testing.T) {
	csvInput := "sku,price,qty,value,category\nA1,1,1,Catalog,Shoes\n"

	src, err := Open("prices.CSV", strings.NewReader(csvInput), 0)
	require.NoError(t, err)
	assert.IsType(t, &CSVSource{}, src)

	_, err = Open("prices.pdf", strings.NewReader(csvInput), 0)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSliceSource(t *testing.T) {
	rows := []core.Row{{"sku": "A"}, {"sku": "B"}, {"sku": "C"}}
	src := NewSliceSource(rows, 2)

	bunches := drain(t, src)
	require.Len(t, bunches, 2)
	assert.Equal(t, 2, bunches[1][0].Index)
	assert.Equal(t, "C", bunches[1][0].Row.Get("sku"))
	assert.Equal(t, 4, bunches[1][0].LineNumber())
}
