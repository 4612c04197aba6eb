package ingest

// descriptor_xlsx.go reads the catalog descriptor from an Excel workbook.
// Catalog teams commonly export descriptors as .xlsx instead of CSV; the
// first sheet is treated as the descriptor, with the same column rules and
// row accounting as the CSV path.

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseDescriptorXLSX reads a descriptor from the first sheet of an .xlsx
// workbook. Cell values are used as displayed; blank rows are dropped before
// header detection, mirroring the CSV path.
func ParseDescriptorXLSX(data []byte, opts DescriptorOptions) (*DescriptorResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedDescriptor)
	}

	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrMalformedDescriptor, sheets[0], err)
	}

	var rows [][]string
	for _, row := range raw {
		if isBlankRow(row) {
			continue
		}
		trimmed := make([]string, len(row))
		for i, cell := range row {
			trimmed[i] = strings.TrimSpace(cell)
		}
		rows = append(rows, trimmed)
	}

	return buildDescriptorResult(rows, opts)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
