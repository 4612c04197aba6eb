package ingest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParseDescriptorXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"sku", "image name"},
		{"A1", "photo"},
		{"", ""},
		{"B2", "shoe"},
	})

	result, err := ParseDescriptorXLSX(data, DescriptorOptions{})
	if err != nil {
		t.Fatalf("ParseDescriptorXLSX: %v", err)
	}

	want := []DescriptorRecord{
		{ProductID: "A1", ImageName: "photo", SourceRow: 2},
		{ProductID: "B2", ImageName: "shoe", SourceRow: 3},
	}
	if len(result.Records) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(result.Records), len(want), result.Records)
	}
	for i := range want {
		if result.Records[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, result.Records[i], want[i])
		}
	}
}

func TestParseDescriptorXLSXParityWithCSV(t *testing.T) {
	csvResult, err := ParseDescriptor([]byte("sku,image name\nA1,photo\nB2,shoe\n"), DescriptorOptions{})
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}

	xlsxResult, err := ParseDescriptorXLSX(buildWorkbook(t, [][]any{
		{"sku", "image name"},
		{"A1", "photo"},
		{"B2", "shoe"},
	}), DescriptorOptions{})
	if err != nil {
		t.Fatalf("ParseDescriptorXLSX: %v", err)
	}

	if len(csvResult.Records) != len(xlsxResult.Records) {
		t.Fatalf("record counts differ: csv %d, xlsx %d", len(csvResult.Records), len(xlsxResult.Records))
	}
	for i := range csvResult.Records {
		if csvResult.Records[i] != xlsxResult.Records[i] {
			t.Errorf("record %d differs: csv %+v, xlsx %+v", i, csvResult.Records[i], xlsxResult.Records[i])
		}
	}
}

func TestParseDescriptorXLSXMalformed(t *testing.T) {
	t.Run("not a workbook", func(t *testing.T) {
		_, err := ParseDescriptorXLSX([]byte("not an xlsx file"), DescriptorOptions{})
		if !errors.Is(err, ErrMalformedDescriptor) {
			t.Fatalf("err = %v, want ErrMalformedDescriptor", err)
		}
	})

	t.Run("missing column", func(t *testing.T) {
		data := buildWorkbook(t, [][]any{
			{"id", "image name"},
			{"A1", "photo"},
		})
		_, err := ParseDescriptorXLSX(data, DescriptorOptions{})
		if !errors.Is(err, ErrMalformedDescriptor) {
			t.Fatalf("err = %v, want ErrMalformedDescriptor", err)
		}
	})
}
