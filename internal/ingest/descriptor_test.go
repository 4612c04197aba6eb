package ingest

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantRecords []DescriptorRecord
		wantSkipped int
	}{
		{
			name:  "basic two rows",
			input: "sku,image name\nA1,photo\nB2,shoe\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
				{ProductID: "B2", ImageName: "shoe", SourceRow: 3},
			},
		},
		{
			name:  "quoted fields",
			input: "sku,image name\n\"A1\",\"photo\"\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
			},
		},
		{
			name:  "embedded comma inside quotes does not split",
			input: "sku,image name\n\"A,1\",\"red, blue shoe\"\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A,1", ImageName: "red, blue shoe", SourceRow: 2},
			},
		},
		{
			name:  "escaped quote inside quotes",
			input: "sku,image name\n\"A1\",\"say \"\"cheese\"\"\"\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: `say "cheese"`, SourceRow: 2},
			},
		},
		{
			name:  "lone quote in unquoted field is literal",
			input: "sku,image name\nA1,pho\"to\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: `pho"to`, SourceRow: 2},
			},
		},
		{
			name:  "CRLF line endings",
			input: "sku,image name\r\nA1,photo\r\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
			},
		},
		{
			name:  "blank lines dropped before header detection",
			input: "\n\nsku,image name\n\nA1,photo\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
			},
		},
		{
			name:  "header match is case-insensitive and trimmed",
			input: " SKU , Image Name \nA1,photo\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
			},
		},
		{
			name:  "extra columns ignored",
			input: "name,sku,price,image name\nWidget,A1,9.99,photo\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
			},
		},
		{
			name:        "short row skipped",
			input:       "sku,image name\nA1\nB2,shoe\n",
			wantRecords: []DescriptorRecord{{ProductID: "B2", ImageName: "shoe", SourceRow: 3}},
			wantSkipped: 1,
		},
		{
			name:        "empty product id skipped",
			input:       "sku,image name\n,photo\nB2,shoe\n",
			wantRecords: []DescriptorRecord{{ProductID: "B2", ImageName: "shoe", SourceRow: 3}},
			wantSkipped: 1,
		},
		{
			name:        "empty image name skipped",
			input:       "sku,image name\nA1,\"\"\nB2,shoe\n",
			wantRecords: []DescriptorRecord{{ProductID: "B2", ImageName: "shoe", SourceRow: 3}},
			wantSkipped: 1,
		},
		{
			name:  "duplicate pairs preserved",
			input: "sku,image name\nA1,photo\nA1,photo\n",
			wantRecords: []DescriptorRecord{
				{ProductID: "A1", ImageName: "photo", SourceRow: 2},
				{ProductID: "A1", ImageName: "photo", SourceRow: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDescriptor([]byte(tt.input), DescriptorOptions{})
			if err != nil {
				t.Fatalf("ParseDescriptor: %v", err)
			}

			if len(result.Records) != len(tt.wantRecords) {
				t.Fatalf("got %d records, want %d: %+v", len(result.Records), len(tt.wantRecords), result.Records)
			}
			for i, want := range tt.wantRecords {
				if result.Records[i] != want {
					t.Errorf("record %d = %+v, want %+v", i, result.Records[i], want)
				}
			}
			if result.SkippedRows != tt.wantSkipped {
				t.Errorf("SkippedRows = %d, want %d", result.SkippedRows, tt.wantSkipped)
			}
			if result.ProcessedRows != len(tt.wantRecords) {
				t.Errorf("ProcessedRows = %d, want %d", result.ProcessedRows, len(tt.wantRecords))
			}
		})
	}
}

func TestParseDescriptorMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"header only", "sku,image name\n"},
		{"blank lines only", "\n\n\n"},
		{"missing sku column", "id,image name\nA1,photo\n"},
		{"missing image column", "sku,picture\nA1,photo\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(tt.input), DescriptorOptions{})
			if !errors.Is(err, ErrMalformedDescriptor) {
				t.Fatalf("err = %v, want ErrMalformedDescriptor", err)
			}
		})
	}
}

func TestParseDescriptorCustomColumns(t *testing.T) {
	input := "article,picture\nA1,photo\n"
	result, err := ParseDescriptor([]byte(input), DescriptorOptions{
		ProductIDColumn: "article",
		ImageColumn:     "picture",
	})
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if result.ProductIDColumn != "article" || result.ImageColumn != "picture" {
		t.Errorf("resolved columns = %q/%q, want article/picture", result.ProductIDColumn, result.ImageColumn)
	}
	if len(result.Records) != 1 || result.Records[0].ProductID != "A1" {
		t.Fatalf("records = %+v", result.Records)
	}
}

func TestParseDescriptorInvalidUTF8(t *testing.T) {
	input := []byte("sku,image name\nA1,pho\x80to\n")
	result, err := ParseDescriptor(input, DescriptorOptions{})
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Records))
	}
	if !strings.Contains(result.Records[0].ImageName, "�") {
		t.Errorf("invalid byte not replaced: %q", result.Records[0].ImageName)
	}
}

func TestSplitDescriptorLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{`"a","b"`, []string{"a", "b"}},
		{`"a,b",c`, []string{"a,b", "c"}},
		{`"a""b",c`, []string{`a"b`, "c"}},
		{` a , b `, []string{"a", "b"}},
		{`a"b,c`, []string{`a"b`, "c"}},
		{`"",x`, []string{"", "x"}},
		{"", []string{""}},
		{"a,,c", []string{"a", "", "c"}},
		{` "quoted" ,x`, []string{"quoted", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := splitDescriptorLine(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("splitDescriptorLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("field %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
