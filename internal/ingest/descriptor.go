package ingest

// descriptor.go parses the catalog descriptor: a UTF-8, comma-separated file
// whose header names a product identifier column and an image name column.
//
// The splitter is quote-aware rather than encoding/csv because the descriptor
// format is looser than RFC 4180: a lone '"' inside an unquoted field is
// literal, fields are trimmed after unquoting, and short rows are skipped
// (not errors). Rows with an empty product ID or image name are counted as
// skipped and dropped; duplicate (productId, imageName) pairs are preserved.

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default descriptor column names, matched case-insensitively after trimming.
const (
	DefaultProductIDColumn = "sku"
	DefaultImageColumn     = "image name"
)

// ErrMalformedDescriptor indicates the descriptor cannot be processed at all:
// fewer than two non-empty lines, or a required column is missing. It aborts
// the run; all other descriptor problems are per-row and surface as counts.
var ErrMalformedDescriptor = errors.New("malformed descriptor")

// ParseDescriptor reads a CSV descriptor from data and returns its usable
// records in file order.
func ParseDescriptor(data []byte, opts DescriptorOptions) (*DescriptorResult, error) {
	data = sanitizeUTF8(data)

	var rows [][]string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitDescriptorLine(line))
	}

	return buildDescriptorResult(rows, opts)
}

// buildDescriptorResult resolves the required columns in the header row and
// converts the remaining rows into records. Shared by the CSV and XLSX paths.
func buildDescriptorResult(rows [][]string, opts DescriptorOptions) (*DescriptorResult, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need a header and at least one data row", ErrMalformedDescriptor)
	}

	idColumn := opts.ProductIDColumn
	if idColumn == "" {
		idColumn = DefaultProductIDColumn
	}
	imageColumn := opts.ImageColumn
	if imageColumn == "" {
		imageColumn = DefaultImageColumn
	}

	header := rows[0]
	idIdx := findColumn(header, idColumn)
	if idIdx < 0 {
		return nil, fmt.Errorf("%w: missing column %q", ErrMalformedDescriptor, idColumn)
	}
	imageIdx := findColumn(header, imageColumn)
	if imageIdx < 0 {
		return nil, fmt.Errorf("%w: missing column %q", ErrMalformedDescriptor, imageColumn)
	}

	minFields := idIdx
	if imageIdx > minFields {
		minFields = imageIdx
	}
	minFields++

	result := &DescriptorResult{
		Headers:         header,
		ProductIDColumn: header[idIdx],
		ImageColumn:     header[imageIdx],
	}

	for i, row := range rows[1:] {
		if len(row) < minFields {
			result.SkippedRows++
			continue
		}

		productID := strings.TrimSpace(row[idIdx])
		imageName := strings.TrimSpace(row[imageIdx])
		if productID == "" || imageName == "" {
			result.SkippedRows++
			continue
		}

		result.Records = append(result.Records, DescriptorRecord{
			ProductID: productID,
			ImageName: imageName,
			SourceRow: i + 2,
		})
		result.ProcessedRows++
	}

	return result, nil
}

// findColumn locates a header column by case-insensitive name, ignoring
// surrounding whitespace. Returns -1 when absent.
func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

// splitDescriptorLine tokenizes one descriptor line. A '"' at the start of a
// field opens a quoted section in which commas are literal and '""' yields a
// literal quote; a '"' anywhere else in an unquoted field is kept as-is.
// Field values are trimmed after unquoting.
func splitDescriptorLine(line string) []string {
	var fields []string
	var b strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes:
			if i+1 < len(line) && line[i+1] == '"' {
				b.WriteByte('"')
				i++
			} else {
				inQuotes = false
			}

		case c == '"' && strings.TrimSpace(b.String()) == "":
			// Opening quote: discard any whitespace collected before it.
			b.Reset()
			inQuotes = true

		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(b.String()))
			b.Reset()

		default:
			b.WriteByte(c)
		}
	}
	fields = append(fields, strings.TrimSpace(b.String()))

	return fields
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the Unicode replacement
// character so downstream string handling never sees broken runes.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
