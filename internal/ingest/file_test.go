package ingest

import (
	"bytes"
	"errors"
	"testing"
)

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name    string
		input   FileInput
		wantErr error
	}{
		{
			name:  "jpeg accepted",
			input: FileInput{Name: "photo.jpg", MimeType: "image/jpeg", Data: []byte("x")},
		},
		{
			name:  "webp accepted",
			input: FileInput{Name: "photo.webp", MimeType: "image/webp", Data: []byte("x")},
		},
		{
			name:  "mime type case-insensitive",
			input: FileInput{Name: "photo.png", MimeType: "IMAGE/PNG", Data: []byte("x")},
		},
		{
			name:    "pdf rejected",
			input:   FileInput{Name: "doc.pdf", MimeType: "application/pdf", Data: []byte("x")},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "svg rejected",
			input:   FileInput{Name: "logo.svg", MimeType: "image/svg+xml", Data: []byte("x")},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "oversized rejected",
			input:   FileInput{Name: "big.jpg", MimeType: "image/jpeg", Data: bytes.Repeat([]byte("a"), MaxImageSize+1)},
			wantErr: ErrFileTooLarge,
		},
		{
			name:  "exactly at limit accepted",
			input: FileInput{Name: "edge.jpg", MimeType: "image/jpeg", Data: bytes.Repeat([]byte("a"), MaxImageSize)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateImage() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeFile(t *testing.T) {
	tests := []struct {
		name          string
		fileName      string
		wantBase      string
		wantBaseImage string
		wantOrdinal   int
	}{
		{"plain name", "photo.jpg", "photo", "photo", 0},
		{"numbered sibling", "shoe_1.jpg", "shoe_1", "shoe", 1},
		{"double digit ordinal", "shoe_12.png", "shoe_12", "shoe", 12},
		{"underscore without digits", "red_shoe.jpg", "red_shoe", "red_shoe", 0},
		{"digits not at end", "shoe_1_final.jpg", "shoe_1_final", "shoe_1_final", 0},
		{"no extension", "photo", "photo", "photo", 0},
		{"multiple dots strips last extension only", "photo.large.jpg", "photo.large", "photo.large", 0},
		{"trailing underscore digits inside base", "img_2024_3.jpg", "img_2024_3", "img_2024", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := normalizeFile(FileInput{Name: tt.fileName, MimeType: "image/jpeg", Data: []byte("x")}, 7)

			if f.BaseName != tt.wantBase {
				t.Errorf("BaseName = %q, want %q", f.BaseName, tt.wantBase)
			}
			if f.BaseImageName != tt.wantBaseImage {
				t.Errorf("BaseImageName = %q, want %q", f.BaseImageName, tt.wantBaseImage)
			}
			if f.Ordinal != tt.wantOrdinal {
				t.Errorf("Ordinal = %d, want %d", f.Ordinal, tt.wantOrdinal)
			}
			if f.admitted != 7 {
				t.Errorf("admitted = %d, want 7", f.admitted)
			}
			if f.DisplayName != tt.fileName {
				t.Errorf("DisplayName = %q, want %q", f.DisplayName, tt.fileName)
			}
		})
	}
}
