package ingest

import (
	"errors"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// MaxImageSize is the admission cap for a single image body.
const MaxImageSize = 8 * 1024 * 1024

// Validation errors. Both are per-file: the file is rejected and counted,
// the run continues.
var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
)

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// ordinalSuffix matches a base name ending in "_<digits>"; the digits become
// the file's ordinal within its image family.
var ordinalSuffix = regexp.MustCompile(`^(.+)_(\d+)$`)

// ValidateImage decides whether a candidate file may enter the pool, using
// the default size cap.
func ValidateImage(in FileInput) error {
	return validateImage(in, MaxImageSize)
}

// validateImage applies the admission rules against a caller-chosen size cap.
func validateImage(in FileInput, maxSize int64) error {
	if _, ok := allowedMimeTypes[strings.ToLower(in.MimeType)]; !ok {
		return ErrUnsupportedType
	}
	if maxSize <= 0 {
		maxSize = MaxImageSize
	}
	if int64(len(in.Data)) > maxSize {
		return ErrFileTooLarge
	}
	return nil
}

// normalizeFile derives the matcher's fields from an accepted file. It is
// total for inputs that passed ValidateImage.
func normalizeFile(in FileInput, admitted int) *CandidateFile {
	base := strings.TrimSuffix(in.Name, path.Ext(in.Name))

	baseImage := base
	ordinal := 0
	if m := ordinalSuffix.FindStringSubmatch(base); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			baseImage = m[1]
			ordinal = n
		}
	}

	return &CandidateFile{
		DisplayName:   in.Name,
		LowerName:     strings.ToLower(in.Name),
		BaseName:      base,
		BaseImageName: baseImage,
		Ordinal:       ordinal,
		Size:          int64(len(in.Data)),
		MimeType:      strings.ToLower(in.MimeType),
		Data:          in.Data,
		admitted:      admitted,
	}
}
