// Package ingest implements the bulk product media pipeline: descriptor
// parsing, image admission, descriptor-to-file matching, and the throttled
// upload loop against the product media sink.
//
// The package has no HTTP or database dependencies and holds no process-global
// state; all matching state lives for the duration of a single Match call.
package ingest

import (
	"context"
	"encoding/json"
	"time"
)

// DescriptorRecord is one usable row of the catalog descriptor: a product
// identifier paired with the logical name of its image family.
type DescriptorRecord struct {
	ProductID string `json:"productId"`
	ImageName string `json:"imageName"`
	// SourceRow is the 1-based row number in the descriptor (the header is
	// row 1, so the first data row is 2), counted over non-empty rows.
	SourceRow int `json:"sourceRow"`
}

// DescriptorOptions overrides the recognized descriptor column names.
// Zero values fall back to DefaultProductIDColumn / DefaultImageColumn.
type DescriptorOptions struct {
	ProductIDColumn string
	ImageColumn     string
}

// DescriptorResult is the output of parsing a descriptor file.
type DescriptorResult struct {
	Records         []DescriptorRecord `json:"records"`
	Headers         []string           `json:"headers"`
	ProductIDColumn string             `json:"productIdColumn"`
	ImageColumn     string             `json:"imageColumn"`
	ProcessedRows   int                `json:"processedRows"`
	SkippedRows     int                `json:"skippedRows"`
}

// FileInput is a candidate image as received from the caller.
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// CandidateFile is an admitted image with the derived fields the matcher
// keys on. Ordinal is the N extracted from a trailing "_N" on the base name,
// or 0 when the suffix is absent.
type CandidateFile struct {
	DisplayName   string `json:"displayName"`
	LowerName     string `json:"-"`
	BaseName      string `json:"baseName"`
	BaseImageName string `json:"baseImageName"`
	Ordinal       int    `json:"ordinal"`
	Size          int64  `json:"size"`
	MimeType      string `json:"mimeType"`
	Data          []byte `json:"-"`

	// admission index, FIFO over accepted files; stable sort tiebreaker
	admitted int
}

// RejectReason classifies why a candidate file was refused admission.
type RejectReason string

const (
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectFileTooLarge    RejectReason = "file_too_large"
)

// RejectedFile records a file that failed validation.
type RejectedFile struct {
	Name     string       `json:"name"`
	MimeType string       `json:"mimeType"`
	Size     int64        `json:"size"`
	Reason   RejectReason `json:"reason"`
}

// AddReport summarizes one AddFiles call.
type AddReport struct {
	Admitted int            `json:"admitted"`
	Rejected []RejectedFile `json:"rejected,omitempty"`
}

// Assignment is a committed binding of one admitted file to one product at
// one position. Position values for a product are contiguous from 0, and the
// position-0 assignment is the product's main image.
type Assignment struct {
	ProductID         string         `json:"productId"`
	ImageName         string         `json:"imageName"`
	File              *CandidateFile `json:"file"`
	Position          int            `json:"position"`
	ProductImageCount int            `json:"productImageCount"`
	Ordinal           int            `json:"ordinal"`
	IsMain            bool           `json:"isMain"`
}

// MatchStats holds the totals of one Match call.
type MatchStats struct {
	DescriptorRows      int     `json:"descriptorRows"`
	FilesAdmitted       int     `json:"filesAdmitted"`
	Matched             int     `json:"matched"`
	MatchedRows         int     `json:"matchedRows"`
	UnmatchedRows       int     `json:"unmatchedRows"`
	UnmatchedFiles      int     `json:"unmatchedFiles"`
	UniqueProducts      int     `json:"uniqueProducts"`
	MultiImageProducts  int     `json:"multiImageProducts"`
	AvgImagesPerProduct float64 `json:"avgImagesPerProduct"`
}

// MatchReport is the diagnostic summary of one Match call. Matching problems
// never abort the run; they surface here so the caller can present a uniform
// review flow.
type MatchReport struct {
	Stats          MatchStats         `json:"stats"`
	UnmatchedRows  []DescriptorRecord `json:"unmatchedRows,omitempty"`
	UnmatchedFiles []string           `json:"unmatchedFiles,omitempty"`
}

// UploadStatus is the terminal state of one upload attempt.
type UploadStatus string

const (
	StatusSuccess UploadStatus = "success"
	StatusError   UploadStatus = "error"
)

// UploadOutcome records one attempted assignment, appended in completion
// order. ServerID carries the remote media entry identifier on success.
type UploadOutcome struct {
	ProductID string        `json:"productId"`
	ImageName string        `json:"imageName"`
	FileName  string        `json:"fileName"`
	Position  int           `json:"position"`
	IsMain    bool          `json:"isMain"`
	Status    UploadStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"durationMs"`
	ServerID  string        `json:"serverId,omitempty"`
}

// MarshalJSON emits Duration as whole milliseconds, matching the durationMs
// key. The in-memory field stays a time.Duration for callers.
func (o UploadOutcome) MarshalJSON() ([]byte, error) {
	type outcomeAlias UploadOutcome
	return json.Marshal(struct {
		outcomeAlias
		Duration int64 `json:"durationMs"`
	}{outcomeAlias(o), o.Duration.Milliseconds()})
}

// ProgressStatus is the phase reported by a progress event.
type ProgressStatus string

const (
	ProgressUploading ProgressStatus = "uploading"
	ProgressSuccess   ProgressStatus = "success"
	ProgressError     ProgressStatus = "error"
)

// Progress is emitted immediately before each attempt (status "uploading")
// and immediately after it completes. Current is 1-based and non-decreasing.
type Progress struct {
	Current   int            `json:"current"`
	Total     int            `json:"total"`
	ProductID string         `json:"productId"`
	FileName  string         `json:"fileName"`
	Status    ProgressStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It is invoked from the goroutine
// driving the upload loop; callers that trigger further work from inside it
// must treat it as re-entrant.
type ProgressFunc func(Progress)

// MediaContent is the encoded image body of a media entry.
type MediaContent struct {
	Base64EncodedData string `json:"base64_encoded_data"`
	Type              string `json:"type"`
	Name              string `json:"name"`
}

// MediaEntry is the payload shape the media sink persists for one image.
type MediaEntry struct {
	MediaType string       `json:"media_type"`
	Label     string       `json:"label"`
	Position  int          `json:"position"`
	Disabled  bool         `json:"disabled"`
	Types     []string     `json:"types"`
	Content   MediaContent `json:"content"`
}

// MediaSink persists a single media entry to a product. It returns an opaque
// server-side identifier on success and an error to indicate failure; there
// are no partial-success semantics.
type MediaSink interface {
	UploadProductMedia(ctx context.Context, productID string, entry MediaEntry) (string, error)
}
