package ingest

// upload.go drives the assignments against the media sink, one request in
// flight at a time. Assignments are grouped by product in order of first
// appearance and uploaded in position order, so the position-0 image lands
// first and receives the expanded role set. Delays between attempts keep the
// remote endpoint below its rate limits and let prior writes become visible
// before the next one for the same product.

import (
	"context"
	"encoding/base64"
	"path"
	"sort"
	"strings"
	"time"
)

// Default pacing between sink calls. Both are overridable on the Uploader;
// zero values fall back to these.
const (
	DefaultAttemptDelay = 1 * time.Second
	DefaultProductDelay = 2 * time.Second
)

// Media entry roles. The main image carries all three; additional images
// carry only RoleImage.
const (
	RoleImage     = "image"
	RoleSmall     = "small_image"
	RoleThumbnail = "thumbnail"
)

// Uploader applies assignments against a MediaSink.
type Uploader struct {
	Sink MediaSink

	// AttemptDelay separates successive attempts for the same product;
	// ProductDelay separates the last attempt of one product from the first
	// of the next.
	AttemptDelay time.Duration
	ProductDelay time.Duration
}

// Upload attempts every assignment in order and returns one outcome per
// attempt, in completion order. A failed attempt is recorded and the loop
// continues; a failed main image does not abort the product's additional
// images. Cancellation is cooperative: the context is checked at each loop
// boundary and during delays, and outcomes accumulated so far are returned.
// In-flight requests are never interrupted.
func (u *Uploader) Upload(ctx context.Context, assignments []Assignment, onProgress ProgressFunc) []UploadOutcome {
	ordered := orderForUpload(assignments)
	total := len(ordered)
	outcomes := make([]UploadOutcome, 0, total)

	for i, a := range ordered {
		if ctx.Err() != nil {
			return outcomes
		}

		if i > 0 {
			delay := u.productDelay()
			if ordered[i-1].ProductID == a.ProductID {
				delay = u.attemptDelay()
			}
			if !sleepCtx(ctx, delay) {
				return outcomes
			}
		}

		notify(onProgress, Progress{
			Current:   i + 1,
			Total:     total,
			ProductID: a.ProductID,
			FileName:  a.File.DisplayName,
			Status:    ProgressUploading,
		})

		start := time.Now()
		serverID, err := u.Sink.UploadProductMedia(ctx, a.ProductID, buildEntry(a))
		elapsed := time.Since(start)

		outcome := UploadOutcome{
			ProductID: a.ProductID,
			ImageName: a.ImageName,
			FileName:  a.File.DisplayName,
			Position:  a.Position,
			IsMain:    a.IsMain,
			Duration:  elapsed,
		}

		if err != nil {
			outcome.Status = StatusError
			outcome.Message = err.Error()
		} else {
			outcome.Status = StatusSuccess
			outcome.Message = "uploaded"
			outcome.ServerID = serverID
		}
		outcomes = append(outcomes, outcome)

		notify(onProgress, Progress{
			Current:   i + 1,
			Total:     total,
			ProductID: a.ProductID,
			FileName:  a.File.DisplayName,
			Status:    ProgressStatus(outcome.Status),
			Message:   outcome.Message,
		})
	}

	return outcomes
}

func (u *Uploader) attemptDelay() time.Duration {
	if u.AttemptDelay > 0 {
		return u.AttemptDelay
	}
	return DefaultAttemptDelay
}

func (u *Uploader) productDelay() time.Duration {
	if u.ProductDelay > 0 {
		return u.ProductDelay
	}
	return DefaultProductDelay
}

// orderForUpload groups assignments by product in order of first appearance
// and sorts each group by position. The input is not mutated.
func orderForUpload(assignments []Assignment) []Assignment {
	ordered := make([]Assignment, len(assignments))
	copy(ordered, assignments)

	firstSeen := make(map[string]int)
	for i, a := range assignments {
		if _, ok := firstSeen[a.ProductID]; !ok {
			firstSeen[a.ProductID] = i
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ProductID != ordered[j].ProductID {
			return firstSeen[ordered[i].ProductID] < firstSeen[ordered[j].ProductID]
		}
		return ordered[i].Position < ordered[j].Position
	})

	return ordered
}

// buildEntry encodes one assignment into the sink payload. Base64 encoding
// happens here, at the sink boundary; the encoded body is not retained past
// the attempt.
func buildEntry(a Assignment) MediaEntry {
	types := []string{RoleImage}
	if a.IsMain {
		types = []string{RoleImage, RoleSmall, RoleThumbnail}
	}

	label := strings.TrimSuffix(a.ImageName, path.Ext(a.ImageName))

	return MediaEntry{
		MediaType: "image",
		Label:     label,
		Position:  a.Position,
		Disabled:  false,
		Types:     types,
		Content: MediaContent{
			Base64EncodedData: base64.StdEncoding.EncodeToString(a.File.Data),
			Type:              a.File.MimeType,
			Name:              a.File.DisplayName,
		},
	}
}

// sleepCtx waits for d or until the context is done. Reports whether the
// full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func notify(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
