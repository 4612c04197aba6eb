package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRunTimeout bounds a single upload run end to end.
const DefaultRunTimeout = 30 * time.Minute

// sessionRetention is how long a finished session stays queryable before the
// registry drops it.
const sessionRetention = 30 * time.Minute

// ErrSessionNotFound is returned for operations on unknown or expired sessions.
var ErrSessionNotFound = errors.New("session not found")

// ErrUploadRunning is returned when a phase is invoked on a session whose
// upload run is still in progress.
var ErrUploadRunning = errors.New("upload already running")

// RunRecord summarizes a finished upload run for the history store. Only
// finished runs are recorded; resumable partial state is never persisted.
type RunRecord struct {
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Succeeded  int
	Failed     int
	Outcomes   []UploadOutcome
}

// RunRecorder persists finished runs. Implementations must be safe for
// concurrent use; a nil recorder disables history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// MetricsHook receives pipeline events for instrumentation. A nil hook
// disables metrics.
type MetricsHook interface {
	RunStarted()
	RunFinished(cancelled bool)
	AttemptObserved(status UploadStatus, d time.Duration)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Sink MediaSink
	// MaxFileSize caps admitted image bodies in bytes; zero or negative
	// falls back to MaxImageSize.
	MaxFileSize       int64
	AttemptDelay      time.Duration
	ProductDelay      time.Duration
	MaxConcurrentRuns int
	RunWaitTime       time.Duration
	RunTimeout        time.Duration
	History           RunRecorder
	Metrics           MetricsHook
}

// Service manages ingestion sessions: the four pipeline phases, background
// upload runs, progress listeners, cancellation, and cleanup.
type Service struct {
	sink        MediaSink
	limiter     *RunLimiter
	history     RunRecorder
	metrics     MetricsHook
	runTimeout  time.Duration
	maxFileSize int64
	uploader    Uploader

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	descriptor  *DescriptorResult
	files       []*CandidateFile
	rejected    []RejectedFile
	assignments []Assignment
	report      *MatchReport

	uploading bool
	finished  bool
	cancelled bool
	cancel    context.CancelFunc
	progress  Progress
	outcomes  []UploadOutcome
	done      chan struct{}

	listenerMu      sync.Mutex
	listeners       []chan Progress
	listenersClosed bool
}

// NewService creates a Service. cfg.Sink is required.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Sink == nil {
		return nil, errors.New("ingest: nil media sink")
	}

	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}

	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = MaxImageSize
	}

	return &Service{
		sink:        cfg.Sink,
		limiter:     NewRunLimiter(cfg.MaxConcurrentRuns, cfg.RunWaitTime),
		history:     cfg.History,
		metrics:     cfg.Metrics,
		runTimeout:  runTimeout,
		maxFileSize: maxFileSize,
		uploader: Uploader{
			Sink:         cfg.Sink,
			AttemptDelay: cfg.AttemptDelay,
			ProductDelay: cfg.ProductDelay,
		},
		sessions: make(map[string]*session),
	}, nil
}

// CreateSession registers a new empty session and returns its ID.
func (s *Service) CreateSession() string {
	id := uuid.New().String()

	s.mu.Lock()
	s.sessions[id] = &session{
		ID:        id,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	return id
}

// ParseDescriptor parses a descriptor file into the session, replacing any
// previously parsed descriptor. Files named *.xlsx take the workbook path;
// everything else is read as CSV.
func (s *Service) ParseDescriptor(sessionID, fileName string, data []byte, opts DescriptorOptions) (*DescriptorResult, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var result *DescriptorResult
	if strings.HasSuffix(strings.ToLower(fileName), ".xlsx") {
		result, err = ParseDescriptorXLSX(data, opts)
	} else {
		result, err = ParseDescriptor(data, opts)
	}
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.uploading {
		return nil, ErrUploadRunning
	}
	sess.descriptor = result
	sess.assignments = nil
	sess.report = nil

	return result, nil
}

// AddFiles validates and admits candidate files into the session pool.
// Rejected files are accounted in the returned report; admission order is
// FIFO across calls and is the matcher's stable tiebreaker.
func (s *Service) AddFiles(sessionID string, inputs []FileInput) (AddReport, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return AddReport{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.uploading {
		return AddReport{}, ErrUploadRunning
	}

	var report AddReport
	for _, in := range inputs {
		if err := validateImage(in, s.maxFileSize); err != nil {
			reason := RejectUnsupportedType
			if errors.Is(err, ErrFileTooLarge) {
				reason = RejectFileTooLarge
			}
			rejected := RejectedFile{
				Name:     in.Name,
				MimeType: in.MimeType,
				Size:     int64(len(in.Data)),
				Reason:   reason,
			}
			sess.rejected = append(sess.rejected, rejected)
			report.Rejected = append(report.Rejected, rejected)
			continue
		}

		sess.files = append(sess.files, normalizeFile(in, len(sess.files)))
		report.Admitted++
	}

	return report, nil
}

// Match reconciles the session's descriptor records against its admitted
// files and stores the resulting assignments for upload.
func (s *Service) Match(sessionID string) (*MatchReport, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.uploading {
		return nil, ErrUploadRunning
	}
	if sess.descriptor == nil {
		return nil, fmt.Errorf("session %s: no descriptor parsed", sessionID)
	}

	assignments, report, err := Match(sess.descriptor.Records, sess.files)
	if err != nil {
		return nil, err
	}

	sess.assignments = assignments
	sess.report = report
	return report, nil
}

// Assignments returns the session's current assignments in match order.
func (s *Service) Assignments(sessionID string) ([]Assignment, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Assignment, len(sess.assignments))
	copy(out, sess.assignments)
	return out, nil
}

// StartUpload begins the session's upload run in the background. It acquires
// a limiter slot (waiting up to the configured time) and returns once the
// run goroutine is launched. Use SubscribeProgress for updates and Result
// for the final outcome list.
func (s *Service) StartUpload(ctx context.Context, sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.uploading {
		sess.mu.Unlock()
		return ErrUploadRunning
	}
	if len(sess.assignments) == 0 {
		sess.mu.Unlock()
		return fmt.Errorf("session %s: nothing to upload", sessionID)
	}
	assignments := sess.assignments
	// Claim the session before waiting on the limiter so a concurrent
	// StartUpload cannot pass the check and launch a second run.
	sess.uploading = true
	sess.mu.Unlock()

	if err := s.limiter.Acquire(ctx); err != nil {
		sess.mu.Lock()
		sess.uploading = false
		sess.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)

	sess.mu.Lock()
	sess.finished = false
	sess.cancelled = false
	sess.cancel = cancel
	sess.outcomes = nil
	sess.done = make(chan struct{})
	sess.progress = Progress{Total: len(assignments)}
	sess.mu.Unlock()

	// Reopen the listener registry for the new run.
	sess.listenerMu.Lock()
	sess.listenersClosed = false
	sess.listenerMu.Unlock()

	if s.metrics != nil {
		s.metrics.RunStarted()
	}

	go s.runUpload(runCtx, cancel, sess, assignments)

	return nil
}

// runUpload executes one upload run and finalizes the session.
func (s *Service) runUpload(ctx context.Context, cancel context.CancelFunc, sess *session, assignments []Assignment) {
	startedAt := time.Now()

	defer func() {
		cancel()
		s.limiter.Release()
		sess.closeListeners()

		sess.mu.Lock()
		close(sess.done)
		sess.uploading = false
		sess.finished = true
		sess.mu.Unlock()

		s.cleanup(sess.ID, sessionRetention)
	}()

	outcomes := s.uploader.Upload(ctx, assignments, func(p Progress) {
		sess.mu.Lock()
		sess.progress = p
		sess.mu.Unlock()
		sess.notifyProgress(p)
	})

	cancelled := ctx.Err() != nil && len(outcomes) < len(assignments)

	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.Status == StatusSuccess {
			succeeded++
		} else {
			failed++
		}
		if s.metrics != nil {
			s.metrics.AttemptObserved(o.Status, o.Duration)
		}
	}

	sess.mu.Lock()
	sess.outcomes = outcomes
	sess.cancelled = cancelled
	sess.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunFinished(cancelled)
	}

	slog.Info("upload run finished",
		"session_id", sess.ID,
		"attempted", len(outcomes),
		"succeeded", succeeded,
		"failed", failed,
		"cancelled", cancelled,
		"duration", time.Since(startedAt),
	)

	if s.history != nil {
		record := RunRecord{
			SessionID:  sess.ID,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
			Cancelled:  cancelled,
			Succeeded:  succeeded,
			Failed:     failed,
			Outcomes:   outcomes,
		}
		recordCtx, recordCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer recordCancel()
		if err := s.history.RecordRun(recordCtx, record); err != nil {
			slog.Error("record run history", "session_id", sess.ID, "error", err)
		}
	}
}

// SubscribeProgress returns a channel receiving the session's progress
// events. The current progress is delivered immediately; the channel closes
// when the run finishes.
func (s *Service) SubscribeProgress(sessionID string) (<-chan Progress, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 16)

	sess.mu.Lock()
	current := sess.progress
	sess.mu.Unlock()

	// listenersClosed is the authority on whether the run is over: it flips
	// under listenerMu, so a subscriber can never register after the run's
	// close pass and be left with a channel nobody closes.
	sess.listenerMu.Lock()
	if sess.listenersClosed {
		// Run already over: deliver the last snapshot and close.
		ch <- current
		close(ch)
	} else {
		sess.listeners = append(sess.listeners, ch)
		select {
		case ch <- current:
		default:
		}
	}
	sess.listenerMu.Unlock()

	return ch, nil
}

// CancelUpload signals the session's run to stop at the next loop boundary.
// The in-flight request, if any, runs to completion and its outcome is kept.
func (s *Service) CancelUpload(sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancel == nil {
		return fmt.Errorf("session %s: no upload to cancel", sessionID)
	}
	sess.cancel()
	return nil
}

// Result returns the session's outcome list and whether the run has
// finished. Before the first StartUpload both are empty and false.
func (s *Service) Result(sessionID string) ([]UploadOutcome, bool, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, false, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]UploadOutcome, len(sess.outcomes))
	copy(out, sess.outcomes)
	return out, sess.finished, nil
}

// Progress returns the session's latest progress snapshot.
func (s *Service) Progress(sessionID string) (Progress, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return Progress{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.progress, nil
}

// Report returns the session's latest match report, or nil before Match.
func (s *Service) Report(sessionID string) (*MatchReport, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.report, nil
}

// LimiterStatus reports the run limiter's occupancy.
func (s *Service) LimiterStatus() (active, max int) {
	return s.limiter.ActiveCount(), s.limiter.MaxConcurrent()
}

func (s *Service) session(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// cleanup drops the session from the registry after delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	})
}

// notifyProgress delivers an event to all listeners. Slow listeners drop
// events rather than block the run.
func (sess *session) notifyProgress(p Progress) {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	for _, ch := range sess.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (sess *session) closeListeners() {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	sess.listenersClosed = true
	for _, ch := range sess.listeners {
		close(ch)
	}
	sess.listeners = nil
}
