package transcription

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"scribeeasy/internal/provider"
	"scribeeasy/internal/subtitle"
)

// Status is the local lifecycle state of a transcription job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports whether a job can no longer change state
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	// ErrJobNotFound is returned for job identities unknown to the registry
	ErrJobNotFound = errors.New("job not found")
	// ErrNotReady is returned when an export is requested before completion
	ErrNotReady = errors.New("transcription not completed")
	// ErrNoSegments is returned when a subtitle export has no segments to render
	ErrNoSegments = errors.New("no segments available")
)

// Result is a caller-facing snapshot of a job's state. Text, Segments,
// Confidence and AudioDuration are populated only on completion; Error only
// on failure.
type Result struct {
	JobID         string             `json:"job_id"`
	Status        Status             `json:"status"`
	Text          string             `json:"text,omitempty"`
	Segments      []subtitle.Segment `json:"segments,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	AudioDuration float64            `json:"audio_duration,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// JobInfo is registry metadata about a job, served without provider I/O
type JobInfo struct {
	JobID       string `json:"job_id"`
	Filename    string `json:"filename"`
	FilePath    string `json:"file_path"`
	Status      Status `json:"status"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
}

// Export is rendered subtitle content plus download metadata
type Export struct {
	Content     []byte
	ContentType string
	Filename    string
}

// job is one registry record. Each record has its own mutex so polling and
// result caching for one job never blocks work on another.
type job struct {
	mu          sync.Mutex
	id          string
	filename    string
	filePath    string
	status      Status
	startedAt   int64
	completedAt int64
	result      *Result
}

// Config carries constructor-level settings for the Service
type Config struct {
	// SubmitTimeout bounds a provider submission call (default 120s)
	SubmitTimeout time.Duration
	// StatusTimeout bounds a provider status check call (default 30s)
	StatusTimeout time.Duration
	// Workers is the provider call pool size (default 4)
	Workers int
	// Clock supplies the current time, injectable for tests
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 120 * time.Second
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Service owns the job registry, mediates all provider interaction and
// advances each job's state machine:
//
//	QUEUED -> PROCESSING -> COMPLETED
//	QUEUED -> PROCESSING -> ERROR
//
// COMPLETED and ERROR are absorbing; once reached, snapshots are served from
// the cached result without re-querying the provider, so segmentation runs
// exactly once per job.
type Service struct {
	provider      provider.Provider
	logger        *zap.Logger
	pool          *callPool
	submitTimeout time.Duration
	statusTimeout time.Duration
	now           func() time.Time

	mu   sync.RWMutex
	jobs map[string]*job
}

// NewService creates a Service with the reference call policy
func NewService(p provider.Provider, logger *zap.Logger) *Service {
	return NewServiceWithConfig(p, logger, Config{})
}

// NewServiceWithConfig creates a Service with explicit call policy settings
func NewServiceWithConfig(p provider.Provider, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	return &Service{
		provider:      p,
		logger:        logger,
		pool:          newCallPool(cfg.Workers),
		submitTimeout: cfg.SubmitTimeout,
		statusTimeout: cfg.StatusTimeout,
		now:           cfg.Clock,
		jobs:          make(map[string]*job),
	}
}

// Submit starts a transcription job for the given media file. The provider
// call is bounded by the submit timeout; on any failure no job record is
// created and the error surfaces to the caller.
func (s *Service) Submit(ctx context.Context, filePath, filename string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	var jobID string
	var submitErr error
	if err := s.pool.run(callCtx, func() {
		jobID, submitErr = s.provider.Submit(callCtx, filePath, provider.DefaultProfile())
	}); err != nil {
		return "", fmt.Errorf("failed to start transcription: %w", err)
	}
	if submitErr != nil {
		return "", fmt.Errorf("failed to start transcription: %w", submitErr)
	}

	record := &job{
		id:        jobID,
		filename:  filename,
		filePath:  filePath,
		status:    StatusQueued,
		startedAt: s.now().Unix(),
	}

	s.mu.Lock()
	s.jobs[jobID] = record
	s.mu.Unlock()

	s.logger.Info("transcription job submitted",
		zap.String("job_id", jobID),
		zap.String("filename", filename))

	return jobID, nil
}

// GetStatus returns the current snapshot for a job, polling the provider
// when the job is not yet terminal. Provider failures and timeouts during
// the poll are absorbed into a terminal ERROR state rather than returned;
// only an unknown job identity is an error to the caller.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*Result, error) {
	record, ok := s.lookup(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	// Single writer per record: concurrent polls for the same job serialize
	// here so segmentation cannot run twice.
	record.mu.Lock()
	defer record.mu.Unlock()

	if record.status.IsTerminal() {
		return snapshotResult(record.result), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.statusTimeout)
	defer cancel()

	var transcript *provider.Transcript
	var pollErr error
	if err := s.pool.run(callCtx, func() {
		transcript, pollErr = s.provider.GetTranscript(callCtx, jobID)
	}); err != nil {
		pollErr = err
	}

	if pollErr != nil {
		s.logger.Warn("status check failed, marking job as errored",
			zap.String("job_id", jobID),
			zap.Error(pollErr))
		s.completeWithError(record, fmt.Sprintf("Error checking status: %v", pollErr))
		return snapshotResult(record.result), nil
	}

	switch transcript.Status {
	case provider.StatusCompleted:
		s.completeWithTranscript(record, transcript)
		return snapshotResult(record.result), nil

	case provider.StatusError:
		message := transcript.Error
		if message == "" {
			message = "Unknown error occurred"
		}
		s.completeWithError(record, message)
		return snapshotResult(record.result), nil

	default:
		// Queued, processing and any unrecognized provider state all count
		// as still in flight.
		record.status = StatusProcessing
		return &Result{JobID: jobID, Status: StatusProcessing}, nil
	}
}

// completeWithTranscript runs the segmentation engine once and caches the
// completed result on the record. Caller holds the record lock.
func (s *Service) completeWithTranscript(record *job, transcript *provider.Transcript) {
	segments := subtitle.BuildSegments(transcript.Utterances, transcript.Words)

	record.status = StatusCompleted
	record.completedAt = s.now().Unix()
	record.result = &Result{
		JobID:         record.id,
		Status:        StatusCompleted,
		Text:          transcript.Text,
		Segments:      segments,
		Confidence:    transcript.Confidence,
		AudioDuration: float64(transcript.AudioDurationMs) / 1000.0,
	}

	s.logger.Info("transcription job completed",
		zap.String("job_id", record.id),
		zap.Int("segment_count", len(segments)),
		zap.Float64("audio_duration", record.result.AudioDuration))
}

// completeWithError moves the record to the terminal ERROR state. Caller
// holds the record lock.
func (s *Service) completeWithError(record *job, message string) {
	record.status = StatusError
	record.completedAt = s.now().Unix()
	record.result = &Result{
		JobID:  record.id,
		Status: StatusError,
		Error:  message,
	}
}

// GetJobInfo returns registry metadata for a job without provider I/O
func (s *Service) GetJobInfo(jobID string) (*JobInfo, bool) {
	record, ok := s.lookup(jobID)
	if !ok {
		return nil, false
	}

	record.mu.Lock()
	defer record.mu.Unlock()

	return &JobInfo{
		JobID:       record.id,
		Filename:    record.filename,
		FilePath:    record.filePath,
		Status:      record.status,
		StartedAt:   record.startedAt,
		CompletedAt: record.completedAt,
	}, true
}

// Cleanup removes a job from the registry. It is a no-op for unknown ids.
func (s *Service) Cleanup(jobID string) {
	s.mu.Lock()
	_, existed := s.jobs[jobID]
	delete(s.jobs, jobID)
	s.mu.Unlock()

	if existed {
		s.logger.Debug("job removed from registry", zap.String("job_id", jobID))
	}
}

// ExportSubtitles renders a completed job's cues in the requested format.
// The job must be COMPLETED; SRT and VTT additionally require at least one
// segment, while TXT falls back to the raw transcript text.
func (s *Service) ExportSubtitles(ctx context.Context, jobID string, format subtitle.Format) (*Export, error) {
	result, err := s.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if result.Status != StatusCompleted {
		return nil, fmt.Errorf("%w (status: %s)", ErrNotReady, result.Status)
	}

	if (format == subtitle.FormatSRT || format == subtitle.FormatVTT) && len(result.Segments) == 0 {
		return nil, ErrNoSegments
	}

	content := subtitle.Render(format, result.Text, result.Segments)

	filename := "transcription"
	if info, ok := s.GetJobInfo(jobID); ok && info.Filename != "" {
		filename = info.Filename
	}

	return &Export{
		Content:     []byte(content),
		ContentType: subtitle.ContentType(format),
		Filename:    downloadFilename(filename, format),
	}, nil
}

func (s *Service) lookup(jobID string) (*job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.jobs[jobID]
	return record, ok
}

// snapshotResult copies a cached result so callers never hold a reference
// into the registry's mutable state.
func snapshotResult(r *Result) *Result {
	if r == nil {
		return nil
	}
	snapshot := *r
	if r.Segments != nil {
		snapshot.Segments = append([]subtitle.Segment(nil), r.Segments...)
	}
	return &snapshot
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-.]`)

// downloadFilename derives the attachment filename for an export from the
// original upload name.
func downloadFilename(original string, format subtitle.Format) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	safe := unsafeFilenameChars.ReplaceAllString(base, "_")
	if safe == "" {
		safe = "transcription"
	}
	return safe + "_transcription" + subtitle.FileExtension(format)
}
