package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scribeeasy/internal/provider"
	"scribeeasy/internal/subtitle"
)

// fakeProvider is a test double for the transcription provider
type fakeProvider struct {
	mu             sync.Mutex
	submitID       string
	submitErr      error
	transcript     *provider.Transcript
	transcriptErr  error
	submitCalls    int
	getCalls       int
	lastProfile    provider.Profile
	blockGet       chan struct{}
}

func (f *fakeProvider) Submit(ctx context.Context, filePath string, profile provider.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastProfile = profile
	return f.submitID, f.submitErr
}

func (f *fakeProvider) GetTranscript(ctx context.Context, id string) (*provider.Transcript, error) {
	if f.blockGet != nil {
		select {
		case <-f.blockGet:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.transcriptErr != nil {
		return nil, f.transcriptErr
	}
	return f.transcript, nil
}

func (f *fakeProvider) getCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func completedTranscript(id string) *provider.Transcript {
	return &provider.Transcript{
		ID:              id,
		Status:          provider.StatusCompleted,
		Text:            "Hello there. General Kenobi.",
		Confidence:      0.97,
		AudioDurationMs: 4500,
		Utterances: []provider.Utterance{
			{Text: "Hello there.", StartMs: 0, EndMs: 2000, Speaker: "A"},
			{Text: "General Kenobi.", StartMs: 2000, EndMs: 4500, Speaker: "B"},
		},
	}
}

func TestService_Submit(t *testing.T) {
	t.Run("should create a queued job record on success", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-123"}
		service := NewService(fake, zap.NewNop())

		// Act
		jobID, err := service.Submit(context.Background(), "/tmp/media.mp3", "interview.mp3")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "job-123", jobID)

		info, ok := service.GetJobInfo(jobID)
		require.True(t, ok)
		assert.Equal(t, StatusQueued, info.Status)
		assert.Equal(t, "interview.mp3", info.Filename)
		assert.Equal(t, "/tmp/media.mp3", info.FilePath)
		assert.NotZero(t, info.StartedAt)
	})

	t.Run("should use the fixed recognition profile", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-123"}
		service := NewService(fake, zap.NewNop())

		// Act
		_, err := service.Submit(context.Background(), "/tmp/media.mp3", "media.mp3")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "slam-1", fake.lastProfile.SpeechModel)
		assert.True(t, fake.lastProfile.Punctuate)
		assert.True(t, fake.lastProfile.FormatText)
		assert.True(t, fake.lastProfile.SpeakerLabels)
	})

	t.Run("should not create a job record when submission fails", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitErr: errors.New("provider down")}
		service := NewService(fake, zap.NewNop())

		// Act
		jobID, err := service.Submit(context.Background(), "/tmp/media.mp3", "media.mp3")

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start transcription")
		assert.Empty(t, jobID)

		_, ok := service.GetJobInfo("job-123")
		assert.False(t, ok)
	})
}

func TestService_GetStatus(t *testing.T) {
	t.Run("should fail with not found for unknown job identity", func(t *testing.T) {
		// Arrange
		service := NewService(&fakeProvider{}, zap.NewNop())

		// Act
		result, err := service.GetStatus(context.Background(), "nope")

		// Assert
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("should report processing for non-terminal provider states", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{
			submitID:   "job-1",
			transcript: &provider.Transcript{ID: "job-1", Status: provider.StatusQueued},
		}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, result.Status)
		assert.Empty(t, result.Error)
		assert.Empty(t, result.Segments)
	})

	t.Run("should map unrecognized provider states to processing", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{
			submitID:   "job-1",
			transcript: &provider.Transcript{ID: "job-1", Status: provider.ParseStatus("throttled")},
		}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, result.Status)
	})

	t.Run("should build segments and cache the result on completion", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-1", transcript: completedTranscript("job-1")}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, result.Status)
		assert.Equal(t, "Hello there. General Kenobi.", result.Text)
		assert.Equal(t, 0.97, result.Confidence)
		assert.Equal(t, 4.5, result.AudioDuration)
		require.Len(t, result.Segments, 2)
		assert.Equal(t, "A", result.Segments[0].Speaker)

		// Further calls serve the cache without re-querying the provider
		callsAfterCompletion := fake.getCallCount()
		again, err := service.GetStatus(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, result.Segments, again.Segments)
		assert.Equal(t, callsAfterCompletion, fake.getCallCount(),
			"terminal jobs must not trigger provider calls")
	})

	t.Run("should map provider error state with its message", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{
			submitID: "job-1",
			transcript: &provider.Transcript{
				ID:     "job-1",
				Status: provider.StatusError,
				Error:  "audio file is unreadable",
			},
		}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Equal(t, "audio file is unreadable", result.Error)
	})

	t.Run("should use a placeholder when provider error has no message", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{
			submitID:   "job-1",
			transcript: &provider.Transcript{ID: "job-1", Status: provider.StatusError},
		}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Equal(t, "Unknown error occurred", result.Error)
	})

	t.Run("should absorb provider failures into a terminal error state", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-1", transcriptErr: errors.New("connection reset")}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert - the failure is not surfaced as a call error
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Contains(t, result.Error, "Error checking status")
		assert.Contains(t, result.Error, "connection reset")

		// The error state is terminal; the provider is not polled again
		callsAfterError := fake.getCallCount()
		again, err := service.GetStatus(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, StatusError, again.Status)
		assert.Equal(t, callsAfterError, fake.getCallCount())
	})

	t.Run("should absorb a status check timeout into a terminal error state", func(t *testing.T) {
		// Arrange - provider blocks until the bounded context expires
		fake := &fakeProvider{submitID: "job-1", blockGet: make(chan struct{})}
		service := NewServiceWithConfig(fake, zap.NewNop(), Config{
			StatusTimeout: 50 * time.Millisecond,
		})
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		result, err := service.GetStatus(context.Background(), jobID)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, StatusError, result.Status)
		assert.Contains(t, result.Error, "Error checking status")
	})

	t.Run("should return snapshots that do not alias the cached result", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-1", transcript: completedTranscript("job-1")}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		first, err := service.GetStatus(context.Background(), jobID)
		require.NoError(t, err)

		// Act - mutate the returned snapshot
		first.Segments[0].Text = "tampered"

		// Assert
		second, err := service.GetStatus(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, "Hello there.", second.Segments[0].Text)
	})
}

func TestService_Cleanup(t *testing.T) {
	t.Run("should remove the job and be idempotent", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-1", transcript: completedTranscript("job-1")}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		service.Cleanup(jobID)
		service.Cleanup(jobID) // no-op

		// Assert
		_, err = service.GetStatus(context.Background(), jobID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestService_ExportSubtitles(t *testing.T) {
	newCompletedService := func(t *testing.T) (*Service, string) {
		t.Helper()
		fake := &fakeProvider{submitID: "job-1", transcript: completedTranscript("job-1")}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "My Interview (final).mp3")
		require.NoError(t, err)
		return service, jobID
	}

	t.Run("should fail with not ready while processing", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{
			submitID:   "job-1",
			transcript: &provider.Transcript{ID: "job-1", Status: provider.StatusProcessing},
		}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		export, err := service.ExportSubtitles(context.Background(), jobID, subtitle.FormatSRT)

		// Assert
		assert.Nil(t, export)
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("should fail with not found for unknown jobs", func(t *testing.T) {
		// Arrange
		service := NewService(&fakeProvider{}, zap.NewNop())

		// Act
		_, err := service.ExportSubtitles(context.Background(), "nope", subtitle.FormatSRT)

		// Assert
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("should render SRT with download metadata", func(t *testing.T) {
		// Arrange
		service, jobID := newCompletedService(t)

		// Act
		export, err := service.ExportSubtitles(context.Background(), jobID, subtitle.FormatSRT)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "application/x-subrip", export.ContentType)
		assert.Equal(t, "My_Interview__final__transcription.srt", export.Filename)
		assert.True(t, strings.HasPrefix(string(export.Content), "1\n00:00:00,000 --> 00:00:02,000\n[A] Hello there.\n"))
	})

	t.Run("should render VTT", func(t *testing.T) {
		// Arrange
		service, jobID := newCompletedService(t)

		// Act
		export, err := service.ExportSubtitles(context.Background(), jobID, subtitle.FormatVTT)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "text/vtt", export.ContentType)
		assert.True(t, strings.HasPrefix(string(export.Content), "WEBVTT\n"))
	})

	t.Run("should render TXT from full text", func(t *testing.T) {
		// Arrange
		service, jobID := newCompletedService(t)

		// Act
		export, err := service.ExportSubtitles(context.Background(), jobID, subtitle.FormatTXT)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "text/plain", export.ContentType)
		assert.Equal(t, "Hello there. General Kenobi.", string(export.Content))
	})

	t.Run("should fail SRT export when no segments are available", func(t *testing.T) {
		// Arrange - completed transcript with text but no timing data
		fake := &fakeProvider{
			submitID: "job-1",
			transcript: &provider.Transcript{
				ID:     "job-1",
				Status: provider.StatusCompleted,
				Text:   "just text",
			},
		}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act
		_, err = service.ExportSubtitles(context.Background(), jobID, subtitle.FormatSRT)

		// Assert
		assert.ErrorIs(t, err, ErrNoSegments)

		// TXT still works from the raw text
		export, err := service.ExportSubtitles(context.Background(), jobID, subtitle.FormatTXT)
		require.NoError(t, err)
		assert.Equal(t, "just text", string(export.Content))
	})
}

func TestService_ConcurrentGetStatus(t *testing.T) {
	t.Run("should serialize polls per record so segmentation runs once", func(t *testing.T) {
		// Arrange
		fake := &fakeProvider{submitID: "job-1", transcript: completedTranscript("job-1")}
		service := NewService(fake, zap.NewNop())
		jobID, err := service.Submit(context.Background(), "/tmp/a.mp3", "a.mp3")
		require.NoError(t, err)

		// Act - race several status checks for the same job
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := service.GetStatus(context.Background(), jobID)
				assert.NoError(t, err)
				assert.Equal(t, StatusCompleted, result.Status)
			}()
		}
		wg.Wait()

		// Assert - only the first poll reached the provider
		assert.Equal(t, 1, fake.getCallCount())
	})
}
