package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"scribeeasy/internal/storage"
	"scribeeasy/internal/subtitle"
	"scribeeasy/internal/transcription"
)

const previewTextLimit = 500

// Server exposes the transcription service over HTTP: upload, status,
// download and preview routes mirroring the service operations.
type Server struct {
	echo    *echo.Echo
	service *transcription.Service
	store   *storage.FileStore
	logger  *zap.Logger

	// Cleanup watcher policy: poll the job until terminal (bounded), then
	// keep the media and record around for the grace period so downloads
	// still work.
	watchInterval time.Duration
	watchMaxWait  time.Duration
	cleanupGrace  time.Duration

	// done is closed on shutdown so sleeping watchers exit immediately
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a Server with routes registered
func NewServer(service *transcription.Service, store *storage.FileStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:          e,
		service:       service,
		store:         store,
		logger:        logger,
		watchInterval: 30 * time.Second,
		watchMaxWait:  time.Hour,
		cleanupGrace:  5 * time.Minute,
		done:          make(chan struct{}),
	}

	e.GET("/", s.handleHealth)
	e.POST("/upload", s.handleUpload)
	e.GET("/status/:id", s.handleStatus)
	e.GET("/download/:id/:format", s.handleDownload)
	e.GET("/preview/:id", s.handlePreview)

	return s
}

// Start begins serving on the given address and blocks until shutdown
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server starting", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully and wakes any cleanup watchers
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying HTTP handler for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "ScribeEasy API is running",
		"version": "1.0.0",
	})
}

// handleUpload saves the media file, submits it for transcription and arms
// the post-processing cleanup watcher.
func (s *Server) handleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("no file provided"))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("failed to read upload"))
	}
	defer src.Close()

	path, err := s.store.Save(fileHeader.Filename, src)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, errorBody(err.Error()))
		case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrNoFilename):
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		default:
			s.logger.Error("failed to save upload", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errorBody("failed to save upload"))
		}
	}

	jobID, err := s.service.Submit(c.Request().Context(), path, fileHeader.Filename)
	if err != nil {
		s.store.Delete(path)
		s.logger.Error("transcription submission failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, errorBody("failed to start transcription"))
	}

	go s.watchAndCleanup(jobID, path)

	return c.JSON(http.StatusOK, map[string]string{
		"job_id":   jobID,
		"message":  "File uploaded successfully. Transcription started.",
		"filename": fileHeader.Filename,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	result, err := s.service.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, transcription.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		s.logger.Error("status check failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("status check failed"))
	}

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleDownload(c echo.Context) error {
	format, err := subtitle.ParseFormat(c.Param("format"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	export, err := s.service.ExportSubtitles(c.Request().Context(), c.Param("id"), format)
	if err != nil {
		switch {
		case errors.Is(err, transcription.ErrJobNotFound):
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		case errors.Is(err, transcription.ErrNotReady), errors.Is(err, transcription.ErrNoSegments):
			return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		default:
			s.logger.Error("export failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errorBody("export failed"))
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+export.Filename+`"`)
	return c.Blob(http.StatusOK, export.ContentType+"; charset=utf-8", export.Content)
}

// handlePreview returns the first segments and a truncated text preview of a
// completed transcription.
func (s *Server) handlePreview(c echo.Context) error {
	result, err := s.service.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, transcription.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, errorBody(err.Error()))
		}
		s.logger.Error("preview failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody("preview failed"))
	}

	if result.Status != transcription.StatusCompleted {
		return c.JSON(http.StatusBadRequest, errorBody("transcription not completed (status: "+string(result.Status)+")"))
	}

	lines := 10
	if l := c.QueryParam("lines"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			lines = parsed
		}
	}

	previewSegments := result.Segments
	if len(previewSegments) > lines {
		previewSegments = previewSegments[:lines]
	}

	previewText := result.Text
	if len(previewText) > previewTextLimit {
		// Back up to a rune boundary so a multi-byte character is never cut
		// in half.
		cut := previewTextLimit
		for cut > 0 && !utf8.RuneStart(previewText[cut]) {
			cut--
		}
		previewText = previewText[:cut] + "..."
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"job_id":           result.JobID,
		"preview_text":     previewText,
		"preview_segments": previewSegments,
		"total_segments":   len(result.Segments),
		"audio_duration":   result.AudioDuration,
		"confidence":       result.Confidence,
	})
}

// watchAndCleanup waits for the job to reach a terminal state, then removes
// the media file and the registry record after the grace period. The wait is
// bounded so an upstream job that never terminates cannot leak the watcher.
func (s *Server) watchAndCleanup(jobID, filePath string) {
	deadline := time.Now().Add(s.watchMaxWait)

	for time.Now().Before(deadline) {
		result, err := s.service.GetStatus(context.Background(), jobID)
		if err != nil {
			// Record already removed, nothing left to watch
			break
		}
		if result.Status.IsTerminal() {
			s.sleep(s.cleanupGrace)
			break
		}
		if !s.sleep(s.watchInterval) {
			break
		}
	}

	s.store.Delete(filePath)
	s.service.Cleanup(jobID)

	s.logger.Debug("job resources cleaned up",
		zap.String("job_id", jobID),
		zap.String("file_path", filePath))
}

// sleep waits for d or until shutdown, reporting false when shutting down
func (s *Server) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.done:
		return false
	}
}

func errorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
