package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfiguration_Defaults(t *testing.T) {
	t.Run("should apply reference policy defaults", func(t *testing.T) {
		// Arrange
		cfg := NewConfiguration()

		// Assert
		assert.Equal(t, "https://api.assemblyai.com/v2", cfg.GetProviderBaseURL())
		assert.Equal(t, 120*time.Second, cfg.GetSubmitTimeout())
		assert.Equal(t, 30*time.Second, cfg.GetStatusTimeout())
		assert.Equal(t, 4, cfg.GetWorkerCount())
		assert.Equal(t, "./temp_uploads", cfg.GetUploadDir())
		assert.Equal(t, int64(1000_000_000), cfg.GetMaxFileSize())
		assert.Equal(t, ":8000", cfg.GetServerAddr())
		assert.Equal(t, time.Hour, cfg.GetCleanupInterval())
		assert.Equal(t, 30*time.Minute, cfg.GetFileRetention())
	})

	t.Run("should include common media extensions", func(t *testing.T) {
		// Arrange
		cfg := NewConfiguration()

		// Act
		exts := cfg.GetAllowedExtensions()

		// Assert
		assert.Contains(t, exts, ".mp3")
		assert.Contains(t, exts, ".mp4")
		assert.Contains(t, exts, ".mkv")
		assert.Contains(t, exts, ".wav")
		assert.Contains(t, exts, ".m4a")
	})
}

func TestConfiguration_GetProviderAPIKey(t *testing.T) {
	t.Run("should load API key from environment variable", func(t *testing.T) {
		// Arrange
		os.Setenv("ASSEMBLYAI_API_KEY", "test-api-key")
		defer os.Unsetenv("ASSEMBLYAI_API_KEY")

		cfg, err := NewConfigurationFromEnv()
		assert.NoError(t, err)

		// Act
		key := cfg.GetProviderAPIKey()

		// Assert
		assert.Equal(t, "test-api-key", key)
	})

	t.Run("should be empty when unset", func(t *testing.T) {
		// Arrange
		cfg := NewConfiguration()

		// Assert
		assert.Empty(t, cfg.GetProviderAPIKey())
	})
}

func TestConfiguration_Validate(t *testing.T) {
	t.Run("should fail validation without an API key", func(t *testing.T) {
		// Arrange
		cfg := NewConfiguration()

		// Act
		err := cfg.Validate()

		// Assert
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ASSEMBLYAI_API_KEY")
	})

	t.Run("should pass validation with an API key", func(t *testing.T) {
		// Arrange
		os.Setenv("ASSEMBLYAI_API_KEY", "test-api-key")
		defer os.Unsetenv("ASSEMBLYAI_API_KEY")

		cfg, err := NewConfigurationFromEnv()
		assert.NoError(t, err)

		// Act & Assert
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfiguration_FromFile(t *testing.T) {
	t.Run("should load settings from config file", func(t *testing.T) {
		// Arrange - create temporary config file
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")
		configContent := `provider:
  api_key: "file-api-key"
  status_timeout: "10s"
upload:
  dir: "/var/uploads"
server:
  addr: ":9000"`

		err := os.WriteFile(configFile, []byte(configContent), 0644)
		assert.NoError(t, err)

		cfg, err := NewConfigurationFromFile(configFile)
		assert.NoError(t, err)

		// Assert
		assert.Equal(t, "file-api-key", cfg.GetProviderAPIKey())
		assert.Equal(t, 10*time.Second, cfg.GetStatusTimeout())
		assert.Equal(t, "/var/uploads", cfg.GetUploadDir())
		assert.Equal(t, ":9000", cfg.GetServerAddr())
	})

	t.Run("should return error for non-existent config file", func(t *testing.T) {
		// Act
		cfg, err := NewConfigurationFromFile("/tmp/non-existent-config.yaml")

		// Assert
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestConfiguration_GetProviderBaseURL(t *testing.T) {
	t.Run("should trim trailing slash from base URL", func(t *testing.T) {
		// Arrange
		os.Setenv("ASSEMBLYAI_BASE_URL", "http://localhost:9999/v2/")
		defer os.Unsetenv("ASSEMBLYAI_BASE_URL")

		cfg, err := NewConfigurationFromEnv()
		assert.NoError(t, err)

		// Assert
		assert.Equal(t, "http://localhost:9999/v2", cfg.GetProviderBaseURL())
	})
}
