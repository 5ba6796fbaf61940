package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// setDefaults applies the reference policy values used when nothing is
// configured. Timeouts and pool size mirror the provider call policy
// (120s submit, 30s status check, 4 workers).
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.base_url", "https://api.assemblyai.com/v2")
	v.SetDefault("provider.submit_timeout", "120s")
	v.SetDefault("provider.status_timeout", "30s")
	v.SetDefault("provider.workers", 4)
	v.SetDefault("upload.dir", "./temp_uploads")
	v.SetDefault("upload.max_file_size", int64(1000_000_000)) // 1000MB
	v.SetDefault("upload.allowed_extensions", []string{".mp3", ".mp4", ".mkv", ".wav", ".m4a"})
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("cleanup.interval", "1h")
	v.SetDefault("cleanup.file_retention", "30m")
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	// Set up environment variable mapping
	v.SetEnvPrefix("SCRIBE")
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("provider.api_key", "ASSEMBLYAI_API_KEY")
	v.BindEnv("provider.base_url", "ASSEMBLYAI_BASE_URL")
	v.BindEnv("upload.dir", "UPLOAD_DIR")
	v.BindEnv("upload.max_file_size", "MAX_FILE_SIZE")
	v.BindEnv("server.addr", "API_ADDR")
	v.BindEnv("cleanup.interval", "CLEANUP_INTERVAL")
	v.BindEnv("cleanup.file_retention", "FILE_RETENTION")

	return &Configuration{viper: v}, nil
}

// Validate checks that required settings are present
func (c *Configuration) Validate() error {
	if c.GetProviderAPIKey() == "" {
		return fmt.Errorf("provider API key is required (set ASSEMBLYAI_API_KEY)")
	}
	return nil
}

// GetProviderAPIKey returns the transcription provider API key
func (c *Configuration) GetProviderAPIKey() string {
	return c.viper.GetString("provider.api_key")
}

// GetProviderBaseURL returns the transcription provider API base URL
func (c *Configuration) GetProviderBaseURL() string {
	return strings.TrimRight(c.viper.GetString("provider.base_url"), "/")
}

// GetSubmitTimeout returns the bound on a provider submission call
func (c *Configuration) GetSubmitTimeout() time.Duration {
	return c.viper.GetDuration("provider.submit_timeout")
}

// GetStatusTimeout returns the bound on a provider status check call
func (c *Configuration) GetStatusTimeout() time.Duration {
	return c.viper.GetDuration("provider.status_timeout")
}

// GetWorkerCount returns the size of the provider call worker pool
func (c *Configuration) GetWorkerCount() int {
	return c.viper.GetInt("provider.workers")
}

// GetUploadDir returns the directory for temporary media uploads
func (c *Configuration) GetUploadDir() string {
	return c.viper.GetString("upload.dir")
}

// GetMaxFileSize returns the upload size cap in bytes
func (c *Configuration) GetMaxFileSize() int64 {
	return c.viper.GetInt64("upload.max_file_size")
}

// GetAllowedExtensions returns the accepted media file extensions
func (c *Configuration) GetAllowedExtensions() []string {
	return c.viper.GetStringSlice("upload.allowed_extensions")
}

// GetServerAddr returns the HTTP listen address
func (c *Configuration) GetServerAddr() string {
	return c.viper.GetString("server.addr")
}

// GetCleanupInterval returns the period between retention sweeps
func (c *Configuration) GetCleanupInterval() time.Duration {
	return c.viper.GetDuration("cleanup.interval")
}

// GetFileRetention returns how long uploaded media is kept before sweeping
func (c *Configuration) GetFileRetention() time.Duration {
	return c.viper.GetDuration("cleanup.file_retention")
}
