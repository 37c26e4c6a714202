// Package config holds the voicebridge settings. Values come from defaults,
// then the config file and flags through viper, then VOICEBRIDGE_*
// environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config contains every voicebridge setting.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"VOICEBRIDGE_POLL_INTERVAL"`
	LogLevel     string        `yaml:"log_level" env:"VOICEBRIDGE_LOG_LEVEL"`

	Capture CaptureConfig `yaml:"capture"`
	Pipe    PipeConfig    `yaml:"pipe"`
	Speech  SpeechConfig  `yaml:"speech"`
	Cache   CacheConfig   `yaml:"cache"`
}

// CaptureConfig contains microphone settings.
type CaptureConfig struct {
	Enabled     bool   `yaml:"enabled" env:"VOICEBRIDGE_CAPTURE_ENABLED"`
	SampleRate  int    `yaml:"sample_rate" env:"VOICEBRIDGE_CAPTURE_SAMPLE_RATE"`
	ChunkFrames int    `yaml:"chunk_frames" env:"VOICEBRIDGE_CAPTURE_CHUNK_FRAMES"`
	Output      string `yaml:"output" env:"VOICEBRIDGE_CAPTURE_OUTPUT"`
}

// PipeConfig contains message channel settings.
type PipeConfig struct {
	Enabled        bool          `yaml:"enabled" env:"VOICEBRIDGE_PIPE_ENABLED"`
	Name           string        `yaml:"name" env:"VOICEBRIDGE_PIPE_NAME"`
	Transport      string        `yaml:"transport" env:"VOICEBRIDGE_PIPE_TRANSPORT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"VOICEBRIDGE_PIPE_CONNECT_TIMEOUT"`
	Encoding       string        `yaml:"encoding" env:"VOICEBRIDGE_PIPE_ENCODING"`
	MaxRead        int           `yaml:"max_read" env:"VOICEBRIDGE_PIPE_MAX_READ"`
}

// SpeechConfig contains text-to-speech settings.
type SpeechConfig struct {
	Enabled           bool          `yaml:"enabled" env:"VOICEBRIDGE_SPEECH_ENABLED"`
	Provider          string        `yaml:"provider" env:"VOICEBRIDGE_SPEECH_PROVIDER"`
	FallbackProvider  string        `yaml:"fallback_provider" env:"VOICEBRIDGE_SPEECH_FALLBACK_PROVIDER"`
	LanguageCode      string        `yaml:"language_code" env:"VOICEBRIDGE_SPEECH_LANGUAGE_CODE"`
	VoiceName         string        `yaml:"voice_name" env:"VOICEBRIDGE_SPEECH_VOICE_NAME"`
	Gender            string        `yaml:"gender" env:"VOICEBRIDGE_SPEECH_GENDER"`
	SayAs             string        `yaml:"say_as" env:"VOICEBRIDGE_SPEECH_SAY_AS"`
	QueueCapacity     int           `yaml:"queue_capacity" env:"VOICEBRIDGE_SPEECH_QUEUE_CAPACITY"`
	Timeout           time.Duration `yaml:"timeout" env:"VOICEBRIDGE_SPEECH_TIMEOUT"`
	SampleRate        int           `yaml:"sample_rate" env:"VOICEBRIDGE_SPEECH_SAMPLE_RATE"`
	APIKey            string        `yaml:"api_key" env:"VOICEBRIDGE_SPEECH_API_KEY"`
	CredentialsFile   string        `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"VOICEBRIDGE_SPEECH_REQUESTS_PER_MINUTE"`
	EchoMessages      bool          `yaml:"echo_messages" env:"VOICEBRIDGE_SPEECH_ECHO_MESSAGES"`
}

// CacheConfig contains synthesized audio cache settings.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" env:"VOICEBRIDGE_CACHE_ENABLED"`
	Dir              string `yaml:"dir" env:"VOICEBRIDGE_CACHE_DIR"`
	MemoryCapacity   int64  `yaml:"memory_capacity" env:"VOICEBRIDGE_CACHE_MEMORY_CAPACITY"`
	DiskCapacity     int64  `yaml:"disk_capacity" env:"VOICEBRIDGE_CACHE_DISK_CAPACITY"`
	CompressionLevel int    `yaml:"compression_level" env:"VOICEBRIDGE_CACHE_COMPRESSION_LEVEL"`
}

// Accepted values.
var (
	Transports = []string{"pipe", "websocket"}
	Encodings  = []string{"utf-16le", "utf-8"}
	Providers  = []string{"google", "google-rest", "mock"}
	Genders    = []string{"neutral", "male", "female", ""}

	sampleRates = []int{8000, 11025, 16000, 22050, 24000, 32000, 44100, 48000}
)

// DefaultPipeName returns the platform's default channel name.
func DefaultPipeName() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\voicebridge`
	}
	return filepath.Join("/tmp", "voicebridge.fifo")
}

// DefaultConfig returns a Config with the reference defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		LogLevel:     "info",
		Capture: CaptureConfig{
			Enabled:     true,
			SampleRate:  16000,
			ChunkFrames: 1600,
		},
		Pipe: PipeConfig{
			Enabled:        true,
			Name:           DefaultPipeName(),
			Transport:      "pipe",
			ConnectTimeout: 10 * time.Second,
			Encoding:       "utf-16le",
			MaxRead:        10240,
		},
		Speech: SpeechConfig{
			Enabled:       true,
			Provider:      "google",
			LanguageCode:  "en-US",
			Gender:        "neutral",
			SayAs:         "verbatim",
			QueueCapacity: 10,
			Timeout:       60 * time.Second,
			SampleRate:    24000,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryCapacity:   32 << 20,
			DiskCapacity:     256 << 20,
			CompressionLevel: 3,
		},
	}
}

// Validate checks if the configuration is valid and normalizes case.
func (c *Config) Validate() error {
	if c.PollInterval < 10*time.Millisecond || c.PollInterval > time.Second {
		return fmt.Errorf("poll_interval must be between 10ms and 1s, got %v", c.PollInterval)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Pipe.Validate(); err != nil {
		return fmt.Errorf("pipe config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	return nil
}

// Validate checks if the capture configuration is valid.
func (c *CaptureConfig) Validate() error {
	if !slices.Contains(sampleRates, c.SampleRate) {
		return fmt.Errorf("invalid sample_rate %d: must be one of %v", c.SampleRate, sampleRates)
	}
	if c.ChunkFrames < 1 || c.ChunkFrames > c.SampleRate {
		return fmt.Errorf("chunk_frames must be between 1 and %d, got %d", c.SampleRate, c.ChunkFrames)
	}
	return nil
}

// Validate checks if the pipe configuration is valid.
func (c *PipeConfig) Validate() error {
	if c.Enabled && c.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	c.Transport = strings.ToLower(c.Transport)
	if !slices.Contains(Transports, c.Transport) {
		return fmt.Errorf("invalid transport %q: must be one of %v", c.Transport, Transports)
	}
	c.Encoding = strings.ToLower(c.Encoding)
	if !slices.Contains(Encodings, c.Encoding) {
		return fmt.Errorf("invalid encoding %q: must be one of %v", c.Encoding, Encodings)
	}
	if c.ConnectTimeout < 100*time.Millisecond {
		return fmt.Errorf("connect_timeout must be at least 100ms, got %v", c.ConnectTimeout)
	}
	if c.MaxRead < 2 || c.MaxRead > 1<<20 {
		return fmt.Errorf("max_read must be between 2 and %d bytes, got %d", 1<<20, c.MaxRead)
	}
	return nil
}

// Validate checks if the speech configuration is valid.
func (c *SpeechConfig) Validate() error {
	c.Provider = strings.ToLower(c.Provider)
	if !slices.Contains(Providers, c.Provider) {
		return fmt.Errorf("invalid provider %q: must be one of %v", c.Provider, Providers)
	}
	c.FallbackProvider = strings.ToLower(c.FallbackProvider)
	if c.FallbackProvider != "" && !slices.Contains(Providers, c.FallbackProvider) {
		return fmt.Errorf("invalid fallback_provider %q: must be one of %v", c.FallbackProvider, Providers)
	}
	c.Gender = strings.ToLower(c.Gender)
	if !slices.Contains(Genders, c.Gender) {
		return fmt.Errorf("invalid gender %q: must be one of %v", c.Gender, Genders)
	}
	if c.QueueCapacity < 1 || c.QueueCapacity > 100 {
		return fmt.Errorf("queue_capacity must be between 1 and 100, got %d", c.QueueCapacity)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	if !slices.Contains(sampleRates, c.SampleRate) {
		return fmt.Errorf("invalid sample_rate %d: must be one of %v", c.SampleRate, sampleRates)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative, got %d", c.RequestsPerMinute)
	}
	if c.Enabled && (c.Provider == "google-rest" || c.FallbackProvider == "google-rest") && c.APIKey == "" {
		return fmt.Errorf("the google-rest provider needs api_key")
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryCapacity <= 0 {
		return fmt.Errorf("memory_capacity must be positive, got %d", c.MemoryCapacity)
	}
	if c.Dir != "" && c.DiskCapacity <= 0 {
		return fmt.Errorf("disk_capacity must be positive, got %d", c.DiskCapacity)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 1 and 22, got %d", c.CompressionLevel)
	}
	return nil
}
