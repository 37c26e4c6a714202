package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName scopes config, cache and log paths.
const AppName = "voicebridge"

// Load builds the configuration from defaults, v, a .env file in the
// working directory, and the environment, in that order, then validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if v != nil {
		applyViper(v, &cfg)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Could not read .env file", "err", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("invalid environment: %w", err)
	}

	if err := expandPaths(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyViper(v *viper.Viper, cfg *Config) {
	duration(v, "poll_interval", &cfg.PollInterval)
	str(v, "log_level", &cfg.LogLevel)

	boolean(v, "capture.enabled", &cfg.Capture.Enabled)
	integer(v, "capture.sample_rate", &cfg.Capture.SampleRate)
	integer(v, "capture.chunk_frames", &cfg.Capture.ChunkFrames)
	str(v, "capture.output", &cfg.Capture.Output)

	boolean(v, "pipe.enabled", &cfg.Pipe.Enabled)
	str(v, "pipe.name", &cfg.Pipe.Name)
	str(v, "pipe.transport", &cfg.Pipe.Transport)
	duration(v, "pipe.connect_timeout", &cfg.Pipe.ConnectTimeout)
	str(v, "pipe.encoding", &cfg.Pipe.Encoding)
	integer(v, "pipe.max_read", &cfg.Pipe.MaxRead)

	boolean(v, "speech.enabled", &cfg.Speech.Enabled)
	str(v, "speech.provider", &cfg.Speech.Provider)
	str(v, "speech.fallback_provider", &cfg.Speech.FallbackProvider)
	str(v, "speech.language_code", &cfg.Speech.LanguageCode)
	str(v, "speech.voice_name", &cfg.Speech.VoiceName)
	str(v, "speech.gender", &cfg.Speech.Gender)
	str(v, "speech.say_as", &cfg.Speech.SayAs)
	integer(v, "speech.queue_capacity", &cfg.Speech.QueueCapacity)
	duration(v, "speech.timeout", &cfg.Speech.Timeout)
	integer(v, "speech.sample_rate", &cfg.Speech.SampleRate)
	str(v, "speech.api_key", &cfg.Speech.APIKey)
	str(v, "speech.credentials_file", &cfg.Speech.CredentialsFile)
	integer(v, "speech.requests_per_minute", &cfg.Speech.RequestsPerMinute)
	boolean(v, "speech.echo_messages", &cfg.Speech.EchoMessages)

	boolean(v, "cache.enabled", &cfg.Cache.Enabled)
	str(v, "cache.dir", &cfg.Cache.Dir)
	int64s(v, "cache.memory_capacity", &cfg.Cache.MemoryCapacity)
	int64s(v, "cache.disk_capacity", &cfg.Cache.DiskCapacity)
	integer(v, "cache.compression_level", &cfg.Cache.CompressionLevel)
}

func str(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func boolean(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func integer(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func int64s(v *viper.Viper, key string, dst *int64) {
	if v.IsSet(key) {
		*dst = v.GetInt64(key)
	}
}

func duration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

func expandPaths(cfg *Config) error {
	for _, p := range []*string{&cfg.Cache.Dir, &cfg.Speech.CredentialsFile, &cfg.Capture.Output} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand path %q: %w", *p, err)
		}
		*p = expanded
	}

	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			log.Debug("No cache directory, keeping audio in memory only", "err", err)
			return nil
		}
		cfg.Cache.Dir = dir
	}
	return nil
}

// DefaultCacheDir returns the per-user audio cache directory.
func DefaultCacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audio"), nil
}

// SetDefaults registers the defaults with v so they show up in config
// dumps and flag help.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("capture.enabled", d.Capture.Enabled)
	v.SetDefault("capture.sample_rate", d.Capture.SampleRate)
	v.SetDefault("capture.chunk_frames", d.Capture.ChunkFrames)

	v.SetDefault("pipe.enabled", d.Pipe.Enabled)
	v.SetDefault("pipe.name", d.Pipe.Name)
	v.SetDefault("pipe.transport", d.Pipe.Transport)
	v.SetDefault("pipe.connect_timeout", d.Pipe.ConnectTimeout)
	v.SetDefault("pipe.encoding", d.Pipe.Encoding)
	v.SetDefault("pipe.max_read", d.Pipe.MaxRead)

	v.SetDefault("speech.enabled", d.Speech.Enabled)
	v.SetDefault("speech.provider", d.Speech.Provider)
	v.SetDefault("speech.language_code", d.Speech.LanguageCode)
	v.SetDefault("speech.gender", d.Speech.Gender)
	v.SetDefault("speech.say_as", d.Speech.SayAs)
	v.SetDefault("speech.queue_capacity", d.Speech.QueueCapacity)
	v.SetDefault("speech.timeout", d.Speech.Timeout)
	v.SetDefault("speech.sample_rate", d.Speech.SampleRate)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_capacity", d.Cache.MemoryCapacity)
	v.SetDefault("cache.disk_capacity", d.Cache.DiskCapacity)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
}
