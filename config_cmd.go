package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# how often the bridge is polled (10ms to 1s)
poll_interval: 100ms
# debug, info, warn or error
log_level: info

# microphone capture
capture:
  enabled: true
  sample_rate: 16000
  # frames per device callback
  chunk_frames: 1600
  # write raw s16le PCM here (optional)
  # output: "~/voicebridge-capture.pcm"

# message channel from the host application
pipe:
  enabled: true
  # a named pipe or FIFO path, or a ws:// URL with transport: websocket
  # name: "/tmp/voicebridge.fifo"
  transport: pipe
  connect_timeout: 10s
  # utf-16le or utf-8
  encoding: utf-16le
  max_read: 10240

# text-to-speech
speech:
  enabled: true
  # google, google-rest or mock
  provider: google
  # takes over after repeated provider failures (optional)
  # fallback_provider: google-rest
  language_code: en-US
  # voice_name: "en-US-Standard-A"
  # neutral, male or female
  gender: neutral
  say_as: verbatim
  queue_capacity: 10
  timeout: 60s
  sample_rate: 24000
  # speak every message received on the pipe
  echo_messages: false
  # api_key: "your-api-key-here"
  # credentials_file: "~/.config/gcloud/voicebridge.json"
  # 0 disables the limit
  requests_per_minute: 0

# synthesized audio cache
cache:
  enabled: true
  # dir: "~/.cache/voicebridge/audio"
  memory_capacity: 33554432
  disk_capacity: 268435456
  compression_level: 3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the voicebridge config file",
	Long:    paragraph(fmt.Sprintf("\n%s the voicebridge config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("voicebridge config\nvoicebridge config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// a broken config must still be editable
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("voicebridge", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
