// Package main provides the entry point for the voicebridge CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/voicebridge/voicebridge/internal/bridge"
	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	headless   bool
	mouse      bool

	appConfig config.Config

	rootCmd = &cobra.Command{
		Use:   "voicebridge",
		Short: "Bridge a microphone, a message pipe and speech synthesis",
		Long: paragraph(
			fmt.Sprintf("\nCapture audio, read messages from a named pipe and %s, all from one polling loop.",
				keyword("speak them back")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	headless = viper.GetBool("headless")
	mouse = viper.GetBool("mouse")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if viper.GetBool("capture.disabled") {
		cfg.Capture.Enabled = false
	}
	appConfig = cfg
	applyLogLevel(cfg.LogLevel)
	return nil
}

func applyLogLevel(level string) {
	if debugLogging() {
		return
	}
	if l, err := log.ParseLevel(level); err == nil {
		log.SetLevel(l)
	}
}

func execute(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bridge.New(ctx, appConfig, bridge.Options{})
	if err != nil {
		return fmt.Errorf("unable to start bridge: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("Shutdown was not clean", "error", err)
		}
	}()
	if err := b.Start(); err != nil {
		return err
	}

	watchConfig()

	if headless || !term.IsTerminal(int(os.Stdout.Fd())) {
		if !debugLogging() {
			log.SetOutput(os.Stderr)
		}
		return runHeadless(ctx, b, appConfig)
	}
	return runTUI(b)
}

// runHeadless is the host loop without a terminal: tick on a timer until
// interrupted, reconnecting the message channel when it drops.
func runHeadless(ctx context.Context, b *bridge.Bridge, cfg config.Config) error {
	log.Info("Running headless", "poll_interval", cfg.PollInterval, "pipe", cfg.Pipe.Name)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	lastAttempt := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping")
			return nil
		case now := <-ticker.C:
			b.Tick()
			if cfg.Pipe.Enabled && now.Sub(lastAttempt) >= cfg.Pipe.ConnectTimeout && b.Reconnect() {
				lastAttempt = now
			}
		}
	}
}

func runTUI(b *bridge.Bridge) error {
	cfg := ui.Config{
		PollInterval: appConfig.PollInterval,
		EnableMouse:  mouse,
		ConfigFile:   viper.ConfigFileUsed(),
	}
	if _, err := ui.NewProgram(cfg, b).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// watchConfig follows edits to the config file. Only the log level is
// applied live; everything else needs a restart.
func watchConfig() {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		applyLogLevel(cfg.LogLevel)
		log.Info("Configuration reloaded", "file", e.Name, "log_level", cfg.LogLevel)
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().String("provider", "", "speech provider (google, google-rest, mock)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "run without the dashboard")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse (dashboard only)")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().StringP("pipe", "p", "", "name of the message channel to connect to")
	rootCmd.Flags().String("transport", "", "message channel transport (pipe, websocket)")
	rootCmd.Flags().Bool("echo", false, "speak every received message")
	rootCmd.Flags().Bool("no-capture", false, "do not open the microphone")

	// Config bindings
	_ = viper.BindPFlag("headless", rootCmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("speech.provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("pipe.name", rootCmd.Flags().Lookup("pipe"))
	_ = viper.BindPFlag("pipe.transport", rootCmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("speech.echo_messages", rootCmd.Flags().Lookup("echo"))
	_ = viper.BindPFlag("capture.disabled", rootCmd.Flags().Lookup("no-capture"))

	config.SetDefaults(viper.GetViper())
	viper.SetDefault("headless", false)

	rootCmd.AddCommand(configCmd, manCmd, sayCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("VOICEBRIDGE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
