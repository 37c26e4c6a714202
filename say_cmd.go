package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/voicebridge/voicebridge/internal/bridge"
	"github.com/voicebridge/voicebridge/internal/config"
)

var errNotSpoken = errors.New("text was not spoken")

var sayCmd = &cobra.Command{
	Use:     "say TEXT...",
	Short:   "Speak text once and exit",
	Long:    paragraph(fmt.Sprintf("\n%s the given text with the configured provider, then exit. Capture and the message channel stay closed.", keyword("Speak"))),
	Example: paragraph("voicebridge say N123-AB cleared to land\nvoicebridge say --provider mock testing"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !debugLogging() {
			log.SetOutput(os.Stderr)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return say(ctx, appConfig, strings.Join(args, " "))
	},
}

// say drives a speech-only bridge until text has been spoken.
func say(ctx context.Context, cfg config.Config, text string) error {
	cfg.Capture.Enabled = false
	cfg.Pipe.Enabled = false
	cfg.Speech.Enabled = true

	b, err := bridge.New(ctx, cfg, bridge.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if _, err := b.Speak(text); err != nil {
		return err
	}
	return waitSpoken(ctx, b, cfg.PollInterval)
}

func waitSpoken(ctx context.Context, b *bridge.Bridge, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.Tick()
			if !b.Idle() {
				continue
			}
			if b.Snapshot().Spoken == 0 {
				return errNotSpoken
			}
			return nil
		}
	}
}
