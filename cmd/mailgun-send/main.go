// Package main is the entry point for the mailgun-send command. It reads an
// RFC 5322 message from a file or stdin and delivers it through the
// configured provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shineum/mailgun-lite/internal/config"
	"github.com/shineum/mailgun-lite/internal/parser"
	"github.com/shineum/mailgun-lite/provider"
	"github.com/shineum/mailgun-lite/provider/mailgun"
	"github.com/shineum/mailgun-lite/provider/ses"
	"github.com/shineum/mailgun-lite/provider/stdout"
)

var errUsage = errors.New("usage: mailgun-send [-config file.yaml] [-provider mailgun|ses|stdout] [message.eml]")

func main() {
	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, aborting send", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stderr); err != nil {
		slog.Error("mailgun-send failed", "error", err)
		os.Exit(1)
	}
}

// run parses flags, builds the provider, then reads, parses and sends one
// message. Log output goes to logOut.
func run(ctx context.Context, args []string, stdin io.Reader, logOut io.Writer) error {
	fs := flag.NewFlagSet("mailgun-send", flag.ContinueOnError)
	fs.SetOutput(logOut)
	configPath := fs.String("config", "", "path to YAML configuration file (optional)")
	providerName := fs.String("provider", "", "delivery provider: mailgun, ses or stdout (overrides PROVIDER)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return errUsage
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *providerName != "" {
		cfg.Provider = strings.ToLower(*providerName)
	}

	// Setup structured logging
	setupLogger(logOut, cfg.Logging.Level)

	// Select email delivery provider before touching the message so a bad
	// configuration fails fast.
	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		return err
	}

	raw, err := readMessage(fs.Arg(0), stdin)
	if err != nil {
		return err
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	if len(msg.Attachments) > 0 && !prov.SupportsAttachments() {
		slog.Warn("provider does not support attachments, they will be dropped",
			"provider", prov.Name(),
			"attachments", len(msg.Attachments),
		)
	}

	slog.Info("sending message",
		"provider", prov.Name(),
		"from", msg.From.String(),
		"to_count", len(msg.To),
		"subject", msg.Subject,
	)

	receipt, err := prov.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("%s delivery failed: %w", prov.Name(), err)
	}

	slog.Info("message accepted",
		"provider", prov.Name(),
		"id", receipt.ID,
		"message", receipt.Message,
		"status", receipt.StatusCode,
	)
	return nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// readMessage reads the raw message from path, or from stdin when path is
// empty or "-".
func readMessage(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read message from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file: %w", err)
	}
	return raw, nil
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectProvider chooses the email delivery backend based on configuration.
// An explicit provider name takes precedence; otherwise Mailgun is used if
// configured, then SES, then stdout.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case "mailgun":
		return newMailgun(cfg)

	case "ses":
		if !cfg.SESConfigured() {
			return nil, errors.New("SES provider selected but SES_REGION and SES_SENDER are required")
		}
		return newSES(ctx, cfg)

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New(), nil

	case "":
		if cfg.MailgunConfigured() {
			return newMailgun(cfg)
		}
		if cfg.SESConfigured() {
			return newSES(ctx, cfg)
		}
		slog.Info("no provider configured, using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newMailgun(cfg *config.Config) (provider.Provider, error) {
	p, err := mailgun.New(cfg.MailgunSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create Mailgun provider: %w", err)
	}
	slog.Info("using Mailgun provider",
		"domain", cfg.Mailgun.Domain,
		"region", cfg.Mailgun.Region,
	)
	return p, nil
}

func newSES(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	p, err := ses.New(ctx, ses.Config{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SES provider: %w", err)
	}
	slog.Info("using AWS SES provider",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	return p, nil
}
