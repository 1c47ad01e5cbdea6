// Package main is the entry point for the mailer command.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
	"github.com/shineum/smtp-mailer-lite/internal/provider/graph"
	"github.com/shineum/smtp-mailer-lite/internal/provider/ses"
	"github.com/shineum/smtp-mailer-lite/internal/provider/stdout"
	"github.com/shineum/smtp-mailer-lite/internal/smtp"
	mailtls "github.com/shineum/smtp-mailer-lite/internal/tls"
)

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	msg, err := buildMessage(cfg, opts)
	if err != nil {
		slog.Error("failed to build message", "error", err)
		os.Exit(1)
	}

	prov, err := selectProvider(cfg, opts.verbose)
	if err != nil {
		slog.Error("failed to select provider", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, aborting delivery", "signal", sig)
		cancel()
	}()

	if err := prov.Send(ctx, msg); err != nil {
		slog.Error("failed to send message",
			"provider", prov.Name(),
			"error", err,
		)
		os.Exit(1)
	}

	slog.Info("message delivered", "provider", prov.Name())
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level. Logs go to stderr so the stdout preview stays clean.
func setupLogger(level string) {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// selectProvider chooses the delivery backend based on configuration.
// An explicit provider takes precedence; otherwise the first configured
// backend wins in the order smtp, graph, ses, falling back to stdout.
func selectProvider(cfg *config.Config, verbose bool) (provider.Provider, error) {
	switch cfg.Provider {
	case "smtp":
		if !cfg.SMTPConfigured() {
			return nil, fmt.Errorf("SMTP provider selected but SMTP_HOST is required")
		}
		return newSMTPClient(cfg)

	case "ses":
		if !cfg.SESConfigured() {
			return nil, fmt.Errorf("SES provider selected but SES_REGION is required")
		}
		return newSESProvider(cfg)

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, fmt.Errorf("graph provider selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET are required")
		}
		return newGraphProvider(cfg), nil

	case "stdout":
		slog.Debug("using stdout provider")
		return newStdoutProvider(verbose), nil

	case "":
		if cfg.SMTPConfigured() {
			slog.Debug("smtp provider auto-detected")
			return newSMTPClient(cfg)
		}
		if cfg.GraphConfigured() {
			slog.Debug("graph provider auto-detected")
			return newGraphProvider(cfg), nil
		}
		if cfg.SESConfigured() {
			slog.Debug("ses provider auto-detected")
			return newSESProvider(cfg)
		}
		slog.Debug("no provider configured, using stdout provider")
		return newStdoutProvider(verbose), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newSMTPClient(cfg *config.Config) (*smtp.Client, error) {
	var tlsConfig *tls.Config
	if cfg.SMTP.StartTLS {
		c, err := mailtls.ClientConfig(cfg.SMTP.Host, cfg.SMTP.CAFile, cfg.SMTP.TLSInsecure)
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		tlsConfig = c
	}
	slog.Debug("using smtp provider",
		"host", cfg.SMTP.Host,
		"port", cfg.SMTP.Port,
		"starttls", cfg.SMTP.StartTLS,
		"auth_enabled", cfg.AuthEnabled(),
	)
	return smtp.New(smtp.Config{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		StartTLS:  cfg.SMTP.StartTLS,
		TLSConfig: tlsConfig,
		LocalName: cfg.SMTP.HeloName,
		Timeout:   cfg.SMTP.Timeout,
	}), nil
}

func newSESProvider(cfg *config.Config) (*ses.SESProvider, error) {
	slog.Debug("using AWS SES provider",
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	p, err := ses.New(context.Background(), ses.SESProviderConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SES provider: %w", err)
	}
	return p, nil
}

func newGraphProvider(cfg *config.Config) *graph.GraphProvider {
	slog.Debug("using Microsoft Graph provider", "sender", cfg.Graph.Sender)
	return graph.New(graph.GraphProviderConfig{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		Sender:       cfg.Graph.Sender,
	})
}

func newStdoutProvider(verbose bool) *stdout.Provider {
	p := stdout.New()
	p.Verbose = verbose
	return p
}
