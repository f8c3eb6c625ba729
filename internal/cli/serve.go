package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"matinee.app/mcp-matinee/internal/buildinfo"
	"matinee.app/mcp-matinee/internal/catalog"
	"matinee.app/mcp-matinee/internal/config"
	"matinee.app/mcp-matinee/internal/control"
	"matinee.app/mcp-matinee/internal/diagnostics"
	"matinee.app/mcp-matinee/internal/lifecycle"
	"matinee.app/mcp-matinee/internal/mcpserver"
	"matinee.app/mcp-matinee/internal/player"
	"matinee.app/mcp-matinee/internal/session"
	"matinee.app/mcp-matinee/internal/sseserver"
)

const serverName = "mcp-matinee"

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	if selfTest {
		return runSelfTest(settings)
	}

	runCtx, stopSignals := signal.NotifyContext(context.Background(), lifecycle.TerminationSignals()...)
	defer stopSignals()

	logLevel := resolveLogLevel(settings)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	diag := diagnostics.DetectDependencies()
	logger.Info(
		"mcp_server_start",
		slog.String("server", serverName),
		slog.String("version", buildinfo.Version),
		slog.String("log_level", logLevel.String()),
		slog.String("transport", settings.Transport),
		slog.String("media_dir", settings.MediaDir),
		slog.Bool("player_available", diag.AnyPlayerPresent),
		slog.Bool("control_capable", diag.ControlCapable),
	)
	if !diag.AnyPlayerPresent {
		logger.Warn("no_player_binary_found", slog.String("hint", "install mpv to enable playback"))
	}

	scanner := catalog.NewScanner(settings.MediaDir, settings.Extensions)
	launcher := player.NewLauncher()
	launcher.Prefer(settings.Preferred)
	playback := session.New(launcher, control.NewChannel(), logger)

	srv := mcpserver.New(os.Stdin, os.Stdout, mcpserver.Config{
		ServerName:    serverName,
		ServerVersion: buildinfo.Version,
		Logger:        logger,
		Catalog:       scanner,
		Playback:      playback,
	})

	var runErr error
	switch settings.Transport {
	case config.TransportStdio:
		runErr = runStdio(runCtx, srv)
	case config.TransportHTTP:
		logger.Info("http_listen", slog.String("addr", settings.Addr()))
		runErr = sseserver.New(srv, logger).Run(runCtx, settings.Addr())
	case config.TransportHTTPS:
		logger.Info("https_listen", slog.String("addr", settings.Addr()))
		runErr = sseserver.New(srv, logger).RunTLS(runCtx, settings.Addr(), settings.CertFile, settings.KeyFile)
	}

	switch {
	case runErr == nil:
		logger.Info("mcp_server_stopping", slog.String("reason", "clean_eof"))
	case errors.Is(runErr, context.Canceled):
		logger.Info("mcp_server_stopping", slog.String("reason", "shutdown_signal"))
		runErr = nil
	default:
		logger.Warn("mcp_server_stopping", slog.String("reason", runErr.Error()))
	}
	return runErr
}

func runStdio(ctx context.Context, srv *mcpserver.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resolveLogLevel(settings *config.Settings) slog.Level {
	if raw := strings.TrimSpace(os.Getenv("MCP_MATINEE_LOG_LEVEL")); raw != "" {
		return parseLogLevel(raw)
	}
	return settings.SlogLevel()
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "", "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "invalid MCP_MATINEE_LOG_LEVEL=%q; defaulting to info\n", raw)
		return slog.LevelInfo
	}
}
