// Command server runs the real-time chat relay: a WebSocket endpoint that
// fans out chat messages, presence and typing events, plus health and test
// pages over plain HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/mama165/sdk-go/logs"
	"github.com/urfave/cli/v3"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "relaychat",
		Usage:   "real-time chat relay over WebSocket",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment (ignored if missing)",
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "listen address, overrides SERVER_PORT",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := server.LoadConfig(cmd.String("env-file"))
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if cmd.IsSet("port") {
		if err := cfg.OverridePort(cmd.String("port")); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	hub := server.NewHub(log)
	go hub.Run()
	log.Info("Hub started and ready to manage WebSocket connections")

	mux := server.SetupRoutes(hub, cfg, log)
	httpServer := server.CreateServer(cfg.Port, mux)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, log); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		_ = hub.Shutdown(cfg.ShutdownTimeout)
		return err
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	log.Info("Server stopped cleanly")
	return nil
}
