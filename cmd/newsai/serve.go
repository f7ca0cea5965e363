package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/listing"
	"github.com/TobiSchelling/NewsAI/internal/scheduler"
	"github.com/TobiSchelling/NewsAI/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		secret, err := sessionSecret()
		if err != nil {
			return err
		}
		sessions, err := auth.NewSessions(secret, cfg.Server.SessionTTL)
		if err != nil {
			return err
		}

		srv, err := server.New(server.Deps{
			Listing:  listing.NewService(db, logger),
			Recorder: listing.NewRecorder(db, logger),
			Auth:     auth.NewService(db, sessions, logger),
			Health:   db.Ping,
			Log:      logger,
		}, server.Options{
			SecureCookies:     cfg.Server.SecureCookies,
			AuthRatePerMinute: cfg.Server.AuthRatePerMinute,
		})
		if err != nil {
			return err
		}

		if cfg.Ingest.Schedule != "" {
			sched := scheduler.New(ctx, cfg.Ingest.Schedule, func(ctx context.Context) error {
				_, err := runIngest(ctx, db, false)
				return err
			}, logger)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Serve(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// sessionSecret returns the configured secret, or a random one that
// invalidates every session on restart.
func sessionSecret() (string, error) {
	if cfg.Server.SessionSecret != "" {
		return cfg.Server.SessionSecret, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	logger.Warn("No session secret configured; using a random one. Sessions end when the server restarts. Set NEWSAI_SESSION_SECRET to keep them.")
	return hex.EncodeToString(buf), nil
}
