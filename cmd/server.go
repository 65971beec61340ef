package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/chaxai/internal/logging"
	"github.com/ziadkadry99/chaxai/internal/server"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the document question answering HTTP server",
	Long: `Starts the chaxai HTTP API: document upload, listing and removal,
question answering with streaming and WebSocket chat, analytics and the
lifecycle audit trail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = serverPort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, cfg, appOptions{answers: true})
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Port:           cfg.Port,
			Version:        Version,
			AllowedOrigins: cfg.AllowedOrigins,
			APITokens:      cfg.APITokens,
			MaxUploadBytes: cfg.MaxUploadBytes(),
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}, server.Deps{
			Library:   a.library,
			Answers:   a.answers,
			Analytics: a.analytics,
			Audit:     a.audit,
		})

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			logging.L().Infow("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logging.L().Warnw("server shutdown incomplete", "error", err)
			}
		}()

		fmt.Fprintf(os.Stderr, "chaxai server %s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", cfg.DBPath())
		fmt.Fprintf(os.Stderr, "  Docs: %s\n", cfg.ResolvedDocsDir())
		fmt.Fprintf(os.Stderr, "  Documents indexed: %d\n", len(a.library.List()))

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8000, "port to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
