package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/plura-ai/onboard/internal/config"
	"github.com/plura-ai/onboard/internal/logger"
	"github.com/plura-ai/onboard/internal/onboard"
	"github.com/plura-ai/onboard/internal/webui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the onboarding web server",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	assistant, store, err := buildAssistant(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	sweeper, err := startSweeper(cfg, assistant)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	server := webui.NewServer(assistant, store)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("[Serve] Listening on http://127.0.0.1:%d (build %s)", cfg.Port, build)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("[Serve] Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// startSweeper schedules periodic expiry of idle sessions.
func startSweeper(cfg *config.Config, assistant *onboard.Assistant) (*cron.Cron, error) {
	ttl, err := time.ParseDuration(cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("invalid session ttl %q: %w", cfg.Session.TTL, err)
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Session.SweepEvery, func() {
		assistant.Sessions().Expire(ttl)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Session.SweepEvery, err)
	}
	c.Start()
	logger.Debug("[Serve] Session sweeper running (%s, ttl %s)", cfg.Session.SweepEvery, ttl)
	return c, nil
}
