// councild hosts the multi-model council pipeline.
//
// Two modes:
//
//	councild                serve the HTTP API on COUNCIL_LISTEN_ADDR
//	councild -query "..."   run one query through the pipeline and print
//	                        the result as indented JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haricheung/council/internal/config"
	"github.com/haricheung/council/internal/pipeline"
	"github.com/haricheung/council/internal/server"
	"github.com/haricheung/council/internal/stats"
	"github.com/haricheung/council/internal/tracelog"
	"github.com/haricheung/council/internal/types"
)

func main() {
	query := flag.String("query", "", "run one query through the pipeline and exit")
	flag.Parse()

	// Load env
	_ = godotenv.Load(".env")
	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var registry *prometheus.Registry
	var tracker *stats.Tracker
	if cfg.EnableMetrics {
		registry = prometheus.NewRegistry()
		tracker = stats.New(registry)
	} else {
		tracker = stats.New(nil)
	}

	var traces *tracelog.Registry
	if cfg.SaveDebugOutputs {
		traces = tracelog.NewRegistry(cfg.DebugOutputDir)
	}

	p := pipeline.New(cfg, tracker, traces)
	defer p.Close()

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("[MAIN] shutting down")
		cancel()
	}()

	if *query != "" {
		if err := runOnce(ctx, cfg, p, *query); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			p.Close()
			os.Exit(1)
		}
		return
	}

	serve(ctx, cfg, p, registry)
}

// runOnce drives a single query with default options and prints the result.
func runOnce(ctx context.Context, cfg *config.Settings, p *pipeline.Pipeline, query string) error {
	requestID := "req_" + uuid.New().String()
	opts := types.DefaultOptions(int(cfg.RequestTimeout.Seconds()))
	result, err := p.Run(ctx, query, opts, requestID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// serve runs the HTTP host until the context is cancelled, then drains
// in-flight requests.
func serve(ctx context.Context, cfg *config.Settings, p *pipeline.Pipeline, registry *prometheus.Registry) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(cfg, p, registry).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("[MAIN] council backend listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("[MAIN] server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("[MAIN] shutdown complete")
}
