// Command sflowcollectd is a passive sFlow v5 collector: it decodes
// incoming datagrams, folds them into in-memory counter tables, and
// serves those tables over a read-only HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/metalgrid/sflowcollectd/internal/aggregate"
	"github.com/metalgrid/sflowcollectd/internal/api"
	"github.com/metalgrid/sflowcollectd/internal/config"
	"github.com/metalgrid/sflowcollectd/internal/ingest"
	"github.com/metalgrid/sflowcollectd/internal/source"
)

func buildLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.TimeKey = "timestamp"
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return loggerConfig.Build()
}

func buildReceiver(cfg config.Config) (source.Receiver, error) {
	switch cfg.Source.Mode {
	case "pcap":
		return source.NewPCAPReceiver(source.PCAPConfig{
			Interface: cfg.Source.PCAP.Interface,
			Filter:    cfg.Source.PCAP.Filter,
			SnapLen:   cfg.Source.PCAP.SnapLen,
			Promisc:   cfg.Source.PCAP.Promisc,
			Immediate: cfg.Source.PCAP.Immediate,
			Timeout:   cfg.PCAPTimeout(),
		})
	default:
		return source.NewUDPReceiver(cfg.Source.UDP.Listen)
	}
}

func statsReporter(ctx context.Context, wg *sync.WaitGroup, log *zap.Logger, tables *aggregate.Tables, coordinator *ingest.Coordinator, interval time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("collector statistics",
				zap.Int("sources_tracked", len(tables.SourceSnapshot())),
				zap.Int("agents_tracked", len(tables.AgentSnapshot())),
				zap.Int("flow_entries", len(tables.FlowSnapshot())),
				zap.Uint64("decode_errors", coordinator.DecodeErrors()),
				zap.Int("queue_depth", coordinator.QueueDepth()),
			)
		}
	}
}

func main() {
	configPath := flag.String("config", "configs/sflowcollectd.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	receiver, err := buildReceiver(cfg)
	if err != nil {
		log.Error("failed to build packet source", zap.Error(err))
		os.Exit(1)
	}

	tables := aggregate.NewTables(log)
	coordinator := ingest.New(log, receiver, tables, cfg.Ingest.QueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.DecodeWorker(ctx)
	}()

	wg.Add(1)
	go statsReporter(ctx, &wg, log, tables, coordinator, time.Duration(cfg.Monitoring.StatsIntervalSeconds)*time.Second)

	router := api.NewRouter(tables)
	srv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("address", cfg.HTTP.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	log.Info("sflowcollectd started",
		zap.String("source_mode", cfg.Source.Mode),
		zap.Int("queue_size", cfg.Ingest.QueueSize),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server forced to shutdown", zap.Error(err))
	}

	cancel()
	if err := receiver.Close(); err != nil {
		log.Warn("failed to close packet source", zap.Error(err))
	}
	wg.Wait()

	log.Info("sflowcollectd stopped")
}
