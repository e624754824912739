package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/async"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/export"
	"github.com/joseph-ayodele/exam-importer/internal/ingest"
	"github.com/joseph-ayodele/exam-importer/internal/pipeline"
	repo "github.com/joseph-ayodele/exam-importer/internal/repository"
	"github.com/joseph-ayodele/exam-importer/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, jobsRepo, err := repo.OpenLedger(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open job ledger", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	} else {
		logger.Warn("DB_URL not set, job ledger disabled")
	}

	extractor, chat, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to build extractor", "error", err)
		os.Exit(2)
	}
	info := chat.Info()
	logger.Info("inference provider", "provider", info.Provider, "base_url", info.BaseURL, "text_model", info.TextModel, "vision_model", info.VisionModel)

	processor := pipeline.NewProcessor(logger, extractor, jobsRepo)
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithProcessTimeout(cfg.Server.JobTimeout),
		async.WithRetention(cfg.Server.JobRetention),
	)

	svc := server.NewExtractionService(processor, queue, export.NewService(logger), logger)
	grpcServer, healthServer := server.NewGRPCServer(svc, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}

	// Report the extraction service as serving only while the model service answers.
	go watchInference(ctx, chat.IsAvailable, healthServer.SetServingStatus, cfg.Inference.ProbeTimeout, logger)

	if cfg.Server.WatchDir != "" {
		if err := startHotFolder(ctx, cfg, svc, logger); err != nil {
			logger.Error("failed to start hot folder", "dir", cfg.Server.WatchDir, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("examimportd listening", "addr", addr, "workers", cfg.Server.Workers, "ledger", db != nil)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
}

func watchInference(ctx context.Context, available func(context.Context) bool, set func(string, grpc_health_v1.HealthCheckResponse_ServingStatus), interval time.Duration, logger *slog.Logger) {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	last := grpc_health_v1.HealthCheckResponse_UNKNOWN
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
		if available(ctx) {
			st = grpc_health_v1.HealthCheckResponse_SERVING
		}
		if st != last {
			logger.Info("inference health changed", "status", st.String())
			set(server.ServiceName, st)
			last = st
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startHotFolder submits every PDF dropped into the watch directory.
func startHotFolder(ctx context.Context, cfg *common.Config, svc *server.ExtractionService, logger *slog.Logger) error {
	mode, ok := constants.ParseMode(cfg.Server.WatchMode)
	if !ok {
		return common.NewAppError("CONFIG_ERROR", "WATCH_MODE must be text or vision", common.ErrInvalidInput)
	}
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Server.WatchDir},
		InitialScan: true,
		SkipHidden:  true,
		Debounce:    2 * time.Second,
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		for err := range errs {
			logger.Warn("hot folder watcher error", "error", err)
		}
	}()

	importer := ingest.NewImporter(cfg.Limits.MaxBytes, func(ctx context.Context, doc ingest.Document) (string, error) {
		return svc.Submit(ctx, mode, doc.Bytes, doc.Metadata())
	}, logger)
	go importer.Run(ctx, paths)

	logger.Info("hot folder watching", "dir", cfg.Server.WatchDir, "mode", mode)
	return nil
}
