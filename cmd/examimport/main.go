package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/common"
	"github.com/joseph-ayodele/exam-importer/internal/export"
	"github.com/joseph-ayodele/exam-importer/internal/pipeline"
	repo "github.com/joseph-ayodele/exam-importer/internal/repository"
)

const (
	exitFailure      = 1
	exitUsage        = 2
	exitPrecondition = 3
)

// metaFlags collects repeated -meta key=value pairs.
type metaFlags map[string]any

func (m metaFlags) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (m metaFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("want key=value, got %q", s)
	}
	m[strings.TrimSpace(k)] = v
	return nil
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	meta := metaFlags{}
	var (
		modeStr = flag.String("mode", "text", "extraction mode: text or vision")
		in      = flag.String("in", "", "input PDF path (required)")
		out     = flag.String("out", "", "output JSON path (default stdout)")
		xlsx    = flag.String("xlsx", "", "optional XLSX review workbook path")
		ledger  = flag.String("ledger", "", "job ledger DSN (overrides DB_URL)")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Var(meta, "meta", "job metadata key=value (repeatable)")
	flag.Parse()

	mode, ok := constants.ParseMode(*modeStr)
	if !ok {
		printError("Error: -mode must be text or vision, got %q\n", *modeStr)
		return exitUsage
	}
	if *in == "" {
		printError("Error: -in is required\n")
		flag.Usage()
		return exitUsage
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		return exitUsage
	}
	if *ledger != "" {
		cfg.Database.DSN = *ledger
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		printError("Error: read %s: %v\n", *in, err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, jobsRepo, err := repo.OpenLedger(ctx, cfg.Database, logger)
	if err != nil {
		printError("Error: open job ledger: %v\n", err)
		return exitFailure
	}
	if db != nil {
		defer db.Close()
	}

	extractor, _, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		return exitUsage
	}
	processor := pipeline.NewProcessor(logger, extractor, jobsRepo)

	var jobMeta map[string]any
	if len(meta) > 0 {
		jobMeta = meta
	}
	jobID, res, err := processor.Process(ctx, mode, pipeline.Input{Bytes: data, JobMetadata: jobMeta})
	if err != nil {
		printError("Error: %v\n", err)
		var pe *common.PreconditionError
		if errors.As(err, &pe) {
			return exitPrecondition
		}
		return exitFailure
	}

	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		printError("Error: encode result: %v\n", err)
		return exitFailure
	}
	if *out == "" {
		fmt.Println(string(body))
	} else if err := os.WriteFile(*out, append(body, '\n'), 0o644); err != nil {
		printError("Error: write %s: %v\n", *out, err)
		return exitFailure
	}

	if *xlsx != "" {
		wb, err := export.NewService(logger).ExportResultXLSX(ctx, res)
		if err != nil {
			printError("Error: export workbook: %v\n", err)
			return exitFailure
		}
		if err := os.WriteFile(*xlsx, wb, 0o644); err != nil {
			printError("Error: write %s: %v\n", *xlsx, err)
			return exitFailure
		}
	}

	logger.Info("examimport.done",
		"job_id", jobID,
		"mode", mode,
		"questions", len(res.Questions),
		"lessons", len(res.Lessons),
		"needs_review", res.NeedsReviewCount(),
		"units_failed", res.Stats.UnitsFailed,
	)
	return 0
}
