package main

import (
	"context"
	"errors"
	"flag"
	"incident-pipeline/internal/config"
	"incident-pipeline/internal/logging"
	"incident-pipeline/internal/model"
	"incident-pipeline/internal/pipeline"
	"incident-pipeline/internal/store"
	"incident-pipeline/internal/upload"
	"incident-pipeline/pkg/utils"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "configuration file")
	logLevel := flag.String("log-level", "", "console log level (overrides config)")
	skipUpload := flag.Bool("skip-upload", false, "write the CSV file but do not upload it")
	flag.Parse()

	// Load .env file if it exists; real environment variables win
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		slog.Info("not uploading CSV to HunchLab, exiting")
		return upload.ExitConfig
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger, closer, err := logging.SetupWithFile(level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return upload.ExitConfig
	}
	defer closer.Close()
	logger.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec pipeline.Recorder
	if st, err := store.Open(cfg.Store.Path); err != nil {
		logger.Warn("run history unavailable", "path", cfg.Store.Path, "error", err)
	} else {
		defer st.Close()
		rec = st
	}

	outputs := utils.NewOutputManager(cfg.Source.OutputDir)
	outPath, err := outputs.GetOutputFilePath(cfg.Source.Output)
	if err != nil {
		logger.Error("failed to prepare output path", "error", err)
		return upload.ExitFetchFailed
	}

	runner, err := pipeline.NewRunner(pipeline.Options{
		Endpoint:   cfg.Source.Endpoint,
		Datasource: cfg.Source.Datasource,
		OutputPath: outPath,
		PageSize:   cfg.Source.PageSize,
		PageDelay:  cfg.Source.PageDelay,
		Client:     &http.Client{Timeout: cfg.Source.Timeout},
	}, rec, logger)
	if err != nil {
		logger.Error("failed to configure pipeline", "error", err)
		return upload.ExitConfig
	}

	report, err := runner.Run(ctx)
	if err != nil {
		logger.Error("fetch failed", "run_id", report.RunID, "error", err)
		return upload.ExitFetchFailed
	}
	if size, err := outputs.GetFileSize(outPath); err == nil {
		logger.Info("file written", "path", outPath, "bytes", size, "rows", report.RowsWritten)
	}

	if *skipUpload {
		logger.Info("upload skipped")
		return upload.ExitOK
	}

	logger.Info("uploading data to HunchLab")
	code := uploadFile(ctx, cfg, outPath, rec, logger)
	if code == upload.ExitOK {
		logger.Info("upload complete")
	}
	return code
}

// uploadFile submits path and waits for the import job, recording the
// upload as its own run.
func uploadFile(ctx context.Context, cfg *config.Config, path string, rec pipeline.Recorder, logger *slog.Logger) int {
	client, err := upload.NewClient(cfg.Server)
	if err != nil {
		logger.Error("failed to configure upload client", "error", err)
		return upload.ExitConfig
	}

	start := time.Now()
	tracker := pipeline.NewRunTracker(rec, model.RunKindUpload, client.Endpoint(), path, logger)
	tracker.Start(start)

	uploader := upload.NewUploader(client, cfg.Upload.PollInterval, logger.With("run_id", tracker.ID()))
	out, err := uploader.Upload(ctx, path, start, tracker)
	if err != nil {
		tracker.Fail(err)
		var jobErr *upload.JobError
		if errors.As(err, &jobErr) {
			logger.Error("import log", "log", jobErr.Log)
		}
		return upload.ExitCode(err)
	}

	tracker.Complete()
	logger.Info("import job completed", "import_job_id", out.JobID, "polls", out.Polls)
	return upload.ExitOK
}
