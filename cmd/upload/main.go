package main

import (
	"context"
	"flag"
	"fmt"
	"incident-pipeline/internal/config"
	"incident-pipeline/internal/logging"
	"incident-pipeline/internal/model"
	"incident-pipeline/internal/pipeline"
	"incident-pipeline/internal/store"
	"incident-pipeline/internal/upload"
	"log/slog"
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
	start := time.Now()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Upload events CSV to HunchLab.\n\nUsage: %s [flags] CSV\n", os.Args[0])
		flag.PrintDefaults()
	}
	configPath := flag.String("config", config.DefaultPath, "configuration file")
	logLevel := flag.String("log-level", "", "console log level: debug, info, warn, error (overrides config)")
	logFile := flag.String("log-file", "hunchlab_upload.log", "file receiving the full debug log; empty disables it")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return upload.ExitSubmitFailed
	}
	csvPath := flag.Arg(0)

	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("couldn't load configuration", "path", *configPath, "error", err)
		slog.Info("not uploading CSV to HunchLab, exiting")
		return upload.ExitConfig
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	file := cfg.Logging.File
	if file == "" {
		file = *logFile
	}
	logger, closer, err := logging.SetupWithFile(level, cfg.Logging.Format, file)
	if err != nil {
		slog.Error("failed to set up logging", "error", err)
		return upload.ExitConfig
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := upload.NewClient(cfg.Server)
	if err != nil {
		logger.Error("failed to configure upload client", "error", err)
		return upload.ExitConfig
	}

	var rec pipeline.Recorder
	if st, err := store.Open(cfg.Store.Path); err != nil {
		logger.Warn("run history unavailable", "path", cfg.Store.Path, "error", err)
	} else {
		defer st.Close()
		rec = st
	}

	tracker := pipeline.NewRunTracker(rec, model.RunKindUpload, client.Endpoint(), csvPath, logger)
	tracker.Start(start)

	uploader := upload.NewUploader(client, cfg.Upload.PollInterval, logger.With("run_id", tracker.ID()))
	out, err := uploader.Upload(ctx, csvPath, start, tracker)
	if err != nil {
		tracker.Fail(err)
		code := upload.ExitCode(err)
		if code == upload.ExitFileMissing {
			logger.Info("not uploading CSV to HunchLab, exiting")
		}
		return code
	}

	tracker.Complete()
	logger.Info("upload complete", "import_job_id", out.JobID, "elapsed", fmt.Sprintf("%.1f minutes", time.Since(start).Minutes()))
	return upload.ExitOK
}
