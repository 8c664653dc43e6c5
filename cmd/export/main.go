package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sayantanonfire/era5-export/internal/adapter/archive"
	httpadapter "github.com/sayantanonfire/era5-export/internal/adapter/http"
	kafkaadapter "github.com/sayantanonfire/era5-export/internal/adapter/kafka"
	"github.com/sayantanonfire/era5-export/internal/adapter/netcdf"
	"github.com/sayantanonfire/era5-export/internal/adapter/zarr"
	"github.com/sayantanonfire/era5-export/internal/config"
	"github.com/sayantanonfire/era5-export/internal/dataset"
	"github.com/sayantanonfire/era5-export/internal/observability"
	"github.com/sayantanonfire/era5-export/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	var opener pipeline.VariableOpener
	switch cfg.ArchiveFormat {
	case "netcdf":
		opener = netcdf.NewReader(cfg.ArchivePath)
	default:
		opener = archive.NewReader(cfg.ArchivePath)
	}

	// Export notifications are feature-flagged via KAFKA_ENABLED.
	var notifier pipeline.Notifier
	var kafkaNotifier *kafkaadapter.Notifier
	if cfg.KafkaEnabled {
		kafkaNotifier = kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		notifier = kafkaNotifier
		logger.Info("export notifications enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("export notifications disabled")
	}

	opts, err := buildOptions(cfg)
	if err != nil {
		logger.Error("invalid pipeline options", "error", err)
		os.Exit(1)
	}

	p := pipeline.New(opener, zarr.NewWriter(logger), notifier, logger, metrics, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.HTTPEnabled {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("export failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// buildOptions maps validated configuration onto one pipeline run.
func buildOptions(cfg *config.Config) (pipeline.Options, error) {
	var opts pipeline.Options

	for _, selector := range cfg.Variables {
		info, err := dataset.LookupVariable(selector)
		if err != nil {
			return opts, err
		}
		opts.Variables = append(opts.Variables, pipeline.VariableJob{Selector: selector, Info: info})
	}
	for _, rule := range cfg.Collapse {
		opts.Collapse = append(opts.Collapse, pipeline.CollapseJob{Variable: rule.Variable, Agg: rule.Agg})
	}

	compressor := zarr.CompressorConfig{ID: cfg.Codec, Level: cfg.CodecLevel}
	if cfg.Codec == "none" {
		compressor = zarr.CompressorConfig{}
	}

	opts.Reconcile = dataset.DefaultReconcileRules
	opts.StorePath = cfg.StorePath
	opts.StoreSpec = zarr.StoreSpec{
		Chunks:     map[string]int{dataset.DimBaseTime: cfg.ChunkSize},
		Compressor: compressor,
		Variables:  cfg.ExportVariables,
	}
	opts.Concurrency = cfg.LoadConcurrency
	return opts, nil
}
