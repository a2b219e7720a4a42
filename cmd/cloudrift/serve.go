package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cloudrift/cloudrift/internal/catalog"
	"github.com/cloudrift/cloudrift/internal/config"
	"github.com/cloudrift/cloudrift/internal/service"
	"github.com/cloudrift/cloudrift/internal/storage"
	"github.com/cloudrift/cloudrift/internal/thumbnail"
)

// engine bundles the running components so shutdown can tear them down
// in order.
type engine struct {
	svc  *service.Service
	cat  *catalog.Store
	pool *storage.Pool
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storage engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgFile)
		},
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if logLevel == "" {
		setupLogging(cfg.LogLevel)
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	log.Info().Str("version", Version).
		Str("upload_dir", cfg.Storage.UploadDir).
		Str("catalog", cfg.Catalog.Path).
		Msg("cloudrift started")

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		storage.InitMetrics(prometheus.DefaultRegisterer)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics endpoint up")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}

	// Drain background cleanup before closing the catalog.
	eng.pool.Close()
	if err := eng.cat.Close(); err != nil {
		log.Warn().Err(err).Msg("catalog close")
	}

	log.Info().Msg("cloudrift stopped")
	return nil
}

func buildEngine(cfg *config.Config) (*engine, error) {
	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}

	ns := storage.NewNamespace(cfg.Storage.UploadDir, cfg.Storage.TempDir, cfg.Storage.BaseURL)
	chunks := storage.NewChunkStore(ns)
	pool := storage.NewPool(cfg.Pool.Workers, cfg.Pool.Queue)

	bufSize, err := cfg.MergeBufferBytes()
	if err != nil {
		return nil, err
	}
	coord := storage.NewCoordinator(ns, chunks, pool, bufSize)
	ledger := storage.NewLedger(cat)

	var thumbs *thumbnail.Pipeline
	if cfg.Thumbnail.Enabled {
		thumbs = thumbnail.New(ns, thumbnail.Options{
			Width:    cfg.Thumbnail.Width,
			Height:   cfg.Thumbnail.Height,
			FFmpeg:   cfg.Thumbnail.FFmpeg,
			Pdftoppm: cfg.Thumbnail.Pdftoppm,
			PDFDPI:   cfg.Thumbnail.PDFDPI,
		})
	}

	recent := storage.NewRecentMerges(storage.DefaultRecentSize, storage.DefaultRecentTTL)
	svc := service.New(ns, chunks, ledger, coord, thumbs, cat, recent)

	return &engine{svc: svc, cat: cat, pool: pool}, nil
}
