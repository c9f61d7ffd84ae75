package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"salvage-radar/advisory"
	"salvage-radar/api"
	"salvage-radar/config"
	"salvage-radar/damage"
	"salvage-radar/metrics"
	"salvage-radar/models"
	"salvage-radar/notify"
	"salvage-radar/scraper"
	"salvage-radar/scraper/copart"
	"salvage-radar/scraper/feed"
	"salvage-radar/services"
	"salvage-radar/storage"
	"salvage-radar/utils"
)

func main() {
	serve := flag.Bool("serve", false, "run periodically and serve the HTTP API")
	once := flag.Bool("once", true, "run a single pass and exit")
	model := flag.String("model", "", "model filter, overrides MODEL_FILTER")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger().Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	if *model != "" {
		cfg.Sources.ModelFilter = *model
	}

	logger, err := utils.NewLoggerWithConfig(utils.LogConfig{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		logger = utils.NewLogger()
		logger.Warn("Invalid log config, using defaults: %v", err)
	}
	defer logger.Sync()

	logger.Info("=== Salvage auction radar starting ===")
	logger.Info("Config: store %s | model %q | concurrency %d | rate %dms | hot margin %.0f%%",
		cfg.Store.Driver, cfg.Sources.ModelFilter, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.Filter.HotThreshold*100)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := storage.NewSQLStore(cfg.Store.Driver, cfg.Store.DSN(), logger)
	if err != nil {
		logger.Error("Failed to open offer store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	csvWriter, err := storage.NewCSVWriter(cfg.Output.CSVPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	var aux []scraper.Source
	for _, u := range cfg.Sources.FeedURLs {
		aux = append(aux, feed.New(u, cfg.Sources.SourceTimeout, logger))
	}
	collector := scraper.NewCollector(copart.New(cfg.Sources, cfg.MaxRetries, logger), aux, cfg.Sources.SourceTimeout, logger, m)

	var detector damage.Detector = damage.NopDetector{}
	if cfg.Sources.DamageURL != "" {
		detector = damage.NewHTTPDetector(cfg.Sources.DamageURL, cfg.Advisory.Timeout)
	}

	deps := services.Deps{
		Collector: collector,
		Store:     store,
		Scorer:    advisory.NewClient(cfg.Advisory, cfg.Filter.HotThreshold, logger, m),
		Detector:  detector,
		RawWriter: csvWriter,
		Metrics:   m,
	}
	if cfg.Notify.WebhookURL != "" {
		dispatcher := notify.NewDispatcher(notify.NewWebhook(cfg.Notify.WebhookURL, cfg.MaxRetries), cfg.Notify.QueueSize, logger, m)
		defer dispatcher.Close()
		deps.Notifier = dispatcher
	} else {
		logger.Info("No webhook configured, hot offers are only reported")
	}

	pipeline := services.NewPipeline(cfg, deps, logger)
	reports := []storage.ReportWriter{
		storage.NewJSONReportWriter(cfg.Output.ReportPath),
		storage.NewXLSXReportWriter(cfg.Output.XLSXPath),
	}
	insights := services.NewInsightService(logger)

	runOnce := func() (*models.RunReport, error) {
		report, err := pipeline.Run(ctx)
		if err != nil {
			return nil, err
		}
		for _, w := range reports {
			if err := w.WriteReport(report); err != nil {
				logger.Error("Report write failed: %v", err)
			}
		}
		insights.Print(os.Stdout, report, insights.Generate(report))
		return report, nil
	}

	if !*serve {
		if !*once {
			logger.Warn("-once=false without -serve has nothing to do, running once")
		}
		if _, err := runOnce(); err != nil {
			if errors.Is(err, services.ErrNoListings) {
				logger.Error("No listings were collected. Exiting.")
			} else {
				logger.Error("Run failed: %v", err)
			}
			os.Exit(1)
		}
		logger.Info("=== Done. Report: %s ===", cfg.Output.ReportPath)
		return
	}

	server := api.NewServer(store, reg, api.Options{
		ReportPath:   cfg.Output.ReportPath,
		MinMargin:    cfg.Filter.QualifiedMinMargin,
		AllowOrigins: cfg.API.AllowOrigins,
	}, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.API.Addr)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.API.RunInterval)
		defer ticker.Stop()
		for {
			if report, err := runOnce(); err != nil {
				logger.Error("Run failed: %v", err)
			} else {
				server.SetLatest(report)
			}

			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Serve mode stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("=== Shut down cleanly ===")
}
