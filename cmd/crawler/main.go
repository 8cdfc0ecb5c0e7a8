package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/maltedev/alkoteka-scraper/internal/api"
	"github.com/maltedev/alkoteka-scraper/internal/config"
	"github.com/maltedev/alkoteka-scraper/internal/events"
	"github.com/maltedev/alkoteka-scraper/internal/fetcher"
	"github.com/maltedev/alkoteka-scraper/internal/parser"
	"github.com/maltedev/alkoteka-scraper/internal/ratelimit"
	"github.com/maltedev/alkoteka-scraper/internal/request"
	"github.com/maltedev/alkoteka-scraper/internal/scraper"
	"github.com/maltedev/alkoteka-scraper/internal/storage"
	"github.com/maltedev/alkoteka-scraper/pkg/logger"
)

const flushEvery = 50

func main() {
	var (
		configFile = flag.String("config", "", "Optional YAML config file")
		categories = flag.String("categories", "", "Category list file (default categories.txt)")
		proxies    = flag.String("proxies", "", "Proxy list file (default proxies.txt)")
		region     = flag.String("region", "", "Region id sent as the region cookie")
		maxItems   = flag.Int("max-items", 0, "Maximum products per category (0 = unlimited)")
		output     = flag.String("output", "", "Output JSON file")
		workers    = flag.Int("workers", 0, "Number of concurrent workers")
		statusAddr = flag.String("status-addr", "", "Serve crawl status on this address, e.g. :8080")
		baseURL    = flag.String("base-url", "", "Site root used for relative category paths")
	)
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "categories":
			cfg.Spider.CategoriesFile = *categories
		case "proxies":
			cfg.Spider.ProxiesFile = *proxies
		case "region":
			cfg.Spider.RegionID = *region
		case "max-items":
			cfg.Spider.MaxItemsPerCategory = *maxItems
		case "output":
			cfg.Spider.Output = *output
		case "workers":
			cfg.Spider.Workers = *workers
		case "status-addr":
			cfg.Server.Addr = *statusAddr
		case "base-url":
			cfg.Spider.BaseURL = *baseURL
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	runID := uuid.New().String()
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format).With("run_id", runID)
	slog.SetDefault(log)

	if err := run(cfg, runID, log); err != nil {
		log.Error("crawler failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, runID string, log *slog.Logger) error {
	seeds, err := config.LoadCategories(cfg.Spider.CategoriesFile, cfg.Spider.BaseURL, cfg.Spider.CategoriesFile != "")
	switch {
	case errors.Is(err, config.ErrListFileMissing):
		log.Warn("category file not found, using default category", "error", err, "seeds", seeds)
	case err != nil:
		return fmt.Errorf("load categories: %w", err)
	}

	proxyList, err := config.LoadProxies(cfg.Spider.ProxiesFile, cfg.Spider.ProxiesFile != "")
	switch {
	case errors.Is(err, config.ErrListFileMissing):
		log.Info("no proxy file, fetching directly")
	case err != nil:
		return fmt.Errorf("load proxies: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.NewResultStore(cfg.Spider.Output, flushEvery)
	sinks := []scraper.Sink{store}

	if cfg.Redis.Addr != "" {
		client, err := events.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		publisher := events.NewStreamPublisher(client, events.StreamConfig{
			Stream: cfg.Redis.Stream,
			MaxLen: cfg.Redis.MaxLen,
			RunID:  runID,
		}, log)
		defer publisher.Close()
		sinks = append(sinks, publisher)
		log.Info("publishing products to redis stream", "addr", cfg.Redis.Addr, "stream", cfg.Redis.Stream)
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:      cfg.HTTP.UserAgent,
		AcceptLanguage: cfg.HTTP.AcceptLanguage,
		Timeout:        cfg.HTTP.Timeout.Duration,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	})
	limiter := ratelimit.New(cfg.HTTP.RateLimiter, cfg.HTTP.DownloadDelay.Duration, cfg.HTTP.Burst)
	augmenter := request.NewAugmenter(request.Region{
		CookieName: cfg.Spider.RegionCookie,
		Value:      cfg.Spider.RegionID,
	}, proxyList)

	engine := scraper.NewEngine(httpFetcher, augmenter, limiter, parser.NewAlkotekaParser(cfg.Selectors), sinks, scraper.Options{
		Workers:             cfg.Spider.Workers,
		MaxItemsPerCategory: cfg.Spider.MaxItemsPerCategory,
		AllowedHosts:        cfg.Spider.AllowedHosts,
		Logger:              log,
	})

	serverDone := make(chan struct{})
	serverCtx, stopServer := context.WithCancel(context.Background())
	if cfg.Server.Addr != "" {
		srv := api.NewServer(api.NewHandlers(engine, runID, log), api.ServerOptions{
			Addr:            cfg.Server.Addr,
			ReadTimeout:     cfg.Server.ReadTimeout.Duration,
			WriteTimeout:    cfg.Server.WriteTimeout.Duration,
			ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
		}, log)
		go func() {
			defer close(serverDone)
			if err := srv.ListenAndServe(serverCtx); err != nil {
				log.Error("status api failed", "error", err)
			}
		}()
	} else {
		close(serverDone)
	}
	defer func() {
		stopServer()
		<-serverDone
	}()

	log.Info("starting alkoteka crawler",
		"seeds", len(seeds),
		"proxies", len(proxyList),
		"region", cfg.Spider.RegionID,
		"output", cfg.Spider.Output)

	snapshot, runErr := engine.Run(ctx, seeds)
	switch {
	case errors.Is(runErr, scraper.ErrNoSeeds):
		return runErr
	case errors.Is(runErr, context.Canceled):
		log.Warn("crawl interrupted, saving collected products", "products", store.Len())
	case runErr != nil:
		log.Error("crawl stopped", "error", runErr)
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("save results: %w", err)
	}

	log.Info("results written",
		"file", store.Filename(),
		"products", store.Len(),
		"category_pages", snapshot.CategoryPages,
		"failures", snapshot.Failures,
		"duration", snapshot.Duration)

	return nil
}
