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

	"github.com/maltedev/alkoteka-scraper/internal/config"
	"github.com/maltedev/alkoteka-scraper/internal/events"
	"github.com/maltedev/alkoteka-scraper/internal/storage"
	"github.com/maltedev/alkoteka-scraper/pkg/logger"
)

func main() {
	var (
		configFile = flag.String("config", "", "Optional YAML config file")
		output     = flag.String("output", "stream-export.json", "Output JSON file")
		group      = flag.String("group", "alkoteka-export", "Consumer group name")
		consumer   = flag.String("consumer", "", "Consumer name (default hostname)")
		follow     = flag.Bool("follow", false, "Keep consuming instead of stopping when the stream is drained")
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

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	if cfg.Redis.Addr == "" {
		log.Error("REDIS_ADDR is required")
		os.Exit(1)
	}

	name := *consumer
	if name == "" {
		name, _ = os.Hostname()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := events.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	store := storage.NewResultStore(*output, 100)
	c := events.NewConsumer(client, events.ConsumerConfig{
		Stream:   cfg.Redis.Stream,
		Group:    *group,
		Consumer: name,
	}, log)

	err = c.Run(ctx, !*follow, func(ctx context.Context, event events.ProductEvent) error {
		return store.Emit(ctx, event.Product)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "error", err)
	}

	if err := store.Save(); err != nil {
		log.Error("failed to save export", "file", store.Filename(), "error", err)
		os.Exit(1)
	}
	log.Info("export written", "file", store.Filename(), "products", store.Len())
}
