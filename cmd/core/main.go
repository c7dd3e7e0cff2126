package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/signacast/signacast/pkg/aggregator"
	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/command"
	"github.com/signacast/signacast/pkg/config"
	"github.com/signacast/signacast/pkg/gateway"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/lifecycle"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/metadata"
	"github.com/signacast/signacast/pkg/pairing"
	"github.com/signacast/signacast/pkg/reaper"
	"github.com/signacast/signacast/pkg/registry"
	"github.com/signacast/signacast/pkg/status"
)

var configFile = flag.String("config", "/etc/signacast/core.json", "Path to config file")

type coreConfig struct {
	ListenAddr     string          `json:"listen_addr"`
	NatsURL        string          `json:"nats_url"`
	Bucket         string          `json:"bucket"`
	ReapInterval   config.Duration `json:"reap_interval"`
	Retention      config.Duration `json:"retention"`
	StaleThreshold config.Duration `json:"stale_threshold"`
	OrphanInterval config.Duration `json:"orphan_interval"`
	OrphanMaxAge   config.Duration `json:"orphan_max_age"`
	Logging        *logger.Config  `json:"logging,omitempty"`
}

var errMissingNatsURL = errors.New("nats_url is required")

func (c *coreConfig) Validate() error {
	if c.NatsURL == "" {
		return errMissingNatsURL
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}

	if c.Bucket == "" {
		c.Bucket = "signacast"
	}

	return nil
}

// httpService adapts an http.Server to lifecycle.Service.
type httpService struct {
	server *http.Server
	logger logger.Logger
}

func (s *httpService) Start(_ context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cfg coreConfig
	if err := config.LoadAndValidate(ctx, *configFile, &cfg); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	mainLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	store, err := kv.NewNatsStore(ctx, cfg.NatsURL, cfg.Bucket, mainLogger)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer store.Close()

	clk := clock.New()
	reg := registry.New(store, clk, mainLogger)
	pair := pairing.New(reg, store, clk, mainLogger)
	statuses := status.NewChannel(store, clk, mainLogger)
	commands := command.NewChannel(store, clk, mainLogger)

	// Display metadata lives in the product database; the core keeps an
	// in-memory projection for the live surface.
	meta := metadata.NewMemoryStore(clk)
	saga := pairing.NewSaga(meta, pair, clk, mainLogger)

	views := aggregator.New(meta, statuses, clk, cfg.StaleThreshold.Std(), mainLogger)
	commandReaper := reaper.New(commands, cfg.ReapInterval.Std(), cfg.Retention.Std(), clk, mainLogger)
	orphanSweeper := pairing.NewOrphanSweeper(saga, cfg.OrphanInterval.Std(), cfg.OrphanMaxAge.Std(), clk, mainLogger)

	gw := gateway.New(views, commands, commandReaper, orphanSweeper, mainLogger)

	mux := http.NewServeMux()
	mux.Handle("/api/stream", gw)

	server := &httpService{
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: mainLogger,
	}

	mainLogger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("nats_url", cfg.NatsURL).
		Msg("Starting Signacast core")

	if err := lifecycle.Run(ctx, mainLogger, commandReaper, orphanSweeper, server); err != nil {
		mainLogger.Fatal().Err(err).Msg("Core terminated")
	}
}
