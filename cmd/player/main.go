package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/signacast/signacast/pkg/agent"
	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/command"
	"github.com/signacast/signacast/pkg/config"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/lifecycle"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/pairing"
	"github.com/signacast/signacast/pkg/registry"
	"github.com/signacast/signacast/pkg/status"
)

var configFile = flag.String("config", "/etc/signacast/player.json", "Path to config file")

type playerConfig struct {
	NatsURL           string          `json:"nats_url"`
	Bucket            string          `json:"bucket"`
	CredentialsFile   string          `json:"credentials_file"`
	PollInterval      config.Duration `json:"poll_interval"`
	HeartbeatInterval config.Duration `json:"heartbeat_interval"`
	Logging           *logger.Config  `json:"logging,omitempty"`
}

var errMissingNatsURL = errors.New("nats_url is required")

func (c *playerConfig) Validate() error {
	if c.NatsURL == "" {
		return errMissingNatsURL
	}

	if c.Bucket == "" {
		c.Bucket = "signacast"
	}

	if c.CredentialsFile == "" {
		c.CredentialsFile = "/var/lib/signacast/credentials.json"
	}

	return nil
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cfg playerConfig
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

	creds, err := agent.LoadOrCreateCredentials(cfg.CredentialsFile, time.Now())
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to load device credentials")
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

	player := agent.NewSimPlayer()

	deviceAgent := agent.New(creds, reg, pair, statuses, commands, player, agent.Config{
		PollInterval:      cfg.PollInterval.Std(),
		HeartbeatInterval: cfg.HeartbeatInterval.Std(),
	}, clk, mainLogger)

	mainLogger.Info().
		Str("device_id", creds.DeviceID).
		Str("nats_url", cfg.NatsURL).
		Msg("Starting Signacast player agent")

	if err := lifecycle.Run(ctx, mainLogger, deviceAgent); err != nil {
		mainLogger.Fatal().Err(err).Msg("Player agent terminated")
	}
}
