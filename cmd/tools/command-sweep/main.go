package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/signacast/signacast/pkg/clock"
	"github.com/signacast/signacast/pkg/command"
	"github.com/signacast/signacast/pkg/kv"
	"github.com/signacast/signacast/pkg/logger"
	"github.com/signacast/signacast/pkg/models"
)

type sweepConfig struct {
	natsURL    string
	bucket     string
	userID     string
	displayID  string
	retention  time.Duration
	dryRun     bool
	reportPath string
	timeout    time.Duration
}

type sweptCommand struct {
	CommandID string               `json:"command_id"`
	Type      models.CommandType   `json:"type"`
	Status    models.CommandStatus `json:"status"`
	AgeHours  float64              `json:"age_hours"`
	Deleted   bool                 `json:"deleted"`
}

type sweepReport struct {
	UserID    string         `json:"user_id"`
	DisplayID string         `json:"display_id"`
	Retention string         `json:"retention"`
	DryRun    bool           `json:"dry_run"`
	Total     int            `json:"total_commands"`
	Pending   int            `json:"pending_kept"`
	Swept     []sweptCommand `json:"swept"`
	StartedAt time.Time      `json:"started_at"`
}

var (
	errUserRequired    = errors.New("user is required")
	errDisplayRequired = errors.New("display is required")
)

func main() {
	cfg := parseFlags()

	if err := run(cfg); err != nil {
		log.Fatalf("command-sweep failed: %v", err)
	}
}

func parseFlags() sweepConfig {
	var cfg sweepConfig

	flag.StringVar(&cfg.natsURL, "nats-url", getenvDefault("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	flag.StringVar(&cfg.bucket, "bucket", getenvDefault("KV_BUCKET", "signacast"), "KV bucket holding command records")
	flag.StringVar(&cfg.userID, "user", "", "user whose display to sweep")
	flag.StringVar(&cfg.displayID, "display", "", "display whose command queue to sweep")
	flag.DurationVar(&cfg.retention, "retention", time.Hour, "age past which resolved commands are removed")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "log planned deletions without performing them")
	flag.StringVar(&cfg.reportPath, "report", "", "optional path to write a JSON sweep report")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "overall operation timeout")

	flag.Parse()

	return cfg
}

func run(cfg sweepConfig) error {
	if cfg.userID == "" {
		return errUserRequired
	}

	if cfg.displayID == "" {
		return errDisplayRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	toolLogger, err := logger.New(&logger.Config{Level: "info", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	store, err := kv.NewNatsStore(ctx, cfg.natsURL, cfg.bucket, toolLogger)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer store.Close()

	clk := clock.New()
	commands := command.NewChannel(store, clk, toolLogger)

	queue, err := commands.List(ctx, cfg.userID, cfg.displayID)
	if err != nil {
		return fmt.Errorf("list commands: %w", err)
	}

	report := sweepReport{
		UserID:    cfg.userID,
		DisplayID: cfg.displayID,
		Retention: cfg.retention.String(),
		DryRun:    cfg.dryRun,
		Total:     len(queue),
		StartedAt: clk.Now(),
	}

	cutoff := clk.Now().Add(-cfg.retention).UnixMilli()

	for commandID, cmd := range queue {
		if !cmd.Resolved() {
			report.Pending++

			continue
		}

		if cmd.Timestamp > cutoff {
			continue
		}

		age := time.Duration(clk.Now().UnixMilli()-cmd.Timestamp) * time.Millisecond
		entry := sweptCommand{
			CommandID: commandID,
			Type:      cmd.Type,
			Status:    cmd.Status,
			AgeHours:  age.Hours(),
		}

		if cfg.dryRun {
			toolLogger.Info().
				Str("command_id", commandID).
				Str("status", string(cmd.Status)).
				Msg("Would delete resolved command")
		} else {
			if err := commands.Delete(ctx, cfg.userID, cfg.displayID, commandID); err != nil {
				return fmt.Errorf("delete command %s: %w", commandID, err)
			}

			entry.Deleted = true
		}

		report.Swept = append(report.Swept, entry)
	}

	toolLogger.Info().
		Int("total", report.Total).
		Int("swept", len(report.Swept)).
		Int("pending_kept", report.Pending).
		Bool("dry_run", cfg.dryRun).
		Msg("Sweep complete")

	if cfg.reportPath != "" {
		if err := writeReport(cfg.reportPath, &report); err != nil {
			return err
		}
	}

	return nil
}

func writeReport(path string, report *sweepReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}

	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
