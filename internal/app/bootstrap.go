package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/catalog"
	"herald/internal/config"
	"herald/internal/quiz"
	"herald/internal/scheduler"
	logx "herald/pkg/logx"
)

const defaultWorkers = 8

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

func mapCatalog(cfg *config.Config) (*catalog.Files, error) {
	loc, err := mapLocation(cfg)
	if err != nil {
		return nil, err
	}
	return &catalog.Files{
		SchedulePath: strings.TrimSpace(cfg.Catalog.Schedule),
		PollPath:     strings.TrimSpace(cfg.Catalog.Polls),
		QuizPath:     strings.TrimSpace(cfg.Catalog.Quizzes),
		Location:     loc,
	}, nil
}

// attachmentRoot anchors relative attachment paths at the schedule file.
func attachmentRoot(cfg *config.Config) string {
	return filepath.Dir(strings.TrimSpace(cfg.Catalog.Schedule))
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	warmup, err := config.ParseDurationOrDefault("discord.warmup", cfg.Discord.Warmup, scheduler.DefaultWarmup)
	if err != nil {
		return scheduler.Config{}, err
	}
	resolve, err := config.ParseDurationOrDefault("scheduler.resolve_retry", cfg.Scheduler.ResolveRetry, scheduler.DefaultResolveRetry)
	if err != nil {
		return scheduler.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("scheduler.send_backoff", cfg.Scheduler.SendBackoff, scheduler.DefaultSendBackoff)
	if err != nil {
		return scheduler.Config{}, err
	}
	retryBackoff, err := config.ParseDurationOrDefault("ledger.retry_backoff", cfg.Ledger.RetryBackoff, scheduler.DefaultRetryBackoff)
	if err != nil {
		return scheduler.Config{}, err
	}
	policy, err := scheduler.ParseFailurePolicy(cfg.Ledger.OnPersistFailure)
	if err != nil {
		return scheduler.Config{}, err
	}
	tick := strings.TrimSpace(cfg.Scheduler.Tick)
	if tick == "" {
		tick = scheduler.DefaultTick
	}
	if _, err := cron.ParseStandard(tick); err != nil {
		return scheduler.Config{}, fmt.Errorf("scheduler.tick: invalid %q: %w", tick, err)
	}
	retryMax := cfg.Ledger.RetryMax
	if retryMax == 0 {
		retryMax = scheduler.DefaultRetryMax
	}
	return scheduler.Config{
		Guild:            strings.TrimSpace(cfg.Discord.TargetGuild),
		Channel:          strings.TrimSpace(cfg.Discord.TargetChannel),
		PinAll:           cfg.Discord.PinAll,
		Tick:             tick,
		Warmup:           warmup,
		ResolveRetry:     resolve,
		SendBackoff:      backoff,
		RetryMax:         retryMax,
		RetryBackoff:     retryBackoff,
		OnPersistFailure: policy,
	}, nil
}

func mapWorkers(cfg *config.Config) int {
	if cfg.Quiz.Workers > 0 {
		return cfg.Quiz.Workers
	}
	return defaultWorkers
}

// validate is the full startup and hot-reload check.
func validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := quiz.ParsePolicy(cfg.Quiz.Policy); err != nil {
		return err
	}
	return nil
}
