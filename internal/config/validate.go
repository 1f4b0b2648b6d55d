package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate performs static checks that do not need any runtime dependency.
// It is used both at startup and by the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required (or set %s)", EnvToken)
	}
	if strings.TrimSpace(cfg.Discord.TargetGuild) == "" {
		return errors.New("discord.target_guild is required")
	}
	if strings.TrimSpace(cfg.Discord.TargetChannel) == "" {
		return errors.New("discord.target_channel is required")
	}
	if _, err := ParseDurationField("discord.warmup", cfg.Discord.Warmup); err != nil {
		return err
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := ParseDurationField("scheduler.resolve_retry", cfg.Scheduler.ResolveRetry); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.send_backoff", cfg.Scheduler.SendBackoff); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Catalog.Schedule) == "" {
		return errors.New("catalog.schedule is required")
	}

	if cfg.Ledger.RetryMax < 0 {
		return errors.New("ledger.retry_max must be >= 0")
	}
	if _, err := ParseDurationField("ledger.retry_backoff", cfg.Ledger.RetryBackoff); err != nil {
		return err
	}
	if _, err := ParseDurationField("ledger.busy_timeout", cfg.Ledger.BusyTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Ledger.OnPersistFailure)) {
	case "", "exit", "continue":
	default:
		return fmt.Errorf("ledger.on_persist_failure: unknown value %q (use exit|continue)", cfg.Ledger.OnPersistFailure)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Quiz.Policy)) {
	case "", "replace", "reject":
	default:
		return fmt.Errorf("quiz.policy: unknown value %q (use replace|reject)", cfg.Quiz.Policy)
	}
	if cfg.Quiz.Workers < 0 {
		return errors.New("quiz.workers must be >= 0")
	}
	if cfg.Logging.Chat.Enabled && strings.TrimSpace(cfg.Logging.Chat.Channel) == "" {
		return errors.New("logging.chat.channel is required when logging.chat.enabled is true")
	}
	return nil
}

// ParseDurationField parses a Go duration string. Empty means zero;
// negative values are rejected. path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
