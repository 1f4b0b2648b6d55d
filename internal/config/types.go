package config

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Catalog   CatalogConfig   `json:"catalog"`
	Ledger    LedgerConfig    `json:"ledger"`
	Quiz      QuizConfig      `json:"quiz"`
	Debug     DebugConfig     `json:"debug"`
}

// DiscordConfig holds the bot credentials and the default destination.
//
// The token may be left empty when HERALD_DISCORD_TOKEN is set (see LoadEnv).
type DiscordConfig struct {
	Token         string `json:"token"`
	TargetGuild   string `json:"target_guild"`
	TargetChannel string `json:"target_channel"`
	PinAll        bool   `json:"pin_all,omitempty"`
	// Warmup is a Go duration string; how long to let the gateway cache fill
	// after the ready event before resolving destinations. Default "5s".
	Warmup string `json:"warmup,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards WARN+ log lines into a channel of the target guild.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls the dispatch loop.
//
// Defaults (when fields are omitted/zero):
//   - timezone: "UTC" (applied to scheduled_at values without an offset)
//   - tick: "* * * * *" (top of every minute)
//   - resolve_retry: "60s"
//   - send_backoff: "2s"
type SchedulerConfig struct {
	Timezone     string `json:"timezone,omitempty"`
	Tick         string `json:"tick,omitempty"`
	ResolveRetry string `json:"resolve_retry,omitempty"`
	SendBackoff  string `json:"send_backoff,omitempty"`
}

// CatalogConfig points at the read-only schedule, poll and quiz files.
// Each file may be JSON or YAML (by extension).
type CatalogConfig struct {
	Schedule string `json:"schedule"`
	Polls    string `json:"polls"`
	Quizzes  string `json:"quizzes"`
}

// LedgerConfig controls the completion ledger.
//
// Example:
//
//	"ledger": { "driver": "file", "path": "./config/completed.json" }
type LedgerConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	RetryMax     int    `json:"retry_max,omitempty"`
	RetryBackoff string `json:"retry_backoff,omitempty"`
	// OnPersistFailure is "exit" (default) or "continue".
	OnPersistFailure string `json:"on_persist_failure,omitempty"`
}

type QuizConfig struct {
	// Policy is "replace" (default) or "reject".
	Policy string `json:"policy,omitempty"`
	// Workers bounds concurrent inbound message evaluation. Default 8.
	Workers int `json:"workers,omitempty"`
}

// DebugConfig enables the status and pprof HTTP endpoint. A non-loopback
// addr needs a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}
