package config

import (
	"sort"
	"strings"

	logx "herald/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// safe structured attrs for logging (never includes the token).
//
// The second return value also reports whether any changed section needs a
// restart to take effect (discord credentials/destination, catalog paths, ledger, debug).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, bool) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)
	restart := false

	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token ||
		strings.TrimSpace(od.TargetGuild) != strings.TrimSpace(nd.TargetGuild) ||
		strings.TrimSpace(od.TargetChannel) != strings.TrimSpace(nd.TargetChannel) ||
		strings.TrimSpace(od.Warmup) != strings.TrimSpace(nd.Warmup) {
		changed = append(changed, "discord")
		restart = true
		attrs = append(attrs,
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.String("discord.target_guild", nd.TargetGuild),
			logx.String("discord.target_channel", nd.TargetChannel),
		)
	}
	if od.PinAll != nd.PinAll {
		changed = append(changed, "discord.pin_all")
		attrs = append(attrs, logx.Bool("discord.pin_all", nd.PinAll))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		restart = true
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.tick", strings.TrimSpace(newCfg.Scheduler.Tick)),
		)
	}

	if oldCfg.Catalog != newCfg.Catalog {
		changed = append(changed, "catalog")
		restart = true
	}

	if oldCfg.Ledger != newCfg.Ledger {
		changed = append(changed, "ledger")
		restart = true
		attrs = append(attrs,
			logx.String("ledger.driver", strings.TrimSpace(newCfg.Ledger.Driver)),
			logx.String("ledger.on_persist_failure", strings.TrimSpace(newCfg.Ledger.OnPersistFailure)),
		)
	}

	if oldCfg.Quiz != newCfg.Quiz {
		changed = append(changed, "quiz")
		attrs = append(attrs,
			logx.String("quiz.policy", strings.TrimSpace(newCfg.Quiz.Policy)),
			logx.Int("quiz.workers", newCfg.Quiz.Workers),
		)
		if oldCfg.Quiz.Workers != newCfg.Quiz.Workers {
			restart = true
		}
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		restart = true
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, restart
}
