package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvToken overrides discord.token when set.
const EnvToken = "HERALD_DISCORD_TOKEN"

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment. Missing files are ignored; variables already set win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
		cfg.Discord.Token = tok
	}
}
