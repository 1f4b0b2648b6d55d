// Package target maps human-readable guild and channel names to ids using the
// chat client's cached directory.
package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kit "herald/internal/transport"
	logx "herald/pkg/logx"
)

var ErrTargetNotFound = errors.New("target not found")

// Destination is a resolved guild and channel pair.
type Destination struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
}

func (d Destination) String() string {
	return d.GuildName + "/#" + d.ChannelName
}

type Resolver struct {
	dir kit.Directory
	log logx.Logger
}

func NewResolver(dir kit.Directory, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{dir: dir, log: log.With(logx.String("comp", "target"))}
}

// Guild returns the first cached guild whose name equals name.
func (r *Resolver) Guild(name string) (kit.Guild, error) {
	for _, g := range r.dir.Guilds() {
		if g.Name == name {
			return g, nil
		}
	}
	return kit.Guild{}, fmt.Errorf("%w: guild %q", ErrTargetNotFound, name)
}

// Channel returns the first channel of guildID whose name equals name.
// A leading '#' on name is ignored.
func (r *Resolver) Channel(guildID, name string) (kit.Channel, error) {
	name = strings.TrimPrefix(name, "#")
	for _, c := range r.dir.Channels(guildID) {
		if c.Name == name {
			return c, nil
		}
	}
	return kit.Channel{}, fmt.Errorf("%w: channel %q", ErrTargetNotFound, name)
}

// Resolve looks up a guild by name and a channel by name within it.
func (r *Resolver) Resolve(guildName, channelName string) (Destination, error) {
	g, err := r.Guild(guildName)
	if err != nil {
		return Destination{}, err
	}
	c, err := r.Channel(g.ID, channelName)
	if err != nil {
		return Destination{}, fmt.Errorf("%w in guild %q", err, guildName)
	}
	return Destination{GuildID: g.ID, GuildName: g.Name, ChannelID: c.ID, ChannelName: c.Name}, nil
}

// Override resolves an item- or quiz-level destination. An empty guild
// means the default guild in def.
func (r *Resolver) Override(def Destination, guildName, channelName string) (Destination, error) {
	if strings.TrimSpace(guildName) == "" {
		c, err := r.Channel(def.GuildID, channelName)
		if err != nil {
			return Destination{}, fmt.Errorf("%w in guild %q", err, def.GuildName)
		}
		return Destination{GuildID: def.GuildID, GuildName: def.GuildName, ChannelID: c.ID, ChannelName: c.Name}, nil
	}
	return r.Resolve(guildName, channelName)
}

// Wait retries Resolve every interval until it succeeds or ctx ends.
func (r *Resolver) Wait(ctx context.Context, guildName, channelName string, interval time.Duration) (Destination, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	for attempt := 1; ; attempt++ {
		d, err := r.Resolve(guildName, channelName)
		if err == nil {
			return d, nil
		}
		r.log.Warn("destination not available yet",
			logx.String("guild", guildName),
			logx.String("channel", channelName),
			logx.Int("attempt", attempt),
			logx.Duration("retry_in", interval),
			logx.Err(err),
		)
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Destination{}, ctx.Err()
		case <-t.C:
		}
	}
}
