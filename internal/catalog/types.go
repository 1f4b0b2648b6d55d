package catalog

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrPollNotFound  = errors.New("poll not found")
	ErrQuizNotFound  = errors.New("quiz not found")
	ErrTooFewAnswers = errors.New("poll needs at least 2 answers")
)

// MinPollAnswers is the smallest answer count a chat poll accepts.
const MinPollAnswers = 2

// Target overrides the destination of an item. Guild is optional; when
// empty the channel is looked up in the default guild.
type Target struct {
	Guild   string `json:"guild,omitempty"`
	Channel string `json:"channel"`
}

// Item is one scheduled message.
type Item struct {
	ID          uint32
	Message     string
	ScheduledAt time.Time
	PollID      *uint32
	QuizID      *uint32
	Attachments []string
	ToPin       *bool
	Target      *Target
}

// Due reports whether the item's time has arrived.
func (it Item) Due(now time.Time) bool { return !it.ScheduledAt.After(now) }

// Pin resolves the item-level pin flag against the global default.
func (it Item) Pin(def bool) bool {
	if it.ToPin != nil {
		return *it.ToPin
	}
	return def
}

type Poll struct {
	ID          uint32
	Question    string
	Answers     []string
	Duration    time.Duration // 0 means the default (24h)
	MultiSelect bool
}

type Quiz struct {
	ID             uint32
	Answer         string
	ReplyWith      string
	EndAt          *time.Time
	MonitorGuild   string
	MonitorChannel string
}

// HasMonitorOverride reports whether the quiz watches somewhere other than
// the channel the item was sent to.
func (q Quiz) HasMonitorOverride() bool {
	return strings.TrimSpace(q.MonitorGuild) != "" || strings.TrimSpace(q.MonitorChannel) != ""
}

// GuildWithoutChannel is an invalid override: a guild alone does not name a channel.
func (q Quiz) GuildWithoutChannel() bool {
	return strings.TrimSpace(q.MonitorGuild) != "" && strings.TrimSpace(q.MonitorChannel) == ""
}
