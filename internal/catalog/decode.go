package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"herald/internal/config"
)

type rawItem struct {
	ID          uint32   `json:"id"`
	Message     string   `json:"message"`
	ScheduledAt string   `json:"scheduled_at"`
	PollID      *uint32  `json:"poll_id,omitempty"`
	QuizID      *uint32  `json:"quiz_id,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	ToPin       *bool    `json:"to_pin,omitempty"`
	Target      *Target  `json:"target,omitempty"`
}

type rawPoll struct {
	ID          uint32   `json:"id"`
	Question    string   `json:"question"`
	Answers     []string `json:"answers"`
	Duration    string   `json:"duration,omitempty"`
	MultiSelect bool     `json:"multi_select,omitempty"`

	// Older files used message/questions.
	Message   string   `json:"message,omitempty"`
	Questions []string `json:"questions,omitempty"`
}

type rawQuiz struct {
	ID             uint32 `json:"id"`
	Answer         string `json:"answer"`
	ReplyWith      string `json:"reply_with"`
	EndAt          string `json:"end_at,omitempty"`
	MonitorGuild   string `json:"monitor_guild,omitempty"`
	MonitorChannel string `json:"monitor_channel,omitempty"`
}

// zoneless layouts are interpreted in the configured location.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts RFC 3339 (with offset) or a zoneless local time,
// which is read in loc. The result is normalized to UTC.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp required")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q (use RFC 3339 like 2024-05-01T18:00:00Z or 2024-05-01 18:00)", raw)
}

func decodeList[T any](path string, data []byte) ([]T, error) {
	jb, _, err := config.CoerceJSON(path, data)
	if err != nil {
		return nil, err
	}
	// Unknown keys are errors: a misspelled poll_id would otherwise send
	// and ledger the item without its poll.
	var out []T
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("parse %s: trailing data after list", path)
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// DecodeItems parses a schedule document.
func DecodeItems(path string, data []byte, loc *time.Location) ([]Item, error) {
	raws, err := decodeList[rawItem](path, data)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(raws))
	seen := make(map[uint32]struct{}, len(raws))
	for i, r := range raws {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%s: entry %d: duplicate id %d", path, i, r.ID)
		}
		seen[r.ID] = struct{}{}
		at, err := ParseTimestamp(r.ScheduledAt, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: item %d: scheduled_at: %w", path, r.ID, err)
		}
		if r.Target != nil && strings.TrimSpace(r.Target.Channel) == "" {
			return nil, fmt.Errorf("%s: item %d: target.channel is required when target is set", path, r.ID)
		}
		items = append(items, Item{
			ID:          r.ID,
			Message:     r.Message,
			ScheduledAt: at,
			PollID:      r.PollID,
			QuizID:      r.QuizID,
			Attachments: r.Attachments,
			ToPin:       r.ToPin,
			Target:      r.Target,
		})
	}
	return items, nil
}

// DecodePolls parses a poll catalog.
func DecodePolls(path string, data []byte) ([]Poll, error) {
	raws, err := decodeList[rawPoll](path, data)
	if err != nil {
		return nil, err
	}
	out := make([]Poll, 0, len(raws))
	for _, r := range raws {
		q := r.Question
		if q == "" {
			q = r.Message
		}
		answers := r.Answers
		if len(answers) == 0 {
			answers = r.Questions
		}
		d, err := config.ParseDurationField(fmt.Sprintf("poll %d duration", r.ID), r.Duration)
		if err != nil {
			return nil, err
		}
		out = append(out, Poll{ID: r.ID, Question: q, Answers: answers, Duration: d, MultiSelect: r.MultiSelect})
	}
	return out, nil
}

// DecodeQuizzes parses a quiz catalog.
func DecodeQuizzes(path string, data []byte, loc *time.Location) ([]Quiz, error) {
	raws, err := decodeList[rawQuiz](path, data)
	if err != nil {
		return nil, err
	}
	out := make([]Quiz, 0, len(raws))
	for _, r := range raws {
		q := Quiz{
			ID:             r.ID,
			Answer:         r.Answer,
			ReplyWith:      r.ReplyWith,
			MonitorGuild:   r.MonitorGuild,
			MonitorChannel: r.MonitorChannel,
		}
		if strings.TrimSpace(r.EndAt) != "" {
			t, err := ParseTimestamp(r.EndAt, loc)
			if err != nil {
				return nil, fmt.Errorf("%s: quiz %d: end_at: %w", path, r.ID, err)
			}
			q.EndAt = &t
		}
		out = append(out, q)
	}
	return out, nil
}
