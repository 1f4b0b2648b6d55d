// Package dispatch turns a scheduled item into a ready-to-send message.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"herald/internal/catalog"
	kit "herald/internal/transport"
	logx "herald/pkg/logx"
)

var ErrInvalidPoll = errors.New("invalid poll")

// Poll duration limits accepted by the chat platform.
const (
	DefaultPollDuration = 24 * time.Hour
	MinPollDuration     = time.Hour
	MaxPollDuration     = 768 * time.Hour
)

// maxAttachmentLoads bounds concurrent attachment reads per item.
const maxAttachmentLoads = 4

// Payload is a decorated item.
type Payload struct {
	Message kit.OutgoingMessage
	// Quiz is set when the item starts a quiz.
	Quiz *catalog.Quiz
	// DroppedAttachments counts attachments ignored because a poll won.
	DroppedAttachments int
}

type Decorator struct {
	src catalog.Source
	// root anchors relative attachment paths; empty means the working directory.
	root string
	log  logx.Logger
}

func NewDecorator(src catalog.Source, attachmentRoot string, log logx.Logger) *Decorator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Decorator{src: src, root: attachmentRoot, log: log.With(logx.String("comp", "dispatch"))}
}

// Decorate builds the payload for it. Any returned error means the item must
// not be sent this tick.
func (d *Decorator) Decorate(ctx context.Context, it catalog.Item) (Payload, error) {
	p := Payload{Message: kit.OutgoingMessage{Content: it.Message}}

	if it.PollID != nil {
		poll, err := d.poll(ctx, *it.PollID)
		if err != nil {
			return Payload{}, err
		}
		p.Message.Poll = poll
		if n := len(it.Attachments); n > 0 {
			p.DroppedAttachments = n
			d.log.Warn("item has a poll and attachments; attachments dropped",
				logx.Item(it.ID), logx.Uint64("poll", uint64(*it.PollID)), logx.Int("attachments", n))
		}
	} else if len(it.Attachments) > 0 {
		files, err := d.loadAttachments(ctx, it.Attachments)
		if err != nil {
			return Payload{}, err
		}
		p.Message.Files = files
	}

	if it.QuizID != nil {
		q, err := d.src.Quiz(ctx, *it.QuizID)
		if err != nil {
			return Payload{}, err
		}
		if q.GuildWithoutChannel() {
			return Payload{}, fmt.Errorf("quiz %d: monitor_guild set without monitor_channel", q.ID)
		}
		p.Quiz = &q
	}
	return p, nil
}

func (d *Decorator) poll(ctx context.Context, id uint32) (*kit.Poll, error) {
	p, err := d.src.Poll(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(p.Answers) < catalog.MinPollAnswers {
		return nil, fmt.Errorf("%w: poll %d: %w (has %d)", ErrInvalidPoll, id, catalog.ErrTooFewAnswers, len(p.Answers))
	}
	if strings.TrimSpace(p.Question) == "" {
		return nil, fmt.Errorf("%w: poll %d has no question", ErrInvalidPoll, id)
	}
	return &kit.Poll{
		Question:    p.Question,
		Answers:     append([]string(nil), p.Answers...),
		Duration:    ClampPollDuration(p.Duration),
		MultiSelect: p.MultiSelect,
	}, nil
}

// ClampPollDuration applies the default and the platform limits.
func ClampPollDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPollDuration
	}
	return min(max(d, MinPollDuration), MaxPollDuration)
}

// loadAttachments reads every path; the first failure cancels the rest and
// nothing is returned.
func (d *Decorator) loadAttachments(ctx context.Context, paths []string) ([]kit.File, error) {
	files := make([]kit.File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxAttachmentLoads)
	for i, raw := range paths {
		i, raw := i, raw
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := d.loadFile(raw)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (d *Decorator) loadFile(raw string) (kit.File, error) {
	path := strings.TrimSpace(raw)
	if path == "" {
		return kit.File{}, errors.New("attachment: empty path")
	}
	if !filepath.IsAbs(path) && d.root != "" {
		path = filepath.Join(d.root, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return kit.File{}, fmt.Errorf("attachment %q: %w", raw, err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(b)
	}
	return kit.File{Name: filepath.Base(path), ContentType: ct, Reader: bytes.NewReader(b)}, nil
}
