package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Source provides the schedule and the reference catalogs. Implementations
// must return fresh data on every call; the scheduler never caches it.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
	Poll(ctx context.Context, id uint32) (Poll, error)
	Quiz(ctx context.Context, id uint32) (Quiz, error)
}

// Files reads the catalogs from disk on every call.
type Files struct {
	SchedulePath string
	PollPath     string
	QuizPath     string
	// Location applies to timestamps without an offset. Nil means UTC.
	Location *time.Location
}

var _ Source = (*Files)(nil)

func (f *Files) Items(ctx context.Context) ([]Item, error) {
	_ = ctx
	b, err := readFile("schedule", f.SchedulePath)
	if err != nil {
		return nil, err
	}
	return DecodeItems(f.SchedulePath, b, f.Location)
}

func (f *Files) Polls(ctx context.Context) ([]Poll, error) {
	_ = ctx
	b, err := readFile("poll catalog", f.PollPath)
	if err != nil {
		return nil, err
	}
	return DecodePolls(f.PollPath, b)
}

func (f *Files) Quizzes(ctx context.Context) ([]Quiz, error) {
	_ = ctx
	b, err := readFile("quiz catalog", f.QuizPath)
	if err != nil {
		return nil, err
	}
	return DecodeQuizzes(f.QuizPath, b, f.Location)
}

func (f *Files) Poll(ctx context.Context, id uint32) (Poll, error) {
	all, err := f.Polls(ctx)
	if err != nil {
		return Poll{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return Poll{}, fmt.Errorf("%w: id %d", ErrPollNotFound, id)
}

func (f *Files) Quiz(ctx context.Context, id uint32) (Quiz, error) {
	all, err := f.Quizzes(ctx)
	if err != nil {
		return Quiz{}, err
	}
	for _, q := range all {
		if q.ID == id {
			return q, nil
		}
	}
	return Quiz{}, fmt.Errorf("%w: id %d", ErrQuizNotFound, id)
}

func readFile(what, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%s path is not configured", what)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return b, nil
}
