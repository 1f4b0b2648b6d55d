package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"herald/internal/catalog"
	logx "herald/pkg/logx"
)

type memSource struct {
	polls   map[uint32]catalog.Poll
	quizzes map[uint32]catalog.Quiz
}

func (m *memSource) Items(ctx context.Context) ([]catalog.Item, error) { return nil, nil }

func (m *memSource) Poll(ctx context.Context, id uint32) (catalog.Poll, error) {
	p, ok := m.polls[id]
	if !ok {
		return catalog.Poll{}, fmt.Errorf("%w: id %d", catalog.ErrPollNotFound, id)
	}
	return p, nil
}

func (m *memSource) Quiz(ctx context.Context, id uint32) (catalog.Quiz, error) {
	q, ok := m.quizzes[id]
	if !ok {
		return catalog.Quiz{}, fmt.Errorf("%w: id %d", catalog.ErrQuizNotFound, id)
	}
	return q, nil
}

func u32(v uint32) *uint32 { return &v }

func newSource() *memSource {
	return &memSource{
		polls: map[uint32]catalog.Poll{
			1: {ID: 1, Question: "Tea or coffee?", Answers: []string{"tea", "coffee"}},
			2: {ID: 2, Question: "Only one", Answers: []string{"yes"}},
			3: {ID: 3, Question: "Long", Answers: []string{"a", "b"}, Duration: 1000 * time.Hour},
		},
		quizzes: map[uint32]catalog.Quiz{
			7: {ID: 7, Answer: "paris", ReplyWith: "yes"},
			8: {ID: 8, Answer: "x", MonitorGuild: "Other"},
		},
	}
}

func TestDecoratePlainText(t *testing.T) {
	d := NewDecorator(newSource(), "", logx.Nop())
	p, err := d.Decorate(context.Background(), catalog.Item{ID: 1, Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Message.Content)
	assert.Nil(t, p.Message.Poll)
	assert.Empty(t, p.Message.Files)
	assert.Nil(t, p.Quiz)
}

func TestDecoratePollWinsOverAttachments(t *testing.T) {
	d := NewDecorator(newSource(), "", logx.Nop())
	it := catalog.Item{ID: 2, Message: "vote", PollID: u32(1), Attachments: []string{"/does/not/exist.png"}}

	p, err := d.Decorate(context.Background(), it)
	require.NoError(t, err)
	require.NotNil(t, p.Message.Poll)
	assert.Empty(t, p.Message.Files)
	assert.Equal(t, 1, p.DroppedAttachments)
	assert.Equal(t, DefaultPollDuration, p.Message.Poll.Duration)
}

func TestDecoratePollErrors(t *testing.T) {
	d := NewDecorator(newSource(), "", logx.Nop())

	_, err := d.Decorate(context.Background(), catalog.Item{ID: 3, PollID: u32(2)})
	assert.ErrorIs(t, err, ErrInvalidPoll)
	assert.ErrorIs(t, err, catalog.ErrTooFewAnswers)

	_, err = d.Decorate(context.Background(), catalog.Item{ID: 3, PollID: u32(99)})
	assert.ErrorIs(t, err, catalog.ErrPollNotFound)
}

func TestClampPollDuration(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                DefaultPollDuration,
		time.Minute:      MinPollDuration,
		48 * time.Hour:   48 * time.Hour,
		1000 * time.Hour: MaxPollDuration,
	}
	for in, want := range cases {
		assert.Equal(t, want, ClampPollDuration(in), "ClampPollDuration(%v)", in)
	}
}

func TestDecorateAttachments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("\x89PNG\r\n\x1a\n"), 0o600))
	d := NewDecorator(newSource(), dir, logx.Nop())

	p, err := d.Decorate(context.Background(), catalog.Item{ID: 4, Attachments: []string{"a.txt", "b.png"}})
	require.NoError(t, err)
	require.Len(t, p.Message.Files, 2)
	assert.Equal(t, "a.txt", p.Message.Files[0].Name)
	assert.Equal(t, "b.png", p.Message.Files[1].Name)
	b, err := io.ReadAll(p.Message.Files[0].Reader)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(b))

	t.Run("one missing aborts all", func(t *testing.T) {
		_, err := d.Decorate(context.Background(), catalog.Item{ID: 5, Attachments: []string{"a.txt", "missing.bin"}})
		assert.Error(t, err)
	})
}

func TestDecorateQuiz(t *testing.T) {
	d := NewDecorator(newSource(), "", logx.Nop())

	p, err := d.Decorate(context.Background(), catalog.Item{ID: 6, QuizID: u32(7)})
	require.NoError(t, err)
	require.NotNil(t, p.Quiz)
	assert.Equal(t, "paris", p.Quiz.Answer)

	_, err = d.Decorate(context.Background(), catalog.Item{ID: 6, QuizID: u32(8)})
	assert.Error(t, err, "guild without channel should fail")

	_, err = d.Decorate(context.Background(), catalog.Item{ID: 6, QuizID: u32(42)})
	assert.ErrorIs(t, err, catalog.ErrQuizNotFound)
}
