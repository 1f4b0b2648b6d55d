package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "herald/internal/transport"
)

type countingReplier struct {
	n    atomic.Int32
	mu   sync.Mutex
	last string
	err  error
}

func (r *countingReplier) Reply(ctx context.Context, to *kit.Message, text string) error {
	r.n.Add(1)
	r.mu.Lock()
	r.last = text
	r.mu.Unlock()
	return r.err
}

func msg(channel, content string) *kit.Message {
	return &kit.Message{ChannelID: channel, Content: content, AuthorID: "u1", AuthorMention: "<@u1>"}
}

func TestEvaluateWinClearsSlot(t *testing.T) {
	s := NewSlot(PolicyReplace)
	_, err := s.TryInstall(Active{QuizID: 1, Answer: "paris", ReplyWith: "Well done {mention}", ChannelID: "c1"})
	require.NoError(t, err)
	r := &countingReplier{}

	out, q, err := s.Evaluate(context.Background(), msg("c1", "Paris."), r)
	require.NoError(t, err)
	assert.Equal(t, Won, out)
	require.NotNil(t, q)
	assert.Equal(t, uint32(1), q.QuizID)
	assert.Equal(t, "Well done <@u1>", r.last)

	_, ok := s.Current()
	assert.False(t, ok, "slot not cleared")

	out, _, _ = s.Evaluate(context.Background(), msg("c1", "paris"), r)
	assert.Equal(t, Ignored, out)
	assert.Equal(t, int32(1), r.n.Load())
}

func TestEvaluateOtherChannelIgnored(t *testing.T) {
	s := NewSlot(PolicyReplace)
	_, _ = s.TryInstall(Active{QuizID: 1, Answer: "paris", ChannelID: "c1"})
	r := &countingReplier{}

	out, _, _ := s.Evaluate(context.Background(), msg("c2", "paris"), r)
	assert.Equal(t, Ignored, out)
	out, _, _ = s.Evaluate(context.Background(), msg("c1", "london"), r)
	assert.Equal(t, NoMatch, out)

	_, ok := s.Current()
	assert.True(t, ok, "quiz should still be active")
	assert.Zero(t, r.n.Load())
}

func TestEvaluateExpiredNeverReplies(t *testing.T) {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSlot(PolicyReplace)
	s.now = func() time.Time { return end }
	_, _ = s.TryInstall(Active{QuizID: 3, Answer: "paris", ChannelID: "c1", EndAt: &end})
	r := &countingReplier{}

	out, q, err := s.Evaluate(context.Background(), msg("c1", "paris"), r)
	require.NoError(t, err)
	assert.Equal(t, Expired, out)
	require.NotNil(t, q)
	assert.Equal(t, uint32(3), q.QuizID)
	assert.Zero(t, r.n.Load(), "expired quiz replied")

	_, ok := s.Current()
	assert.False(t, ok, "expired quiz not cleared")
}

func TestEvaluateReplyErrorStillClears(t *testing.T) {
	s := NewSlot(PolicyReplace)
	_, _ = s.TryInstall(Active{QuizID: 1, Answer: "x", ChannelID: "c1"})
	r := &countingReplier{err: errors.New("send failed")}

	out, _, err := s.Evaluate(context.Background(), msg("c1", "x"), r)
	assert.Equal(t, Won, out)
	assert.Error(t, err)

	_, ok := s.Current()
	assert.False(t, ok, "slot not cleared after reply error")
}

func TestConcurrentWinnersExactlyOneReply(t *testing.T) {
	s := NewSlot(PolicyReplace)
	_, _ = s.TryInstall(Active{QuizID: 9, Answer: "blue whale", ChannelID: "c1"})
	r := &countingReplier{}

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := msg("c1", fmt.Sprintf("it's a blue whale #%d", i))
			if out, _, _ := s.Evaluate(context.Background(), m, r); out == Won {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(1), r.n.Load())
}

func TestTryInstallPolicies(t *testing.T) {
	t.Run("replace", func(t *testing.T) {
		s := NewSlot(PolicyReplace)
		_, _ = s.TryInstall(Active{QuizID: 1, ChannelID: "c"})
		prev, err := s.TryInstall(Active{QuizID: 2, ChannelID: "c"})
		require.NoError(t, err)
		require.NotNil(t, prev)
		assert.Equal(t, uint32(1), prev.QuizID)
		cur, _ := s.Current()
		assert.Equal(t, uint32(2), cur.QuizID)
	})
	t.Run("reject", func(t *testing.T) {
		s := NewSlot(PolicyReject)
		_, _ = s.TryInstall(Active{QuizID: 1, ChannelID: "c"})
		_, err := s.TryInstall(Active{QuizID: 2, ChannelID: "c"})
		assert.ErrorIs(t, err, ErrQuizActive)
		cur, _ := s.Current()
		assert.Equal(t, uint32(1), cur.QuizID)
	})
	t.Run("reject allows after expiry", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		end := now.Add(-time.Minute)
		s := NewSlot(PolicyReject)
		s.now = func() time.Time { return now }
		_, _ = s.TryInstall(Active{QuizID: 1, ChannelID: "c", EndAt: &end})
		_, err := s.TryInstall(Active{QuizID: 2, ChannelID: "c"})
		assert.NoError(t, err)
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)

	p, err = ParsePolicy("Reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	_, err = ParsePolicy("queue")
	assert.Error(t, err)
}

func TestReplyTextWithoutPlaceholder(t *testing.T) {
	assert.Equal(t, "Correct!", ReplyText("Correct!", msg("c", "")))
}
