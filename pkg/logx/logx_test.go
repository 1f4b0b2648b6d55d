package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "herald/internal/transport"
)

type recSender struct {
	mu   sync.Mutex
	msgs []string
	chs  []string
}

func (r *recSender) Send(ctx context.Context, channelID string, msg kit.OutgoingMessage) (kit.MessageRef, error) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg.Content)
	r.chs = append(r.chs, channelID)
	r.mu.Unlock()
	return kit.MessageRef{ChannelID: channelID}, nil
}
func (r *recSender) Pin(context.Context, kit.MessageRef) error         { return nil }
func (r *recSender) Reply(context.Context, *kit.Message, string) error { return nil }

func (r *recSender) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...), append([]string(nil), r.chs...)
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	snd := &recSender{}
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true, RatePerSec: 100}}, snd)
	defer svc.Close()
	svc.SetChatTarget("c-logs")

	log.Info("routine")
	log.Warn("ledger slow", Item(7), String("path", "./completed.json"))

	require.Eventually(t, func() bool {
		msgs, _ := snd.snapshot()
		return len(msgs) > 0
	}, 2*time.Second, 5*time.Millisecond)

	msgs, chs := snd.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "c-logs", chs[0])
	assert.True(t, strings.HasPrefix(msgs[0], "**[WARN]** ledger slow"), msgs[0])
	assert.Contains(t, msgs[0], "item=7")
}

func TestChatSinkNeedsTarget(t *testing.T) {
	snd := &recSender{}
	svc, log := New(Config{Chat: ChatConfig{Enabled: true}}, snd)
	log.Error("nowhere to go")
	require.NoError(t, svc.Close())

	msgs, _ := snd.snapshot()
	assert.Empty(t, msgs)
}

func TestFormatChatJSON(t *testing.T) {
	got := formatChatJSON([]byte(`{"level":"error","time":"x","message":"send failed","item":3,"comp":"scheduler"}`))
	assert.Equal(t, "**[ERROR]** send failed\n- comp=scheduler\n- item=3", got)

	assert.Equal(t, "plain text", formatChatJSON([]byte("plain text\n")))

	long := formatChatJSON([]byte(`{"message":"` + strings.Repeat("a", 3000) + `"}`))
	assert.Len(t, long, chatTextLimit)
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; a byte cut at 13 would land inside the 7th one.
	s := strings.Repeat("é", 20)
	got := truncate(s, 16)
	assert.True(t, utf8.ValidString(got), "%q", got)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 16)
	assert.Equal(t, strings.Repeat("é", 6)+"...", got)

	emoji := strings.Repeat("🎉", 5)
	got = truncate(emoji, 6)
	assert.True(t, utf8.ValidString(got), "%q", got)
	assert.Equal(t, "🎉", got)

	assert.Equal(t, "short", truncate("short", 10))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in, zerolog.InfoLevel), in)
	}
}

func TestNopAndZero(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	assert.False(t, Nop().IsZero())
	Nop().Info("discarded", Err(nil))
}
