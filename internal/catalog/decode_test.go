package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name string
		raw  string
		loc  *time.Location
		want time.Time
	}{
		{"rfc3339 utc", "2024-05-01T18:00:00Z", nil, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)},
		{"rfc3339 offset", "2024-05-01T18:00:00+02:00", nil, time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)},
		{"zoneless default utc", "2024-05-01 18:00", nil, time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)},
		{"zoneless in location", "2024-05-01T18:00:00", berlin, time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw, tt.loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
	_, err = ParseTimestamp("tomorrow", nil)
	assert.Error(t, err)
}

func TestDecodeItems(t *testing.T) {
	t.Parallel()
	doc := `[
		{"id": 1, "message": "hi", "scheduled_at": "2024-05-01T18:00:00Z", "to_pin": true},
		{"id": 2, "message": "vote", "scheduled_at": "2024-05-01 19:00", "poll_id": 3, "target": {"channel": "polls"}}
	]`
	items, err := DecodeItems("schedule.json", []byte(doc), nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].ToPin)
	assert.True(t, *items[0].ToPin)
	require.NotNil(t, items[1].PollID)
	assert.Equal(t, uint32(3), *items[1].PollID)
	assert.Equal(t, "polls", items[1].Target.Channel)

	assert.True(t, items[0].Pin(false))
	assert.True(t, items[1].Pin(true))
	assert.False(t, items[1].Pin(false))
}

func TestDecodeItemsRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"duplicate id":   `[{"id":1,"scheduled_at":"2024-05-01T18:00:00Z"},{"id":1,"scheduled_at":"2024-05-01T18:00:00Z"}]`,
		"bad time":       `[{"id":1,"scheduled_at":"soon"}]`,
		"target no chan": `[{"id":1,"scheduled_at":"2024-05-01T18:00:00Z","target":{"guild":"g"}}]`,
		"not a list":     `{"id":1}`,
		"unknown key":    `[{"id":1,"scheduled_at":"2024-05-01T18:00:00Z","pollid":3}]`,
		"unknown target": `[{"id":1,"scheduled_at":"2024-05-01T18:00:00Z","target":{"channel":"c","chan":"x"}}]`,
		"trailing data":  `[{"id":1,"scheduled_at":"2024-05-01T18:00:00Z"}] []`,
	}
	for name, doc := range cases {
		_, err := DecodeItems("s.json", []byte(doc), nil)
		assert.Error(t, err, name)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := DecodeItems("schedule.yaml", []byte("- id: 1\n  scheduled_at: 2024-05-01T18:00:00Z\n  quiz-id: 4\n"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quiz-id")

	_, err = DecodePolls("polls.json", []byte(`[{"id":1,"question":"q","answers":["a","b"],"multiselect":true}]`))
	assert.Error(t, err)

	_, err = DecodeQuizzes("quiz.json", []byte(`[{"id":1,"answer":"x","reply":"y"}]`), nil)
	assert.Error(t, err)
}

func TestDecodePollsLegacyAliases(t *testing.T) {
	t.Parallel()
	doc := `
- id: 1
  message: Old style?
  questions: [yes, no]
- id: 2
  question: New style?
  answers: [a, b, c]
  duration: 48h
  multi_select: true
`
	polls, err := DecodePolls("polls.yaml", []byte(doc))
	require.NoError(t, err)
	require.Len(t, polls, 2)
	assert.Equal(t, "Old style?", polls[0].Question)
	assert.Len(t, polls[0].Answers, 2)
	assert.Equal(t, 48*time.Hour, polls[1].Duration)
	assert.True(t, polls[1].MultiSelect)
	assert.Len(t, polls[1].Answers, 3)
}

func TestDecodeQuizzes(t *testing.T) {
	t.Parallel()
	doc := `[{"id":4,"answer":"Paris","reply_with":"Yes {mention}","end_at":"2024-05-02T00:00:00Z","monitor_channel":"quiz"}]`
	qs, err := DecodeQuizzes("quiz.json", []byte(doc), nil)
	require.NoError(t, err)
	q := qs[0]
	require.NotNil(t, q.EndAt)
	assert.True(t, q.EndAt.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, q.HasMonitorOverride())
	assert.False(t, q.GuildWithoutChannel())
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestFilesLookup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := &Files{
		SchedulePath: writeFile(t, dir, "schedule.json", `[{"id":1,"message":"x","scheduled_at":"2024-05-01T18:00:00Z"}]`),
		PollPath:     writeFile(t, dir, "polls.json", `[{"id":7,"question":"q","answers":["a","b"]}]`),
		QuizPath:     writeFile(t, dir, "quizzes.json", `[]`),
	}
	ctx := context.Background()

	p, err := f.Poll(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "q", p.Question)
	_, err = f.Poll(ctx, 8)
	assert.ErrorIs(t, err, ErrPollNotFound)
	_, err = f.Quiz(ctx, 1)
	assert.ErrorIs(t, err, ErrQuizNotFound)

	items, err := f.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	missing := &Files{SchedulePath: filepath.Join(dir, "nope.json")}
	_, err = missing.Items(ctx)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := &Files{
		SchedulePath: writeFile(t, dir, "schedule.json", `[
			{"id":1,"scheduled_at":"2024-05-01T18:00:00Z","poll_id":1,"attachments":["a.png"]},
			{"id":2,"scheduled_at":"2024-05-01T18:00:00Z","poll_id":9},
			{"id":3,"scheduled_at":"2024-05-01T18:00:00Z","quiz_id":5}
		]`),
		PollPath: writeFile(t, dir, "polls.json", `[{"id":1,"question":"q","answers":["only"]}]`),
		QuizPath: writeFile(t, dir, "quizzes.json", `[{"id":5,"answer":"x","monitor_guild":"g"}]`),
	}
	problems := Check(context.Background(), f)

	var joined []string
	for _, p := range problems {
		joined = append(joined, p.Error())
	}
	all := strings.Join(joined, "\n")
	for _, want := range []string{"poll 1", "item 1: attachments", "item 2", "quiz 5"} {
		assert.Contains(t, all, want)
	}
}
