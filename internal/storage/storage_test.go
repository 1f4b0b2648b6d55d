package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "herald/pkg/logx"
)

func openBoth(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[string]Store{}
	for _, c := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "completed.json")},
		{Driver: "sqlite", Path: filepath.Join(dir, "herald.db"), BusyTimeout: time.Second},
	} {
		st, err := Open(c, logx.Nop())
		require.NoError(t, err, c.Driver)
		t.Cleanup(func() { _ = st.Close() })
		stores[c.Driver] = st
	}
	return stores
}

func TestCompletedRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.LoadCompleted(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, st.SaveCompleted(ctx, []uint32{9, 1, 4}))
			require.NoError(t, st.SaveCompleted(ctx, []uint32{9, 1, 4, 12}))

			got, err = st.LoadCompleted(ctx)
			require.NoError(t, err)
			assert.Equal(t, []uint32{1, 4, 9, 12}, got)

			assert.NoError(t, st.AppendAudit(ctx, AuditEntry{ItemID: 1, ChannelID: "c", MessageID: "m"}))
		})
	}
}

func TestFileMissingIsEmpty(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "sub", "completed.json")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ids, err := st.LoadCompleted(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestFileCorruptIsError(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "completed.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))
	st, err := Open(Config{Driver: "file", Path: p}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.LoadCompleted(context.Background())
	assert.Error(t, err)
}

// A directory squatting on the temp path makes the write fail before the
// rename; the stored set must be unchanged.
func TestFileFailedSaveKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := filepath.Join(dir, "completed.json")
	st, err := Open(Config{Driver: "file", Path: p}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SaveCompleted(ctx, []uint32{1, 2}))
	require.NoError(t, os.Mkdir(p+".tmp", 0o755))
	assert.Error(t, st.SaveCompleted(ctx, []uint32{1, 2, 3}))

	got, err := st.LoadCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, got)
}

func TestFileAuditIsJSONLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "completed.json")}, logx.Nop())
	require.NoError(t, err)
	for i := uint32(1); i <= 2; i++ {
		require.NoError(t, st.AppendAudit(ctx, AuditEntry{At: time.Now(), ItemID: i, ChannelID: "c", MessageID: "m", QuizID: 7}))
	}
	_ = st.Close()

	f, err := os.Open(filepath.Join(dir, "completed.audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var n int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), "line %d", n)
		n++
		assert.Equal(t, uint32(n), e.ItemID)
		assert.Equal(t, uint32(7), e.QuizID)
	}
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, st.AppendAudit(ctx, AuditEntry{}), ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}
