package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/events"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "ledger.db"), "session-1")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAndReadBack(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, events.EntrySessionStart, map[string]string{"root": "/tmp/app"}))
	require.NoError(t, l.Record(ctx, events.EntryFileChange, map[string]string{"path": "src/app.js", "kind": "modified"}))
	require.NoError(t, l.Record(ctx, events.EntryIssueDetected, map[string]string{"tier": "warning"}))

	rows, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, events.EntrySessionStart, rows[0].Type)
	assert.Equal(t, events.EntryIssueDetected, rows[2].Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rows[1].Payload, &payload))
	assert.Equal(t, "src/app.js", payload["path"])
}

func TestEntriesFilterByType(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, events.EntryFileChange, nil))
	require.NoError(t, l.Record(ctx, events.EntryFixApplied, map[string]string{"fix_id": "f1"}))
	require.NoError(t, l.Record(ctx, events.EntryFixUndone, map[string]string{"fix_id": "f1"}))

	rows, err := l.Entries(ctx, events.EntryFixApplied, events.EntryFixUndone)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, events.EntryFixApplied, rows[0].Type)
	assert.Equal(t, events.EntryFixUndone, rows[1].Type)
}

func TestCountByType(t *testing.T) {
	l := openLedger(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Record(ctx, events.EntryFileChange, nil))
	}
	require.NoError(t, l.Record(ctx, events.EntryBatchShown, nil))

	counts, err := l.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[events.EntryFileChange])
	assert.Equal(t, 1, counts[events.EntryBatchShown])
}

func TestSessionsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	first, err := Open(path, "session-a")
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), events.EntryFileChange, nil))
	require.NoError(t, first.Close())

	second, err := Open(path, "session-b")
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Record(context.Background(), events.EntryFileChange, nil))

	rows, err := second.Entries(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1, "reads are scoped to the ledger's own session")
}

func TestLastSessionID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	_, err := LastSessionID(path)
	assert.Error(t, err, "empty database has no sessions")

	l, err := Open(path, "session-x")
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), events.EntrySessionStart, nil))
	require.NoError(t, l.Close())

	id, err := LastSessionID(path)
	require.NoError(t, err)
	assert.Equal(t, "session-x", id)
}
