package fix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/classify"
	"vigil/internal/types"
)

func newEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := NewEngine(filepath.Join(dir, "backups"), classify.New(750*time.Millisecond), 100)
	require.NoError(t, err)
	return e, dir
}

func writeTarget(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func fixableIssue(path, content string, lines types.LineRange, after string) *types.Issue {
	iss := &types.Issue{
		ID:            "iss-1",
		Category:      types.CategoryQuality,
		Tier:          types.TierWarning,
		State:         types.IssueStateApproved,
		FilePath:      path,
		Lines:         lines,
		Description:   "network call without surrounding failure handling",
		Detection:     types.DetectionPattern,
		RuleIDs:       []string{"missing_error_handling"},
		SourceKind:    "file",
		DetectedAt:    time.Now(),
		ContentSHA256: hashOf(content),
	}
	iss.AttachSuggestion(&types.FixSuggestion{
		IssueID:      iss.ID,
		FilePath:     path,
		Lines:        lines,
		AfterSnippet: after,
	})
	return iss
}

func TestApplyBackupVerifyAndUndo(t *testing.T) {
	e, dir := newEngine(t)
	original := "const a = 1;\nconst res = await fetch(url);\nconst b = 2;\n"
	path := writeTarget(t, dir, "app.js", original)

	iss := fixableIssue(path, original, types.LineRange{Start: 2, End: 2},
		"try {\n  const res = await fetch(url);\n} catch (err) {\n  report(err);\n}")

	rec, err := e.Apply(context.Background(), iss)
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.True(t, rec.Active())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "} catch (err) {")
	assert.Contains(t, string(got), "const a = 1;")
	assert.Contains(t, string(got), "const b = 2;")

	// Backup holds the pre-fix content byte for byte.
	backup, err := os.ReadFile(rec.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(backup))

	// Undo restores exactly.
	undone, reopened, err := e.Undo(rec.FixID)
	require.NoError(t, err)
	assert.NotNil(t, undone.UndoneAt)
	assert.Equal(t, iss.ID, reopened.ID)

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(restored))

	_, _, err = e.Undo(rec.FixID)
	assert.ErrorIs(t, err, ErrAlreadyUndone)
}

func TestApplyAbortsOnStaleTarget(t *testing.T) {
	e, dir := newEngine(t)
	original := "const res = await fetch(url);\n"
	path := writeTarget(t, dir, "app.js", original)

	iss := fixableIssue(path, original, types.LineRange{Start: 1, End: 1}, "safe();")

	// The file changes after the suggestion was generated.
	require.NoError(t, os.WriteFile(path, []byte("something else\n"), 0o644))

	_, err := e.Apply(context.Background(), iss)
	assert.ErrorIs(t, err, ErrStaleTarget)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "something else\n", string(got), "aborted apply must not touch the file")
}

func TestApplyRevertsWhenVerificationFails(t *testing.T) {
	e, dir := newEngine(t)
	original := "const a = 1;\n"
	path := writeTarget(t, dir, "app.js", original)

	// The "fix" itself introduces a credential-shaped literal.
	iss := fixableIssue(path, original, types.LineRange{Start: 1, End: 1},
		`const key = "sk-abcDEF0123456789wxyz";`)

	rec, err := e.Apply(context.Background(), iss)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.NotNil(t, verr.Issue)
	assert.Equal(t, types.TierCritical, verr.Issue.Tier)
	assert.Contains(t, verr.Issue.Description, "fix verification failed")

	assert.False(t, rec.Verified)
	assert.False(t, rec.Active())

	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, original, string(got), "file reverted from backup")
}

func TestUndoUnknownFix(t *testing.T) {
	e, _ := newEngine(t)
	_, _, err := e.Undo("nope")
	assert.ErrorIs(t, err, ErrUnknownFix)
}

func TestRetentionPrunesOldestBackups(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(filepath.Join(dir, "backups"), classify.New(750*time.Millisecond), 2)
	require.NoError(t, err)

	var recs []*types.FixRecord
	for i := 0; i < 3; i++ {
		content := "const a = 1;\n"
		path := writeTarget(t, dir, "f"+string(rune('a'+i))+".js", content)
		iss := fixableIssue(path, content, types.LineRange{Start: 1, End: 1}, "const a = 2;")
		iss.ID = "iss-" + string(rune('a'+i))
		rec, err := e.Apply(context.Background(), iss)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	assert.Len(t, e.Records(), 2)
	_, ok := e.Lookup(recs[0].FixID)
	assert.False(t, ok, "oldest record pruned")
	_, statErr := os.Stat(recs[0].BackupPath)
	assert.True(t, os.IsNotExist(statErr), "pruned backup removed from disk")
	_, ok = e.Lookup(recs[2].FixID)
	assert.True(t, ok)
}

func TestReplaceLinesBounds(t *testing.T) {
	_, _, err := replaceLines("one\ntwo\n", types.LineRange{Start: 0, End: 1}, "x")
	assert.Error(t, err)
	_, _, err = replaceLines("one\ntwo\n", types.LineRange{Start: 2, End: 9}, "x")
	assert.Error(t, err)

	out, modified, err := replaceLines("one\ntwo\nthree\n", types.LineRange{Start: 2, End: 2}, "TWO\nTWO-B")
	require.NoError(t, err)
	assert.Equal(t, "one\nTWO\nTWO-B\nthree\n", out)
	assert.Equal(t, types.LineRange{Start: 2, End: 3}, modified)

	// Deletion.
	out, _, err = replaceLines("one\ntwo\nthree\n", types.LineRange{Start: 2, End: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, "one\nthree\n", out)
}
