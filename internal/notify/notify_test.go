package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"vigil/internal/types"
)

func plainBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
	return &bytes.Buffer{}
}

func TestShowBatchCriticalAlert(t *testing.T) {
	buf := plainBuffer(t)
	n := New(buf)

	now := time.Now()
	n.ShowBatch(&types.NotificationBatch{
		ID:       "b1",
		Tier:     types.TierCritical,
		Category: types.CategorySecurity,
		FilePath: "src/auth.js",
		Issues: []*types.Issue{{
			ID:           "i1",
			Tier:         types.TierCritical,
			Category:     types.CategorySecurity,
			FilePath:     "src/auth.js",
			Lines:        types.LineRange{Start: 12, End: 12},
			Description:  "credential-shaped literal in source",
			FixAvailable: true,
		}},
		CreatedAt: now,
		ShownAt:   &now,
	})

	out := buf.String()
	assert.Contains(t, out, "[CRITICAL] credential-shaped literal in source")
	assert.Contains(t, out, "src/auth.js:12")
	assert.Contains(t, out, "fix available: approve i1")
}

func TestShowBatchGroupedWarnings(t *testing.T) {
	buf := plainBuffer(t)
	n := New(buf)

	n.ShowBatch(&types.NotificationBatch{
		ID:       "b2",
		Tier:     types.TierWarning,
		Category: types.CategoryQuality,
		FilePath: "src/app.js",
		Issues: []*types.Issue{
			{ID: "i1", FilePath: "src/app.js", Lines: types.LineRange{Start: 3, End: 3}, Description: "one"},
			{ID: "i2", FilePath: "src/app.js", Lines: types.LineRange{Start: 9, End: 11}, Description: "two"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "[WARNING] 2 quality issue(s) in src/app.js")
	assert.Contains(t, out, "src/app.js:3")
	assert.Contains(t, out, "src/app.js:9-11")
}

func TestPreviewRendersUnifiedDiff(t *testing.T) {
	diff := Preview(&types.FixSuggestion{
		FilePath:      "src/app.js",
		Lines:         types.LineRange{Start: 2, End: 2},
		BeforeSnippet: "const res = await fetch(url);",
		AfterSnippet:  "try {\nconst res = await fetch(url);\n} catch (err) {\n}",
	})

	assert.Contains(t, diff, "--- src/app.js")
	assert.Contains(t, diff, "+++ src/app.js (fixed)")
	assert.Contains(t, diff, "+try {")
	assert.Contains(t, diff, "+} catch (err) {")
}

func TestLocationForms(t *testing.T) {
	assert.Equal(t, "terminal", location(&types.Issue{SourceKind: "terminal"}))
	assert.Equal(t, "a.js", location(&types.Issue{FilePath: "a.js"}))
	assert.Equal(t, "a.js:4", location(&types.Issue{FilePath: "a.js", Lines: types.LineRange{Start: 4, End: 4}}))
}
