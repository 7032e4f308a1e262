package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/types"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		explicit    bool
		changed     int
		newFile     bool
		sensitive   bool
		patternHits int
		want        Trigger
		wantReview  bool
	}{
		{name: "explicit request always wins", explicit: true, changed: 1, want: TriggerExplicit, wantReview: true},
		{name: "large change", changed: 150, want: TriggerLargeChange, wantReview: true},
		{name: "change at threshold is not large", changed: 100, wantReview: false},
		{name: "new file", changed: 10, newFile: true, want: TriggerNewFile, wantReview: true},
		{name: "security path with no pattern hits", changed: 3, sensitive: true, want: TriggerSecurityPath, wantReview: true},
		{name: "security path with pattern hits skips", changed: 3, sensitive: true, patternHits: 2, wantReview: false},
		{name: "small ordinary change", changed: 3, wantReview: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decide(tt.explicit, tt.changed, 100, tt.newFile, tt.sensitive, tt.patternHits)
			assert.Equal(t, tt.wantReview, ok)
			if tt.wantReview {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseResponseToleratesProse(t *testing.T) {
	text := "Here is my review:\n```json\n" +
		`{"findings":[{"category":"security","severity":"critical","line_start":4,"line_end":5,"description":"query concatenation"}],"summary":"one problem"}` +
		"\n```\nLet me know if you need more."

	parsed, ok := parseResponse(text)
	require.True(t, ok)
	require.Len(t, parsed.Findings, 1)
	assert.Equal(t, 4, parsed.Findings[0].LineStart)
}

func TestParseResponseMalformed(t *testing.T) {
	_, ok := parseResponse("I could not review this file.")
	assert.False(t, ok)

	_, ok = parseResponse("{ not json }")
	assert.False(t, ok)
}

func TestToIssuesNormalizesAndValidates(t *testing.T) {
	issues := toIssues("src/db.js", []finding{
		{Category: "SECURITY", Severity: "critical", LineStart: 3, LineEnd: 2, Description: "bad query"},
		{Category: "made-up", Severity: "whatever", LineStart: 9, Description: "odd labels", SuggestedFix: "const x = safe();"},
		{Category: "logic", Severity: "warning", LineStart: 0, Description: "dropped, invalid line"},
		{Category: "logic", Severity: "warning", LineStart: 1, Description: ""},
	})

	require.Len(t, issues, 2)

	assert.Equal(t, types.CategorySecurity, issues[0].Category)
	assert.Equal(t, types.TierCritical, issues[0].Tier)
	assert.Equal(t, types.LineRange{Start: 3, End: 3}, issues[0].Lines, "inverted range collapses")
	assert.Equal(t, types.DetectionDeep, issues[0].Detection)

	assert.Equal(t, types.CategoryQuality, issues[1].Category, "unknown category defaults")
	assert.Equal(t, types.TierSuggestion, issues[1].Tier, "unknown severity defaults")
	assert.True(t, issues[1].FixAvailable)
}

func TestMergeDropsOverlappingDeepFindings(t *testing.T) {
	pattern := &types.Issue{
		ID: "p1", FilePath: "src/db.js", Category: types.CategorySecurity,
		Lines: types.LineRange{Start: 4, End: 4}, Detection: types.DetectionPattern,
	}
	overlapping := &types.Issue{
		ID: "d1", FilePath: "src/db.js", Category: types.CategorySecurity,
		Lines: types.LineRange{Start: 3, End: 5}, Detection: types.DetectionDeep,
	}
	distinct := &types.Issue{
		ID: "d2", FilePath: "src/db.js", Category: types.CategoryLogic,
		Lines: types.LineRange{Start: 3, End: 5}, Detection: types.DetectionDeep,
	}
	otherFile := &types.Issue{
		ID: "d3", FilePath: "src/other.js", Category: types.CategorySecurity,
		Lines: types.LineRange{Start: 4, End: 4}, Detection: types.DetectionDeep,
	}

	merged := Merge([]*types.Issue{pattern}, []*types.Issue{overlapping, distinct, otherFile})

	ids := make([]string, 0, len(merged))
	for _, m := range merged {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"p1", "d2", "d3"}, ids)
}

func TestBuildPromptIncludesContext(t *testing.T) {
	prompt := buildPrompt(Request{
		Path:         "src/auth.js",
		Content:      []byte("line one\nline two"),
		Trigger:      TriggerSecurityPath,
		TechStack:    []string{"react", "express"},
		RelatedFiles: []string{"src/session.js"},
	})

	assert.Contains(t, prompt, "src/auth.js")
	assert.Contains(t, prompt, "react, express")
	assert.Contains(t, prompt, "src/session.js")
	assert.Contains(t, prompt, "security_path")
	assert.Contains(t, prompt, "   1| line one")
	assert.Contains(t, prompt, `"findings"`)
}
