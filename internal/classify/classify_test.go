package classify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/types"
)

func classifyAll(t *testing.T, path, content string) []*types.Issue {
	t.Helper()
	c := New(750 * time.Millisecond)
	issues, err := c.File(context.Background(), path, []byte(content))
	require.NoError(t, err)
	return issues
}

func TestUnguardedFetchIsWarningWithFix(t *testing.T) {
	content := `async function load(url) {
  const res = await fetch(url);
  return res.json();
}
`
	issues := classifyAll(t, "src/api.js", content)
	require.Len(t, issues, 1)

	iss := issues[0]
	assert.Equal(t, types.TierWarning, iss.Tier)
	assert.Equal(t, types.CategoryQuality, iss.Category)
	assert.Equal(t, []string{"missing_error_handling"}, iss.RuleIDs)
	assert.Equal(t, 2, iss.Lines.Start)
	assert.True(t, iss.FixAvailable)
	require.NotNil(t, iss.Suggestion)
	assert.Contains(t, iss.Suggestion.AfterSnippet, "try {")
	assert.Contains(t, iss.Suggestion.AfterSnippet, "} catch (err) {")
}

func TestGuardedFetchIsClean(t *testing.T) {
	content := `async function load(url) {
  try {
    const res = await fetch(url);
    return res.json();
  } catch (err) {
    return null;
  }
}
`
	assert.Empty(t, classifyAll(t, "src/api.js", content))
}

func TestCredentialShapedLiteralIsCritical(t *testing.T) {
	// No assignment context at all; the shape alone must be enough.
	content := `export const client = makeClient("sk-abcDEF0123456789wxyz");` + "\n"

	issues := classifyAll(t, "src/client.js", content)
	require.Len(t, issues, 1)
	assert.Equal(t, types.TierCritical, issues[0].Tier)
	assert.Equal(t, types.CategorySecurity, issues[0].Category)
	assert.Contains(t, issues[0].RuleIDs, "hardcoded_secret")
}

func TestHardcodedCredentialAssignment(t *testing.T) {
	issues := classifyAll(t, "config.py", `api_key = "super-secret-value-1"`+"\n")
	require.Len(t, issues, 1)
	assert.Equal(t, types.TierCritical, issues[0].Tier)
}

func TestInterpolatedQueryIsCritical(t *testing.T) {
	content := "db.run(`SELECT * FROM users WHERE name = '${name}'`);\n"

	issues := classifyAll(t, "src/db.js", content)
	require.Len(t, issues, 1)
	assert.Equal(t, types.CategorySecurity, issues[0].Category)
	assert.Contains(t, issues[0].RuleIDs, "interpolated_query")
}

func TestListRenderWithoutKey(t *testing.T) {
	content := `return items.map(item => <Row item={item} />);` + "\n"

	issues := classifyAll(t, "src/List.jsx", content)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].RuleIDs, "missing_key_prop")
	assert.Equal(t, types.TierWarning, issues[0].Tier)
}

func TestBareExceptHasFixTemplate(t *testing.T) {
	content := "try:\n    risky()\nexcept:\n    pass\n"

	issues := classifyAll(t, "worker.py", content)
	require.Len(t, issues, 1)
	iss := issues[0]
	assert.Contains(t, iss.RuleIDs, "bare_except")
	require.NotNil(t, iss.Suggestion)
	assert.Equal(t, "except Exception as e:", iss.Suggestion.AfterSnippet)
}

func TestOverlappingHitsMergeIntoOneIssue(t *testing.T) {
	// One line that trips both the interpolated query rule and the
	// secret rule; the merged issue carries both ids at the higher tier.
	content := `const rows = run("SELECT * FROM t WHERE k='" + token, { token: "sk-abcDEF0123456789wxyz" });` + "\n"

	issues := classifyAll(t, "src/db.js", content)
	require.Len(t, issues, 1)
	iss := issues[0]
	assert.ElementsMatch(t, []string{"interpolated_query", "hardcoded_secret"}, iss.RuleIDs)
	assert.Equal(t, types.TierCritical, iss.Tier)
	assert.Equal(t, iss.Lines.Start, iss.Lines.End)
}

func TestLanguageRulesAreGatedByExtension(t *testing.T) {
	// A bare except shape inside a JS file must not fire the Python rule.
	assert.Empty(t, classifyAll(t, "src/app.js", "except:\n"))
	// console.log inside a Python file must not fire the JS rule.
	assert.Empty(t, classifyAll(t, "app.py", `print("console.log look-alike? no: console.logx")`+"\n"))
}

func TestRegionScanSkipsDistantLines(t *testing.T) {
	lines := make([]byte, 0, 1024)
	lines = append(lines, []byte("const x = fetch(url);\n")...) // line 1
	for i := 0; i < 40; i++ {
		lines = append(lines, []byte("const ok = 1;\n")...)
	}
	lines = append(lines, []byte("doWork();\n")...) // line 42

	c := New(750 * time.Millisecond)
	issues, err := c.Region(context.Background(), "src/app.js", lines, types.LineRange{Start: 40, End: 42})
	require.NoError(t, err)
	assert.Empty(t, issues, "hit on line 1 is outside the changed region plus context")
}

func TestRegionScanIncludesContextWindow(t *testing.T) {
	content := "a()\nb()\nconst x = fetch(url);\nd()\ne()\nf()\ng()\n"

	c := New(750 * time.Millisecond)
	// Changed line 6: line 3 is within the five-line context window.
	issues, err := c.Region(context.Background(), "src/app.js", []byte(content), types.LineRange{Start: 6, End: 6})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 3, issues[0].Lines.Start)
}

func TestCancelledContextReportsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(750 * time.Millisecond)
	_, err := c.File(ctx, "src/app.js", []byte("const x = 1;\n"))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestIssueCarriesContentHash(t *testing.T) {
	issues := classifyAll(t, "src/app.js", "const x = fetch(url);\n")
	require.Len(t, issues, 1)
	assert.Len(t, issues[0].ContentSHA256, 64)
}
