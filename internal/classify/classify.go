// Package classify implements the deterministic pattern pass that turns
// file changes into issue candidates. Rules are structural signatures
// (network call with no failure handling, credential-shaped literal,
// interpolated query construction) rather than a general lint engine;
// anything subtler is left to the deep reviewer.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"vigil/internal/types"
)

// ErrTimeout reports that a single pattern pass exceeded its budget.
// The caller skips the file; it stays un-flagged until its next change.
var ErrTimeout = errors.New("classification timed out")

// contextLines is the window scanned around a changed region so that
// rules near a change boundary still fire.
const contextLines = 5

// deadlineCheckEvery bounds how often the scan loop consults the
// context deadline.
const deadlineCheckEvery = 64

// scan is the per-line view a rule matches against. Rules may look at
// neighboring lines (e.g. for a surrounding try block) through it.
type scan struct {
	lines []string
	idx   int // zero-based
}

func (s scan) line() string { return s.lines[s.idx] }

// before reports whether any of the n preceding lines contains needle.
func (s scan) before(n int, needle string) bool {
	for i := s.idx - 1; i >= 0 && i >= s.idx-n; i-- {
		if strings.Contains(s.lines[i], needle) {
			return true
		}
	}
	return false
}

// after reports whether the line or any of the n following lines
// contains needle.
func (s scan) after(n int, needle string) bool {
	for i := s.idx; i < len(s.lines) && i <= s.idx+n; i++ {
		if strings.Contains(s.lines[i], needle) {
			return true
		}
	}
	return false
}

type rule struct {
	id       string
	category types.Category
	tier     types.SeverityTier
	exts     map[string]bool // nil matches any extension
	match    func(scan) bool
	describe string
	// fix generates a replacement for the matched line. Nil when the
	// rule has no mechanical template.
	fix func(line string) (after, rationale string)
}

var (
	jsExts = map[string]bool{".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true}
	pyExts = map[string]bool{".py": true}

	networkCall        = regexp.MustCompile(`\b(fetch|axios(\.\w+)?)\s*\(`)
	propertyChain      = regexp.MustCompile(`\b(user|data|response)\.\w+\.\w+`)
	interpolatedQuery  = regexp.MustCompile(`(?i)\b(select\s+.+\s+from|insert\s+into|update\s+\w+\s+set|delete\s+from)\b.*(\$\{|['"]\s*\+\s*\w|%s|\{\w+\})`)
	credentialAssign   = regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|token)\s*[:=]\s*["'][\w-]{8,}["']`)
	credentialShaped   = regexp.MustCompile(`["'](sk-[A-Za-z0-9]{20,}|AKIA[A-Z0-9]{16}|ghp_[A-Za-z0-9]{36})["']`)
	bareExcept         = regexp.MustCompile(`^\s*except\s*:`)
	pythonDef          = regexp.MustCompile(`^\s*def\s+\w+\s*\([^)]*\)\s*:`)
	todoComment        = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX):`)
	leadingWhitespaceR = regexp.MustCompile(`^(\s*)`)
)

// rules run top to bottom; every matching rule contributes a hit, and
// hits on overlapping lines merge into one issue downstream.
var rules = []rule{
	{
		id:       "missing_error_handling",
		category: types.CategoryQuality,
		tier:     types.TierWarning,
		exts:     jsExts,
		match: func(s scan) bool {
			return networkCall.MatchString(s.line()) &&
				!s.before(8, "try") && !s.after(2, ".catch")
		},
		describe: "network call without surrounding failure handling",
		fix: func(line string) (string, string) {
			indent := leadingWhitespaceR.FindString(line)
			after := fmt.Sprintf("%stry {\n%s\n%s} catch (err) {\n%s  // handle the failure\n%s}",
				indent, line, indent, indent, indent)
			return after, "wrap the call so a failed request cannot escape unhandled"
		},
	},
	{
		id:       "missing_key_prop",
		category: types.CategoryQuality,
		tier:     types.TierWarning,
		exts:     jsExts,
		match: func(s scan) bool {
			l := s.line()
			return strings.Contains(l, ".map(") && strings.Contains(l, "<") &&
				!s.after(2, "key=")
		},
		describe: "list rendering without a stable per-item key",
	},
	{
		id:       "missing_null_check",
		category: types.CategoryQuality,
		tier:     types.TierSuggestion,
		exts:     jsExts,
		match: func(s scan) bool {
			return propertyChain.MatchString(s.line()) && !strings.Contains(s.line(), "?.")
		},
		describe: "property chain without a null check",
	},
	{
		id:       "debug_code",
		category: types.CategoryQuality,
		tier:     types.TierSuggestion,
		exts:     jsExts,
		match: func(s scan) bool {
			return strings.Contains(s.line(), "console.log") &&
				!strings.Contains(strings.ToLower(s.line()), "debug")
		},
		describe: "console.log left in production code",
		fix: func(line string) (string, string) {
			return "", "remove the debug statement"
		},
	},
	{
		id:       "missing_error_handling",
		category: types.CategoryQuality,
		tier:     types.TierWarning,
		exts:     pyExts,
		match: func(s scan) bool {
			return strings.Contains(s.line(), "requests.") && !s.before(8, "try")
		},
		describe: "HTTP request without surrounding failure handling",
	},
	{
		id:       "bare_except",
		category: types.CategoryBestPractice,
		tier:     types.TierWarning,
		exts:     pyExts,
		match: func(s scan) bool {
			return bareExcept.MatchString(s.line())
		},
		describe: "bare except clause catches every exception",
		fix: func(line string) (string, string) {
			after := strings.Replace(line, "except:", "except Exception as e:", 1)
			return after, "catch a named exception instead of everything"
		},
	},
	{
		id:       "missing_type_hints",
		category: types.CategoryBestPractice,
		tier:     types.TierInfo,
		exts:     pyExts,
		match: func(s scan) bool {
			l := s.line()
			return pythonDef.MatchString(l) && !strings.Contains(l, "->") &&
				!strings.Contains(l, "__init__")
		},
		describe: "function without type hints",
	},
	{
		id:       "interpolated_query",
		category: types.CategorySecurity,
		tier:     types.TierCritical,
		match: func(s scan) bool {
			return interpolatedQuery.MatchString(s.line())
		},
		describe: "query built by string interpolation",
	},
	{
		id:       "hardcoded_secret",
		category: types.CategorySecurity,
		tier:     types.TierCritical,
		match: func(s scan) bool {
			return credentialAssign.MatchString(s.line()) ||
				credentialShaped.MatchString(s.line())
		},
		describe: "credential-shaped literal in source",
	},
	{
		id:       "todo_comment",
		category: types.CategoryQuality,
		tier:     types.TierInfo,
		match: func(s scan) bool {
			return todoComment.MatchString(s.line())
		},
		describe: "unresolved TODO/FIXME marker",
	},
}

// Classifier runs the rule table against changed regions of files.
// It is stateless and safe for concurrent use.
type Classifier struct {
	timeout time.Duration
}

func New(timeout time.Duration) *Classifier {
	return &Classifier{timeout: timeout}
}

// File classifies the entire file, as on creation.
func (c *Classifier) File(ctx context.Context, path string, content []byte) ([]*types.Issue, error) {
	n := strings.Count(string(content), "\n") + 1
	return c.Region(ctx, path, content, types.LineRange{Start: 1, End: n})
}

// Region classifies the changed lines plus a small surrounding window.
// Hits on overlapping lines are merged into a single issue carrying
// every matched rule id.
func (c *Classifier) Region(ctx context.Context, path string, content []byte, changed types.LineRange) ([]*types.Issue, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lines := strings.Split(string(content), "\n")
	lo := changed.Start - contextLines
	if lo < 1 {
		lo = 1
	}
	hi := changed.End + contextLines
	if hi > len(lines) {
		hi = len(lines)
	}

	ext := strings.ToLower(filepath.Ext(path))
	active := make([]rule, 0, len(rules))
	for _, r := range rules {
		if r.exts == nil || r.exts[ext] {
			active = append(active, r)
		}
	}

	var hits []hit
	for i := lo - 1; i < hi; i++ {
		if (i-lo+1)%deadlineCheckEvery == 0 && ctx.Err() != nil {
			return nil, ErrTimeout
		}
		s := scan{lines: lines, idx: i}
		for _, r := range active {
			if r.match(s) {
				hits = append(hits, hit{rule: r, line: i + 1, text: lines[i]})
			}
		}
	}
	if ctx.Err() != nil {
		return nil, ErrTimeout
	}

	sum := sha256.Sum256(content)
	return mergeHits(path, hits, hex.EncodeToString(sum[:])), nil
}

type hit struct {
	rule rule
	line int
	text string
}

// mergeHits folds hits whose line ranges overlap into one issue listing
// all matched rule ids. The merged issue takes the category and tier of
// its most severe hit.
func mergeHits(path string, hits []hit, contentHash string) []*types.Issue {
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].line < hits[b].line })

	var issues []*types.Issue
	group := []hit{hits[0]}
	flush := func() {
		issues = append(issues, buildIssue(path, group, contentHash))
	}
	for _, h := range hits[1:] {
		if h.line == group[len(group)-1].line {
			group = append(group, h)
			continue
		}
		flush()
		group = []hit{h}
	}
	flush()
	return issues
}

func buildIssue(path string, group []hit, contentHash string) *types.Issue {
	lead := group[0]
	seen := map[string]bool{}
	var ids []string
	var descs []string
	for _, h := range group {
		if h.rule.tier.MoreSevereThan(lead.rule.tier) {
			lead = h
		}
		if !seen[h.rule.id] {
			seen[h.rule.id] = true
			ids = append(ids, h.rule.id)
			descs = append(descs, h.rule.describe)
		}
	}

	iss := &types.Issue{
		ID:            uuid.NewString(),
		Category:      lead.rule.category,
		Tier:          lead.rule.tier,
		State:         types.IssueStateNew,
		FilePath:      path,
		Lines:         types.LineRange{Start: group[0].line, End: group[len(group)-1].line},
		Description:   strings.Join(descs, "; "),
		Detection:     types.DetectionPattern,
		RuleIDs:       ids,
		SourceKind:    "file",
		DetectedAt:    time.Now(),
		ContentSHA256: contentHash,
	}
	if lead.rule.fix != nil {
		after, rationale := lead.rule.fix(lead.text)
		iss.AttachSuggestion(&types.FixSuggestion{
			IssueID:       iss.ID,
			FilePath:      path,
			Lines:         types.LineRange{Start: lead.line, End: lead.line},
			BeforeSnippet: lead.text,
			AfterSnippet:  after,
			Rationale:     rationale,
		})
	}
	return iss
}
