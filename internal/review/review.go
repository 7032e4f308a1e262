// Package review delegates changes the pattern pass cannot resolve
// confidently to the external completion service. Deep review is
// best-effort: it is rate limited, capped at one outstanding request,
// and every failure degrades silently to pattern-only results.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vigil/internal/types"
)

// ErrUnavailable reports that the completion service could not be
// reached or timed out. Callers treat it as a degradation, never a
// session failure.
var ErrUnavailable = errors.New("deep review unavailable")

// Trigger records why a deep review was requested.
type Trigger string

const (
	TriggerExplicit     Trigger = "explicit"
	TriggerLargeChange  Trigger = "large_change"
	TriggerNewFile      Trigger = "new_file"
	TriggerSecurityPath Trigger = "security_path"
)

// Decide reports whether a change warrants a deep review and why.
// lineThreshold is the configured large-change cutoff.
func Decide(explicit bool, changedLines, lineThreshold int, newFile, securitySensitive bool, patternHits int) (Trigger, bool) {
	switch {
	case explicit:
		return TriggerExplicit, true
	case changedLines > lineThreshold:
		return TriggerLargeChange, true
	case newFile:
		return TriggerNewFile, true
	case securitySensitive && patternHits == 0:
		return TriggerSecurityPath, true
	}
	return "", false
}

// Request packages one file for review along with lightweight project
// context.
type Request struct {
	Path         string
	Content      []byte
	Trigger      Trigger
	TechStack    []string
	RelatedFiles []string
}

type finding struct {
	Category     string `json:"category"`
	Severity     string `json:"severity"`
	LineStart    int    `json:"line_start"`
	LineEnd      int    `json:"line_end"`
	Description  string `json:"description"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

type reviewResponse struct {
	Findings []finding `json:"findings"`
	Summary  string    `json:"summary"`
}

// Reviewer holds the completion client and the single review slot.
type Reviewer struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	slot    chan struct{}
}

// New builds a reviewer. The limiter allows one request every ten
// seconds with a small burst, bounding cost during save storms.
func New(apiKey, model string, timeout time.Duration) *Reviewer {
	r := &Reviewer{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 2),
		slot:    make(chan struct{}, 1),
	}
	return r
}

// Review sends one file to the completion service and converts its
// findings into issues. At most one review is outstanding at a time;
// concurrent callers queue on the slot in arrival order.
func (r *Reviewer) Review(ctx context.Context, req Request) ([]*types.Issue, error) {
	select {
	case r.slot <- struct{}{}:
		defer func() { <-r.slot }()
	case <-ctx.Done():
		return nil, ErrUnavailable
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, ErrUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		log.Printf("[WARN] deep review of %s failed: %v", req.Path, err)
		return nil, ErrUnavailable
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	parsed, ok := parseResponse(text)
	if !ok {
		// Malformed responses yield no findings rather than an error.
		log.Printf("[WARN] deep review of %s returned an unparseable response", req.Path)
		return nil, nil
	}
	return toIssues(req.Path, parsed.Findings), nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are reviewing one file from a live coding session for bugs, ")
	b.WriteString("security problems, and quality issues the author should know about now.\n\n")
	if len(req.TechStack) > 0 {
		fmt.Fprintf(&b, "Tech stack: %s\n", strings.Join(req.TechStack, ", "))
	}
	if len(req.RelatedFiles) > 0 {
		fmt.Fprintf(&b, "Related files: %s\n", strings.Join(req.RelatedFiles, ", "))
	}
	fmt.Fprintf(&b, "Review trigger: %s\n\n", req.Trigger)
	fmt.Fprintf(&b, "File: %s\n", req.Path)
	b.WriteString("Content with line numbers:\n")
	for i, line := range strings.Split(string(req.Content), "\n") {
		fmt.Fprintf(&b, "%4d| %s\n", i+1, line)
	}
	b.WriteString(`
Respond with ONLY a JSON object in this exact shape:
{
  "findings": [
    {
      "category": "syntax|runtime|logic|security|performance|quality|best_practice",
      "severity": "critical|warning|suggestion|info",
      "line_start": 1,
      "line_end": 1,
      "description": "what is wrong and why it matters",
      "suggested_fix": "replacement text for those lines, if mechanical"
    }
  ],
  "summary": "one sentence"
}
Report only findings you are confident about. An empty findings list is a valid answer.`)
	return b.String()
}

// parseResponse tolerates prose or code fences around the JSON object.
func parseResponse(text string) (reviewResponse, bool) {
	var out reviewResponse
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return out, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return out, false
	}
	return out, true
}

func toIssues(path string, findings []finding) []*types.Issue {
	var issues []*types.Issue
	for _, f := range findings {
		if f.Description == "" || f.LineStart < 1 {
			continue
		}
		if f.LineEnd < f.LineStart {
			f.LineEnd = f.LineStart
		}
		iss := &types.Issue{
			ID:          uuid.NewString(),
			Category:    normalizeCategory(f.Category),
			Tier:        normalizeTier(f.Severity),
			State:       types.IssueStateNew,
			FilePath:    path,
			Lines:       types.LineRange{Start: f.LineStart, End: f.LineEnd},
			Description: f.Description,
			Detection:   types.DetectionDeep,
			RuleIDs:     []string{"deep_review"},
			SourceKind:  "file",
			DetectedAt:  time.Now(),
		}
		if f.SuggestedFix != "" {
			iss.AttachSuggestion(&types.FixSuggestion{
				IssueID:      iss.ID,
				FilePath:     path,
				Lines:        iss.Lines,
				AfterSnippet: f.SuggestedFix,
				Rationale:    f.Description,
			})
		}
		issues = append(issues, iss)
	}
	return issues
}

func normalizeCategory(s string) types.Category {
	switch types.Category(strings.ToLower(strings.TrimSpace(s))) {
	case types.CategorySyntax, types.CategoryRuntime, types.CategoryLogic,
		types.CategorySecurity, types.CategoryPerformance,
		types.CategoryQuality, types.CategoryBestPractice:
		return types.Category(strings.ToLower(strings.TrimSpace(s)))
	}
	return types.CategoryQuality
}

func normalizeTier(s string) types.SeverityTier {
	switch types.SeverityTier(strings.ToLower(strings.TrimSpace(s))) {
	case types.TierCritical, types.TierWarning, types.TierSuggestion, types.TierInfo:
		return types.SeverityTier(strings.ToLower(strings.TrimSpace(s)))
	}
	return types.TierSuggestion
}

// Merge folds deep findings into an existing issue list, dropping any
// finding that overlaps an existing issue of the same category on the
// same path. Pattern findings always win the overlap.
func Merge(existing, found []*types.Issue) []*types.Issue {
	merged := existing
	for _, f := range found {
		dup := false
		for _, e := range existing {
			if e.FilePath == f.FilePath && e.Category == f.Category && e.Lines.Overlaps(f.Lines) {
				dup = true
				break
			}
		}
		if !dup {
			merged = append(merged, f)
		}
	}
	return merged
}
