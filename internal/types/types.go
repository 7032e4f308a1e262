// Package types defines the core data model shared by every stage of the
// monitoring engine: issues, fix suggestions, fix records, and notification
// batches.
package types

import (
	"fmt"
	"time"
)

// Category classifies what kind of problem an issue represents.
type Category string

const (
	CategorySyntax       Category = "syntax"
	CategoryRuntime      Category = "runtime"
	CategoryLogic        Category = "logic"
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryQuality      Category = "quality"
	CategoryBestPractice Category = "best_practice"
)

// SeverityTier determines how an issue is surfaced to the operator.
type SeverityTier string

const (
	// TierCritical issues are shown immediately, bypassing batching and
	// rapid-iteration suppression.
	TierCritical SeverityTier = "critical"
	// TierWarning issues are batched and shown when the operator is idle.
	TierWarning SeverityTier = "warning"
	// TierSuggestion issues are recorded to the ledger only.
	TierSuggestion SeverityTier = "suggestion"
	// TierInfo issues are recorded to the ledger only.
	TierInfo SeverityTier = "info"
)

// rank orders tiers from most to least severe.
func (t SeverityTier) rank() int {
	switch t {
	case TierCritical:
		return 0
	case TierWarning:
		return 1
	case TierSuggestion:
		return 2
	default:
		return 3
	}
}

// MoreSevereThan reports whether t outranks other.
func (t SeverityTier) MoreSevereThan(other SeverityTier) bool {
	return t.rank() < other.rank()
}

// DetectionMethod records which stage produced an issue.
type DetectionMethod string

const (
	DetectionPattern DetectionMethod = "pattern"
	DetectionDeep    DetectionMethod = "deep"
)

// IssueState tracks an issue through the router state machine:
// new -> batched -> shown -> (approved|dismissed|ignored).
type IssueState string

const (
	IssueStateNew       IssueState = "new"
	IssueStateBatched   IssueState = "batched"
	IssueStateShown     IssueState = "shown"
	IssueStateApproved  IssueState = "approved"
	IssueStateDismissed IssueState = "dismissed"
	IssueStateIgnored   IssueState = "ignored"
	IssueStateResolved  IssueState = "resolved"
)

// validTransitions encodes the router state machine. Approved issues may
// re-open to new after an undo.
var validTransitions = map[IssueState][]IssueState{
	IssueStateNew:      {IssueStateBatched, IssueStateShown, IssueStateIgnored},
	IssueStateBatched:  {IssueStateShown, IssueStateIgnored},
	IssueStateShown:    {IssueStateApproved, IssueStateDismissed, IssueStateIgnored},
	IssueStateApproved: {IssueStateResolved, IssueStateNew},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to IssueState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineRange identifies a contiguous span of lines in a file, 1-based and
// inclusive on both ends.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two ranges share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Issue is a single categorized problem produced by the pattern classifier
// or the deep reviewer. Issues are mutated only to attach a fix suggestion
// or to advance their router state; everything else is set at creation.
type Issue struct {
	ID            string          `json:"id"`
	Category      Category        `json:"category"`
	Tier          SeverityTier    `json:"tier"`
	State         IssueState      `json:"state"`
	FilePath      string          `json:"file_path,omitempty"`
	Lines         LineRange       `json:"lines,omitempty"`
	Description   string          `json:"description"`
	Detection     DetectionMethod `json:"detection"`
	RuleIDs       []string        `json:"rule_ids,omitempty"`
	SourceKind    string          `json:"source_kind"` // "file", "browser", "terminal"
	FixAvailable  bool            `json:"fix_available"`
	Suggestion    *FixSuggestion  `json:"suggestion,omitempty"`
	DetectedAt    time.Time       `json:"detected_at"`
	ContentSHA256 string          `json:"content_sha256,omitempty"` // file hash at detection time
}

// Signature identifies a rule hit on a path. Dismissing a signature is
// sticky for the remainder of the session.
func (i *Issue) Signature() string {
	rule := string(i.Detection)
	if len(i.RuleIDs) > 0 {
		rule = i.RuleIDs[0]
	}
	return fmt.Sprintf("%s:%s:%s", rule, i.Category, i.FilePath)
}

// AttachSuggestion records a fix suggestion on the issue. A regenerated
// suggestion supersedes the previous one; suggestions themselves are
// immutable once created.
func (i *Issue) AttachSuggestion(s *FixSuggestion) {
	i.Suggestion = s
	i.FixAvailable = s != nil
}

// FixSuggestion is an immutable proposed text replacement for an issue.
type FixSuggestion struct {
	IssueID       string    `json:"issue_id"`
	FilePath      string    `json:"file_path"`
	Lines         LineRange `json:"lines"`
	BeforeSnippet string    `json:"before_snippet"`
	AfterSnippet  string    `json:"after_snippet"`
	Rationale     string    `json:"rationale"`
}

// FixRecord tracks one applied fix and owns its backup file until the
// record is pruned or the session ends.
type FixRecord struct {
	FixID      string     `json:"fix_id"`
	IssueID    string     `json:"issue_id"`
	FilePath   string     `json:"file_path"`
	Category   Category   `json:"category"`
	Rationale  string     `json:"rationale"`
	BackupPath string     `json:"backup_path"`
	AppliedAt  time.Time  `json:"applied_at"`
	Verified   bool       `json:"verified"`
	UndoneAt   *time.Time `json:"undone_at,omitempty"`
}

// Active reports whether the fix is applied and not undone. At most one
// record per issue may be active at a time.
func (f *FixRecord) Active() bool {
	return f.UndoneAt == nil
}

// NotificationBatch groups warning-tier issues sharing a category and file
// so the operator is interrupted once, not once per hit.
type NotificationBatch struct {
	ID        string       `json:"id"`
	Tier      SeverityTier `json:"tier"`
	Category  Category     `json:"category"`
	FilePath  string       `json:"file_path"`
	Issues    []*Issue     `json:"issues"`
	CreatedAt time.Time    `json:"created_at"`
	ShownAt   *time.Time   `json:"shown_at,omitempty"`
}

// BatchKey keys a batch by (category, file).
type BatchKey struct {
	Category Category
	FilePath string
}

// Key returns the batch's grouping key.
func (b *NotificationBatch) Key() BatchKey {
	return BatchKey{Category: b.Category, FilePath: b.FilePath}
}
