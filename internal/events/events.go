// Package events defines the raw and normalized event types flowing from
// the three monitoring sources into the classification pipeline, plus the
// ledger entry types every stage records.
package events

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind is the net effect of a debounced file change.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
)

// ChangeEvent is a normalized file change. One event is emitted per path
// per debounce window; bursts within the window merge into a single event
// carrying the net effect.
type ChangeEvent struct {
	Path            string     `json:"path"`
	Kind            ChangeKind `json:"kind"`
	ObservedAt      time.Time  `json:"observed_at"`
	SourcePath      string     `json:"source_path,omitempty"` // old path for renames
	DebounceGroupID string     `json:"debounce_group_id"`
	// RapidIteration is set when the path saw more saves than the burst
	// threshold inside one second. Non-critical notifications for the
	// path are suppressed while it holds.
	RapidIteration bool `json:"rapid_iteration,omitempty"`
}

// BrowserErrorKind classifies an event pushed by the injected tracking
// script.
type BrowserErrorKind string

const (
	BrowserConsoleError       BrowserErrorKind = "consoleError"
	BrowserConsoleWarn        BrowserErrorKind = "consoleWarn"
	BrowserRuntimeException   BrowserErrorKind = "runtimeException"
	BrowserUnhandledRejection BrowserErrorKind = "unhandledRejection"
	BrowserNetworkFailure     BrowserErrorKind = "networkFailure"
)

// Valid reports whether the kind is one the ingest endpoint accepts.
// Anything else is dropped as malformed.
func (k BrowserErrorKind) Valid() bool {
	switch k {
	case BrowserConsoleError, BrowserConsoleWarn, BrowserRuntimeException,
		BrowserUnhandledRejection, BrowserNetworkFailure:
		return true
	}
	return false
}

// BrowserErrorEvent is an error pushed by the instrumented browser runtime.
// The producer is untrusted: the ingest endpoint validates shape and drops
// anything malformed rather than propagating parse errors.
type BrowserErrorEvent struct {
	Kind           BrowserErrorKind `json:"kind"`
	Message        string           `json:"message"`
	SourceLocation string           `json:"sourceLocation,omitempty"`
	Stack          string           `json:"stack,omitempty"`
	URL            string           `json:"url"`
	StatusCode     int              `json:"statusCode,omitempty"` // networkFailure only
	DurationMS     int              `json:"durationMs,omitempty"` // networkFailure only
	ReceivedAt     time.Time        `json:"receivedAt"`
}

// ProcessTag identifies which monitored developer process produced a
// terminal line.
type ProcessTag string

const (
	ProcessFrontend ProcessTag = "frontend"
	ProcessBackend  ProcessTag = "backend"
	ProcessOther    ProcessTag = "other"
)

// TerminalEvent is one classified line of output from a monitored process.
type TerminalEvent struct {
	Process        ProcessTag `json:"process"`
	Line           string     `json:"line"`
	MatchedPattern string     `json:"matched_pattern,omitempty"`
	Severity       string     `json:"severity"`
	FilePath       string     `json:"file_path,omitempty"`
	LineNumber     int        `json:"line_number,omitempty"`
	ObservedAt     time.Time  `json:"observed_at"`
}

// EntryType tags a ledger entry.
type EntryType string

const (
	EntryFileChange      EntryType = "file_change"
	EntryBrowserError    EntryType = "browser_error"
	EntryTerminalError   EntryType = "terminal_error"
	EntryIssueDetected   EntryType = "issue_detected"
	EntryIssueState      EntryType = "issue_state"
	EntryBatchShown      EntryType = "batch_shown"
	EntryBatchSuppressed EntryType = "batch_suppressed"
	EntryFixApplied      EntryType = "fix_applied"
	EntryFixReverted     EntryType = "fix_reverted"
	EntryFixUndone       EntryType = "fix_undone"
	EntryCommitCreated   EntryType = "commit_created"
	EntryDeepReview      EntryType = "deep_review"
	EntrySourceError     EntryType = "source_error"
	EntrySessionStart    EntryType = "session_start"
	EntrySessionPause    EntryType = "session_pause"
	EntrySessionResume   EntryType = "session_resume"
	EntrySessionStop     EntryType = "session_stop"
)

// LedgerEntry is one append-only record of monitoring activity. The ledger
// is the single source of truth for reporting; payloads are stored as JSON.
type LedgerEntry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EntryType   `json:"type"`
	Payload   interface{} `json:"payload"`
}

// NewLedgerEntry creates a ledger entry stamped with the current time.
func NewLedgerEntry(entryType EntryType, payload interface{}) *LedgerEntry {
	return &LedgerEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      entryType,
		Payload:   payload,
	}
}

// NewDebounceGroupID mints the identifier shared by all raw events merged
// into one debounce window.
func NewDebounceGroupID() string {
	return uuid.New().String()
}

// Ledger payload shapes. The session writes these and the report reads
// them back; keeping them here pins the JSON contract in one place.

// IssuePayload records a detected issue or one of its state changes.
type IssuePayload struct {
	IssueID   string `json:"issue_id"`
	Category  string `json:"category"`
	Tier      string `json:"tier"`
	State     string `json:"state,omitempty"`
	FilePath  string `json:"file_path,omitempty"`
	Detection string `json:"detection,omitempty"`
}

// FixPayload records a fix application, revert, or undo.
type FixPayload struct {
	FixID    string `json:"fix_id"`
	IssueID  string `json:"issue_id"`
	FilePath string `json:"file_path"`
	Category string `json:"category"`
	Verified bool   `json:"verified,omitempty"`
}

// BatchPayload records a notification batch shown or suppressed.
type BatchPayload struct {
	BatchID  string `json:"batch_id,omitempty"`
	Tier     string `json:"tier"`
	Category string `json:"category"`
	FilePath string `json:"file_path"`
	Count    int    `json:"count"`
}

// ChangePayload records one normalized file change.
type ChangePayload struct {
	Path           string `json:"path"`
	Kind           string `json:"kind"`
	RapidIteration bool   `json:"rapid_iteration,omitempty"`
}

// BrowserPayload records one ingested browser error.
type BrowserPayload struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	URL        string `json:"url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// TerminalPayload records one classified terminal line.
type TerminalPayload struct {
	Process  string `json:"process"`
	RuleID   string `json:"rule_id"`
	Tier     string `json:"tier"`
	Line     string `json:"line"`
	FilePath string `json:"file_path,omitempty"`
}

// CommitPayload records one commit made by the commit manager.
type CommitPayload struct {
	Hash     string `json:"hash"`
	Mode     string `json:"mode"`
	FixCount int    `json:"fix_count"`
}
