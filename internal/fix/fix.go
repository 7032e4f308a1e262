// Package fix applies approved suggestions with a backup, verifies the
// result, and supports exact undo from the backup copy.
package fix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/classify"
	"vigil/internal/types"
)

// ErrStaleTarget reports that the file changed after the suggestion was
// generated. The apply is aborted before any write.
var ErrStaleTarget = errors.New("stale fix target, please retry")

// ErrUnknownFix reports an undo for a fix id with no record.
var ErrUnknownFix = errors.New("unknown fix id")

// ErrAlreadyUndone reports a repeated undo.
var ErrAlreadyUndone = errors.New("fix already undone")

// VerificationError reports that applying a suggestion introduced a new
// critical or warning issue. The file has already been reverted from
// backup when this error is returned.
type VerificationError struct {
	// Issue is the critical issue to surface to the operator.
	Issue *types.Issue
}

func (e *VerificationError) Error() string {
	return "fix verification failed, reverted from backup"
}

// Engine owns the session backup directory and the fix history.
type Engine struct {
	backupDir  string
	classifier *classify.Classifier
	retention  int

	mu      sync.Mutex
	records []*types.FixRecord
	byID    map[string]*types.FixRecord
	issues  map[string]*types.Issue // original issue by fix id, for reopen on undo

	lockMu    sync.Mutex
	pathLocks map[string]*sync.Mutex
}

// NewEngine creates the backup directory if needed. retention caps how
// many fix records (and their backups) are kept; the oldest are pruned
// first.
func NewEngine(backupDir string, classifier *classify.Classifier, retention int) (*Engine, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup dir: %w", err)
	}
	return &Engine{
		backupDir:  backupDir,
		classifier: classifier,
		retention:  retention,
		byID:       make(map[string]*types.FixRecord),
		issues:     make(map[string]*types.Issue),
		pathLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// pathLock serializes applies per file. Concurrent approvals on the
// same file run in approval order; different files proceed in parallel.
func (e *Engine) pathLock(path string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	l, ok := e.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		e.pathLocks[path] = l
	}
	return l
}

// Apply backs up the file, applies the suggestion at its line range,
// and re-classifies the modified region. On a new critical or warning
// finding the file is reverted and a *VerificationError is returned.
func (e *Engine) Apply(ctx context.Context, iss *types.Issue) (*types.FixRecord, error) {
	s := iss.Suggestion
	if s == nil {
		return nil, fmt.Errorf("issue %s has no fix suggestion", iss.ID)
	}

	l := e.pathLock(s.FilePath)
	l.Lock()
	defer l.Unlock()

	content, err := os.ReadFile(s.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading fix target: %w", err)
	}
	if iss.ContentSHA256 != "" {
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != iss.ContentSHA256 {
			return nil, ErrStaleTarget
		}
	}

	info, err := os.Stat(s.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat fix target: %w", err)
	}
	mode := info.Mode().Perm()

	fixID := uuid.NewString()
	backupPath := filepath.Join(e.backupDir, fixID+"_"+filepath.Base(s.FilePath))
	if err := os.WriteFile(backupPath, content, mode); err != nil {
		return nil, fmt.Errorf("writing backup: %w", err)
	}

	modified, modifiedRange, err := replaceLines(string(content), s.Lines, s.AfterSnippet)
	if err != nil {
		os.Remove(backupPath)
		return nil, err
	}
	if err := os.WriteFile(s.FilePath, []byte(modified), mode); err != nil {
		os.Remove(backupPath)
		return nil, fmt.Errorf("writing fixed file: %w", err)
	}

	rec := &types.FixRecord{
		FixID:      fixID,
		IssueID:    iss.ID,
		FilePath:   s.FilePath,
		Category:   iss.Category,
		Rationale:  s.Rationale,
		BackupPath: backupPath,
		AppliedAt:  time.Now(),
	}

	if bad := e.verify(ctx, s.FilePath, []byte(modified), modifiedRange); bad != nil {
		if rerr := os.WriteFile(s.FilePath, content, mode); rerr != nil {
			log.Printf("[ERROR] revert of %s failed: %v", s.FilePath, rerr)
		}
		now := time.Now()
		rec.UndoneAt = &now
		e.remember(rec, iss)
		return rec, &VerificationError{Issue: bad}
	}

	rec.Verified = true
	e.remember(rec, iss)
	return rec, nil
}

// verify re-runs the pattern pass over the modified region and returns
// a critical issue when the fix introduced a new critical or warning
// finding.
func (e *Engine) verify(ctx context.Context, path string, content []byte, region types.LineRange) *types.Issue {
	found, err := e.classifier.Region(ctx, path, content, region)
	if err != nil {
		// A timed-out verification pass is inconclusive; keep the fix.
		log.Printf("[WARN] fix verification pass on %s skipped: %v", path, err)
		return nil
	}
	for _, f := range found {
		if f.Tier == types.TierCritical || f.Tier == types.TierWarning {
			return &types.Issue{
				ID:          uuid.NewString(),
				Category:    f.Category,
				Tier:        types.TierCritical,
				State:       types.IssueStateNew,
				FilePath:    path,
				Lines:       f.Lines,
				Description: fmt.Sprintf("fix verification failed: %s", f.Description),
				Detection:   types.DetectionPattern,
				RuleIDs:     f.RuleIDs,
				SourceKind:  "file",
				DetectedAt:  time.Now(),
			}
		}
	}
	return nil
}

func (e *Engine) remember(rec *types.FixRecord, iss *types.Issue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
	e.byID[rec.FixID] = rec
	e.issues[rec.FixID] = iss
	e.pruneLocked()
}

// Undo restores the backup copy, marks the record undone, and returns
// the original issue so the caller can reopen it.
func (e *Engine) Undo(fixID string) (*types.FixRecord, *types.Issue, error) {
	e.mu.Lock()
	rec, ok := e.byID[fixID]
	iss := e.issues[fixID]
	e.mu.Unlock()
	if !ok {
		return nil, nil, ErrUnknownFix
	}
	if !rec.Active() {
		return rec, nil, ErrAlreadyUndone
	}

	l := e.pathLock(rec.FilePath)
	l.Lock()
	defer l.Unlock()

	backup, err := os.ReadFile(rec.BackupPath)
	if err != nil {
		return rec, nil, fmt.Errorf("reading backup: %w", err)
	}
	if err := os.WriteFile(rec.FilePath, backup, 0o644); err != nil {
		return rec, nil, fmt.Errorf("restoring backup: %w", err)
	}
	now := time.Now()
	rec.UndoneAt = &now
	return rec, iss, nil
}

// Records returns the fix history in apply order.
func (e *Engine) Records() []*types.FixRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*types.FixRecord, len(e.records))
	copy(out, e.records)
	return out
}

// Lookup returns one record by fix id.
func (e *Engine) Lookup(fixID string) (*types.FixRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.byID[fixID]
	return rec, ok
}

// pruneLocked drops the oldest records beyond the retention cap,
// deleting their backup files. Active records are preferred for
// retention over undone ones of the same age.
func (e *Engine) pruneLocked() {
	if e.retention <= 0 || len(e.records) <= e.retention {
		return
	}
	excess := len(e.records) - e.retention

	// Undone records go first, oldest first; then oldest active.
	idx := make([]int, len(e.records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := e.records[idx[a]], e.records[idx[b]]
		if ra.Active() != rb.Active() {
			return !ra.Active()
		}
		return ra.AppliedAt.Before(rb.AppliedAt)
	})

	drop := make(map[string]bool, excess)
	for _, i := range idx[:excess] {
		rec := e.records[i]
		drop[rec.FixID] = true
		if err := os.Remove(rec.BackupPath); err != nil && !os.IsNotExist(err) {
			log.Printf("[WARN] pruning backup %s: %v", rec.BackupPath, err)
		}
		delete(e.byID, rec.FixID)
		delete(e.issues, rec.FixID)
	}
	kept := e.records[:0]
	for _, rec := range e.records {
		if !drop[rec.FixID] {
			kept = append(kept, rec)
		}
	}
	e.records = kept
}

// replaceLines swaps the 1-based inclusive line range for the
// replacement text and reports the range the replacement occupies in
// the result.
func replaceLines(content string, r types.LineRange, replacement string) (string, types.LineRange, error) {
	lines := strings.Split(content, "\n")
	if r.Start < 1 || r.End < r.Start || r.End > len(lines) {
		return "", types.LineRange{}, fmt.Errorf("fix range %d-%d out of bounds for %d lines", r.Start, r.End, len(lines))
	}

	var repl []string
	if replacement != "" {
		repl = strings.Split(replacement, "\n")
	}

	out := make([]string, 0, len(lines)-(r.End-r.Start+1)+len(repl))
	out = append(out, lines[:r.Start-1]...)
	out = append(out, repl...)
	out = append(out, lines[r.End:]...)

	modified := types.LineRange{Start: r.Start, End: r.Start + len(repl) - 1}
	if len(repl) == 0 {
		// Pure deletion; verify the line now at the splice point.
		modified = types.LineRange{Start: r.Start, End: r.Start}
	}
	return strings.Join(out, "\n"), modified, nil
}
