// Package router drives the per-issue state machine and decides when a
// notification reaches the operator. Critical issues cut through every
// suppression rule; warnings batch by (category, file) until the
// operator goes idle or asks; suggestions and info land in the ledger
// only.
package router

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/types"
)

// Router holds the pending batches and the sticky dismissal set for one
// session. Safe for concurrent use.
type Router struct {
	mu sync.Mutex

	idleThreshold time.Duration
	lastActivity  time.Time

	batches   map[types.BatchKey]*types.NotificationBatch
	pending   map[string]*types.Issue // by issue ID, batched or shown
	dismissed map[string]bool         // sticky rule signatures
	rapid     map[string]time.Time    // bursting paths and when last flagged
	held      map[string]bool         // batch IDs already counted as burst-held

	suppressed int
	shown      int
}

func New(idleThreshold time.Duration) *Router {
	return &Router{
		idleThreshold: idleThreshold,
		lastActivity:  time.Now(),
		batches:       make(map[types.BatchKey]*types.NotificationBatch),
		pending:       make(map[string]*types.Issue),
		dismissed:     make(map[string]bool),
		rapid:         make(map[string]time.Time),
		held:          make(map[string]bool),
	}
}

// ObserveFileEvent resets the idle clock and tracks which paths are in
// a rapid-save burst. Non-critical notifications for a bursting path
// stay held until the burst subsides; a burst with no follow-up event
// decays on its own (see releaseLocked) so nothing is held forever.
func (r *Router) ObserveFileEvent(path string, rapidIteration bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
	if rapidIteration {
		r.rapid[path] = time.Now()
	} else {
		delete(r.rapid, path)
	}
}

// Route accepts one classified issue. The returned batch, when non-nil,
// must be shown to the operator immediately; critical issues are the
// only tier that produces one here.
func (r *Router) Route(iss *types.Issue) *types.NotificationBatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dismissed[iss.Signature()] {
		r.transition(iss, types.IssueStateIgnored)
		r.suppressed++
		return nil
	}

	switch iss.Tier {
	case types.TierCritical:
		r.transition(iss, types.IssueStateShown)
		r.pending[iss.ID] = iss
		r.shown++
		now := time.Now()
		return &types.NotificationBatch{
			ID:        uuid.NewString(),
			Tier:      iss.Tier,
			Category:  iss.Category,
			FilePath:  iss.FilePath,
			Issues:    []*types.Issue{iss},
			CreatedAt: now,
			ShownAt:   &now,
		}

	case types.TierWarning:
		r.transition(iss, types.IssueStateBatched)
		r.pending[iss.ID] = iss
		key := types.BatchKey{Category: iss.Category, FilePath: iss.FilePath}
		b, ok := r.batches[key]
		if !ok {
			b = &types.NotificationBatch{
				ID:        uuid.NewString(),
				Tier:      iss.Tier,
				Category:  iss.Category,
				FilePath:  iss.FilePath,
				CreatedAt: time.Now(),
			}
			r.batches[key] = b
		}
		b.Issues = append(b.Issues, iss)
		return nil

	default:
		// Suggestion and info tiers surface only through the report.
		return nil
	}
}

// ReleaseIdle returns the batches whose hold expired because no file
// activity was seen for the idle threshold, plus the batches withheld
// because their path is still in a rapid-save burst. A burst is
// considered subsided once twice the idle threshold has passed since
// it was last flagged, so no batch is held indefinitely. Each withheld
// batch is reported once.
func (r *Router) ReleaseIdle(now time.Time) (released, withheld []*types.NotificationBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.lastActivity) < r.idleThreshold {
		return nil, nil
	}
	return r.releaseLocked(now, true)
}

// ReleaseAll flushes every held batch in response to an explicit
// operator request, regardless of idle state or bursts.
func (r *Router) ReleaseAll() []*types.NotificationBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	released, _ := r.releaseLocked(time.Now(), false)
	return released
}

func (r *Router) releaseLocked(now time.Time, honorBursts bool) (released, withheld []*types.NotificationBatch) {
	for key, b := range r.batches {
		if honorBursts {
			if flaggedAt, bursting := r.rapid[b.FilePath]; bursting {
				if now.Sub(flaggedAt) < 2*r.idleThreshold {
					if !r.held[b.ID] {
						r.held[b.ID] = true
						r.suppressed++
						// Copy: the live batch may still grow while the
						// caller ledgers the withheld snapshot.
						cp := *b
						cp.Issues = append([]*types.Issue(nil), b.Issues...)
						withheld = append(withheld, &cp)
					}
					continue
				}
				delete(r.rapid, b.FilePath)
			}
		}
		shownAt := now
		b.ShownAt = &shownAt
		for _, iss := range b.Issues {
			r.transition(iss, types.IssueStateShown)
		}
		r.shown++
		released = append(released, b)
		delete(r.batches, key)
		delete(r.held, b.ID)
	}
	return released, withheld
}

// Approve moves a shown issue to approved ahead of a fix application.
func (r *Router) Approve(issueID string) (*types.Issue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iss, ok := r.pending[issueID]
	if !ok || !types.CanTransition(iss.State, types.IssueStateApproved) {
		return nil, false
	}
	r.transition(iss, types.IssueStateApproved)
	return iss, true
}

// Dismiss marks a shown issue dismissed. The rule signature on that
// path is never re-shown for the rest of the session.
func (r *Router) Dismiss(issueID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	iss, ok := r.pending[issueID]
	if !ok || !types.CanTransition(iss.State, types.IssueStateDismissed) {
		return false
	}
	r.transition(iss, types.IssueStateDismissed)
	r.dismissed[iss.Signature()] = true
	delete(r.pending, issueID)
	return true
}

// Resolve archives an approved issue after its fix verified.
func (r *Router) Resolve(issueID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	iss, ok := r.pending[issueID]
	if !ok || !types.CanTransition(iss.State, types.IssueStateResolved) {
		return false
	}
	r.transition(iss, types.IssueStateResolved)
	delete(r.pending, issueID)
	return true
}

// Reopen returns an issue to new after its fix was undone.
func (r *Router) Reopen(iss *types.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iss.State = types.IssueStateNew
	r.pending[iss.ID] = iss
}

// Pending lists issues currently batched or shown, for the operator
// surface.
func (r *Router) Pending() []*types.Issue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Issue, 0, len(r.pending))
	for _, iss := range r.pending {
		out = append(out, iss)
	}
	return out
}

// Lookup returns a routed issue by ID.
func (r *Router) Lookup(issueID string) (*types.Issue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iss, ok := r.pending[issueID]
	return iss, ok
}

// Stats reports how many batches were shown and how many notifications
// were suppressed by sticky dismissals or burst holds.
func (r *Router) Stats() (shown, suppressed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown, r.suppressed
}

func (r *Router) transition(iss *types.Issue, to types.IssueState) {
	if !types.CanTransition(iss.State, to) {
		log.Printf("[WARN] invalid issue transition %s -> %s for %s", iss.State, to, iss.ID)
		return
	}
	iss.State = to
}
