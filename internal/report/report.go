// Package report aggregates the session ledger into the on-demand and
// end-of-session summary. Generation is a pure read: it never triggers
// classification or touches watched files.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"vigil/internal/events"
	"vigil/internal/ledger"
)

// slowRequestMS is the rollup threshold for "slow" network requests.
const slowRequestMS = 1000

// Report is the aggregate view of one session's ledger.
type Report struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration

	IssuesByCategory map[string]int
	IssuesByTier     map[string]int

	FixesApplied  int
	FixesVerified int
	FixesReverted int
	FixesUndone   int
	UndoRate      float64

	BatchesShown      int
	BatchesSuppressed int

	FileChanges    int
	BrowserErrors  int
	TerminalErrors int
	Commits        int

	NetworkFailures  int
	SlowRequests     int
	AvgNetworkTimeMS int
}

// Generate builds the report from the ledger in one pass.
func Generate(ctx context.Context, l *ledger.Ledger) (*Report, error) {
	rows, err := l.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	r := &Report{
		SessionID:        l.SessionID(),
		IssuesByCategory: make(map[string]int),
		IssuesByTier:     make(map[string]int),
	}

	var networkCount, networkTotalMS int
	for _, row := range rows {
		if r.StartedAt.IsZero() || row.Timestamp.Before(r.StartedAt) {
			r.StartedAt = row.Timestamp
		}
		if row.Timestamp.After(r.EndedAt) {
			r.EndedAt = row.Timestamp
		}

		switch row.Type {
		case events.EntryIssueDetected:
			var p events.IssuePayload
			if json.Unmarshal(row.Payload, &p) == nil {
				r.IssuesByCategory[p.Category]++
				r.IssuesByTier[p.Tier]++
			}
		case events.EntryFixApplied:
			r.FixesApplied++
			var p events.FixPayload
			if json.Unmarshal(row.Payload, &p) == nil && p.Verified {
				r.FixesVerified++
			}
		case events.EntryFixReverted:
			r.FixesReverted++
		case events.EntryFixUndone:
			r.FixesUndone++
		case events.EntryBatchShown:
			r.BatchesShown++
		case events.EntryBatchSuppressed:
			r.BatchesSuppressed++
		case events.EntryFileChange:
			r.FileChanges++
		case events.EntryTerminalError:
			r.TerminalErrors++
		case events.EntryCommitCreated:
			r.Commits++
		case events.EntryBrowserError:
			r.BrowserErrors++
			var p events.BrowserPayload
			if json.Unmarshal(row.Payload, &p) == nil && p.Kind == "networkFailure" {
				r.NetworkFailures++
				if p.DurationMS > 0 {
					networkCount++
					networkTotalMS += p.DurationMS
					if p.DurationMS >= slowRequestMS {
						r.SlowRequests++
					}
				}
			}
		}
	}

	if !r.StartedAt.IsZero() {
		r.Duration = r.EndedAt.Sub(r.StartedAt)
	}
	if r.FixesApplied > 0 {
		r.UndoRate = float64(r.FixesUndone) / float64(r.FixesApplied)
	}
	if networkCount > 0 {
		r.AvgNetworkTimeMS = networkTotalMS / networkCount
	}
	return r, nil
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "%s\n", cyan("Session Report"))
	fmt.Fprintf(w, "  session:   %s\n", r.SessionID)
	fmt.Fprintf(w, "  duration:  %s\n", r.Duration.Round(time.Second))
	fmt.Fprintf(w, "  changes:   %d file, %d browser, %d terminal\n",
		r.FileChanges, r.BrowserErrors, r.TerminalErrors)

	fmt.Fprintf(w, "\n%s\n", cyan("Issues"))
	for _, tier := range []string{"critical", "warning", "suggestion", "info"} {
		if n := r.IssuesByTier[tier]; n > 0 {
			fmt.Fprintf(w, "  %-11s %d\n", tier+":", n)
		}
	}
	cats := make([]string, 0, len(r.IssuesByCategory))
	for cat := range r.IssuesByCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		fmt.Fprintf(w, "  %-14s %d\n", cat+":", r.IssuesByCategory[cat])
	}

	fmt.Fprintf(w, "\n%s\n", cyan("Fixes"))
	fmt.Fprintf(w, "  applied:   %s  verified: %d  reverted: %d\n",
		green(fmt.Sprintf("%d", r.FixesApplied)), r.FixesVerified, r.FixesReverted)
	fmt.Fprintf(w, "  undone:    %d (undo rate %.0f%%)\n", r.FixesUndone, r.UndoRate*100)
	if r.Commits > 0 {
		fmt.Fprintf(w, "  commits:   %d\n", r.Commits)
	}

	fmt.Fprintf(w, "\n%s\n", cyan("Notifications"))
	fmt.Fprintf(w, "  shown:     %d batches\n", r.BatchesShown)
	fmt.Fprintf(w, "  held back: %s\n", yellow(fmt.Sprintf("%d", r.BatchesSuppressed)))

	if r.NetworkFailures > 0 {
		fmt.Fprintf(w, "\n%s\n", cyan("Network"))
		fmt.Fprintf(w, "  failures:  %d (%d slow, avg %dms)\n",
			r.NetworkFailures, r.SlowRequests, r.AvgNetworkTimeMS)
	}
}
