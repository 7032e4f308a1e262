// Package notify renders notifications and fix previews to the
// operator's terminal.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"vigil/internal/types"
)

// Notifier serializes writes so concurrent stages never interleave
// output mid-notification.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

func New(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

func tierColor(tier types.SeverityTier) func(a ...interface{}) string {
	switch tier {
	case types.TierCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case types.TierWarning:
		return color.New(color.FgYellow).SprintFunc()
	case types.TierSuggestion:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

// ShowBatch prints one notification batch. Single-issue critical
// batches get a compact alert form; grouped warnings get a header plus
// one line per issue.
func (n *Notifier) ShowBatch(b *types.NotificationBatch) {
	n.mu.Lock()
	defer n.mu.Unlock()

	paint := tierColor(b.Tier)
	if b.Tier == types.TierCritical && len(b.Issues) == 1 {
		iss := b.Issues[0]
		fmt.Fprintf(n.out, "%s %s\n", paint("[CRITICAL]"), iss.Description)
		fmt.Fprintf(n.out, "  %s\n", location(iss))
		if iss.FixAvailable {
			fmt.Fprintf(n.out, "  %s\n", color.New(color.FgGreen).Sprintf("fix available: approve %s", iss.ID))
		}
		return
	}

	fmt.Fprintf(n.out, "%s %d %s issue(s) in %s\n",
		paint(fmt.Sprintf("[%s]", strings.ToUpper(string(b.Tier)))),
		len(b.Issues), b.Category, b.FilePath)
	for _, iss := range b.Issues {
		marker := " "
		if iss.FixAvailable {
			marker = color.New(color.FgGreen).Sprint("*")
		}
		fmt.Fprintf(n.out, "  %s %s  %s\n", marker, location(iss), iss.Description)
	}
}

// ShowFixResult reports the outcome of one fix application.
func (n *Notifier) ShowFixResult(rec *types.FixRecord, verified bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if verified {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(n.out, "%s fix %s applied to %s (backup kept)\n", green("[OK]"), rec.FixID, rec.FilePath)
		return
	}
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	fmt.Fprintf(n.out, "%s fix %s reverted: verification found new problems in %s\n", red("[REVERTED]"), rec.FixID, rec.FilePath)
}

// ShowUndo reports an undo.
func (n *Notifier) ShowUndo(rec *types.FixRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(n.out, "%s fix %s undone, %s restored from backup\n", yellow("[UNDO]"), rec.FixID, rec.FilePath)
}

// Warnf prints a plain operator-facing warning line.
func (n *Notifier) Warnf(format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(n.out, "%s %s\n", yellow("[WARN]"), fmt.Sprintf(format, args...))
}

// Infof prints a plain informational line.
func (n *Notifier) Infof(format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "%s\n", fmt.Sprintf(format, args...))
}

func location(iss *types.Issue) string {
	if iss.FilePath == "" {
		return iss.SourceKind
	}
	if iss.Lines.Start == 0 {
		return iss.FilePath
	}
	if iss.Lines.Start == iss.Lines.End {
		return fmt.Sprintf("%s:%d", iss.FilePath, iss.Lines.Start)
	}
	return fmt.Sprintf("%s:%d-%d", iss.FilePath, iss.Lines.Start, iss.Lines.End)
}

// Preview renders a unified diff of what a suggestion would change.
func Preview(s *types.FixSuggestion) string {
	before := s.BeforeSnippet
	after := s.AfterSnippet
	if before != "" && !strings.HasSuffix(before, "\n") {
		before += "\n"
	}
	if after != "" && !strings.HasSuffix(after, "\n") {
		after += "\n"
	}
	edits := myers.ComputeEdits(span.URIFromPath(s.FilePath), before, after)
	return fmt.Sprint(gotextdiff.ToUnified(s.FilePath, s.FilePath+" (fixed)", before, edits))
}
