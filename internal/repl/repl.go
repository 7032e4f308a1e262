// Package repl is the interactive shell for a running monitoring
// session. It only ever calls session methods; all monitoring state
// lives behind the session API.
package repl

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"vigil/internal/notify"
	"vigil/internal/session"
	"vigil/internal/types"
)

// REPL represents the interactive shell.
type REPL struct {
	sess     *session.Session
	rl       *readline.Instance
	ctx      context.Context
	out      io.Writer
	commands map[string]CommandHandler
}

// CommandHandler handles a specific command.
type CommandHandler func(args []string) error

// New creates a REPL bound to a running session.
func New(sess *session.Session, out io.Writer) *REPL {
	r := &REPL{
		sess:     sess,
		out:      out,
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r
}

// Run starts the REPL loop and blocks until exit or EOF.
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("vigil> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to stop monitoring")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput dispatches a single line of input.
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s Unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["status"] = r.cmdStatus
	r.commands["issues"] = r.cmdIssues
	r.commands["pending"] = r.cmdPending
	r.commands["show"] = r.cmdShow
	r.commands["approve"] = r.cmdApprove
	r.commands["undo"] = r.cmdUndo
	r.commands["fixes"] = r.cmdFixes
	r.commands["review"] = r.cmdReview
	r.commands["pause"] = r.cmdPause
	r.commands["resume"] = r.cmdResume
	r.commands["report"] = r.cmdReport
	r.commands["commit"] = r.cmdCommit
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"status", "Show session state, uptime, and counters"},
		{"issues", "List issues awaiting a decision"},
		{"pending", "Flush held notification batches now"},
		{"show <issue-id>", "Show one issue with its fix preview"},
		{"approve <issue-id>", "Apply the suggested fix for an issue"},
		{"undo <fix-id>", "Restore the backup for an applied fix"},
		{"fixes", "List fixes applied this session"},
		{"review <path>", "Request a deep review of one file"},
		{"pause, resume", "Suspend or restart event processing"},
		{"report", "Print the session report so far"},
		{"commit", "Commit all verified, uncommitted fixes"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Stop monitoring and exit"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-20s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdStatus(args []string) error {
	snap := r.sess.Status()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(r.out, "\n%s\n", cyan("Session "+snap.SessionID))
	fmt.Fprintf(r.out, "  state:    %s\n", snap.State)
	fmt.Fprintf(r.out, "  uptime:   %s\n", snap.Uptime.Round(time.Second))
	fmt.Fprintf(r.out, "  pending:  %d issue(s)\n", snap.PendingIssues)
	fmt.Fprintf(r.out, "  fixes:    %d applied\n", snap.FixesApplied)
	fmt.Fprintf(r.out, "  ingest:   http://%s/ingest\n", snap.IngestAddr)
	if len(snap.Processes) > 0 {
		tags := make([]string, len(snap.Processes))
		for i, p := range snap.Processes {
			tags[i] = string(p)
		}
		sort.Strings(tags)
		fmt.Fprintf(r.out, "  procs:    %s\n", strings.Join(tags, ", "))
	}
	if !snap.CommitsOn {
		fmt.Fprintf(r.out, "  commits:  disabled (not a git work tree)\n")
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdIssues(args []string) error {
	issues := r.sess.PendingIssues()
	if len(issues) == 0 {
		fmt.Fprintln(r.out, "No pending issues.")
		return nil
	}
	for _, iss := range issues {
		fix := " "
		if iss.FixAvailable {
			fix = color.GreenString("*")
		}
		fmt.Fprintf(r.out, " %s %s  [%s/%s] %s\n", fix, iss.ID, iss.Tier, iss.Category, iss.Description)
	}
	return nil
}

func (r *REPL) cmdPending(args []string) error {
	batches := r.sess.ShowPending()
	if len(batches) == 0 {
		fmt.Fprintln(r.out, "No held batches.")
	}
	return nil
}

func (r *REPL) cmdShow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: show <issue-id>")
	}
	iss := r.findIssue(args[0])
	if iss == nil {
		return fmt.Errorf("no pending issue %s", args[0])
	}

	fmt.Fprintf(r.out, "\n[%s/%s] %s\n", iss.Tier, iss.Category, iss.Description)
	if iss.FilePath != "" {
		fmt.Fprintf(r.out, "  at %s:%d-%d\n", iss.FilePath, iss.Lines.Start, iss.Lines.End)
	}
	fmt.Fprintf(r.out, "  detected by %s (%s)\n", iss.Detection, strings.Join(iss.RuleIDs, ", "))
	if iss.Suggestion != nil {
		fmt.Fprintf(r.out, "\n%s\n", notify.Preview(iss.Suggestion))
		fmt.Fprintf(r.out, "Apply with: approve %s\n", iss.ID)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdApprove(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: approve <issue-id>")
	}
	_, err := r.sess.Approve(r.ctx, args[0])
	return err
}

func (r *REPL) cmdUndo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: undo <fix-id>")
	}
	_, err := r.sess.Undo(args[0])
	return err
}

func (r *REPL) cmdFixes(args []string) error {
	recs := r.sess.Fixes()
	if len(recs) == 0 {
		fmt.Fprintln(r.out, "No fixes applied yet.")
		return nil
	}
	for _, rec := range recs {
		status := "applied"
		if !rec.Active() {
			status = "undone"
		} else if !rec.Verified {
			status = "unverified"
		}
		fmt.Fprintf(r.out, "  %s  %-10s %s\n", rec.FixID, status, rec.FilePath)
	}
	return nil
}

func (r *REPL) cmdReview(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: review <path>")
	}
	r.sess.RequestReview(args[0])
	fmt.Fprintf(r.out, "Deep review of %s queued.\n", args[0])
	return nil
}

func (r *REPL) cmdPause(args []string) error {
	r.sess.Pause()
	fmt.Fprintln(r.out, "Monitoring paused. 'resume' to continue.")
	return nil
}

func (r *REPL) cmdResume(args []string) error {
	r.sess.Resume()
	fmt.Fprintln(r.out, "Monitoring resumed.")
	return nil
}

func (r *REPL) cmdReport(args []string) error {
	rep, err := r.sess.Report(r.ctx)
	if err != nil {
		return err
	}
	rep.Render(r.out)
	return nil
}

func (r *REPL) cmdCommit(args []string) error {
	hashes, err := r.sess.Commit(r.ctx)
	for _, hash := range hashes {
		fmt.Fprintf(r.out, "Committed %s\n", shortHash(hash))
	}
	if err == nil && len(hashes) == 0 {
		fmt.Fprintln(r.out, "Nothing to commit.")
	}
	return err
}

func (r *REPL) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s Stopping session...\n", green("✓"))
	return io.EOF
}

func (r *REPL) findIssue(id string) *types.Issue {
	for _, iss := range r.sess.PendingIssues() {
		if iss.ID == id {
			return iss
		}
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
