// Package gitops commits applied fixes. Commit messages are a pure
// function of the fix records, so the same session always produces the
// same messages. The manager never rewrites history and disables
// itself entirely when the watched root is not a git work tree.
package gitops

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"vigil/internal/config"
	"vigil/internal/types"
)

// Manager wraps the git binary for one repository.
type Manager struct {
	gitPath  string
	repoPath string
	mode     config.CommitMode
	enabled  bool

	committed map[string]bool // fix ids already committed
}

// NewManager probes for git and for a work tree at repoPath. Absence of
// either disables committing but is never an error; monitoring works
// the same without version control.
func NewManager(ctx context.Context, repoPath string, mode config.CommitMode) *Manager {
	m := &Manager{repoPath: repoPath, mode: mode, committed: make(map[string]bool)}

	gitPath, err := exec.LookPath("git")
	if err != nil {
		log.Printf("[WARN] git not found in PATH, auto-commit disabled")
		return m
	}
	m.gitPath = gitPath

	out, err := exec.CommandContext(ctx, gitPath, "-C", repoPath, "rev-parse", "--is-inside-work-tree").Output()
	if err != nil || strings.TrimSpace(string(out)) != "true" {
		log.Printf("[WARN] %s is not a git work tree, auto-commit disabled", repoPath)
		return m
	}
	m.enabled = true
	return m
}

// Enabled reports whether commits will actually be made.
func (m *Manager) Enabled() bool { return m.enabled }

// Mode returns the configured commit mode.
func (m *Manager) Mode() config.CommitMode { return m.mode }

// CommitFix stages and commits one applied fix. Used in per-fix mode.
func (m *Manager) CommitFix(ctx context.Context, rec *types.FixRecord) (string, error) {
	if !m.enabled {
		return "", nil
	}
	if m.committed[rec.FixID] {
		return "", nil
	}
	hash, err := m.commit(ctx, []string{rec.FilePath}, Message(rec))
	if err != nil {
		return "", err
	}
	m.committed[rec.FixID] = true
	return hash, nil
}

// CommitSession groups all verified, still-active, uncommitted fixes by
// category and makes one commit per category. Used in end-of-session
// mode and as the explicit retry trigger after a failed commit.
func (m *Manager) CommitSession(ctx context.Context, recs []*types.FixRecord) ([]string, error) {
	if !m.enabled {
		return nil, nil
	}

	groups := make(map[types.Category][]*types.FixRecord)
	for _, rec := range recs {
		if !rec.Verified || !rec.Active() || m.committed[rec.FixID] {
			continue
		}
		groups[rec.Category] = append(groups[rec.Category], rec)
	}

	cats := make([]types.Category, 0, len(groups))
	for cat := range groups {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(a, b int) bool { return cats[a] < cats[b] })

	var hashes []string
	for _, cat := range cats {
		group := groups[cat]
		files := make([]string, 0, len(group))
		for _, rec := range group {
			files = append(files, rec.FilePath)
		}
		hash, err := m.commit(ctx, files, GroupedMessage(cat, group))
		if err != nil {
			return hashes, fmt.Errorf("committing %s fixes: %w", cat, err)
		}
		for _, rec := range group {
			m.committed[rec.FixID] = true
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (m *Manager) commit(ctx context.Context, files []string, message string) (string, error) {
	for _, f := range files {
		addCmd := exec.CommandContext(ctx, m.gitPath, "-C", m.repoPath, "add", "--", f)
		if out, err := addCmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("git add %s: %w (%s)", f, err, strings.TrimSpace(string(out)))
		}
	}

	commitCmd := exec.CommandContext(ctx, m.gitPath, "-C", m.repoPath, "commit", "-m", message)
	if out, err := commitCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	hashCmd := exec.CommandContext(ctx, m.gitPath, "-C", m.repoPath, "rev-parse", "HEAD")
	out, err := hashCmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Message builds a conventional commit subject and body for one fix.
func Message(rec *types.FixRecord) string {
	subject := commitType(rec.Category)
	if s := scope(rec.FilePath); s != "" {
		subject += "(" + s + ")"
	}
	subject += ": " + truncate(summaryOf(rec), 60)

	body := fmt.Sprintf("Applied automated fix to %s.", rec.FilePath)
	if rec.Rationale != "" {
		body += "\n\n" + rec.Rationale
	}
	return subject + "\n\n" + body
}

// GroupedMessage builds one commit message for all fixes of a category.
func GroupedMessage(cat types.Category, recs []*types.FixRecord) string {
	if len(recs) == 1 {
		return Message(recs[0])
	}

	subject := fmt.Sprintf("%s: resolve %d %s issues", commitType(cat), len(recs), cat)

	lines := []string{"Fixed:"}
	const listed = 5
	for i, rec := range recs {
		if i == listed {
			lines = append(lines, fmt.Sprintf("- and %d more", len(recs)-listed))
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", rec.FilePath, truncate(summaryOf(rec), 50)))
	}
	return subject + "\n\n" + strings.Join(lines, "\n")
}

func summaryOf(rec *types.FixRecord) string {
	if rec.Rationale != "" {
		return rec.Rationale
	}
	return fmt.Sprintf("%s issue in %s", rec.Category, filepath.Base(rec.FilePath))
}

func commitType(cat types.Category) string {
	switch cat {
	case types.CategoryPerformance:
		return "perf"
	case types.CategoryQuality:
		return "refactor"
	case types.CategoryBestPractice:
		return "style"
	default:
		return "fix"
	}
}

// scope derives a conventional-commit scope from the file path: the
// top-level directory, or the bare file name at the root.
func scope(path string) string {
	path = filepath.ToSlash(path)
	parts := strings.Split(path, "/")
	if len(parts) >= 2 {
		for _, p := range parts[:len(parts)-1] {
			if p != "." && p != ".." && p != "" {
				return p
			}
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
