// Package terminal attaches to the output streams of long-running
// developer processes (dev servers, build watchers) and classifies each
// line against a fixed table of error signatures.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"vigil/internal/events"
)

// Signature is one entry in the fixed error-signature table.
type Signature struct {
	Pattern  *regexp.Regexp
	Name     string
	Severity string // critical, warning, suggestion, info
}

// signatures is evaluated top to bottom; the first match wins.
var signatures = []Signature{
	// Build failures
	{regexp.MustCompile(`(?i)SyntaxError:?\s*(.+)`), "syntax_error", "critical"},
	{regexp.MustCompile(`(?i)Module not found:?\s*(.+)`), "module_not_found", "critical"},
	{regexp.MustCompile(`(?i)Cannot find module\s*(.+)`), "module_not_found", "critical"},
	{regexp.MustCompile(`(?i)Failed to compile`), "build_failed", "critical"},
	{regexp.MustCompile(`(?i)Build failed`), "build_failed", "critical"},
	{regexp.MustCompile(`ERROR in (.+)`), "build_error", "warning"},

	// Runtime errors
	{regexp.MustCompile(`(?i)TypeError:?\s*(.+)`), "type_error", "critical"},
	{regexp.MustCompile(`(?i)ReferenceError:?\s*(.+)`), "reference_error", "critical"},
	{regexp.MustCompile(`listen EADDRINUSE`), "port_in_use", "warning"},
	{regexp.MustCompile(`ECONNREFUSED`), "connection_refused", "warning"},
	{regexp.MustCompile(`(?i)Unhandled exception|panic:`), "unhandled_exception", "critical"},
	{regexp.MustCompile(`(?i)Traceback \(most recent call last\)`), "unhandled_exception", "critical"},

	// Dependency resolution
	{regexp.MustCompile(`npm ERR! (.+)`), "npm_error", "warning"},
	{regexp.MustCompile(`ERESOLVE unable to resolve dependency`), "dependency_conflict", "warning"},
	{regexp.MustCompile(`(?i)peer dependency`), "peer_dependency", "suggestion"},

	// Database
	{regexp.MustCompile(`(?i)Connection refused`), "db_connection_refused", "warning"},
	{regexp.MustCompile(`(?i)Authentication failed`), "auth_failed", "warning"},
	{regexp.MustCompile(`relation .+ does not exist`), "table_not_found", "warning"},
	{regexp.MustCompile(`column .+ does not exist`), "column_not_found", "warning"},

	// Noise-tier
	{regexp.MustCompile(`DeprecationWarning:\s*(.+)`), "deprecation", "info"},
	{regexp.MustCompile(`(?i)^Warning:\s*(.+)`), "generic_warning", "suggestion"},
}

// fileLocPatterns extract file/line references from an error line.
var fileLocPatterns = []*regexp.Regexp{
	regexp.MustCompile(`at\s+(\S+?):(\d+):\d+`),
	regexp.MustCompile(`(\S+?\.(?:js|jsx|ts|tsx|py|go|rb|java|rs)):(\d+)`),
	regexp.MustCompile(`File "(.+?)", line (\d+)`),
}

// Classify matches one output line against the signature table. ok is
// false for lines that match nothing.
func Classify(line string) (signatureName, severity string, ok bool) {
	for _, sig := range signatures {
		if sig.Pattern.MatchString(line) {
			return sig.Name, sig.Severity, true
		}
	}
	return "", "", false
}

// ExtractLocation pulls a file path and line number out of an error line,
// when one is present.
func ExtractLocation(line string) (path string, lineNo int, ok bool) {
	for _, p := range fileLocPatterns {
		m := p.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		return m[1], n, true
	}
	return "", 0, false
}

// Source multiplexes the classified output of every attached process into
// one TerminalEvent stream.
type Source struct {
	out chan events.TerminalEvent

	mu        sync.Mutex
	processes map[events.ProcessTag]*exec.Cmd
	wg        sync.WaitGroup
	done      chan struct{}
}

// NewSource creates an empty terminal source.
func NewSource() *Source {
	return &Source{
		out:       make(chan events.TerminalEvent, 256),
		processes: make(map[events.ProcessTag]*exec.Cmd),
		done:      make(chan struct{}),
	}
}

// Events returns the classified event stream.
func (s *Source) Events() <-chan events.TerminalEvent { return s.out }

// Attach consumes an already-open output stream under the given tag.
// Used both by Monitor and directly by tests.
func (s *Source) Attach(tag events.ProcessTag, r io.Reader) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			name, severity, matched := Classify(line)
			if !matched {
				continue
			}
			ev := events.TerminalEvent{
				Process:        tag,
				Line:           line,
				MatchedPattern: name,
				Severity:       severity,
				ObservedAt:     time.Now(),
			}
			if path, lineNo, ok := ExtractLocation(line); ok {
				ev.FilePath = path
				ev.LineNumber = lineNo
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("[WARN] terminal stream %s read error: %v", tag, err)
		}
	}()
}

// Monitor starts a command and attaches to its combined output. The
// process runs until the context is cancelled or the source stops.
func (s *Source) Monitor(ctx context.Context, tag events.ProcessTag, name string, args ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.processes[tag]; exists {
		return fmt.Errorf("process %q already monitored", tag)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout of %s: %w", name, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	s.processes[tag] = cmd
	s.Attach(tag, stdout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] monitored process %s exited: %v", tag, err)
		}
		s.mu.Lock()
		delete(s.processes, tag)
		s.mu.Unlock()
	}()
	return nil
}

// Running returns the tags of every currently monitored process.
func (s *Source) Running() []events.ProcessTag {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]events.ProcessTag, 0, len(s.processes))
	for tag := range s.processes {
		tags = append(tags, tag)
	}
	return tags
}

// Stop terminates monitored processes and waits for readers to drain.
func (s *Source) Stop() {
	s.mu.Lock()
	for _, cmd := range s.processes {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	s.mu.Unlock()
	close(s.done)
	s.wg.Wait()
	close(s.out)
}
