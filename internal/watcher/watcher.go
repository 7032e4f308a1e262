// Package watcher emits raw file events for every configured watch root.
// It feeds the debouncer; it performs no coalescing of its own beyond
// rename detection.
package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vigil/internal/config"
	"vigil/internal/events"
)

// RawKind is the uncoalesced operation reported by the OS primitive.
type RawKind string

const (
	RawCreate RawKind = "create"
	RawWrite  RawKind = "write"
	RawRemove RawKind = "remove"
	RawRename RawKind = "rename"
)

// RawEvent is a single filesystem notification that passed the watch
// root's allow/deny filter.
type RawEvent struct {
	Path       string
	Kind       RawKind
	OldPath    string // set when the OS exposed rename identity
	ObservedAt time.Time
}

// Source watches the configured roots recursively and emits RawEvents.
type Source struct {
	roots []config.WatchRoot
	fsw   *fsnotify.Watcher

	out  chan RawEvent
	errs chan error

	// pendingRename holds a just-renamed-away path so the matching
	// create can be reported as a logical rename. fsnotify reports
	// renames as Rename(old) followed by Create(new).
	mu            sync.Mutex
	pendingRename string
	pendingAt     time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// renamePairWindow is how long a Rename waits for its matching Create
// before degrading to a plain remove.
const renamePairWindow = 100 * time.Millisecond

// New creates a Source for the given watch roots. Failure to acquire the
// initial watch handles is fatal to session start.
func New(roots []config.WatchRoot) (*Source, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	s := &Source{
		roots: roots,
		fsw:   fsw,
		out:   make(chan RawEvent, 512),
		errs:  make(chan error, 16),
		done:  make(chan struct{}),
	}

	for _, root := range roots {
		if err := s.addRecursive(root, root.Dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", root.Dir, err)
		}
	}
	return s, nil
}

// addRecursive registers a directory and all allowed subdirectories.
// Denied directories are skipped entirely so nothing beneath them is
// ever watched.
func (s *Source) addRecursive(root config.WatchRoot, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root.Dir && isDenied(root, path) {
			return filepath.SkipDir
		}
		return s.fsw.Add(path)
	})
}

// isDenied checks only the deny globs, ignoring the extension allow-list,
// because directories have no meaningful extension.
func isDenied(root config.WatchRoot, dir string) bool {
	probe := config.WatchRoot{Dir: root.Dir, DenyGlobs: root.DenyGlobs}
	return !probe.Allowed(dir)
}

// Rewatch re-registers every configured root, picking up handles the OS
// may have dropped. Re-adding a directory that is still watched is a
// no-op, so this is safe to call repeatedly.
func (s *Source) Rewatch() error {
	var firstErr error
	for _, root := range s.roots {
		if err := s.addRecursive(root, root.Dir); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rewatching %s: %w", root.Dir, err)
		}
	}
	return firstErr
}

// Events returns the raw event stream.
func (s *Source) Events() <-chan RawEvent { return s.out }

// Errors returns watcher errors. The session logs these and retries; they
// are never fatal mid-session.
func (s *Source) Errors() <-chan error { return s.errs }

// Start begins the event loop.
func (s *Source) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop shuts the source down and releases the OS watch handles.
func (s *Source) Stop() error {
	close(s.done)
	err := s.fsw.Close()
	s.wg.Wait()
	close(s.out)
	close(s.errs)
	return err
}

func (s *Source) loop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case ev, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handle(ev)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			default:
				log.Printf("[WARN] watcher error channel full, dropping: %v", err)
			}
		}
	}
}

func (s *Source) handle(ev fsnotify.Event) {
	now := time.Now()

	// New directories must be added to the watch set before any filter
	// decision, or events beneath them are silently lost.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			for _, root := range s.roots {
				if isUnder(root.Dir, ev.Name) && !isDenied(root, ev.Name) {
					if err := s.addRecursive(root, ev.Name); err != nil {
						log.Printf("[WARN] failed to watch new directory %s: %v", ev.Name, err)
					}
				}
			}
			return
		}
	}

	root := s.rootFor(ev.Name)
	if root == nil || !root.Allowed(ev.Name) {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Rename):
		// Remember the old path; the paired Create arrives next if the
		// rename stayed inside the watched tree.
		s.mu.Lock()
		s.pendingRename = ev.Name
		s.pendingAt = now
		s.mu.Unlock()
		s.emitAfterRenameWindow(ev.Name)

	case ev.Op.Has(fsnotify.Create):
		s.mu.Lock()
		oldPath := ""
		if s.pendingRename != "" && now.Sub(s.pendingAt) <= renamePairWindow {
			oldPath = s.pendingRename
			s.pendingRename = ""
		}
		s.mu.Unlock()
		if oldPath != "" {
			s.emit(RawEvent{Path: ev.Name, Kind: RawRename, OldPath: oldPath, ObservedAt: now})
		} else {
			s.emit(RawEvent{Path: ev.Name, Kind: RawCreate, ObservedAt: now})
		}

	case ev.Op.Has(fsnotify.Write):
		s.emit(RawEvent{Path: ev.Name, Kind: RawWrite, ObservedAt: now})

	case ev.Op.Has(fsnotify.Remove):
		s.emit(RawEvent{Path: ev.Name, Kind: RawRemove, ObservedAt: now})
	}
}

// emitAfterRenameWindow degrades an unpaired Rename to a remove once the
// pairing window lapses (the file moved outside the watched tree).
func (s *Source) emitAfterRenameWindow(path string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-s.done:
			return
		case <-time.After(renamePairWindow):
		}
		s.mu.Lock()
		stillPending := s.pendingRename == path
		if stillPending {
			s.pendingRename = ""
		}
		s.mu.Unlock()
		if stillPending {
			s.emit(RawEvent{Path: path, Kind: RawRemove, ObservedAt: time.Now()})
		}
	}()
}

func (s *Source) emit(ev RawEvent) {
	select {
	case s.out <- ev:
	case <-s.done:
	}
}

func (s *Source) rootFor(path string) *config.WatchRoot {
	for i := range s.roots {
		if isUnder(s.roots[i].Dir, path) {
			return &s.roots[i]
		}
	}
	return nil
}

func isUnder(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel))
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}

// ToChangeKind maps a raw kind to the normalized change kind it implies
// when it is the only event in a debounce window.
func (k RawKind) ToChangeKind() events.ChangeKind {
	switch k {
	case RawCreate:
		return events.ChangeCreated
	case RawRemove:
		return events.ChangeDeleted
	case RawRename:
		return events.ChangeRenamed
	default:
		return events.ChangeModified
	}
}
