// Package debounce coalesces bursts of raw filesystem events into one
// normalized ChangeEvent per path per quiet window, resolves the net
// effect of each burst, and flags rapid-iteration paths so downstream
// stages can hold non-critical notifications.
package debounce

import (
	"path/filepath"
	"sync"
	"time"

	"vigil/internal/events"
	"vigil/internal/watcher"
)

// heuristicRenameWindow is how close a create must follow a remove of a
// same-extension sibling to be treated as a rename when the OS primitive
// did not expose rename identity.
const heuristicRenameWindow = 150 * time.Millisecond

// rapidWindow is the sliding window used to count saves for the
// rapid-iteration flag.
const rapidWindow = time.Second

// slot is the pending per-path state for one debounce window.
type slot struct {
	groupID     string
	sawCreate   bool
	last        watcher.RawKind
	renamedFrom string
	timer       *time.Timer
}

// Debouncer holds one pending slot per path. Events for a path merge into
// its slot; the slot emits once the quiet window elapses with no further
// events.
type Debouncer struct {
	window         time.Duration
	rapidThreshold int

	mu      sync.Mutex
	pending map[string]*slot
	// saves tracks recent save timestamps per path for burst detection.
	saves map[string][]time.Time
	burst map[string]bool
	// lastRemove supports the delete+create rename heuristic.
	lastRemovePath string
	lastRemoveAt   time.Time

	out    chan events.ChangeEvent
	done   chan struct{}
	closed bool
}

// New creates a Debouncer. window is the per-path quiet window;
// rapidThreshold is the save count within one second that marks a burst.
func New(window time.Duration, rapidThreshold int) *Debouncer {
	return &Debouncer{
		window:         window,
		rapidThreshold: rapidThreshold,
		pending:        make(map[string]*slot),
		saves:          make(map[string][]time.Time),
		burst:          make(map[string]bool),
		out:            make(chan events.ChangeEvent, 256),
		done:           make(chan struct{}),
	}
}

// Out returns the normalized change stream.
func (d *Debouncer) Out() <-chan events.ChangeEvent { return d.out }

// Offer feeds one raw event into the debouncer.
func (d *Debouncer) Offer(ev watcher.RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	now := ev.ObservedAt
	if now.IsZero() {
		now = time.Now()
	}

	switch ev.Kind {
	case watcher.RawWrite, watcher.RawCreate:
		d.recordSave(ev.Path, now)
	case watcher.RawRemove:
		d.lastRemovePath = ev.Path
		d.lastRemoveAt = now
	}

	s, ok := d.pending[ev.Path]
	if !ok {
		s = &slot{groupID: events.NewDebounceGroupID()}
		d.pending[ev.Path] = s
	}

	switch ev.Kind {
	case watcher.RawCreate:
		s.sawCreate = true
		// Heuristic: a create right after a remove of a same-extension
		// sibling is a rename the OS reported as delete+create.
		if d.lastRemovePath != "" && d.lastRemovePath != ev.Path &&
			now.Sub(d.lastRemoveAt) <= heuristicRenameWindow &&
			filepath.Ext(d.lastRemovePath) == filepath.Ext(ev.Path) {
			s.renamedFrom = d.lastRemovePath
			s.sawCreate = false
			d.cancelLocked(d.lastRemovePath)
			d.lastRemovePath = ""
		}
	case watcher.RawRename:
		s.renamedFrom = ev.OldPath
		d.cancelLocked(ev.OldPath)
	}
	s.last = ev.Kind

	path := ev.Path
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d.window, func() { d.expire(path) })
}

// cancelLocked drops a pending slot without emitting. Caller holds d.mu.
func (d *Debouncer) cancelLocked(path string) {
	if s, ok := d.pending[path]; ok {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(d.pending, path)
	}
}

func (d *Debouncer) recordSave(path string, now time.Time) {
	recent := d.saves[path][:0]
	for _, t := range d.saves[path] {
		if now.Sub(t) <= rapidWindow {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	d.saves[path] = recent

	if len(recent) > d.rapidThreshold {
		d.burst[path] = true
	}
}

// rapidLocked reports whether the path is still inside a burst, clearing
// the flag once the burst has subsided. Caller holds d.mu.
func (d *Debouncer) rapidLocked(path string, now time.Time) bool {
	if !d.burst[path] {
		return false
	}
	saves := d.saves[path]
	if len(saves) == 0 || now.Sub(saves[len(saves)-1]) > rapidWindow {
		delete(d.burst, path)
		return false
	}
	return true
}

// expire resolves and emits the net effect for a path's window.
func (d *Debouncer) expire(path string) {
	d.mu.Lock()
	s, ok := d.pending[path]
	if !ok || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)

	now := time.Now()
	kind, emit := resolve(s)
	ev := events.ChangeEvent{
		Path:            path,
		Kind:            kind,
		ObservedAt:      now,
		SourcePath:      s.renamedFrom,
		DebounceGroupID: s.groupID,
		RapidIteration:  d.rapidLocked(path, now),
	}
	d.mu.Unlock()

	if emit {
		select {
		case d.out <- ev:
		case <-d.done:
		}
	}
}

// resolve computes the net effect of one window.
func resolve(s *slot) (events.ChangeKind, bool) {
	if s.last == watcher.RawRemove {
		// Created and deleted inside the same window: net no event.
		if s.sawCreate {
			return "", false
		}
		return events.ChangeDeleted, true
	}
	if s.renamedFrom != "" {
		return events.ChangeRenamed, true
	}
	if s.sawCreate {
		return events.ChangeCreated, true
	}
	return events.ChangeModified, true
}

// Flush emits every pending slot immediately. Used on session stop so
// in-window changes are not lost.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.pending))
	for path, s := range d.pending {
		if s.timer != nil {
			s.timer.Stop()
		}
		paths = append(paths, path)
	}
	d.mu.Unlock()

	for _, path := range paths {
		d.expire(path)
	}
}

// Stop drops pending state. The output channel is left open; consumers
// exit through their own cancellation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, s := range d.pending {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	d.pending = make(map[string]*slot)
	d.mu.Unlock()
	close(d.done)
}
