// Package session wires the event sources, classifier, router, fix
// engine, and ledger into one monitoring loop. A session owns every
// component's lifecycle: nothing here may crash the loop, and every
// component failure is converted into a ledger entry plus, where the
// operator cares, a notification.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"vigil/internal/browser"
	"vigil/internal/classify"
	"vigil/internal/config"
	"vigil/internal/debounce"
	"vigil/internal/events"
	"vigil/internal/fix"
	"vigil/internal/gitops"
	"vigil/internal/ledger"
	"vigil/internal/notify"
	"vigil/internal/report"
	"vigil/internal/review"
	"vigil/internal/router"
	"vigil/internal/terminal"
	"vigil/internal/types"
	"vigil/internal/watcher"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Session is one monitoring run over the configured watch roots.
type Session struct {
	ID  string
	cfg *config.Config

	watch      *watcher.Source
	deb        *debounce.Debouncer
	term       *terminal.Source
	ingest     *browser.IngestServer
	classifier *classify.Classifier
	reviewer   *review.Reviewer
	route      *router.Router
	notifier   *notify.Notifier
	engine     *fix.Engine
	commits    *gitops.Manager
	led        *ledger.Ledger

	sem    *semaphore.Weighted
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	startedAt time.Time
	lastSeen  map[string]string // previous content per path, for region diffs
	pathMu    map[string]*sync.Mutex

	reviewReq chan reviewRequest
}

// reviewRequest is one unit of work for the deep-review loop.
type reviewRequest struct {
	path    string
	trigger review.Trigger
}

// New builds a session. Failure to open the ledger, the watch roots, or
// the backup directory is fatal here; everything later degrades.
func New(cfg *config.Config, out io.Writer) (*Session, error) {
	id := uuid.NewString()

	led, err := ledger.Open(filepath.Join(cfg.StateDir, "ledger.db"), id)
	if err != nil {
		return nil, err
	}

	classifier := classify.New(cfg.ClassifyTimeout)
	engine, err := fix.NewEngine(filepath.Join(cfg.StateDir, "backups"), classifier, cfg.BackupRetention)
	if err != nil {
		led.Close()
		return nil, err
	}

	watch, err := watcher.New(cfg.WatchRoots)
	if err != nil {
		led.Close()
		return nil, fmt.Errorf("acquiring watch roots: %w", err)
	}

	var reviewer *review.Reviewer
	if cfg.AnthropicAPIKey != "" {
		reviewer = review.New(cfg.AnthropicAPIKey, cfg.DeepReviewModel, cfg.DeepReviewTimeout)
	} else {
		log.Printf("[WARN] no API key configured, deep review disabled")
	}

	repoRoot := "."
	if len(cfg.WatchRoots) > 0 {
		repoRoot = cfg.WatchRoots[0].Dir
	}

	return &Session{
		ID:         id,
		cfg:        cfg,
		watch:      watch,
		deb:        debounce.New(cfg.DebounceWindow, cfg.RapidSaveThreshold),
		term:       terminal.NewSource(),
		ingest:     browser.NewIngestServer(cfg.IngestAddr),
		classifier: classifier,
		reviewer:   reviewer,
		route:      router.New(cfg.IdleThreshold),
		notifier:   notify.New(out),
		engine:     engine,
		commits:    gitops.NewManager(context.Background(), repoRoot, cfg.CommitMode),
		led:        led,
		sem:        semaphore.NewWeighted(int64(cfg.ClassifyWorkers)),
		state:      StateIdle,
		lastSeen:   make(map[string]string),
		pathMu:     make(map[string]*sync.Mutex),
		reviewReq:  make(chan reviewRequest, 8),
	}, nil
}

// Start acquires the ingestion port and launches the monitoring loops.
// Port acquisition failure aborts the start; it is the only fatal
// condition past construction.
func (s *Session) Start(ctx context.Context) error {
	if err := s.ingest.Start(); err != nil {
		return fmt.Errorf("acquiring ingest port: %w", err)
	}
	s.watch.Start()

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.g, s.ctx = errgroup.WithContext(s.ctx)

	s.mu.Lock()
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.record(events.EntrySessionStart, map[string]interface{}{
		"roots":       rootDirs(s.cfg.WatchRoots),
		"ingest_addr": s.ingest.Addr(),
		"commit_mode": string(s.cfg.CommitMode),
	})

	s.g.Go(s.rawLoop)
	s.g.Go(s.watchErrLoop)
	s.g.Go(s.changeLoop)
	s.g.Go(s.terminalLoop)
	s.g.Go(s.browserLoop)
	s.g.Go(s.idleLoop)
	s.g.Go(s.reviewLoop)
	return nil
}

// rawLoop feeds watcher events into the debouncer.
func (s *Session) rawLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case ev, ok := <-s.watch.Events():
			if !ok {
				return nil
			}
			if s.paused() {
				continue
			}
			s.deb.Offer(ev)
		}
	}
}

// watchErrLoop logs watcher failures and retries the watch handles with
// backoff. A dropped watch root is a degradation, never fatal to the
// rest of the session.
func (s *Session) watchErrLoop() error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err, ok := <-s.watch.Errors():
			if !ok {
				return nil
			}
			log.Printf("[WARN] file watcher: %v", err)
			s.record(events.EntrySourceError, map[string]string{"source": "watcher", "error": err.Error()})

			select {
			case <-s.ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if err := s.watch.Rewatch(); err != nil {
				log.Printf("[WARN] rewatch failed: %v", err)
				if backoff < maxBackoff {
					backoff *= 2
				}
			} else {
				backoff = time.Second
			}
		}
	}
}

// changeLoop consumes debounced changes and dispatches classification
// to the bounded worker pool. Work for the same path is serialized so
// events keep arrival order.
func (s *Session) changeLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case ev, ok := <-s.deb.Out():
			if !ok {
				return nil
			}
			s.route.ObserveFileEvent(ev.Path, ev.RapidIteration)
			s.record(events.EntryFileChange, events.ChangePayload{
				Path: ev.Path, Kind: string(ev.Kind), RapidIteration: ev.RapidIteration,
			})
			if ev.Kind == events.ChangeDeleted {
				s.forget(ev.Path)
				continue
			}
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return nil
			}
			s.g.Go(func() error {
				defer s.sem.Release(1)
				s.processChange(ev)
				return nil
			})
		}
	}
}

// processChange runs the pattern pass over the changed region and, when
// warranted, hands the path to the deep-review queue. The pattern
// results are emitted right away; deep findings follow asynchronously
// so a slow review never holds a worker slot.
func (s *Session) processChange(ev events.ChangeEvent) {
	content, err := os.ReadFile(ev.Path)
	if err != nil {
		// The file can vanish between debounce and read.
		return
	}

	lock := s.lockFor(ev.Path)
	lock.Lock()
	defer lock.Unlock()

	region, created := s.changedRegion(ev, string(content))

	issues, err := s.classifier.Region(s.ctx, ev.Path, content, region)
	if errors.Is(err, classify.ErrTimeout) {
		log.Printf("[WARN] pattern pass on %s exceeded its budget, skipped", ev.Path)
		s.record(events.EntrySourceError, map[string]string{"source": "classifier", "path": ev.Path, "error": "timeout"})
		return
	}
	if err != nil {
		return
	}

	changedLines := region.End - region.Start + 1
	trigger, wantDeep := review.Decide(false, changedLines, s.cfg.DeepReviewLineThreshold,
		created, s.cfg.SecuritySensitive(ev.Path), len(issues))
	if wantDeep && s.reviewer != nil {
		s.queueReview(ev.Path, trigger)
	}

	for _, iss := range issues {
		s.emit(iss)
	}
}

// queueReview hands a path to the single-slot review loop. A full queue
// drops the request; deep review is best-effort and must never block
// classification.
func (s *Session) queueReview(path string, trigger review.Trigger) {
	select {
	case s.reviewReq <- reviewRequest{path: path, trigger: trigger}:
	default:
		log.Printf("[WARN] deep review queue full, dropping %s review of %s", trigger, path)
	}
}

// deepReview runs one completion call. Failures degrade to the pattern
// results silently.
func (s *Session) deepReview(path string, content []byte, trigger review.Trigger) []*types.Issue {
	found, err := s.reviewer.Review(s.ctx, review.Request{
		Path:    path,
		Content: content,
		Trigger: trigger,
	})
	if errors.Is(err, review.ErrUnavailable) {
		s.record(events.EntryDeepReview, map[string]string{"path": path, "trigger": string(trigger), "status": "degraded"})
		return nil
	}
	s.record(events.EntryDeepReview, map[string]interface{}{
		"path": path, "trigger": string(trigger), "status": "ok", "findings": len(found),
	})
	return found
}

// emit records a detected issue and routes it toward the operator.
func (s *Session) emit(iss *types.Issue) {
	s.record(events.EntryIssueDetected, events.IssuePayload{
		IssueID: iss.ID, Category: string(iss.Category), Tier: string(iss.Tier),
		FilePath: iss.FilePath, Detection: string(iss.Detection),
	})

	batch := s.route.Route(iss)
	if batch != nil {
		s.showBatch(batch)
		return
	}
	if iss.State == types.IssueStateIgnored {
		s.record(events.EntryBatchSuppressed, events.BatchPayload{
			Tier: string(iss.Tier), Category: string(iss.Category), FilePath: iss.FilePath, Count: 1,
		})
	}
}

func (s *Session) showBatch(b *types.NotificationBatch) {
	s.notifier.ShowBatch(b)
	s.record(events.EntryBatchShown, events.BatchPayload{
		BatchID: b.ID, Tier: string(b.Tier), Category: string(b.Category),
		FilePath: b.FilePath, Count: len(b.Issues),
	})
}

// terminalLoop turns classified terminal lines into issues.
func (s *Session) terminalLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case tev, ok := <-s.term.Events():
			if !ok {
				return nil
			}
			if s.paused() {
				continue
			}
			s.record(events.EntryTerminalError, events.TerminalPayload{
				Process: string(tev.Process), RuleID: tev.MatchedPattern,
				Tier: tev.Severity, Line: tev.Line, FilePath: tev.FilePath,
			})
			s.emit(terminalIssue(tev))
		}
	}
}

// browserLoop turns ingested browser errors into issues.
func (s *Session) browserLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case bev, ok := <-s.ingest.Events():
			if !ok {
				return nil
			}
			if s.paused() {
				continue
			}
			s.record(events.EntryBrowserError, events.BrowserPayload{
				Kind: string(bev.Kind), Message: bev.Message, URL: bev.URL,
				StatusCode: bev.StatusCode, DurationMS: bev.DurationMS,
			})
			s.emit(browserIssue(bev))
		}
	}
}

// idleLoop periodically releases warning batches once the operator has
// been idle long enough.
func (s *Session) idleLoop() error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case now := <-ticker.C:
			if s.paused() {
				continue
			}
			released, withheld := s.route.ReleaseIdle(now)
			for _, b := range released {
				s.showBatch(b)
			}
			for _, b := range withheld {
				s.record(events.EntryBatchSuppressed, events.BatchPayload{
					BatchID: b.ID, Tier: string(b.Tier), Category: string(b.Category),
					FilePath: b.FilePath, Count: len(b.Issues),
				})
			}
		}
	}
}

// reviewLoop is the single-slot queue for deep reviews: at most one
// review is outstanding, and the classify workers never wait on it.
func (s *Session) reviewLoop() error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case req := <-s.reviewReq:
			s.runReview(req)
		}
	}
}

// runReview performs one deep review and emits only the findings the
// pattern pass has not already routed for the path.
func (s *Session) runReview(req reviewRequest) {
	if s.reviewer == nil {
		return
	}
	content, err := os.ReadFile(req.path)
	if err != nil {
		return
	}
	found := s.deepReview(req.path, content, req.trigger)
	if len(found) == 0 {
		return
	}
	existing := s.pendingFor(req.path)
	merged := review.Merge(existing, found)
	for _, iss := range merged[len(existing):] {
		s.emit(iss)
	}
}

func (s *Session) pendingFor(path string) []*types.Issue {
	var out []*types.Issue
	for _, iss := range s.route.Pending() {
		if iss.FilePath == path {
			out = append(out, iss)
		}
	}
	return out
}

// MonitorProcess attaches a long-running developer process to the
// terminal source.
func (s *Session) MonitorProcess(tag events.ProcessTag, name string, args ...string) error {
	return s.term.Monitor(s.ctx, tag, name, args...)
}

// RequestReview queues an explicit deep review of one file.
func (s *Session) RequestReview(path string) {
	s.queueReview(path, review.TriggerExplicit)
}

// ShowPending flushes every held batch to the operator immediately.
func (s *Session) ShowPending() []*types.NotificationBatch {
	batches := s.route.ReleaseAll()
	for _, b := range batches {
		s.showBatch(b)
	}
	return batches
}

// PendingIssues lists issues currently batched or shown.
func (s *Session) PendingIssues() []*types.Issue {
	return s.route.Pending()
}

// Approve applies the fix for a shown issue. Verification failure and
// stale targets surface as notifications, never as loop failures.
func (s *Session) Approve(ctx context.Context, issueID string) (*types.FixRecord, error) {
	iss, ok := s.route.Approve(issueID)
	if !ok {
		return nil, fmt.Errorf("issue %s is not awaiting approval", issueID)
	}

	rec, err := s.engine.Apply(ctx, iss)

	var verr *fix.VerificationError
	switch {
	case errors.As(err, &verr):
		s.record(events.EntryFixReverted, events.FixPayload{
			FixID: rec.FixID, IssueID: iss.ID, FilePath: rec.FilePath, Category: string(rec.Category),
		})
		s.notifier.ShowFixResult(rec, false)
		s.emit(verr.Issue)
		s.route.Reopen(iss)
		return rec, err

	case errors.Is(err, fix.ErrStaleTarget):
		s.notifier.Warnf("%s changed since this fix was suggested, retry after the next pass", iss.FilePath)
		s.record(events.EntrySourceError, map[string]string{"source": "fix", "path": iss.FilePath, "error": "stale_target"})
		s.route.Reopen(iss)
		return nil, err

	case err != nil:
		s.route.Reopen(iss)
		return nil, err
	}

	s.record(events.EntryFixApplied, events.FixPayload{
		FixID: rec.FixID, IssueID: iss.ID, FilePath: rec.FilePath,
		Category: string(rec.Category), Verified: rec.Verified,
	})
	s.notifier.ShowFixResult(rec, true)
	s.route.Resolve(issueID)
	s.rememberContent(rec.FilePath)

	if s.cfg.CommitMode == config.CommitPerFix {
		if hash, cerr := s.commits.CommitFix(ctx, rec); cerr != nil {
			log.Printf("[WARN] commit failed, fix stays applied: %v", cerr)
			s.record(events.EntrySourceError, map[string]string{"source": "git", "error": cerr.Error()})
		} else if hash != "" {
			s.record(events.EntryCommitCreated, events.CommitPayload{Hash: hash, Mode: string(s.cfg.CommitMode), FixCount: 1})
		}
	}
	return rec, nil
}

// Undo restores the backup for a fix and reopens its issue.
func (s *Session) Undo(fixID string) (*types.FixRecord, error) {
	rec, iss, err := s.engine.Undo(fixID)
	if err != nil {
		return rec, err
	}
	s.record(events.EntryFixUndone, events.FixPayload{
		FixID: rec.FixID, IssueID: rec.IssueID, FilePath: rec.FilePath, Category: string(rec.Category),
	})
	s.notifier.ShowUndo(rec)
	if iss != nil {
		s.route.Reopen(iss)
	}
	s.rememberContent(rec.FilePath)
	return rec, nil
}

// Fixes lists every fix applied this session, newest last.
func (s *Session) Fixes() []*types.FixRecord {
	return s.engine.Records()
}

// Commit makes commits for every verified, uncommitted fix right now,
// regardless of commit mode. This is the manual-mode trigger.
func (s *Session) Commit(ctx context.Context) ([]string, error) {
	hashes, err := s.commits.CommitSession(ctx, s.engine.Records())
	for _, hash := range hashes {
		s.record(events.EntryCommitCreated, events.CommitPayload{Hash: hash, Mode: string(s.cfg.CommitMode)})
	}
	return hashes, err
}

// Pause suspends event processing; sources keep draining so nothing
// blocks, but nothing is classified or shown.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.state = StatePaused
	s.record(events.EntrySessionPause, nil)
}

// Resume restarts event processing.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	s.state = StateRunning
	s.record(events.EntrySessionResume, nil)
}

// Report aggregates the ledger. It performs no new classification.
func (s *Session) Report(ctx context.Context) (*report.Report, error) {
	return report.Generate(ctx, s.led)
}

// Snapshot is the operator-facing status view.
type Snapshot struct {
	SessionID     string
	State         State
	Uptime        time.Duration
	PendingIssues int
	FixesApplied  int
	Processes     []events.ProcessTag
	IngestAddr    string
	CommitsOn     bool
}

// Status returns the current status snapshot.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	state := s.state
	started := s.startedAt
	s.mu.Unlock()

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}
	return Snapshot{
		SessionID:     s.ID,
		State:         state,
		Uptime:        uptime,
		PendingIssues: len(s.route.Pending()),
		FixesApplied:  len(s.engine.Records()),
		Processes:     s.term.Running(),
		IngestAddr:    s.ingest.Addr(),
		CommitsOn:     s.commits.Enabled(),
	}
}

// Stop flushes the debouncer, makes end-of-session commits, and shuts
// every source down. Safe to call once.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.deb.Flush()

	if s.cfg.CommitMode == config.CommitEndOfSession {
		hashes, err := s.commits.CommitSession(ctx, s.engine.Records())
		if err != nil {
			log.Printf("[WARN] end-of-session commit failed: %v", err)
			s.record(events.EntrySourceError, map[string]string{"source": "git", "error": err.Error()})
		}
		for _, hash := range hashes {
			s.record(events.EntryCommitCreated, events.CommitPayload{Hash: hash, Mode: string(s.cfg.CommitMode)})
		}
	}

	s.record(events.EntrySessionStop, nil)

	s.cancel()
	if err := s.watch.Stop(); err != nil {
		log.Printf("[WARN] stopping watcher: %v", err)
	}
	s.deb.Stop()
	s.term.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ingest.Stop(stopCtx); err != nil {
		log.Printf("[WARN] stopping ingest server: %v", err)
	}
	s.g.Wait()
	return s.led.Close()
}

// Ledger exposes the session ledger for report generation after stop.
func (s *Session) Ledger() *ledger.Ledger { return s.led }

func (s *Session) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePaused
}

// record appends to the ledger, downgrading failures to log lines so a
// full disk cannot take down monitoring.
func (s *Session) record(entryType events.EntryType, payload interface{}) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.led.Append(ctx, events.NewLedgerEntry(entryType, payload)); err != nil {
		log.Printf("[ERROR] ledger append failed: %v", err)
	}
}

func (s *Session) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pathMu[path]
	if !ok {
		l = &sync.Mutex{}
		s.pathMu[path] = l
	}
	return l
}

// changedRegion diffs the new content against the last classified
// content for the path and returns the line span that changed, plus
// whether the event was a file creation. A path seen for the first
// time scans fully, but only a real creation counts as a new file for
// review triggering.
func (s *Session) changedRegion(ev events.ChangeEvent, content string) (types.LineRange, bool) {
	s.mu.Lock()
	prev, seen := s.lastSeen[ev.Path]
	s.lastSeen[ev.Path] = content
	s.mu.Unlock()

	lines := strings.Split(content, "\n")
	full := types.LineRange{Start: 1, End: len(lines)}
	created := ev.Kind == events.ChangeCreated
	if created || !seen {
		return full, created
	}
	if prev == content {
		return full, false
	}

	prevLines := strings.Split(prev, "\n")
	start := 0
	for start < len(lines) && start < len(prevLines) && lines[start] == prevLines[start] {
		start++
	}
	endNew, endPrev := len(lines)-1, len(prevLines)-1
	for endNew > start && endPrev > start && lines[endNew] == prevLines[endPrev] {
		endNew--
		endPrev--
	}
	return types.LineRange{Start: start + 1, End: endNew + 1}, false
}

func (s *Session) rememberContent(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.lastSeen[path] = string(content)
	s.mu.Unlock()
}

func (s *Session) forget(path string) {
	s.mu.Lock()
	delete(s.lastSeen, path)
	s.mu.Unlock()
}

func rootDirs(roots []config.WatchRoot) []string {
	out := make([]string, len(roots))
	for i, r := range roots {
		out[i] = r.Dir
	}
	return out
}

func terminalIssue(tev events.TerminalEvent) *types.Issue {
	category := types.CategoryRuntime
	switch tev.MatchedPattern {
	case "syntax_error":
		category = types.CategorySyntax
	case "build_error", "build_failed", "module_not_found":
		category = types.CategorySyntax
	case "deprecation", "generic_warning", "peer_dependency":
		category = types.CategoryBestPractice
	}
	lines := types.LineRange{}
	if tev.LineNumber > 0 {
		lines = types.LineRange{Start: tev.LineNumber, End: tev.LineNumber}
	}
	return &types.Issue{
		ID:          uuid.NewString(),
		Category:    category,
		Tier:        types.SeverityTier(tev.Severity),
		State:       types.IssueStateNew,
		FilePath:    tev.FilePath,
		Lines:       lines,
		Description: fmt.Sprintf("%s: %s", tev.MatchedPattern, strings.TrimSpace(tev.Line)),
		Detection:   types.DetectionPattern,
		RuleIDs:     []string{tev.MatchedPattern},
		SourceKind:  "terminal",
		DetectedAt:  tev.ObservedAt,
	}
}

func browserIssue(bev events.BrowserErrorEvent) *types.Issue {
	var tier types.SeverityTier
	category := types.CategoryRuntime
	switch bev.Kind {
	case events.BrowserRuntimeException, events.BrowserUnhandledRejection:
		tier = types.TierCritical
	case events.BrowserConsoleError:
		tier = types.TierWarning
	case events.BrowserNetworkFailure:
		tier = types.TierWarning
		category = types.CategoryPerformance
	default:
		tier = types.TierSuggestion
	}
	return &types.Issue{
		ID:          uuid.NewString(),
		Category:    category,
		Tier:        tier,
		State:       types.IssueStateNew,
		Description: fmt.Sprintf("%s: %s", bev.Kind, bev.Message),
		Detection:   types.DetectionPattern,
		RuleIDs:     []string{string(bev.Kind)},
		SourceKind:  "browser",
		DetectedAt:  bev.ReceivedAt,
	}
}
