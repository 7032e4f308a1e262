// Package browser receives runtime errors pushed by the tracking script
// injected into the monitored application, over a loopback-only HTTP
// endpoint. The script is an untrusted, best-effort producer: payloads are
// shape-validated and dropped when malformed, never bounced back as
// errors, and never logged unredacted.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"vigil/internal/events"
)

// maxPayloadBytes bounds one ingest POST body.
const maxPayloadBytes = 64 * 1024

// credentialKeyPattern matches payload keys that look like credentials.
// Values under matching keys are redacted before any logging.
var credentialKeyPattern = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|authorization|credential|cookie|session[_-]?id)`)

// IngestServer owns the loopback HTTP listener for browser events.
type IngestServer struct {
	addr   string
	out    chan events.BrowserErrorEvent
	server *http.Server
	ln     net.Listener
}

// NewIngestServer creates the server without binding the port; Start
// performs the bind so that startup failure surfaces there.
func NewIngestServer(addr string) *IngestServer {
	s := &IngestServer{
		addr: addr,
		out:  make(chan events.BrowserErrorEvent, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("OPTIONS /ingest", handlePreflight)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Events returns the validated event stream.
func (s *IngestServer) Events() <-chan events.BrowserErrorEvent { return s.out }

// Addr returns the bound listen address, valid after Start.
func (s *IngestServer) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start binds the listener. Failure to acquire the port is fatal to
// session start (the one hard startup condition besides watch roots).
func (s *IngestServer) Start() error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return fmt.Errorf("invalid ingest address %q: %w", s.addr, err)
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("ingest address %q must bind to loopback", s.addr)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("acquiring ingest port %s: %w", s.addr, err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[WARN] ingest server stopped: %v", err)
		}
	}()
	return nil
}

// Stop releases the listener.
func (s *IngestServer) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	close(s.out)
	return err
}

// handleIngest accepts newline-delimited JSON objects, one BrowserErrorEvent
// each. The response is always 200: malformed payloads are acked and
// dropped so ingestion failures never propagate into the instrumented
// application.
func (s *IngestServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		ack(w, 0, 0)
		return
	}

	var accepted, dropped int
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ev, ok := parseEvent([]byte(line))
		if !ok {
			dropped++
			log.Printf("[WARN] ingest dropped malformed payload: %s", Redact(line))
			continue
		}
		select {
		case s.out <- ev:
			accepted++
		default:
			// Channel full: ack-or-drop, never block the producer.
			dropped++
		}
	}
	ack(w, accepted, dropped)
}

func handlePreflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusOK)
}

func ack(w http.ResponseWriter, accepted, dropped int) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"accepted":%d,"dropped":%d}`, accepted, dropped)
}

// parseEvent validates the shape of one payload line. Raw request bodies
// are never persisted; only the typed fields survive.
func parseEvent(data []byte) (events.BrowserErrorEvent, bool) {
	var ev events.BrowserErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, false
	}
	if !ev.Kind.Valid() || ev.Message == "" {
		return ev, false
	}
	ev.ReceivedAt = time.Now()
	return ev, true
}

// Redact replaces values whose keys look credential-shaped in a raw JSON
// payload, so dropped-payload logging cannot leak secrets. Non-JSON input
// is redacted wholesale.
func Redact(raw string) string {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "[unparseable payload redacted]"
	}
	redactMap(obj)
	out, err := json.Marshal(obj)
	if err != nil {
		return "[unparseable payload redacted]"
	}
	return string(out)
}

func redactMap(obj map[string]interface{}) {
	for key, val := range obj {
		if credentialKeyPattern.MatchString(key) {
			obj[key] = "[redacted]"
			continue
		}
		if nested, ok := val.(map[string]interface{}); ok {
			redactMap(nested)
		}
	}
}
