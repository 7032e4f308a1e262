package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// scriptMarker guards against double injection and identifies the block
// for removal on session stop.
const scriptMarker = "vigil-console-tracker"

// entryCandidates are the usual locations of a frontend entry HTML file,
// probed in order.
var entryCandidates = []string{
	"public/index.html",
	"index.html",
	"src/index.html",
	"app/index.html",
}

// TrackingScript renders the console-tracking block the engine injects
// into the monitored application. The script overrides console.error and
// console.warn, listens for uncaught errors and unhandled rejections, and
// POSTs each event to the ingest endpoint. Delivery is best effort; the
// script swallows its own failures so it can never break the page.
func TrackingScript(ingestAddr string) string {
	endpoint := fmt.Sprintf("http://%s/ingest", ingestAddr)
	return `<script id="` + scriptMarker + `">
(function() {
  var ENDPOINT = '` + endpoint + `';
  function send(kind, message, stack, sourceLocation) {
    try {
      fetch(ENDPOINT, {
        method: 'POST',
        headers: { 'Content-Type': 'application/json' },
        body: JSON.stringify({
          kind: kind,
          message: String(message).slice(0, 4096),
          stack: stack ? String(stack).slice(0, 8192) : undefined,
          sourceLocation: sourceLocation || undefined,
          url: window.location.href
        })
      }).catch(function() {});
    } catch (e) {}
  }
  var origError = console.error;
  console.error = function() {
    origError.apply(console, arguments);
    send('consoleError', Array.prototype.join.call(arguments, ' '), new Error().stack);
  };
  var origWarn = console.warn;
  console.warn = function() {
    origWarn.apply(console, arguments);
    send('consoleWarn', Array.prototype.join.call(arguments, ' '));
  };
  window.addEventListener('error', function(ev) {
    send('runtimeException', ev.message, ev.error && ev.error.stack,
      ev.filename + ':' + ev.lineno + ':' + ev.colno);
  });
  window.addEventListener('unhandledrejection', function(ev) {
    send('unhandledRejection',
      ev.reason ? String(ev.reason) : 'promise rejected',
      ev.reason && ev.reason.stack);
  });
})();
</script>`
}

// FindEntryHTML locates the application's entry HTML under a project
// directory, preferring the conventional locations before falling back to
// the first index.html anywhere in the tree (skipping dependency dirs).
func FindEntryHTML(projectDir string) (string, error) {
	for _, rel := range entryCandidates {
		path := filepath.Join(projectDir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	var found string
	err := filepath.WalkDir(projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch d.Name() {
			case "node_modules", "dist", "build", ".git":
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "index.html" && found == "" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no entry HTML found under %s", projectDir)
	}
	return found, nil
}

// Inject adds the tracking script to the entry HTML exactly once. A
// second call is a no-op. Returns whether the file was modified.
func Inject(htmlPath, ingestAddr string) (bool, error) {
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return false, fmt.Errorf("reading entry HTML: %w", err)
	}
	content := string(data)

	if strings.Contains(content, scriptMarker) {
		return false, nil
	}

	script := TrackingScript(ingestAddr)
	switch {
	case strings.Contains(content, "</body>"):
		content = strings.Replace(content, "</body>", script+"\n</body>", 1)
	case strings.Contains(content, "</head>"):
		content = strings.Replace(content, "</head>", script+"\n</head>", 1)
	default:
		content += "\n" + script + "\n"
	}

	if err := os.WriteFile(htmlPath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing entry HTML: %w", err)
	}
	return true, nil
}

// Remove strips a previously injected tracking script from the entry
// HTML. Safe to call when no script is present.
func Remove(htmlPath string) (bool, error) {
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return false, fmt.Errorf("reading entry HTML: %w", err)
	}
	content := string(data)

	start := strings.Index(content, `<script id="`+scriptMarker+`">`)
	if start < 0 {
		return false, nil
	}
	end := strings.Index(content[start:], "</script>")
	if end < 0 {
		return false, fmt.Errorf("tracking script in %s is truncated", htmlPath)
	}
	end = start + end + len("</script>")

	// Swallow one trailing newline left behind by injection.
	if end < len(content) && content[end] == '\n' {
		end++
	}
	content = content[:start] + content[end:]

	if err := os.WriteFile(htmlPath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing entry HTML: %w", err)
	}
	return true, nil
}
