package browser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head><title>app</title></head>
<body>
<div id="root"></div>
</body>
</html>
`

func writeEntry(t *testing.T, rel string) (projectDir, htmlPath string) {
	t.Helper()
	projectDir = t.TempDir()
	htmlPath = filepath.Join(projectDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(htmlPath), 0o755))
	require.NoError(t, os.WriteFile(htmlPath, []byte(sampleHTML), 0o644))
	return projectDir, htmlPath
}

func TestFindEntryHTMLPrefersPublic(t *testing.T) {
	projectDir, _ := writeEntry(t, "public/index.html")
	// A second candidate that should lose.
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "index.html"), []byte(sampleHTML), 0o644))

	found, err := FindEntryHTML(projectDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "public/index.html"), found)
}

func TestFindEntryHTMLWalksTree(t *testing.T) {
	projectDir, htmlPath := writeEntry(t, "frontend/pages/index.html")

	found, err := FindEntryHTML(projectDir)
	require.NoError(t, err)
	assert.Equal(t, htmlPath, found)
}

func TestFindEntryHTMLSkipsNodeModules(t *testing.T) {
	projectDir := t.TempDir()
	dep := filepath.Join(projectDir, "node_modules", "pkg", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(dep), 0o755))
	require.NoError(t, os.WriteFile(dep, []byte(sampleHTML), 0o644))

	_, err := FindEntryHTML(projectDir)
	assert.Error(t, err)
}

func TestInjectIsIdempotent(t *testing.T) {
	_, htmlPath := writeEntry(t, "index.html")

	modified, err := Inject(htmlPath, "127.0.0.1:7177")
	require.NoError(t, err)
	assert.True(t, modified)

	first, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(first), scriptMarker)
	assert.Contains(t, string(first), "http://127.0.0.1:7177/ingest")
	// Injected before the closing body tag.
	assert.Less(t, strings.Index(string(first), scriptMarker), strings.Index(string(first), "</body>"))

	modified, err = Inject(htmlPath, "127.0.0.1:7177")
	require.NoError(t, err)
	assert.False(t, modified, "second injection must be a no-op")

	second, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, strings.Count(string(second), scriptMarker))
}

func TestInjectWithoutBodyFallsBackToHead(t *testing.T) {
	projectDir := t.TempDir()
	htmlPath := filepath.Join(projectDir, "index.html")
	require.NoError(t, os.WriteFile(htmlPath, []byte("<html><head></head></html>"), 0o644))

	modified, err := Inject(htmlPath, "127.0.0.1:7177")
	require.NoError(t, err)
	assert.True(t, modified)

	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), scriptMarker)
}

func TestRemoveRestoresOriginal(t *testing.T) {
	_, htmlPath := writeEntry(t, "index.html")

	_, err := Inject(htmlPath, "127.0.0.1:7177")
	require.NoError(t, err)

	removed, err := Remove(htmlPath)
	require.NoError(t, err)
	assert.True(t, removed)

	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Equal(t, sampleHTML, string(data))

	// Removing again is a no-op.
	removed, err = Remove(htmlPath)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTrackingScriptShape(t *testing.T) {
	script := TrackingScript("127.0.0.1:9999")

	assert.Contains(t, script, "consoleError")
	assert.Contains(t, script, "consoleWarn")
	assert.Contains(t, script, "runtimeException")
	assert.Contains(t, script, "unhandledRejection")
	assert.Contains(t, script, "http://127.0.0.1:9999/ingest")
	// The script must swallow its own delivery failures.
	assert.Contains(t, script, ".catch(function() {})")
}
