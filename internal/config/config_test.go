package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchRootAllowed(t *testing.T) {
	root := WatchRoot{
		Dir:        "/project",
		Extensions: []string{".js", ".ts", ".py"},
		DenyGlobs:  []string{"node_modules", "dist", "*.min.js"},
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"allowed js file", "/project/src/app.js", true},
		{"allowed nested py file", "/project/backend/api/views.py", true},
		{"wrong extension", "/project/README.md", false},
		{"denied directory", "/project/node_modules/react/index.js", false},
		{"denied nested directory", "/project/frontend/node_modules/lib/x.ts", false},
		{"denied glob wins over extension", "/project/src/bundle.min.js", false},
		{"dist is denied", "/project/dist/app.js", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, root.Allowed(tt.path))
		})
	}
}

func TestWatchRootNoExtensionsAllowsAll(t *testing.T) {
	root := WatchRoot{Dir: "/p", DenyGlobs: []string{".git"}}
	assert.True(t, root.Allowed("/p/Makefile"))
	assert.False(t, root.Allowed("/p/.git/config"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 500*time.Millisecond, cfg.DebounceWindow)
	assert.Equal(t, 5, cfg.RapidSaveThreshold)
	assert.Equal(t, 30*time.Second, cfg.IdleThreshold)
	assert.Equal(t, 100, cfg.DeepReviewLineThreshold)
	assert.Equal(t, CommitManual, cfg.CommitMode)
	assert.Equal(t, 100, cfg.BackupRetention)
	assert.LessOrEqual(t, cfg.ClassifyWorkers, 4)
	assert.GreaterOrEqual(t, cfg.ClassifyWorkers, 1)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.WatchRoots = []WatchRoot{{Dir: dir, Extensions: []string{".go"}}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(dir, ".vigil"), cfg.StateDir)

	t.Run("no roots", func(t *testing.T) {
		c := DefaultConfig()
		assert.ErrorContains(t, c.Validate(), "watch root")
	})

	t.Run("missing directory", func(t *testing.T) {
		c := DefaultConfig()
		c.WatchRoots = []WatchRoot{{Dir: filepath.Join(dir, "nope")}}
		assert.Error(t, c.Validate())
	})

	t.Run("bad commit mode", func(t *testing.T) {
		c := DefaultConfig()
		c.WatchRoots = []WatchRoot{{Dir: dir}}
		c.CommitMode = "sometimes"
		assert.ErrorContains(t, c.Validate(), "commit mode")
	})

	t.Run("bad debounce", func(t *testing.T) {
		c := DefaultConfig()
		c.WatchRoots = []WatchRoot{{Dir: dir}}
		c.DebounceWindow = 0
		assert.ErrorContains(t, c.Validate(), "debounce")
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
watch_roots:
  - dir: ` + dir + `
    extensions: [".js", ".py"]
    deny_globs: ["node_modules"]
debounce_window: 250ms
rapid_save_threshold: 3
commit_mode: per_fix
`
	path := filepath.Join(dir, "vigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow)
	assert.Equal(t, 3, cfg.RapidSaveThreshold)
	assert.Equal(t, CommitPerFix, cfg.CommitMode)
	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.IdleThreshold)
	require.Len(t, cfg.WatchRoots, 1)
	assert.Equal(t, []string{".js", ".py"}, cfg.WatchRoots[0].Extensions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSecuritySensitive(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.SecuritySensitive("backend/auth/login.py"))
	assert.True(t, cfg.SecuritySensitive("src/payment_service.js"))
	assert.True(t, cfg.SecuritySensitive("API/Auth.ts"))
	assert.False(t, cfg.SecuritySensitive("frontend/components/button.jsx"))
}
