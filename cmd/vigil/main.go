package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vigil/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Continuous code health monitoring for live development sessions",
	Long: `Vigil watches your project while you work: it debounces file saves,
ingests browser console errors, parses dev-server output, classifies
what it sees, and offers fixes you can approve, undo, and commit.

Start a session with 'vigil start'. Everything the session observes is
written to an append-only ledger; 'vigil report' summarizes it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to vigil.yaml (default: ./vigil.yaml if present)")
}

// loadConfig reads the configured or conventional config file, falling
// back to defaults pointed at the current directory.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat("vigil.yaml"); err == nil {
			path = "vigil.yaml"
		}
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.WatchRoots = []config.WatchRoot{{
			Dir:        cwd,
			Extensions: []string{".js", ".jsx", ".ts", ".tsx", ".py", ".go", ".html", ".css"},
			DenyGlobs:  []string{"node_modules", ".git", "dist", "build", "__pycache__", ".vigil"},
		}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ledgerPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "ledger.db")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
