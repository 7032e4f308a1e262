package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vigil/internal/browser"
	"vigil/internal/config"
	"vigil/internal/events"
	"vigil/internal/ledger"
	"vigil/internal/repl"
	"vigil/internal/report"
	"vigil/internal/session"
)

var (
	startCommitMode string
	startFrontend   string
	startBackend    string
	startInjectHTML bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a monitoring session",
	Long: `Start a monitoring session over the configured watch roots.

The session runs until you type 'exit' (or press Ctrl+D). While it
runs, an interactive prompt accepts commands:

  status            session snapshot
  issues            list pending issues
  pending           show held notification batches now
  approve <id>      apply the fix for a shown issue
  undo <fix-id>     restore the backup for an applied fix
  review <path>     request a deep review of one file
  pause / resume    suspend or restart event processing
  report            print the session report so far
  commit            commit all verified, uncommitted fixes
  help              list commands

With --frontend or --backend, vigil spawns those commands and parses
their output for build and runtime errors. With --inject, the browser
tracking script is added to your entry HTML for the duration of the
session and removed on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if startCommitMode != "" {
			cfg.CommitMode = config.CommitMode(startCommitMode)
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		s, err := session.New(cfg, os.Stdout)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if err := s.Start(ctx); err != nil {
			return err
		}

		var injectedPath string
		if startInjectHTML && len(cfg.WatchRoots) > 0 {
			injectedPath = injectTracker(cfg.WatchRoots[0].Dir, s.Status().IngestAddr)
		}

		if startFrontend != "" {
			monitorCommand(s, events.ProcessFrontend, startFrontend)
		}
		if startBackend != "" {
			monitorCommand(s, events.ProcessBackend, startBackend)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Monitoring started (session %s)\n", green("✓"), s.ID)
		fmt.Printf("  ingest: http://%s/ingest\n", s.Status().IngestAddr)

		replErr := repl.New(s, os.Stdout).Run(ctx)

		if injectedPath != "" {
			if _, err := browser.Remove(injectedPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not remove tracking script: %v\n", err)
			}
		}

		if err := s.Stop(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
		}

		// Stop closes the session ledger, so the final report reads
		// from a fresh handle. This way it includes the stop entry and
		// any end-of-session commits.
		if led, err := ledger.Open(ledgerPath(cfg), s.ID); err == nil {
			if rep, err := report.Generate(ctx, led); err == nil {
				fmt.Println()
				rep.Render(os.Stdout)
			}
			led.Close()
		}
		return replErr
	},
}

func monitorCommand(s *session.Session, tag events.ProcessTag, command string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return
	}
	if err := s.MonitorProcess(tag, parts[0], parts[1:]...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not start %s process: %v\n", tag, err)
	}
}

func injectTracker(projectDir, ingestAddr string) string {
	htmlPath, err := browser.FindEntryHTML(projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: no entry HTML found, browser tracking disabled: %v\n", err)
		return ""
	}
	modified, err := browser.Inject(htmlPath, ingestAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not inject tracking script: %v\n", err)
		return ""
	}
	if modified {
		fmt.Printf("  tracking script injected into %s\n", htmlPath)
	}
	return htmlPath
}

func init() {
	startCmd.Flags().StringVar(&startCommitMode, "commit-mode", "", "manual, per_fix, or end_of_session")
	startCmd.Flags().StringVar(&startFrontend, "frontend", "", "frontend dev command to spawn and monitor")
	startCmd.Flags().StringVar(&startBackend, "backend", "", "backend dev command to spawn and monitor")
	startCmd.Flags().BoolVar(&startInjectHTML, "inject", false, "inject the browser tracking script into the entry HTML")
	rootCmd.AddCommand(startCmd)
}
