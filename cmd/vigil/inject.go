package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vigil/internal/browser"
)

var injectRemove bool

var injectCmd = &cobra.Command{
	Use:   "inject [html-file]",
	Short: "Add or remove the browser tracking script",
	Long: `Add the browser tracking script to your project's entry HTML so
console errors, unhandled exceptions, and network failures reach the
monitoring session. Without an argument the entry HTML is discovered
automatically (public/index.html, index.html, or the first HTML file
outside node_modules).

The edit is reversible: 'vigil inject --remove' restores the file
byte for byte.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		htmlPath := ""
		if len(args) == 1 {
			htmlPath = args[0]
			if _, err := os.Stat(htmlPath); err != nil {
				return err
			}
		} else {
			if len(cfg.WatchRoots) == 0 {
				return fmt.Errorf("no watch roots configured")
			}
			htmlPath, err = browser.FindEntryHTML(cfg.WatchRoots[0].Dir)
			if err != nil {
				return err
			}
		}

		if injectRemove {
			modified, err := browser.Remove(htmlPath)
			if err != nil {
				return err
			}
			if modified {
				fmt.Printf("Tracking script removed from %s\n", htmlPath)
			} else {
				fmt.Printf("No tracking script in %s\n", htmlPath)
			}
			return nil
		}

		modified, err := browser.Inject(htmlPath, cfg.IngestAddr)
		if err != nil {
			return err
		}
		if modified {
			fmt.Printf("Tracking script injected into %s\n", htmlPath)
			fmt.Printf("Errors will be posted to http://%s/ingest\n", cfg.IngestAddr)
		} else {
			fmt.Printf("Tracking script already present in %s\n", htmlPath)
		}
		return nil
	},
}

func init() {
	injectCmd.Flags().BoolVar(&injectRemove, "remove", false, "remove the tracking script instead of adding it")
	rootCmd.AddCommand(injectCmd)
}
