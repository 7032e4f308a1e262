package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"vigil/internal/ledger"
	"vigil/internal/report"
)

var reportSessionID string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a recorded session",
	Long: `Summarize a session from the ledger: issues by category and tier,
fixes applied and undone, notification counts, and network health.

Defaults to the most recent session. The report only reads the ledger;
it never re-classifies anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := ledgerPath(cfg)

		sessionID := reportSessionID
		if sessionID == "" {
			sessionID, err = ledger.LastSessionID(path)
			if err != nil {
				return err
			}
		}

		led, err := ledger.Open(path, sessionID)
		if err != nil {
			return err
		}
		defer led.Close()

		rep, err := report.Generate(context.Background(), led)
		if err != nil {
			return err
		}
		rep.Render(os.Stdout)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSessionID, "session", "", "session id to report on (default: most recent)")
	rootCmd.AddCommand(reportCmd)
}
