package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/report"
)

var showCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show one stored scan by ID",
	Long: `Print a stored scan as JSON, including the raw nmap output and the
command that produced it. Scan IDs are listed by 'scanwatch history'.

Use --report to write a markdown port report instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath, _ := cmd.Flags().GetString("report")

		_, store, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		scan, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, scanerr.ErrNotFound) {
			return fmt.Errorf("no scan with ID %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("reading scan %s: %w", args[0], err)
		}

		if reportPath != "" {
			if err := report.WriteScanReport(scan, reportPath); err != nil {
				return err
			}
			fmt.Printf("[+] Report written to %s\n", reportPath)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(scan)
	},
}

func init() {
	showCmd.Flags().String("report", "", "Write a markdown port report to this path instead of printing JSON")
	rootCmd.AddCommand(showCmd)
}
