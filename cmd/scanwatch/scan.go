package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hakim/scanwatch/internal/report"
	"github.com/hakim/scanwatch/internal/target"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one nmap scan synchronously and store it",
	Long: `Scan a single target in the foreground, parse the result, and append it
to the target's history.

Pass nmap flags with --opt, once per flag:
  scanwatch scan -t scanme.nmap.org --opt -F --opt "-p=22,80,443"

The parsed record is printed as JSON. Use --report to also write a markdown
port report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		tgt, _ := cmd.Flags().GetString("target")
		rawOpts, _ := cmd.Flags().GetStringArray("opt")
		reportPath, _ := cmd.Flags().GetString("report")
		full, _ := cmd.Flags().GetBool("full")

		// Step 2: Validate input
		tgt = target.Sanitize(tgt)
		if !target.IsValid(tgt) {
			return fmt.Errorf("invalid IP address or hostname: %q", tgt)
		}
		opts, err := parseOptionFlags(rawOpts)
		if err != nil {
			return fmt.Errorf("invalid scan options: %w", err)
		}

		// Step 3: Build the service (fails when nmap is missing)
		svc, store, err := newService(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer store.Close()

		// Step 4: Run the scan
		fmt.Fprintf(os.Stderr, "[*] Scanning %s...\n", tgt)
		scan, err := svc.RunScan(cmd.Context(), tgt, opts)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "[+] Stored scan %s (%d open ports)\n", scan.ID, scan.ParsedResult.OpenPorts())

		// Step 5: Optional markdown report
		if reportPath != "" {
			if err := report.WriteScanReport(scan, reportPath); err != nil {
				fmt.Fprintf(os.Stderr, "[!] Warning: failed to write report: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "[+] Report written to %s\n", reportPath)
			}
		}

		// Step 6: Print result
		var out any = scan.ParsedResult
		if full {
			out = scan
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	scanCmd.Flags().StringP("target", "t", "", "IP address or hostname to scan (required)")
	scanCmd.Flags().StringArray("opt", nil, "nmap flag, optionally with a value (repeatable)")
	scanCmd.Flags().String("report", "", "Write a markdown port report to this path")
	scanCmd.Flags().Bool("full", false, "Print the full stored scan, including raw output")
	_ = scanCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(scanCmd)
}
