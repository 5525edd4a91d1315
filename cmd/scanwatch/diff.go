package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/report"
	"github.com/hakim/scanwatch/internal/target"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare the two most recent scans of a target",
	Long: `Compare the newest stored scan of a target against the one before it.

Both raw results are re-parsed before comparison, so records stored by an older
release are compared with the current parser.

Reports newly opened and closed ports, port state and service changes, script
output changes, and whether the address, latency, or OS guess moved.

Use --json to print the structured diff, and --report to write a markdown change
report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Step 1: Get flags
		tgt, _ := cmd.Flags().GetString("target")
		asJSON, _ := cmd.Flags().GetBool("json")
		reportPath, _ := cmd.Flags().GetString("report")

		tgt = target.Sanitize(tgt)
		if !target.IsValid(tgt) {
			return fmt.Errorf("invalid IP address or hostname: %q", tgt)
		}

		// Step 2: Compute diff from stored history
		svc, store, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := svc.ScanChanges(cmd.Context(), tgt)
		if errors.Is(err, scanerr.ErrInsufficientHistory) {
			fmt.Printf("[!] Need at least two scans of %s to compare\n", tgt)
			return nil
		}
		if err != nil {
			return fmt.Errorf("computing changes for %s: %w", tgt, err)
		}

		// Step 3: Optional markdown report
		if reportPath != "" {
			if err := report.WriteDiffReport(tgt, result, reportPath); err != nil {
				// Warn but do not abort; the diff is still printed below
				fmt.Fprintf(os.Stderr, "[!] Warning: failed to write diff report: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "[+] Diff report written to %s\n", reportPath)
			}
		}

		// Step 4: Print
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printDiffSummary(os.Stdout, result)
		return nil
	},
}

func init() {
	diffCmd.Flags().StringP("target", "t", "", "Target IP address or hostname (required)")
	diffCmd.Flags().Bool("json", false, "Print the diff as JSON")
	diffCmd.Flags().String("report", "", "Write a markdown change report to this path")
	_ = diffCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(diffCmd)
}

// printDiffSummary writes the human-readable change summary.
func printDiffSummary(w io.Writer, d *models.ScanDiff) {
	fmt.Fprintf(w, "[*] Comparing %s against %s\n", shortScanID(d.NewerScanID), shortScanID(d.OlderScanID))
	if !d.HasChanges() {
		fmt.Fprintln(w, "[+] No changes detected")
		return
	}

	if d.IPChange {
		fmt.Fprintf(w, "    IP:       %s -> %s\n", orDash(d.OldIP), orDash(d.NewIP))
	}
	if d.LatencyChange {
		fmt.Fprintf(w, "    Latency:  %s -> %s\n", orDash(d.OldLatency), orDash(d.NewLatency))
	}
	if d.OSChange {
		fmt.Fprintf(w, "    OS:       %s -> %s\n", orDash(d.OldOS), orDash(d.NewOS))
	}

	portChanges := len(d.NewlyOpened) + len(d.NewlyClosed) + len(d.ChangedState) + len(d.ChangedServices)
	if portChanges > 0 {
		fmt.Fprintf(w, "    Ports:    +%d opened, -%d closed, %d state, %d service changes\n",
			len(d.NewlyOpened), len(d.NewlyClosed), len(d.ChangedState), len(d.ChangedServices))
		for _, p := range d.NewlyOpened {
			fmt.Fprintf(w, "      + %s\n", p)
		}
		for _, p := range d.NewlyClosed {
			fmt.Fprintf(w, "      - %s\n", p)
		}
		for _, p := range d.ChangedState {
			fmt.Fprintf(w, "      ~ %s\n", p)
		}
		for _, p := range d.ChangedServices {
			fmt.Fprintf(w, "      ~ %s\n", p)
		}
	}

	if len(d.ScriptChanges) > 0 {
		names := make([]string, 0, len(d.ScriptChanges))
		for name := range d.ScriptChanges {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(w, "    Scripts:  %d changed\n", len(names))
		for _, name := range names {
			fmt.Fprintf(w, "      %s (%s)\n", name, d.ScriptChanges[name])
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
