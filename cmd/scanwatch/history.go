package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/target"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show scan history for a target",
	Long: `Display a table of past scans for a target.

Scans are listed newest-first. Each row shows the scan ID (truncated), the time
it was stored, the host address, the number of open ports, and the nmap flags.

Use --limit to cap the number of rows shown (default: 10). Without --target,
every target with stored history is listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tgt, _ := cmd.Flags().GetString("target")
		limit, _ := cmd.Flags().GetInt("limit")

		svc, store, err := newService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer store.Close()

		// No target: list everything that has history
		if tgt == "" {
			return listTargets(cmd.Context(), os.Stdout, store)
		}

		tgt = target.Sanitize(tgt)
		if !target.IsValid(tgt) {
			return fmt.Errorf("invalid IP address or hostname: %q", tgt)
		}

		scans, err := svc.RecentScans(cmd.Context(), tgt, limit)
		if err != nil {
			return fmt.Errorf("listing scans for %s: %w", tgt, err)
		}

		if len(scans) == 0 {
			fmt.Printf("No scan history found for %s\n", tgt)
			return nil
		}

		fmt.Printf("\nScan History for %s\n", tgt)
		displayHistoryTable(scans)
		fmt.Printf("Total: %d scan(s)\n\n", len(scans))
		return nil
	},
}

// listTargets prints every target with stored scans and its latest scan time.
func listTargets(ctx context.Context, w io.Writer, store historyStore) error {
	targets, err := store.Targets(ctx)
	if err != nil {
		return fmt.Errorf("listing targets: %w", err)
	}
	if len(targets) == 0 {
		fmt.Fprintln(w, "No scan history found. Run 'scanwatch scan -t <target>' first")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Target", "Latest Scan", "Scan ID")
	for _, t := range targets {
		latest, err := store.Recent(ctx, t, 1)
		if err != nil {
			return fmt.Errorf("reading history for %s: %w", t, err)
		}
		when, id := "-", "-"
		if len(latest) > 0 {
			when = latest[0].Timestamp.UTC().Format("2006-01-02 15:04")
			id = shortScanID(latest[0].ID)
		}
		_ = table.Append([]string{t, when, id})
	}
	_ = table.Render()

	fmt.Fprintf(w, "Total: %d target(s)\n", len(targets))
	return nil
}

// displayHistoryTable renders scans newest-first.
func displayHistoryTable(scans []*models.StoredScan) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Scan ID", "Stored", "IP", "Open Ports", "Options")

	for i, scan := range scans {
		ip, open := "-", "0"
		if scan.ParsedResult != nil {
			if scan.ParsedResult.IP != "" {
				ip = scan.ParsedResult.IP
			}
			open = strconv.Itoa(scan.ParsedResult.OpenPorts())
		}

		_ = table.Append([]string{
			strconv.Itoa(i + 1),
			shortScanID(scan.ID),
			scan.Timestamp.UTC().Format("2006-01-02 15:04"),
			ip,
			open,
			formatOptions(scan.Options),
		})
	}

	_ = table.Render()
}

// shortScanID returns the first 8 characters of a UUID followed by "..." for
// compact table display. Falls back to the full ID when shorter than 8 chars.
func shortScanID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// formatOptions renders options the way they appear on the command line.
// Returns "-" when no options were given.
func formatOptions(opts models.Options) string {
	if len(opts) == 0 {
		return "-"
	}
	return strings.Join(opts.Args(), " ")
}

func init() {
	historyCmd.Flags().StringP("target", "t", "", "Target IP address or hostname (omit to list targets)")
	historyCmd.Flags().Int("limit", 10, "Maximum number of scans to display")
	rootCmd.AddCommand(historyCmd)
}
