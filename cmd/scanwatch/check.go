package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hakim/scanwatch/internal/tools"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for required external tools",
	Long: `Verify that the nmap executable is installed and available.
Shows installation status, version information, and installation instructions
when it is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		binary, _ := cmd.Flags().GetString("nmap")
		results := tools.CheckAll(tools.DefaultRequirements(binary))

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Tool", "Status", "Version", "Path", "Purpose")

		foundCount := 0
		for _, result := range results {
			status, version, path := "[-]", "-", "-"
			if result.Found {
				status = "[+]"
				foundCount++
				path = result.Path
				if result.Version != "" && result.Version != "unknown" {
					version = result.Version
				}
			}
			_ = table.Append([]string{result.Requirement.Name, status, version, path, result.Requirement.Purpose})
		}
		_ = table.Render()

		// Print installation instructions for missing tools
		for _, result := range results {
			if result.Found {
				continue
			}
			required := ""
			if result.Requirement.Required {
				required = " (REQUIRED)"
			}
			fmt.Printf("\n  %s%s\n    Install: %s\n", result.Requirement.Name, required, result.Requirement.InstallCmd)
		}

		fmt.Printf("\nSummary: %d/%d tools found\n", foundCount, len(results))

		if tools.MissingRequired(results) {
			return fmt.Errorf("required tools are missing")
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("nmap", "", "nmap executable to check (default: nmap on PATH)")
	rootCmd.AddCommand(checkCmd)
}
