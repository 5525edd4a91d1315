package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hakim/scanwatch/internal/models"
)

// RenderScan renders a single stored scan: host facts, the port table, and
// script output.
func RenderScan(scan *models.StoredScan) string {
	var b strings.Builder
	rec := scan.ParsedResult
	if rec == nil {
		rec = models.NewScanRecord()
	}

	b.WriteString("# Port Scan Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", scan.Target))
	b.WriteString(fmt.Sprintf("**Date:** %s\n", scan.Timestamp.UTC().Format(timeLayout)))
	if scan.Command != "" {
		b.WriteString(fmt.Sprintf("**Command:** `%s`\n", scan.Command))
	}
	b.WriteString(fmt.Sprintf("**Host:** %s (%s) | **Latency:** %s | **Open ports:** %d\n\n",
		cell(rec.Hostname), cell(rec.IP), cell(rec.Latency), rec.OpenPorts()))

	if rec.OSDetection != "" {
		b.WriteString(fmt.Sprintf("**OS:** %s\n\n", rec.OSDetection))
	}

	b.WriteString("## Ports\n\n")
	if len(rec.Ports) > 0 {
		b.WriteString("| Port | Protocol | State | Service |\n")
		b.WriteString("|------|----------|-------|---------|\n")
		for _, port := range sortedPorts(rec.Ports) {
			info := rec.Ports[port]
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				port, info.Protocol, info.State, cell(info.Service)))
		}
	} else {
		b.WriteString("No ports reported.\n")
	}
	b.WriteString("\n")

	if len(rec.ScriptResults) > 0 {
		names := make([]string, 0, len(rec.ScriptResults))
		for name := range rec.ScriptResults {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("## Scripts\n\n")
		for _, name := range names {
			b.WriteString(fmt.Sprintf("- **%s:** %s\n", name, rec.ScriptResults[name]))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// WriteScanReport renders scan and writes it to outputPath.
func WriteScanReport(scan *models.StoredScan, outputPath string) error {
	return writeFile(outputPath, RenderScan(scan))
}

// sortedPorts orders port keys numerically, non-numeric keys last.
func sortedPorts(ports map[string]models.PortInfo) []string {
	keys := make([]string, 0, len(ports))
	for k := range ports {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}
