package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/scanwatch/internal/models"
)

func emptyDiff() *models.ScanDiff {
	return &models.ScanDiff{
		NewIP: "10.0.0.1", OldIP: "10.0.0.1",
		NewlyOpened:     []string{},
		NewlyClosed:     []string{},
		ChangedState:    []string{},
		ChangedServices: []string{},
		ScriptChanges:   map[string]models.ScriptChange{},
	}
}

func TestRenderDiffNoChanges(t *testing.T) {
	out := RenderDiff("example.com", emptyDiff())

	assert.Contains(t, out, "**Target:** example.com")
	assert.Contains(t, out, "| IP | 10.0.0.1 | 10.0.0.1 | no |")
	assert.Contains(t, out, "| OS | - | - | no |")
	assert.Contains(t, out, "No changes detected.")
	assert.NotContains(t, out, "## Summary")
}

func TestRenderDiffSections(t *testing.T) {
	newer := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	d := emptyDiff()
	d.NewerScanID, d.OlderScanID = "11111111-aaaa", "22222222-bbbb"
	d.NewerTimestamp, d.OlderTimestamp = &newer, &older
	d.NewlyOpened = []string{"443: https"}
	d.NewlyClosed = []string{"21: ftp"}
	d.ChangedState = []string{"80: open -> filtered"}
	d.ScriptChanges = map[string]models.ScriptChange{
		"ssl-cert":   models.ScriptNew,
		"http-title": models.ScriptChanged,
	}

	out := RenderDiff("example.com", d)

	assert.Contains(t, out, "2024-05-02 10:00:00 UTC (11111111) against 2024-05-01 10:00:00 UTC (22222222)")
	assert.Contains(t, out, "| Ports | +1 / -1 / ~1 |")
	assert.Contains(t, out, "| Scripts | +1 / ~1 |")
	assert.Contains(t, out, "## Newly Opened Ports (+1)\n\n- 443: https\n")
	assert.Contains(t, out, "## Newly Closed Ports (-1)\n\n- 21: ftp\n")
	assert.Contains(t, out, "## Port State Changes (1)")
	assert.NotContains(t, out, "## Service Changes")
	assert.Less(t, strings.Index(out, "| http-title | changed |"), strings.Index(out, "| ssl-cert | new |"))
	assert.NotContains(t, out, "No changes detected.")
}

func TestWriteDiffReportCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "diff.md")

	require.NoError(t, WriteDiffReport("example.com", emptyDiff(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Scan Diff Report")
}

func TestRenderScan(t *testing.T) {
	rec := models.NewScanRecord()
	rec.IP, rec.Hostname, rec.Latency = "45.33.32.156", "scanme.nmap.org", "0.032s"
	rec.Ports["443"] = models.PortInfo{Protocol: models.ProtocolTCP, State: "closed"}
	rec.Ports["22"] = models.PortInfo{Protocol: models.ProtocolTCP, State: "open", Service: "ssh"}
	rec.Ports["9929"] = models.PortInfo{Protocol: models.ProtocolTCP, State: "open", Service: "nping-echo"}
	rec.ScriptResults["http-title"] = "Go ahead and ScanMe!"

	scan := &models.StoredScan{
		Target:       "scanme.nmap.org",
		ParsedResult: rec,
		Command:      "nmap -F scanme.nmap.org",
		Timestamp:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	out := RenderScan(scan)

	assert.Contains(t, out, "**Host:** scanme.nmap.org (45.33.32.156) | **Latency:** 0.032s | **Open ports:** 2")
	assert.Contains(t, out, "**Command:** `nmap -F scanme.nmap.org`")
	assert.Contains(t, out, "| 443 | tcp | closed | - |")
	assert.Less(t, strings.Index(out, "| 22 |"), strings.Index(out, "| 443 |"))
	assert.Less(t, strings.Index(out, "| 443 |"), strings.Index(out, "| 9929 |"))
	assert.Contains(t, out, "- **http-title:** Go ahead and ScanMe!")
	assert.NotContains(t, out, "**OS:**")
}

func TestRenderScanWithoutRecord(t *testing.T) {
	out := RenderScan(&models.StoredScan{Target: "10.0.0.1"})
	assert.Contains(t, out, "No ports reported.")
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "none", formatChange(0, 0, 0))
	assert.Equal(t, "+2", formatChange(2, 0, 0))
	assert.Equal(t, "-1 / ~3", formatChange(0, 1, 3))
}
