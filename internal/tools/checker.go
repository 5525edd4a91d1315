package tools

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds the best-effort version lookup.
const versionTimeout = 5 * time.Second

// Requirement describes an external executable scanwatch depends on
type Requirement struct {
	Name       string // Display name
	Binary     string // Executable name or path
	Required   bool
	InstallCmd string
	Purpose    string
}

// CheckResult is the outcome of looking up a single Requirement
type CheckResult struct {
	Requirement Requirement
	Found       bool
	Path        string
	Version     string
}

// DefaultRequirements returns the executables scanwatch needs. binary
// overrides the nmap executable when non-empty.
func DefaultRequirements(binary string) []Requirement {
	if binary == "" {
		binary = DefaultNmapBinary
	}
	return []Requirement{
		{
			Name:       "nmap",
			Binary:     binary,
			Required:   true,
			InstallCmd: "apt install nmap (or brew install nmap on macOS)",
			Purpose:    "Port and service scanning",
		},
	}
}

// CheckAll checks every requirement in order.
func CheckAll(reqs []Requirement) []CheckResult {
	results := make([]CheckResult, len(reqs))
	for i, req := range reqs {
		results[i] = Check(req)
	}
	return results
}

// Check looks req up on PATH and, when found, reads its version.
func Check(req Requirement) CheckResult {
	result := CheckResult{Requirement: req}

	path, err := exec.LookPath(req.Binary)
	if err != nil {
		return result
	}

	result.Found = true
	result.Path = path
	result.Version = readVersion(path)

	return result
}

// MissingRequired reports whether any required executable was not found.
func MissingRequired(results []CheckResult) bool {
	for _, r := range results {
		if r.Requirement.Required && !r.Found {
			return true
		}
	}
	return false
}

// readVersion returns the first line of `<binary> --version`, trimmed to
// a printable length, or "unknown".
func readVersion(binary string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "--version")
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil || out.Len() == 0 {
		return "unknown"
	}

	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 60 {
			line = line[:60] + "..."
		}
		return line
	}
	return "unknown"
}
