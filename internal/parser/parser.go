// Package parser turns nmap's normal (human-readable) output into a
// models.ScanRecord.
//
// The output is processed line by line through an ordered cascade of
// classifiers; the first classifier that claims a line consumes it, and a
// later line for the same key overwrites an earlier one. Parsing never
// fails: lines that do not fit are ignored, because the output format is
// not stable across nmap versions and options.
package parser

import (
	"regexp"
	"strings"

	"github.com/hakim/scanwatch/internal/models"
)

const (
	markerHostReport = "Nmap scan report for"
	markerHostUp     = "Host is up"
	markerOSDetails  = "OS details:"
)

// hostReportHostnameIndex is the token position of the hostname in
// "Nmap scan report for <hostname> (<ip>)".
const hostReportHostnameIndex = 4

var latencyPattern = regexp.MustCompile(`\((.*?)\s+latency\)`)

// Parser is the contract used by the orchestration layer.
type Parser interface {
	Parse(raw string) *models.ScanRecord
}

// NmapParser parses nmap normal output. The zero value is ready to use and
// is safe for concurrent use.
type NmapParser struct{}

// New returns an NmapParser.
func New() *NmapParser {
	return &NmapParser{}
}

// Parse implements Parser.
func (NmapParser) Parse(raw string) *models.ScanRecord {
	return Parse(raw)
}

// Parse converts raw scanner text into a structured record.
func Parse(raw string) *models.ScanRecord {
	rec := models.NewScanRecord()

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		classify(rec, line)
	}

	return rec
}

// classify applies the cascade to a single line.
func classify(rec *models.ScanRecord, line string) {
	switch {
	case strings.Contains(line, markerHostReport):
		parseHostReport(rec, line)
	case strings.Contains(line, markerHostUp):
		parseHostUp(rec, line)
	case isPortLine(line):
		parsePort(rec, line)
	case strings.HasPrefix(strings.TrimSpace(line), markerOSDetails):
		parseOSDetails(rec, line)
	case strings.Contains(line, "|"):
		parseScript(rec, line)
	}
}

func parseHostReport(rec *models.ScanRecord, line string) {
	parts := strings.Fields(line)
	if len(parts) <= hostReportHostnameIndex {
		return
	}

	rec.Hostname = parts[hostReportHostnameIndex]
	if len(parts) > hostReportHostnameIndex+1 {
		rec.IP = strings.Trim(parts[hostReportHostnameIndex+1], "()")
	} else {
		// A bare address was scanned; nmap prints no separate name.
		rec.IP = rec.Hostname
	}
}

func parseHostUp(rec *models.ScanRecord, line string) {
	m := latencyPattern.FindStringSubmatch(line)
	if m == nil {
		rec.Latency = ""
		return
	}
	rec.Latency = m[1]
}

// isPortLine matches lines such as "22/tcp open ssh OpenSSH 8.9p1".
// Lines that mention /tcp or /udp elsewhere fall through to later rules.
func isPortLine(line string) bool {
	if !strings.Contains(line, "/tcp") && !strings.Contains(line, "/udp") {
		return false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return false
	}
	port, proto, ok := strings.Cut(fields[0], "/")
	if !ok || !isDigits(port) {
		return false
	}
	_, ok = models.ParseProtocol(proto)
	return ok
}

func parsePort(rec *models.ScanRecord, line string) {
	fields := strings.Fields(line)
	port, proto, _ := strings.Cut(fields[0], "/")
	protocol, _ := models.ParseProtocol(proto)

	rec.Ports[port] = models.PortInfo{
		Protocol: protocol,
		State:    fields[1],
		Service:  strings.Join(fields[2:], " "),
	}
}

func parseOSDetails(rec *models.ScanRecord, line string) {
	_, after, _ := strings.Cut(line, ":")
	rec.OSDetection = strings.TrimSpace(after)
}

// parseScript handles NSE output such as "|_http-title: Welcome". The
// name is the first whitespace token with pipe and underscore markers
// trimmed, so it keeps any trailing colon ("http-title:"). Lines whose first
// token is only markers ("| ssh-hostkey:", "|   1024 ...") carry no name
// and are skipped.
func parseScript(rec *models.ScanRecord, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name := strings.Trim(fields[0], "|_")
	if name == "" {
		return
	}

	var output string
	if _, after, ok := strings.Cut(line, ":"); ok {
		output = after
	} else {
		_, after, _ := strings.Cut(line, "|")
		if !strings.Contains(after, "|") {
			return
		}
		output = after
	}

	rec.ScriptResults[name] = strings.TrimSpace(output)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
