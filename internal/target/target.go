// Package target validates host identifiers before they reach the scanner.
// Validation is purely syntactic; no name resolution happens here.
package target

import (
	"net/netip"
	"regexp"
	"strings"
)

const (
	maxHostnameLength = 255
	maxLabelLength    = 63
)

var (
	labelPattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	unsafePattern = regexp.MustCompile(`[^A-Za-z0-9._:\-]`)
)

// IsValid reports whether s is an IPv4/IPv6 literal or a syntactically
// valid hostname.
func IsValid(s string) bool {
	return IsIP(s) || IsHostname(s)
}

// IsIP reports whether s parses as an IPv4 or IPv6 address.
func IsIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// IsHostname checks the label rules: each dot-separated label is 1-63
// letters, digits or hyphens and does not start or end with a hyphen.
// One trailing dot is allowed and not counted.
func IsHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if s == "" || len(s) > maxHostnameLength {
		return false
	}

	for _, label := range strings.Split(s, ".") {
		if len(label) == 0 || len(label) > maxLabelLength {
			return false
		}
		if !labelPattern.MatchString(label) {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
	}
	return true
}

// Sanitize strips every character outside [A-Za-z0-9._:-]. Valid targets
// pass through unchanged.
func Sanitize(s string) string {
	return unsafePattern.ReplaceAllString(s, "")
}
