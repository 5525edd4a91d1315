package target

import (
	"fmt"
	"net/netip"
	"strings"
)

// Scope defines allowed scanning boundaries.
// An empty Scope (no rules) allows any target.
type Scope struct {
	// AllowedDomains is a list of hostname patterns the target must match.
	// Wildcard prefix ("*.example.com") matches any single-label subdomain.
	// Exact entry ("example.com") matches only that literal value.
	AllowedDomains []string `mapstructure:"allowed_domains" yaml:"allowed_domains"`

	// AllowedCIDRs is a list of prefixes an address target must fall within.
	AllowedCIDRs []string `mapstructure:"allowed_cidrs" yaml:"allowed_cidrs"`
}

// Empty reports whether no scope rules are configured.
func (s *Scope) Empty() bool {
	return s == nil || (len(s.AllowedDomains) == 0 && len(s.AllowedCIDRs) == 0)
}

// Check returns nil if target is in scope. Address targets are checked
// against AllowedCIDRs and hostnames against AllowedDomains; a rule list
// that is empty leaves that kind of target unrestricted.
func (s *Scope) Check(target string) error {
	if s.Empty() {
		return nil
	}

	if addr, err := netip.ParseAddr(target); err == nil {
		return s.checkAddr(addr)
	}
	return s.checkDomain(target)
}

func (s *Scope) checkAddr(addr netip.Addr) error {
	if len(s.AllowedCIDRs) == 0 {
		return nil
	}
	for _, cidr := range s.AllowedCIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr.Unmap()) {
			return nil
		}
	}
	return fmt.Errorf("address %q is outside allowed CIDR scope (%s)",
		addr, strings.Join(s.AllowedCIDRs, ", "))
}

func (s *Scope) checkDomain(target string) error {
	if len(s.AllowedDomains) == 0 {
		return nil
	}
	for _, pattern := range s.AllowedDomains {
		if domainMatches(target, pattern) {
			return nil
		}
	}
	return fmt.Errorf("target %q is outside allowed scope (domains: %s)",
		target, strings.Join(s.AllowedDomains, ", "))
}

// domainMatches returns true when target satisfies the scope pattern.
//
//   - "*.example.com" matches "foo.example.com" but not "example.com" or
//     "foo.bar.example.com" (single wildcard label only).
//   - "example.com" matches only the exact string "example.com".
//   - Comparison is case-insensitive and ignores a trailing dot.
func domainMatches(target, pattern string) bool {
	target = strings.TrimSuffix(strings.ToLower(target), ".")
	pattern = strings.ToLower(pattern)

	if !strings.HasPrefix(pattern, "*.") {
		return target == pattern
	}

	suffix := pattern[2:]
	if !strings.HasSuffix(target, "."+suffix) {
		return false
	}

	label := target[:len(target)-len(suffix)-1]
	return len(label) > 0 && !strings.Contains(label, ".")
}
