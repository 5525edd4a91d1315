// Package diff computes the delta between two scan records of the same
// target. ComputeDiff is pure: it reads both records and never modifies
// them, so it is safe to call from concurrent workers.
package diff

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hakim/scanwatch/internal/models"
)

// ---------------------------------------------------------------------------
// ComputeDiff
// ---------------------------------------------------------------------------

// ComputeDiff compares newer against older. Both arguments must be non-nil.
// All slice fields of the result are non-nil (empty slices, not nil) so
// callers can range over them and JSON renders them as [].
func ComputeDiff(newer, older *models.ScanRecord) *models.ScanDiff {
	d := &models.ScanDiff{
		IPChange: newer.IP != older.IP,
		NewIP:    newer.IP,
		OldIP:    older.IP,

		LatencyChange: newer.Latency != older.Latency,
		NewLatency:    newer.Latency,
		OldLatency:    older.Latency,

		OSChange: newer.OSDetection != older.OSDetection,
		NewOS:    newer.OSDetection,
		OldOS:    older.OSDetection,

		NewlyOpened:     []string{},
		NewlyClosed:     []string{},
		ChangedState:    []string{},
		ChangedServices: []string{},
		ScriptChanges:   map[string]models.ScriptChange{},
	}

	diffPorts(d, newer.Ports, older.Ports)
	diffScripts(d, newer.ScriptResults, older.ScriptResults)

	return d
}

// ---------------------------------------------------------------------------
// Port diff
// ---------------------------------------------------------------------------

// diffPorts walks the union of port keys in ascending numeric order.
// A port present in both records is checked for a state change and,
// independently, for a service change.
func diffPorts(d *models.ScanDiff, newer, older map[string]models.PortInfo) {
	for _, port := range unionKeys(newer, older, portLess) {
		newInfo, inNew := newer[port]
		oldInfo, inOld := older[port]

		switch {
		case inNew && !inOld:
			d.NewlyOpened = append(d.NewlyOpened, fmt.Sprintf("%s: %s", port, newInfo.Service))
		case inOld && !inNew:
			d.NewlyClosed = append(d.NewlyClosed, fmt.Sprintf("%s: %s", port, oldInfo.Service))
		default:
			if newInfo.State != oldInfo.State {
				d.ChangedState = append(d.ChangedState,
					fmt.Sprintf("%s: %s -> %s", port, oldInfo.State, newInfo.State))
			}
			if newInfo.Service != oldInfo.Service {
				d.ChangedServices = append(d.ChangedServices,
					fmt.Sprintf("%s: %s -> %s", port, oldInfo.Service, newInfo.Service))
			}
		}
	}
}

// portLess orders numeric port keys numerically and anything else after
// them lexically.
func portLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// ---------------------------------------------------------------------------
// Script diff
// ---------------------------------------------------------------------------

// diffScripts records new, removed, and changed script outputs. Scripts
// with identical output are omitted.
func diffScripts(d *models.ScanDiff, newer, older map[string]string) {
	for name, out := range newer {
		prev, existed := older[name]
		switch {
		case !existed:
			d.ScriptChanges[name] = models.ScriptNew
		case prev != out:
			d.ScriptChanges[name] = models.ScriptChanged
		}
	}

	for name := range older {
		if _, exists := newer[name]; !exists {
			d.ScriptChanges[name] = models.ScriptRemoved
		}
	}
}

// unionKeys returns the sorted union of keys from two maps.
func unionKeys[V any](a, b map[string]V, less func(x, y string) bool) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
