package models

import "time"

// ScanDiff is the comparison of a newer scan record against an older one.
// Old and new values are always reported so callers can render context.
type ScanDiff struct {
	NewerScanID    string     `json:"newer_scan_id,omitempty"`
	OlderScanID    string     `json:"older_scan_id,omitempty"`
	NewerTimestamp *time.Time `json:"newer_timestamp,omitempty"`
	OlderTimestamp *time.Time `json:"older_timestamp,omitempty"`

	IPChange bool   `json:"ip_change"`
	NewIP    string `json:"new_ip"`
	OldIP    string `json:"old_ip"`

	LatencyChange bool   `json:"latency_change"`
	NewLatency    string `json:"new_latency"`
	OldLatency    string `json:"old_latency"`

	OSChange bool   `json:"os_change"`
	NewOS    string `json:"new_os"`
	OldOS    string `json:"old_os"`

	NewlyOpened     []string `json:"newly_opened"`
	NewlyClosed     []string `json:"newly_closed"`
	ChangedState    []string `json:"changed_state"`
	ChangedServices []string `json:"changed_services"`

	ScriptChanges map[string]ScriptChange `json:"script_changes"`
}

// HasChanges reports whether anything differs between the two records.
func (d *ScanDiff) HasChanges() bool {
	return d.IPChange || d.LatencyChange || d.OSChange ||
		len(d.NewlyOpened) > 0 || len(d.NewlyClosed) > 0 ||
		len(d.ChangedState) > 0 || len(d.ChangedServices) > 0 ||
		len(d.ScriptChanges) > 0
}
