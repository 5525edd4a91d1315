package models

// PortInfo describes a single port line from the scanner output
type PortInfo struct {
	Protocol Protocol `json:"protocol"`
	State    string   `json:"state"`
	Service  string   `json:"service"`
}

// ScanRecord is the structured interpretation of one scan's raw output.
// Optional values that the output did not state are left empty.
// A record is never modified after the parser returns it.
type ScanRecord struct {
	IP            string              `json:"ip"`
	Hostname      string              `json:"hostname"`
	Latency       string              `json:"latency"`
	OSDetection   string              `json:"os_detection"`
	Ports         map[string]PortInfo `json:"ports"`
	ScriptResults map[string]string   `json:"script_results"`
}

// NewScanRecord returns an empty record with non-nil maps.
func NewScanRecord() *ScanRecord {
	return &ScanRecord{
		Ports:         make(map[string]PortInfo),
		ScriptResults: make(map[string]string),
	}
}

// OpenPorts returns the number of ports reported in the "open" state.
func (r *ScanRecord) OpenPorts() int {
	n := 0
	for _, p := range r.Ports {
		if p.State == "open" {
			n++
		}
	}
	return n
}
