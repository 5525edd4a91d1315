package models

import (
	"time"

	"github.com/google/uuid"
)

// StoredScan is the persisted envelope of a single scan invocation
type StoredScan struct {
	ID           string      `json:"id"`
	Target       string      `json:"target"`
	Options      Options     `json:"options"`
	RawResult    string      `json:"raw_result"`
	ParsedResult *ScanRecord `json:"parsed_result"`
	Command      string      `json:"command"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewStoredScan creates a scan envelope with a fresh ID. The store assigns
// the timestamp when the scan is saved.
func NewStoredScan(target string, opts Options, raw string, parsed *ScanRecord, command string) *StoredScan {
	return &StoredScan{
		ID:           uuid.New().String(),
		Target:       target,
		Options:      opts,
		RawResult:    raw,
		ParsedResult: parsed,
		Command:      command,
	}
}
