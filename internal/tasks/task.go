// Package tasks runs scans in the background. Submitted scans wait in a
// bounded queue and are picked up by a fixed set of workers; callers poll
// for the outcome by task ID.
package tasks

import (
	"time"

	"github.com/hakim/scanwatch/internal/models"
)

// Task is a snapshot of one submitted scan
type Task struct {
	ID        string             `json:"task_id"`
	Target    string             `json:"target"`
	Options   models.Options     `json:"options"`
	Status    models.TaskStatus  `json:"status"`
	ScanID    string             `json:"scan_id,omitempty"`
	Result    *models.ScanRecord `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorCode string             `json:"error_code,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Elapsed returns how long the task ran, or zero if it has not finished.
func (t Task) Elapsed() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}

// Stats summarizes the dispatcher state
type Stats struct {
	Workers       int  `json:"workers"`
	QueueCapacity int  `json:"queue_capacity"`
	Pending       int  `json:"pending"`
	Running       int  `json:"running"`
	Succeeded     int  `json:"succeeded"`
	Failed        int  `json:"failed"`
	Accepting     bool `json:"accepting"`
}
