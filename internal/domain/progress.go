package domain

import "time"

// Progress event type discriminators, matching the client wire format.
const (
	EventGenerationStart    = "generation_start"
	EventWeekStart          = "week_start"
	EventMaterialStart      = "material_start"
	EventMaterialComplete   = "material_complete"
	EventWeekComplete       = "week_complete"
	EventGenerationComplete = "generation_complete"
	EventPaused             = "paused"
	EventStopped            = "stopped"
	EventError              = "error"
)

// ProgressEvent is one state change in a running job, queued in the session
// document for delivery to a polling or streaming client. Each event carries
// enough identifying fields for a client to render per-item progress without
// further queries.
type ProgressEvent struct {
	Type         string    `json:"type"`
	WeekNumber   int       `json:"week_number,omitempty"`
	WeekTitle    string    `json:"week_title,omitempty"`
	MaterialType string    `json:"material_type,omitempty"`
	MaterialName string    `json:"material_name,omitempty"`
	FilePath     string    `json:"file_path,omitempty"`
	FileFormat   string    `json:"file_format,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	Message      string    `json:"message,omitempty"`
	ModuleTitle  string    `json:"module_title,omitempty"`
	TotalWeeks   int       `json:"total_weeks,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
