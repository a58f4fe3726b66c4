package model

import "time"

// StatusReport is the reply of a running daemon to a status request.
type StatusReport struct {
	Snapshot
	PID        int    `json:"pid"`
	ConfigPath string `json:"config_path"`
}

// StatusFile is the last known session status persisted by the daemon, read
// by the CLI when no daemon answers.
type StatusFile struct {
	SchemaVersion  int    `yaml:"schema_version"`
	FileType       string `yaml:"file_type"`
	SessionID      string `yaml:"session_id"`
	PID            int    `yaml:"pid"`
	Phase          Phase  `yaml:"phase"`
	ItemsProcessed int    `yaml:"items_processed"`
	ElapsedMs      int64  `yaml:"elapsed_ms"`
	Paused         bool   `yaml:"paused"`
	StoppedReason  string `yaml:"stopped_reason,omitempty"`
	FirstItem      string `yaml:"first_item,omitempty"`
	Action         string `yaml:"action,omitempty"`
	UpdatedAt      string `yaml:"updated_at"`
}

func NewStatusFile(s Snapshot, pid int, now time.Time) StatusFile {
	return StatusFile{
		SchemaVersion:  1,
		FileType:       "status",
		SessionID:      s.SessionID,
		PID:            pid,
		Phase:          s.Phase,
		ItemsProcessed: s.ItemsProcessed,
		ElapsedMs:      s.Elapsed.Milliseconds(),
		Paused:         s.Paused,
		StoppedReason:  s.StoppedReason,
		FirstItem:      s.FirstItem,
		Action:         s.Action,
		UpdatedAt:      now.UTC().Format(time.RFC3339),
	}
}

func (f StatusFile) Snapshot() Snapshot {
	return Snapshot{
		SessionID:      f.SessionID,
		Phase:          f.Phase,
		ItemsProcessed: f.ItemsProcessed,
		Elapsed:        time.Duration(f.ElapsedMs) * time.Millisecond,
		Paused:         f.Paused,
		StoppedReason:  f.StoppedReason,
		FirstItem:      f.FirstItem,
		Action:         f.Action,
	}
}
