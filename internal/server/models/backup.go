package models

import "time"

// Phase is the backup job state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePreparing  Phase = "preparing"
	PhasePacking    Phase = "packing"
	PhaseEncrypting Phase = "encrypting"
	PhaseWriting    Phase = "writing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// Terminal reports whether the phase ends a job.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// BackupStatus is a point-in-time snapshot of the process-wide backup job.
// It is read by status-polling callers and mutated only by the pipeline
// driving it.
type BackupStatus struct {
	JobID   string `json:"jobId,omitempty"`
	Phase   Phase  `json:"phase"`
	Running bool   `json:"running"`
	// Percent is monotonically non-decreasing within a job, clamped to [0,100].
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`

	TotalFiles     int   `json:"totalFiles"`
	PackedFiles    int   `json:"packedFiles"`
	ArchiveBytes   int64 `json:"archiveBytes"`
	ProcessedBytes int64 `json:"processedBytes"`

	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	ArtifactName string `json:"artifactName,omitempty"`
	ArtifactSize int64  `json:"artifactSize,omitempty"`

	Error string `json:"error,omitempty"`
}

// ArtifactInfo describes one backup artifact on disk.
type ArtifactInfo struct {
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"sizeBytes"`
	ModifiedAt  time.Time `json:"modifiedAt"`
	HasChecksum bool      `json:"hasChecksum"`
}
