package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a pipeline run. Terminal states are
// RunStatusCompleted and RunStatusError.
type RunStatus string

// Possible run status values, in the order the background execution moves
// through them.
const (
	RunStatusQueued              RunStatus = "queued"
	RunStatusProcessing          RunStatus = "processing"
	RunStatusDetecting           RunStatus = "detecting"
	RunStatusDetectingMaturation RunStatus = "detecting_maturation"
	RunStatusDetectionComplete   RunStatus = "detection_complete"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusError               RunStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// RunStatusRecord is the persisted progress record for one pipeline run.
// It is owned exclusively by the pipeline orchestrator: created at start,
// mutated only by the run's background task, and expired by the store
// rather than deleted. Progress is contractually non-decreasing over the
// life of a run.
type RunStatusRecord struct {
	RunID              string    `json:"run_id"`
	Status             RunStatus `json:"status"`
	Progress           float64   `json:"progress"`
	ImageURL           string    `json:"image_url"`
	UserID             string    `json:"user_id"`
	SkipMaturation     bool      `json:"skip_maturation"`
	ImageID            string    `json:"image_id,omitempty"`
	DetectionComplete  bool      `json:"detection_complete"`
	MaturationComplete bool      `json:"maturation_complete"`
	CombinedID         string    `json:"combined_id,omitempty"`
	ErrorMessage       string    `json:"error,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewRunStatusRecord creates the initial status record for a fresh run:
// queued, zero progress, with a newly minted opaque run ID.
func NewRunStatusRecord(imageURL, userID string, skipMaturation bool) *RunStatusRecord {
	now := time.Now().UTC()
	return &RunStatusRecord{
		RunID:          "run-" + uuid.NewString(),
		Status:         RunStatusQueued,
		Progress:       0.0,
		ImageURL:       imageURL,
		UserID:         userID,
		SkipMaturation: skipMaturation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

