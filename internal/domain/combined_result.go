package domain

import (
	"time"

	"github.com/google/uuid"
)

// CombinedStatus represents the overall outcome of a pipeline run as
// recorded on its CombinedResult.
type CombinedStatus string

// Possible combined result status values
const (
	// CombinedStatusCompleted means both detection and maturation succeeded.
	CombinedStatusCompleted CombinedStatus = "completed"

	// CombinedStatusDetectionCompleted means detection succeeded but
	// maturation was skipped, not attempted, or failed.
	CombinedStatusDetectionCompleted CombinedStatus = "detection_completed"

	// CombinedStatusError means detection itself failed.
	CombinedStatusError CombinedStatus = "error"
)

// CombinedResult is the merged, persisted outcome of one pipeline run for
// one image. It is immutable once constructed and written to the store
// exactly once, under the image's partition.
type CombinedResult struct {
	CombinedID          string            `json:"combined_id"`
	ImageID             string            `json:"image_id"`
	UserID              string            `json:"user_id"`
	Detection           *ProcessingResult `json:"detection"`
	Maturation          *ProcessingResult `json:"maturation,omitempty"`
	Location            string            `json:"location,omitempty"`
	Status              CombinedStatus    `json:"status"`
	Results             []Detection       `json:"results"`
	TotalProcessingMs   int64             `json:"total_processing_time_ms"`
	ProcessingTimestamp time.Time         `json:"processing_timestamp"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewCombinedResult builds a CombinedResult from whichever stage results
// exist. The status is derived: completed when maturation succeeded,
// detection_completed when only detection succeeded, error otherwise. The
// merged detections come from the maturation result when present (its
// detections carry maturation levels), else from the detection result.
func NewCombinedResult(
	imageID string,
	userID string,
	detection *ProcessingResult,
	maturation *ProcessingResult,
	location string,
) *CombinedResult {
	now := time.Now().UTC()

	r := &CombinedResult{
		CombinedID:          "combined-" + uuid.NewString(),
		ImageID:             imageID,
		UserID:              userID,
		Detection:           detection,
		Maturation:          maturation,
		Location:            location,
		ProcessingTimestamp: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	switch {
	case maturation != nil && maturation.Succeeded():
		r.Status = CombinedStatusCompleted
	case detection != nil && detection.Succeeded():
		r.Status = CombinedStatusDetectionCompleted
	default:
		r.Status = CombinedStatusError
	}

	r.Results = mergeDetections(detection, maturation)
	r.TotalProcessingMs = totalProcessingTime(detection, maturation)

	return r
}

// mergeDetections returns the maturation detections when a maturation
// result exists, otherwise the plain detection results.
func mergeDetections(detection, maturation *ProcessingResult) []Detection {
	if maturation != nil {
		return maturation.Results
	}
	if detection != nil {
		return detection.Results
	}
	return []Detection{}
}

// totalProcessingTime sums the per-stage timings reported by the inference
// service.
func totalProcessingTime(detection, maturation *ProcessingResult) int64 {
	var total int64
	if detection != nil {
		total += detection.Summary.DetectionTimeMs
	}
	if maturation != nil {
		total += maturation.Summary.DetectionTimeMs
	}
	return total
}
