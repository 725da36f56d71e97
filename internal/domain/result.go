package domain

import (
	"time"

	"github.com/google/uuid"
)

// ModelType identifies which inference model produced a ProcessingResult.
type ModelType string

// Possible model types
const (
	ModelTypeDetection  ModelType = "detection"
	ModelTypeMaturation ModelType = "maturation"
)

// ResultStatus represents the outcome of a single inference call.
type ResultStatus string

// Possible result status values
const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// MaturationLevel describes the ripeness classification attached to a
// detection by the maturation model.
type MaturationLevel struct {
	Category string  `json:"category"`
	Score    float64 `json:"score,omitempty"`
}

// Detection is one detected object within an image. BoundingBox is
// [x, y, width, height], normalized to the 0..1 range. MaturationLevel is
// nil for results produced by the detection model alone.
type Detection struct {
	Class           string           `json:"class"`
	Confidence      float64          `json:"confidence"`
	BoundingBox     []float64        `json:"bounding_box"`
	MaturationLevel *MaturationLevel `json:"maturation_level,omitempty"`
}

// ResultSummary carries aggregate figures reported by the inference
// service alongside the per-object results.
type ResultSummary struct {
	TotalObjects    int   `json:"total_objects,omitempty"`
	DetectionTimeMs int64 `json:"detection_time_ms,omitempty"`
}

// ProcessingResult is the outcome of one inference call (detection or
// maturation) for one image. Upstream inference failures are represented
// as a result with StatusError and an ErrorMessage rather than an error
// value, so they can be persisted and audited like any other result.
type ProcessingResult struct {
	RequestID           string        `json:"request_id"`
	ParentRequestID     string        `json:"parent_request_id,omitempty"`
	ImageID             string        `json:"image_id"`
	ModelType           ModelType     `json:"model_type"`
	Results             []Detection   `json:"results"`
	Status              ResultStatus  `json:"status"`
	ProcessingTimestamp time.Time     `json:"processing_timestamp"`
	Summary             ResultSummary `json:"summary"`
	ImageResultURL      string        `json:"image_result_url,omitempty"`
	ErrorMessage        string        `json:"error_message,omitempty"`
}

// NewProcessingResult creates a successful ProcessingResult. The request ID
// is generated when the inference service did not supply one.
func NewProcessingResult(imageID string, modelType ModelType, results []Detection) *ProcessingResult {
	return &ProcessingResult{
		RequestID:           "req-" + uuid.NewString(),
		ImageID:             imageID,
		ModelType:           modelType,
		Results:             results,
		Status:              ResultStatusSuccess,
		ProcessingTimestamp: time.Now().UTC(),
	}
}

// NewErrorProcessingResult creates a ProcessingResult representing a failed
// inference call.
func NewErrorProcessingResult(imageID string, modelType ModelType, errorMessage string) *ProcessingResult {
	return &ProcessingResult{
		RequestID:           "req-" + uuid.NewString(),
		ImageID:             imageID,
		ModelType:           modelType,
		Results:             []Detection{},
		Status:              ResultStatusError,
		ProcessingTimestamp: time.Now().UTC(),
		ErrorMessage:        errorMessage,
	}
}

// Succeeded reports whether the inference call completed successfully.
func (r *ProcessingResult) Succeeded() bool {
	return r.Status == ResultStatusSuccess
}
