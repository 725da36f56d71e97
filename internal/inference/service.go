package inference

import (
	"context"

	"github.com/cropsight/cropsight-api/internal/domain"
)

// BoundingBox is one qualifying detection forwarded to the maturation model
// so it analyzes a known region instead of re-detecting.
type BoundingBox struct {
	Index       int       `json:"index"`
	ClassName   string    `json:"class_name"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"bounding_box"`
}

// Service is the contract for the remote inference collaborator. All methods
// return a ProcessingResult whose Status field reports the outcome; they
// never return a Go error, so callers always have something to persist.
type Service interface {
	// Detect runs object detection on the image.
	Detect(ctx context.Context, image *domain.Image) *domain.ProcessingResult

	// AnalyzeMaturation runs whole-image maturation analysis, letting the
	// model find its own regions.
	AnalyzeMaturation(ctx context.Context, image *domain.Image) *domain.ProcessingResult

	// AnalyzeMaturationWithBoxes runs maturation analysis against the given
	// detection boxes. parentRequestID correlates the maturation call with
	// the detection run that produced the boxes.
	AnalyzeMaturationWithBoxes(
		ctx context.Context,
		image *domain.Image,
		boxes []BoundingBox,
		parentRequestID string,
	) *domain.ProcessingResult
}
