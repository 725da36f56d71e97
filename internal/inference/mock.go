package inference

import (
	"context"
	"sync"

	"github.com/cropsight/cropsight-api/internal/domain"
)

// MockService implements the Service interface for testing. Behavior is
// injected through the Fn fields; unset functions return an empty success
// result. Call counts are tracked per method.
type MockService struct {
	mu sync.Mutex

	DetectFn              func(ctx context.Context, image *domain.Image) *domain.ProcessingResult
	AnalyzeMaturationFn   func(ctx context.Context, image *domain.Image) *domain.ProcessingResult
	MaturationWithBoxesFn func(ctx context.Context, image *domain.Image, boxes []BoundingBox, parentRequestID string) *domain.ProcessingResult

	DetectCalls              int
	AnalyzeMaturationCalls   int
	MaturationWithBoxesCalls int

	// LastBoxes records the boxes passed to the most recent
	// AnalyzeMaturationWithBoxes call.
	LastBoxes []BoundingBox
}

// NewMockService creates a MockService with default no-op behavior.
func NewMockService() *MockService {
	return &MockService{}
}

// Ensure MockService implements the Service interface.
var _ Service = (*MockService)(nil)

// Detect implements Service.Detect.
func (m *MockService) Detect(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
	m.mu.Lock()
	m.DetectCalls++
	fn := m.DetectFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, image)
	}
	return domain.NewProcessingResult(image.ImageID, domain.ModelTypeDetection, []domain.Detection{})
}

// AnalyzeMaturation implements Service.AnalyzeMaturation.
func (m *MockService) AnalyzeMaturation(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
	m.mu.Lock()
	m.AnalyzeMaturationCalls++
	fn := m.AnalyzeMaturationFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, image)
	}
	return domain.NewProcessingResult(image.ImageID, domain.ModelTypeMaturation, []domain.Detection{})
}

// AnalyzeMaturationWithBoxes implements Service.AnalyzeMaturationWithBoxes.
func (m *MockService) AnalyzeMaturationWithBoxes(
	ctx context.Context,
	image *domain.Image,
	boxes []BoundingBox,
	parentRequestID string,
) *domain.ProcessingResult {
	m.mu.Lock()
	m.MaturationWithBoxesCalls++
	m.LastBoxes = boxes
	fn := m.MaturationWithBoxesFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, image, boxes, parentRequestID)
	}
	result := domain.NewProcessingResult(image.ImageID, domain.ModelTypeMaturation, []domain.Detection{})
	result.ParentRequestID = parentRequestID
	return result
}
