package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsight/cropsight-api/internal/domain"
	"github.com/cropsight/cropsight-api/internal/inference"
	"github.com/cropsight/cropsight-api/internal/store"
)

// flakyKV fails every Put for one entity type, for exercising persistence
// failure paths.
type flakyKV struct {
	store.KV
	failEntity string
	failMsg    string
}

func (f *flakyKV) Put(ctx context.Context, item store.Item) error {
	if item.EntityType == f.failEntity {
		return errors.New(f.failMsg)
	}
	return f.KV.Put(ctx, item)
}

// recordingKV captures every status record written, in call order.
type recordingKV struct {
	store.KV
	mu       sync.Mutex
	statuses []domain.RunStatusRecord
}

func (r *recordingKV) Put(ctx context.Context, item store.Item) error {
	if item.EntityType == store.EntityRunStatus {
		var record domain.RunStatusRecord
		if err := json.Unmarshal(item.Value, &record); err == nil {
			r.mu.Lock()
			r.statuses = append(r.statuses, record)
			r.mu.Unlock()
		}
	}
	return r.KV.Put(ctx, item)
}

func bananaDetection(imageID string, confidence float64) *domain.ProcessingResult {
	return domain.NewProcessingResult(imageID, domain.ModelTypeDetection, []domain.Detection{
		{Class: "banana", Confidence: confidence, BoundingBox: []float64{0.1, 0.2, 0.3, 0.4}},
	})
}

func ripeMaturation(imageID, parentRequestID string) *domain.ProcessingResult {
	result := domain.NewProcessingResult(imageID, domain.ModelTypeMaturation, []domain.Detection{
		{
			Class:           "banana",
			Confidence:      0.95,
			BoundingBox:     []float64{0.1, 0.2, 0.3, 0.4},
			MaturationLevel: &domain.MaturationLevel{Category: "ripe", Score: 0.88},
		},
	})
	result.ParentRequestID = parentRequestID
	return result
}

func TestOrchestrator_StartPersistsQueuedRecord(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	o := NewOrchestrator(kv, inference.NewMockService(), time.Hour, nil)

	runID, err := o.Start(context.Background(), Request{ImageURL: "https://x/banana.jpg", UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	record, err := o.GetStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, record.Status)
	assert.Zero(t, record.Progress)
}

func TestOrchestrator_HappyPathWithMaturation(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.95)
	}
	mock.MaturationWithBoxesFn = func(ctx context.Context, image *domain.Image, boxes []inference.BoundingBox, parentRequestID string) *domain.ProcessingResult {
		return ripeMaturation(image.ImageID, parentRequestID)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, record.Status)
	assert.Equal(t, 1.0, record.Progress)
	assert.True(t, record.DetectionComplete)
	assert.True(t, record.MaturationComplete)
	assert.Empty(t, record.ErrorMessage)

	combined, err := o.GetResultByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.CombinedStatusCompleted, combined.Status)
	require.Len(t, combined.Results, 1)
	require.NotNil(t, combined.Results[0].MaturationLevel)
	assert.Equal(t, "ripe", combined.Results[0].MaturationLevel.Category)

	assert.Equal(t, 1, mock.MaturationWithBoxesCalls, "one detection at 0.95 >= 0.6 should trigger maturation")
	require.Len(t, mock.LastBoxes, 1)
	assert.Equal(t, "banana", mock.LastBoxes[0].ClassName)
}

func TestOrchestrator_ZeroDetectionsSkipsMaturation(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return domain.NewProcessingResult(image.ImageID, domain.ModelTypeDetection, []domain.Detection{})
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/empty.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, record.Status)
	assert.Equal(t, 1.0, record.Progress)

	combined, err := o.GetResultByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.CombinedStatusDetectionCompleted, combined.Status)
	assert.Empty(t, combined.Results)

	assert.Zero(t, mock.MaturationWithBoxesCalls, "maturation must never run without detections")
}

func TestOrchestrator_DetectionFailureDegradesRun(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return domain.NewErrorProcessingResult(image.ImageID, domain.ModelTypeDetection, "model unavailable")
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	// Inference failure is not fatal: the run completes with a degraded
	// combined result, not an error status.
	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, record.Status)
	assert.Equal(t, "model unavailable", record.ErrorMessage)

	combined, err := o.GetResultByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.CombinedStatusError, combined.Status)
	assert.Zero(t, mock.MaturationWithBoxesCalls)
}

func TestOrchestrator_SkipMaturation(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.99)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1", SkipMaturation: true}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	combined, err := o.GetResultByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.CombinedStatusDetectionCompleted, combined.Status)
	assert.Zero(t, mock.MaturationWithBoxesCalls, "skip_maturation must suppress the maturation call")
}

func TestOrchestrator_ThresholdFiltersLowConfidence(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.4)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	// Below the default 0.6 threshold nothing qualifies: maturation is
	// skipped silently and the run still completes.
	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, record.Status)
	assert.Empty(t, record.ErrorMessage)
	assert.Zero(t, mock.MaturationWithBoxesCalls)

	combined, err := o.GetResultByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.CombinedStatusDetectionCompleted, combined.Status)
	assert.Len(t, combined.Results, 1)
}

func TestOrchestrator_ExplicitZeroThresholdQualifiesEverything(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.4)
	}
	mock.MaturationWithBoxesFn = func(ctx context.Context, image *domain.Image, boxes []inference.BoundingBox, parentRequestID string) *domain.ProcessingResult {
		return ripeMaturation(image.ImageID, parentRequestID)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	// An explicit zero threshold is not "absent": it disables confidence
	// filtering rather than falling back to the 0.6 default.
	zero := 0.0
	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1", MaturationThreshold: &zero}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	assert.Equal(t, 1, mock.MaturationWithBoxesCalls,
		"a 0.4-confidence detection qualifies at threshold 0")
	require.Len(t, mock.LastBoxes, 1)

	combined, err := o.GetResultByRunID(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.CombinedStatusCompleted, combined.Status)
}

func TestOrchestrator_MetadataPersistFailureEndsRunInError(t *testing.T) {
	t.Parallel()

	kv := &flakyKV{KV: store.NewMemStore(), failEntity: store.EntityImageMeta, failMsg: "dynamo is down"}
	mock := inference.NewMockService()

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusError, record.Status)
	assert.Equal(t, 1.0, record.Progress)
	assert.Contains(t, record.ErrorMessage, "dynamo is down")

	assert.Zero(t, mock.DetectCalls, "inference must not run when metadata persistence fails")
}

func TestOrchestrator_ProgressIsNonDecreasing(t *testing.T) {
	t.Parallel()

	kv := &recordingKV{KV: store.NewMemStore()}
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.95)
	}
	mock.MaturationWithBoxesFn = func(ctx context.Context, image *domain.Image, boxes []inference.BoundingBox, parentRequestID string) *domain.ProcessingResult {
		return ripeMaturation(image.ImageID, parentRequestID)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)

	require.NotEmpty(t, kv.statuses)
	previous := -1.0
	for _, record := range kv.statuses {
		assert.GreaterOrEqual(t, record.Progress, previous,
			"progress must never move backwards (status %s)", record.Status)
		previous = record.Progress
	}
	assert.Equal(t, 1.0, kv.statuses[len(kv.statuses)-1].Progress)

	// The full checkpoint ladder for a run with maturation.
	var observed []float64
	for _, record := range kv.statuses {
		observed = append(observed, record.Progress)
	}
	assert.Equal(t, []float64{0.0, 0.1, 0.2, 0.3, 0.5, 0.6, 0.8, 1.0}, observed)
}

func TestOrchestrator_RunWithUnknownIDAbortsSilently(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	o := NewOrchestrator(kv, mock, time.Hour, nil)

	o.Run(context.Background(), "run-missing", Request{ImageURL: "https://x/banana.jpg", UserID: "u1"})

	assert.Zero(t, mock.DetectCalls)
	_, err := o.GetStatus(context.Background(), "run-missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestOrchestrator_RunIgnoresDuplicateExecution(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.95)
	}
	mock.MaturationWithBoxesFn = func(ctx context.Context, image *domain.Image, boxes []inference.BoundingBox, parentRequestID string) *domain.ProcessingResult {
		return ripeMaturation(image.ImageID, parentRequestID)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	req := Request{ImageURL: "https://x/banana.jpg", UserID: "u1"}
	runID, err := o.Start(ctx, req)
	require.NoError(t, err)

	o.Run(ctx, runID, req)
	require.Equal(t, 1, mock.DetectCalls)

	// A second invocation finds the record terminal and must not rerun the
	// pipeline or touch the persisted result.
	o.Run(ctx, runID, req)

	assert.Equal(t, 1, mock.DetectCalls)
	assert.Equal(t, 1, mock.MaturationWithBoxesCalls)

	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, record.Status)
}

func TestOrchestrator_GetResultByRunIDBeforeCompletion(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	o := NewOrchestrator(kv, inference.NewMockService(), time.Hour, nil)
	ctx := context.Background()

	runID, err := o.Start(ctx, Request{ImageURL: "https://x/banana.jpg", UserID: "u1"})
	require.NoError(t, err)

	// The run has not executed yet, so there is nothing to resolve.
	_, err = o.GetResultByRunID(ctx, runID)
	assert.ErrorIs(t, err, ErrResultNotFound)

	_, err = o.GetResultByRunID(ctx, "run-unknown")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestOrchestrator_StartBackgroundCompletesRun(t *testing.T) {
	t.Parallel()

	kv := store.NewMemStore()
	mock := inference.NewMockService()
	mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
		return bananaDetection(image.ImageID, 0.95)
	}
	mock.MaturationWithBoxesFn = func(ctx context.Context, image *domain.Image, boxes []inference.BoundingBox, parentRequestID string) *domain.ProcessingResult {
		return ripeMaturation(image.ImageID, parentRequestID)
	}

	o := NewOrchestrator(kv, mock, time.Hour, nil)
	ctx := context.Background()

	runID, err := o.StartBackground(ctx, Request{ImageURL: "https://x/banana.jpg", UserID: "u1"})
	require.NoError(t, err)

	o.Wait()

	record, err := o.GetStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, record.Status)
	assert.Equal(t, 1.0, record.Progress)
}

func TestOrchestrator_ExecuteSynchronous(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		kv := store.NewMemStore()
		mock := inference.NewMockService()
		mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
			return bananaDetection(image.ImageID, 0.95)
		}
		mock.MaturationWithBoxesFn = func(ctx context.Context, image *domain.Image, boxes []inference.BoundingBox, parentRequestID string) *domain.ProcessingResult {
			return ripeMaturation(image.ImageID, parentRequestID)
		}

		o := NewOrchestrator(kv, mock, time.Hour, nil)
		combined, err := o.Execute(context.Background(), Request{ImageURL: "https://x/banana.jpg", UserID: "u1"})

		require.NoError(t, err)
		assert.Equal(t, domain.CombinedStatusCompleted, combined.Status)
	})

	t.Run("pre-image failure propagates", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(store.NewMemStore(), inference.NewMockService(), time.Hour, nil)
		_, err := o.Execute(context.Background(), Request{ImageURL: "", UserID: "u1"})

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrEmptyImageURL)
	})

	t.Run("post-image failure degrades to error result", func(t *testing.T) {
		t.Parallel()

		kv := &flakyKV{KV: store.NewMemStore(), failEntity: store.EntityProcessingResult, failMsg: "write refused"}
		mock := inference.NewMockService()
		mock.DetectFn = func(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
			return bananaDetection(image.ImageID, 0.95)
		}

		o := NewOrchestrator(kv, mock, time.Hour, nil)
		combined, err := o.Execute(context.Background(), Request{ImageURL: "https://x/banana.jpg", UserID: "u1"})

		require.NoError(t, err)
		assert.Equal(t, domain.CombinedStatusError, combined.Status)
		require.NotNil(t, combined.Detection)
		assert.Contains(t, combined.Detection.ErrorMessage, "write refused")
	})
}
