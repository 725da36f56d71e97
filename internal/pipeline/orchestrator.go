package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cropsight/cropsight-api/internal/domain"
	"github.com/cropsight/cropsight-api/internal/inference"
	"github.com/cropsight/cropsight-api/internal/store"
)

// DefaultMaturationThreshold is the minimum detection confidence required
// for an object to be forwarded to maturation analysis when the caller does
// not supply a threshold.
const DefaultMaturationThreshold = 0.6

// Common sentinel errors for the orchestrator.
var (
	// ErrRunNotFound indicates that no status record exists for the run ID.
	ErrRunNotFound = errors.New("pipeline run not found")

	// ErrResultNotFound indicates that no combined result is available yet.
	ErrResultNotFound = errors.New("combined result not found")
)

// OrchestratorError wraps errors from the orchestrator with context.
type OrchestratorError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for OrchestratorError.
func (e *OrchestratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

func newOrchestratorError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &OrchestratorError{Operation: operation, Message: message, Err: err}
}

// Request carries the caller-supplied parameters for one pipeline run.
// MaturationThreshold nil means the default applies; an explicit zero lets
// every detection qualify for maturation analysis.
type Request struct {
	ImageURL            string
	UserID              string
	Metadata            map[string]any
	MaturationThreshold *float64
	SkipMaturation      bool
	Location            string
}

// Orchestrator drives the detection→maturation pipeline. Start persists the
// initial status record and returns immediately; Run executes the pipeline
// out-of-band, updating the status record after every step. Inference
// failures degrade a run to a partial completed state; only infrastructure
// failures mark it as an error.
type Orchestrator struct {
	kv        store.KV
	inference inference.Service
	statusTTL time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. statusTTL bounds how long status
// records stay readable; zero means they never expire. If logger is nil, the
// default logger is used.
func NewOrchestrator(kv store.KV, svc inference.Service, statusTTL time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		kv:        kv,
		inference: svc,
		statusTTL: statusTTL,
		logger:    logger.With("component", "pipeline"),
	}
}

// Start allocates a run ID and persists the initial status record
// (queued, progress 0.0). It does not run any inference. Fails only if the
// status write fails.
func (o *Orchestrator) Start(ctx context.Context, req Request) (string, error) {
	record := domain.NewRunStatusRecord(req.ImageURL, req.UserID, req.SkipMaturation)

	if err := o.saveStatus(ctx, record); err != nil {
		o.logger.Error("failed to persist initial status record",
			"run_id", record.RunID,
			"error", err)
		return "", newOrchestratorError("start", "failed to persist status record", err)
	}

	o.logger.Info("pipeline run started",
		"run_id", record.RunID,
		"image_url", req.ImageURL,
		"user_id", req.UserID,
		"skip_maturation", req.SkipMaturation)

	return record.RunID, nil
}

// StartBackground starts a run and launches its background execution in a
// goroutine. The background task outlives the caller's request context.
func (o *Orchestrator) StartBackground(ctx context.Context, req Request) (string, error) {
	runID, err := o.Start(ctx, req)
	if err != nil {
		return "", err
	}

	runCtx := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Run(runCtx, runID, req)
	}()

	return runID, nil
}

// Wait blocks until all in-flight background runs have finished, used
// during graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Run executes the pipeline body for a previously started run. If the
// status record is missing, the run aborts silently: this is a
// fire-and-forget task with nobody to report to. A run whose record is
// already terminal is not executed again. Any failure inside the run is
// caught at this boundary and written into the status record rather than
// surfaced.
func (o *Orchestrator) Run(ctx context.Context, runID string, req Request) {
	log := o.logger.With("run_id", runID)

	record, err := o.loadStatus(ctx, runID)
	if err != nil {
		log.Error("status record not found, aborting background run", "error", err)
		return
	}
	if record.Status.Terminal() {
		log.Warn("run already finished, ignoring duplicate execution", "status", record.Status)
		return
	}

	if err := o.runPipeline(ctx, runID, req, log); err != nil {
		log.Error("background run failed", "error", err)
		o.markFailed(ctx, runID, err, log)
		return
	}

	log.Info("pipeline run completed")
}

// runPipeline is the pipeline body shared by Run. Every step is followed by
// a status update with strictly increasing progress.
func (o *Orchestrator) runPipeline(ctx context.Context, runID string, req Request, log *slog.Logger) error {
	err := o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
		r.Status = domain.RunStatusProcessing
		r.Progress = 0.1
	})
	if err != nil {
		return err
	}

	image, err := domain.NewImage(req.ImageURL, req.UserID, req.Metadata)
	if err != nil {
		return err
	}

	if err := o.saveImageMetadata(ctx, image); err != nil {
		return err
	}

	err = o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
		r.ImageID = image.ImageID
		r.Progress = 0.2
	})
	if err != nil {
		return err
	}

	err = o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
		r.Status = domain.RunStatusDetecting
		r.Progress = 0.3
	})
	if err != nil {
		return err
	}

	detection := o.inference.Detect(ctx, image)
	// The detection result is persisted regardless of outcome so failed
	// calls remain auditable.
	if err := o.saveProcessingResult(ctx, detection); err != nil {
		return err
	}

	err = o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
		r.DetectionComplete = true
		r.Progress = 0.5
		if req.SkipMaturation {
			r.Status = domain.RunStatusDetectionComplete
		} else {
			r.Status = domain.RunStatusDetectingMaturation
		}
	})
	if err != nil {
		return err
	}

	if !detection.Succeeded() || len(detection.Results) == 0 {
		log.Warn("detection failed or found nothing, skipping maturation",
			"image_id", image.ImageID,
			"error", detection.ErrorMessage)

		combined := domain.NewCombinedResult(image.ImageID, req.UserID, detection, nil, req.Location)
		if err := o.saveCombinedResult(ctx, combined); err != nil {
			return err
		}

		return o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
			r.Status = domain.RunStatusCompleted
			r.Progress = 1.0
			r.CombinedID = combined.CombinedID
			r.ErrorMessage = detection.ErrorMessage
		})
	}

	var maturation *domain.ProcessingResult
	if !req.SkipMaturation {
		qualifying := filterByConfidence(detection.Results, thresholdOrDefault(req.MaturationThreshold))

		if len(qualifying) == 0 {
			log.Info("no detections met the maturation threshold",
				"image_id", image.ImageID,
				"detection_count", len(detection.Results))
		} else {
			err = o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
				r.Progress = 0.6
			})
			if err != nil {
				return err
			}

			log.Info("analyzing maturation",
				"image_id", image.ImageID,
				"qualifying_count", len(qualifying))

			maturation = o.inference.AnalyzeMaturationWithBoxes(
				ctx, image, toBoundingBoxes(qualifying), detection.RequestID)
			if err := o.saveProcessingResult(ctx, maturation); err != nil {
				return err
			}

			err = o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
				r.MaturationComplete = true
				r.Progress = 0.8
			})
			if err != nil {
				return err
			}
		}
	}

	combined := domain.NewCombinedResult(image.ImageID, req.UserID, detection, maturation, req.Location)
	if err := o.saveCombinedResult(ctx, combined); err != nil {
		return err
	}

	return o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
		r.Status = domain.RunStatusCompleted
		r.Progress = 1.0
		r.CombinedID = combined.CombinedID
	})
}

// Execute runs the same pipeline synchronously and returns the combined
// result directly. Failures after an image identity exists degrade into a
// combined result carrying a detection-side error; failures before that
// propagate to the caller.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*domain.CombinedResult, error) {
	image, err := domain.NewImage(req.ImageURL, req.UserID, req.Metadata)
	if err != nil {
		return nil, newOrchestratorError("execute", "invalid image", err)
	}

	combined, err := o.executeStages(ctx, image, req)
	if err != nil {
		o.logger.Error("synchronous execution failed",
			"image_id", image.ImageID,
			"error", err)

		detection := domain.NewErrorProcessingResult(
			image.ImageID,
			domain.ModelTypeDetection,
			fmt.Sprintf("internal error: %v", err),
		)
		return domain.NewCombinedResult(image.ImageID, req.UserID, detection, nil, req.Location), nil
	}

	return combined, nil
}

// executeStages runs the pipeline stages for an already-constructed image,
// without status-record bookkeeping.
func (o *Orchestrator) executeStages(ctx context.Context, image *domain.Image, req Request) (*domain.CombinedResult, error) {
	if err := o.saveImageMetadata(ctx, image); err != nil {
		return nil, err
	}

	detection := o.inference.Detect(ctx, image)
	if err := o.saveProcessingResult(ctx, detection); err != nil {
		return nil, err
	}

	if !detection.Succeeded() || len(detection.Results) == 0 {
		combined := domain.NewCombinedResult(image.ImageID, req.UserID, detection, nil, req.Location)
		if err := o.saveCombinedResult(ctx, combined); err != nil {
			return nil, err
		}
		return combined, nil
	}

	var maturation *domain.ProcessingResult
	if !req.SkipMaturation {
		qualifying := filterByConfidence(detection.Results, thresholdOrDefault(req.MaturationThreshold))
		if len(qualifying) > 0 {
			maturation = o.inference.AnalyzeMaturationWithBoxes(
				ctx, image, toBoundingBoxes(qualifying), detection.RequestID)
			if err := o.saveProcessingResult(ctx, maturation); err != nil {
				return nil, err
			}
		}
	}

	combined := domain.NewCombinedResult(image.ImageID, req.UserID, detection, maturation, req.Location)
	if err := o.saveCombinedResult(ctx, combined); err != nil {
		return nil, err
	}
	return combined, nil
}

// GetStatus returns the persisted status record for a run. Returns
// ErrRunNotFound if no record exists (or it expired).
func (o *Orchestrator) GetStatus(ctx context.Context, runID string) (*domain.RunStatusRecord, error) {
	return o.loadStatus(ctx, runID)
}

// GetResult returns the persisted combined result for an image. Returns
// ErrResultNotFound if none exists.
func (o *Orchestrator) GetResult(ctx context.Context, imageID string) (*domain.CombinedResult, error) {
	item, err := o.kv.Get(ctx, store.ImagePK(imageID), store.CombinedResultSK)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrResultNotFound
		}
		return nil, newOrchestratorError("get_result", "failed to read combined result", err)
	}

	var combined domain.CombinedResult
	if err := item.Decode(&combined); err != nil {
		return nil, newOrchestratorError("get_result", "failed to decode combined result", err)
	}
	return &combined, nil
}

// GetResultByRunID resolves a run's combined result through its status
// record. It only succeeds once the run completed and recorded both a
// combined result ID and an image ID; otherwise it returns
// ErrResultNotFound.
func (o *Orchestrator) GetResultByRunID(ctx context.Context, runID string) (*domain.CombinedResult, error) {
	record, err := o.loadStatus(ctx, runID)
	if err != nil {
		return nil, ErrResultNotFound
	}

	if record.Status != domain.RunStatusCompleted || record.CombinedID == "" || record.ImageID == "" {
		return nil, ErrResultNotFound
	}

	return o.GetResult(ctx, record.ImageID)
}

// markFailed records a terminal error state for the run. A failure while
// recording the failure can only be logged.
func (o *Orchestrator) markFailed(ctx context.Context, runID string, cause error, log *slog.Logger) {
	err := o.updateStatus(ctx, runID, func(r *domain.RunStatusRecord) {
		r.Status = domain.RunStatusError
		r.Progress = 1.0
		r.ErrorMessage = cause.Error()
	})
	if err != nil {
		log.Error("failed to record run failure", "error", err)
	}
}

// updateStatus performs a read-modify-write cycle on the run's status
// record. The background task is the sole writer for a run, so the lack of
// a version check cannot race in practice; concurrent writers would be
// last-writer-wins.
func (o *Orchestrator) updateStatus(ctx context.Context, runID string, mutate func(*domain.RunStatusRecord)) error {
	record, err := o.loadStatus(ctx, runID)
	if err != nil {
		return err
	}

	mutate(record)
	record.UpdatedAt = time.Now().UTC()

	return o.saveStatus(ctx, record)
}

func (o *Orchestrator) loadStatus(ctx context.Context, runID string) (*domain.RunStatusRecord, error) {
	item, err := o.kv.Get(ctx, store.RunStatusPK(runID), store.RunStatusSK)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrRunNotFound
		}
		return nil, newOrchestratorError("load_status", "failed to read status record", err)
	}

	var record domain.RunStatusRecord
	if err := item.Decode(&record); err != nil {
		return nil, newOrchestratorError("load_status", "failed to decode status record", err)
	}
	return &record, nil
}

func (o *Orchestrator) saveStatus(ctx context.Context, record *domain.RunStatusRecord) error {
	var expiresAt int64
	if o.statusTTL > 0 {
		expiresAt = time.Now().Add(o.statusTTL).Unix()
	}

	item, err := store.NewItem(
		store.RunStatusPK(record.RunID), store.RunStatusSK, store.EntityRunStatus, record, expiresAt)
	if err != nil {
		return err
	}
	return o.kv.Put(ctx, item)
}

func (o *Orchestrator) saveImageMetadata(ctx context.Context, image *domain.Image) error {
	item, err := store.NewItem(
		store.ImagePK(image.ImageID), store.ImageMetaSK(image.ImageID), store.EntityImageMeta, image, 0)
	if err != nil {
		return err
	}
	return o.kv.Put(ctx, item)
}

func (o *Orchestrator) saveProcessingResult(ctx context.Context, result *domain.ProcessingResult) error {
	item, err := store.NewItem(
		store.ImagePK(result.ImageID), store.ProcessingResultSK(result.RequestID),
		store.EntityProcessingResult, result, 0)
	if err != nil {
		return err
	}
	return o.kv.Put(ctx, item)
}

func (o *Orchestrator) saveCombinedResult(ctx context.Context, combined *domain.CombinedResult) error {
	item, err := store.NewItem(
		store.ImagePK(combined.ImageID), store.CombinedResultSK, store.EntityCombinedResult, combined, 0)
	if err != nil {
		return err
	}
	return o.kv.Put(ctx, item)
}

func thresholdOrDefault(threshold *float64) float64 {
	if threshold == nil {
		return DefaultMaturationThreshold
	}
	return *threshold
}

func filterByConfidence(detections []domain.Detection, threshold float64) []domain.Detection {
	var qualifying []domain.Detection
	for _, d := range detections {
		if d.Confidence >= threshold {
			qualifying = append(qualifying, d)
		}
	}
	return qualifying
}

func toBoundingBoxes(detections []domain.Detection) []inference.BoundingBox {
	boxes := make([]inference.BoundingBox, 0, len(detections))
	for i, d := range detections {
		boxes = append(boxes, inference.BoundingBox{
			Index:       i,
			ClassName:   d.Class,
			Confidence:  d.Confidence,
			BoundingBox: d.BoundingBox,
		})
	}
	return boxes
}
