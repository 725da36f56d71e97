package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cropsight/cropsight-api/internal/api/shared"
	"github.com/cropsight/cropsight-api/internal/pipeline"
)

// ProcessRequest represents the request body for starting a pipeline run.
// An absent maturation_threshold selects the pipeline default; an explicit
// 0 disables confidence filtering.
type ProcessRequest struct {
	ImageURL            string         `json:"image_url" validate:"required,min=1"`
	UserID              string         `json:"user_id"  validate:"required,min=1"`
	Metadata            map[string]any `json:"metadata"`
	MaturationThreshold *float64       `json:"maturation_threshold" validate:"omitempty,gte=0,lte=1"`
	SkipMaturation      bool           `json:"skip_maturation"`
	Location            string         `json:"location"`
}

// ProcessAcceptedResponse represents the response for an accepted run.
type ProcessAcceptedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// PipelineHandler handles image processing HTTP requests.
type PipelineHandler struct {
	orchestrator *pipeline.Orchestrator
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(orchestrator *pipeline.Orchestrator) *PipelineHandler {
	return &PipelineHandler{orchestrator: orchestrator}
}

// Process handles POST /api/process requests. It persists the initial status
// record, launches the pipeline in the background and returns 202 Accepted
// with the run ID for polling.
func (h *PipelineHandler) Process(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProcessRequest(w, r)
	if !ok {
		return
	}

	runID, err := h.orchestrator.StartBackground(r.Context(), req)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to start processing", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ProcessAcceptedResponse{
		RunID:  runID,
		Status: "queued",
	})
}

// ProcessSync handles POST /api/process/sync requests. The pipeline runs
// inline and the combined result is returned directly. Inference failures are
// reported inside the result body, not as HTTP errors.
func (h *PipelineHandler) ProcessSync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProcessRequest(w, r)
	if !ok {
		return
	}

	combined, err := h.orchestrator.Execute(r.Context(), req)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
			"Invalid image: "+err.Error(), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, combined)
}

// GetStatus handles GET /api/process/{runID}/status requests.
func (h *PipelineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	record, err := h.orchestrator.GetStatus(r.Context(), runID)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Run not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to read run status", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, record)
}

// GetRunResult handles GET /api/process/{runID}/result requests. The result
// is only available once the run has completed.
func (h *PipelineHandler) GetRunResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	combined, err := h.orchestrator.GetResultByRunID(r.Context(), runID)
	if err != nil {
		if errors.Is(err, pipeline.ErrResultNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Result not available")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to read result", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, combined)
}

// GetImageResult handles GET /api/results/{imageID} requests.
func (h *PipelineHandler) GetImageResult(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")

	combined, err := h.orchestrator.GetResult(r.Context(), imageID)
	if err != nil {
		if errors.Is(err, pipeline.ErrResultNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Result not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to read result", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, combined)
}

// decodeProcessRequest parses and validates the shared process request body,
// writing the error response itself when the body is unusable.
func (h *PipelineHandler) decodeProcessRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var body ProcessRequest
	if err := shared.DecodeJSON(r, &body); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return pipeline.Request{}, false
	}

	if err := shared.ValidateRequest(body); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return pipeline.Request{}, false
	}

	return pipeline.Request{
		ImageURL:            body.ImageURL,
		UserID:              body.UserID,
		Metadata:            body.Metadata,
		MaturationThreshold: body.MaturationThreshold,
		SkipMaturation:      body.SkipMaturation,
		Location:            body.Location,
	}, true
}
