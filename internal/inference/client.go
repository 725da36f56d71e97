package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cropsight/cropsight-api/internal/domain"
)

// Client is the HTTP implementation of Service. It speaks the inference
// collaborator's JSON protocol: detection at POST {base}/detect, maturation
// at POST {base}/maturation and POST {base}/maturation-with-boxes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the inference service at baseURL. If logger
// is nil, the default logger is used.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "inference_client"),
	}
}

// Ensure Client implements the Service interface.
var _ Service = (*Client)(nil)

// wire types for the collaborator protocol. The service names detection
// classes "class_name" on the wire; the domain entity uses "class".
type wireResponse struct {
	Status         string          `json:"status"`
	RequestID      string          `json:"request_id"`
	Results        []wireDetection `json:"results"`
	Summary        wireSummary     `json:"summary"`
	ImageResultURL string          `json:"image_result_url"`
	ErrorMessage   string          `json:"error_message"`
}

type wireDetection struct {
	ClassName       string                  `json:"class_name"`
	Confidence      float64                 `json:"confidence"`
	BoundingBox     []float64               `json:"bounding_box"`
	MaturationLevel *domain.MaturationLevel `json:"maturation_level"`
}

type wireSummary struct {
	TotalObjects    int   `json:"total_objects"`
	DetectionTimeMs int64 `json:"detection_time_ms"`
}

// Detect implements Service.Detect.
func (c *Client) Detect(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
	payload := map[string]any{
		"image_url": image.ImageURL,
		"metadata":  orEmpty(image.Metadata),
	}

	c.logger.Info("sending detection request", "image_id", image.ImageID, "image_url", image.ImageURL)
	return c.post(ctx, c.baseURL+"/detect", payload, image.ImageID, domain.ModelTypeDetection, "")
}

// AnalyzeMaturation implements Service.AnalyzeMaturation.
func (c *Client) AnalyzeMaturation(ctx context.Context, image *domain.Image) *domain.ProcessingResult {
	payload := map[string]any{
		"image_url": image.ImageURL,
		"metadata":  orEmpty(image.Metadata),
	}

	c.logger.Info("sending maturation request", "image_id", image.ImageID, "image_url", image.ImageURL)
	return c.post(ctx, c.baseURL+"/maturation", payload, image.ImageID, domain.ModelTypeMaturation, "")
}

// AnalyzeMaturationWithBoxes implements Service.AnalyzeMaturationWithBoxes.
func (c *Client) AnalyzeMaturationWithBoxes(
	ctx context.Context,
	image *domain.Image,
	boxes []BoundingBox,
	parentRequestID string,
) *domain.ProcessingResult {
	metadata := make(map[string]any, len(image.Metadata)+1)
	for k, v := range image.Metadata {
		metadata[k] = v
	}
	metadata["detection_request_id"] = parentRequestID

	payload := map[string]any{
		"image_url":      image.ImageURL,
		"bounding_boxes": boxes,
		"metadata":       metadata,
	}

	c.logger.Info("sending maturation-with-boxes request",
		"image_id", image.ImageID,
		"box_count", len(boxes),
		"parent_request_id", parentRequestID)
	return c.post(ctx, c.baseURL+"/maturation-with-boxes", payload, image.ImageID, domain.ModelTypeMaturation, parentRequestID)
}

// post sends one inference call and converts every failure mode into an
// error-status ProcessingResult.
func (c *Client) post(
	ctx context.Context,
	url string,
	payload any,
	imageID string,
	modelType domain.ModelType,
	parentRequestID string,
) *domain.ProcessingResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return c.errorResult(imageID, modelType, parentRequestID, fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return c.errorResult(imageID, modelType, parentRequestID, fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("inference request failed", "url", url, "image_id", imageID, "error", err)
		return c.errorResult(imageID, modelType, parentRequestID, fmt.Sprintf("connection error: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("inference service returned an error response",
			"url", url,
			"image_id", imageID,
			"status_code", resp.StatusCode)
		return c.errorResult(imageID, modelType, parentRequestID,
			fmt.Sprintf("inference service error %d: %s", resp.StatusCode, string(text)))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return c.errorResult(imageID, modelType, parentRequestID, fmt.Sprintf("failed to decode response: %v", err))
	}

	if wire.Status == "error" {
		c.logger.Error("inference reported a processing failure",
			"image_id", imageID,
			"model_type", modelType,
			"error", wire.ErrorMessage)
		message := wire.ErrorMessage
		if message == "" {
			message = "unknown inference failure"
		}
		return c.errorResult(imageID, modelType, parentRequestID, message)
	}

	result := domain.NewProcessingResult(imageID, modelType, toDomainDetections(wire.Results))
	if wire.RequestID != "" {
		result.RequestID = wire.RequestID
	}
	result.ParentRequestID = parentRequestID
	result.Summary = domain.ResultSummary{
		TotalObjects:    wire.Summary.TotalObjects,
		DetectionTimeMs: wire.Summary.DetectionTimeMs,
	}
	result.ImageResultURL = wire.ImageResultURL
	return result
}

func (c *Client) errorResult(imageID string, modelType domain.ModelType, parentRequestID, message string) *domain.ProcessingResult {
	result := domain.NewErrorProcessingResult(imageID, modelType, message)
	result.ParentRequestID = parentRequestID
	return result
}

func toDomainDetections(wire []wireDetection) []domain.Detection {
	detections := make([]domain.Detection, 0, len(wire))
	for _, d := range wire {
		detections = append(detections, domain.Detection{
			Class:           d.ClassName,
			Confidence:      d.Confidence,
			BoundingBox:     d.BoundingBox,
			MaturationLevel: d.MaturationLevel,
		})
	}
	return detections
}

func orEmpty(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return metadata
}
