package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CaptureStatus represents the processing state of one capture. Clients
// report status transitions as results for the captured image arrive.
type CaptureStatus string

// Known capture status values
const (
	CaptureStatusPending   CaptureStatus = "pending"
	CaptureStatusCaptured  CaptureStatus = "captured"
	CaptureStatusProcessed CaptureStatus = "processed"
	CaptureStatusFailed    CaptureStatus = "failed"
)

// IsValidCaptureStatus checks whether the given status is a defined
// CaptureStatus.
func IsValidCaptureStatus(status CaptureStatus) bool {
	switch status {
	case CaptureStatusPending, CaptureStatusCaptured,
		CaptureStatusProcessed, CaptureStatusFailed:
		return true
	default:
		return false
	}
}

// Common validation errors for CaptureResult
var (
	ErrEmptyCaptureImageID = errors.New("capture image ID cannot be empty")
	ErrEmptyCaptureStatus  = errors.New("capture status cannot be empty")
)

// CaptureResult is one reported image acquisition event within a
// monitoring session. Its ID is appended to the owning session's capture
// list exactly once.
type CaptureResult struct {
	CaptureID  string         `json:"capture_id"`
	ImageID    string         `json:"image_id"`
	ImageURL   string         `json:"image_url,omitempty"`
	Status     CaptureStatus  `json:"status"`
	ResultIDs  []string       `json:"result_ids"`
	CapturedAt time.Time      `json:"captured_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewCaptureResult creates a CaptureResult in the captured state with a
// generated capture ID. Returns an error if validation fails.
func NewCaptureResult(imageID, imageURL string, metadata map[string]any) (*CaptureResult, error) {
	c := &CaptureResult{
		CaptureID:  "cap-" + uuid.NewString(),
		ImageID:    imageID,
		ImageURL:   imageURL,
		Status:     CaptureStatusCaptured,
		ResultIDs:  []string{},
		CapturedAt: time.Now().UTC(),
		Metadata:   metadata,
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks if the CaptureResult has valid data.
func (c *CaptureResult) Validate() error {
	if c.ImageID == "" {
		return ErrEmptyCaptureImageID
	}

	if c.Status == "" {
		return ErrEmptyCaptureStatus
	}

	return nil
}

// MergeResultIDs unions the given result IDs into the capture's set,
// preserving insertion order and dropping duplicates.
func (c *CaptureResult) MergeResultIDs(ids []string) {
	seen := make(map[string]struct{}, len(c.ResultIDs))
	for _, id := range c.ResultIDs {
		seen[id] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		c.ResultIDs = append(c.ResultIDs, id)
	}
}

// MergeMetadata shallowly merges the given metadata into the capture's
// metadata, overwriting existing keys.
func (c *CaptureResult) MergeMetadata(metadata map[string]any) {
	if len(metadata) == 0 {
		return
	}

	if c.Metadata == nil {
		c.Metadata = make(map[string]any, len(metadata))
	}

	for k, v := range metadata {
		c.Metadata[k] = v
	}
}
