package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Image
var (
	ErrEmptyImageURL    = errors.New("image URL cannot be empty")
	ErrEmptyImageUserID = errors.New("image user ID cannot be empty")
)

// Image represents one uploaded or referenced image submitted for
// processing. The image bytes themselves live in blob storage; this entity
// only carries the reference and caller-supplied metadata.
type Image struct {
	ImageID         string         `json:"image_id"`
	ImageURL        string         `json:"image_url"`
	UserID          string         `json:"user_id"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	UploadTimestamp time.Time      `json:"upload_timestamp"`
}

// NewImage creates a new Image with a generated ID and the current UTC
// timestamp. Returns an error if validation fails.
func NewImage(imageURL, userID string, metadata map[string]any) (*Image, error) {
	img := &Image{
		ImageID:         "img-" + uuid.NewString(),
		ImageURL:        imageURL,
		UserID:          userID,
		Metadata:        metadata,
		UploadTimestamp: time.Now().UTC(),
	}

	if err := img.Validate(); err != nil {
		return nil, err
	}

	return img, nil
}

// Validate checks if the Image has valid data.
func (i *Image) Validate() error {
	if i.ImageURL == "" {
		return ErrEmptyImageURL
	}

	if i.UserID == "" {
		return ErrEmptyImageUserID
	}

	return nil
}
