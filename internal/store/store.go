package store

import (
	"context"
	"encoding/json"
)

// Entity type markers stored on items so partition queries can tell the
// record kinds apart.
const (
	EntityImageMeta        = "IMAGE_META"
	EntityProcessingResult = "PROCESSING_RESULT"
	EntityCombinedResult   = "COMBINED_RESULT"
	EntityRunStatus        = "RUN_STATUS"
	EntitySession          = "MONITORING_SESSION"
	EntityCapture          = "CAPTURE_RESULT"
)

// Item is one stored record: a key pair, an entity type marker, and the
// entity serialized as JSON. ExpiresAt is a unix timestamp in seconds;
// zero means the item never expires.
type Item struct {
	PK         string
	SK         string
	EntityType string
	Value      json.RawMessage
	ExpiresAt  int64
}

// KV is the durable key-value store contract. Implementations must return
// ErrNotFound (or a wrapping of it) from Get when no live item exists for
// the key pair.
type KV interface {
	// Get retrieves a single item by its key pair.
	Get(ctx context.Context, pk, sk string) (*Item, error)

	// Put writes an item, replacing any existing item with the same keys.
	Put(ctx context.Context, item Item) error

	// Query returns all live items in a partition, ordered by sort key.
	Query(ctx context.Context, pk string) ([]Item, error)

	// Scan returns all live items whose partition key starts with the
	// given prefix.
	Scan(ctx context.Context, pkPrefix string) ([]Item, error)

	// Delete removes an item. Deleting a missing item is a no-op.
	Delete(ctx context.Context, pk, sk string) error
}

// NewItem marshals an entity into an Item for the given keys. ttl of zero
// means no expiry.
func NewItem(pk, sk, entityType string, entity any, expiresAt int64) (Item, error) {
	value, err := json.Marshal(entity)
	if err != nil {
		return Item{}, NewStoreError(entityType, "marshal", "failed to encode entity", err)
	}

	return Item{
		PK:         pk,
		SK:         sk,
		EntityType: entityType,
		Value:      value,
		ExpiresAt:  expiresAt,
	}, nil
}

// Decode unmarshals the item's document into the given entity pointer.
func (i *Item) Decode(entity any) error {
	if err := json.Unmarshal(i.Value, entity); err != nil {
		return NewStoreError(i.EntityType, "decode", "failed to decode entity", err)
	}
	return nil
}
