package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cropsight/cropsight-api/internal/store"
)

// KVStore implements the store.KV interface using a PostgreSQL database as
// the storage backend. Expired items are treated as absent on every read
// path; physical cleanup is left to an external sweep.
type KVStore struct {
	db     *sql.DB
	logger *slog.Logger

	// now is injectable for expiry tests.
	now func() time.Time
}

// NewKVStore creates a new PostgreSQL implementation of the store.KV
// interface. If logger is nil, a default logger will be used.
func NewKVStore(db *sql.DB, logger *slog.Logger) *KVStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &KVStore{
		db:     db,
		logger: logger.With(slog.String("component", "kv_store")),
		now:    time.Now,
	}
}

// Ensure KVStore implements store.KV interface
var _ store.KV = (*KVStore)(nil)

// Get implements store.KV.Get.
func (s *KVStore) Get(ctx context.Context, pk, sk string) (*store.Item, error) {
	query := `
		SELECT pk, sk, entity_type, value, expires_at
		FROM kv_items
		WHERE pk = $1 AND sk = $2
		  AND (expires_at = 0 OR expires_at > $3)
	`

	var item store.Item
	var value []byte
	err := s.db.QueryRowContext(ctx, query, pk, sk, s.now().Unix()).
		Scan(&item.PK, &item.SK, &item.EntityType, &value, &item.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.NewStoreError("", "get", "failed to read item", err)
	}

	item.Value = json.RawMessage(value)
	return &item, nil
}

// Put implements store.KV.Put. Writes are upserts keyed by (pk, sk).
func (s *KVStore) Put(ctx context.Context, item store.Item) error {
	query := `
		INSERT INTO kv_items (pk, sk, entity_type, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (pk, sk) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			value       = EXCLUDED.value,
			expires_at  = EXCLUDED.expires_at,
			updated_at  = now()
	`

	_, err := s.db.ExecContext(ctx, query,
		item.PK, item.SK, item.EntityType, []byte(item.Value), item.ExpiresAt)
	if err != nil {
		s.logger.Error("failed to put item",
			slog.String("pk", item.PK),
			slog.String("sk", item.SK),
			slog.String("error", err.Error()))
		return store.NewStoreError(item.EntityType, "put", "failed to write item", err)
	}

	return nil
}

// Query implements store.KV.Query.
func (s *KVStore) Query(ctx context.Context, pk string) ([]store.Item, error) {
	query := `
		SELECT pk, sk, entity_type, value, expires_at
		FROM kv_items
		WHERE pk = $1
		  AND (expires_at = 0 OR expires_at > $2)
		ORDER BY sk
	`

	rows, err := s.db.QueryContext(ctx, query, pk, s.now().Unix())
	if err != nil {
		return nil, store.NewStoreError("", "query", "failed to query partition", err)
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

// Scan implements store.KV.Scan.
func (s *KVStore) Scan(ctx context.Context, pkPrefix string) ([]store.Item, error) {
	query := `
		SELECT pk, sk, entity_type, value, expires_at
		FROM kv_items
		WHERE pk LIKE $1 || '%'
		  AND (expires_at = 0 OR expires_at > $2)
		ORDER BY pk, sk
	`

	rows, err := s.db.QueryContext(ctx, query, pkPrefix, s.now().Unix())
	if err != nil {
		return nil, store.NewStoreError("", "scan", "failed to scan items", err)
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

// Delete implements store.KV.Delete. Deleting a missing item is a no-op.
func (s *KVStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_items WHERE pk = $1 AND sk = $2`, pk, sk)
	if err != nil {
		return store.NewStoreError("", "delete", "failed to delete item", err)
	}
	return nil
}

func collectItems(rows *sql.Rows) ([]store.Item, error) {
	var items []store.Item
	for rows.Next() {
		var item store.Item
		var value []byte
		if err := rows.Scan(&item.PK, &item.SK, &item.EntityType, &value, &item.ExpiresAt); err != nil {
			return nil, store.NewStoreError("", "scan_row", "failed to scan row", err)
		}
		item.Value = json.RawMessage(value)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("", "scan_rows", "failed to iterate rows", err)
	}

	return items, nil
}
