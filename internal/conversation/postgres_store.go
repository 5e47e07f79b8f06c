package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps each conversation as a JSONB document with a version column.
type PostgresStore struct {
	db pgQuerier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db pgQuerier) *PostgresStore {
	if db == nil {
		panic("conversation: querier required")
	}
	return &PostgresStore{db: db}
}

// Get loads a conversation by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Conversation, error) {
	var (
		data    []byte
		version int64
	)
	err := s.db.QueryRow(ctx, `SELECT data, version FROM conversations WHERE id = $1`, id).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: load conversation: %w", err)
	}
	return decodeConversation(data, version)
}

// PutIfVersion inserts (expected == 0) or updates guarded by the version column.
func (s *PostgresStore) PutIfVersion(ctx context.Context, conv *Conversation, expected int64) (*Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.New("conversation: conversation id required")
	}
	stored := conv.Clone()
	stored.Version = expected + 1
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("conversation: marshal conversation: %w", err)
	}

	var tag pgconn.CommandTag
	if expected == 0 {
		tag, err = s.db.Exec(ctx, `
			INSERT INTO conversations (id, status, version, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, stored.ID, string(stored.Status), stored.Version, data, stored.CreatedAt, stored.UpdatedAt)
	} else {
		tag, err = s.db.Exec(ctx, `
			UPDATE conversations
			SET status = $2, version = $3, data = $4, updated_at = $5
			WHERE id = $1 AND version = $6
		`, stored.ID, string(stored.Status), stored.Version, data, stored.UpdatedAt, expected)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: persist conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrVersionConflict
	}
	return stored, nil
}

// List returns the newest conversations first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Conversation, error) {
	rows, err := s.db.Query(ctx, `SELECT data, version FROM conversations ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var (
			data    []byte
			version int64
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("conversation: scan conversation: %w", err)
		}
		conv, err := decodeConversation(data, version)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list conversations: %w", err)
	}
	return out, nil
}

func decodeConversation(data []byte, version int64) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("conversation: decode conversation: %w", err)
	}
	conv.Version = version
	return &conv, nil
}
