package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"chessweb/internal/domain"
)

// Repository is the persistence contract for board states. Get returns
// (nil, nil) when the owner has no board yet. Update applies the full record
// only when the stored version still equals expectedVersion and bumps it by
// one; otherwise it returns ErrVersionConflict.
type Repository interface {
	Get(ctx context.Context, owner string) (*domain.BoardState, error)
	Create(ctx context.Context, state *domain.BoardState) error
	Update(ctx context.Context, state *domain.BoardState, expectedVersion int64) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS board_states (
			owner TEXT PRIMARY KEY,
			game_uuid TEXT NOT NULL,
			moves_uci JSONB NOT NULL DEFAULT '[]'::jsonb,
			fen TEXT NOT NULL,
			turn TEXT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			started_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure board_states schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, owner string) (*domain.BoardState, error) {
	const query = `
		SELECT
			owner,
			game_uuid,
			moves_uci,
			fen,
			turn,
			version,
			started_at,
			updated_at
		FROM board_states
		WHERE owner = $1`

	var (
		state     domain.BoardState
		movesJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, owner).Scan(
		&state.Owner,
		&state.GameUUID,
		&movesJSON,
		&state.FEN,
		&state.Turn,
		&state.Version,
		&state.StartedAt,
		&state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select board state: %w", err)
	}
	if err := json.Unmarshal(movesJSON, &state.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	return &state, nil
}

func (r *PostgresRepository) Create(ctx context.Context, state *domain.BoardState) error {
	if state == nil {
		return fmt.Errorf("nil board state payload")
	}
	movesJSON, err := json.Marshal(state.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		INSERT INTO board_states (
			owner,
			game_uuid,
			moves_uci,
			fen,
			turn,
			version,
			started_at,
			updated_at
		)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8)
		ON CONFLICT (owner) DO NOTHING`

	res, err := r.db.ExecContext(
		ctx,
		query,
		state.Owner,
		state.GameUUID,
		movesJSON,
		state.FEN,
		state.Turn,
		state.Version,
		state.StartedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert board state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert board state: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateBoard
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, state *domain.BoardState, expectedVersion int64) error {
	if state == nil {
		return fmt.Errorf("nil board state payload")
	}
	movesJSON, err := json.Marshal(state.MovesUCI)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}

	const query = `
		UPDATE board_states
		SET
			game_uuid = $2,
			moves_uci = $3::jsonb,
			fen = $4,
			turn = $5,
			version = version + 1,
			started_at = $6,
			updated_at = $7
		WHERE owner = $1 AND version = $8`

	res, err := r.db.ExecContext(
		ctx,
		query,
		state.Owner,
		state.GameUUID,
		movesJSON,
		state.FEN,
		state.Turn,
		state.StartedAt,
		state.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update board state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update board state: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
