package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore inserts each line as a row of chat_history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool. The schema must already be migrated.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts line for roomID.
func (s *PostgresStore) Append(ctx context.Context, roomID int, line string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_history (room_id, line) VALUES ($1, $2)`,
		roomID, line,
	)
	if err != nil {
		return fmt.Errorf("insert history for room %d: %w", roomID, err)
	}
	return nil
}

// Lines returns the stored lines for roomID in insertion order.
func (s *PostgresStore) Lines(ctx context.Context, roomID int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT line FROM chat_history WHERE room_id = $1 ORDER BY id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history for room %d: %w", roomID, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return lines, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
