package trust

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS trusted_servers (
	id           TEXT PRIMARY KEY,
	server_id    TEXT NOT NULL,
	server_label TEXT NOT NULL,
	server_key   TEXT NOT NULL,
	direction    TEXT NOT NULL,
	base_url     TEXT NOT NULL DEFAULT '',
	CONSTRAINT trusted_servers_server_direction UNIQUE (server_id, direction)
);

CREATE INDEX IF NOT EXISTS idx_trusted_servers_key
	ON trusted_servers (server_key, direction);
`

// PostgresStore persists trust entries in PostgreSQL. Preferred over the
// engine store when the gateway runs with more than one replica, since the
// embedded engine is per-process.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects via the pgx stdlib driver and ensures the schema.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("trust: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("trust: ping postgres: %w", err)
	}
	store := &PostgresStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres wraps an existing connection without touching the schema.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the trusted_servers table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchemaSQL); err != nil {
		return fmt.Errorf("trust: apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Save(ctx context.Context, id string, entry Entry) error {
	query := `
		INSERT INTO trusted_servers (id, server_id, server_label, server_key, direction, base_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			server_id    = EXCLUDED.server_id,
			server_label = EXCLUDED.server_label,
			server_key   = EXCLUDED.server_key,
			direction    = EXCLUDED.direction,
			base_url     = EXCLUDED.base_url
	`
	_, err := s.db.ExecContext(ctx, query,
		id, entry.ServerID, entry.Label, entry.Key, string(entry.Direction), entry.BaseURL)
	if err != nil {
		return fmt.Errorf("trust: save entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, serverID string, direction Direction) ([]Stored, error) {
	return s.query(ctx, `
		SELECT id, server_id, server_label, server_key, direction, base_url
		FROM trusted_servers
		WHERE server_id = $1 AND direction = $2
	`, serverID, string(direction))
}

func (s *PostgresStore) FindByKey(ctx context.Context, key string, direction Direction) ([]Stored, error) {
	return s.query(ctx, `
		SELECT id, server_id, server_label, server_key, direction, base_url
		FROM trusted_servers
		WHERE server_key = $1 AND direction = $2
	`, key, string(direction))
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trusted_servers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("trust: delete entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, direction Direction) ([]Entry, error) {
	var (
		stored []Stored
		err    error
	)
	if direction == "" {
		stored, err = s.query(ctx, `
			SELECT id, server_id, server_label, server_key, direction, base_url
			FROM trusted_servers
			ORDER BY server_id, direction
		`)
	} else {
		stored, err = s.query(ctx, `
			SELECT id, server_id, server_label, server_key, direction, base_url
			FROM trusted_servers
			WHERE direction = $1
			ORDER BY server_id
		`, string(direction))
	}
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(stored))
	for _, st := range stored {
		entries = append(entries, st.Entry)
	}
	return entries, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Stored, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trust: query entries: %w", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var st Stored
		var direction string
		if err := rows.Scan(&st.ID, &st.ServerID, &st.Label, &st.Key, &direction, &st.BaseURL); err != nil {
			return nil, fmt.Errorf("trust: scan entry: %w", err)
		}
		st.Direction = Direction(direction)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trust: iterate entries: %w", err)
	}
	return out, nil
}
