package search

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS indices (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS docs (
	idx    TEXT NOT NULL,
	id     TEXT NOT NULL,
	source BLOB NOT NULL DEFAULT '',
	PRIMARY KEY (idx, id)
);

CREATE TABLE IF NOT EXISTS doc_terms (
	idx    TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	field  TEXT NOT NULL,
	term   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_doc_terms_lookup ON doc_terms(idx, field, term);
CREATE INDEX IF NOT EXISTS idx_doc_terms_doc ON doc_terms(idx, doc_id);
`

// SQLiteEngine is the embedded production Engine. Relevance ranking comes
// from FTS5 bm25 when built with the sqlite_fts5 tag; otherwise a term-count
// fallback keeps the same contract with degraded ranking quality.
type SQLiteEngine struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the engine database and applies the schema.
func OpenSQLite(path string) (*SQLiteEngine, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("search: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("search: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("search: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("search: apply fts schema: %w", err)
	}
	return &SQLiteEngine{conn: conn}, nil
}

// Close closes the underlying database connection.
func (e *SQLiteEngine) Close() error {
	return e.conn.Close()
}

func (e *SQLiteEngine) Exists(ctx context.Context, index string) (bool, error) {
	var name string
	err := e.conn.QueryRowContext(ctx, `SELECT name FROM indices WHERE name = ?`, index).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("search: exists: %w", err)
	}
	return true, nil
}

func (e *SQLiteEngine) Create(ctx context.Context, index string) error {
	if _, err := e.conn.ExecContext(ctx, `INSERT OR IGNORE INTO indices (name) VALUES (?)`, index); err != nil {
		return fmt.Errorf("search: create index: %w", err)
	}
	return nil
}

func (e *SQLiteEngine) Upsert(ctx context.Context, index, id string, doc Document) error {
	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("search: begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO indices (name) VALUES (?)`, index); err != nil {
		return fmt.Errorf("search: ensure index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_terms WHERE idx = ? AND doc_id = ?`, index, id); err != nil {
		return fmt.Errorf("search: clear terms: %w", err)
	}
	ftsDelete(ctx, tx, index, id)

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO docs (idx, id, source) VALUES (?, ?, ?)`,
		index, id, []byte(doc.Source)); err != nil {
		return fmt.Errorf("search: upsert doc: %w", err)
	}

	for field, terms := range doc.Keywords {
		for _, term := range terms {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO doc_terms (idx, doc_id, field, term) VALUES (?, ?, ?, ?)`,
				index, id, field, term); err != nil {
				return fmt.Errorf("search: insert term: %w", err)
			}
			if err := ftsInsert(ctx, tx, index, id, field, term); err != nil {
				return fmt.Errorf("search: insert fts term: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("search: commit upsert: %w", err)
	}
	return nil
}

func (e *SQLiteEngine) Delete(ctx context.Context, index, id string) error {
	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("search: begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE idx = ? AND id = ?`, index, id); err != nil {
		return fmt.Errorf("search: delete doc: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_terms WHERE idx = ? AND doc_id = ?`, index, id); err != nil {
		return fmt.Errorf("search: delete terms: %w", err)
	}
	ftsDelete(ctx, tx, index, id)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("search: commit delete: %w", err)
	}
	return nil
}

// Refresh is a no-op: committed SQLite writes are immediately visible.
// Kept for interface parity with engines that buffer writes.
func (e *SQLiteEngine) Refresh(context.Context, string) error { return nil }

func (e *SQLiteEngine) Count(ctx context.Context, index string) (int64, error) {
	var n int64
	err := e.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs WHERE idx = ?`, index).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("search: count: %w", err)
	}
	return n, nil
}

func (e *SQLiteEngine) Search(ctx context.Context, index string, q Query, limit int) ([]Hit, error) {
	candidates, err := e.candidates(ctx, index, q, limit)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, c := range candidates {
		keywords, err := e.loadKeywords(ctx, index, c.id)
		if err != nil {
			return nil, err
		}
		if !q.matchesFilters(keywords) {
			continue
		}
		source, err := e.loadSource(ctx, index, c.id)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: c.id, Score: c.score, Keywords: keywords, Source: source})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

type scoredID struct {
	id    string
	score float64
}

// candidates returns doc ids in rank order. With should clauses the ranking
// comes from the FTS layer; without them it is a plain scan in insertion
// order (filters are applied by the caller).
func (e *SQLiteEngine) candidates(ctx context.Context, index string, q Query, limit int) ([]scoredID, error) {
	if len(q.Should) > 0 {
		// Filters are applied after ranking, so do not pre-truncate when
		// any are present.
		ftsLimit := limit
		if len(q.Filter) > 0 {
			ftsLimit = 0
		}
		return ftsScores(ctx, e.conn, index, q.Should, ftsLimit)
	}

	rows, err := e.conn.QueryContext(ctx, `SELECT id FROM docs WHERE idx = ? ORDER BY rowid`, index)
	if err != nil {
		return nil, fmt.Errorf("search: scan docs: %w", err)
	}
	defer rows.Close()

	var out []scoredID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, scoredID{id: id})
	}
	return out, rows.Err()
}

func (e *SQLiteEngine) loadKeywords(ctx context.Context, index, id string) (map[string][]string, error) {
	rows, err := e.conn.QueryContext(ctx,
		`SELECT field, term FROM doc_terms WHERE idx = ? AND doc_id = ? ORDER BY rowid`, index, id)
	if err != nil {
		return nil, fmt.Errorf("search: load keywords: %w", err)
	}
	defer rows.Close()

	keywords := make(map[string][]string)
	for rows.Next() {
		var field, term string
		if err := rows.Scan(&field, &term); err != nil {
			return nil, err
		}
		keywords[field] = append(keywords[field], term)
	}
	return keywords, rows.Err()
}

func (e *SQLiteEngine) loadSource(ctx context.Context, index, id string) ([]byte, error) {
	var source []byte
	err := e.conn.QueryRowContext(ctx, `SELECT source FROM docs WHERE idx = ? AND id = ?`, index, id).Scan(&source)
	if err != nil {
		return nil, fmt.Errorf("search: load source: %w", err)
	}
	return source, nil
}
