//go:build !sqlite_fts5

package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Fallback ranking for builds without the sqlite_fts5 tag: relevance is the
// number of matched terms. Ordering by match breadth is preserved; intra-tie
// ranking quality is degraded compared to bm25.

func initFTS(*sql.DB) error { return nil }

func ftsInsert(context.Context, *sql.Tx, string, string, string, string) error { return nil }

func ftsDelete(context.Context, *sql.Tx, string, string) {}

func ftsScores(ctx context.Context, conn *sql.DB, index string, should []Term, limit int) ([]scoredID, error) {
	clauses := make([]string, 0, len(should))
	args := []any{index}
	for _, s := range should {
		clauses = append(clauses, `(field = ? AND term = ?)`)
		args = append(args, s.Field, s.Value)
	}

	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	query := `
		SELECT doc_id, COUNT(*) AS score
		FROM doc_terms
		WHERE idx = ? AND (` + strings.Join(clauses, " OR ") + `)
		GROUP BY doc_id
		ORDER BY score DESC, doc_id
		LIMIT ?
	`
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: term query: %w", err)
	}
	defer rows.Close()

	var out []scoredID
	for rows.Next() {
		var s scoredID
		if err := rows.Scan(&s.id, &s.score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
