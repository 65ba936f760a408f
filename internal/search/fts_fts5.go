//go:build sqlite_fts5

package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FTS5-backed ranking. One fts row per (doc, field, term); a query document's
// relevance is the summed bm25 contribution of every matched term, which
// tracks the OR-of-terms scoring of the original Elasticsearch deployment.

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS doc_terms_fts USING fts5(
			idx UNINDEXED,
			doc_id UNINDEXED,
			field,
			term,
			tokenize = "unicode61 tokenchars ':_-'"
		);
	`)
	return err
}

func ftsInsert(ctx context.Context, tx *sql.Tx, index, docID, field, term string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO doc_terms_fts (idx, doc_id, field, term) VALUES (?, ?, ?, ?)`,
		index, docID, field, term)
	return err
}

func ftsDelete(ctx context.Context, tx *sql.Tx, index, docID string) {
	_, _ = tx.ExecContext(ctx, `DELETE FROM doc_terms_fts WHERE idx = ? AND doc_id = ?`, index, docID)
}

func ftsScores(ctx context.Context, conn *sql.DB, index string, should []Term, limit int) ([]scoredID, error) {
	clauses := make([]string, 0, len(should))
	for _, s := range should {
		clauses = append(clauses, `(field : `+ftsQuote(s.Field)+` AND term : `+ftsQuote(s.Value)+`)`)
	}
	match := strings.Join(clauses, " OR ")

	if limit <= 0 {
		limit = -1
	}
	// The field column is indexed only so MATCH can filter on it; the zero
	// weights keep it out of the bm25 score.
	rows, err := conn.QueryContext(ctx, `
		SELECT doc_id, SUM(-bm25(doc_terms_fts, 0.0, 0.0, 0.0, 1.0)) AS score
		FROM doc_terms_fts
		WHERE doc_terms_fts MATCH ? AND idx = ?
		GROUP BY doc_id
		ORDER BY score DESC, doc_id
		LIMIT ?
	`, match, index, limit)
	if err != nil {
		return nil, fmt.Errorf("search: fts query: %w", err)
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

func ftsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
