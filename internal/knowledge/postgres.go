package knowledge

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore ranks knowledge documents with Postgres full-text search.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 5
	}
	const sql = `
        SELECT id, title, content,
               ts_rank(search_vector, websearch_to_tsquery('english', $1)) AS rank
        FROM knowledge_documents
        WHERE search_vector @@ websearch_to_tsquery('english', $1)
        ORDER BY rank DESC
        LIMIT $2`
	rows, err := s.pool.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Score); err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}
