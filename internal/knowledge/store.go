// Package knowledge is the narrow contract with the knowledge/RAG store.
// Index maintenance is owned elsewhere; the pipeline only searches.
package knowledge

import "context"

// Document is one ranked search hit.
type Document struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// Store searches the knowledge base.
type Store interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}
