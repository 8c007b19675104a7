package tickets

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// PostgresStore persists tickets with pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Fetch(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, requester, subject, status, last_intent, created_at, updated_at, closed_at
        FROM tickets WHERE id=$1`
	var t domain.Ticket
	if err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Requester,
		&t.Subject,
		&t.Status,
		&t.LastIntent,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ClosedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, requester, subject, status, last_intent)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at, updated_at`
	return s.pool.QueryRow(ctx, query,
		ticket.ID,
		ticket.Requester,
		ticket.Subject,
		ticket.Status,
		ticket.LastIntent,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (s *PostgresStore) UpdateIntent(ctx context.Context, id string, intent domain.Intent) error {
	const query = `UPDATE tickets SET last_intent=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := s.pool.Exec(ctx, query, intent, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	var closedAt *time.Time
	if status != domain.TicketStatusOpen {
		now := time.Now().UTC()
		closedAt = &now
	}
	const query = `UPDATE tickets SET status=$1, closed_at=$2, updated_at=NOW() WHERE id=$3`
	cmd, err := s.pool.Exec(ctx, query, status, closedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
