package memory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
)

// PostgresLog persists turns with pgx. The seq bigserial fixes the append
// order independently of clock resolution.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog instantiates the log.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

func (l *PostgresLog) Append(ctx context.Context, turn *domain.Turn) error {
	const query = `
        INSERT INTO turns (id, ticket_id, direction, source_id, intent, body, attachments)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at`
	return l.pool.QueryRow(ctx, query,
		turn.ID,
		turn.TicketID,
		turn.Direction,
		turn.SourceID,
		turn.Intent,
		turn.Body,
		turn.Attachments,
	).Scan(&turn.CreatedAt)
}

func (l *PostgresLog) RecentContext(ctx context.Context, ticketID string, maxTurns int) ([]domain.Turn, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultContextTurns
	}
	const query = `
        SELECT id, ticket_id, direction, source_id, intent, body, attachments, created_at
        FROM (
            SELECT id, ticket_id, direction, source_id, intent, body, attachments, created_at, seq
            FROM turns WHERE ticket_id=$1 ORDER BY seq DESC LIMIT $2
        ) recent ORDER BY seq ASC`
	rows, err := l.pool.Query(ctx, query, ticketID, maxTurns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		if err := rows.Scan(
			&turn.ID,
			&turn.TicketID,
			&turn.Direction,
			&turn.SourceID,
			&turn.Intent,
			&turn.Body,
			&turn.Attachments,
			&turn.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, turn)
	}
	return result, rows.Err()
}
