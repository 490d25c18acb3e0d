package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HistoryRepository is the append-only status ledger. There is no update
// or delete: entries written here are the audit trail of record.
type HistoryRepository interface {
	Record(ctx context.Context, entry domain.StatusHistoryEntry) error
	History(ctx context.Context, bookingID string) ([]domain.StatusHistoryEntry, error)
}

type PGHistoryRepository struct {
	db *pgxpool.Pool
}

func NewHistoryRepository(db *pgxpool.Pool) HistoryRepository {
	return &PGHistoryRepository{db: db}
}

func (r *PGHistoryRepository) Record(ctx context.Context, entry domain.StatusHistoryEntry) error {
	changes, err := marshalFieldChanges(entry.FieldChanges)
	if err != nil {
		return err
	}
	actor := entry.Actor
	if actor == "" {
		actor = domain.ActorSystem
	}
	_, err = r.db.Exec(ctx, `INSERT INTO status_history (booking_id, status, note, actor, field_changes)
		VALUES ($1, $2, $3, $4, $5)`, entry.BookingID, entry.Status, entry.Note, actor, changes)
	return err
}

func (r *PGHistoryRepository) History(ctx context.Context, bookingID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, booking_id, status, note, actor, field_changes, created_at
		FROM status_history WHERE booking_id=$1 ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var e domain.StatusHistoryEntry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Status, &e.Note, &e.Actor, &changes, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.FieldChanges); err != nil {
				return nil, fmt.Errorf("parse field_changes: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ HistoryRepository = (*PGHistoryRepository)(nil)
