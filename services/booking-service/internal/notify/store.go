package notify

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

var ErrNotFound = errors.New("notification not found")

type Store interface {
	Insert(ctx context.Context, n model.Notification) error
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) (model.Notification, error)
}

type PostgresStore struct {
	pool *db.Pool
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, n model.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, appointment_id, content, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.RecipientID, n.AppointmentID, n.Content, n.Read, n.CreatedAt)
	return err
}

func (s *PostgresStore) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, recipient_id::text, COALESCE(appointment_id::text, ''), content, read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.AppointmentID, &n.Content, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, id, recipientID string) (model.Notification, error) {
	var n model.Notification
	err := s.pool.QueryRow(ctx, `
		UPDATE notifications
		SET read = true
		WHERE id = $1 AND recipient_id = $2
		RETURNING id::text, recipient_id::text, COALESCE(appointment_id::text, ''), content, read, created_at
	`, id, recipientID).Scan(&n.ID, &n.RecipientID, &n.AppointmentID, &n.Content, &n.Read, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || db.HasCode(err, db.CodeInvalidText) {
		return model.Notification{}, ErrNotFound
	}
	return n, err
}

type MemoryStore struct {
	mu    sync.Mutex
	items []model.Notification
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Insert(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	s.items = append(s.items, n)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListForRecipient(_ context.Context, recipientID string, limit int) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Notification{}
	for _, n := range s.items {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id, recipientID string) (model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].RecipientID == recipientID {
			s.items[i].Read = true
			return s.items[i], nil
		}
	}
	return model.Notification{}, ErrNotFound
}
