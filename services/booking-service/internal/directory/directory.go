package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

type Lookup interface {
	Lookup(ctx context.Context, userID string) (model.User, error)
}

// Postgres reads user profiles from the shared users table.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Lookup(ctx context.Context, userID string) (model.User, error) {
	var u model.User
	err := p.pool.QueryRow(ctx, `
		SELECT u.id::text, u.name, u.email, u.provider, COALESCE(f.path, '')
		FROM users u
		LEFT JOIN files f ON f.id = u.avatar_id
		WHERE u.id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Email, &u.Provider, &u.AvatarPath)
	if errors.Is(err, pgx.ErrNoRows) || db.HasCode(err, db.CodeInvalidText) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// Static is an in-memory directory used by tests and local tools.
type Static map[string]model.User

func NewStatic(users ...model.User) Static {
	s := make(Static, len(users))
	for _, u := range users {
		s[u.ID] = u
	}
	return s
}

func (s Static) Lookup(_ context.Context, userID string) (model.User, error) {
	u, ok := s[userID]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}
