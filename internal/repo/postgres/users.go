package postgres

import (
	"context"
	"errors"
	"time"

	"authgate/internal/domain/user"
	"authgate/internal/observability"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UsersRepo struct {
	pool *pgxpool.Pool
	obs  *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, obs *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, obs: obs}
}

// UpsertFromIdentity creates the user on first login and refreshes the
// mutable profile fields on every subsequent one. The provider subject
// is the primary key, same as the original identity service.
func (r *UsersRepo) UpsertFromIdentity(ctx context.Context, ident user.Identity) (user.User, error) {
	var u user.User

	err := r.observe("users.upsert", func() error {
		now := time.Now().UTC()

		return r.pool.QueryRow(
			ctx,
			`INSERT INTO users (id, email, name, avatar_url, provider, role, created_at, updated_at)
             VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, $7, $7)
             ON CONFLICT (id) DO UPDATE
                SET email = EXCLUDED.email,
                    name = EXCLUDED.name,
                    avatar_url = EXCLUDED.avatar_url,
                    updated_at = EXCLUDED.updated_at
             RETURNING id, email, name, avatar_url, provider, role, created_at, updated_at`,
			ident.ExternalID,
			ident.Email,
			ident.Name,
			ident.AvatarURL,
			ident.Provider,
			user.DefaultRole,
			now,
		).Scan(
			&u.ID,
			&u.Email,
			&u.Name,
			&u.AvatarURL,
			&u.Provider,
			&u.Role,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
	})

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.observe("users.get_by_id", func() error {
		return r.pool.QueryRow(
			ctx,
			`SELECT id, email, name, avatar_url, provider, role, created_at, updated_at
             FROM users
             WHERE id = $1`,
			id,
		).Scan(
			&u.ID,
			&u.Email,
			&u.Name,
			&u.AvatarURL,
			&u.Provider,
			&u.Role,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {

			return user.User{}, ErrUserNotFound
		}

		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.obs == nil {
		return fn()
	}

	return r.obs.ObserveDB(op, fn)
}
