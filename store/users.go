package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmailTaken reports a registration attempt with an email that already
// has an account.
var ErrEmailTaken = errors.New("email already registered")

type Users struct {
	pool *pgxpool.Pool
}

func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

func (u *Users) Create(ctx context.Context, email, username, passwordHash string) (User, error) {
	var user User
	err := u.pool.QueryRow(ctx, `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, username, password_hash, is_active, created_at
	`, email, username, passwordHash).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.IsActive, &user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string) (User, error) {
	return u.get(ctx, "SELECT id, email, username, password_hash, is_active, created_at FROM users WHERE email = $1", email)
}

func (u *Users) GetByID(ctx context.Context, id int64) (User, error) {
	return u.get(ctx, "SELECT id, email, username, password_hash, is_active, created_at FROM users WHERE id = $1", id)
}

func (u *Users) get(ctx context.Context, query string, arg any) (User, error) {
	var user User
	err := u.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.IsActive, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}
