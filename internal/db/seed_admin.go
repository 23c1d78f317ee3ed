package db

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/config"
	"github.com/campuskiosk/kioskhub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser creates the first staff account on boot so a fresh
// deployment can be administered without touching the database by hand.
// No-op when the account already exists or no admin is configured.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var dummy string
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.AdminEmail).Scan(&dummy)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = pool.Exec(ctx, `
		INSERT INTO users
			(id, email, password_hash, full_name, is_staff, must_set_password, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,false,$5,$5)
	`, uuid.NewString(), cfg.AdminEmail, hash, cfg.AdminFullName, now)

	return err
}
