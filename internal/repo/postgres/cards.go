package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CardsRepo struct {
	pool *pgxpool.Pool
}

func NewCardsRepo(pool *pgxpool.Pool) *CardsRepo {
	return &CardsRepo{pool: pool}
}

func (r *CardsRepo) GetByCardID(ctx context.Context, cardID string) (user.CardCredential, error) {
	var c user.CardCredential
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, card_id, raw_swipe, created_at
		FROM card_credentials
		WHERE card_id = $1
	`, cardID).Scan(&c.UserID, &c.CardID, &c.RawSwipe, &c.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.CardCredential{}, user.ErrCardNotFound
		}
		return user.CardCredential{}, err
	}
	return c, nil
}

func (r *CardsRepo) GetByRawSwipe(ctx context.Context, raw string) (user.CardCredential, error) {
	var c user.CardCredential
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, card_id, raw_swipe, created_at
		FROM card_credentials
		WHERE raw_swipe = $1
	`, raw).Scan(&c.UserID, &c.CardID, &c.RawSwipe, &c.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.CardCredential{}, user.ErrCardNotFound
		}
		return user.CardCredential{}, err
	}
	return c, nil
}

// Link stores the card for the user. One card per user and a globally unique
// raw swipe are both enforced by constraints; either collision surfaces as
// ErrCardLinked.
func (r *CardsRepo) Link(ctx context.Context, userID, cardID, rawSwipe string) (user.CardCredential, error) {
	c := user.CardCredential{
		UserID:    userID,
		CardID:    cardID,
		RawSwipe:  rawSwipe,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO card_credentials (user_id, card_id, raw_swipe, created_at)
		VALUES ($1,$2,$3,$4)
	`, c.UserID, c.CardID, c.RawSwipe, c.CreatedAt)

	if err != nil {
		if IsUniqueViolation(err) {
			return user.CardCredential{}, user.ErrCardLinked
		}
		return user.CardCredential{}, err
	}
	return c, nil
}
