package postgres

import (
	"context"
	"errors"

	"github.com/campuskiosk/kioskhub/internal/auth"
	"github.com/campuskiosk/kioskhub/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResetCodesRepo backs the authentication gate's single-use recovery codes.
// Consumption and supersession both run inside caller-owned transactions so
// two concurrent attempts cannot spend or mint a code twice.
type ResetCodesRepo struct {
	pool *pgxpool.Pool
}

func NewResetCodesRepo(pool *pgxpool.Pool) *ResetCodesRepo {
	return &ResetCodesRepo{pool: pool}
}

func (r *ResetCodesRepo) BeginTx(ctx context.Context) (auth.Tx, error) {
	return r.pool.BeginTx(ctx, pgx.TxOptions{})
}

// LatestUnusedForUpdate row-locks the newest unused code for the user.
func (r *ResetCodesRepo) LatestUnusedForUpdate(ctx context.Context, tx auth.Tx, userID string) (user.ResetCode, error) {
	pgtx, ok := tx.(pgx.Tx)
	if !ok {
		return user.ResetCode{}, errors.New("reset codes: foreign transaction type")
	}

	var rc user.ResetCode
	err := pgtx.QueryRow(ctx, `
		SELECT id, user_id, code, used, created_at
		FROM reset_codes
		WHERE user_id = $1 AND NOT used
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, userID).Scan(&rc.ID, &rc.UserID, &rc.Code, &rc.Used, &rc.CreatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ResetCode{}, user.ErrNotFound
		}
		return user.ResetCode{}, err
	}

	return rc, nil
}

func (r *ResetCodesRepo) MarkUsed(ctx context.Context, tx auth.Tx, codeID string) error {
	pgtx, ok := tx.(pgx.Tx)
	if !ok {
		return errors.New("reset codes: foreign transaction type")
	}

	tag, err := pgtx.Exec(ctx, `
		UPDATE reset_codes SET used = true WHERE id = $1 AND NOT used
	`, codeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// FlagPasswordReset raises must_set_password on the user row in the same
// transaction that consumes the code, so a burned code always leaves the
// forced-reset flag behind or rolls back with it.
func (r *ResetCodesRepo) FlagPasswordReset(ctx context.Context, tx auth.Tx, userID string) error {
	pgtx, ok := tx.(pgx.Tx)
	if !ok {
		return errors.New("reset codes: foreign transaction type")
	}

	tag, err := pgtx.Exec(ctx, `
		UPDATE users SET must_set_password = true WHERE id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// InvalidateAll burns every outstanding code for the user; issuing a new
// code always supersedes the old ones in the same transaction.
func (r *ResetCodesRepo) InvalidateAll(ctx context.Context, tx auth.Tx, userID string) error {
	pgtx, ok := tx.(pgx.Tx)
	if !ok {
		return errors.New("reset codes: foreign transaction type")
	}

	_, err := pgtx.Exec(ctx, `
		UPDATE reset_codes SET used = true WHERE user_id = $1 AND NOT used
	`, userID)
	return err
}

func (r *ResetCodesRepo) Create(ctx context.Context, tx auth.Tx, code user.ResetCode) error {
	pgtx, ok := tx.(pgx.Tx)
	if !ok {
		return errors.New("reset codes: foreign transaction type")
	}

	_, err := pgtx.Exec(ctx, `
		INSERT INTO reset_codes (id, user_id, code, used, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, code.ID, code.UserID, code.Code, code.Used, code.CreatedAt)
	return err
}
