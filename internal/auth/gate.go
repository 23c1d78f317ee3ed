package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/campuskiosk/kioskhub/internal/cardswipe"
	"github.com/campuskiosk/kioskhub/internal/domain/user"
	"github.com/campuskiosk/kioskhub/internal/security"
	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials covers every password-path failure; callers must
	// not learn whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidResetCode covers mismatch, absence, expiry and reuse alike.
	ErrInvalidResetCode = errors.New("invalid reset code")

	ErrCardNotRegistered = errors.New("card not registered")

	ErrWeakPassword = errors.New("password does not meet policy")
)

// A six-digit "password" is treated as a reset code, never as a password.
var resetCodePattern = regexp.MustCompile(`^\d{6}$`)

// Identity is the resolved outcome of a login attempt.
type Identity struct {
	UserID          string
	Email           string
	FullName        string
	IsStaff         bool
	MustSetPassword bool
}

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	SetPassword(ctx context.Context, userID, passwordHash string, mustSetPassword bool) error
}

// ResetCodeStore persists the single-use recovery codes. The ForUpdate fetch
// plus MarkUsed inside one transaction is what makes a code consumable
// exactly once under concurrent attempts.
type ResetCodeStore interface {
	BeginTx(ctx context.Context) (Tx, error)
	LatestUnusedForUpdate(ctx context.Context, tx Tx, userID string) (user.ResetCode, error)
	MarkUsed(ctx context.Context, tx Tx, codeID string) error
	FlagPasswordReset(ctx context.Context, tx Tx, userID string) error
	InvalidateAll(ctx context.Context, tx Tx, userID string) error
	Create(ctx context.Context, tx Tx, code user.ResetCode) error
}

type CardStore interface {
	GetByCardID(ctx context.Context, cardID string) (user.CardCredential, error)
	GetByRawSwipe(ctx context.Context, raw string) (user.CardCredential, error)
}

// Gate resolves password, reset-code and card-swipe logins to an identity.
type Gate struct {
	users UserStore
	codes ResetCodeStore
	cards CardStore

	now func() time.Time
}

func NewGate(users UserStore, codes ResetCodeStore, cards CardStore) *Gate {
	return &Gate{
		users: users,
		codes: codes,
		cards: cards,
		now:   time.Now,
	}
}

// WithClock overrides the gate's time source. Tests only.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Resolve routes the attempt: a six-digit numeric password is a reset code,
// anything else goes through bcrypt.
func (g *Gate) Resolve(ctx context.Context, email, password string) (Identity, error) {
	if resetCodePattern.MatchString(password) {
		return g.resolveResetCode(ctx, email, password)
	}
	return g.resolvePassword(ctx, email, password)
}

func (g *Gate) resolvePassword(ctx context.Context, email, password string) (Identity, error) {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	if err := security.CheckPassword(u.PasswordHash, password); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return identityOf(u), nil
}

func (g *Gate) resolveResetCode(ctx context.Context, email, code string) (Identity, error) {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		// same rejection as a wrong code; do not reveal the account exists
		return Identity{}, ErrInvalidResetCode
	}

	tx, err := g.codes.BeginTx(ctx)
	if err != nil {
		return Identity{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rc, err := g.codes.LatestUnusedForUpdate(ctx, tx, u.ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, ErrInvalidResetCode
		}
		return Identity{}, err
	}

	if rc.Expired(g.now()) {
		return Identity{}, ErrInvalidResetCode
	}

	// string compare keeps leading zeros significant
	if subtle.ConstantTimeCompare([]byte(rc.Code), []byte(code)) != 1 {
		return Identity{}, ErrInvalidResetCode
	}

	if err := g.codes.MarkUsed(ctx, tx, rc.ID); err != nil {
		return Identity{}, err
	}
	// the client must replace the password before doing anything else; the
	// flag commits or rolls back together with the code consumption
	if err := g.codes.FlagPasswordReset(ctx, tx, u.ID); err != nil {
		return Identity{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Identity{}, err
	}

	id := identityOf(u)
	id.MustSetPassword = true
	return id, nil
}

// ResolveCard parses the raw stripe payload and maps it to a registered card.
// Lookup prefers the extracted institutional id and falls back to an exact
// raw-swipe match, which keeps worn cards with a damaged track usable.
func (g *Gate) ResolveCard(ctx context.Context, rawSwipe string) (Identity, error) {
	cardID, err := cardswipe.Extract(rawSwipe)

	switch {
	case err == nil:
		cred, lookupErr := g.cards.GetByCardID(ctx, cardID)
		if lookupErr == nil {
			return g.identityForCard(ctx, cred)
		}
		if !errors.Is(lookupErr, user.ErrCardNotFound) {
			return Identity{}, lookupErr
		}

	case errors.Is(err, cardswipe.ErrPaymentCard):
		return Identity{}, err

	case errors.Is(err, cardswipe.ErrNoTrackMatch):
		// fall through to the raw-swipe match below

	default:
		return Identity{}, err
	}

	cred, err := g.cards.GetByRawSwipe(ctx, rawSwipe)
	if err != nil {
		if errors.Is(err, user.ErrCardNotFound) {
			return Identity{}, ErrCardNotRegistered
		}
		return Identity{}, err
	}

	return g.identityForCard(ctx, cred)
}

func (g *Gate) identityForCard(ctx context.Context, cred user.CardCredential) (Identity, error) {
	u, err := g.users.GetByID(ctx, cred.UserID)
	if err != nil {
		return Identity{}, ErrCardNotRegistered
	}
	return identityOf(u), nil
}

// IssueResetCode supersedes any unused codes for the account and stores a
// fresh one, both inside a single transaction. The returned created flag is
// false when the email is unknown; the HTTP layer answers identically either
// way to avoid account enumeration.
func (g *Gate) IssueResetCode(ctx context.Context, email string) (code user.ResetCode, created bool, err error) {
	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.ResetCode{}, false, nil
		}
		return user.ResetCode{}, false, err
	}

	digits, err := generateCode()
	if err != nil {
		return user.ResetCode{}, false, err
	}

	code = user.ResetCode{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Code:      digits,
		Used:      false,
		CreatedAt: g.now().UTC(),
	}

	tx, err := g.codes.BeginTx(ctx)
	if err != nil {
		return user.ResetCode{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := g.codes.InvalidateAll(ctx, tx, u.ID); err != nil {
		return user.ResetCode{}, false, err
	}
	if err := g.codes.Create(ctx, tx, code); err != nil {
		return user.ResetCode{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return user.ResetCode{}, false, err
	}

	return code, true, nil
}

// SetPassword replaces the account password after strength validation and
// clears the forced-reset flag.
func (g *Gate) SetPassword(ctx context.Context, userID, newPassword string) error {
	if errs := security.ValidatePasswordStrength(newPassword); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrWeakPassword, errs[0])
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return g.users.SetPassword(ctx, userID, hash, false)
}

func identityOf(u user.User) Identity {
	return Identity{
		UserID:          u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		IsStaff:         u.IsStaff,
		MustSetPassword: u.MustSetPassword,
	}
}

// generateCode returns a crypto-random zero-padded six-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
