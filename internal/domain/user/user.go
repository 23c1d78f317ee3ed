package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrCardNotFound = errors.New("card credential not found")
	ErrCardLinked   = errors.New("card already linked")
)

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FullName     string `json:"fullName"`
	IsStaff      bool   `json:"isStaff"`

	// forces the client into the set-password overlay after a
	// reset-code login
	MustSetPassword bool `json:"mustSetPassword"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResetCode is a single-use six-digit recovery credential. Issuing a new one
// supersedes any unused predecessor; the code expires CodeTTL after CreatedAt.
type ResetCode struct {
	ID        string
	UserID    string
	Code      string
	Used      bool
	CreatedAt time.Time
}

const CodeTTL = 10 * time.Minute

func (c ResetCode) Expired(now time.Time) bool {
	return now.Sub(c.CreatedAt) >= CodeTTL
}

// CardCredential links one magnetic-stripe card to one user. CardID is the
// institutional id extracted from the swipe; RawSwipe keeps the full payload
// for exact-match fallback when track parsing fails on a worn card.
type CardCredential struct {
	UserID    string
	CardID    string
	RawSwipe  string
	CreatedAt time.Time
}
