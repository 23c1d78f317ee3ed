package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuskiosk/kioskhub/internal/cardswipe"
	"github.com/campuskiosk/kioskhub/internal/domain/user"
	"github.com/campuskiosk/kioskhub/internal/security"
)

// in-memory fakes in the style of the handler tests: behavior lives in
// fn fields so each case overrides only what it needs

type fakeUserStore struct {
	byEmail map[string]user.User
	byID    map[string]user.User

	setPasswordFn func(ctx context.Context, userID, hash string, mustSet bool) error
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) SetPassword(ctx context.Context, userID, hash string, mustSet bool) error {
	if f.setPasswordFn != nil {
		return f.setPasswordFn(ctx, userID, hash, mustSet)
	}
	return nil
}

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeCodeStore struct {
	codes  []user.ResetCode
	lastTx *fakeTx

	flagFn    func(ctx context.Context, tx Tx, userID string) error
	flagCalls []string
}

func (f *fakeCodeStore) BeginTx(ctx context.Context) (Tx, error) {
	f.lastTx = &fakeTx{}
	return f.lastTx, nil
}

func (f *fakeCodeStore) LatestUnusedForUpdate(ctx context.Context, tx Tx, userID string) (user.ResetCode, error) {
	var newest *user.ResetCode
	for i := range f.codes {
		c := &f.codes[i]
		if c.UserID != userID || c.Used {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return user.ResetCode{}, user.ErrNotFound
	}
	return *newest, nil
}

func (f *fakeCodeStore) MarkUsed(ctx context.Context, tx Tx, codeID string) error {
	for i := range f.codes {
		if f.codes[i].ID == codeID {
			f.codes[i].Used = true
			return nil
		}
	}
	return user.ErrNotFound
}

func (f *fakeCodeStore) FlagPasswordReset(ctx context.Context, tx Tx, userID string) error {
	if f.flagFn != nil {
		return f.flagFn(ctx, tx, userID)
	}
	f.flagCalls = append(f.flagCalls, userID)
	return nil
}

func (f *fakeCodeStore) InvalidateAll(ctx context.Context, tx Tx, userID string) error {
	for i := range f.codes {
		if f.codes[i].UserID == userID {
			f.codes[i].Used = true
		}
	}
	return nil
}

func (f *fakeCodeStore) Create(ctx context.Context, tx Tx, code user.ResetCode) error {
	f.codes = append(f.codes, code)
	return nil
}

type fakeCardStore struct {
	byCardID map[string]user.CardCredential
	byRaw    map[string]user.CardCredential
}

func (f *fakeCardStore) GetByCardID(ctx context.Context, cardID string) (user.CardCredential, error) {
	c, ok := f.byCardID[cardID]
	if !ok {
		return user.CardCredential{}, user.ErrCardNotFound
	}
	return c, nil
}

func (f *fakeCardStore) GetByRawSwipe(ctx context.Context, raw string) (user.CardCredential, error) {
	c, ok := f.byRaw[raw]
	if !ok {
		return user.CardCredential{}, user.ErrCardNotFound
	}
	return c, nil
}

func newTestGate(t *testing.T, users *fakeUserStore, codes *fakeCodeStore, cards *fakeCardStore) *Gate {
	t.Helper()
	if users == nil {
		users = &fakeUserStore{byEmail: map[string]user.User{}, byID: map[string]user.User{}}
	}
	if codes == nil {
		codes = &fakeCodeStore{}
	}
	if cards == nil {
		cards = &fakeCardStore{byCardID: map[string]user.CardCredential{}, byRaw: map[string]user.CardCredential{}}
	}
	return NewGate(users, codes, cards)
}

func testUser(t *testing.T, password string) user.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return user.User{
		ID:           "u-1",
		Email:        "jane@mavs.uta.edu",
		PasswordHash: hash,
		FullName:     "Jane Doe",
	}
}

func TestResolvePassword(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}
	gate := newTestGate(t, users, nil, nil)

	id, err := gate.Resolve(context.Background(), u.Email, "Sup3r$ecret")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.UserID != u.ID || id.MustSetPassword {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// wrong password and unknown email fail identically
	_, errWrongPass := gate.Resolve(context.Background(), u.Email, "wrong-password")
	_, errNoUser := gate.Resolve(context.Background(), "ghost@mavs.uta.edu", "whatever1!")

	if !errors.Is(errWrongPass, ErrInvalidCredentials) || !errors.Is(errNoUser, ErrInvalidCredentials) {
		t.Fatalf("want uniform ErrInvalidCredentials, got %v / %v", errWrongPass, errNoUser)
	}
}

func TestResolveResetCodeSingleUse(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	codes := &fakeCodeStore{codes: []user.ResetCode{{
		ID:        "code-1",
		UserID:    u.ID,
		Code:      "042137",
		CreatedAt: now.Add(-2 * time.Minute),
	}}}

	gate := newTestGate(t, users, codes, nil).WithClock(func() time.Time { return now })

	id, err := gate.Resolve(context.Background(), u.Email, "042137")
	if err != nil {
		t.Fatalf("reset-code login: %v", err)
	}
	if !id.MustSetPassword {
		t.Fatalf("reset-code login must force a password change")
	}
	if len(codes.flagCalls) != 1 {
		t.Fatalf("must_set_password flag not persisted")
	}
	if codes.lastTx == nil || !codes.lastTx.committed {
		t.Fatalf("code consumption transaction not committed")
	}

	// the same code is spent now
	if _, err := gate.Resolve(context.Background(), u.Email, "042137"); !errors.Is(err, ErrInvalidResetCode) {
		t.Fatalf("second use of the code: got %v, want ErrInvalidResetCode", err)
	}
}

func TestResolveResetCodeFlagFailureRollsBack(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	codes := &fakeCodeStore{codes: []user.ResetCode{{
		ID:        "code-1",
		UserID:    u.ID,
		Code:      "042137",
		CreatedAt: now.Add(-2 * time.Minute),
	}}}
	codes.flagFn = func(ctx context.Context, tx Tx, userID string) error {
		return errors.New("flag write failed")
	}

	gate := newTestGate(t, users, codes, nil).WithClock(func() time.Time { return now })

	// the flag write shares the code-consuming transaction: when it fails
	// the login errors and nothing commits, so the code is not burned
	if _, err := gate.Resolve(context.Background(), u.Email, "042137"); err == nil {
		t.Fatalf("login should fail when the forced-reset flag cannot be written")
	}
	if codes.lastTx == nil || codes.lastTx.committed {
		t.Fatalf("transaction must not commit when the flag write fails")
	}
	if !codes.lastTx.rolledBack {
		t.Fatalf("transaction should roll back, keeping the code spendable")
	}
}

func TestResolveResetCodeRejections(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		email string
		code  string
		row   *user.ResetCode
	}{
		{
			name:  "unknown email",
			email: "ghost@mavs.uta.edu",
			code:  "123456",
		},
		{
			name:  "no unused code on file",
			email: u.Email,
			code:  "123456",
		},
		{
			name:  "wrong digits",
			email: u.Email,
			code:  "999999",
			row:   &user.ResetCode{ID: "c1", UserID: u.ID, Code: "123456", CreatedAt: now.Add(-time.Minute)},
		},
		{
			name:  "expired code",
			email: u.Email,
			code:  "123456",
			row:   &user.ResetCode{ID: "c1", UserID: u.ID, Code: "123456", CreatedAt: now.Add(-11 * time.Minute)},
		},
		{
			name:  "exactly at the ttl boundary",
			email: u.Email,
			code:  "123456",
			row:   &user.ResetCode{ID: "c1", UserID: u.ID, Code: "123456", CreatedAt: now.Add(-user.CodeTTL)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}
			codes := &fakeCodeStore{}
			if tc.row != nil {
				codes.codes = append(codes.codes, *tc.row)
			}

			gate := newTestGate(t, users, codes, nil).WithClock(func() time.Time { return now })

			if _, err := gate.Resolve(context.Background(), tc.email, tc.code); !errors.Is(err, ErrInvalidResetCode) {
				t.Fatalf("got %v, want ErrInvalidResetCode", err)
			}
		})
	}
}

func TestIssueResetCodeSupersedes(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}
	codes := &fakeCodeStore{}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	gate := newTestGate(t, users, codes, nil).WithClock(func() time.Time { return now })

	first, created, err := gate.IssueResetCode(context.Background(), u.Email)
	if err != nil || !created {
		t.Fatalf("first issue: created=%v err=%v", created, err)
	}
	if len(first.Code) != 6 {
		t.Fatalf("code %q is not six digits", first.Code)
	}

	second, created, err := gate.IssueResetCode(context.Background(), u.Email)
	if err != nil || !created {
		t.Fatalf("second issue: created=%v err=%v", created, err)
	}

	// the first code is now invalid even with the right digits; skip the
	// probe on the (1-in-a-million) re-roll of identical digits
	if first.Code != second.Code {
		if _, err := gate.Resolve(context.Background(), u.Email, first.Code); !errors.Is(err, ErrInvalidResetCode) {
			t.Fatalf("superseded code still accepted: %v", err)
		}
	}

	// the fresh code works
	if _, err := gate.Resolve(context.Background(), u.Email, second.Code); err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
}

func TestIssueResetCodeUnknownEmail(t *testing.T) {
	gate := newTestGate(t, nil, nil, nil)

	_, created, err := gate.IssueResetCode(context.Background(), "ghost@mavs.uta.edu")
	if err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if created {
		t.Fatalf("no code should be created for an unknown email")
	}
}

func TestResolveCard(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}

	cards := &fakeCardStore{
		byCardID: map[string]user.CardCredential{
			"6391234567890123": {UserID: u.ID, CardID: "6391234567890123"},
		},
		byRaw: map[string]user.CardCredential{
			"unparseable-but-known": {UserID: u.ID, CardID: ""},
		},
	}

	gate := newTestGate(t, users, nil, cards)

	// track 2 id match
	id, err := gate.ResolveCard(context.Background(), ";6391234567890123=2512101?")
	if err != nil {
		t.Fatalf("card login: %v", err)
	}
	if id.UserID != u.ID {
		t.Fatalf("wrong identity: %+v", id)
	}

	// raw-swipe fallback when no track parses
	if _, err := gate.ResolveCard(context.Background(), "unparseable-but-known"); err != nil {
		t.Fatalf("raw-swipe fallback: %v", err)
	}

	// unknown card
	if _, err := gate.ResolveCard(context.Background(), ";9991234567890=2512?"); !errors.Is(err, ErrCardNotRegistered) {
		t.Fatalf("got %v, want ErrCardNotRegistered", err)
	}

	// payment card is rejected outright, no lookup fallback
	if _, err := gate.ResolveCard(context.Background(), ";4111111111111111=2512101?"); !errors.Is(err, cardswipe.ErrPaymentCard) {
		t.Fatalf("got %v, want ErrPaymentCard", err)
	}
}

func TestSetPasswordPolicy(t *testing.T) {
	u := testUser(t, "Sup3r$ecret")
	users := &fakeUserStore{byEmail: map[string]user.User{u.Email: u}, byID: map[string]user.User{u.ID: u}}

	var gotHash string
	var gotMustSet bool
	users.setPasswordFn = func(ctx context.Context, userID, hash string, mustSet bool) error {
		gotHash = hash
		gotMustSet = mustSet
		return nil
	}

	gate := newTestGate(t, users, nil, nil)

	if err := gate.SetPassword(context.Background(), u.ID, "weak"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password accepted: %v", err)
	}

	if err := gate.SetPassword(context.Background(), u.ID, "N3w$trongPass"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if gotMustSet {
		t.Fatalf("set-password must clear the forced-reset flag")
	}
	if err := security.CheckPassword(gotHash, "N3w$trongPass"); err != nil {
		t.Fatalf("stored hash does not match the new password: %v", err)
	}
}
