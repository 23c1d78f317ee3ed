package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/campuskiosk/kioskhub/internal/auth"
	"github.com/campuskiosk/kioskhub/internal/cardswipe"
	"github.com/campuskiosk/kioskhub/internal/config"
	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/domain/user"
	"github.com/campuskiosk/kioskhub/internal/http/middlewares"
	"github.com/campuskiosk/kioskhub/internal/jobs"
	"github.com/campuskiosk/kioskhub/internal/repo/postgres"
	"github.com/campuskiosk/kioskhub/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// campus accounts only; staff use the bare domain, students the mavs one
var allowedEmailDomains = []string{"uta.edu", "mavs.uta.edu"}

// LoginGate resolves the three credential shapes the kiosk accepts.
type LoginGate interface {
	Resolve(ctx context.Context, email, password string) (auth.Identity, error)
	ResolveCard(ctx context.Context, rawSwipe string) (auth.Identity, error)
	IssueResetCode(ctx context.Context, email string) (user.ResetCode, bool, error)
	SetPassword(ctx context.Context, userID, newPassword string) error
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, email, passwordHash, fullName string, isStaff bool) (user.User, error)
}

type CardLinker interface {
	Link(ctx context.Context, userID, cardID, rawSwipe string) (user.CardCredential, error)
}

type JobEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

type RefreshTokenStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, row postgres.RefreshTokenRow) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (postgres.RefreshTokenRow, error)
	Revoke(ctx context.Context, tx pgx.Tx, id string, replacedBy *string) error
}

type AuthHandler struct {
	gate         LoginGate
	users        UserStore
	cards        CardLinker
	enqueuer     JobEnqueuer
	jwt          *auth.Manager
	refreshStore RefreshTokenStore
	cfg          config.Config
}

func NewAuthHandler(gate LoginGate, users UserStore, cards CardLinker, enqueuer JobEnqueuer, jwtManager *auth.Manager, refreshStore RefreshTokenStore, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		gate:         gate,
		users:        users,
		cards:        cards,
		enqueuer:     enqueuer,
		jwt:          jwtManager,
		refreshStore: refreshStore,
		cfg:          cfg,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"fullName" binding:"required,min=2"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CardLoginRequest struct {
	Swipe string `json:"swipe" binding:"required"`
}

type RequestResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type SetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest
	if !BindJSON(ctx, &req) {
		return
	}

	if !emailDomainAllowed(req.Email) {
		RespondBadRequest(ctx, "Use your campus email address.", gin.H{
			"allowedDomains": allowedEmailDomains,
		})
		return
	}

	if errs := security.ValidatePasswordStrength(req.Password); len(errs) > 0 {
		RespondError(ctx, http.StatusBadRequest, "weak_password", "Password does not meet policy.", gin.H{
			"problems": errs,
		})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		RespondInternal(ctx, "Could not create account")
		return
	}

	u, err := h.users.Create(cctx, req.Email, hash, req.FullName, false)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			RespondConflict(ctx, "email_taken", "Email is already in use.", nil)
			return
		}
		RespondInternal(ctx, "Could not create account")
		return
	}

	h.issueSession(ctx, cctx, identityOf(u), http.StatusCreated)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	id, err := h.gate.Resolve(cctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidResetCode):
			RespondUnauthorized(ctx, "invalid_reset_code", "Reset code is invalid or expired.")
		case errors.Is(err, auth.ErrInvalidCredentials):
			RespondUnauthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		default:
			RespondInternal(ctx, "Could not sign in")
		}
		return
	}

	h.issueSession(ctx, cctx, id, http.StatusOK)
}

func (h *AuthHandler) CardLogin(ctx *gin.Context) {
	var req CardLoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	id, err := h.gate.ResolveCard(cctx, req.Swipe)
	if err != nil {
		switch {
		case errors.Is(err, cardswipe.ErrPaymentCard):
			RespondBadRequest(ctx, "Payment cards cannot be used to sign in.", gin.H{
				"reason": "payment_card",
			})
		case errors.Is(err, auth.ErrCardNotRegistered):
			RespondUnauthorized(ctx, "card_not_registered", "Card is not linked to an account.")
		default:
			RespondInternal(ctx, "Could not sign in")
		}
		return
	}

	h.issueSession(ctx, cctx, id, http.StatusOK)
}

// RequestReset answers identically for known and unknown accounts; only a
// known account gets a code emailed to it.
func (h *AuthHandler) RequestReset(ctx *gin.Context) {
	var req RequestResetRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	code, created, err := h.gate.IssueResetCode(cctx, req.Email)
	if err != nil {
		RespondInternal(ctx, "Could not process request")
		return
	}

	if created {
		u, err := h.users.GetByEmail(cctx, req.Email)
		if err == nil {
			payload, encErr := jobs.EncodePayload(jobs.TypeResetCodeEmail, jobs.ResetCodeEmailPayload{
				CodeID:   code.ID,
				Email:    u.Email,
				FullName: u.FullName,
				Code:     code.Code,
			})
			if encErr == nil {
				key := "reset_code:" + code.ID
				_, _ = h.enqueuer.Create(cctx, job.CreateRequest{
					Type:           string(jobs.TypeResetCodeEmail),
					Payload:        payload,
					IdempotencyKey: &key,
				})
			}
		}
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"status": "ok",
		"detail": "If the account exists, a code is on its way.",
	})
}

func (h *AuthHandler) SetPassword(ctx *gin.Context) {
	var req SetPasswordRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.gate.SetPassword(cctx, userID, req.Password); err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			RespondError(ctx, http.StatusBadRequest, "weak_password", "Password does not meet policy.", gin.H{
				"reason": err.Error(),
			})
			return
		}
		RespondInternal(ctx, "Could not update password")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) LinkCard(ctx *gin.Context) {
	var req CardLoginRequest
	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cardID, err := cardswipe.Extract(req.Swipe)
	if err != nil {
		if errors.Is(err, cardswipe.ErrPaymentCard) {
			RespondBadRequest(ctx, "Payment cards cannot be linked.", gin.H{"reason": "payment_card"})
			return
		}
		RespondBadRequest(ctx, "Could not read an id from the swipe.", gin.H{"reason": "no_track_match"})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	cred, err := h.cards.Link(cctx, userID, cardID, req.Swipe)
	if err != nil {
		if errors.Is(err, user.ErrCardLinked) {
			RespondConflict(ctx, "card_linked", "Card is already linked to an account.", nil)
			return
		}
		RespondInternal(ctx, "Could not link card")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"cardId": cred.CardID})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())
	if err != nil || raw == "" {
		RespondUnauthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	row, err := h.refreshStore.GetForUpdate(cctx, tx, claims.JTI)
	if err != nil {
		RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	if row.RevokedAt != nil {
		RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		RespondUnauthorized(ctx, "expired_refresh", "Refresh token expired.")
		return
	}
	// hash must match the presented token, not just the id
	if row.TokenHash != h.jwt.HashRefreshToken(raw) {
		RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
		return
	}

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(row.UserID, claims.Email, claims.Role)
	if err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := h.refreshStore.Revoke(cctx, tx, row.ID, &newJTI); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := h.refreshStore.Create(cctx, tx, postgres.RefreshTokenRow{
		ID:        newJTI,
		UserID:    row.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(row.UserID, claims.Email, claims.Role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)
	ctx.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.refreshCookieName())
	if err != nil || raw == "" {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)
	if err != nil {
		h.clearRefreshCookie(ctx)
		ctx.Status(http.StatusNoContent)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	tx, err := h.refreshStore.BeginTx(cctx)
	if err == nil {
		defer func() { _ = tx.Rollback(cctx) }()
		_ = h.refreshStore.Revoke(cctx, tx, claims.JTI, nil)
		_ = tx.Commit(cctx)
	}

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

// issueSession writes the refresh cookie and answers with the access token
// and the resolved identity.
func (h *AuthHandler) issueSession(ctx *gin.Context, cctx context.Context, id auth.Identity, status int) {
	role := auth.RoleUser
	if id.IsStaff {
		role = auth.RoleStaff
	}

	accessToken, err := h.jwt.GenerateAccessToken(id.UserID, id.Email, role)
	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	rawRefresh, jti, expiresAt, err := h.jwt.GenerateRefreshToken(id.UserID, id.Email, role)
	if err != nil {
		RespondInternal(ctx, "Could not generate refresh token")
		return
	}

	if err := h.storeRefreshToken(cctx, id.UserID, jti, rawRefresh, expiresAt); err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.setRefreshCookie(ctx, rawRefresh, expiresAt)

	ctx.JSON(status, gin.H{
		"accessToken":     accessToken,
		"mustSetPassword": id.MustSetPassword,
		"user": gin.H{
			"id":       id.UserID,
			"email":    id.Email,
			"fullName": id.FullName,
			"isStaff":  id.IsStaff,
		},
	})
}

func (h *AuthHandler) storeRefreshToken(ctx context.Context, userID, jti, raw string, expiresAt time.Time) error {
	tx, err := h.refreshStore.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.refreshStore.Create(ctx, tx, postgres.RefreshTokenRow{
		ID:        jti,
		UserID:    userID,
		TokenHash: h.jwt.HashRefreshToken(raw),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (h *AuthHandler) refreshCookieName() string { return "refresh_token" }

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(h.refreshCookieName(), raw, maxAge, "/auth", "", secure, true)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(h.refreshCookieName(), "", -1, "/auth", "", secure, true)
}

func emailDomainAllowed(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range allowedEmailDomains {
		if domain == d {
			return true
		}
	}
	return false
}

func identityOf(u user.User) auth.Identity {
	return auth.Identity{
		UserID:          u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		IsStaff:         u.IsStaff,
		MustSetPassword: u.MustSetPassword,
	}
}
