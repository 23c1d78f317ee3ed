package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campuskiosk/kioskhub/internal/auth"
	"github.com/campuskiosk/kioskhub/internal/calendar"
	"github.com/campuskiosk/kioskhub/internal/config"
	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/domain/reservation"
	"github.com/campuskiosk/kioskhub/internal/domain/room"
	"github.com/campuskiosk/kioskhub/internal/domain/user"
	"github.com/campuskiosk/kioskhub/internal/http/middlewares"
	"github.com/campuskiosk/kioskhub/internal/jobs"
	"github.com/campuskiosk/kioskhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

type ReservationStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, req reservation.CreateRequest) (reservation.Reservation, error)
	GetByID(ctx context.Context, id string) (reservation.Reservation, error)
	Cancel(ctx context.Context, id, reason string) (reservation.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]reservation.Reservation, error)
	ListByDate(ctx context.Context, date time.Time) ([]reservation.Reservation, error)
	BulkCancel(ctx context.Context, ids []string, reason string) (int, error)
}

type JobTxEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	CreateTx(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error)
}

type RoomReader interface {
	GetByID(ctx context.Context, id string) (room.Room, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type ReservationsHandler struct {
	store    ReservationStore
	rooms    RoomReader
	users    UserReader
	enqueuer JobTxEnqueuer
	prom     *observability.Prom
	baseURL  string
}

func NewReservationsHandler(store ReservationStore, rooms RoomReader, users UserReader, enqueuer JobTxEnqueuer, prom *observability.Prom, baseURL string) *ReservationsHandler {
	return &ReservationsHandler{
		store:    store,
		rooms:    rooms,
		users:    users,
		enqueuer: enqueuer,
		prom:     prom,
		baseURL:  baseURL,
	}
}

func (h *ReservationsHandler) booking(outcome string) {
	if h.prom != nil {
		h.prom.BookingsTotal.WithLabelValues(outcome).Inc()
	}
}

// Create books a room. The conflict check, the insert and the confirmation
// email job land in one transaction: if anything fails, nothing happened.
func (h *ReservationsHandler) Create(ctx *gin.Context) {
	var req reservation.CreateRequest
	if !BindJSON(ctx, &req) {
		h.booking("rejected")
		return
	}

	userID, _ := middlewares.UserIDFromContext(ctx)
	email, _ := middlewares.EmailFromContext(ctx)

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)
	if err != nil {
		RespondUnauthorized(ctx, "unauthorized", "Account no longer exists.")
		return
	}
	req.UserID = u.ID
	req.FullName = u.FullName
	req.Email = email

	rm, err := h.rooms.GetByID(cctx, req.RoomID)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			h.booking("rejected")
			RespondNotFound(ctx, "Room not found.")
			return
		}
		RespondInternal(ctx, "Could not create reservation")
		return
	}

	tx, err := h.store.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not create reservation")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	res, err := h.store.CreateTx(cctx, tx, req)
	if err != nil {
		h.respondCreateError(ctx, err)
		return
	}

	payload, err := jobs.EncodePayload(jobs.TypeReservationConfirmation, jobs.ReservationConfirmationPayload{
		ReservationID: res.ID,
		RoomName:      rm.Name,
		Date:          res.Date.Format(reservation.DateLayout),
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		Email:         res.Email,
		FullName:      res.FullName,
		RequestedAt:   time.Now().UTC(),
	})
	if err != nil {
		RespondInternal(ctx, "Could not create reservation")
		return
	}

	key := "reservation_confirmation:" + res.ID
	if _, err := h.enqueuer.CreateTx(cctx, tx, job.CreateRequest{
		Type:           string(jobs.TypeReservationConfirmation),
		Payload:        payload,
		IdempotencyKey: &key,
	}); err != nil {
		RespondInternal(ctx, "Could not create reservation")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not create reservation")
		return
	}

	h.booking("created")
	ctx.JSON(http.StatusCreated, res)
}

func (h *ReservationsHandler) respondCreateError(ctx *gin.Context, err error) {
	var conflict *reservation.ConflictError
	switch {
	case errors.As(err, &conflict):
		h.booking("conflict")
		RespondConflict(ctx, "reservation_conflict", "The room is already booked for that window.", gin.H{
			"conflictWith": gin.H{
				"date":      conflict.Existing.Date.Format(reservation.DateLayout),
				"startTime": conflict.Existing.StartTime,
				"endTime":   conflict.Existing.EndTime,
			},
		})
	case errors.Is(err, reservation.ErrInvalidTime):
		h.booking("rejected")
		RespondBadRequest(ctx, "Times must be HH:MM and the date YYYY-MM-DD.", nil)
	case errors.Is(err, room.ErrNotFound):
		h.booking("rejected")
		RespondNotFound(ctx, "Room not found.")
	default:
		RespondInternal(ctx, "Could not create reservation")
	}
}

func (h *ReservationsHandler) ListMine(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.store.ListByUser(cctx, userID)
	if err != nil {
		RespondInternal(ctx, "Could not list reservations")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

// ListByDate powers the kiosk's day grid. Overnight rows from the previous
// evening appear too, since they occupy part of the requested day.
func (h *ReservationsHandler) ListByDate(ctx *gin.Context) {
	dateStr := ctx.Query("date")
	if dateStr == "" {
		dateStr = time.Now().Format(reservation.DateLayout)
	}

	date, err := reservation.ParseDate(dateStr)
	if err != nil {
		RespondBadRequest(ctx, "date must be YYYY-MM-DD", nil)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.store.ListByDate(cctx, date)
	if err != nil {
		RespondInternal(ctx, "Could not list reservations")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"date": dateStr, "items": items})
}

func (h *ReservationsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	res, err := h.store.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			RespondNotFound(ctx, "Reservation not found.")
			return
		}
		RespondInternal(ctx, "Could not load reservation")
		return
	}

	if !h.canAccess(ctx, res) {
		RespondForbidden(ctx, "Not your reservation.")
		return
	}

	ctx.JSON(http.StatusOK, res)
}

// Calendar returns the add-to-calendar links and ICS body for a reservation.
func (h *ReservationsHandler) Calendar(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	res, err := h.store.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			RespondNotFound(ctx, "Reservation not found.")
			return
		}
		RespondInternal(ctx, "Could not load reservation")
		return
	}

	if !h.canAccess(ctx, res) {
		RespondForbidden(ctx, "Not your reservation.")
		return
	}

	window, err := res.Effective()
	if err != nil {
		RespondInternal(ctx, "Reservation has a malformed window")
		return
	}

	roomName := res.RoomID
	if rm, err := h.rooms.GetByID(cctx, res.RoomID); err == nil {
		roomName = rm.Name
	}

	links := calendar.BuildLinks(roomName, window.From, window.To, h.baseURL+"/reservations/"+res.ID)
	ctx.JSON(http.StatusOK, gin.H{
		"links": links,
		"ics":   calendar.ICS(roomName, window.From, window.To, res.ID, res.Email),
	})
}

func (h *ReservationsHandler) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")

	var req reservation.CancelRequest
	if ctx.Request.ContentLength > 0 && !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	existing, err := h.store.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			RespondNotFound(ctx, "Reservation not found.")
			return
		}
		RespondInternal(ctx, "Could not cancel reservation")
		return
	}

	if !h.canAccess(ctx, existing) {
		RespondForbidden(ctx, "Not your reservation.")
		return
	}

	res, err := h.store.Cancel(cctx, id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, reservation.ErrAlreadyCancelled):
			RespondConflict(ctx, "already_cancelled", "Reservation was already cancelled.", nil)
		case errors.Is(err, reservation.ErrNotFound):
			RespondNotFound(ctx, "Reservation not found.")
		default:
			RespondInternal(ctx, "Could not cancel reservation")
		}
		return
	}

	h.enqueueCancellation(cctx, res, req.Reason)
	ctx.JSON(http.StatusOK, res)
}

type BulkCancelRequest struct {
	IDs    []string `json:"ids" binding:"required,min=1,dive,uuid4"`
	Reason string   `json:"reason" binding:"max=500"`
}

// BulkCancel lets staff clear a set of reservations at once, for room
// maintenance or event takeovers. Rows already cancelled are skipped.
func (h *ReservationsHandler) BulkCancel(ctx *gin.Context) {
	var req BulkCancelRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	affected, err := h.store.BulkCancel(cctx, req.IDs, req.Reason)
	if err != nil {
		RespondInternal(ctx, "Could not cancel reservations")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"requested": len(req.IDs),
		"cancelled": affected,
	})
}

func (h *ReservationsHandler) canAccess(ctx *gin.Context, res reservation.Reservation) bool {
	userID, _ := middlewares.UserIDFromContext(ctx)
	if res.UserID == userID {
		return true
	}
	role, _ := middlewares.RoleFromContext(ctx)
	return role == auth.RoleStaff
}

func (h *ReservationsHandler) enqueueCancellation(cctx context.Context, res reservation.Reservation, reason string) {
	roomName := res.RoomID
	if rm, err := h.rooms.GetByID(cctx, res.RoomID); err == nil {
		roomName = rm.Name
	}

	payload, err := jobs.EncodePayload(jobs.TypeReservationCancellation, jobs.ReservationCancellationPayload{
		ReservationID: res.ID,
		RoomName:      roomName,
		Date:          res.Date.Format(reservation.DateLayout),
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		Email:         res.Email,
		FullName:      res.FullName,
		Reason:        reason,
	})
	if err != nil {
		return
	}

	// best effort: a lost cancellation email does not undo the cancel
	key := "reservation_cancellation:" + res.ID
	_, _ = h.enqueuer.Create(cctx, job.CreateRequest{
		Type:           string(jobs.TypeReservationCancellation),
		Payload:        payload,
		IdempotencyKey: &key,
	})
}
