package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campuskiosk/kioskhub/internal/cache"
	"github.com/campuskiosk/kioskhub/internal/config"
	"github.com/campuskiosk/kioskhub/internal/domain/room"
	"github.com/gin-gonic/gin"
)

const roomListCacheKey = "rooms:list"

type RoomStore interface {
	List(ctx context.Context) ([]room.Room, error)
	GetByID(ctx context.Context, id string) (room.Room, error)
	Create(ctx context.Context, req room.CreateRequest) (room.Room, error)
	Update(ctx context.Context, id string, req room.UpdateRequest) (room.Room, error)
	Delete(ctx context.Context, id string) error
}

type RoomsHandler struct {
	store RoomStore
	cache *cache.Cache
}

func NewRoomsHandler(store RoomStore, c *cache.Cache) *RoomsHandler {
	return &RoomsHandler{store: store, cache: c}
}

// List is the kiosk's room picker. The catalog changes rarely, so it is
// served from cache and refilled on miss.
func (h *RoomsHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	var rooms []room.Room
	if h.cache != nil && h.cache.GetJSON(cctx, roomListCacheKey, &rooms) {
		ctx.JSON(http.StatusOK, gin.H{"items": rooms})
		return
	}

	rooms, err := h.store.List(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not list rooms")
		return
	}

	if h.cache != nil {
		h.cache.SetJSON(cctx, roomListCacheKey, rooms)
	}

	ctx.JSON(http.StatusOK, gin.H{"items": rooms})
}

func (h *RoomsHandler) GetByID(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	rm, err := h.store.GetByID(cctx, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			RespondNotFound(ctx, "Room not found.")
			return
		}
		RespondInternal(ctx, "Could not load room")
		return
	}

	ctx.JSON(http.StatusOK, rm)
}

func (h *RoomsHandler) Create(ctx *gin.Context) {
	var req room.CreateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	rm, err := h.store.Create(cctx, req)
	if err != nil {
		RespondInternal(ctx, "Could not create room")
		return
	}

	h.invalidate(cctx)
	ctx.JSON(http.StatusCreated, rm)
}

func (h *RoomsHandler) Update(ctx *gin.Context) {
	var req room.UpdateRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	rm, err := h.store.Update(cctx, ctx.Param("id"), req)
	if err != nil {
		if errors.Is(err, room.ErrNotFound) {
			RespondNotFound(ctx, "Room not found.")
			return
		}
		RespondInternal(ctx, "Could not update room")
		return
	}

	h.invalidate(cctx)
	ctx.JSON(http.StatusOK, rm)
}

func (h *RoomsHandler) Delete(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.store.Delete(cctx, ctx.Param("id")); err != nil {
		if errors.Is(err, room.ErrNotFound) {
			RespondNotFound(ctx, "Room not found.")
			return
		}
		RespondInternal(ctx, "Could not delete room")
		return
	}

	h.invalidate(cctx)
	ctx.Status(http.StatusNoContent)
}

func (h *RoomsHandler) invalidate(ctx context.Context) {
	if h.cache != nil {
		h.cache.Delete(ctx, roomListCacheKey)
	}
}
