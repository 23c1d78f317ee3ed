package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campuskiosk/kioskhub/internal/cache"
	"github.com/campuskiosk/kioskhub/internal/config"
	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/domain/supply"
	"github.com/campuskiosk/kioskhub/internal/http/middlewares"
	"github.com/campuskiosk/kioskhub/internal/jobs"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const (
	supplyCatalogCacheKey = "supplies:catalog"
	supplyPopularCacheKey = "supplies:popular"
)

type SupplyStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	ListCategories(ctx context.Context) ([]supply.Category, error)
	ListItems(ctx context.Context, categoryKey string) ([]supply.Item, error)
	CreateRequestTx(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error)
	PopularByCategory(ctx context.Context, limit int) (map[string][]supply.PopularItem, error)
}

type SuppliesHandler struct {
	store    SupplyStore
	users    UserReader
	enqueuer JobTxEnqueuer
	cache    *cache.Cache
}

func NewSuppliesHandler(store SupplyStore, users UserReader, enqueuer JobTxEnqueuer, c *cache.Cache) *SuppliesHandler {
	return &SuppliesHandler{store: store, users: users, enqueuer: enqueuer, cache: c}
}

type supplyCatalog struct {
	Categories []supply.Category `json:"categories"`
	Items      []supply.Item     `json:"items"`
}

// Catalog returns every category with its items in one response, so the
// kiosk renders the whole supplies screen from a single fetch.
func (h *SuppliesHandler) Catalog(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	var catalog supplyCatalog
	if h.cache != nil && h.cache.GetJSON(cctx, supplyCatalogCacheKey, &catalog) {
		ctx.JSON(http.StatusOK, catalog)
		return
	}

	cats, err := h.store.ListCategories(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not load supply catalog")
		return
	}

	items, err := h.store.ListItems(cctx, "")
	if err != nil {
		RespondInternal(ctx, "Could not load supply catalog")
		return
	}

	catalog = supplyCatalog{Categories: cats, Items: items}
	if h.cache != nil {
		h.cache.SetJSON(cctx, supplyCatalogCacheKey, catalog)
	}

	ctx.JSON(http.StatusOK, catalog)
}

func (h *SuppliesHandler) ListItems(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.store.ListItems(cctx, ctx.Query("category"))
	if err != nil {
		RespondInternal(ctx, "Could not list supply items")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateRequest records a supply request and queues the receipt email in the
// same transaction. Unknown item ids are dropped server side, so a stale
// kiosk screen still submits whatever remains valid.
func (h *SuppliesHandler) CreateRequest(ctx *gin.Context) {
	var req supply.CreateRequest
	if !BindJSON(ctx, &req) {
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

	tx, err := h.store.BeginTx(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not submit supply request")
		return
	}
	defer func() { _ = tx.Rollback(cctx) }()

	created, err := h.store.CreateRequestTx(cctx, tx, req)
	if err != nil {
		if errors.Is(err, supply.ErrUnknownItems) {
			RespondBadRequest(ctx, "None of the requested items exist.", nil)
			return
		}
		RespondInternal(ctx, "Could not submit supply request")
		return
	}

	payload, err := jobs.EncodePayload(jobs.TypeSupplyReceipt, jobs.SupplyReceiptPayload{
		RequestID: created.ID,
		Email:     created.Email,
		FullName:  created.FullName,
		Items:     created.ItemNames,
	})
	if err != nil {
		RespondInternal(ctx, "Could not submit supply request")
		return
	}

	key := "supply_receipt:" + created.ID
	if _, err := h.enqueuer.CreateTx(cctx, tx, job.CreateRequest{
		Type:           string(jobs.TypeSupplyReceipt),
		Payload:        payload,
		IdempotencyKey: &key,
	}); err != nil {
		RespondInternal(ctx, "Could not submit supply request")
		return
	}

	if err := tx.Commit(cctx); err != nil {
		RespondInternal(ctx, "Could not submit supply request")
		return
	}

	if h.cache != nil {
		h.cache.Delete(cctx, supplyPopularCacheKey)
	}

	ctx.JSON(http.StatusCreated, created)
}

// Popular returns the most requested items per category, for the kiosk's
// quick-pick row.
func (h *SuppliesHandler) Popular(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	var popular map[string][]supply.PopularItem
	if h.cache != nil && h.cache.GetJSON(cctx, supplyPopularCacheKey, &popular) {
		ctx.JSON(http.StatusOK, gin.H{"popular": popular})
		return
	}

	popular, err := h.store.PopularByCategory(cctx, 5)
	if err != nil {
		RespondInternal(ctx, "Could not load popular items")
		return
	}

	if h.cache != nil {
		h.cache.SetJSON(cctx, supplyPopularCacheKey, popular)
	}

	ctx.JSON(http.StatusOK, gin.H{"popular": popular})
}
