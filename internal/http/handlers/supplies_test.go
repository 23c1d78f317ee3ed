package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campuskiosk/kioskhub/internal/auth"
	"github.com/campuskiosk/kioskhub/internal/cache"
	"github.com/campuskiosk/kioskhub/internal/domain/job"
	"github.com/campuskiosk/kioskhub/internal/domain/supply"
	"github.com/campuskiosk/kioskhub/internal/http/handlers"
	"github.com/jackc/pgx/v5"
)

type fakeSupplyStore struct {
	tx              *fakeTx
	listCatsFn      func(ctx context.Context) ([]supply.Category, error)
	listItemsFn     func(ctx context.Context, categoryKey string) ([]supply.Item, error)
	createRequestFn func(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error)
	popularFn       func(ctx context.Context, limit int) (map[string][]supply.PopularItem, error)
}

func (f *fakeSupplyStore) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if f.tx == nil {
		f.tx = &fakeTx{}
	}
	return f.tx, nil
}

func (f *fakeSupplyStore) ListCategories(ctx context.Context) ([]supply.Category, error) {
	if f.listCatsFn != nil {
		return f.listCatsFn(ctx)
	}
	return []supply.Category{}, nil
}

func (f *fakeSupplyStore) ListItems(ctx context.Context, categoryKey string) ([]supply.Item, error) {
	if f.listItemsFn != nil {
		return f.listItemsFn(ctx, categoryKey)
	}
	return []supply.Item{}, nil
}

func (f *fakeSupplyStore) CreateRequestTx(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error) {
	if f.createRequestFn != nil {
		return f.createRequestFn(ctx, tx, req)
	}
	return supply.Request{}, nil
}

func (f *fakeSupplyStore) PopularByCategory(ctx context.Context, limit int) (map[string][]supply.PopularItem, error) {
	if f.popularFn != nil {
		return f.popularFn(ctx, limit)
	}
	return map[string][]supply.PopularItem{}, nil
}

func TestSupplyCatalogCached(t *testing.T) {
	calls := 0
	store := &fakeSupplyStore{
		listCatsFn: func(ctx context.Context) ([]supply.Category, error) {
			calls++
			return []supply.Category{{ID: newUUID(), Name: "Break Room", Key: "break"}}, nil
		},
		listItemsFn: func(ctx context.Context, categoryKey string) ([]supply.Item, error) {
			return []supply.Item{{ID: newUUID(), Name: "Coffee Filters", CategoryKey: "break"}}, nil
		},
	}

	h := handlers.NewSuppliesHandler(store, &fakeUserReader{}, &fakeEnqueuer{}, cache.New(nil, 30*time.Second))
	r := setupRouter(http.MethodGet, "/supplies/catalog", identity(newUUID(), "sam@uta.edu", auth.RoleUser), h.Catalog)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/supplies/catalog", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("call %d got status %d, body=%s", i+1, w.Code, w.Body.String())
		}
	}

	if calls != 1 {
		t.Fatalf("expected one store read with a warm cache, got %d", calls)
	}
}

func TestCreateSupplyRequestHandler(t *testing.T) {
	userID := newUUID()
	itemID := newUUID()

	validBody := `{"items": ["` + itemID + `"]}`

	tests := []struct {
		name           string
		body           string
		storeSetup     func(*fakeSupplyStore)
		wantStatusCode int
	}{
		{
			name: "success",
			body: validBody,
			storeSetup: func(f *fakeSupplyStore) {
				f.createRequestFn = func(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error) {
					if req.UserID != userID {
						return supply.Request{}, errors.New("session user not propagated")
					}
					return supply.Request{
						ID:        newUUID(),
						UserID:    req.UserID,
						FullName:  req.FullName,
						Email:     req.Email,
						ItemNames: []string{"Coffee Filters"},
					}, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "all_items_unknown",
			body: validBody,
			storeSetup: func(f *fakeSupplyStore) {
				f.createRequestFn = func(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error) {
					return supply.Request{}, supply.ErrUnknownItems
				}
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "empty_items",
			body:           `{"items": []}`,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "store_error",
			body: validBody,
			storeSetup: func(f *fakeSupplyStore) {
				f.createRequestFn = func(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error) {
					return supply.Request{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			store := &fakeSupplyStore{}
			if tt.storeSetup != nil {
				tt.storeSetup(store)
			}

			h := handlers.NewSuppliesHandler(store, &fakeUserReader{}, &fakeEnqueuer{}, nil)
			r := setupRouter(http.MethodPost, "/supplies/requests", identity(userID, "sam@uta.edu", auth.RoleUser), h.CreateRequest)

			req := httptest.NewRequest(http.MethodPost, "/supplies/requests", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestCreateSupplyRequestEnqueuesReceipt(t *testing.T) {
	userID := newUUID()

	store := &fakeSupplyStore{
		createRequestFn: func(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (supply.Request, error) {
			return supply.Request{
				ID: newUUID(), UserID: req.UserID,
				FullName: req.FullName, Email: req.Email,
				ItemNames: []string{"Paper Towels", "Coffee Filters"},
			}, nil
		},
	}

	var enqueuedType string
	enqueuer := &fakeEnqueuer{
		createTxFn: func(ctx context.Context, tx pgx.Tx, req job.CreateRequest) (job.Job, error) {
			enqueuedType = req.Type
			return job.Job{ID: newUUID(), Type: req.Type}, nil
		},
	}

	h := handlers.NewSuppliesHandler(store, &fakeUserReader{}, enqueuer, nil)
	r := setupRouter(http.MethodPost, "/supplies/requests", identity(userID, "sam@uta.edu", auth.RoleUser), h.CreateRequest)

	body := `{"items": ["` + newUUID() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/supplies/requests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if enqueuedType != "supply.receipt" {
		t.Fatalf("enqueued job type = %q, want supply.receipt", enqueuedType)
	}
	if !store.tx.committed {
		t.Fatalf("transaction was never committed")
	}
}

func TestPopularSuppliesHandler(t *testing.T) {
	store := &fakeSupplyStore{
		popularFn: func(ctx context.Context, limit int) (map[string][]supply.PopularItem, error) {
			return map[string][]supply.PopularItem{
				"break": {{Name: "Coffee Filters", Count: 12}},
			}, nil
		},
	}

	h := handlers.NewSuppliesHandler(store, &fakeUserReader{}, &fakeEnqueuer{}, nil)
	r := setupRouter(http.MethodGet, "/supplies/popular", identity(newUUID(), "sam@uta.edu", auth.RoleUser), h.Popular)

	req := httptest.NewRequest(http.MethodGet, "/supplies/popular", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Popular map[string][]supply.PopularItem `json:"popular"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(resp.Popular["break"]) != 1 || resp.Popular["break"][0].Count != 12 {
		t.Fatalf("unexpected leaderboard: %+v", resp.Popular)
	}
}
