package postgres

import (
	"context"
	"time"

	"github.com/campuskiosk/kioskhub/internal/domain/supply"
	"github.com/campuskiosk/kioskhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SuppliesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSuppliesRepo(pool *pgxpool.Pool, prom *observability.Prom) *SuppliesRepo {
	return &SuppliesRepo{pool: pool, prom: prom}
}

func (repo *SuppliesRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *SuppliesRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return repo.pool.BeginTx(ctx, pgx.TxOptions{})
}

func (repo *SuppliesRepo) ListCategories(ctx context.Context) (cats []supply.Category, err error) {
	var rows pgx.Rows

	err = repo.observe("supplies.list_categories", func() error {
		rows, err = repo.pool.Query(ctx,
			`SELECT id, name, key FROM supply_categories ORDER BY name ASC`)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cats = make([]supply.Category, 0)
	for rows.Next() {
		var c supply.Category
		if err = rows.Scan(&c.ID, &c.Name, &c.Key); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (repo *SuppliesRepo) ListItems(ctx context.Context, categoryKey string) (items []supply.Item, err error) {
	query := `
		SELECT i.id, i.name, COALESCE(i.image_url, ''), c.key, c.name
		FROM supply_items i
		JOIN supply_categories c ON c.id = i.category_id
	`
	args := []any{}
	if categoryKey != "" {
		query += ` WHERE c.key = $1`
		args = append(args, categoryKey)
	}
	query += ` ORDER BY i.name ASC`

	var rows pgx.Rows
	err = repo.observe("supplies.list_items", func() error {
		rows, err = repo.pool.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items = make([]supply.Item, 0)
	for rows.Next() {
		var it supply.Item
		if err = rows.Scan(&it.ID, &it.Name, &it.ImageURL, &it.CategoryKey, &it.CategoryName); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateRequestTx records a supply request inside the caller's transaction.
// Unknown item ids are silently dropped; the request fails only when nothing
// resolves. Each resolved item also bumps its all-time request counter, which
// feeds the popular-items view.
func (repo *SuppliesRepo) CreateRequestTx(ctx context.Context, tx pgx.Tx, req supply.CreateRequest) (created supply.Request, err error) {
	var rows pgx.Rows
	err = repo.observe("supplies.create_request_tx.resolve", func() error {
		rows, err = tx.Query(ctx,
			`SELECT id, name FROM supply_items WHERE id = ANY($1) ORDER BY name ASC`,
			req.ItemIDs)
		return err
	})
	if err != nil {
		return
	}
	defer rows.Close()

	var itemIDs []string
	var itemNames []string
	for rows.Next() {
		var id, name string
		if err = rows.Scan(&id, &name); err != nil {
			return
		}
		itemIDs = append(itemIDs, id)
		itemNames = append(itemNames, name)
	}
	if err = rows.Err(); err != nil {
		return
	}
	rows.Close()

	if len(itemIDs) == 0 {
		err = supply.ErrUnknownItems
		return
	}

	created = supply.Request{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		FullName:    req.FullName,
		Email:       req.Email,
		ItemNames:   itemNames,
		RequestedAt: time.Now().UTC(),
	}

	err = repo.observe("supplies.create_request_tx.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO supply_requests (id, user_id, full_name, email, requested_at)
			VALUES ($1,$2,$3,$4,$5)
		`, created.ID, created.UserID, created.FullName, created.Email, created.RequestedAt)
		return e
	})
	if err != nil {
		return
	}

	err = repo.observe("supplies.create_request_tx.items", func() error {
		for _, itemID := range itemIDs {
			if _, e := tx.Exec(ctx, `
				INSERT INTO supply_request_items (request_id, item_id)
				VALUES ($1,$2)
			`, created.ID, itemID); e != nil {
				return e
			}
			if _, e := tx.Exec(ctx, `
				INSERT INTO supply_item_stats (item_id, request_count)
				VALUES ($1, 1)
				ON CONFLICT (item_id) DO UPDATE
				SET request_count = supply_item_stats.request_count + 1
			`, itemID); e != nil {
				return e
			}
		}
		return nil
	})

	return
}

// PopularByCategory lists each category's most requested items, highest
// counters first, capped at limit per category.
func (repo *SuppliesRepo) PopularByCategory(ctx context.Context, limit int) (result map[string][]supply.PopularItem, err error) {
	if limit <= 0 {
		limit = 5
	}

	var rows pgx.Rows
	err = repo.observe("supplies.popular_by_category", func() error {
		rows, err = repo.pool.Query(ctx, `
			SELECT c.key, i.name, s.request_count
			FROM supply_item_stats s
			JOIN supply_items i ON i.id = s.item_id
			JOIN supply_categories c ON c.id = i.category_id
			ORDER BY c.key ASC, s.request_count DESC, i.name ASC
		`)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result = make(map[string][]supply.PopularItem)
	for rows.Next() {
		var key, name string
		var count int
		if err = rows.Scan(&key, &name, &count); err != nil {
			return nil, err
		}
		if len(result[key]) >= limit {
			continue
		}
		result[key] = append(result[key], supply.PopularItem{Name: name, Count: count})
	}
	return result, rows.Err()
}
