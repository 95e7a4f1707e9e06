package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// PriceRepository is CRUD over product_price, ordered by pos.
type PriceRepository interface {
	Create(ctx context.Context, p *model.ProductPrice) error
	Get(ctx context.Context, orgID, id string) (*model.ProductPrice, error)
	Update(ctx context.Context, p *model.ProductPrice) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.ProductPrice, int64, error)
	ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.ProductPrice, error)

	// MaxPos returns the largest pos in the organization, or 0.
	MaxPos(ctx context.Context, orgID string) (int64, error)

	// Neighbour returns the price directly after (or before) pos in order,
	// or nil at the end of the list.
	Neighbour(ctx context.Context, orgID string, pos int64, after bool) (*model.ProductPrice, error)

	UpdatePos(ctx context.Context, id string, pos int64) error

	// Renumber rewrites every pos in the organization as multiples of step
	// keeping the current order.
	Renumber(ctx context.Context, orgID string, step int64) error
}

type priceRepo struct {
	db database.DBTX
}

// NewPriceRepository creates the product price repository.
func NewPriceRepository(db database.DBTX) PriceRepository {
	return &priceRepo{db: db}
}

const priceColumns = `id, organization_id, name, pos, create_time, create_user, update_time, update_user`

func (r *priceRepo) Create(ctx context.Context, p *model.ProductPrice) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO product_price (id, organization_id, name, pos, create_time, create_user, update_time, update_user)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrganizationID, p.Name, p.Pos, p.CreateTime, p.CreateUser, p.UpdateTime, p.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("insert product price: %w", err)
	}
	return nil
}

func (r *priceRepo) Get(ctx context.Context, orgID, id string) (*model.ProductPrice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+priceColumns+` FROM product_price WHERE organization_id = $1 AND id = $2`, orgID, id)
	p, err := scanPrice(row)
	if err != nil {
		return nil, notFound(err, "get product price")
	}
	return p, nil
}

func (r *priceRepo) Update(ctx context.Context, p *model.ProductPrice) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE product_price SET name = $2, update_time = $3, update_user = $4 WHERE id = $1`,
		p.ID, p.Name, p.UpdateTime, p.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("update product price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *priceRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM product_price WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete product price: %w", err)
	}
	return nil
}

func (r *priceRepo) List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.ProductPrice, int64, error) {
	f := newFilter(orgID)
	keywordFilter(f, q, "name")

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM product_price `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count product prices: %w", err)
	}

	limit, args := f.page(q)
	rows, err := r.db.Query(ctx, `SELECT `+priceColumns+` FROM product_price `+f.where()+`
		ORDER BY pos, id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list product prices: %w", err)
	}
	list, err := collect(rows, scanPrice)
	return list, total, err
}

func (r *priceRepo) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.ProductPrice, error) {
	rows, err := r.db.Query(ctx, `SELECT `+priceColumns+` FROM product_price
		WHERE organization_id = $1 AND id = ANY($2)
		ORDER BY array_position($2, id)`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("list product prices by id: %w", err)
	}
	return collect(rows, scanPrice)
}

func (r *priceRepo) MaxPos(ctx context.Context, orgID string) (int64, error) {
	var pos int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(max(pos), 0) FROM product_price WHERE organization_id = $1`, orgID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("max product price pos: %w", err)
	}
	return pos, nil
}

func (r *priceRepo) Neighbour(ctx context.Context, orgID string, pos int64, after bool) (*model.ProductPrice, error) {
	query := `SELECT ` + priceColumns + ` FROM product_price WHERE organization_id = $1 AND pos > $2 ORDER BY pos LIMIT 1`
	if !after {
		query = `SELECT ` + priceColumns + ` FROM product_price WHERE organization_id = $1 AND pos < $2 ORDER BY pos DESC LIMIT 1`
	}
	p, err := scanPrice(r.db.QueryRow(ctx, query, orgID, pos))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("product price neighbour: %w", err)
	}
	return p, nil
}

func (r *priceRepo) UpdatePos(ctx context.Context, id string, pos int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE product_price SET pos = $2 WHERE id = $1`, id, pos); err != nil {
		return fmt.Errorf("update product price pos: %w", err)
	}
	return nil
}

func (r *priceRepo) Renumber(ctx context.Context, orgID string, step int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE product_price p SET pos = o.rn * $2
		FROM (SELECT id, row_number() OVER (ORDER BY pos, id) AS rn
		      FROM product_price WHERE organization_id = $1) o
		WHERE p.id = o.id`, orgID, step)
	if err != nil {
		return fmt.Errorf("renumber product prices: %w", err)
	}
	return nil
}

func scanPrice(row pgx.Row) (*model.ProductPrice, error) {
	p := &model.ProductPrice{}
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Pos, &p.CreateTime, &p.CreateUser, &p.UpdateTime, &p.UpdateUser)
	if err != nil {
		return nil, err
	}
	return p, nil
}
