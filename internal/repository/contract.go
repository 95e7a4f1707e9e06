package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// ContractRepository is CRUD over the contract table.
type ContractRepository interface {
	Create(ctx context.Context, c *model.Contract) error
	Get(ctx context.Context, orgID, id string) (*model.Contract, error)
	Update(ctx context.Context, c *model.Contract) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.Contract, int64, error)
	ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.Contract, error)
}

type contractRepo struct {
	db database.DBTX
}

// NewContractRepository creates the contract repository.
func NewContractRepository(db database.DBTX) ContractRepository {
	return &contractRepo{db: db}
}

const contractColumns = `id, organization_id, name, COALESCE(number, ''), COALESCE(customer_id, ''), owner,
	amount::text, status, archived_status, void_reason, start_time, end_time,
	create_time, create_user, update_time, update_user`

func (r *contractRepo) Create(ctx context.Context, c *model.Contract) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO contract (id, organization_id, name, number, customer_id, owner, amount,
			status, archived_status, void_reason, start_time, end_time,
			create_time, create_user, update_time, update_user)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.OrganizationID, c.Name, nullString(c.Number), nullString(c.CustomerID), c.Owner, c.Amount.String(),
		c.Status, c.ArchivedStatus, nullString(c.VoidReason), c.StartTime, c.EndTime,
		c.CreateTime, c.CreateUser, c.UpdateTime, c.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (r *contractRepo) Get(ctx context.Context, orgID, id string) (*model.Contract, error) {
	row := r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contract WHERE organization_id = $1 AND id = $2`, orgID, id)
	c, err := scanContract(row)
	if err != nil {
		return nil, notFound(err, "get contract")
	}
	return c, nil
}

func (r *contractRepo) Update(ctx context.Context, c *model.Contract) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contract
		SET name = $2, number = $3, customer_id = $4, owner = $5, amount = $6::numeric,
			status = $7, archived_status = $8, void_reason = $9, start_time = $10, end_time = $11,
			update_time = $12, update_user = $13
		WHERE id = $1`,
		c.ID, c.Name, nullString(c.Number), nullString(c.CustomerID), c.Owner, c.Amount.String(),
		c.Status, c.ArchivedStatus, nullString(c.VoidReason), c.StartTime, c.EndTime,
		c.UpdateTime, c.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *contractRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM contract WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	return nil
}

func (r *contractRepo) List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.Contract, int64, error) {
	f := newFilter(orgID)
	keywordFilter(f, q, "name")
	if q.ParentID != "" {
		f.add("customer_id = $%d", q.ParentID)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM contract `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count contracts: %w", err)
	}

	limit, args := f.page(q)
	rows, err := r.db.Query(ctx, `SELECT `+contractColumns+` FROM contract `+f.where()+`
		ORDER BY create_time DESC, id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list contracts: %w", err)
	}
	list, err := collect(rows, scanContract)
	return list, total, err
}

func (r *contractRepo) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.Contract, error) {
	rows, err := r.db.Query(ctx, `SELECT `+contractColumns+` FROM contract
		WHERE organization_id = $1 AND id = ANY($2)
		ORDER BY array_position($2, id)`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("list contracts by id: %w", err)
	}
	return collect(rows, scanContract)
}

func scanContract(row pgx.Row) (*model.Contract, error) {
	c := &model.Contract{}
	var amount string
	var voidReason *string
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Number, &c.CustomerID, &c.Owner,
		&amount, &c.Status, &c.ArchivedStatus, &voidReason, &c.StartTime, &c.EndTime,
		&c.CreateTime, &c.CreateUser, &c.UpdateTime, &c.UpdateUser)
	if err != nil {
		return nil, err
	}
	c.VoidReason = deref(voidReason)
	if c.Amount, err = model.Amount(amount); err != nil {
		return nil, fmt.Errorf("contract %s amount: %w", c.ID, err)
	}
	return c, nil
}

// collect scans every row with scan and closes rows.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
