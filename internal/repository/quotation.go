package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// QuotationRepository is CRUD over opportunity_quotation.
type QuotationRepository interface {
	Create(ctx context.Context, q *model.Quotation) error
	Get(ctx context.Context, orgID, id string) (*model.Quotation, error)
	Update(ctx context.Context, q *model.Quotation) error
	UpdateApproval(ctx context.Context, id string, status model.ApprovalStatus, userID string, at int64) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.Quotation, int64, error)
	ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.Quotation, error)
}

type quotationRepo struct {
	db database.DBTX
}

// NewQuotationRepository creates the quotation repository.
func NewQuotationRepository(db database.DBTX) QuotationRepository {
	return &quotationRepo{db: db}
}

const quotationColumns = `id, organization_id, name, opportunity_id, amount::text, approval_status,
	create_time, create_user, update_time, update_user`

func (r *quotationRepo) Create(ctx context.Context, q *model.Quotation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO opportunity_quotation (id, organization_id, name, opportunity_id, amount,
			approval_status, create_time, create_user, update_time, update_user)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)`,
		q.ID, q.OrganizationID, q.Name, q.OpportunityID, q.Amount.String(),
		q.ApprovalStatus, q.CreateTime, q.CreateUser, q.UpdateTime, q.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("insert quotation: %w", err)
	}
	return nil
}

func (r *quotationRepo) Get(ctx context.Context, orgID, id string) (*model.Quotation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+quotationColumns+` FROM opportunity_quotation WHERE organization_id = $1 AND id = $2`, orgID, id)
	q, err := scanQuotation(row)
	if err != nil {
		return nil, notFound(err, "get quotation")
	}
	return q, nil
}

func (r *quotationRepo) Update(ctx context.Context, q *model.Quotation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE opportunity_quotation
		SET name = $2, opportunity_id = $3, amount = $4::numeric, approval_status = $5,
			update_time = $6, update_user = $7
		WHERE id = $1`,
		q.ID, q.Name, q.OpportunityID, q.Amount.String(), q.ApprovalStatus, q.UpdateTime, q.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("update quotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotationRepo) UpdateApproval(ctx context.Context, id string, status model.ApprovalStatus, userID string, at int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE opportunity_quotation SET approval_status = $2, update_user = $3, update_time = $4
		WHERE id = $1`, id, status, userID, at)
	if err != nil {
		return fmt.Errorf("update quotation approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *quotationRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM opportunity_quotation WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	return nil
}

func (r *quotationRepo) List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.Quotation, int64, error) {
	f := newFilter(orgID)
	keywordFilter(f, q, "name")
	if q.ParentID != "" {
		f.add("opportunity_id = $%d", q.ParentID)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM opportunity_quotation `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotations: %w", err)
	}

	limit, args := f.page(q)
	rows, err := r.db.Query(ctx, `SELECT `+quotationColumns+` FROM opportunity_quotation `+f.where()+`
		ORDER BY create_time DESC, id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	list, err := collect(rows, scanQuotation)
	return list, total, err
}

func (r *quotationRepo) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.Quotation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+quotationColumns+` FROM opportunity_quotation
		WHERE organization_id = $1 AND id = ANY($2)
		ORDER BY array_position($2, id)`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("list quotations by id: %w", err)
	}
	return collect(rows, scanQuotation)
}

func scanQuotation(row pgx.Row) (*model.Quotation, error) {
	q := &model.Quotation{}
	var amount string
	err := row.Scan(&q.ID, &q.OrganizationID, &q.Name, &q.OpportunityID, &amount, &q.ApprovalStatus,
		&q.CreateTime, &q.CreateUser, &q.UpdateTime, &q.UpdateUser)
	if err != nil {
		return nil, err
	}
	if q.Amount, err = model.Amount(amount); err != nil {
		return nil, fmt.Errorf("quotation %s amount: %w", q.ID, err)
	}
	return q, nil
}
