package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/model"
)

// PaymentPlanRepository is CRUD over contract_payment_plan.
type PaymentPlanRepository interface {
	Create(ctx context.Context, p *model.PaymentPlan) error
	Get(ctx context.Context, orgID, id string) (*model.PaymentPlan, error)
	Update(ctx context.Context, p *model.PaymentPlan) error
	Delete(ctx context.Context, ids ...string) error
	List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.PaymentPlan, int64, error)
	ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.PaymentPlan, error)
	IDsByContract(ctx context.Context, contractID string) ([]string, error)
}

type paymentPlanRepo struct {
	db database.DBTX
}

// NewPaymentPlanRepository creates the payment plan repository.
func NewPaymentPlanRepository(db database.DBTX) PaymentPlanRepository {
	return &paymentPlanRepo{db: db}
}

const planColumns = `id, organization_id, contract_id, owner, plan_status, plan_amount::text, plan_end_time,
	create_time, create_user, update_time, update_user`

func (r *paymentPlanRepo) Create(ctx context.Context, p *model.PaymentPlan) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO contract_payment_plan (id, organization_id, contract_id, owner, plan_status,
			plan_amount, plan_end_time, create_time, create_user, update_time, update_user)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11)`,
		p.ID, p.OrganizationID, p.ContractID, p.Owner, p.PlanStatus,
		p.PlanAmount.String(), p.PlanEndTime, p.CreateTime, p.CreateUser, p.UpdateTime, p.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("insert payment plan: %w", err)
	}
	return nil
}

func (r *paymentPlanRepo) Get(ctx context.Context, orgID, id string) (*model.PaymentPlan, error) {
	row := r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM contract_payment_plan WHERE organization_id = $1 AND id = $2`, orgID, id)
	p, err := scanPlan(row)
	if err != nil {
		return nil, notFound(err, "get payment plan")
	}
	return p, nil
}

func (r *paymentPlanRepo) Update(ctx context.Context, p *model.PaymentPlan) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contract_payment_plan
		SET contract_id = $2, owner = $3, plan_status = $4, plan_amount = $5::numeric,
			plan_end_time = $6, update_time = $7, update_user = $8
		WHERE id = $1`,
		p.ID, p.ContractID, p.Owner, p.PlanStatus, p.PlanAmount.String(), p.PlanEndTime, p.UpdateTime, p.UpdateUser,
	)
	if err != nil {
		return fmt.Errorf("update payment plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *paymentPlanRepo) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM contract_payment_plan WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete payment plans: %w", err)
	}
	return nil
}

func (r *paymentPlanRepo) List(ctx context.Context, orgID string, q model.ListQuery) ([]*model.PaymentPlan, int64, error) {
	f := newFilter(orgID)
	if q.ParentID != "" {
		f.add("contract_id = $%d", q.ParentID)
	}
	if q.Keyword != "" {
		f.add("contract_id IN (SELECT id FROM contract WHERE name ILIKE $%d)", "%"+q.Keyword+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM contract_payment_plan `+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payment plans: %w", err)
	}

	limit, args := f.page(q)
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM contract_payment_plan `+f.where()+`
		ORDER BY create_time DESC, id `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment plans: %w", err)
	}
	list, err := collect(rows, scanPlan)
	return list, total, err
}

func (r *paymentPlanRepo) ListByIDs(ctx context.Context, orgID string, ids []string) ([]*model.PaymentPlan, error) {
	rows, err := r.db.Query(ctx, `SELECT `+planColumns+` FROM contract_payment_plan
		WHERE organization_id = $1 AND id = ANY($2)
		ORDER BY array_position($2, id)`, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("list payment plans by id: %w", err)
	}
	return collect(rows, scanPlan)
}

func (r *paymentPlanRepo) IDsByContract(ctx context.Context, contractID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM contract_payment_plan WHERE contract_id = $1`, contractID)
	if err != nil {
		return nil, fmt.Errorf("list contract payment plans: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan payment plan ids: %w", err)
	}
	return ids, nil
}

func scanPlan(row pgx.Row) (*model.PaymentPlan, error) {
	p := &model.PaymentPlan{}
	var amount string
	err := row.Scan(&p.ID, &p.OrganizationID, &p.ContractID, &p.Owner, &p.PlanStatus, &amount, &p.PlanEndTime,
		&p.CreateTime, &p.CreateUser, &p.UpdateTime, &p.UpdateUser)
	if err != nil {
		return nil, err
	}
	if p.PlanAmount, err = model.Amount(amount); err != nil {
		return nil, fmt.Errorf("payment plan %s amount: %w", p.ID, err)
	}
	return p, nil
}
