package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/crm/internal/database"
	"github.com/JonMunkholm/crm/internal/field"
)

// FormRepository reads and writes per-organization form configurations.
type FormRepository interface {
	Get(ctx context.Context, orgID, formKey string) (field.FormConfig, error)
	Save(ctx context.Context, orgID string, form field.FormConfig, userID string, at int64) error
}

type formRepo struct {
	db database.DBTX
}

// NewFormRepository creates the module form repository.
func NewFormRepository(db database.DBTX) FormRepository {
	return &formRepo{db: db}
}

func (r *formRepo) Get(ctx context.Context, orgID, formKey string) (field.FormConfig, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT config FROM module_form WHERE organization_id = $1 AND form_key = $2`, orgID, formKey).Scan(&raw)
	if err != nil {
		return field.FormConfig{}, notFound(err, "get form "+formKey)
	}
	var form field.FormConfig
	if err := json.Unmarshal(raw, &form); err != nil {
		return field.FormConfig{}, fmt.Errorf("decode form %s: %w", formKey, err)
	}
	form.FormKey = formKey
	return form, nil
}

func (r *formRepo) Save(ctx context.Context, orgID string, form field.FormConfig, userID string, at int64) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("encode form %s: %w", form.FormKey, err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO module_form (organization_id, form_key, config, update_time, update_user)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, form_key)
		DO UPDATE SET config = EXCLUDED.config, update_time = EXCLUDED.update_time, update_user = EXCLUDED.update_user`,
		orgID, form.FormKey, raw, at, userID)
	if err != nil {
		return fmt.Errorf("save form %s: %w", form.FormKey, err)
	}
	return nil
}
