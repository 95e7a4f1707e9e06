package repository

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/crm/internal/database"
)

// SerialRepository hands out per-day sequence numbers.
type SerialRepository interface {
	// Next increments and returns the sequence of ruleKey on day (yyyyMMdd).
	Next(ctx context.Context, orgID, ruleKey, day string) (int64, error)
}

type serialRepo struct {
	db database.DBTX
}

// NewSerialRepository creates the serial number repository.
func NewSerialRepository(db database.DBTX) SerialRepository {
	return &serialRepo{db: db}
}

func (r *serialRepo) Next(ctx context.Context, orgID, ruleKey, day string) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO serial_number_seq (organization_id, rule_key, seq_date, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (organization_id, rule_key, seq_date)
		DO UPDATE SET seq = serial_number_seq.seq + 1
		RETURNING seq`, orgID, ruleKey, day).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next serial number: %w", err)
	}
	return seq, nil
}
