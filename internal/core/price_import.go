package core

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/crm/internal/field"
	"github.com/JonMunkholm/crm/internal/importer"
	"github.com/JonMunkholm/crm/internal/logging"
	"github.com/JonMunkholm/crm/internal/model"
	"github.com/JonMunkholm/crm/internal/repository"
)

// DefaultImportBatchSize is the number of price tables stored per
// transaction during an import.
const DefaultImportBatchSize = 2000

// importRow is a record that passed every check.
type importRow struct {
	name   string
	values []field.Value
}

// ImportCheck reads a price workbook and reports which records would be
// rejected. Nothing is stored.
func (s *PriceService) ImportCheck(ctx context.Context, r io.Reader) (*model.ImportResult, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, PriceModule)
	if err != nil {
		return nil, err
	}
	rows, res, err := s.readImport(ctx, form, r)
	if err != nil {
		return nil, err
	}
	res.SuccessCount = len(rows)
	return res, nil
}

// Import stores every valid record of a price workbook after the existing
// price tables and reports the rejected ones. On error the result counts
// the batches that were already committed.
func (s *PriceService) Import(ctx context.Context, r io.Reader) (*model.ImportResult, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return nil, err
	}
	form, err := s.form(ctx, id.OrgID, PriceModule)
	if err != nil {
		return nil, err
	}
	rows, res, err := s.readImport(ctx, form, r)
	if err != nil {
		return nil, err
	}

	size := s.ImportBatchSize
	if size <= 0 {
		size = DefaultImportBatchSize
	}
	err = s.Batches.run(ctx, func() error {
		for start := 0; start < len(rows); start += size {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+size, len(rows))
			if err := s.importBatch(ctx, id, form, rows[start:end]); err != nil {
				return err
			}
			res.SuccessCount += end - start
		}
		return nil
	})

	log := logging.FromContext(ctx).With("org_id", id.OrgID, "imported", res.SuccessCount, "rejected", res.FailCount)
	if err != nil {
		log.Error("price import failed", "error", err)
		return res, err
	}
	log.Info("price import finished")
	return res, nil
}

// readImport parses the workbook and splits its records into importable
// rows and rejections.
func (s *PriceService) readImport(ctx context.Context, form field.FormConfig, r io.Reader) ([]importRow, *model.ImportResult, error) {
	records, err := importer.Read(r, form, s.Registry)
	switch {
	case errors.Is(err, importer.ErrNoSheet), errors.Is(err, importer.ErrNoColumns):
		return nil, nil, Invalid("product.price.import.no_columns")
	case err != nil:
		logging.FromContext(ctx).Warn("unreadable price workbook", "error", err)
		return nil, nil, Invalid("product.price.import.unreadable")
	}

	res := &model.ImportResult{}
	var rows []importRow
	for _, rec := range records {
		if err := s.checkRecord(ctx, form, rec); err != nil {
			res.FailCount++
			res.Errors = append(res.Errors, model.ImportError{
				Row:     rec.Row,
				Message: MapError(ctx, s.Translator, err).Message,
			})
			continue
		}
		rows = append(rows, importRow{
			name:   strings.TrimSpace(rec.System["name"]),
			values: rec.Values,
		})
	}
	return rows, res, nil
}

func (s *PriceService) checkRecord(ctx context.Context, form field.FormConfig, rec importer.Record) error {
	var ce *importer.CellError
	if errors.As(rec.Err, &ce) {
		return Invalid("common.field.invalid", ce.Column)
	}
	if rec.Err != nil {
		return rec.Err
	}
	if err := requireText(rec.System["name"], s.label(ctx, "name")); err != nil {
		return err
	}
	return validateFields(s.Registry, form, rec.Values)
}

// importBatch stores rows in one transaction, appended in sheet order.
func (s *PriceService) importBatch(ctx context.Context, id Identity, form field.FormConfig, rows []importRow) error {
	now := s.now()
	at := now.UnixMilli()
	return s.inTx(ctx, func(set *repository.Set) error {
		last, err := set.Prices.MaxPos(ctx, id.OrgID)
		if err != nil {
			return err
		}
		fields := s.fields(set, PriceModule)
		for i, row := range rows {
			p := &model.ProductPrice{
				ID:             uuid.NewString(),
				OrganizationID: id.OrgID,
				Name:           row.name,
				Pos:            last + int64(i+1)*model.PosStep,
				Audit:          model.Audit{CreateTime: at, CreateUser: id.UserID, UpdateTime: at, UpdateUser: id.UserID},
			}
			values, _, err := fillSerialNumbers(ctx, set.Serials, id.OrgID, form, row.values, now)
			if err != nil {
				return err
			}
			if err := set.Prices.Create(ctx, p); err != nil {
				return err
			}
			if err := fields.Save(ctx, p.ID, form, values); err != nil {
				return err
			}
			if err := set.Logs.Insert(ctx, s.Logs.AddLog(ctx, s.subject(p, form), priceColumns(p), values)); err != nil {
				return err
			}
		}
		return nil
	})
}
