package model

import "github.com/JonMunkholm/crm/internal/field"

// PosStep is the gap between neighbouring price positions.
const PosStep int64 = 4096

// ProductPrice is a price list entry ordered by Pos.
type ProductPrice struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Pos            int64  `json:"pos"`
	Audit
}

// ProductPriceView is a price with resolved names and dynamic fields.
type ProductPriceView struct {
	ProductPrice
	AuditNames
	Fields    []field.Value             `json:"moduleFields"`
	OptionMap map[string][]field.Option `json:"optionMap,omitempty"`
}

// ImportResult summarizes a spreadsheet import or its dry run. Errors hold
// one entry per rejected record, keyed by its sheet row.
type ImportResult struct {
	SuccessCount int           `json:"successCount"`
	FailCount    int           `json:"failCount"`
	Errors       []ImportError `json:"errorMessages,omitempty"`
}

// ImportError is a record the import rejected.
type ImportError struct {
	Row     int    `json:"rowNum"`
	Message string `json:"errMsg"`
}
