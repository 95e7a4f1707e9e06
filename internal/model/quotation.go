package model

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/crm/internal/field"
)

// ApprovalStatus is the approval state of a quotation.
type ApprovalStatus string

const (
	ApprovalApproving  ApprovalStatus = "APPROVING"
	ApprovalApproved   ApprovalStatus = "APPROVED"
	ApprovalUnapproved ApprovalStatus = "UNAPPROVED"
	ApprovalVoided     ApprovalStatus = "VOIDED"
	ApprovalRevoked    ApprovalStatus = "REVOKED"
)

// Quotation is a priced offer attached to an opportunity.
type Quotation struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	Name           string          `json:"name"`
	OpportunityID  string          `json:"opportunityId"`
	Amount         decimal.Decimal `json:"amount"`
	ApprovalStatus ApprovalStatus  `json:"approvalStatus"`
	Audit
}

// QuotationView is a quotation with resolved names and dynamic fields.
type QuotationView struct {
	Quotation
	AuditNames
	OpportunityName string                    `json:"opportunityName,omitempty"`
	Fields          []field.Value             `json:"moduleFields"`
	OptionMap       map[string][]field.Option `json:"optionMap,omitempty"`
}

// BatchResult counts the outcome of a batch transition.
type BatchResult struct {
	Success int      `json:"success"`
	Skip    int      `json:"skip"`
	Fail    int      `json:"fail"`
	Errors  []string `json:"errors,omitempty"`
}
