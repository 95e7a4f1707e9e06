package model

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/crm/internal/field"
)

// PlanStatus is the collection state of a payment plan.
type PlanStatus string

const (
	PlanPending            PlanStatus = "PENDING"
	PlanPartiallyCompleted PlanStatus = "PARTIALLY_COMPLETED"
	PlanCompleted          PlanStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s PlanStatus) Valid() bool {
	return s == PlanPending || s == PlanPartiallyCompleted || s == PlanCompleted
}

// PaymentPlan schedules a payment against a contract.
type PaymentPlan struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	ContractID     string          `json:"contractId"`
	Owner          string          `json:"owner"`
	PlanStatus     PlanStatus      `json:"planStatus"`
	PlanAmount     decimal.Decimal `json:"planAmount"`
	PlanEndTime    *int64          `json:"planEndTime,omitempty"`
	Audit
}

// PaymentPlanView is a payment plan with resolved names and dynamic fields.
type PaymentPlanView struct {
	PaymentPlan
	AuditNames
	ContractName   string                    `json:"contractName,omitempty"`
	OwnerName      string                    `json:"ownerName,omitempty"`
	DepartmentID   string                    `json:"departmentId,omitempty"`
	DepartmentName string                    `json:"departmentName,omitempty"`
	Fields         []field.Value             `json:"moduleFields"`
	OptionMap      map[string][]field.Option `json:"optionMap,omitempty"`
}
