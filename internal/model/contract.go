package model

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/crm/internal/field"
)

// ContractStatus is the business stage of a contract.
type ContractStatus string

const (
	ContractSigned               ContractStatus = "SIGNED"
	ContractInProgress           ContractStatus = "IN_PROGRESS"
	ContractCompletedPerformance ContractStatus = "COMPLETED_PERFORMANCE"
	ContractVoid                 ContractStatus = "VOID"
)

// Valid reports whether s is a known status.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractSigned, ContractInProgress, ContractCompletedPerformance, ContractVoid:
		return true
	}
	return false
}

// ArchivedStatus tells whether a contract is archived.
type ArchivedStatus string

const (
	Archived   ArchivedStatus = "ARCHIVED"
	UnArchived ArchivedStatus = "UN_ARCHIVED"
)

// Valid reports whether s is a known archive state.
func (s ArchivedStatus) Valid() bool {
	return s == Archived || s == UnArchived
}

// Contract is a signed agreement with a customer.
type Contract struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	Name           string          `json:"name"`
	Number         string          `json:"number"`
	CustomerID     string          `json:"customerId"`
	Owner          string          `json:"owner"`
	Amount         decimal.Decimal `json:"amount"`
	Status         ContractStatus  `json:"status"`
	ArchivedStatus ArchivedStatus  `json:"archivedStatus"`
	VoidReason     string          `json:"voidReason,omitempty"`
	StartTime      *int64          `json:"startTime,omitempty"`
	EndTime        *int64          `json:"endTime,omitempty"`
	Audit
}

// Locked reports whether the contract can no longer be edited.
func (c *Contract) Locked() bool {
	return c.ArchivedStatus == Archived || c.Status == ContractVoid
}

// ContractView is a contract with resolved names and dynamic fields.
type ContractView struct {
	Contract
	AuditNames
	CustomerName   string                    `json:"customerName,omitempty"`
	OwnerName      string                    `json:"ownerName,omitempty"`
	DepartmentID   string                    `json:"departmentId,omitempty"`
	DepartmentName string                    `json:"departmentName,omitempty"`
	Fields         []field.Value             `json:"moduleFields"`
	OptionMap      map[string][]field.Option `json:"optionMap,omitempty"`
}
