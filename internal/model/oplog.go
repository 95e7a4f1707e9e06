package model

// OperationType classifies an operation log entry.
type OperationType string

const (
	OpAdd     OperationType = "ADD"
	OpUpdate  OperationType = "UPDATE"
	OpDelete  OperationType = "DELETE"
	OpVoid    OperationType = "VOID"
	OpArchive OperationType = "ARCHIVE"
	OpApprove OperationType = "APPROVAL"
	OpRevoke  OperationType = "REVOKE"
	OpExport  OperationType = "EXPORT"
)

// Log modules.
const (
	ModuleContract    = "CONTRACT"
	ModulePaymentPlan = "CONTRACT_PAYMENT_PLAN"
	ModuleQuotation   = "OPPORTUNITY_QUOTATION"
	ModulePrice       = "PRODUCT_PRICE"
)

// OperationLog records who changed what on a resource.
type OperationLog struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	Module         string         `json:"module"`
	Type           OperationType  `json:"type"`
	ResourceID     string         `json:"resourceId"`
	ResourceName   string         `json:"resourceName"`
	Operator       string         `json:"operator"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	OriginalValue  map[string]any `json:"originalValue,omitempty"`
	ModifiedValue  map[string]any `json:"modifiedValue,omitempty"`
	Diffs          []Diff         `json:"diffs,omitempty"`
	CreateTime     int64          `json:"createTime"`
}

// Diff is one changed column with localized labels.
type Diff struct {
	Column      string `json:"column"`
	ColumnName  string `json:"columnName"`
	OldValue    any    `json:"oldValue"`
	NewValue    any    `json:"newValue"`
	OldValueStr string `json:"oldValueName,omitempty"`
	NewValueStr string `json:"newValueName,omitempty"`
}
