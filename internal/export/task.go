// Package export runs background spreadsheet exports.
//
// A request is validated and admitted synchronously (file name guard and a
// per-user quota of PREPARED tasks), recorded as a PREPARED task and handed
// to a worker goroutine. The worker pages through its Source, converts each
// record into spreadsheet rows and streams them into an XLSX file. The task
// ends in exactly one of SUCCESS, ERROR or STOP.
package export

import (
	"context"
	"errors"
)

// Status is the lifecycle state of an export task.
type Status string

const (
	StatusPrepared Status = "PREPARED"
	StatusSuccess  Status = "SUCCESS"
	StatusError    Status = "ERROR"
	StatusStop     Status = "STOP"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusStop
}

// ResourceType names what is being exported.
type ResourceType string

const (
	TypeContract             ResourceType = "CONTRACT"
	TypeContractPaymentPlan  ResourceType = "CONTRACT_PAYMENT_PLAN"
	TypeOpportunityQuotation ResourceType = "OPPORTUNITY_QUOTATION"
	TypeProductPrice         ResourceType = "PRODUCT_PRICE"
)

var (
	// ErrIllegalFileName is returned for file names containing a path separator.
	ErrIllegalFileName = errors.New("illegal export file name")

	// ErrTooManyTasks is returned when the user already has the maximum
	// number of PREPARED tasks.
	ErrTooManyTasks = errors.New("too many export tasks")

	// ErrInvalidArgument is returned for blank file ids, file names,
	// organization ids or selections.
	ErrInvalidArgument = errors.New("invalid export argument")

	// ErrStopped is the cancellation cause of an interrupted task.
	ErrStopped = errors.New("export task stopped")

	// ErrTaskNotFound is returned when a task id does not exist for the caller.
	ErrTaskNotFound = errors.New("export task not found")

	// ErrFileNotReady is returned when downloading a task that did not succeed.
	ErrFileNotReady = errors.New("export file not ready")
)

// Task is a persisted export request.
type Task struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organizationId"`
	FileID         string       `json:"fileId"`
	FileName       string       `json:"fileName"`
	ResourceType   ResourceType `json:"resourceType"`
	Status         Status       `json:"status"`
	CreateUser     string       `json:"createUser"`
	CreateTime     int64        `json:"createTime"`
	UpdateUser     string       `json:"updateUser,omitempty"`
	UpdateTime     int64        `json:"updateTime"`
}

// TaskStore persists export tasks.
type TaskStore interface {
	Create(ctx context.Context, task Task) error

	// Finish moves a PREPARED task to status. It reports false when the task
	// was no longer PREPARED, leaving terminal states untouched.
	Finish(ctx context.Context, id string, status Status, userID string, at int64) (bool, error)

	CountByUserStatus(ctx context.Context, orgID, userID string, status Status) (int, error)
	Get(ctx context.Context, orgID, id string) (Task, error)
	ListByUser(ctx context.Context, orgID, userID string, limit int) ([]Task, error)

	// Touch records progress on a PREPARED task by moving its update_time.
	Touch(ctx context.Context, id string, at int64) error

	// ListIdleBefore returns PREPARED tasks whose last progress is older than
	// the given unix millisecond timestamp, across organizations.
	ListIdleBefore(ctx context.Context, before int64) ([]Task, error)
}
