// Package model defines the business records shared by repositories,
// services and handlers. Timestamps are unix milliseconds.
package model

import (
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/crm/internal/field"
)

// Audit holds the creation and last-update stamps of a record.
type Audit struct {
	CreateTime int64  `json:"createTime"`
	CreateUser string `json:"createUser"`
	UpdateTime int64  `json:"updateTime"`
	UpdateUser string `json:"updateUser"`
}

// AuditNames holds display names resolved for the user ids in Audit.
type AuditNames struct {
	CreateUserName string `json:"createUserName,omitempty"`
	UpdateUserName string `json:"updateUserName,omitempty"`
}

// HasAuditNames is implemented by records whose create and update user ids
// are rendered with display names.
type HasAuditNames interface {
	AuditUsers() (createUser, updateUser string)
	SetAuditNames(createUserName, updateUserName string)
}

// AuditUsers returns the create and update user ids.
func (a *Audit) AuditUsers() (string, string) {
	return a.CreateUser, a.UpdateUser
}

// SetAuditNames stores resolved user names.
func (n *AuditNames) SetAuditNames(createUserName, updateUserName string) {
	n.CreateUserName = createUserName
	n.UpdateUserName = updateUserName
}

// ListQuery filters and pages a list request.
type ListQuery struct {
	Current  int    `json:"current"`
	PageSize int    `json:"pageSize"`
	Keyword  string `json:"keyword,omitempty"`

	// ParentID narrows payment plans to a contract and quotations to an
	// opportunity.
	ParentID string `json:"parentId,omitempty"`
}

// Offset returns the row offset for Current, treating values below 1 as 1.
func (q ListQuery) Offset() int {
	if q.Current < 1 {
		return 0
	}
	return (q.Current - 1) * q.Limit()
}

// MaxPageSize bounds page sizes requested through the API.
const MaxPageSize = 1000

// Limit returns PageSize, defaulting to 20.
func (q ListQuery) Limit() int {
	if q.PageSize <= 0 {
		return 20
	}
	return q.PageSize
}

// Capped returns q with PageSize bounded to MaxPageSize. Exports page with
// their own sizes and skip it.
func (q ListQuery) Capped() ListQuery {
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

// Page is one page of results with the option map used to render them.
type Page[T any] struct {
	List      []T                       `json:"list"`
	Total     int64                     `json:"total"`
	Current   int                       `json:"current"`
	PageSize  int                       `json:"pageSize"`
	OptionMap map[string][]field.Option `json:"optionMap,omitempty"`
}

// Snapshot is the frozen form configuration and values of one record.
type Snapshot struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
	Content    []byte `json:"-"`
	CreateTime int64  `json:"createTime"`
}

// SnapshotContent is the JSON document stored in Snapshot.Content.
type SnapshotContent struct {
	Form   field.FormConfig `json:"form"`
	Record any              `json:"record"`
	Fields []field.Value    `json:"fields"`
}

// UserOption is a user id with its display name and department.
type UserOption struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DepartmentID   string `json:"departmentId,omitempty"`
	DepartmentName string `json:"departmentName,omitempty"`
}

// Amount parses a stored NUMERIC rendered as text. Empty text is zero.
func Amount(text string) (decimal.Decimal, error) {
	if text == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(text)
}
