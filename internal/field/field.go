// Package field models the per-organization form configuration and converts
// dynamic field values between their API, storage, display and import forms.
//
// Every field type is handled by a Resolver. Resolvers are registered
// explicitly in a Registry at startup; looking up a type nobody registered
// fails with ErrNoResolver.
package field

// Type tags a field's kind in the form configuration.
type Type string

const (
	TypeInput              Type = "INPUT"
	TypeTextarea           Type = "TEXTAREA"
	TypeNumber             Type = "INPUT_NUMBER"
	TypeDateTime           Type = "DATE_TIME"
	TypeRadio              Type = "RADIO"
	TypeCheckbox           Type = "CHECKBOX"
	TypeSelect             Type = "SELECT"
	TypeSelectMultiple     Type = "SELECT_MULTIPLE"
	TypeMember             Type = "MEMBER"
	TypeMemberMultiple     Type = "MEMBER_MULTIPLE"
	TypeDepartment         Type = "DEPARTMENT"
	TypeDepartmentMultiple Type = "DEPARTMENT_MULTIPLE"
	TypeAttachment         Type = "ATTACHMENT"
	TypePicture            Type = "PICTURE"
	TypeIndustry           Type = "INDUSTRY"
	TypePhone              Type = "PHONE"
	TypeSerialNumber       Type = "SERIAL_NUMBER"
	TypeLocation           Type = "LOCATION"
	TypeSwitch             Type = "SWITCH"
	TypeSubProduct         Type = "SUB_PRODUCT"
	TypeSubPrice           Type = "SUB_PRICE"
)

// Date display modes.
const (
	DateTypeDate     = "date"
	DateTypeDateTime = "datetime"
)

// Option is a selectable choice. Member, department and attachment fields
// carry options filled in by the caller (user names, department names, file
// names) so resolvers never touch storage.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SerialRule configures SERIAL_NUMBER generation: prefix + yyyyMMdd + sequence.
type SerialRule struct {
	Prefix    string `json:"prefix"`
	SeqLength int    `json:"seqLength"`
}

// Field is one entry of a form configuration.
type Field struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        Type        `json:"type"`
	BusinessKey string      `json:"businessKey,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Options     []Option    `json:"options,omitempty"`
	SubFields   []Field     `json:"subFields,omitempty"`
	DateType    string      `json:"dateType,omitempty"`
	Precision   int         `json:"precision,omitempty"`
	SerialRule  *SerialRule `json:"serialNumberRules,omitempty"`
}

// IsSubTable reports whether the field holds rows of sub-fields.
func (f Field) IsSubTable() bool {
	return f.Type == TypeSubProduct || f.Type == TypeSubPrice
}

// IsOptionSource reports whether the field's display value comes from options.
func (f Field) IsOptionSource() bool {
	switch f.Type {
	case TypeRadio, TypeCheckbox, TypeSelect, TypeSelectMultiple,
		TypeMember, TypeMemberMultiple, TypeDepartment, TypeDepartmentMultiple:
		return true
	}
	return false
}

// IsMember reports whether values are user ids.
func (f Field) IsMember() bool {
	return f.Type == TypeMember || f.Type == TypeMemberMultiple
}

// IsDepartment reports whether values are department ids.
func (f Field) IsDepartment() bool {
	return f.Type == TypeDepartment || f.Type == TypeDepartmentMultiple
}

// IsAttachment reports whether values are file ids.
func (f Field) IsAttachment() bool {
	return f.Type == TypeAttachment || f.Type == TypePicture
}

// Label returns the option label for value, or "" when no option matches.
func (f Field) Label(value string) string {
	for _, o := range f.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return ""
}

// FormConfig is an organization's field layout for one form.
type FormConfig struct {
	FormKey  string         `json:"formKey"`
	Fields   []Field        `json:"fields"`
	FormProp map[string]any `json:"formProp,omitempty"`
}

// Field returns the top-level field with the given id.
func (c FormConfig) Field(id string) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// ByBusinessKey returns the top-level field bound to a fixed column.
func (c FormConfig) ByBusinessKey(key string) (Field, bool) {
	for _, f := range c.Fields {
		if f.BusinessKey == key {
			return f, true
		}
	}
	return Field{}, false
}

// FieldMap indexes top-level fields and sub-fields by id.
func (c FormConfig) FieldMap() map[string]Field {
	m := make(map[string]Field, len(c.Fields))
	for _, f := range c.Fields {
		m[f.ID] = f
		for _, sub := range f.SubFields {
			m[sub.ID] = sub
		}
	}
	return m
}

// WithOptions returns a copy of the config where fields for which fill
// returns options have those options replaced. Sub-fields are included.
func (c FormConfig) WithOptions(fill func(Field) []Option) FormConfig {
	out := c
	out.Fields = make([]Field, len(c.Fields))
	for i, f := range c.Fields {
		if opts := fill(f); opts != nil {
			f.Options = opts
		}
		if len(f.SubFields) > 0 {
			subs := make([]Field, len(f.SubFields))
			for j, sub := range f.SubFields {
				if opts := fill(sub); opts != nil {
					sub.Options = opts
				}
				subs[j] = sub
			}
			f.SubFields = subs
		}
		out.Fields[i] = f
	}
	return out
}

// Value is a dynamic field value as exchanged with API clients. Sub-table
// values are []map[string]any keyed by sub-field id.
type Value struct {
	FieldID    string `json:"fieldId"`
	FieldValue any    `json:"fieldValue"`
}

// ValueMap indexes values by field id. Later duplicates win.
func ValueMap(values []Value) map[string]any {
	m := make(map[string]any, len(values))
	for _, v := range values {
		m[v.FieldID] = v.FieldValue
	}
	return m
}

// IsBlank reports whether v carries no user data.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	}
	return false
}
