package field

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"
)

var colorField = Field{
	ID:   "color",
	Name: "Color",
	Type: TypeSelect,
	Options: []Option{
		{Label: "Red", Value: "r"},
		{Label: "Blue", Value: "b"},
	},
}

func TestEncode(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name  string
		field Field
		in    any
		want  string
	}{
		{"text", Field{Type: TypeInput}, "hello", "hello"},
		{"text from number", Field{Type: TypeInput}, 12.5, "12.5"},
		{"nil text", Field{Type: TypeInput}, nil, ""},
		{"number float", Field{Type: TypeNumber}, 100.004, "100.004"},
		{"number string", Field{Type: TypeNumber}, " 42.10 ", "42.1"},
		{"number blank", Field{Type: TypeNumber}, "", ""},
		{"date millis", Field{Type: TypeDateTime}, float64(1700000000000), "1700000000000"},
		{"multi", colorField.withType(TypeSelectMultiple), []any{"r", "b"}, `["r","b"]`},
		{"multi single string", colorField.withType(TypeSelectMultiple), "r", `["r"]`},
		{"multi nil", colorField.withType(TypeSelectMultiple), nil, `[]`},
		{"switch", Field{Type: TypeSwitch}, true, "true"},
		{"switch text", Field{Type: TypeSwitch}, "否", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Encode(tt.field, tt.in)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode_Invalid(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name  string
		field Field
		in    any
	}{
		{"number", Field{Type: TypeNumber}, "twelve"},
		{"date", Field{Type: TypeDateTime}, "not a date"},
		{"switch", Field{Type: TypeSwitch}, 3.5},
		{"text map", Field{Type: TypeInput}, map[string]any{"a": 1}},
		{"sub-table scalar", Field{Type: TypeSubProduct}, 7.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Encode(tt.field, tt.in); !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Encode(%v) error = %v, want ErrInvalidValue", tt.in, err)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name  string
		field Field
		raw   string
		want  any
	}{
		{"text", Field{Type: TypeInput}, "abc", "abc"},
		{"number", Field{Type: TypeNumber}, "150.01", json.Number("150.01")},
		{"number blank", Field{Type: TypeNumber}, "", nil},
		{"date", Field{Type: TypeDateTime}, "1700000000000", int64(1700000000000)},
		{"multi", Field{Type: TypeCheckbox}, `["a","b"]`, []string{"a", "b"}},
		{"multi blank", Field{Type: TypeCheckbox}, "", []string{}},
		{"switch", Field{Type: TypeSwitch}, "true", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Decode(tt.field, tt.raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTransform(t *testing.T) {
	r := DefaultRegistry()
	ms := int64(1700000000000)
	local := time.UnixMilli(ms).In(time.Local)

	tests := []struct {
		name  string
		field Field
		raw   string
		want  any
	}{
		{"option label", colorField, "r", "Red"},
		{"option missing", colorField, "g", "g"},
		{"option blank", colorField, "", ""},
		{"multi labels", colorField.withType(TypeSelectMultiple), `["b","r"]`, "Blue,Red"},
		{"member", Field{Type: TypeMember, Options: []Option{{Label: "Alice", Value: "u1"}}}, "u1", "Alice"},
		{"number precision", Field{Type: TypeNumber, Precision: 2}, "150.005", "150.01"},
		{"number pads precision", Field{Type: TypeNumber, Precision: 2}, "7", "7.00"},
		{"number keeps digits", Field{Type: TypeNumber}, "12345678901234567.891", "12345678901234567.891"},
		{"date", Field{Type: TypeDateTime, DateType: DateTypeDate}, "1700000000000", local.Format("2006-01-02")},
		{"datetime", Field{Type: TypeDateTime}, "1700000000000", local.Format("2006-01-02 15:04:05")},
		{"industry", Field{Type: TypeIndustry}, "1-101", "信息技术-软件开发"},
		{"industry unknown", Field{Type: TypeIndustry}, "99", "99"},
		{"switch", Field{Type: TypeSwitch}, "false", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Transform(tt.field, tt.raw)
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Transform(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTransform_SubTable(t *testing.T) {
	r := DefaultRegistry()
	products := Field{
		ID:   "products",
		Name: "Products",
		Type: TypeSubProduct,
		SubFields: []Field{
			{ID: "product", Name: "Product", Type: TypeSelect, Options: []Option{{Label: "Widget", Value: "p1"}}},
			{ID: "amount", Name: "Amount", Type: TypeNumber},
		},
	}

	got, err := r.Transform(products, `[{"product":"p1","amount":100.004},{"product":"p2","amount":"3"}]`)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := []map[string]any{
		{"product": "Widget", "amount": 100.004},
		{"product": "p2", "amount": 3.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Transform() = %#v, want %#v", got, want)
	}
}

func TestFromText(t *testing.T) {
	r := DefaultRegistry()
	local := time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name    string
		field   Field
		text    string
		want    string
		wantErr error
	}{
		{"text trims", Field{Type: TypeInput}, "  hi ", "hi", nil},
		{"number commas", Field{Type: TypeNumber}, "1,234.50", "1234.5", nil},
		{"option label", colorField, "Blue", "b", nil},
		{"option value", colorField, "r", "r", nil},
		{"option unknown", colorField, "Green", "", ErrInvalidValue},
		{"multi", colorField.withType(TypeCheckbox), "Red，Blue", `["r","b"]`, nil},
		{"date", Field{Type: TypeDateTime}, "2024-03-05", strconv.FormatInt(local.UnixMilli(), 10), nil},
		{"industry", Field{Type: TypeIndustry}, "金融业-保险", "3-303", nil},
		{"industry unknown", Field{Type: TypeIndustry}, "金融业-典当", "", ErrInvalidValue},
		{"switch", Field{Type: TypeSwitch}, "是", "true", nil},
		{"attachment", Field{Type: TypeAttachment}, "a.pdf", "", ErrUnsupported},
		{"sub-table", Field{Type: TypeSubPrice}, "x", "", ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.FromText(tt.field, tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("FromText(%q) error = %v, want %v", tt.text, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromText(%q) error = %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("FromText(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestRows(t *testing.T) {
	rows, err := Rows([]any{map[string]any{"a": "1"}})
	if err != nil || len(rows) != 1 || rows[0]["a"] != "1" {
		t.Errorf("Rows([]any) = %v, %v", rows, err)
	}
	if _, err := Rows([]any{"not a row"}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Rows([]any{string}) error = %v, want ErrInvalidValue", err)
	}
	rows, err = Rows("")
	if err != nil || rows != nil {
		t.Errorf("Rows(\"\") = %v, %v, want nil, nil", rows, err)
	}
}

func (f Field) withType(t Type) Field {
	f.Type = t
	return f
}
