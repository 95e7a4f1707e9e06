package field

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var importDateLayouts = []string{
	dateTimeLayout,
	"2006-01-02 15:04",
	dateLayout,
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// textResolver handles single line text, phone, serial numbers and
// locations. Textarea uses the blob variant.
type textResolver struct {
	blob bool
}

func (r textResolver) Blob() bool { return r.blob }

func (textResolver) Encode(_ Field, v any) (string, error) {
	return scalarString(v)
}

func (textResolver) Decode(_ Field, raw string) (any, error) {
	return raw, nil
}

func (textResolver) Transform(_ Field, raw string) (any, error) {
	return raw, nil
}

func (textResolver) FromText(_ Field, text string) (string, error) {
	return strings.TrimSpace(text), nil
}

type numberResolver struct{}

func (numberResolver) Blob() bool { return false }

func (numberResolver) Encode(_ Field, v any) (string, error) {
	s, err := scalarString(v)
	if err != nil {
		return "", err
	}
	d, ok, err := parseDecimal(s)
	if err != nil || !ok {
		return "", err
	}
	return d.String(), nil
}

func (numberResolver) Decode(_ Field, raw string) (any, error) {
	d, ok, err := parseDecimal(raw)
	if err != nil || !ok {
		return nil, err
	}
	return json.Number(d.String()), nil
}

func (numberResolver) Transform(f Field, raw string) (any, error) {
	d, ok, err := parseDecimal(raw)
	if err != nil || !ok {
		return nil, err
	}
	if f.Precision > 0 {
		return d.StringFixed(int32(f.Precision)), nil
	}
	return d.String(), nil
}

func (r numberResolver) FromText(f Field, text string) (string, error) {
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(text)
	return r.Encode(f, cleaned)
}

func parseDecimal(s string) (decimal.Decimal, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
	}
	return d, true, nil
}

// dateResolver stores unix milliseconds.
type dateResolver struct{}

func (dateResolver) Blob() bool { return false }

func (r dateResolver) Encode(f Field, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case float64:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case int:
		return strconv.Itoa(t), nil
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a timestamp", ErrInvalidValue, t)
		}
		return strconv.FormatInt(ms, 10), nil
	case time.Time:
		return strconv.FormatInt(t.UnixMilli(), 10), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", nil
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return s, nil
		}
		return r.FromText(f, s)
	}
	return "", fmt.Errorf("%w: %T is not a date", ErrInvalidValue, v)
}

func (dateResolver) Decode(_ Field, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a timestamp", ErrInvalidValue, raw)
	}
	return ms, nil
}

func (dateResolver) Transform(f Field, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a timestamp", ErrInvalidValue, raw)
	}
	layout := dateTimeLayout
	if f.DateType == DateTypeDate {
		layout = dateLayout
	}
	return time.UnixMilli(ms).In(time.Local).Format(layout), nil
}

func (dateResolver) FromText(_ Field, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	for _, layout := range importDateLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return strconv.FormatInt(t.UnixMilli(), 10), nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a date", ErrInvalidValue, text)
}

// optionResolver handles single choice fields, including members and
// departments whose options are supplied by the caller.
type optionResolver struct{}

func (optionResolver) Blob() bool { return false }

func (optionResolver) Encode(_ Field, v any) (string, error) {
	return scalarString(v)
}

func (optionResolver) Decode(_ Field, raw string) (any, error) {
	return raw, nil
}

func (optionResolver) Transform(f Field, raw string) (any, error) {
	if raw == "" {
		return "", nil
	}
	if label := f.Label(raw); label != "" {
		return label, nil
	}
	return raw, nil
}

func (optionResolver) FromText(f Field, text string) (string, error) {
	return optionValue(f, strings.TrimSpace(text))
}

func optionValue(f Field, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	for _, o := range f.Options {
		if o.Label == text {
			return o.Value, nil
		}
	}
	for _, o := range f.Options {
		if o.Value == text {
			return o.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, text, f.Name)
}

// multiOptionResolver stores a JSON array of option values.
type multiOptionResolver struct{}

func (multiOptionResolver) Blob() bool { return true }

func (multiOptionResolver) Encode(_ Field, v any) (string, error) {
	return encodeList(v)
}

func (multiOptionResolver) Decode(_ Field, raw string) (any, error) {
	return decodeList(raw)
}

func (multiOptionResolver) Transform(f Field, raw string) (any, error) {
	values, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(values))
	for _, v := range values {
		if label := f.Label(v); label != "" {
			labels = append(labels, label)
		} else {
			labels = append(labels, v)
		}
	}
	return strings.Join(labels, ","), nil
}

func (multiOptionResolver) FromText(f Field, text string) (string, error) {
	parts := splitImportList(text)
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		v, err := optionValue(f, p)
		if err != nil {
			return "", err
		}
		values = append(values, v)
	}
	return encodeList(values)
}

// attachmentResolver stores a JSON array of file ids. Options map ids to
// file names when the caller has them.
type attachmentResolver struct{}

func (attachmentResolver) Blob() bool { return true }

func (attachmentResolver) Encode(_ Field, v any) (string, error) {
	return encodeList(v)
}

func (attachmentResolver) Decode(_ Field, raw string) (any, error) {
	return decodeList(raw)
}

func (attachmentResolver) Transform(f Field, raw string) (any, error) {
	return multiOptionResolver{}.Transform(f, raw)
}

func (attachmentResolver) FromText(f Field, _ string) (string, error) {
	return "", fmt.Errorf("%w: %s cannot be imported from text", ErrUnsupported, f.Type)
}

// industryResolver stores the code path ("1-101") and displays the name path.
type industryResolver struct{}

func (industryResolver) Blob() bool { return false }

func (industryResolver) Encode(_ Field, v any) (string, error) {
	return scalarString(v)
}

func (industryResolver) Decode(_ Field, raw string) (any, error) {
	return raw, nil
}

func (industryResolver) Transform(_ Field, raw string) (any, error) {
	if raw == "" {
		return "", nil
	}
	if names, ok := IndustryNames(raw); ok {
		return names, nil
	}
	return raw, nil
}

func (industryResolver) FromText(_ Field, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	codes, ok := IndustryCodes(text)
	if !ok {
		return "", fmt.Errorf("%w: unknown industry %q", ErrInvalidValue, text)
	}
	return codes, nil
}

type switchResolver struct{}

func (switchResolver) Blob() bool { return false }

func (r switchResolver) Encode(f Field, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case bool:
		return strconv.FormatBool(t), nil
	case string:
		return r.FromText(f, t)
	}
	return "", fmt.Errorf("%w: %T is not a switch value", ErrInvalidValue, v)
}

func (switchResolver) Decode(_ Field, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a switch value", ErrInvalidValue, raw)
	}
	return b, nil
}

func (r switchResolver) Transform(f Field, raw string) (any, error) {
	return r.Decode(f, raw)
}

func (switchResolver) FromText(_ Field, text string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "":
		return "", nil
	case "true", "1", "yes", "y", "是", "开":
		return "true", nil
	case "false", "0", "no", "n", "否", "关":
		return "false", nil
	}
	return "", fmt.Errorf("%w: %q is not a switch value", ErrInvalidValue, text)
}

// subTableResolver handles product and price line tables. Storage flattens
// rows into one record per cell; this resolver works on the JSON form used
// in snapshots and logs.
type subTableResolver struct {
	registry *Registry
}

func (subTableResolver) Blob() bool { return true }

func (subTableResolver) Encode(_ Field, v any) (string, error) {
	rows, err := Rows(v)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return string(data), nil
}

func (subTableResolver) Decode(_ Field, raw string) (any, error) {
	return Rows(raw)
}

func (r subTableResolver) Transform(f Field, raw string) (any, error) {
	rows, err := Rows(raw)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		display := make(map[string]any, len(f.SubFields))
		for _, sub := range f.SubFields {
			cell, err := r.registry.Encode(sub, row[sub.ID])
			if err != nil {
				return nil, err
			}
			if display[sub.ID], err = r.registry.Transform(sub, cell); err != nil {
				return nil, err
			}
		}
		out = append(out, display)
	}
	return out, nil
}

func (subTableResolver) FromText(f Field, _ string) (string, error) {
	return "", fmt.Errorf("%w: %s cannot be imported from text", ErrUnsupported, f.Type)
}

// Rows normalizes a sub-table value into rows keyed by sub-field id.
func Rows(v any) ([]map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return t, nil
	case []any:
		rows := make([]map[string]any, 0, len(t))
		for _, item := range t {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: sub-table row is %T", ErrInvalidValue, item)
			}
			rows = append(rows, row)
		}
		return rows, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		var rows []map[string]any
		dec := json.NewDecoder(strings.NewReader(t))
		dec.UseNumber()
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return rows, nil
	}
	return nil, fmt.Errorf("%w: %T is not a sub-table", ErrInvalidValue, v)
}

func scalarString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	case decimal.Decimal:
		return t.String(), nil
	}
	return "", fmt.Errorf("%w: %T is not a scalar", ErrInvalidValue, v)
}

func encodeList(v any) (string, error) {
	values, err := stringList(v)
	if err != nil {
		return "", err
	}
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return stringList(raw)
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if strings.HasPrefix(s, "[") {
			var items []any
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			return stringList(items)
		}
		return []string{s}, nil
	}
	s, err := scalarString(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func splitImportList(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '，' || r == ';' || r == '；'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
