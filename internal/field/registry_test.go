package field

import (
	"errors"
	"testing"
)

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	for _, typ := range []Type{
		TypeInput, TypeTextarea, TypeNumber, TypeDateTime, TypeRadio, TypeCheckbox,
		TypeSelect, TypeSelectMultiple, TypeMember, TypeMemberMultiple, TypeDepartment,
		TypeDepartmentMultiple, TypeAttachment, TypePicture, TypeIndustry, TypePhone,
		TypeSerialNumber, TypeLocation, TypeSwitch, TypeSubProduct, TypeSubPrice,
	} {
		if _, err := r.Get(typ); err != nil {
			t.Errorf("Get(%s) error = %v", typ, err)
		}
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := DefaultRegistry()

	_, err := r.Get("HOLOGRAM")
	if !errors.Is(err, ErrNoResolver) {
		t.Fatalf("Get(HOLOGRAM) error = %v, want ErrNoResolver", err)
	}
	if _, err := r.Transform(Field{Type: "HOLOGRAM"}, "x"); !errors.Is(err, ErrNoResolver) {
		t.Errorf("Transform() error = %v, want ErrNoResolver", err)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(TypeInput, textResolver{})

	defer func() {
		if recover() == nil {
			t.Error("Register() of a duplicate type did not panic")
		}
	}()
	r.Register(TypeInput, textResolver{})
}

func TestRegistry_TypesSorted(t *testing.T) {
	types := DefaultRegistry().Types()
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("Types() not sorted at %d: %s >= %s", i, types[i-1], types[i])
		}
	}
}

func TestRegistry_Blob(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		typ  Type
		want bool
	}{
		{TypeInput, false},
		{TypeTextarea, true},
		{TypeNumber, false},
		{TypeCheckbox, true},
		{TypeMemberMultiple, true},
		{TypeAttachment, true},
		{TypeMember, false},
		{TypeSubProduct, true},
	}
	for _, tt := range tests {
		got, err := r.IsBlob(Field{Type: tt.typ})
		if err != nil {
			t.Fatalf("IsBlob(%s) error = %v", tt.typ, err)
		}
		if got != tt.want {
			t.Errorf("IsBlob(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
