package field

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoResolver is returned when a field type has no registered resolver.
// It indicates a form configuration problem and is never retried.
var ErrNoResolver = errors.New("no resolver found")

// ErrInvalidValue is returned when a value cannot be converted for its type.
var ErrInvalidValue = errors.New("invalid field value")

// ErrUnsupported is returned for conversions a type does not offer.
var ErrUnsupported = errors.New("unsupported field conversion")

// Resolver converts values of one field type.
type Resolver interface {
	// Encode converts an API value into its stored string form.
	Encode(f Field, v any) (string, error)

	// Decode converts a stored string back into the API value.
	Decode(f Field, raw string) (any, error)

	// Transform converts a stored string into a display value for exports
	// and operation logs.
	Transform(f Field, raw string) (any, error)

	// FromText converts imported spreadsheet text into the stored form.
	FromText(f Field, text string) (string, error)

	// Blob reports whether values are kept in the blob table.
	Blob() bool
}

// Registry maps field types to resolvers.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[Type]Resolver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[Type]Resolver)}
}

// DefaultRegistry returns a registry with every built-in field type.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	text := textResolver{}
	for _, t := range []Type{TypeInput, TypePhone, TypeSerialNumber, TypeLocation} {
		r.Register(t, text)
	}
	r.Register(TypeTextarea, textResolver{blob: true})
	r.Register(TypeNumber, numberResolver{})
	r.Register(TypeDateTime, dateResolver{})

	single := optionResolver{}
	for _, t := range []Type{TypeRadio, TypeSelect, TypeMember, TypeDepartment} {
		r.Register(t, single)
	}
	multi := multiOptionResolver{}
	for _, t := range []Type{TypeCheckbox, TypeSelectMultiple, TypeMemberMultiple, TypeDepartmentMultiple} {
		r.Register(t, multi)
	}
	r.Register(TypeAttachment, attachmentResolver{})
	r.Register(TypePicture, attachmentResolver{})
	r.Register(TypeIndustry, industryResolver{})
	r.Register(TypeSwitch, switchResolver{})

	sub := subTableResolver{registry: r}
	r.Register(TypeSubProduct, sub)
	r.Register(TypeSubPrice, sub)

	return r
}

// Register adds a resolver for t.
// Panics if t is already registered.
func (r *Registry) Register(t Type, res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resolvers[t]; exists {
		panic(fmt.Sprintf("field resolver already registered: %s", t))
	}
	r.resolvers[t] = res
}

// Get returns the resolver for t.
func (r *Registry) Get(t Type) (Resolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resolvers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoResolver, t)
	}
	return res, nil
}

// Types returns all registered types, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.resolvers))
	for t := range r.resolvers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Transform resolves f and converts raw into its display value.
func (r *Registry) Transform(f Field, raw string) (any, error) {
	res, err := r.Get(f.Type)
	if err != nil {
		return nil, err
	}
	return res.Transform(f, raw)
}

// Decode resolves f and converts raw into its API value.
func (r *Registry) Decode(f Field, raw string) (any, error) {
	res, err := r.Get(f.Type)
	if err != nil {
		return nil, err
	}
	return res.Decode(f, raw)
}

// Encode resolves f and converts v into its stored form.
func (r *Registry) Encode(f Field, v any) (string, error) {
	res, err := r.Get(f.Type)
	if err != nil {
		return "", err
	}
	return res.Encode(f, v)
}

// FromText resolves f and converts imported text into its stored form.
func (r *Registry) FromText(f Field, text string) (string, error) {
	res, err := r.Get(f.Type)
	if err != nil {
		return "", err
	}
	return res.FromText(f, text)
}

// IsBlob reports whether f's values belong in the blob table.
func (r *Registry) IsBlob(f Field) (bool, error) {
	res, err := r.Get(f.Type)
	if err != nil {
		return false, err
	}
	return res.Blob(), nil
}
