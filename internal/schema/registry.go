package schema

import (
	"sort"
	"sync"
)

// FieldKind is the primitive kind of a schema field.
type FieldKind string

const (
	KindString   FieldKind = "string"
	KindText     FieldKind = "text"
	KindInteger  FieldKind = "integer"
	KindFloat    FieldKind = "float"
	KindDecimal  FieldKind = "decimal"
	KindBoolean  FieldKind = "boolean"
	KindDate     FieldKind = "date"
	KindDateTime FieldKind = "datetime"
)

// IsNumeric reports whether values of this kind coerce to float.
func (k FieldKind) IsNumeric() bool {
	switch k {
	case KindInteger, KindFloat, KindDecimal:
		return true
	}
	return false
}

// IsTemporal reports whether values of this kind are dates or timestamps.
func (k FieldKind) IsTemporal() bool {
	return k == KindDate || k == KindDateTime
}

// Field describes one field of an entity type. A relation field points at
// another entity type instead of carrying a primitive value.
type Field struct {
	Name        string    `json:"name"`
	Kind        FieldKind `json:"kind,omitempty"`
	IsRelation  bool      `json:"is_relation,omitempty"`
	RelatedType string    `json:"related_type,omitempty"`
}

// Provider exposes the fields of an entity type. The second result is false
// when the type is unknown.
type Provider interface {
	FieldsOf(entityType string) ([]Field, bool)
}

// Registry is an in-memory Provider built at startup, either from persisted
// entity schemas or programmatically by embedders.
type Registry struct {
	mu    sync.RWMutex
	types map[string][]Field
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string][]Field)}
}

// Register adds or replaces the field set of an entity type.
func (r *Registry) Register(entityType string, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[entityType] = append([]Field(nil), fields...)
}

// FieldsOf implements Provider.
func (r *Registry) FieldsOf(entityType string) ([]Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.types[entityType]
	if !ok {
		return nil, false
	}
	return append([]Field(nil), fields...), true
}

// Types returns the registered entity type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
