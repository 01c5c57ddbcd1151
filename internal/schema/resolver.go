package schema

import (
	"strings"

	"github.com/rpattn/reportql/internal/domain"
)

// Resolution is the outcome of walking a field path from a root type. Terminal
// is the last field reached; Relations lists the relation fields traversed to
// get there, in order.
type Resolution struct {
	Terminal  Field
	Relations []Field
}

// IsRelation reports whether the path ends on a relation rather than a
// primitive field.
func (r Resolution) IsRelation() bool { return r.Terminal.IsRelation }

// Resolve walks fieldPath from rootType one segment at a time, switching the
// current type whenever a segment names a relation. It returns false when any
// segment does not exist on the current type; callers treat that as "skip
// this clause", never as a fatal error, since stored definitions may reference
// stale schema.
func Resolve(p Provider, rootType, fieldPath string) (Resolution, bool) {
	if fieldPath == "" {
		return Resolution{}, false
	}
	segments := strings.Split(fieldPath, domain.PathSeparator)
	currentType := rootType
	var res Resolution
	for i, segment := range segments {
		fields, ok := p.FieldsOf(currentType)
		if !ok {
			return Resolution{}, false
		}
		field, ok := fieldByName(fields, segment)
		if !ok {
			return Resolution{}, false
		}
		if i == len(segments)-1 {
			res.Terminal = field
			return res, true
		}
		if !field.IsRelation {
			// More segments remain but the current one is primitive.
			return Resolution{}, false
		}
		res.Relations = append(res.Relations, field)
		currentType = field.RelatedType
	}
	return Resolution{}, false
}

// TerminalKind resolves fieldPath and returns the primitive kind of its
// terminal field. Relations and unresolvable paths report false.
func TerminalKind(p Provider, rootType, fieldPath string) (FieldKind, bool) {
	res, ok := Resolve(p, rootType, fieldPath)
	if !ok || res.Terminal.IsRelation {
		return "", false
	}
	return res.Terminal.Kind, true
}

// DirectFields returns the non-relation fields of a type.
func DirectFields(p Provider, entityType string) []Field {
	fields, ok := p.FieldsOf(entityType)
	if !ok {
		return nil
	}
	direct := make([]Field, 0, len(fields))
	for _, f := range fields {
		if !f.IsRelation {
			direct = append(direct, f)
		}
	}
	return direct
}

// RelationFields returns the relation fields of a type.
func RelationFields(p Provider, entityType string) []Field {
	fields, ok := p.FieldsOf(entityType)
	if !ok {
		return nil
	}
	relations := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.IsRelation {
			relations = append(relations, f)
		}
	}
	return relations
}

// IndirectRelation is a two-hop relation reachable from the root type via one
// intermediate relation.
type IndirectRelation struct {
	Path        string
	Via         Field
	Field       Field
	RelatedType string
}

// IndirectRelations lists the relations reachable through each direct
// relation of rootType, excluding hops that loop straight back to the root
// type. The exclusion keeps field discovery free of cycles; Resolve itself
// will still follow a cyclic path when asked to.
func IndirectRelations(p Provider, rootType string) []IndirectRelation {
	var indirect []IndirectRelation
	for _, via := range RelationFields(p, rootType) {
		for _, f := range RelationFields(p, via.RelatedType) {
			if f.RelatedType == rootType {
				continue
			}
			indirect = append(indirect, IndirectRelation{
				Path:        via.Name + domain.PathSeparator + f.Name,
				Via:         via,
				Field:       f,
				RelatedType: f.RelatedType,
			})
		}
	}
	return indirect
}

func fieldByName(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
