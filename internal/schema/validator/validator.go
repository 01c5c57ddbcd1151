package validator

import (
	"fmt"

	"github.com/rpattn/reportql/internal/schema"
)

// ValidateFields ensures an entity type's field definitions are internally
// consistent before registration: names are unique, relation fields declare a
// related type, and primitive fields declare a kind.
func ValidateFields(fields []schema.Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field.Name == "" {
			return fmt.Errorf("field name is required")
		}
		if _, ok := seen[field.Name]; ok {
			return fmt.Errorf("duplicate field %s", field.Name)
		}
		seen[field.Name] = struct{}{}

		if field.IsRelation {
			if field.RelatedType == "" {
				return fmt.Errorf("relation field %s must declare a related type", field.Name)
			}
			continue
		}
		if field.RelatedType != "" {
			return fmt.Errorf("field %s cannot declare a related type because it is not a relation", field.Name)
		}
		if field.Kind == "" {
			return fmt.Errorf("field %s must declare a kind", field.Name)
		}
	}
	return nil
}

// ValidateRegistry checks that every relation in the registry points at a
// registered entity type.
func ValidateRegistry(registry *schema.Registry) error {
	for _, entityType := range registry.Types() {
		fields, _ := registry.FieldsOf(entityType)
		for _, field := range fields {
			if !field.IsRelation {
				continue
			}
			if _, ok := registry.FieldsOf(field.RelatedType); !ok {
				return fmt.Errorf("%s.%s references unknown entity type %s", entityType, field.Name, field.RelatedType)
			}
		}
	}
	return nil
}
