// Package validator checks report definitions for problems before they are
// saved or executed: unresolvable field paths, unparseable formulas and
// aggregations missing their auxiliary parameters.
package validator

import (
	"fmt"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/formula"
	"github.com/rpattn/reportql/internal/schema"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

// DefinitionValidator validates report definitions against an entity schema
type DefinitionValidator struct {
	schema schema.Provider
}

// NewDefinitionValidator creates a new definition validator
func NewDefinitionValidator(provider schema.Provider) *DefinitionValidator {
	return &DefinitionValidator{schema: provider}
}

// Validate inspects the whole definition. Unresolvable filter paths are
// warnings because execution silently drops such filters; everything else
// that would break execution is an error.
func (v *DefinitionValidator) Validate(def domain.ReportDefinition) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	if def.Name == "" {
		result.addError("name", "report name is required")
	}
	if def.RootType == "" {
		result.addError("root_type", "root entity type is required")
	} else if _, ok := v.schema.FieldsOf(def.RootType); !ok {
		result.addError("root_type", fmt.Sprintf("unknown entity type %q", def.RootType))
	}

	for _, col := range def.Columns {
		v.validateColumn(def.RootType, col, &result)
	}
	for _, f := range def.Filters {
		if f.FieldPath == "" {
			result.addWarning("filters", "filter without a field path is ignored")
			continue
		}
		if _, ok := schema.Resolve(v.schema, def.RootType, f.FieldPath); !ok {
			result.addWarning(f.FieldPath, "filter field path does not resolve; the filter is ignored")
		}
	}
	for _, g := range def.Groupings {
		if _, ok := schema.Resolve(v.schema, def.RootType, g.FieldPath); !ok {
			result.addError(g.FieldPath, "grouping field path does not resolve")
		}
	}
	for _, cf := range def.CalculatedFields {
		if cf.Formula == "" {
			result.addError(cf.Name, "calculated field has no formula")
			continue
		}
		v.checkFormula(cf.Name, cf.Formula, &result)
	}

	return result
}

func (v *DefinitionValidator) validateColumn(rootType string, col domain.ReportColumn, result *ValidationResult) {
	name := col.Name
	if name == "" {
		name = col.FieldPath
	}
	switch {
	case col.IsFormula:
		if col.Formula == "" {
			result.addError(name, "formula column has no formula")
		} else {
			v.checkFormula(name, col.Formula, result)
		}
	case col.FieldPath == "":
		result.addError(name, "column needs a field path or a formula")
	default:
		if _, ok := schema.Resolve(v.schema, rootType, col.FieldPath); !ok {
			result.addError(name, fmt.Sprintf("field path %q does not resolve", col.FieldPath))
		}
	}

	switch col.Aggregation {
	case domain.AggregationCountIf, domain.AggregationSumIf:
		if col.Condition == "" {
			result.addError(name, fmt.Sprintf("%s needs a condition", col.Aggregation))
		} else {
			v.checkFormula(name, col.Condition, result)
		}
	case domain.AggregationMovingAvg:
		if col.WindowSize <= 0 {
			result.addError(name, "MOVING_AVG needs a positive window size")
		}
	}

	for _, rule := range col.ConditionalFormatting {
		if rule.Condition == "" {
			result.addWarning(name, "conditional formatting rule without a condition never matches")
			continue
		}
		v.checkFormula(name, rule.Condition, result)
	}
}

// checkFormula parses the template with placeholder values so syntax errors
// surface at save time instead of during execution.
func (v *DefinitionValidator) checkFormula(field, template string, result *ValidationResult) {
	expr := formula.SubstituteAll(template, 1)
	if err := formula.Check(expr); err != nil {
		result.addError(field, fmt.Sprintf("invalid formula: %v", err))
	}
}

func (r *ValidationResult) addError(field, msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: msg})
}

func (r *ValidationResult) addWarning(field, msg string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: msg})
}
