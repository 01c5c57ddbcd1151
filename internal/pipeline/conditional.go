package pipeline

import (
	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/formula"
)

// ResolveStyle evaluates a column's conditional formatting rules against a
// cell and returns the style map of the first rule whose condition holds.
// Rule conditions may reference the cell via {value} or any row field via
// its path; conditions that fail to evaluate are skipped.
func ResolveStyle(rules []domain.ConditionalRule, value any, row map[string]any) map[string]string {
	if len(rules) == 0 {
		return nil
	}
	env := make(map[string]any, len(row)+1)
	for k, v := range row {
		env[k] = v
	}
	env["value"] = value
	for _, rule := range rules {
		if rule.Condition == "" {
			continue
		}
		expr := formula.Substitute(rule.Condition, env)
		if formula.EvalBool(expr, env) {
			return rule.Style
		}
	}
	return nil
}
