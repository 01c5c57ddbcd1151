package pipeline

import (
	"testing"

	"github.com/rpattn/reportql/internal/domain"
)

func TestResolveStyleFirstMatchWins(t *testing.T) {
	rules := []domain.ConditionalRule{
		{Condition: "{value} > 100", Style: map[string]string{"color": "red"}},
		{Condition: "{value} > 50", Style: map[string]string{"color": "orange"}},
	}

	style := ResolveStyle(rules, 150.0, map[string]any{})
	if style["color"] != "red" {
		t.Fatalf("expected first matching rule, got %v", style)
	}

	style = ResolveStyle(rules, 75.0, map[string]any{})
	if style["color"] != "orange" {
		t.Fatalf("expected second rule, got %v", style)
	}

	if style := ResolveStyle(rules, 10.0, map[string]any{}); style != nil {
		t.Fatalf("expected no match, got %v", style)
	}
}

func TestResolveStyleCanReferenceRowFields(t *testing.T) {
	rules := []domain.ConditionalRule{
		{Condition: "{status} == 'overdue' && {value} > 0", Style: map[string]string{"font-weight": "bold"}},
	}

	style := ResolveStyle(rules, 5.0, map[string]any{"status": "overdue"})
	if style["font-weight"] != "bold" {
		t.Fatalf("expected row-aware rule to match, got %v", style)
	}

	if style := ResolveStyle(rules, 5.0, map[string]any{"status": "paid"}); style != nil {
		t.Fatalf("expected rule not to match, got %v", style)
	}
}

func TestResolveStyleSkipsBrokenConditions(t *testing.T) {
	rules := []domain.ConditionalRule{
		{Condition: "{value} >", Style: map[string]string{"color": "red"}},
		{Condition: "", Style: map[string]string{"color": "blue"}},
		{Condition: "{value} == 1", Style: map[string]string{"color": "green"}},
	}

	style := ResolveStyle(rules, 1.0, map[string]any{})
	if style["color"] != "green" {
		t.Fatalf("expected broken rules to be skipped, got %v", style)
	}
}
