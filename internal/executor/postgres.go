package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/schema"
)

// PostgresSource fetches report rows from the entities table, translating
// relation traversals into joins and the predicate into a parameterized
// WHERE clause. Casts follow the schema kind of each terminal field so
// comparisons happen in the right domain.
type PostgresSource struct {
	pool   *pgxpool.Pool
	schema schema.Provider
}

func NewPostgresSource(pool *pgxpool.Pool, provider schema.Provider) *PostgresSource {
	return &PostgresSource{pool: pool, schema: provider}
}

func (s *PostgresSource) Fetch(ctx context.Context, rootType string, predicate domain.Predicate, fieldPaths []string) ([]map[string]any, error) {
	b := newQueryBuilder(s.schema, rootType)

	selects := make([]string, 0, len(fieldPaths))
	for _, path := range fieldPaths {
		expr, _, ok := b.fieldExpr(path)
		if !ok {
			selects = append(selects, "NULL")
			continue
		}
		selects = append(selects, expr)
	}
	if len(selects) == 0 {
		return nil, fmt.Errorf("fetch %s: no fields to project", rootType)
	}

	where := []string{fmt.Sprintf("e0.entity_type = %s", b.bind(rootType))}
	for _, group := range predicate.Groups {
		cond, ok := b.groupCondition(group)
		if !ok {
			continue
		}
		where = append(where, cond)
	}

	query := fmt.Sprintf("SELECT %s FROM entities e0 %s WHERE %s",
		strings.Join(selects, ", "),
		strings.Join(b.joins, " "),
		strings.Join(where, " AND "))

	rows, err := s.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s rows: %w", rootType, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", rootType, err)
		}
		row := make(map[string]any, len(fieldPaths))
		for i, path := range fieldPaths {
			if i < len(values) {
				row[path] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s rows: %w", rootType, err)
	}
	return out, nil
}

// queryBuilder accumulates joins and bind arguments while field paths are
// translated to SQL expressions. Each distinct relation chain gets one
// join and one alias, shared across every path that traverses it.
type queryBuilder struct {
	schema   schema.Provider
	rootType string
	joins    []string
	aliases  map[string]string
	args     []any
}

func newQueryBuilder(provider schema.Provider, rootType string) *queryBuilder {
	return &queryBuilder{
		schema:   provider,
		rootType: rootType,
		aliases:  map[string]string{"": "e0"},
	}
}

func (b *queryBuilder) bind(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

// fieldExpr resolves a field path to a cast SQL expression, registering the
// joins its relation hops need. The second return is the raw text
// expression without casts, used by text matching operators.
func (b *queryBuilder) fieldExpr(path string) (string, string, bool) {
	res, ok := schema.Resolve(b.schema, b.rootType, path)
	if !ok {
		return "", "", false
	}

	chain := ""
	alias := "e0"
	for _, rel := range res.Relations {
		parent := alias
		if chain == "" {
			chain = rel.Name
		} else {
			chain = chain + domain.PathSeparator + rel.Name
		}
		existing, seen := b.aliases[chain]
		if seen {
			alias = existing
		} else {
			alias = fmt.Sprintf("e%d", len(b.aliases))
			b.aliases[chain] = alias
			b.joins = append(b.joins, fmt.Sprintf(
				"LEFT JOIN entities %s ON %s.id::text = %s.properties ->> %s AND %s.entity_type = %s",
				alias, alias, parent, b.bind(rel.Name), alias, b.bind(rel.RelatedType)))
		}
	}

	raw := fmt.Sprintf("%s.properties ->> %s", alias, b.bind(res.Terminal.Name))
	return castExpr(raw, res.Terminal.Kind), raw, true
}

func castExpr(raw string, kind schema.FieldKind) string {
	switch {
	case kind.IsNumeric():
		return fmt.Sprintf("NULLIF(%s, '')::float8", raw)
	case kind == schema.KindBoolean:
		return fmt.Sprintf("NULLIF(%s, '')::boolean", raw)
	case kind.IsTemporal():
		return fmt.Sprintf("NULLIF(%s, '')::timestamptz", raw)
	}
	return raw
}

// groupCondition renders one clause group as an OR of clause conditions.
func (b *queryBuilder) groupCondition(group domain.ClauseGroup) (string, bool) {
	expr, raw, ok := b.fieldExpr(group.FieldPath)
	if !ok {
		return "", false
	}
	conds := make([]string, 0, len(group.Clauses))
	for _, clause := range group.Clauses {
		if cond, ok := b.clauseCondition(expr, raw, clause); ok {
			conds = append(conds, cond)
		}
	}
	if len(conds) == 0 {
		return "", false
	}
	if len(conds) == 1 {
		return conds[0], true
	}
	return "(" + strings.Join(conds, " OR ") + ")", true
}

func (b *queryBuilder) clauseCondition(expr, raw string, clause domain.Clause) (string, bool) {
	switch clause.Operator {
	case domain.FilterEquals:
		if clause.Value == nil {
			return fmt.Sprintf("%s IS NULL", expr), true
		}
		return fmt.Sprintf("%s = %s", expr, b.bind(clause.Value)), true
	case domain.FilterContains:
		s, ok := clause.Value.(string)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("%s ILIKE '%%' || %s || '%%'", raw, b.bind(s)), true
	case domain.FilterGreaterThan:
		return fmt.Sprintf("%s > %s", expr, b.bind(clause.Value)), true
	case domain.FilterLessThan:
		return fmt.Sprintf("%s < %s", expr, b.bind(clause.Value)), true
	case domain.FilterGTE:
		return fmt.Sprintf("%s >= %s", expr, b.bind(clause.Value)), true
	case domain.FilterLTE:
		return fmt.Sprintf("%s <= %s", expr, b.bind(clause.Value)), true
	case domain.FilterIn:
		return b.inCondition(expr, clause.Values)
	case domain.FilterRange:
		return fmt.Sprintf("%s BETWEEN %s AND %s", expr, b.bind(clause.Low), b.bind(clause.High)), true
	case domain.FilterIsNull:
		isNull, ok := clause.Value.(bool)
		if !ok {
			return "", false
		}
		if isNull {
			return fmt.Sprintf("%s IS NULL", expr), true
		}
		return fmt.Sprintf("%s IS NOT NULL", expr), true
	}
	return "", false
}

func (b *queryBuilder) inCondition(expr string, values []any) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	floats := make([]float64, 0, len(values))
	allNumeric := true
	for _, v := range values {
		f, ok := v.(float64)
		if !ok {
			allNumeric = false
			break
		}
		floats = append(floats, f)
	}
	if allNumeric {
		return fmt.Sprintf("%s = ANY(%s::float8[])", expr, b.bind(floats)), true
	}
	strs := make([]string, 0, len(values))
	for _, v := range values {
		strs = append(strs, fmt.Sprintf("%v", v))
	}
	return fmt.Sprintf("%s = ANY(%s::text[])", expr, b.bind(strs)), true
}
