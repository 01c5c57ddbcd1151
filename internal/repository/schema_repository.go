package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/reportql/internal/db"
	"github.com/rpattn/reportql/internal/schema"
)

// schemaRepository implements SchemaRepository on PostgreSQL
type schemaRepository struct {
	conn *db.Connection
}

// NewSchemaRepository creates a new schema repository
func NewSchemaRepository(conn *db.Connection) SchemaRepository {
	return &schemaRepository{conn: conn}
}

// Save upserts the field list for an entity type.
func (r *schemaRepository) Save(ctx context.Context, entityType string, fields []schema.Field) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode schema fields: %w", err)
	}
	_, err = r.conn.Pool.Exec(ctx,
		`INSERT INTO entity_schemas (entity_type, fields)
		 VALUES ($1, $2)
		 ON CONFLICT (entity_type) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`,
		entityType, raw)
	if err != nil {
		return fmt.Errorf("save schema %s: %w", entityType, err)
	}
	return nil
}

// Get returns the field list for an entity type.
func (r *schemaRepository) Get(ctx context.Context, entityType string) ([]schema.Field, error) {
	var raw []byte
	err := r.conn.Pool.QueryRow(ctx,
		`SELECT fields FROM entity_schemas WHERE entity_type = $1`, entityType).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("schema %s: %w", entityType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", entityType, err)
	}
	var fields []schema.Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", entityType, err)
	}
	return fields, nil
}

// LoadAll registers every persisted entity schema with the registry,
// typically at startup.
func (r *schemaRepository) LoadAll(ctx context.Context, registry *schema.Registry) error {
	rows, err := r.conn.Pool.Query(ctx, `SELECT entity_type, fields FROM entity_schemas`)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityType string
		var raw []byte
		if err := rows.Scan(&entityType, &raw); err != nil {
			return fmt.Errorf("scan schema: %w", err)
		}
		var fields []schema.Field
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("decode schema %s: %w", entityType, err)
		}
		registry.Register(entityType, fields)
	}
	return rows.Err()
}
