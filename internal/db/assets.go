package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Save stores an imported image and returns its asset id. Saving the same name for an
// entity again replaces the bytes and keeps the id.
func (r *PostgresRepository) Save(ctx context.Context, entityID, name string, data []byte, contentType string) (string, error) {
	query := `
		INSERT INTO image_assets (id, entity_id, image_name, content_type, size_bytes, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_id, image_name) DO UPDATE
		SET content_type = EXCLUDED.content_type,
		    size_bytes   = EXCLUDED.size_bytes,
		    data         = EXCLUDED.data
		RETURNING id
	`

	var id string
	err := r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		entityID,
		name,
		contentType,
		len(data),
		data,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save image asset %s/%s: %w", entityID, name, err)
	}
	return id, nil
}

// ImportedNames returns the image names already imported for an entity
func (r *PostgresRepository) ImportedNames(ctx context.Context, entityID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT image_name FROM image_assets WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list image assets: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan image asset: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}
