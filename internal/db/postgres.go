package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/go-feed-sync/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TaxonomyType         = "type"
	TaxonomyLocation     = "location"
	TaxonomyAvailability = "availability"
)

// PostgresRepository stores properties, their classification terms and imported images
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresRepository(ctx context.Context, connString string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres not responding: %w", err)
	}

	logger.Info("Connected to Postgres", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return &PostgresRepository{pool: p, logger: logger}, nil
}

// FindByExternalID returns the stored entity, or nil when the id is unknown
func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (*models.StoredEntity, error) {
	query := `
		SELECT id, external_id, last_modified, record, created_at, updated_at
		FROM properties
		WHERE external_id = $1
	`

	var (
		e   models.StoredEntity
		raw []byte
	)
	err := r.pool.QueryRow(ctx, query, externalID).Scan(
		&e.ID,
		&e.ExternalID,
		&e.LastModified,
		&raw,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select property: %w", err)
	}

	if err := json.Unmarshal(raw, &e.Record); err != nil {
		return nil, fmt.Errorf("decode stored record %s: %w", externalID, err)
	}
	return &e, nil
}

// Upsert writes the entity keyed by external id and returns the stored id
func (r *PostgresRepository) Upsert(ctx context.Context, e *models.StoredEntity) (string, error) {
	record, err := json.Marshal(e.Record)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	query := `
		INSERT INTO properties (id, external_id, last_modified, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE
		SET last_modified = EXCLUDED.last_modified,
		    record        = EXCLUDED.record,
		    updated_at    = EXCLUDED.updated_at
		RETURNING id
	`

	var id string
	if err := r.pool.QueryRow(ctx, query,
		e.ID,
		e.ExternalID,
		e.LastModified,
		record,
		e.CreatedAt,
		e.UpdatedAt,
	).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert property: %w", err)
	}
	return id, nil
}

// SetClassifications replaces the entity's terms in one transaction
func (r *PostgresRepository) SetClassifications(ctx context.Context, entityID string, c models.Classifications) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin classification tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM property_terms WHERE entity_id = $1`, entityID); err != nil {
		return fmt.Errorf("clear terms: %w", err)
	}

	batch := &pgx.Batch{}
	insert := `INSERT INTO property_terms (entity_id, taxonomy, term) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	for _, t := range c.Types {
		batch.Queue(insert, entityID, TaxonomyType, t)
	}
	for _, a := range c.Availabilities {
		batch.Queue(insert, entityID, TaxonomyAvailability, a)
	}
	if c.Location != "" {
		batch.Queue(insert, entityID, TaxonomyLocation, c.Location)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert terms: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit terms: %w", err)
	}
	return nil
}

// Remove deletes a property and its terms. It reports whether a row existed.
func (r *PostgresRepository) Remove(ctx context.Context, externalID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM properties WHERE external_id = $1`, externalID)
	if err != nil {
		return false, fmt.Errorf("delete property: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}
