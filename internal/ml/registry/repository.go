// Package registry persists frozen model artifacts and the feature
// schema each was trained against.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"signalforge/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createModelVersionsTable = `
CREATE TABLE IF NOT EXISTS model_versions (
    id              BIGSERIAL PRIMARY KEY,
    model_key       TEXT        NOT NULL,
    version         INT         NOT NULL,
    feature_schema  JSONB       NOT NULL,
    trained_from    TIMESTAMPTZ NOT NULL,
    trained_to      TIMESTAMPTZ NOT NULL,
    trained_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metrics_json    JSONB       NOT NULL DEFAULT '{}',
    artifact_format TEXT        NOT NULL,
    artifact_blob   BYTEA       NOT NULL,
    is_active       BOOLEAN     NOT NULL DEFAULT FALSE,
    activated_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (model_key, version)
);

CREATE INDEX IF NOT EXISTS idx_model_versions_active
    ON model_versions (model_key) WHERE is_active = TRUE;
`

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

func (r *Repository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "model-registry.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createModelVersionsTable)
	return err
}

// NextVersion returns the next free version number for a model key.
func (r *Repository) NextVersion(ctx context.Context, modelKey string) (int, error) {
	_, span := r.tracer.Start(ctx, "model-registry.next-version")
	defer span.End()

	var next int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE model_key = $1`,
		modelKey,
	).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *Repository) InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.insert")
	defer span.End()

	if model.ModelKey == "" || model.Version <= 0 {
		return nil, errors.New("invalid model version payload")
	}
	if len(model.FeatureSchema) == 0 {
		return nil, errors.New("model version missing its feature schema")
	}
	schema, err := json.Marshal(model.FeatureSchema)
	if err != nil {
		return nil, fmt.Errorf("encode feature schema: %w", err)
	}

	out := model
	err = r.pool.QueryRow(ctx, `
INSERT INTO model_versions (
    model_key, version, feature_schema,
    trained_from, trained_to,
    metrics_json, artifact_format, artifact_blob,
    is_active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, trained_at, created_at`,
		model.ModelKey, model.Version, schema,
		model.TrainedFrom.UTC(), model.TrainedTo.UTC(),
		fallbackJSON(model.MetricsJSON), model.ArtifactFormat, model.ArtifactBlob,
		model.IsActive,
	).Scan(&out.ID, &out.TrainedAt, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetActiveModel returns the active version for a model key, or nil
// when none is active.
func (r *Repository) GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-active")
	defer span.End()

	var out domain.ModelVersion
	var schema []byte
	err := r.pool.QueryRow(ctx, `
SELECT id, model_key, version, feature_schema,
       trained_from, trained_to, trained_at,
       metrics_json, artifact_format, artifact_blob,
       is_active, activated_at, created_at
FROM model_versions
WHERE model_key = $1 AND is_active = TRUE
ORDER BY version DESC
LIMIT 1`, modelKey).Scan(
		&out.ID, &out.ModelKey, &out.Version, &schema,
		&out.TrainedFrom, &out.TrainedTo, &out.TrainedAt,
		&out.MetricsJSON, &out.ArtifactFormat, &out.ArtifactBlob,
		&out.IsActive, &out.ActivatedAt, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(schema, &out.FeatureSchema); err != nil {
		return nil, fmt.Errorf("decode feature schema for %s v%d: %w", out.ModelKey, out.Version, err)
	}
	return &out, nil
}

// ActivateModel flips the active flag to one version atomically.
func (r *Repository) ActivateModel(ctx context.Context, modelKey string, version int) error {
	_, span := r.tracer.Start(ctx, "model-registry.activate")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE model_versions SET is_active = FALSE, activated_at = NULL WHERE model_key = $1`, modelKey); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE model_versions SET is_active = TRUE, activated_at = NOW() WHERE model_key = $1 AND version = $2`, modelKey, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func fallbackJSON(v string) string {
	if v == "" {
		return "{}"
	}
	return v
}
