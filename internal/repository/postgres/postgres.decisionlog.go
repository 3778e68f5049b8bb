// FilePath: internal/repository/postgres/postgres.decisionlog.go
package postgres

import (
	"context"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/database"
	"github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
)

type DecisionLogRepo struct {
	PostgresBaseRepo
}

func NewDecisionLogRepository(db database.DB) *DecisionLogRepo {
	repo := &PostgresBaseRepo{db: db}
	return &DecisionLogRepo{PostgresBaseRepo: *repo}
}

// EnsureSchema creates the decision log table when missing. Called once at
// startup; the schema is append-only so there is nothing to migrate.
func (r *DecisionLogRepo) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS decision_log (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			humidity DOUBLE PRECISION NOT NULL,
			soil_moisture DOUBLE PRECISION NOT NULL,
			rain_pct DOUBLE PRECISION NOT NULL,
			rain_bin INTEGER NOT NULL,
			sunlight_bin INTEGER NOT NULL,
			http_code INTEGER NOT NULL,
			probability_on DOUBLE PRECISION NOT NULL,
			label TEXT NOT NULL,
			pump_on BOOLEAN NOT NULL,
			endpoint TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decision_log_device
			ON decision_log (device_id, created_at DESC)`

	if _, err := r.db.GetDB().ExecContext(ctx, query); err != nil {
		return errors.NewDatabaseError("failed to ensure decision log schema", err)
	}
	return nil
}

func (r *DecisionLogRepo) Insert(ctx context.Context, rec *models.DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = nuts.NID("dec", 12)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO decision_log (
			id, device_id, humidity, soil_moisture, rain_pct,
			rain_bin, sunlight_bin, http_code, probability_on,
			label, pump_on, endpoint, created_at
		) VALUES (
			:id, :device_id, :humidity, :soil_moisture, :rain_pct,
			:rain_bin, :sunlight_bin, :http_code, :probability_on,
			:label, :pump_on, :endpoint, :created_at
		)`

	if _, err := r.db.GetDB().NamedExecContext(ctx, query, rec); err != nil {
		return errors.NewDatabaseError("failed to insert decision record", err)
	}
	return nil
}

func (r *DecisionLogRepo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	records := []*models.DecisionRecord{}
	query := `
		SELECT * FROM decision_log
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	if err := r.db.GetDB().SelectContext(ctx, &records, query, deviceID, limit); err != nil {
		return nil, errors.NewDatabaseError("failed to list decision records", err)
	}
	return records, nil
}
