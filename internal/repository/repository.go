// FilePath: internal/repository/repository.go
package repository

import (
	"context"

	"github.com/hydroguard/hydroguard/internal/models"
)

// DecisionLogRepository persists completed automatic irrigation decisions.
// The log is an audit trail; losing an insert never affects a decision.
type DecisionLogRepository interface {
	Insert(ctx context.Context, rec *models.DecisionRecord) error
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.DecisionRecord, error)
}

// NopDecisionLog discards records. Used when no audit database is
// configured.
type NopDecisionLog struct{}

func (NopDecisionLog) Insert(ctx context.Context, rec *models.DecisionRecord) error {
	return nil
}

func (NopDecisionLog) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.DecisionRecord, error) {
	return nil, nil
}
