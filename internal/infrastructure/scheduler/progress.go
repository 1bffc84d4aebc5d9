package scheduler

import (
	"context"
	"encoding/json"

	"github.com/erp/sellersync/internal/domain/job"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Progress lets a running handler publish how far it has got. Reports are
// stored on the job row and replace the previous one.
type Progress interface {
	Report(ctx context.Context, v any)
}

// NopProgress discards reports.
type NopProgress struct{}

func (NopProgress) Report(context.Context, any) {}

type jobProgress struct {
	repo   job.Repository
	id     uuid.UUID
	logger *zap.Logger
}

func (p *jobProgress) Report(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("Failed to encode job progress", zap.Error(err))
		return
	}
	if err := p.repo.SaveProgress(context.WithoutCancel(ctx), p.id, string(data)); err != nil {
		p.logger.Warn("Failed to save job progress", zap.Error(err))
	}
}
