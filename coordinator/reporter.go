package coordinator

import (
	"context"

	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/session"
	"github.com/absmach/cohort/pkg/storage"
)

var _ session.Reporter = (*reportSink)(nil)

// reportSink stores the epoch reports of one fit.
type reportSink struct {
	repo    storage.ReportRepository
	modelID string
}

func (s *reportSink) Report(ctx context.Context, r session.Report) error {
	return s.repo.Append(context.WithoutCancel(ctx), model.FromSession(s.modelID, r))
}
