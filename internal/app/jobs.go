/**
 * @description
 * Scheduled background jobs. The overdue sweep scans for PENDING markings
 * dated before today on IN_PROGRESS plans and emits notification events.
 * It only reads the ledger; no job mutates plan or marking state.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/kopkad/savings-service/internal/domain"
	"github.com/kopkad/savings-service/pkg/rabbitmq"
)

const sweepTimeout = 2 * time.Minute

// SweepRepository is the read-only slice of the store the jobs need.
type SweepRepository interface {
	ListOverduePendingMarkings(ctx context.Context, before time.Time) ([]domain.OverdueMarking, error)
}

// Jobs holds the dependencies for scheduled jobs.
type Jobs struct {
	repo     SweepRepository
	producer rabbitmq.Publisher
	logger   *slog.Logger
}

// NewJobs creates a new jobs instance.
func NewJobs(repo SweepRepository, producer rabbitmq.Publisher, logger *slog.Logger) *Jobs {
	return &Jobs{repo: repo, producer: producer, logger: logger}
}

// ProcessOverdueMarkings publishes one overdue event per PENDING marking
// dated before today.
func (j *Jobs) ProcessOverdueMarkings() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	cutoff := domain.DateOnly(time.Now().UTC())
	overdue, err := j.repo.ListOverduePendingMarkings(ctx, cutoff)
	if err != nil {
		j.logger.Error("overdue sweep failed", "error", err)
		return
	}
	if len(overdue) == 0 {
		j.logger.Info("overdue sweep found nothing", "cutoff", cutoff.Format(domain.DateLayout))
		return
	}

	published := 0
	for _, om := range overdue {
		event := domain.MarkingOverdueEvent{
			PlanID:         om.PlanID,
			TrackingNumber: om.TrackingNumber,
			CustomerID:     om.CustomerID,
			ScheduledDate:  om.ScheduledDate.Format(domain.DateLayout),
			Amount:         om.Amount.StringFixed(2),
			Timestamp:      time.Now().UTC(),
		}
		if err := j.producer.Publish(ctx, domain.EventMarkingOverdue, event); err != nil {
			j.logger.Warn("failed to publish overdue event", "tracking_number", om.TrackingNumber, "error", err)
			continue
		}
		published++
	}
	j.logger.Info("overdue sweep complete", "overdue", len(overdue), "published", published)
}
