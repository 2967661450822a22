package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kopkad/savings-service/internal/domain"
)

type sweepRepoStub struct {
	overdue []domain.OverdueMarking
	err     error
	cutoff  time.Time
}

func (r *sweepRepoStub) ListOverduePendingMarkings(ctx context.Context, before time.Time) ([]domain.OverdueMarking, error) {
	r.cutoff = before
	if r.err != nil {
		return nil, r.err
	}
	return r.overdue, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessOverdueMarkings_PublishesOnePerMarking(t *testing.T) {
	repo := &sweepRepoStub{
		overdue: []domain.OverdueMarking{
			{
				PlanID:         uuid.New(),
				TrackingNumber: "1111111111",
				CustomerID:     uuid.New(),
				ScheduledDate:  mustDate("2025-01-10"),
				Amount:         dec("1000"),
			},
			{
				PlanID:         uuid.New(),
				TrackingNumber: "2222222222",
				CustomerID:     uuid.New(),
				ScheduledDate:  mustDate("2025-01-11"),
				Amount:         dec("500"),
			},
		},
	}
	producer := &producerStub{}
	jobs := NewJobs(repo, producer, discardLogger())

	jobs.ProcessOverdueMarkings()

	if len(producer.published) != 2 {
		t.Fatalf("expected 2 overdue events, got %d", len(producer.published))
	}
	for _, ev := range producer.published {
		if ev.routingKey != domain.EventMarkingOverdue {
			t.Fatalf("expected routing key %s, got %s", domain.EventMarkingOverdue, ev.routingKey)
		}
	}
	event, ok := producer.published[0].body.(domain.MarkingOverdueEvent)
	if !ok {
		t.Fatalf("expected a MarkingOverdueEvent body, got %T", producer.published[0].body)
	}
	if event.TrackingNumber != "1111111111" || event.ScheduledDate != "2025-01-10" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestProcessOverdueMarkings_CutoffIsTodayUTC(t *testing.T) {
	repo := &sweepRepoStub{}
	jobs := NewJobs(repo, &producerStub{}, discardLogger())

	jobs.ProcessOverdueMarkings()

	want := domain.DateOnly(time.Now().UTC())
	if !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestProcessOverdueMarkings_RepositoryErrorPublishesNothing(t *testing.T) {
	repo := &sweepRepoStub{err: errors.New("db down")}
	producer := &producerStub{}
	jobs := NewJobs(repo, producer, discardLogger())

	jobs.ProcessOverdueMarkings()

	if len(producer.published) != 0 {
		t.Fatalf("expected no events on a failed scan, got %d", len(producer.published))
	}
}
