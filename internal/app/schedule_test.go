package app

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kopkad/savings-service/internal/domain"
)

func TestDailyScheduleSpan(t *testing.T) {
	tests := []struct {
		name     string
		daily    string
		start    string
		months   int
		wantEnd  string
		wantDays int
		wantErr  bool
	}{
		{
			name:     "one calendar month from january",
			daily:    "1000",
			start:    "2025-01-01",
			months:   1,
			wantEnd:  "2025-01-31",
			wantDays: 31,
		},
		{
			name:     "one calendar month from february",
			daily:    "500",
			start:    "2025-02-01",
			months:   1,
			wantEnd:  "2025-02-28",
			wantDays: 28,
		},
		{
			name:     "three months spanning quarter",
			daily:    "250",
			start:    "2025-03-15",
			months:   3,
			wantEnd:  "2025-06-14",
			wantDays: 92,
		},
		{
			name:    "zero months rejected",
			daily:   "1000",
			start:   "2025-01-01",
			months:  0,
			wantErr: true,
		},
		{
			name:    "non-positive amount rejected",
			daily:   "0",
			start:   "2025-01-01",
			months:  1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, days, err := dailyScheduleSpan(dec(tt.daily), mustDate(tt.start), tt.months)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Fatalf("expected ErrInvalidSchedule, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !end.Equal(mustDate(tt.wantEnd)) {
				t.Fatalf("expected end %s, got %s", tt.wantEnd, end)
			}
			if days != tt.wantDays {
				t.Fatalf("expected %d days, got %d", tt.wantDays, days)
			}
		})
	}
}

func TestTargetScheduleSpan(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		start     string
		end       string
		wantDays  int
		wantDaily string
		wantErr   bool
	}{
		{
			name:      "thirty thousand over thirty days",
			target:    "30000",
			start:     "2025-01-01",
			end:       "2025-01-30",
			wantDays:  30,
			wantDaily: "1000",
		},
		{
			name:      "uneven division rounds to two places",
			target:    "10000",
			start:     "2025-01-01",
			end:       "2025-01-31",
			wantDays:  31,
			wantDaily: "322.58",
		},
		{
			name:    "end before start rejected",
			target:  "30000",
			start:   "2025-01-30",
			end:     "2025-01-01",
			wantErr: true,
		},
		{
			name:    "end equal to start rejected",
			target:  "30000",
			start:   "2025-01-01",
			end:     "2025-01-01",
			wantErr: true,
		},
		{
			name:    "non-positive target rejected",
			target:  "0",
			start:   "2025-01-01",
			end:     "2025-01-30",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, daily, err := targetScheduleSpan(dec(tt.target), mustDate(tt.start), mustDate(tt.end))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSchedule) {
					t.Fatalf("expected ErrInvalidSchedule, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if days != tt.wantDays {
				t.Fatalf("expected %d days, got %d", tt.wantDays, days)
			}
			if !daily.Equal(dec(tt.wantDaily)) {
				t.Fatalf("expected daily %s, got %s", tt.wantDaily, daily)
			}
		})
	}
}

func TestGenerateMarkings_ContiguousDatesAndTotal(t *testing.T) {
	planID := uuid.New()
	start := mustDate("2025-01-01")
	markings := generateMarkings(planID, start, 30, dec("1000"))

	if len(markings) != 30 {
		t.Fatalf("expected 30 markings, got %d", len(markings))
	}
	total := decimal.Zero
	for i, m := range markings {
		want := start.AddDate(0, 0, i)
		if !m.ScheduledDate.Equal(want) {
			t.Fatalf("marking %d: expected date %s, got %s", i, want, m.ScheduledDate)
		}
		if m.PlanID != planID {
			t.Fatalf("marking %d: wrong plan id", i)
		}
		if m.Status != "PENDING" {
			t.Fatalf("marking %d: expected PENDING, got %s", i, m.Status)
		}
		total = total.Add(m.Amount)
	}
	if !total.Equal(dec("30000")) {
		t.Fatalf("expected markings to total 30000, got %s", total)
	}
}

func TestCalculateTargetProjection(t *testing.T) {
	s := newTestService(&repoStub{}, &gatewayStub{}, &directoryStub{}, &producerStub{})

	projection, err := s.CalculateTargetProjection(domainTargetRequest("45000", "2025-02-01", "2025-03-02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if projection.TotalDays != 30 {
		t.Fatalf("expected 30 days, got %d", projection.TotalDays)
	}
	if !projection.DailyAmount.Equal(dec("1500")) {
		t.Fatalf("expected daily 1500, got %s", projection.DailyAmount)
	}

	_, err = s.CalculateTargetProjection(domainTargetRequest("45000", "not-a-date", "2025-03-02"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for a bad date, got %v", err)
	}
}

func domainTargetRequest(target, start, end string) domain.CreateTargetPlanRequest {
	return domain.CreateTargetPlanRequest{
		CustomerID:   uuid.New(),
		BusinessID:   uuid.New(),
		TargetAmount: dec(target),
		StartDate:    start,
		EndDate:      end,
	}
}
