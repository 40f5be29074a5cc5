package quota

import (
	"context"
	"testing"
	"time"

	"paperbase/api/internal/store"
)

type fakeUsageStore struct {
	plans    map[string]string
	counters map[string]store.UsageCounter // key userID|month
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{
		plans:    make(map[string]string),
		counters: make(map[string]store.UsageCounter),
	}
}

func (f *fakeUsageStore) GetUsageCounter(_ context.Context, userID, month string) (store.UsageCounter, error) {
	counter, ok := f.counters[userID+"|"+month]
	if !ok {
		return store.UsageCounter{UserID: userID, Month: month}, nil
	}
	return counter, nil
}

func (f *fakeUsageStore) IncrementUsage(_ context.Context, userID, month, feature string, n int) error {
	key := userID + "|" + month
	counter := f.counters[key]
	switch feature {
	case "ai_questions":
		counter.AIQuestions += n
	case "tasks_created":
		counter.TasksCreated += n
	case "documents_created":
		counter.DocumentsCreated += n
	case "pdf_exports":
		counter.PDFExports += n
	case "calendar_events":
		counter.CalendarEvents += n
	case "file_uploads":
		counter.FileUploads += n
	}
	f.counters[key] = counter
	return nil
}

func (f *fakeUsageStore) GetUserPlan(_ context.Context, userID string) (string, error) {
	plan, ok := f.plans[userID]
	if !ok {
		return PlanFree, nil
	}
	return plan, nil
}

func (f *fakeUsageStore) SetUserPlan(_ context.Context, userID, plan string) error {
	f.plans[userID] = plan
	return nil
}

func newTestGuard(fake *fakeUsageStore, at time.Time) *Guard {
	guard := NewGuard(fake)
	guard.now = func() time.Time { return at }
	return guard
}

func TestCheckLimitFreeCeilings(t *testing.T) {
	cases := []struct {
		feature Feature
		limit   int
	}{
		{FeatureAIQuestions, 10},
		{FeatureTasksCreated, 3},
		{FeatureDocsCreated, 5},
		{FeaturePDFExports, 1},
		{FeatureCalendarEvents, 3},
		{FeatureFileUploads, 5},
	}
	for _, tc := range cases {
		t.Run(string(tc.feature), func(t *testing.T) {
			fake := newFakeUsageStore()
			guard := newTestGuard(fake, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
			ctx := context.Background()

			for i := 0; i < tc.limit; i++ {
				decision, err := guard.CheckLimit(ctx, "alice", tc.feature)
				if err != nil {
					t.Fatalf("check %d: %v", i, err)
				}
				if !decision.Allowed {
					t.Fatalf("unit %d of %d must be allowed", i+1, tc.limit)
				}
				if err := guard.Increment(ctx, "alice", tc.feature, 1); err != nil {
					t.Fatalf("increment: %v", err)
				}
			}

			decision, err := guard.CheckLimit(ctx, "alice", tc.feature)
			if err != nil {
				t.Fatalf("final check: %v", err)
			}
			if decision.Allowed {
				t.Fatalf("unit %d must be refused", tc.limit+1)
			}
			if decision.CurrentUsage != tc.limit || decision.Limit != tc.limit {
				t.Fatalf("decision fields off: %+v", decision)
			}
		})
	}
}

func TestCheckLimitProShortCircuits(t *testing.T) {
	fake := newFakeUsageStore()
	fake.plans["alice"] = PlanPro
	guard := newTestGuard(fake, time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		decision, err := guard.CheckLimit(ctx, "alice", FeaturePDFExports)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !decision.Allowed || !decision.IsPro {
			t.Fatalf("pro must always be allowed, got %+v", decision)
		}
	}
}

func TestCheckLimitUnknownFeature(t *testing.T) {
	guard := newTestGuard(newFakeUsageStore(), time.Now())
	if _, err := guard.CheckLimit(context.Background(), "alice", "time_travel"); err == nil {
		t.Fatal("unknown feature must error")
	}
}

func TestAllowanceResetsNextMonth(t *testing.T) {
	fake := newFakeUsageStore()
	guard := newTestGuard(fake, time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if err := guard.Increment(ctx, "alice", FeaturePDFExports, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	decision, err := guard.CheckLimit(ctx, "alice", FeaturePDFExports)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if decision.Allowed {
		t.Fatal("august allowance must be spent")
	}

	guard.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }
	decision, err = guard.CheckLimit(ctx, "alice", FeaturePDFExports)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !decision.Allowed || decision.CurrentUsage != 0 {
		t.Fatalf("september must start fresh, got %+v", decision)
	}
}

func TestMonthKeyIsUTC(t *testing.T) {
	fake := newFakeUsageStore()
	// Early on Sep 1 in UTC+10 it is still Aug 31 in UTC, and the
	// counter month must be keyed on UTC August.
	local := time.FixedZone("UTC+10", 10*3600)
	guard := newTestGuard(fake, time.Date(2026, 9, 1, 5, 0, 0, 0, local))

	if err := guard.Increment(context.Background(), "alice", FeatureAIQuestions, 2); err != nil {
		t.Fatalf("increment: %v", err)
	}
	counter, ok := fake.counters["alice|2026-08"]
	if !ok {
		t.Fatalf("expected counter keyed on 2026-08, have %v", fake.counters)
	}
	if counter.AIQuestions != 2 {
		t.Fatalf("expected 2 questions, got %d", counter.AIQuestions)
	}
}

func TestSetPlanValidates(t *testing.T) {
	fake := newFakeUsageStore()
	guard := newTestGuard(fake, time.Now())
	ctx := context.Background()

	if err := guard.SetPlan(ctx, "alice", "gold"); err == nil {
		t.Fatal("unknown plan must be rejected")
	}
	if err := guard.SetPlan(ctx, "alice", PlanPro); err != nil {
		t.Fatalf("set pro: %v", err)
	}
	plan, err := guard.Plan(ctx, "alice")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan != PlanPro {
		t.Fatalf("expected pro, got %q", plan)
	}
}
