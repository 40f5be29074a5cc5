// Package quota enforces the free-tier monthly ceilings. Counters are
// per user per calendar month; the pro plan is unlimited.
package quota

import (
	"context"
	"fmt"
	"time"

	"paperbase/api/internal/store"
)

type Feature string

const (
	FeatureAIQuestions    Feature = "ai_questions"
	FeatureTasksCreated   Feature = "tasks_created"
	FeatureDocsCreated    Feature = "documents_created"
	FeaturePDFExports     Feature = "pdf_exports"
	FeatureCalendarEvents Feature = "calendar_events"
	FeatureFileUploads    Feature = "file_uploads"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// freeCeilings are the monthly allowances on the free plan.
var freeCeilings = map[Feature]int{
	FeatureAIQuestions:    10,
	FeatureTasksCreated:   3,
	FeatureDocsCreated:    5,
	FeaturePDFExports:     1,
	FeatureCalendarEvents: 3,
	FeatureFileUploads:    5,
}

// Decision is the answer to "may this user consume this feature now".
type Decision struct {
	Allowed      bool `json:"allowed"`
	CurrentUsage int  `json:"currentUsage"`
	Limit        int  `json:"limit"`
	IsPro        bool `json:"isPro"`
}

type usageStore interface {
	GetUsageCounter(ctx context.Context, userID, month string) (store.UsageCounter, error)
	IncrementUsage(ctx context.Context, userID, month, feature string, n int) error
	GetUserPlan(ctx context.Context, userID string) (string, error)
	SetUserPlan(ctx context.Context, userID, plan string) error
}

type Guard struct {
	store usageStore
	now   func() time.Time
}

func NewGuard(usageStore usageStore) *Guard {
	return &Guard{store: usageStore, now: time.Now}
}

// month keys counters by UTC calendar month, so the allowance resets
// at the same instant for everyone.
func (g *Guard) month() string {
	return g.now().UTC().Format("2006-01")
}

func (g *Guard) Valid(feature Feature) bool {
	_, ok := freeCeilings[feature]
	return ok
}

// CheckLimit reports whether the user may consume one more unit of the
// feature this month. Pro users short-circuit without touching the
// counters. The check never consumes anything itself; callers increment
// after the operation succeeds, so the limit is advisory under
// concurrency.
func (g *Guard) CheckLimit(ctx context.Context, userID string, feature Feature) (Decision, error) {
	limit, ok := freeCeilings[feature]
	if !ok {
		return Decision{}, fmt.Errorf("unknown quota feature %q", feature)
	}

	plan, err := g.store.GetUserPlan(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("get plan: %w", err)
	}
	if plan == PlanPro {
		return Decision{Allowed: true, IsPro: true, Limit: limit}, nil
	}

	counter, err := g.store.GetUsageCounter(ctx, userID, g.month())
	if err != nil {
		return Decision{}, fmt.Errorf("get usage: %w", err)
	}
	used := counterValue(counter, feature)
	return Decision{
		Allowed:      used < limit,
		CurrentUsage: used,
		Limit:        limit,
	}, nil
}

// Increment consumes n units for the current month.
func (g *Guard) Increment(ctx context.Context, userID string, feature Feature, n int) error {
	return g.store.IncrementUsage(ctx, userID, g.month(), string(feature), n)
}

// Usage returns the current month's counter together with the free
// ceilings, for the usage endpoint.
func (g *Guard) Usage(ctx context.Context, userID string) (store.UsageCounter, map[Feature]int, error) {
	counter, err := g.store.GetUsageCounter(ctx, userID, g.month())
	if err != nil {
		return store.UsageCounter{}, nil, err
	}
	return counter, freeCeilings, nil
}

func (g *Guard) Plan(ctx context.Context, userID string) (string, error) {
	return g.store.GetUserPlan(ctx, userID)
}

// SetPlan switches the user's plan. Downgrading does not reset the
// month's counters; whatever was consumed stays consumed.
func (g *Guard) SetPlan(ctx context.Context, userID, plan string) error {
	if plan != PlanFree && plan != PlanPro {
		return fmt.Errorf("unknown plan %q", plan)
	}
	return g.store.SetUserPlan(ctx, userID, plan)
}

func counterValue(counter store.UsageCounter, feature Feature) int {
	switch feature {
	case FeatureAIQuestions:
		return counter.AIQuestions
	case FeatureTasksCreated:
		return counter.TasksCreated
	case FeatureDocsCreated:
		return counter.DocumentsCreated
	case FeaturePDFExports:
		return counter.PDFExports
	case FeatureCalendarEvents:
		return counter.CalendarEvents
	case FeatureFileUploads:
		return counter.FileUploads
	}
	return 0
}
