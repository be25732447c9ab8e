package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

// Overview 实例统计概览
type Overview struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`  // running / suspended / resumed / terminated
	ByOutcome      map[string]int `json:"by_outcome"` // 仅统计已终止的实例
	PendingReview  int            `json:"pending_review"`
	TodayCreated   int            `json:"today_created"`
	TodayPublished int            `json:"today_published"`
	InFlight       int            `json:"in_flight"`
	ScheduledJobs  int            `json:"scheduled_jobs"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Overview 从快照存储汇总实例数量
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	snaps, err := e.workflows.listAll(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("统计实例失败: %w", err)
	}

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	ov := &Overview{
		Total:         len(snaps),
		ByStatus:      make(map[string]int),
		ByOutcome:     make(map[string]int),
		InFlight:      e.workflows.InFlight(),
		ScheduledJobs: len(e.cronScheduler.GetRegisteredJobs()),
		GeneratedAt:   now,
	}
	for _, snap := range snaps {
		ov.ByStatus[string(snap.Status)]++
		if snap.Status == suspension.StatusSuspended {
			ov.PendingReview++
		}
		if snap.Status == suspension.StatusTerminated && snap.Outcome != "" {
			ov.ByOutcome[string(snap.Outcome)]++
			if snap.Outcome == workflow.OutcomePublished && !snap.UpdatedAt.Before(today) {
				ov.TodayPublished++
			}
		}
		if !snap.CreatedAt.IsZero() && !snap.CreatedAt.Before(today) {
			ov.TodayCreated++
		}
	}
	return ov, nil
}
