package services

import (
    "context"
    "math"
    "sort"

    "github.com/abdigi/redmine-pulse/internal/domain"
)

// TaskRollup is the per-task row of the dashboard.
type TaskRollup struct {
    IssueID      int64   `json:"issue_id"`
    Subject      string  `json:"subject"`
    Weight       float64 `json:"weight"`
    Progress     float64 `json:"progress"`
    ActualWeight float64 `json:"actual_weight"`
    ChildCount   int     `json:"child_count"`
    CountsInBase bool    `json:"counts_in_base"`
}

// AggregateResult is the weighted roll-up for one viewer and period.
type AggregateResult struct {
    PerformancePct    int
    TotalWeight       float64
    TotalActualWeight float64
    TaskCount         int
    PlanCount         int
    Tasks             []TaskRollup
}

// aggregate computes the weighted performance percentage. Only personal
// plans earn achieved weight; tasks contribute their weight to the base
// unless a period-filtered plan already reports under them, which would
// count the same work twice. Tasks and plans without a usable target for
// the period are invisible to the roll-up.
func (s *Service) aggregate(ctx context.Context, rctx domain.RequestContext, tasks, plans []domain.Issue) AggregateResult {
    var res AggregateResult

    parentOfPlan := map[int64]bool{}
    for i := range plans {
        iss := &plans[i]
        if !s.hasTarget(iss, rctx.Period) { continue }
        res.PlanCount++
        w := s.weight(iss)
        res.TotalWeight += w
        res.TotalActualWeight += w * s.progress(iss, rctx.Period) / 100
        if iss.Parent != nil { parentOfPlan[iss.Parent.ID] = true }
    }

    for i := range tasks {
        iss := &tasks[i]
        if !s.hasTarget(iss, rctx.Period) { continue }
        res.TaskCount++
        w := s.weight(iss)
        row := TaskRollup{
            IssueID:      iss.ID,
            Subject:      iss.Subject,
            Weight:       w,
            CountsInBase: !parentOfPlan[iss.ID],
        }
        avg, measured := s.childProgress(ctx, rctx, iss)
        row.Progress = avg
        if measured == 0 {
            // no measurable children: the task's own completion stands in
            row.Progress = float64(iss.DoneRatio)
        }
        row.ActualWeight = w * row.Progress / 100
        if subs, err := s.cache.SubIssuesFor(ctx, iss, rctx.ViewerID); err == nil {
            row.ChildCount = len(subs)
        }
        if row.CountsInBase { res.TotalWeight += w }
        res.Tasks = append(res.Tasks, row)
    }
    sort.Slice(res.Tasks, func(i, j int) bool { return res.Tasks[i].IssueID < res.Tasks[j].IssueID })

    if res.TotalWeight > 0 {
        res.PerformancePct = int(math.Round(clamp(res.TotalActualWeight*100/res.TotalWeight, 0, 100)))
    }
    return res
}

// childProgress averages the period progress of the task's own-assigned
// sub-issues that have a usable target, returning how many were measurable.
// Lookup failures read as no children.
func (s *Service) childProgress(ctx context.Context, rctx domain.RequestContext, task *domain.Issue) (float64, int) {
    subs, err := s.cache.SubIssuesFor(ctx, task, rctx.ViewerID)
    if err != nil { return 0, 0 }
    var sum float64
    n := 0
    for i := range subs {
        if !s.hasTarget(&subs[i], rctx.Period) { continue }
        sum += s.progress(&subs[i], rctx.Period)
        n++
    }
    if n == 0 { return 0, 0 }
    return sum / float64(n), n
}
