package services

import (
    "context"
    "sync"

    "github.com/abdigi/redmine-pulse/internal/domain"
)

type issueDepth int

const (
    depthUnknown issueDepth = iota // parent chain unresolvable, excluded
    depthGoal                      // root issue
    depthTask                      // child of a root
    depthPlan                      // grandchild of a root
)

// classify splits the viewer's assignments into tasks (depth 1) and
// personal plans (depth 2) by walking parent links through the issue cache.
// Lookups run in small concurrent batches. An issue whose ancestry cannot
// be resolved, or that sits deeper than two levels, is dropped: better to
// under-report than to misfile a plan as a task.
func (s *Service) classify(ctx context.Context, issues []domain.Issue) (tasks, plans []domain.Issue) {
    depths := make([]issueDepth, len(issues))
    for start := 0; start < len(issues); start += s.batch {
        end := start + s.batch
        if end > len(issues) { end = len(issues) }
        var wg sync.WaitGroup
        for i := start; i < end; i++ {
            wg.Add(1)
            go func(i int) {
                defer wg.Done()
                depths[i] = s.depthOf(ctx, &issues[i])
            }(i)
        }
        wg.Wait()
    }
    for i := range issues {
        switch depths[i] {
        case depthTask:
            tasks = append(tasks, issues[i])
        case depthPlan:
            plans = append(plans, issues[i])
        }
    }
    return tasks, plans
}

func (s *Service) depthOf(ctx context.Context, iss *domain.Issue) issueDepth {
    if iss.Parent == nil { return depthGoal }
    parent, err := s.cache.Get(ctx, iss.Parent.ID)
    if err != nil || parent == nil {
        s.log.Warn().Int64("issue", iss.ID).Int64("parent", iss.Parent.ID).Msg("classify: parent lookup failed, excluding issue")
        return depthUnknown
    }
    if parent.Parent == nil { return depthTask }
    grand, err := s.cache.Get(ctx, parent.Parent.ID)
    if err != nil || grand == nil {
        s.log.Warn().Int64("issue", iss.ID).Int64("grandparent", parent.Parent.ID).Msg("classify: grandparent lookup failed, excluding issue")
        return depthUnknown
    }
    if grand.Parent == nil { return depthPlan }
    return depthUnknown
}
