/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "encoding/json"
    "fmt"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    "github.com/abdigi/redmine-pulse/internal/adapters/redmine"
    "github.com/abdigi/redmine-pulse/internal/cache"
    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/abdigi/redmine-pulse/internal/domain"
    "github.com/abdigi/redmine-pulse/internal/repo"
    "github.com/rs/zerolog"
)

// Tracker is the slice of the Redmine client the core consumes.
type Tracker interface {
    GetIssue(ctx context.Context, id int64, include ...string) (*domain.Issue, error)
    ListAllIssues(ctx context.Context, f redmine.IssueFilter) ([]domain.Issue, error)
    UpdateIssue(ctx context.Context, id int64, upd redmine.IssueUpdate) error
    CreateIssue(ctx context.Context, in redmine.IssueCreate) (*domain.Issue, error)
    DeleteIssue(ctx context.Context, id int64) error
    CurrentUser(ctx context.Context) (*domain.User, error)
    GroupUsers(ctx context.Context, ref string) ([]domain.User, error)
}

type Service struct {
    cfg     config.Config
    log     zerolog.Logger
    repo    *repo.Repository
    tracker Tracker
    cache   *cache.IssueCache
    fields  domain.PlanFields
    batch   int

    // gen invalidates in-flight loads: a load commits its result only if
    // the generation it started under is still current.
    gen atomic.Uint64

    mu          sync.Mutex
    current     *domain.User
    groupsByID  map[int64][]domain.NameRef
    dashboards  map[string]*Dashboard
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, tracker Tracker) *Service {
    s := &Service{
        cfg:        cfg,
        log:        log,
        repo:       r,
        tracker:    tracker,
        fields:     domain.DefaultPlanFields().Apply(cfg.PlanFieldMap),
        batch:      cfg.ClassifyBatch,
        groupsByID: map[int64][]domain.NameRef{},
        dashboards: map[string]*Dashboard{},
    }
    if s.batch <= 0 { s.batch = 5 }
    s.cache = cache.New(fetcher{s}, cfg.CacheTTL, time.Now, log)
    return s
}

// fetcher adapts the service to the cache's fall-through interface.
type fetcher struct{ s *Service }

func (f fetcher) IssueByID(ctx context.Context, id int64) (*domain.Issue, error) {
    return f.s.tracker.GetIssue(ctx, id)
}

func (f fetcher) AssignedIssues(ctx context.Context, viewerID int64) ([]domain.Issue, error) {
    return f.s.assignedIssues(ctx, viewerID)
}

// Dashboard is the computed document the UI charts from.
type Dashboard struct {
    ViewerID          int64        `json:"viewer_id"`
    Period            string       `json:"period"`
    PerformancePct    int          `json:"performance_pct"`
    TotalWeight       float64      `json:"total_weight"`
    TotalActualWeight float64      `json:"total_actual_weight"`
    GoalCount         int          `json:"goal_count"`
    TaskCount         int          `json:"task_count"`
    PlanCount         int          `json:"plan_count"`
    Tasks             []TaskRollup `json:"tasks"`
    LoadedAt          time.Time    `json:"loaded_at"`
}

// resolveViewer fills in the viewer from the API-key account when the
// caller did not name one, and records the account's groups so assignment
// listing can include group-assigned issues.
func (s *Service) resolveViewer(ctx context.Context, rctx *domain.RequestContext) error {
    s.mu.Lock()
    cur := s.current
    s.mu.Unlock()
    if cur == nil {
        u, err := s.tracker.CurrentUser(ctx)
        if err != nil { return err }
        cur = u
        s.mu.Lock()
        s.current = u
        s.groupsByID[u.ID] = u.Groups
        s.mu.Unlock()
    }
    if rctx.ViewerID == 0 { rctx.ViewerID = cur.ID }
    return nil
}

// assignedIssues lists everything assigned to the viewer, directly or via
// any of the viewer's groups, deduplicated by issue id. Group filters are
// tried as an ordered list of id conventions; the first variant that yields
// issues wins and the rest are skipped.
func (s *Service) assignedIssues(ctx context.Context, viewerID int64) ([]domain.Issue, error) {
    direct, err := s.tracker.ListAllIssues(ctx, redmine.IssueFilter{AssignedTo: strconv.FormatInt(viewerID, 10)})
    if err != nil { return nil, err }

    seen := map[int64]struct{}{}
    out := make([]domain.Issue, 0, len(direct))
    for _, iss := range direct {
        if _, dup := seen[iss.ID]; dup { continue }
        seen[iss.ID] = struct{}{}
        out = append(out, iss)
    }

    s.mu.Lock()
    groups := s.groupsByID[viewerID]
    s.mu.Unlock()
    for _, g := range groups {
        variants := []string{strconv.FormatInt(g.ID, 10), "g" + strconv.FormatInt(g.ID, 10)}
        var viaGroup []domain.Issue
        for _, v := range variants {
            items, err := s.tracker.ListAllIssues(ctx, redmine.IssueFilter{AssignedTo: v})
            if err != nil {
                s.log.Warn().Err(err).Str("variant", v).Int64("group", g.ID).Msg("group assignment lookup failed")
                continue
            }
            if len(items) > 0 {
                viaGroup = items
                break
            }
        }
        for _, iss := range viaGroup {
            if _, dup := seen[iss.ID]; dup { continue }
            seen[iss.ID] = struct{}{}
            out = append(out, iss)
        }
    }
    return out, nil
}

// LoadDashboard computes the weighted performance document for the viewer
// and period. Results from loads that were superseded by a refresh are
// returned to the caller but not committed as current state.
func (s *Service) LoadDashboard(ctx context.Context, rctx domain.RequestContext) (*Dashboard, error) {
    gen := s.gen.Load()
    if err := s.resolveViewer(ctx, &rctx); err != nil { return nil, err }

    issues, err := s.assignedIssues(ctx, rctx.ViewerID)
    if err != nil { return nil, err }

    goals := 0
    for i := range issues {
        if issues[i].Parent == nil { goals++ }
    }
    tasks, plans := s.classify(ctx, issues)
    agg := s.aggregate(ctx, rctx, tasks, plans)

    d := &Dashboard{
        ViewerID:          rctx.ViewerID,
        Period:            rctx.Period.String(),
        PerformancePct:    agg.PerformancePct,
        TotalWeight:       agg.TotalWeight,
        TotalActualWeight: agg.TotalActualWeight,
        GoalCount:         goals,
        TaskCount:         agg.TaskCount,
        PlanCount:         agg.PlanCount,
        Tasks:             agg.Tasks,
        LoadedAt:          time.Now().UTC(),
    }
    s.commit(gen, rctx, d)
    return d, nil
}

func (s *Service) commit(gen uint64, rctx domain.RequestContext, d *Dashboard) {
    if s.gen.Load() != gen {
        s.log.Debug().Int64("viewer", rctx.ViewerID).Str("period", rctx.Period.String()).Msg("stale dashboard load discarded")
        return
    }
    s.mu.Lock()
    s.dashboards[dashKey(rctx)] = d
    s.mu.Unlock()
}

// CurrentDashboard returns the last committed document for the key, if any.
func (s *Service) CurrentDashboard(rctx domain.RequestContext) *Dashboard {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.dashboards[dashKey(rctx)]
}

// Refresh clears both caches, starts a new generation so in-flight loads
// are discarded on arrival, and reloads. Safe to invoke repeatedly and
// while a prior load is still running.
func (s *Service) Refresh(ctx context.Context, rctx domain.RequestContext) (*Dashboard, error) {
    s.cache.Reset()
    s.gen.Add(1)
    return s.LoadDashboard(ctx, rctx)
}

// TeamMembers lists the users of a tracker group (for per-team views).
func (s *Service) TeamMembers(ctx context.Context, groupRef string) ([]domain.User, error) {
    return s.tracker.GroupUsers(ctx, groupRef)
}

// CreateIssue and DeleteIssue are thin passthroughs for the editing forms;
// no aggregation logic hangs off them.
func (s *Service) CreateIssue(ctx context.Context, in redmine.IssueCreate) (*domain.Issue, error) {
    return s.tracker.CreateIssue(ctx, in)
}

func (s *Service) DeleteIssue(ctx context.Context, id int64) error {
    return s.tracker.DeleteIssue(ctx, id)
}

// RunSnapshot computes and persists the dashboard for each configured
// period. Without a database it is a no-op.
func (s *Service) RunSnapshot(ctx context.Context) error {
    if s.repo == nil {
        s.log.Debug().Msg("snapshot: no database configured, skipping")
        return nil
    }
    periodsJSON, _ := json.Marshal(s.cfg.SnapshotPeriods)
    runID, err := s.repo.StartJobRun(ctx, string(periodsJSON))
    if err != nil { s.log.Error().Err(err).Msg("snapshot: start job run failed") }
    saved := 0
    var runErr error
    defer func() {
        if runID == 0 { return }
        errStr := ""
        if runErr != nil { errStr = runErr.Error() }
        _ = s.repo.FinishJobRun(ctx, runID, saved, runErr == nil, errStr)
    }()
    for _, tok := range s.cfg.SnapshotPeriods {
        p, err := domain.ParsePeriod(tok)
        if err != nil {
            s.log.Warn().Str("period", tok).Msg("snapshot: unknown period token")
            continue
        }
        d, err := s.LoadDashboard(ctx, domain.RequestContext{Period: p})
        if err != nil {
            s.log.Error().Err(err).Str("period", tok).Msg("snapshot: dashboard load failed")
            runErr = err
            continue
        }
        err = s.repo.SaveSnapshot(ctx, repo.Snapshot{
            ViewerID:          d.ViewerID,
            Period:            d.Period,
            PerformancePct:    d.PerformancePct,
            TotalWeight:       d.TotalWeight,
            TotalActualWeight: d.TotalActualWeight,
            TaskCount:         d.TaskCount,
            PlanCount:         d.PlanCount,
        })
        if err != nil {
            s.log.Error().Err(err).Str("period", tok).Msg("snapshot: save failed")
            runErr = err
            continue
        }
        saved++
    }
    s.log.Info().Int("saved", saved).Msg("snapshot: done")
    return runErr
}

func (s *Service) GetLastRun(ctx context.Context) (any, error) {
    if s.repo == nil { return nil, nil }
    return s.repo.GetLastRun(ctx)
}

func (s *Service) SnapshotHistory(ctx context.Context, viewerID int64, period string) (any, error) {
    if s.repo == nil { return nil, nil }
    return s.repo.SnapshotHistory(ctx, viewerID, period)
}

func dashKey(rctx domain.RequestContext) string {
    return fmt.Sprintf("%d/%s", rctx.ViewerID, rctx.Period)
}
