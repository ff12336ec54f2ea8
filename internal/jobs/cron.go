package jobs

import (
    "context"
    "time"

    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/abdigi/redmine-pulse/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface{ RunSnapshot(ctx context.Context) error }

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.SnapshotCron, cr.snapshot)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) snapshot() {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute); defer cancel()
    // Advisory lock so only one replica snapshots; without a DB there is
    // nothing to persist to and nothing to lock against.
    if cr.repo != nil {
        const lockKey int64 = 515151
        ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
        if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
        if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
        defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    }
    cr.log.Info().Msg("cron: performance snapshot")
    if err := cr.svc.RunSnapshot(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: snapshot failed") }
}
