/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "errors"
    "time"

    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// Snapshot is one persisted dashboard computation.
type Snapshot struct {
    ViewerID          int64     `json:"viewer_id"`
    Period            string    `json:"period"`
    PerformancePct    int       `json:"performance_pct"`
    TotalWeight       float64   `json:"total_weight"`
    TotalActualWeight float64   `json:"total_actual_weight"`
    TaskCount         int       `json:"task_count"`
    PlanCount         int       `json:"plan_count"`
    TakenAt           time.Time `json:"taken_at"`
}

func (r *Repository) SaveSnapshot(ctx context.Context, s Snapshot) error {
    const q = `INSERT INTO performance_snapshots(viewer_id, period, performance_pct,
            total_weight, total_actual_weight, task_count, plan_count, taken_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,now())`
    _, err := r.db.Pool.Exec(ctx, q, s.ViewerID, s.Period, s.PerformancePct,
        s.TotalWeight, s.TotalActualWeight, s.TaskCount, s.PlanCount)
    return err
}

func (r *Repository) BulkInsertSnapshots(ctx context.Context, ss []Snapshot) error {
    if len(ss) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO performance_snapshots(viewer_id, period, performance_pct,
            total_weight, total_actual_weight, task_count, plan_count, taken_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,now())`
    for _, s := range ss {
        batch.Queue(q, s.ViewerID, s.Period, s.PerformancePct, s.TotalWeight, s.TotalActualWeight, s.TaskCount, s.PlanCount)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range ss { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) SnapshotHistory(ctx context.Context, viewerID int64, period string) ([]Snapshot, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT viewer_id, period, performance_pct,
            total_weight, total_actual_weight, task_count, plan_count, taken_at
        FROM performance_snapshots WHERE viewer_id=$1 AND period=$2
        ORDER BY taken_at DESC LIMIT 90`, viewerID, period)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []Snapshot
    for rows.Next() {
        var s Snapshot
        if err := rows.Scan(&s.ViewerID, &s.Period, &s.PerformancePct,
            &s.TotalWeight, &s.TotalActualWeight, &s.TaskCount, &s.PlanCount, &s.TakenAt); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, nil
}

// AchievementLog is the audit row for one recorded achievement and its
// parent sync outcome.
type AchievementLog struct {
    IssueID      int64
    Quarter      int
    PrevValue    float64
    NewValue     float64
    ParentID     int64
    ParentSynced bool
}

func (r *Repository) LogAchievement(ctx context.Context, a AchievementLog) error {
    const q = `INSERT INTO achievement_log(issue_id, quarter, prev_value, new_value,
            parent_id, parent_synced, at)
        VALUES($1,$2,$3,$4,NULLIF($5,0),$6,now())`
    _, err := r.db.Pool.Exec(ctx, q, a.IssueID, a.Quarter, a.PrevValue, a.NewValue, a.ParentID, a.ParentSynced)
    return err
}

// Job runs
func (r *Repository) StartJobRun(ctx context.Context, periodsJSON string) (int64, error) {
    const q = `INSERT INTO job_runs(started_at, periods, success) VALUES(now(), $1, false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, periodsJSON).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, snapshotsSaved int, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), snapshots_saved=$2, success=$3, error=$4 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, snapshotsSaved, success, errStr)
    return err
}

type LastRun struct {
    StartedAt      time.Time  `json:"started_at"`
    FinishedAt     *time.Time `json:"finished_at"`
    Periods        string     `json:"periods"`
    SnapshotsSaved int        `json:"snapshots_saved"`
    Success        bool       `json:"success"`
    Error          string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT started_at, finished_at, periods::text,
        coalesce(snapshots_saved,0), coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.Periods, &lr.SnapshotsSaved, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}
