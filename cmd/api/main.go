/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/abdigi/redmine-pulse/internal/adapters/redmine"
    "github.com/abdigi/redmine-pulse/internal/config"
    apphttp "github.com/abdigi/redmine-pulse/internal/http"
    "github.com/abdigi/redmine-pulse/internal/jobs"
    "github.com/abdigi/redmine-pulse/internal/logger"
    "github.com/abdigi/redmine-pulse/internal/repo"
    "github.com/abdigi/redmine-pulse/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB is optional: without DB_DSN the dashboard runs stateless and the
    // snapshot job is a no-op.
    var repository *repo.Repository
    if cfg.DBDSN != "" {
        db := repo.MustOpen(ctx, cfg, log)
        defer db.Close()
        repository = repo.NewRepository(db, log)
    }

    rc := redmine.NewClient(cfg, log)
    svc := services.New(cfg, log, repository, rc)

    router := apphttp.NewRouter(cfg, log, svc)

    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
