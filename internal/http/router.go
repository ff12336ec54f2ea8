/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"

    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc any) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)

    api := r.Group("/api")
    api.GET("/dashboard", h.Dashboard)
    api.POST("/refresh", h.Refresh)
    api.POST("/achievements", h.RecordAchievement)
    api.GET("/team/:ref", h.TeamMembers)
    api.POST("/issues", h.CreateIssue)
    api.DELETE("/issues/:id", h.DeleteIssue)
    api.GET("/history", h.History)

    r.GET("/admin/last-run", h.LastRun)
    r.POST("/admin/snapshot-run", func(c *gin.Context) {
        go func() { _ = h.svc.RunSnapshot(context.Background()) }()
        c.JSON(202, gin.H{"status": "queued"})
    })

    return r
}
