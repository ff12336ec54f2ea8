/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/abdigi/redmine-pulse/internal/adapters/redmine"
    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/abdigi/redmine-pulse/internal/domain"
    "github.com/abdigi/redmine-pulse/internal/services"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

type service interface {
    LoadDashboard(ctx context.Context, rctx domain.RequestContext) (*services.Dashboard, error)
    Refresh(ctx context.Context, rctx domain.RequestContext) (*services.Dashboard, error)
    RecordAchievement(ctx context.Context, rctx domain.RequestContext, issueID int64, raw string) (services.AchievementResult, error)
    TeamMembers(ctx context.Context, groupRef string) ([]domain.User, error)
    CreateIssue(ctx context.Context, in redmine.IssueCreate) (*domain.Issue, error)
    DeleteIssue(ctx context.Context, id int64) error
    RunSnapshot(ctx context.Context) error
    GetLastRun(ctx context.Context) (any, error)
    SnapshotHistory(ctx context.Context, viewerID int64, period string) (any, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requestContext builds the viewer/period pair from query parameters.
// period defaults to annual; viewer_id defaults to the API-key account.
func requestContext(c *gin.Context) (domain.RequestContext, error) {
    var rctx domain.RequestContext
    if tok := c.Query("period"); tok != "" {
        p, err := domain.ParsePeriod(tok)
        if err != nil { return rctx, err }
        rctx.Period = p
    }
    if v := c.Query("viewer_id"); v != "" {
        id, err := strconv.ParseInt(v, 10, 64)
        if err != nil { return rctx, errors.New("viewer_id must be an integer") }
        rctx.ViewerID = id
    }
    return rctx, nil
}

func (h *Handlers) Dashboard(c *gin.Context) {
    rctx, err := requestContext(c)
    if err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
        return
    }
    d, err := h.svc.LoadDashboard(c.Request.Context(), rctx)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, d)
}

func (h *Handlers) Refresh(c *gin.Context) {
    rctx, err := requestContext(c)
    if err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
        return
    }
    d, err := h.svc.Refresh(c.Request.Context(), rctx)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, d)
}

func (h *Handlers) RecordAchievement(c *gin.Context) {
    var body struct {
        IssueID int64  `json:"issue_id"`
        Period  string `json:"period"`
        Value   string `json:"value"`
    }
    if err := c.ShouldBindJSON(&body); err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid body"})
        return
    }
    p, err := domain.ParsePeriod(body.Period)
    if err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
        return
    }
    res, err := h.svc.RecordAchievement(c.Request.Context(), domain.RequestContext{Period: p}, body.IssueID, body.Value)
    switch {
    case err == nil:
        c.JSON(http.StatusOK, res)
    case errors.Is(err, services.ErrNotNumeric),
        errors.Is(err, services.ErrPeriodNotRecordable),
        errors.Is(err, services.ErrNoAchievementField):
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
    default:
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": res})
    }
}

func (h *Handlers) TeamMembers(c *gin.Context) {
    users, err := h.svc.TeamMembers(c.Request.Context(), c.Param("ref"))
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handlers) CreateIssue(c *gin.Context) {
    var in redmine.IssueCreate
    if err := c.ShouldBindJSON(&in); err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid body"})
        return
    }
    iss, err := h.svc.CreateIssue(c.Request.Context(), in)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, iss)
}

func (h *Handlers) DeleteIssue(c *gin.Context) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "id must be an integer"})
        return
    }
    if err := h.svc.DeleteIssue(c.Request.Context(), id); err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) History(c *gin.Context) {
    rctx, err := requestContext(c)
    if err != nil {
        c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
        return
    }
    hist, err := h.svc.SnapshotHistory(c.Request.Context(), rctx.ViewerID, rctx.Period.String())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"snapshots": hist})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}
