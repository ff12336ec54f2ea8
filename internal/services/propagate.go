/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "math"
    "strconv"
    "strings"

    "github.com/abdigi/redmine-pulse/internal/adapters/redmine"
    "github.com/abdigi/redmine-pulse/internal/domain"
    "github.com/abdigi/redmine-pulse/internal/repo"
)

var (
    ErrNotNumeric          = errors.New("achievement value must be a non-negative number")
    ErrPeriodNotRecordable = errors.New("achievements are recorded against a single quarter")
    ErrNoAchievementField  = errors.New("issue has no achievement field for this quarter")
)

// AchievementResult reports how far the write got. Success covers the
// child; ParentSynced covers the roll-up onto the parent.
type AchievementResult struct {
    IssueID      int64   `json:"issue_id"`
    Quarter      int     `json:"quarter"`
    Value        float64 `json:"value"`
    PrevValue    float64 `json:"prev_value"`
    Success      bool    `json:"success"`
    ParentSynced bool    `json:"parent_synced"`
    ParentValue  float64 `json:"parent_value,omitempty"`
}

// RecordAchievement writes a quarter achievement onto an issue and folds
// the delta into the parent's matching field so parent totals track child
// edits without recounting the whole subtree. The parent is re-read fresh
// from the tracker, never from cache, so concurrent edits elsewhere are not
// clobbered with stale numbers. A parent sync failure degrades rather than
// fails: the child value is already committed at that point.
func (s *Service) RecordAchievement(ctx context.Context, rctx domain.RequestContext, issueID int64, raw string) (AchievementResult, error) {
    var res AchievementResult
    res.IssueID = issueID

    v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
    if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
        return res, ErrNotNumeric
    }
    q, ok := rctx.Period.Quarter()
    if !ok { return res, ErrPeriodNotRecordable }
    res.Quarter = q
    res.Value = v

    iss, err := s.tracker.GetIssue(ctx, issueID)
    if err != nil { return res, err }
    field := s.fields.QuarterActuals[q-1]
    fid, ok := iss.CustomFieldID(field)
    if !ok { return res, ErrNoAchievementField }
    oldRaw, _ := iss.CustomFieldValue(field)
    res.PrevValue = num(oldRaw)

    upd := redmine.IssueUpdate{CustomFields: []redmine.FieldUpdate{{ID: fid, Value: formatNum(v)}}}
    if err := s.tracker.UpdateIssue(ctx, issueID, upd); err != nil {
        return res, err
    }
    res.Success = true
    if fresh, err := s.tracker.GetIssue(ctx, issueID); err == nil && fresh != nil {
        s.cache.Put(*fresh)
    } else if err != nil {
        s.log.Warn().Err(err).Int64("issue", issueID).Msg("achievement: post-write re-fetch failed")
    }

    if iss.Parent == nil {
        s.audit(ctx, iss, res)
        return res, nil
    }
    parent, err := s.tracker.GetIssue(ctx, iss.Parent.ID)
    if err != nil || parent == nil {
        s.log.Warn().Err(err).Int64("parent", iss.Parent.ID).Msg("achievement: parent fetch failed, skipping sync")
        s.audit(ctx, iss, res)
        return res, nil
    }
    pfid, ok := parent.CustomFieldID(field)
    if !ok {
        s.log.Warn().Int64("parent", parent.ID).Str("field", field).Msg("achievement: parent lacks achievement field, skipping sync")
        s.audit(ctx, iss, res)
        return res, nil
    }
    pOldRaw, _ := parent.CustomFieldValue(field)
    next := num(pOldRaw) - res.PrevValue + v
    if next < 0 { next = 0 }

    pUpd := redmine.IssueUpdate{CustomFields: []redmine.FieldUpdate{{ID: pfid, Value: formatNum(next)}}}
    if err := s.tracker.UpdateIssue(ctx, parent.ID, pUpd); err != nil {
        s.log.Error().Err(err).Int64("parent", parent.ID).Msg("achievement: parent sync failed")
        s.audit(ctx, iss, res)
        return res, nil
    }
    if fresh, err := s.tracker.GetIssue(ctx, parent.ID); err == nil && fresh != nil {
        s.cache.Put(*fresh)
    }
    res.ParentSynced = true
    res.ParentValue = next
    s.audit(ctx, iss, res)
    return res, nil
}

// audit writes the achievement trail when a database is configured.
func (s *Service) audit(ctx context.Context, iss *domain.Issue, res AchievementResult) {
    if s.repo == nil { return }
    var parentID int64
    if iss.Parent != nil { parentID = iss.Parent.ID }
    err := s.repo.LogAchievement(ctx, repo.AchievementLog{
        IssueID:      res.IssueID,
        Quarter:      res.Quarter,
        PrevValue:    res.PrevValue,
        NewValue:     res.Value,
        ParentID:     parentID,
        ParentSynced: res.ParentSynced,
    })
    if err != nil { s.log.Warn().Err(err).Int64("issue", res.IssueID).Msg("achievement: audit insert failed") }
}

func formatNum(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
