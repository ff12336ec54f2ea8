/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package cache

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/abdigi/redmine-pulse/internal/domain"
    "github.com/rs/zerolog"
)

// Fetcher is the slice of the tracker the caches fall through to on a miss.
type Fetcher interface {
    IssueByID(ctx context.Context, id int64) (*domain.Issue, error)
    AssignedIssues(ctx context.Context, viewerID int64) ([]domain.Issue, error)
}

// Clock is injected so tests control expiry.
type Clock func() time.Time

type issueEntry struct {
    issue   domain.Issue
    savedAt time.Time
}

type subEntry struct {
    issues  []domain.Issue
    savedAt time.Time
}

// IssueCache memoizes issue detail fetches and derived sub-issue lists with
// a fixed TTL. Expiry is passive: entries are checked on read, never swept.
// Session lifetime is short and volume is bounded by one user's
// assignments, so there is no eviction beyond the TTL.
type IssueCache struct {
    mu      sync.Mutex
    ttl     time.Duration
    now     Clock
    fetch   Fetcher
    log     zerolog.Logger
    issues  map[int64]issueEntry
    subSets map[string]subEntry
}

func New(fetch Fetcher, ttl time.Duration, now Clock, log zerolog.Logger) *IssueCache {
    if now == nil { now = time.Now }
    if ttl <= 0 { ttl = 5 * time.Minute }
    return &IssueCache{
        ttl:     ttl,
        now:     now,
        fetch:   fetch,
        log:     log,
        issues:  map[int64]issueEntry{},
        subSets: map[string]subEntry{},
    }
}

// Get returns the cached issue if unexpired, otherwise fetches and stores
// it. Fetch failure is returned to the caller and never cached.
func (c *IssueCache) Get(ctx context.Context, id int64) (*domain.Issue, error) {
    c.mu.Lock()
    if e, ok := c.issues[id]; ok && c.now().Sub(e.savedAt) < c.ttl {
        iss := e.issue
        c.mu.Unlock()
        return &iss, nil
    }
    c.mu.Unlock()

    iss, err := c.fetch.IssueByID(ctx, id)
    if err != nil {
        c.log.Warn().Err(err).Int64("issue", id).Msg("cache: issue fetch failed")
        return nil, err
    }
    if iss == nil { return nil, nil }
    c.put(*iss)
    return iss, nil
}

// Put stores a freshly fetched issue, e.g. the re-fetch after a write-back.
func (c *IssueCache) Put(iss domain.Issue) { c.put(iss) }

func (c *IssueCache) put(iss domain.Issue) {
    c.mu.Lock()
    c.issues[iss.ID] = issueEntry{issue: iss, savedAt: c.now()}
    c.mu.Unlock()
}

// SubIssuesFor returns the viewer's assigned issues whose parent is the
// given issue, deduplicated by id, cached under (parent, viewer).
func (c *IssueCache) SubIssuesFor(ctx context.Context, parent *domain.Issue, viewerID int64) ([]domain.Issue, error) {
    key := subKey(parent.ID, viewerID)
    c.mu.Lock()
    if e, ok := c.subSets[key]; ok && c.now().Sub(e.savedAt) < c.ttl {
        out := append([]domain.Issue(nil), e.issues...)
        c.mu.Unlock()
        return out, nil
    }
    c.mu.Unlock()

    assigned, err := c.fetch.AssignedIssues(ctx, viewerID)
    if err != nil {
        c.log.Warn().Err(err).Int64("issue", parent.ID).Int64("viewer", viewerID).Msg("cache: sub-issue fetch failed")
        return nil, err
    }
    seen := map[int64]struct{}{}
    var subs []domain.Issue
    for _, iss := range assigned {
        if iss.Parent == nil || iss.Parent.ID != parent.ID { continue }
        if _, dup := seen[iss.ID]; dup { continue }
        seen[iss.ID] = struct{}{}
        subs = append(subs, iss)
    }
    c.mu.Lock()
    c.subSets[key] = subEntry{issues: subs, savedAt: c.now()}
    c.mu.Unlock()
    return append([]domain.Issue(nil), subs...), nil
}

// Reset clears both maps; the refresh action calls this before reloading.
func (c *IssueCache) Reset() {
    c.mu.Lock()
    c.issues = map[int64]issueEntry{}
    c.subSets = map[string]subEntry{}
    c.mu.Unlock()
}

func subKey(parentID, viewerID int64) string { return fmt.Sprintf("%d/%d", parentID, viewerID) }
