package cache

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/abdigi/redmine-pulse/internal/domain"
    "github.com/rs/zerolog"
)

type fakeFetcher struct {
    issues     map[int64]domain.Issue
    assigned   map[int64][]domain.Issue
    issueCalls int
    listCalls  int
    err        error
}

func (f *fakeFetcher) IssueByID(ctx context.Context, id int64) (*domain.Issue, error) {
    f.issueCalls++
    if f.err != nil { return nil, f.err }
    iss, ok := f.issues[id]
    if !ok { return nil, errors.New("not found") }
    return &iss, nil
}

func (f *fakeFetcher) AssignedIssues(ctx context.Context, viewerID int64) ([]domain.Issue, error) {
    f.listCalls++
    if f.err != nil { return nil, f.err }
    return f.assigned[viewerID], nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time            { return c.t }
func (c *fakeClock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func TestGetCachesUntilTTLExpires(t *testing.T) {
    ff := &fakeFetcher{issues: map[int64]domain.Issue{1: {ID: 1, Subject: "goal"}}}
    clk := &fakeClock{t: time.Unix(0, 0)}
    c := New(ff, 5*time.Minute, clk.now, zerolog.Nop())

    for i := 0; i < 3; i++ {
        if _, err := c.Get(context.Background(), 1); err != nil { t.Fatal(err) }
    }
    if ff.issueCalls != 1 {
        t.Fatalf("expected 1 upstream fetch inside TTL, got %d", ff.issueCalls)
    }
    clk.advance(5*time.Minute + time.Second)
    if _, err := c.Get(context.Background(), 1); err != nil { t.Fatal(err) }
    if ff.issueCalls != 2 {
        t.Fatalf("expected re-fetch after expiry, got %d calls", ff.issueCalls)
    }
}

func TestGetDoesNotCacheErrors(t *testing.T) {
    ff := &fakeFetcher{err: errors.New("down")}
    c := New(ff, 5*time.Minute, nil, zerolog.Nop())

    if _, err := c.Get(context.Background(), 1); err == nil { t.Fatal("want error") }
    ff.err = nil
    ff.issues = map[int64]domain.Issue{1: {ID: 1}}
    if _, err := c.Get(context.Background(), 1); err != nil {
        t.Fatalf("recovery should fetch again, got %v", err)
    }
    if ff.issueCalls != 2 { t.Fatalf("calls = %d, want 2", ff.issueCalls) }
}

func TestSubIssuesForFiltersByParentAndCaches(t *testing.T) {
    parent := domain.Issue{ID: 10}
    ff := &fakeFetcher{assigned: map[int64][]domain.Issue{7: {
        {ID: 100, Parent: &domain.IssueRef{ID: 10}},
        {ID: 101, Parent: &domain.IssueRef{ID: 10}},
        {ID: 102, Parent: &domain.IssueRef{ID: 11}},
        {ID: 103},
        {ID: 100, Parent: &domain.IssueRef{ID: 10}}, // duplicate listing
    }}}
    clk := &fakeClock{t: time.Unix(0, 0)}
    c := New(ff, 5*time.Minute, clk.now, zerolog.Nop())

    subs, err := c.SubIssuesFor(context.Background(), &parent, 7)
    if err != nil { t.Fatal(err) }
    if len(subs) != 2 {
        t.Fatalf("subs = %v, want issues 100 and 101", subs)
    }
    if _, err := c.SubIssuesFor(context.Background(), &parent, 7); err != nil { t.Fatal(err) }
    if ff.listCalls != 1 {
        t.Fatalf("second lookup should be cached, got %d list calls", ff.listCalls)
    }
    clk.advance(6 * time.Minute)
    if _, err := c.SubIssuesFor(context.Background(), &parent, 7); err != nil { t.Fatal(err) }
    if ff.listCalls != 2 {
        t.Fatalf("expired lookup should refetch, got %d list calls", ff.listCalls)
    }
}

func TestResetDropsEverything(t *testing.T) {
    ff := &fakeFetcher{issues: map[int64]domain.Issue{1: {ID: 1}}}
    c := New(ff, 5*time.Minute, nil, zerolog.Nop())
    if _, err := c.Get(context.Background(), 1); err != nil { t.Fatal(err) }
    c.Reset()
    if _, err := c.Get(context.Background(), 1); err != nil { t.Fatal(err) }
    if ff.issueCalls != 2 {
        t.Fatalf("reset should force refetch, got %d calls", ff.issueCalls)
    }
}

func TestPutOverwritesStaleEntry(t *testing.T) {
    ff := &fakeFetcher{issues: map[int64]domain.Issue{1: {ID: 1, Subject: "old"}}}
    c := New(ff, 5*time.Minute, nil, zerolog.Nop())
    if _, err := c.Get(context.Background(), 1); err != nil { t.Fatal(err) }
    c.Put(domain.Issue{ID: 1, Subject: "new"})
    iss, err := c.Get(context.Background(), 1)
    if err != nil { t.Fatal(err) }
    if iss.Subject != "new" {
        t.Fatalf("subject = %q, want the written-back value", iss.Subject)
    }
    if ff.issueCalls != 1 { t.Fatalf("calls = %d, want 1", ff.issueCalls) }
}
