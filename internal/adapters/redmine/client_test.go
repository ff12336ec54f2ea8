package redmine

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/rs/zerolog"
)

func testClient(baseURL string) *Client {
    cfg := config.Config{RedmineBaseURL: baseURL, RedmineAPIKey: "k123", HTTPTimeout: 5 * time.Second}
    return NewClient(cfg, zerolog.Nop())
}

func TestGetIssueSendsAPIKeyAndParsesFields(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if got := r.Header.Get("X-Redmine-API-Key"); got != "k123" {
            t.Errorf("api key header = %q", got)
        }
        if r.URL.Path != "/issues/42.json" {
            t.Errorf("path = %q", r.URL.Path)
        }
        fmt.Fprint(w, `{"issue":{"id":42,"subject":"plan","parent":{"id":7},
            "custom_fields":[
                {"id":3,"name":"ክብደት","value":"2.5"},
                {"id":4,"name":"tags","value":["a","b"]}
            ],
            "created_on":"2025-07-01T08:00:00Z"}}`)
    }))
    defer srv.Close()

    c := testClient(srv.URL)
    iss, err := c.GetIssue(context.Background(), 42)
    if err != nil { t.Fatal(err) }
    if iss.ID != 42 || iss.Parent == nil || iss.Parent.ID != 7 {
        t.Fatalf("issue parsed wrong: %+v", iss)
    }
    if v, ok := iss.CustomFieldValue("ክብደት"); !ok || v != "2.5" {
        t.Fatalf("weight field = %q ok=%v", v, ok)
    }
    // multi-select values flatten to a joined string
    if v, _ := iss.CustomFieldValue("tags"); v != "a, b" {
        t.Fatalf("array field = %q", v)
    }
    if iss.CreatedOn == nil {
        t.Fatal("created_on should parse")
    }
}

func TestListAllIssuesPaginates(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if got := r.URL.Query().Get("status_id"); got != "*" {
            t.Errorf("status_id = %q, want *", got)
        }
        offset := r.URL.Query().Get("offset")
        w.Header().Set("Content-Type", "application/json")
        switch offset {
        case "0":
            issues := make([]map[string]any, 100)
            for i := range issues { issues[i] = map[string]any{"id": i + 1} }
            _ = json.NewEncoder(w).Encode(map[string]any{"issues": issues, "total_count": 150, "offset": 0, "limit": 100})
        case "100":
            issues := make([]map[string]any, 50)
            for i := range issues { issues[i] = map[string]any{"id": 100 + i + 1} }
            _ = json.NewEncoder(w).Encode(map[string]any{"issues": issues, "total_count": 150, "offset": 100, "limit": 100})
        default:
            t.Errorf("unexpected offset %q", offset)
        }
    }))
    defer srv.Close()

    c := testClient(srv.URL)
    out, err := c.ListAllIssues(context.Background(), IssueFilter{AssignedTo: "7"})
    if err != nil { t.Fatal(err) }
    if len(out) != 150 {
        t.Fatalf("got %d issues, want 150", len(out))
    }
    if out[149].ID != 150 {
        t.Fatalf("last issue id = %d, want 150", out[149].ID)
    }
}

func TestUpdateIssueSendsWrappedCustomFields(t *testing.T) {
    var body map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPut {
            t.Errorf("method = %s", r.Method)
        }
        _ = json.NewDecoder(r.Body).Decode(&body)
        w.WriteHeader(http.StatusNoContent)
    }))
    defer srv.Close()

    c := testClient(srv.URL)
    err := c.UpdateIssue(context.Background(), 42, IssueUpdate{CustomFields: []FieldUpdate{{ID: 9, Value: "12"}}})
    if err != nil { t.Fatal(err) }
    issue, ok := body["issue"].(map[string]any)
    if !ok { t.Fatalf("body = %v", body) }
    cfs, ok := issue["custom_fields"].([]any)
    if !ok || len(cfs) != 1 { t.Fatalf("custom_fields = %v", issue["custom_fields"]) }
    cf := cfs[0].(map[string]any)
    if cf["id"].(float64) != 9 || cf["value"].(string) != "12" {
        t.Fatalf("field update = %v", cf)
    }
}

func TestDoRetriesServerErrors(t *testing.T) {
    calls := 0
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        if calls == 1 {
            w.WriteHeader(http.StatusServiceUnavailable)
            return
        }
        fmt.Fprint(w, `{"issue":{"id":1}}`)
    }))
    defer srv.Close()

    c := testClient(srv.URL)
    iss, err := c.GetIssue(context.Background(), 1)
    if err != nil { t.Fatal(err) }
    if iss.ID != 1 || calls != 2 {
        t.Fatalf("retry failed: calls=%d iss=%+v", calls, iss)
    }
}

func TestDoFailsFastOnClientError(t *testing.T) {
    calls := 0
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        calls++
        w.WriteHeader(http.StatusNotFound)
    }))
    defer srv.Close()

    c := testClient(srv.URL)
    if _, err := c.GetIssue(context.Background(), 1); err == nil {
        t.Fatal("want error")
    }
    if calls != 1 {
        t.Fatalf("404 must not retry, got %d calls", calls)
    }
}

func TestBasicAuthFallback(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        user, pass, ok := r.BasicAuth()
        if !ok || user != "abdi" || pass != "secret" {
            t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
        }
        fmt.Fprint(w, `{"user":{"id":7,"login":"abdi","firstname":"Abdi","lastname":"G","groups":[{"id":5,"name":"finance"}]}}`)
    }))
    defer srv.Close()

    cfg := config.Config{RedmineBaseURL: srv.URL, RedmineUsername: "abdi", RedminePassword: "secret", HTTPTimeout: 5 * time.Second}
    c := NewClient(cfg, zerolog.Nop())
    u, err := c.CurrentUser(context.Background())
    if err != nil { t.Fatal(err) }
    if u.ID != 7 || u.Name != "Abdi G" || len(u.Groups) != 1 {
        t.Fatalf("user parsed wrong: %+v", u)
    }
}

func TestGroupUsers(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/groups/finance.json" {
            t.Errorf("path = %q", r.URL.Path)
        }
        if got := r.URL.Query().Get("include"); got != "users" {
            t.Errorf("include = %q", got)
        }
        fmt.Fprint(w, `{"group":{"id":5,"name":"finance","users":[{"id":7,"name":"Abdi G"},{"id":8,"name":"Sara T"}]}}`)
    }))
    defer srv.Close()

    c := testClient(srv.URL)
    users, err := c.GroupUsers(context.Background(), "finance")
    if err != nil { t.Fatal(err) }
    if len(users) != 2 || users[1].Name != "Sara T" {
        t.Fatalf("users = %+v", users)
    }
}
