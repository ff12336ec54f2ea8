/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package redmine

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/abdigi/redmine-pulse/internal/config"
    "github.com/abdigi/redmine-pulse/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    baseURL string
    apiKey  string
    user    string
    pass    string
    http    *http.Client
    log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.RedmineBaseURL,
        apiKey:  cfg.RedmineAPIKey,
        user:    cfg.RedmineUsername,
        pass:    cfg.RedminePassword,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// do issues the request with API-key (preferred) or basic auth, retrying
// 429/5xx with backoff. 4xx other than 429 fails immediately. A nil out
// skips body decoding (update/delete return no useful body).
func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
    if c.baseURL == "" { return errors.New("redmine: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.apiKey != "" {
            req.Header.Set("X-Redmine-API-Key", c.apiKey)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
        } else {
            retry, err := c.consume(resp, out)
            if err == nil { return nil }
            lastErr = err
            if !retry { return err }
        }
        // backoff
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

func (c *Client) consume(resp *http.Response, out any) (retry bool, err error) {
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(resp.Body)
        err := fmt.Errorf("redmine api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
        return resp.StatusCode == 429 || resp.StatusCode >= 500, err
    }
    if out == nil {
        _, _ = io.Copy(io.Discard, resp.Body)
        return false, nil
    }
    if err := json.NewDecoder(resp.Body).Decode(out); err != nil { return false, err }
    return false, nil
}

// ---- wire types ----

// fieldValue flattens the tracker's polymorphic custom-field value (string,
// number, or array for multi-select fields) to a single string.
type fieldValue string

func (v *fieldValue) UnmarshalJSON(data []byte) error {
    var raw any
    if err := json.Unmarshal(data, &raw); err != nil { return err }
    switch t := raw.(type) {
    case nil:
        *v = ""
    case string:
        *v = fieldValue(t)
    case []any:
        parts := make([]string, 0, len(t))
        for _, e := range t {
            if s, ok := e.(string); ok { parts = append(parts, s) } else { parts = append(parts, fmt.Sprintf("%v", e)) }
        }
        *v = fieldValue(strings.Join(parts, ", "))
    default:
        *v = fieldValue(fmt.Sprintf("%v", t))
    }
    return nil
}

type wireCustomField struct {
    ID    int64      `json:"id"`
    Name  string     `json:"name"`
    Value fieldValue `json:"value"`
}

type wireIssue struct {
    ID           int64             `json:"id"`
    Subject      string            `json:"subject"`
    Description  string            `json:"description"`
    Project      domain.NameRef    `json:"project"`
    Tracker      domain.NameRef    `json:"tracker"`
    Status       domain.NameRef    `json:"status"`
    Priority     domain.NameRef    `json:"priority"`
    Author       domain.NameRef    `json:"author"`
    AssignedTo   *domain.NameRef   `json:"assigned_to"`
    Parent       *domain.IssueRef  `json:"parent"`
    DoneRatio    int               `json:"done_ratio"`
    StartDate    string            `json:"start_date"`
    DueDate      string            `json:"due_date"`
    CustomFields []wireCustomField `json:"custom_fields"`
    CreatedOn    string            `json:"created_on"`
    UpdatedOn    string            `json:"updated_on"`
}

func (w wireIssue) toDomain() domain.Issue {
    out := domain.Issue{
        ID:          w.ID,
        Subject:     w.Subject,
        Description: w.Description,
        Project:     w.Project,
        Tracker:     w.Tracker,
        Status:      w.Status,
        Priority:    w.Priority,
        Author:      w.Author,
        AssignedTo:  w.AssignedTo,
        Parent:      w.Parent,
        DoneRatio:   w.DoneRatio,
        StartDate:   w.StartDate,
        DueDate:     w.DueDate,
        CreatedOn:   parseTimeUTC(w.CreatedOn),
        UpdatedOn:   parseTimeUTC(w.UpdatedOn),
    }
    if len(w.CustomFields) > 0 {
        out.CustomFields = make([]domain.CustomField, 0, len(w.CustomFields))
        for _, f := range w.CustomFields {
            out.CustomFields = append(out.CustomFields, domain.CustomField{ID: f.ID, Name: f.Name, Value: string(f.Value)})
        }
    }
    return out
}

func parseTimeUTC(s string) *time.Time {
    if s == "" { return nil }
    layouts := []string{time.RFC3339, time.RFC3339Nano, "2006/01/02 15:04:05 -0700"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil {
            tt := t.UTC()
            return &tt
        }
    }
    return nil
}

// ---- issues ----

// GetIssue fetches one issue; include names optional associations such as
// children, watchers, relations (the parent link is always present).
func (c *Client) GetIssue(ctx context.Context, id int64, include ...string) (*domain.Issue, error) {
    if id <= 0 { return nil, errors.New("redmine: invalid issue id") }
    q := url.Values{}
    if len(include) > 0 { q.Set("include", strings.Join(include, ",")) }
    u := c.apiURL("/issues/"+strconv.FormatInt(id, 10)+".json", q)
    var env struct {
        Issue wireIssue `json:"issue"`
    }
    if err := c.do(ctx, http.MethodGet, u, nil, &env); err != nil { return nil, err }
    iss := env.Issue.toDomain()
    return &iss, nil
}

// IssueFilter narrows a listing. AssignedTo is a string because group
// filters use id-prefix conventions ("g12") besides bare numeric ids.
// StatusID defaults to "*" so closed issues are included.
type IssueFilter struct {
    AssignedTo string
    ProjectID  int64
    ParentID   int64
    WatcherID  int64
    AuthorID   int64
    StatusID   string
}

func (f IssueFilter) query(offset, limit int) url.Values {
    q := url.Values{}
    if f.AssignedTo != "" { q.Set("assigned_to_id", f.AssignedTo) }
    if f.ProjectID > 0 { q.Set("project_id", strconv.FormatInt(f.ProjectID, 10)) }
    if f.ParentID > 0 { q.Set("parent_id", strconv.FormatInt(f.ParentID, 10)) }
    if f.WatcherID > 0 { q.Set("watcher_id", strconv.FormatInt(f.WatcherID, 10)) }
    if f.AuthorID > 0 { q.Set("author_id", strconv.FormatInt(f.AuthorID, 10)) }
    st := f.StatusID
    if st == "" { st = "*" }
    q.Set("status_id", st)
    q.Set("offset", strconv.Itoa(offset))
    q.Set("limit", strconv.Itoa(limit))
    return q
}

// ListIssues returns one page plus the server-reported total.
func (c *Client) ListIssues(ctx context.Context, f IssueFilter, offset, limit int) ([]domain.Issue, int, error) {
    if limit <= 0 { limit = 100 }
    u := c.apiURL("/issues.json", f.query(offset, limit))
    var page struct {
        Issues     []wireIssue `json:"issues"`
        TotalCount int         `json:"total_count"`
        Offset     int         `json:"offset"`
        Limit      int         `json:"limit"`
    }
    if err := c.do(ctx, http.MethodGet, u, nil, &page); err != nil { return nil, 0, err }
    out := make([]domain.Issue, 0, len(page.Issues))
    for _, w := range page.Issues { out = append(out, w.toDomain()) }
    return out, page.TotalCount, nil
}

// ListAllIssues pages until the accumulated count reaches the reported
// total. A short page before that point also terminates the loop so a
// shrinking result set cannot spin.
func (c *Client) ListAllIssues(ctx context.Context, f IssueFilter) ([]domain.Issue, error) {
    const pageSize = 100
    var out []domain.Issue
    offset := 0
    for {
        items, total, err := c.ListIssues(ctx, f, offset, pageSize)
        if err != nil { return nil, err }
        out = append(out, items...)
        if len(out) >= total || len(items) < pageSize { break }
        offset += len(items)
    }
    return out, nil
}

// FieldUpdate addresses a custom field by tracker-side id for partial
// updates.
type FieldUpdate struct {
    ID    int64  `json:"id"`
    Value string `json:"value"`
}

// IssueUpdate is a partial issue update; nil members are left untouched.
type IssueUpdate struct {
    Subject      *string       `json:"subject,omitempty"`
    Description  *string       `json:"description,omitempty"`
    StatusID     *int64        `json:"status_id,omitempty"`
    AssignedToID *int64        `json:"assigned_to_id,omitempty"`
    DoneRatio    *int          `json:"done_ratio,omitempty"`
    StartDate    *string       `json:"start_date,omitempty"`
    DueDate      *string       `json:"due_date,omitempty"`
    CustomFields []FieldUpdate `json:"custom_fields,omitempty"`
}

func (c *Client) UpdateIssue(ctx context.Context, id int64, upd IssueUpdate) error {
    if id <= 0 { return errors.New("redmine: invalid issue id") }
    u := c.apiURL("/issues/"+strconv.FormatInt(id, 10)+".json", nil)
    body := map[string]any{"issue": upd}
    return c.do(ctx, http.MethodPut, u, body, nil)
}

// IssueCreate carries the fields the tracker requires for a new issue.
type IssueCreate struct {
    ProjectID    int64         `json:"project_id"`
    TrackerID    int64         `json:"tracker_id,omitempty"`
    Subject      string        `json:"subject"`
    Description  string        `json:"description,omitempty"`
    ParentID     int64         `json:"parent_issue_id,omitempty"`
    AssignedToID int64         `json:"assigned_to_id,omitempty"`
    CustomFields []FieldUpdate `json:"custom_fields,omitempty"`
}

func (c *Client) CreateIssue(ctx context.Context, in IssueCreate) (*domain.Issue, error) {
    if in.ProjectID <= 0 || strings.TrimSpace(in.Subject) == "" {
        return nil, errors.New("redmine: project id and subject required")
    }
    u := c.apiURL("/issues.json", nil)
    var env struct {
        Issue wireIssue `json:"issue"`
    }
    if err := c.do(ctx, http.MethodPost, u, map[string]any{"issue": in}, &env); err != nil { return nil, err }
    iss := env.Issue.toDomain()
    return &iss, nil
}

func (c *Client) DeleteIssue(ctx context.Context, id int64) error {
    if id <= 0 { return errors.New("redmine: invalid issue id") }
    u := c.apiURL("/issues/"+strconv.FormatInt(id, 10)+".json", nil)
    return c.do(ctx, http.MethodDelete, u, nil, nil)
}

// ---- users and groups ----

type wireUser struct {
    ID        int64            `json:"id"`
    Login     string           `json:"login"`
    Firstname string           `json:"firstname"`
    Lastname  string           `json:"lastname"`
    Name      string           `json:"name"`
    Mail      string           `json:"mail"`
    Groups    []domain.NameRef `json:"groups"`
}

func (w wireUser) toDomain() domain.User {
    name := strings.TrimSpace(w.Firstname + " " + w.Lastname)
    if name == "" { name = w.Name }
    return domain.User{ID: w.ID, Login: w.Login, Name: name, Mail: w.Mail, Groups: w.Groups}
}

// CurrentUser resolves the account behind the API key, with group
// memberships.
func (c *Client) CurrentUser(ctx context.Context) (*domain.User, error) {
    q := url.Values{}
    q.Set("include", "groups,memberships")
    u := c.apiURL("/users/current.json", q)
    var env struct {
        User wireUser `json:"user"`
    }
    if err := c.do(ctx, http.MethodGet, u, nil, &env); err != nil { return nil, err }
    usr := env.User.toDomain()
    return &usr, nil
}

// GroupUsers lists the members of a group addressed by numeric id or name.
func (c *Client) GroupUsers(ctx context.Context, ref string) ([]domain.User, error) {
    ref = strings.TrimSpace(ref)
    if ref == "" { return nil, errors.New("redmine: empty group ref") }
    q := url.Values{}
    q.Set("include", "users")
    u := c.apiURL("/groups/"+url.PathEscape(ref)+".json", q)
    var env struct {
        Group struct {
            ID    int64      `json:"id"`
            Name  string     `json:"name"`
            Users []wireUser `json:"users"`
        } `json:"group"`
    }
    if err := c.do(ctx, http.MethodGet, u, nil, &env); err != nil { return nil, err }
    out := make([]domain.User, 0, len(env.Group.Users))
    for _, w := range env.Group.Users { out = append(out, w.toDomain()) }
    return out, nil
}
