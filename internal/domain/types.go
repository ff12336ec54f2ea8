package domain

import (
    "strings"
    "time"
)

// IssueRef is a weak back-reference to another issue (parent links).
type IssueRef struct {
    ID int64 `json:"id"`
}

// NameRef is an id+name pair as the tracker embeds it (project, tracker,
// status, assignee, author).
type NameRef struct {
    ID   int64  `json:"id"`
    Name string `json:"name"`
}

// CustomField is one entry of an issue's ordered custom-field list. Values
// are strings on the wire; lookups are by human-readable name because field
// ids are not stable across projects.
type CustomField struct {
    ID    int64  `json:"id"`
    Name  string `json:"name"`
    Value string `json:"value"`
}

// Issue is an immutable snapshot fetched from the tracker. It is never
// mutated locally; writes go through the tracker and are followed by a
// re-fetch.
type Issue struct {
    ID           int64
    Subject      string
    Description  string
    Project      NameRef
    Tracker      NameRef
    Status       NameRef
    Priority     NameRef
    Author       NameRef
    AssignedTo   *NameRef
    Parent       *IssueRef
    DoneRatio    int
    StartDate    string
    DueDate      string
    CustomFields []CustomField
    CreatedOn    *time.Time
    UpdatedOn    *time.Time
}

// CustomFieldValue returns the trimmed value of the named field and whether
// the field is present at all.
func (i *Issue) CustomFieldValue(name string) (string, bool) {
    for _, f := range i.CustomFields {
        if f.Name == name { return strings.TrimSpace(f.Value), true }
    }
    return "", false
}

// CustomFieldID returns the tracker-side id of the named field. Needed for
// partial updates, which address fields by id, not name.
func (i *Issue) CustomFieldID(name string) (int64, bool) {
    for _, f := range i.CustomFields {
        if f.Name == name { return f.ID, true }
    }
    return 0, false
}

type User struct {
    ID     int64
    Login  string
    Name   string
    Mail   string
    Groups []NameRef
}

// RequestContext carries the viewer and reporting period explicitly through
// every core call. There is no ambient "current user" or "current period".
type RequestContext struct {
    ViewerID int64
    Period   Period
}
