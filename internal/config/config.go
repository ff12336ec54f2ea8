/* Copyright (c) 2025 Abdi G.
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "encoding/json"
    "log"
    "os"
    "strconv"
    "strings"
    "time"
)

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string

    DBDSN string

    RedmineBaseURL  string
    RedmineAPIKey   string
    RedmineUsername string
    RedminePassword string

    PlanFieldsFile string
    PlanFieldMap   map[string]string // canonical slot -> deployed field name

    HTTPTimeout   time.Duration
    CacheTTL      time.Duration
    ClassifyBatch int

    SnapshotCron    string
    SnapshotPeriods []string
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func atoi(key string, def int) int {
    v := os.Getenv(key)
    if v == "" { return def }
    i, err := strconv.Atoi(v)
    if err != nil { return def }
    return i
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func parseStrings(csv string) []string {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        out = append(out, p)
    }
    return out
}

func Load() Config {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "Africa/Addis_Ababa"),
        HTTPAddr: getenv("HTTP_ADDR", ":8080"),

        DBDSN: getenv("DB_DSN", ""),

        RedmineBaseURL:  getenv("REDMINE_BASE_URL", ""),
        RedmineAPIKey:   getenv("REDMINE_API_KEY", ""),
        RedmineUsername: getenv("REDMINE_USERNAME", ""),
        RedminePassword: getenv("REDMINE_PASSWORD", ""),

        PlanFieldsFile: getenv("PLAN_FIELDS_FILE", "/config/plan_fields.json"),

        HTTPTimeout:   dur("HTTP_TIMEOUT", 15*time.Second),
        CacheTTL:      dur("CACHE_TTL", 5*time.Minute),
        ClassifyBatch: atoi("CLASSIFY_BATCH", 5),

        SnapshotCron:    getenv("SNAPSHOT_CRON", "0 6 * * *"),
        SnapshotPeriods: parseStrings(getenv("SNAPSHOT_PERIODS", "annual,q1,q2,q3,q4")),
    }

    // set global timezone if available
    if loc, err := time.LoadLocation(cfg.TZ); err == nil {
        time.Local = loc
    } else {
        log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
    }

    // Optional: load plan custom-field name overrides from file
    // (canonical slot -> deployed name)
    load := func(path string) map[string]string {
        data, err := os.ReadFile(path)
        if err != nil { return nil }
        var m map[string]string
        if err := json.Unmarshal(data, &m); err != nil { return nil }
        if len(m) == 0 { return nil }
        return m
    }
    if m := load(cfg.PlanFieldsFile); m != nil {
        cfg.PlanFieldMap = m
    } else if m := load("config/plan_fields.json"); m != nil {
        cfg.PlanFieldMap = m
    }
    return cfg
}
