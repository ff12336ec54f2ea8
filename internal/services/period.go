package services

import (
    "math"
    "strconv"
    "strings"

    "github.com/abdigi/redmine-pulse/internal/domain"
)

// usableTarget reports whether a raw custom-field value is a real target.
// Textual zero, null and nan variants, negatives and anything that does not
// parse as a finite number are all unusable.
func usableTarget(raw string) bool {
    v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
    if err != nil || math.IsNaN(v) || math.IsInf(v, 0) { return false }
    return v > 0
}

// num parses a custom-field value leniently, treating anything unparseable
// as zero so one garbled field never poisons an aggregate.
func num(raw string) float64 {
    v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
    if err != nil || math.IsNaN(v) || math.IsInf(v, 0) { return 0 }
    return v
}

func clamp(v, lo, hi float64) float64 {
    if v < lo { return lo }
    if v > hi { return hi }
    return v
}

// hasTarget reports whether the issue carries a usable plan for the period.
// Cumulative periods are usable when any of their constituent quarters has
// a target, so a plan that only starts in Q2 still shows under H1.
func (s *Service) hasTarget(iss *domain.Issue, p domain.Period) bool {
    if p == domain.PeriodAnnual {
        raw, ok := iss.CustomFieldValue(s.fields.AnnualTarget)
        return ok && usableTarget(raw)
    }
    for _, q := range p.Quarters() {
        if raw, ok := iss.CustomFieldValue(s.fields.QuarterTargets[q-1]); ok && usableTarget(raw) {
            return true
        }
    }
    return false
}

// targetValue returns the period's planned amount. For the annual period
// that is the dedicated annual field; cumulative periods sum their quarters.
func (s *Service) targetValue(iss *domain.Issue, p domain.Period) float64 {
    if p == domain.PeriodAnnual {
        raw, _ := iss.CustomFieldValue(s.fields.AnnualTarget)
        return num(raw)
    }
    var sum float64
    for _, q := range p.Quarters() {
        raw, _ := iss.CustomFieldValue(s.fields.QuarterTargets[q-1])
        sum += num(raw)
    }
    return sum
}

// actualValue sums the recorded achievements of the period's quarters.
// The annual actual is the sum of all four quarters; there is no separate
// annual achievement field.
func (s *Service) actualValue(iss *domain.Issue, p domain.Period) float64 {
    var sum float64
    for _, q := range p.Quarters() {
        raw, _ := iss.CustomFieldValue(s.fields.QuarterActuals[q-1])
        sum += num(raw)
    }
    return sum
}

// progress is actual over target as a percentage, clamped to [0, 100].
// A missing or zero target yields zero rather than a division blow-up.
func (s *Service) progress(iss *domain.Issue, p domain.Period) float64 {
    t := s.targetValue(iss, p)
    if t <= 0 { return 0 }
    return clamp(s.actualValue(iss, p)*100/t, 0, 100)
}

// weight reads the issue's relative weight, defaulting to 1 when the field
// is absent, empty, zero or unparseable.
func (s *Service) weight(iss *domain.Issue) float64 {
    raw, ok := iss.CustomFieldValue(s.fields.Weight)
    if !ok { return 1 }
    v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
    if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 { return 1 }
    return v
}
