package domain

import (
    "fmt"
    "strings"
)

// Period is a reporting window: the fiscal year, one of its four quarters,
// or the 6-month / 9-month cumulative windows.
type Period int

const (
    PeriodAnnual Period = iota
    PeriodQ1
    PeriodQ2
    PeriodQ3
    PeriodQ4
    PeriodH1
    PeriodNineMonth
)

var periodTokens = map[string]Period{
    "annual": PeriodAnnual,
    "q1":     PeriodQ1,
    "q2":     PeriodQ2,
    "q3":     PeriodQ3,
    "q4":     PeriodQ4,
    "h1":     PeriodH1,
    "6m":     PeriodH1,
    "9m":     PeriodNineMonth,
}

func ParsePeriod(s string) (Period, error) {
    if p, ok := periodTokens[strings.ToLower(strings.TrimSpace(s))]; ok { return p, nil }
    return PeriodAnnual, fmt.Errorf("unknown period %q", s)
}

func (p Period) String() string {
    switch p {
    case PeriodAnnual: return "annual"
    case PeriodQ1: return "q1"
    case PeriodQ2: return "q2"
    case PeriodQ3: return "q3"
    case PeriodQ4: return "q4"
    case PeriodH1: return "h1"
    case PeriodNineMonth: return "9m"
    }
    return "unknown"
}

// Quarter returns the 1-based quarter index for single-quarter periods and
// false for the cumulative ones.
func (p Period) Quarter() (int, bool) {
    switch p {
    case PeriodQ1: return 1, true
    case PeriodQ2: return 2, true
    case PeriodQ3: return 3, true
    case PeriodQ4: return 4, true
    }
    return 0, false
}

// Quarters returns the 1-based quarter indexes that contribute to the
// period's target and actual sums.
func (p Period) Quarters() []int {
    switch p {
    case PeriodQ1: return []int{1}
    case PeriodQ2: return []int{2}
    case PeriodQ3: return []int{3}
    case PeriodQ4: return []int{4}
    case PeriodH1: return []int{1, 2}
    case PeriodNineMonth: return []int{1, 2, 3}
    }
    return []int{1, 2, 3, 4}
}

// PlanFields names the six planning custom fields on an issue. Defaults are
// the field names of the deployed tracker (Amharic); deployments with
// different names override them from a JSON file at startup.
type PlanFields struct {
    AnnualTarget   string
    QuarterTargets [4]string
    QuarterActuals [4]string
    Weight         string
}

func DefaultPlanFields() PlanFields {
    return PlanFields{
        AnnualTarget:   "የዓመቱ እቅድ",
        QuarterTargets: [4]string{"1ኛ ሩብዓመት", "2ኛ ሩብዓመት", "3ኛ ሩብዓመት", "4ኛ ሩብዓመት"},
        QuarterActuals: [4]string{"1ኛ ሩብዓመት_አፈጻጸም", "2ኛ ሩብዓመት_አፈጻጸም", "3ኛ ሩብዓመት_አፈጻጸም", "4ኛ ሩብዓመት_አፈጻጸም"},
        Weight:         "ክብደት",
    }
}

// Apply overlays non-empty entries from a name map keyed by canonical slots:
// annual_target, q1_target..q4_target, q1_actual..q4_actual, weight.
func (pf PlanFields) Apply(overrides map[string]string) PlanFields {
    if v := overrides["annual_target"]; v != "" { pf.AnnualTarget = v }
    if v := overrides["weight"]; v != "" { pf.Weight = v }
    for q := 1; q <= 4; q++ {
        if v := overrides[fmt.Sprintf("q%d_target", q)]; v != "" { pf.QuarterTargets[q-1] = v }
        if v := overrides[fmt.Sprintf("q%d_actual", q)]; v != "" { pf.QuarterActuals[q-1] = v }
    }
    return pf
}

// TargetField returns the custom-field name holding the period's target. For
// cumulative periods the per-quarter names are summed by the caller, so this
// is only defined for annual and single quarters.
func (pf PlanFields) TargetField(q int) string { return pf.QuarterTargets[q-1] }

// ActualField returns the custom-field name holding a quarter's achieved
// value.
func (pf PlanFields) ActualField(q int) string { return pf.QuarterActuals[q-1] }
