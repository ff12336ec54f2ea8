package domain

import "testing"

func TestParsePeriodTokens(t *testing.T) {
    cases := map[string]Period{
        "annual": PeriodAnnual,
        "Q1":     PeriodQ1,
        " q4 ":   PeriodQ4,
        "h1":     PeriodH1,
        "6m":     PeriodH1,
        "9m":     PeriodNineMonth,
    }
    for tok, want := range cases {
        got, err := ParsePeriod(tok)
        if err != nil || got != want {
            t.Errorf("ParsePeriod(%q) = %v, %v; want %v", tok, got, err, want)
        }
    }
    if _, err := ParsePeriod("q5"); err == nil {
        t.Error("q5 should not parse")
    }
}

func TestQuartersComposition(t *testing.T) {
    if got := PeriodH1.Quarters(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
        t.Errorf("h1 quarters = %v", got)
    }
    if got := PeriodNineMonth.Quarters(); len(got) != 3 {
        t.Errorf("9m quarters = %v", got)
    }
    if got := PeriodAnnual.Quarters(); len(got) != 4 {
        t.Errorf("annual quarters = %v", got)
    }
    if q, ok := PeriodH1.Quarter(); ok {
        t.Errorf("h1 is not a single quarter, got %d", q)
    }
}

func TestPlanFieldsApplyOverrides(t *testing.T) {
    pf := DefaultPlanFields().Apply(map[string]string{
        "annual_target": "Annual Plan",
        "q2_actual":     "Q2 Done",
        "weight":        "",
    })
    if pf.AnnualTarget != "Annual Plan" {
        t.Errorf("annual override not applied: %q", pf.AnnualTarget)
    }
    if pf.QuarterActuals[1] != "Q2 Done" {
        t.Errorf("q2 actual override not applied: %q", pf.QuarterActuals[1])
    }
    if pf.Weight != DefaultPlanFields().Weight {
        t.Errorf("empty override must keep the default, got %q", pf.Weight)
    }
}
