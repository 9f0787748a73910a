package domain

import (
	"fmt"
	"math"
)

// StatusKind selects what a status check measures.
type StatusKind string

const (
	// StatusProject measures the totals of the whole (filtered) report.
	StatusProject StatusKind = "project"
	// StatusPatch measures the lines added by the diff.
	StatusPatch StatusKind = "patch"
)

// Status is the outcome of a check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusWarn Status = "WARN"
)

// StatusCheck is a coverage gate. Without a Target the base report's
// coverage is the requirement. Threshold is the drop below the requirement
// still accepted.
type StatusCheck struct {
	Name      string
	Kind      StatusKind
	Target    *float64
	Threshold float64
	Paths     []string
	Flags     []string
}

// StatusResult is the evaluation of one check.
type StatusResult struct {
	Name     string     `json:"name"`
	Kind     StatusKind `json:"kind"`
	Percent  float64    `json:"percent"`
	Required float64    `json:"required"`
	Lines    int        `json:"lines"`
	Status   Status     `json:"status"`
	Message  string     `json:"message"`
}

// IsFailing reports whether the check failed.
func (r StatusResult) IsFailing() bool { return r.Status == StatusFail }

// Shortfall returns how many percentage points below the requirement the
// check is, 0 when it is not below.
func (r StatusResult) Shortfall() float64 {
	if r.Percent >= r.Required {
		return 0
	}
	return Round1(r.Required - r.Percent)
}

// EvaluateStatus runs check against head. base may be nil when the check has a
// Target; diff is only read by patch checks.
func EvaluateStatus(check StatusCheck, head, base *Report, diff *Diff) (StatusResult, error) {
	res := StatusResult{Name: check.Name, Kind: check.Kind}
	if res.Name == "" {
		res.Name = string(check.Kind)
	}
	view, err := head.Filter(check.Paths, check.Flags)
	if err != nil {
		return res, err
	}

	var totals ReportTotals
	switch check.Kind {
	case StatusPatch:
		totals = CalculateReportDiff(view, diff).General
	default:
		totals = view.Totals()
	}
	res.Lines = totals.Lines
	res.Percent = Round1(totals.Percent())

	switch {
	case check.Target != nil:
		res.Required = *check.Target
	case base != nil:
		baseView, err := base.Filter(check.Paths, check.Flags)
		if err != nil {
			return res, err
		}
		res.Required = Round1(baseView.Totals().Percent())
	default:
		res.Status = StatusWarn
		res.Message = "no target and no base report"
		return res, nil
	}

	if !totals.HasCoverage() {
		res.Status = StatusWarn
		res.Message = "no covered lines to measure"
		return res, nil
	}
	if res.Percent+check.Threshold >= res.Required {
		res.Status = StatusPass
		res.Message = fmt.Sprintf("%.1f%% (target %.1f%%)", res.Percent, res.Required)
		return res, nil
	}
	res.Status = StatusFail
	res.Message = fmt.Sprintf("%.1f%% is %.1f points below target %.1f%%", res.Percent, res.Shortfall(), res.Required)
	return res, nil
}

// Round1 rounds to one decimal place, the precision status messages use.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
