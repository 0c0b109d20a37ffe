// Package dataset defines the master analytics table that every cache tier
// stores and every query reads. A Table is loaded wholesale per refresh and is
// never mutated after it has been handed to a cache.
package dataset

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// ActiveState selects the active or inactive subscription subset.
type ActiveState string

const (
	Active   ActiveState = "Active"
	Inactive ActiveState = "Inactive"
)

// ParseActiveState converts user input into an ActiveState (case-insensitive).
func ParseActiveState(s string) (ActiveState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return Active, nil
	case "inactive":
		return Inactive, nil
	default:
		return "", fmt.Errorf("invalid active state %q (expected Active or Inactive)", s)
	}
}

// TableType distinguishes observed rows from projected ("Crystal Ball") rows.
type TableType string

const (
	Regular     TableType = "Regular"
	CrystalBall TableType = "Crystal Ball"
)

// ParseTableType converts user input into a TableType. Both "Crystal Ball"
// and "CrystalBall" are accepted.
func ParseTableType(s string) (TableType, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "regular":
		return Regular, nil
	case "crystalball":
		return CrystalBall, nil
	default:
		return "", fmt.Errorf("invalid table type %q (expected Regular or Crystal Ball)", s)
	}
}

// Metric names a numeric column of the master dataset. The string value is
// the source column name.
type Metric string

const (
	Subscriptions       Metric = "Subscriptions"
	Rebills             Metric = "Rebills"
	ChurnRate           Metric = "Churn_Rate"
	RefundRate          Metric = "Refund_Rate"
	GrossARPURetention  Metric = "Gross_ARPU_Retention_Rate"
	NetARPURetention    Metric = "Net_ARPU_Retention_Rate"
	CohortCAC           Metric = "Cohort_CAC"
	RecentCAC           Metric = "Recent_CAC"
	GrossARPUDiscounted Metric = "Gross_ARPU_Discounted"
	NetARPUDiscounted   Metric = "Net_ARPU_Discounted"
	NetLTVDiscounted    Metric = "Net_LTV_Discounted"
	BC4CACCeiling       Metric = "BC4_CAC_Ceiling"
)

// AllMetrics lists the metric columns in source projection order.
var AllMetrics = []Metric{
	Subscriptions,
	Rebills,
	ChurnRate,
	RefundRate,
	GrossARPURetention,
	NetARPURetention,
	CohortCAC,
	RecentCAC,
	GrossARPUDiscounted,
	NetARPUDiscounted,
	NetLTVDiscounted,
	BC4CACCeiling,
}

var metricIndex = func() map[Metric]int {
	m := make(map[Metric]int, len(AllMetrics))
	for i, metric := range AllMetrics {
		m[metric] = i
	}
	return m
}()

// Known reports whether m is a column of the master dataset.
func (m Metric) Known() bool {
	_, ok := metricIndex[m]
	return ok
}

// ParseMetric validates a metric column name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.TrimSpace(s))
	if !m.Known() {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// Column names of the dimension columns, in source projection order.
const (
	ColReportingDate = "Reporting_Date"
	ColAppName       = "App_Name"
	ColPlanName      = "Plan_Name"
	ColBillingCycle  = "BC"
	ColCohort        = "Cohort"
	ColActiveState   = "Active_Inactive"
	ColTableType     = "Table"
)

// Columns returns all 19 projected column names in source order.
func Columns() []string {
	cols := []string{
		ColReportingDate,
		ColAppName,
		ColPlanName,
		ColBillingCycle,
		ColCohort,
		ColActiveState,
		ColTableType,
	}
	for _, m := range AllMetrics {
		cols = append(cols, string(m))
	}
	return cols
}

// Row is a single analytic record. A metric missing from Values is null.
type Row struct {
	ReportingDate civil.Date
	AppName       string
	PlanName      string
	BillingCycle  int64
	Cohort        string
	ActiveState   ActiveState
	TableType     TableType
	Values        map[Metric]float64
}
