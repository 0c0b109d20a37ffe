package source

import (
	"errors"

	"cloud.google.com/go/bigquery"

	"github.com/allaspectsdev/icarus/internal/dataset"
)

// record is one row of the projection as BigQuery returns it. Every column
// is nullable at the source.
type record struct {
	ReportingDate bigquery.NullDate   `bigquery:"Reporting_Date"`
	AppName       bigquery.NullString `bigquery:"App_Name"`
	PlanName      bigquery.NullString `bigquery:"Plan_Name"`
	BillingCycle  bigquery.NullInt64  `bigquery:"BC"`
	Cohort        bigquery.NullString `bigquery:"Cohort"`
	ActiveState   bigquery.NullString `bigquery:"Active_Inactive"`
	TableType     bigquery.NullString `bigquery:"Table"`

	Subscriptions       bigquery.NullFloat64 `bigquery:"Subscriptions"`
	Rebills             bigquery.NullFloat64 `bigquery:"Rebills"`
	ChurnRate           bigquery.NullFloat64 `bigquery:"Churn_Rate"`
	RefundRate          bigquery.NullFloat64 `bigquery:"Refund_Rate"`
	GrossARPURetention  bigquery.NullFloat64 `bigquery:"Gross_ARPU_Retention_Rate"`
	NetARPURetention    bigquery.NullFloat64 `bigquery:"Net_ARPU_Retention_Rate"`
	CohortCAC           bigquery.NullFloat64 `bigquery:"Cohort_CAC"`
	RecentCAC           bigquery.NullFloat64 `bigquery:"Recent_CAC"`
	GrossARPUDiscounted bigquery.NullFloat64 `bigquery:"Gross_ARPU_Discounted"`
	NetARPUDiscounted   bigquery.NullFloat64 `bigquery:"Net_ARPU_Discounted"`
	NetLTVDiscounted    bigquery.NullFloat64 `bigquery:"Net_LTV_Discounted"`
	BC4CACCeiling       bigquery.NullFloat64 `bigquery:"BC4_CAC_Ceiling"`
}

var errNullDate = errors.New("source: null Reporting_Date")

// row converts r into a dataset row. Rows without a date or with an
// unrecognised active state or table type are rejected.
func (r *record) row() (dataset.Row, error) {
	if !r.ReportingDate.Valid {
		return dataset.Row{}, errNullDate
	}
	state, err := dataset.ParseActiveState(r.ActiveState.StringVal)
	if err != nil {
		return dataset.Row{}, err
	}
	tt, err := dataset.ParseTableType(r.TableType.StringVal)
	if err != nil {
		return dataset.Row{}, err
	}

	row := dataset.Row{
		ReportingDate: r.ReportingDate.Date,
		AppName:       r.AppName.StringVal,
		PlanName:      r.PlanName.StringVal,
		BillingCycle:  r.BillingCycle.Int64,
		Cohort:        r.Cohort.StringVal,
		ActiveState:   state,
		TableType:     tt,
		Values:        make(map[dataset.Metric]float64),
	}
	metrics := []bigquery.NullFloat64{
		r.Subscriptions,
		r.Rebills,
		r.ChurnRate,
		r.RefundRate,
		r.GrossARPURetention,
		r.NetARPURetention,
		r.CohortCAC,
		r.RecentCAC,
		r.GrossARPUDiscounted,
		r.NetARPUDiscounted,
		r.NetLTVDiscounted,
		r.BC4CACCeiling,
	}
	for i, v := range metrics {
		if v.Valid {
			row.Values[dataset.AllMetrics[i]] = v.Float64
		}
	}
	return row, nil
}
