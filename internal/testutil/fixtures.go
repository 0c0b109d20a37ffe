package testutil

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/allaspectsdev/icarus/internal/dataset"
)

// Date builds a civil.Date.
func Date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

// SampleRows returns a small master dataset covering:
//   - plans (AppX,P1), (AppX,P2), (AppY,P1) in the Active subset
//   - (AppZ,P3) only in the Inactive subset
//   - a (P1, 2024-01-02) group with two rows that sum
//   - a (P2, 2024-01-02) group whose every Churn_Rate is null
//   - one Crystal Ball row and one BC 2 row
func SampleRows() []dataset.Row {
	active := func(d civil.Date, app, plan string, subs, churn *float64) dataset.Row {
		r := dataset.Row{
			ReportingDate: d,
			AppName:       app,
			PlanName:      plan,
			BillingCycle:  1,
			Cohort:        "Monthly",
			ActiveState:   dataset.Active,
			TableType:     dataset.Regular,
			Values:        make(map[dataset.Metric]float64),
		}
		if subs != nil {
			r.Values[dataset.Subscriptions] = *subs
		}
		if churn != nil {
			r.Values[dataset.ChurnRate] = *churn
		}
		return r
	}

	rows := []dataset.Row{
		active(Date(2024, 1, 1), "AppX", "P1", f(10), f(0.1)),
		active(Date(2024, 1, 2), "AppX", "P1", f(12), f(0.2)),
		active(Date(2024, 1, 2), "AppY", "P1", f(5), nil),
		active(Date(2024, 1, 1), "AppX", "P2", f(7), f(0.3)),
		active(Date(2024, 1, 2), "AppX", "P2", nil, nil),
	}

	inactive := active(Date(2024, 1, 3), "AppZ", "P3", f(1), f(0.9))
	inactive.ActiveState = dataset.Inactive
	rows = append(rows, inactive)

	crystal := active(Date(2024, 1, 31), "AppX", "P1", f(99), nil)
	crystal.TableType = dataset.CrystalBall
	rows = append(rows, crystal)

	bc2 := active(Date(2023, 12, 15), "AppX", "P1", f(3), nil)
	bc2.BillingCycle = 2
	rows = append(rows, bc2)

	return rows
}

// SampleTable returns SampleRows as a Table.
func SampleTable() *dataset.Table {
	return dataset.FromRows(SampleRows())
}

// SingleRowTable returns a one-row table whose Subscriptions value is subs.
// Tests use it to tell apart tables from different tiers.
func SingleRowTable(subs float64) *dataset.Table {
	return dataset.FromRows([]dataset.Row{{
		ReportingDate: Date(2024, 2, 1),
		AppName:       "AppX",
		PlanName:      "P1",
		BillingCycle:  1,
		Cohort:        "Monthly",
		ActiveState:   dataset.Active,
		TableType:     dataset.Regular,
		Values:        map[dataset.Metric]float64{dataset.Subscriptions: subs},
	}})
}

func f(v float64) *float64 { return &v }
