package dataset

import (
	"cloud.google.com/go/civil"
)

// Filter is the shared row predicate of every filtered query:
//
//	Start <= ReportingDate <= End AND BC = BillingCycle AND Cohort = Cohort
//	AND ActiveState = ActiveState AND TableType = TableType
//	AND (PlanName in Plans OR Plans is empty)
type Filter struct {
	Start        civil.Date
	End          civil.Date
	BillingCycle int64
	Cohort       string
	ActiveState  ActiveState
	TableType    TableType
	Plans        []string
}

// Match returns the indices of rows in t that satisfy f, in table order.
func (t *Table) Match(f Filter) []int {
	var plans map[string]struct{}
	if len(f.Plans) > 0 {
		plans = make(map[string]struct{}, len(f.Plans))
		for _, p := range f.Plans {
			plans[p] = struct{}{}
		}
	}

	var idx []int
	for i := 0; i < t.Len(); i++ {
		d := t.ReportingDate[i]
		if d.Before(f.Start) || d.After(f.End) {
			continue
		}
		if t.BillingCycle[i] != f.BillingCycle ||
			t.Cohort[i] != f.Cohort ||
			t.ActiveState[i] != f.ActiveState ||
			t.TableType[i] != f.TableType {
			continue
		}
		if plans != nil {
			if _, ok := plans[t.PlanName[i]]; !ok {
				continue
			}
		}
		idx = append(idx, i)
	}
	return idx
}
