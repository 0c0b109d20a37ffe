package dataset

import (
	"cloud.google.com/go/civil"
)

// Column holds one nullable float64 metric column.
type Column struct {
	Values []float64
	Valid  []bool
}

// At returns the value at row i and whether it is non-null.
func (c *Column) At(i int) (float64, bool) {
	return c.Values[i], c.Valid[i]
}

// Ptr returns the value at row i, or nil when the value is null.
func (c *Column) Ptr(i int) *float64 {
	if !c.Valid[i] {
		return nil
	}
	v := c.Values[i]
	return &v
}

func (c *Column) append(v float64, ok bool) {
	c.Values = append(c.Values, v)
	c.Valid = append(c.Valid, ok)
}

// Table is the columnar master dataset.
type Table struct {
	ReportingDate []civil.Date
	AppName       []string
	PlanName      []string
	BillingCycle  []int64
	Cohort        []string
	ActiveState   []ActiveState
	TableType     []TableType

	metrics []Column
}

// NewTable returns an empty table with capacity for n rows.
func NewTable(n int) *Table {
	t := &Table{
		ReportingDate: make([]civil.Date, 0, n),
		AppName:       make([]string, 0, n),
		PlanName:      make([]string, 0, n),
		BillingCycle:  make([]int64, 0, n),
		Cohort:        make([]string, 0, n),
		ActiveState:   make([]ActiveState, 0, n),
		TableType:     make([]TableType, 0, n),
		metrics:       make([]Column, len(AllMetrics)),
	}
	for i := range t.metrics {
		t.metrics[i] = Column{
			Values: make([]float64, 0, n),
			Valid:  make([]bool, 0, n),
		}
	}
	return t
}

// FromRows builds a table from row records.
func FromRows(rows []Row) *Table {
	t := NewTable(len(rows))
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ReportingDate)
}

// Append adds a row. Tables must not be appended to once shared with a cache.
func (t *Table) Append(r Row) {
	t.ReportingDate = append(t.ReportingDate, r.ReportingDate)
	t.AppName = append(t.AppName, r.AppName)
	t.PlanName = append(t.PlanName, r.PlanName)
	t.BillingCycle = append(t.BillingCycle, r.BillingCycle)
	t.Cohort = append(t.Cohort, r.Cohort)
	t.ActiveState = append(t.ActiveState, r.ActiveState)
	t.TableType = append(t.TableType, r.TableType)
	for i, m := range AllMetrics {
		v, ok := r.Values[m]
		t.metrics[i].append(v, ok)
	}
}

// Row materialises row i.
func (t *Table) Row(i int) Row {
	r := Row{
		ReportingDate: t.ReportingDate[i],
		AppName:       t.AppName[i],
		PlanName:      t.PlanName[i],
		BillingCycle:  t.BillingCycle[i],
		Cohort:        t.Cohort[i],
		ActiveState:   t.ActiveState[i],
		TableType:     t.TableType[i],
		Values:        make(map[Metric]float64),
	}
	for j, m := range AllMetrics {
		if v, ok := t.metrics[j].At(i); ok {
			r.Values[m] = v
		}
	}
	return r
}

// Metric returns the column for m, or nil if m is not a dataset metric.
func (t *Table) Metric(m Metric) *Column {
	idx, ok := metricIndex[m]
	if !ok {
		return nil
	}
	return &t.metrics[idx]
}

// DateRange returns the minimum and maximum ReportingDate. ok is false for an
// empty table.
func (t *Table) DateRange() (min, max civil.Date, ok bool) {
	if t.Len() == 0 {
		return civil.Date{}, civil.Date{}, false
	}
	min, max = t.ReportingDate[0], t.ReportingDate[0]
	for _, d := range t.ReportingDate[1:] {
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, true
}
