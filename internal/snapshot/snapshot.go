// Package snapshot encodes the master dataset as a snappy-compressed Parquet
// file and moves it to and from a durable bucket.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/objstore"
)

// ContentType is stored with every snapshot object.
const ContentType = "application/vnd.apache.parquet"

// record is the on-disk row layout. Column names match the source table so
// snapshots stay readable by other Parquet tooling.
type record struct {
	ReportingDate int32  `parquet:"Reporting_Date,date"`
	AppName       string `parquet:"App_Name,dict"`
	PlanName      string `parquet:"Plan_Name,dict"`
	BillingCycle  int64  `parquet:"BC"`
	Cohort        string `parquet:"Cohort,dict"`
	ActiveState   string `parquet:"Active_Inactive,dict"`
	TableType     string `parquet:"Table,dict"`

	Subscriptions       *float64 `parquet:"Subscriptions,optional"`
	Rebills             *float64 `parquet:"Rebills,optional"`
	ChurnRate           *float64 `parquet:"Churn_Rate,optional"`
	RefundRate          *float64 `parquet:"Refund_Rate,optional"`
	GrossARPURetention  *float64 `parquet:"Gross_ARPU_Retention_Rate,optional"`
	NetARPURetention    *float64 `parquet:"Net_ARPU_Retention_Rate,optional"`
	CohortCAC           *float64 `parquet:"Cohort_CAC,optional"`
	RecentCAC           *float64 `parquet:"Recent_CAC,optional"`
	GrossARPUDiscounted *float64 `parquet:"Gross_ARPU_Discounted,optional"`
	NetARPUDiscounted   *float64 `parquet:"Net_ARPU_Discounted,optional"`
	NetLTVDiscounted    *float64 `parquet:"Net_LTV_Discounted,optional"`
	BC4CACCeiling       *float64 `parquet:"BC4_CAC_Ceiling,optional"`
}

// metricFields returns pointers to the metric fields of r in
// dataset.AllMetrics order.
func (r *record) metricFields() []**float64 {
	return []**float64{
		&r.Subscriptions,
		&r.Rebills,
		&r.ChurnRate,
		&r.RefundRate,
		&r.GrossARPURetention,
		&r.NetARPURetention,
		&r.CohortCAC,
		&r.RecentCAC,
		&r.GrossARPUDiscounted,
		&r.NetARPUDiscounted,
		&r.NetLTVDiscounted,
		&r.BC4CACCeiling,
	}
}

// Encode serialises t into Parquet bytes.
func Encode(t *dataset.Table) ([]byte, error) {
	rows := make([]record, t.Len())
	for i := range rows {
		rows[i] = toRecord(t, i)
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[record](&buf, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses Parquet bytes produced by Encode.
func Decode(data []byte) (*dataset.Table, error) {
	rows, err := parquet.Read[record](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}

	t := dataset.NewTable(len(rows))
	for i := range rows {
		row, err := fromRecord(&rows[i])
		if err != nil {
			return nil, fmt.Errorf("snapshot: decode row %d: %w", i, err)
		}
		t.Append(row)
	}
	return t, nil
}

// Load reads and decodes the snapshot at key. A missing object yields an
// error wrapping objstore.ErrNotFound.
func Load(ctx context.Context, b objstore.Bucket, key string) (*dataset.Table, error) {
	if b == nil {
		return nil, objstore.ErrUnavailable
	}
	data, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Save encodes t and writes it to key.
func Save(ctx context.Context, b objstore.Bucket, key string, t *dataset.Table) error {
	if b == nil {
		return objstore.ErrUnavailable
	}
	data, err := Encode(t)
	if err != nil {
		return err
	}
	return b.Put(ctx, key, data, ContentType)
}

// Read returns the snapshot at key, or nil when it is absent, unreadable or
// b is nil. Failures are logged, never returned.
func Read(ctx context.Context, b objstore.Bucket, key string) *dataset.Table {
	if b == nil {
		return nil
	}
	t, err := Load(ctx, b, key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			log.Debug().Str("key", key).Msg("snapshot not found")
		} else {
			log.Warn().Err(err).Str("key", key).Msg("snapshot read failed")
		}
		return nil
	}
	return t
}

// Write stores t at key and reports success. Failures are logged.
func Write(ctx context.Context, b objstore.Bucket, key string, t *dataset.Table) bool {
	if b == nil {
		return false
	}
	start := time.Now()
	if err := Save(ctx, b, key, t); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("snapshot write failed")
		return false
	}
	log.Debug().
		Str("key", key).
		Int("rows", t.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("snapshot written")
	return true
}

var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

func toRecord(t *dataset.Table, i int) record {
	r := record{
		ReportingDate: int32(t.ReportingDate[i].DaysSince(epoch)),
		AppName:       t.AppName[i],
		PlanName:      t.PlanName[i],
		BillingCycle:  t.BillingCycle[i],
		Cohort:        t.Cohort[i],
		ActiveState:   string(t.ActiveState[i]),
		TableType:     string(t.TableType[i]),
	}
	fields := r.metricFields()
	for j, m := range dataset.AllMetrics {
		*fields[j] = t.Metric(m).Ptr(i)
	}
	return r
}

func fromRecord(r *record) (dataset.Row, error) {
	state, err := dataset.ParseActiveState(r.ActiveState)
	if err != nil {
		return dataset.Row{}, err
	}
	tt, err := dataset.ParseTableType(r.TableType)
	if err != nil {
		return dataset.Row{}, err
	}

	row := dataset.Row{
		ReportingDate: epoch.AddDays(int(r.ReportingDate)),
		AppName:       r.AppName,
		PlanName:      r.PlanName,
		BillingCycle:  r.BillingCycle,
		Cohort:        r.Cohort,
		ActiveState:   state,
		TableType:     tt,
		Values:        make(map[dataset.Metric]float64),
	}
	for j, f := range r.metricFields() {
		if *f != nil {
			row.Values[dataset.AllMetrics[j]] = **f
		}
	}
	return row, nil
}
