// Package source extracts the master dataset from the BigQuery source table.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/compute/metadata"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/allaspectsdev/icarus/internal/dataset"
	"github.com/allaspectsdev/icarus/internal/tracing"
)

// Extractor loads the full master dataset from the source system.
type Extractor interface {
	Extract(ctx context.Context) (*dataset.Table, error)
}

// Config holds the BigQuery connection settings.
type Config struct {
	// Table is the fully-qualified table identifier, project.dataset.table.
	Table string
	// ProjectID is the billing project. When empty it is taken from Table,
	// then from the GCE metadata server.
	ProjectID string
	// Location is the job location, e.g. "US". Empty lets BigQuery choose.
	Location string
	// UseQueryCache enables BigQuery's own result cache.
	UseQueryCache bool
}

// BigQuery is an Extractor backed by a BigQuery client.
type BigQuery struct {
	client *bigquery.Client
	cfg    Config
	query  string
}

// NewBigQuery creates a client for cfg.
func NewBigQuery(ctx context.Context, cfg Config, opts ...option.ClientOption) (*BigQuery, error) {
	if cfg.Table == "" {
		return nil, errors.New("source: no table configured")
	}
	projectID, err := resolveProjectID(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: bigquery client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	log.Info().
		Str("project", projectID).
		Str("table", cfg.Table).
		Msg("bigquery source configured")

	return &BigQuery{client: client, cfg: cfg, query: ProjectionSQL(cfg.Table)}, nil
}

// Extract runs the fixed projection and returns every row.
func (b *BigQuery) Extract(ctx context.Context) (*dataset.Table, error) {
	ctx, span := tracing.StartSourceSpan(ctx, b.cfg.Table)
	defer span.End()

	start := time.Now()
	q := b.client.Query(b.query)
	q.DisableQueryCache = !b.cfg.UseQueryCache

	it, err := q.Read(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("source: query %s: %w", b.cfg.Table, err)
	}

	t := dataset.NewTable(int(it.TotalRows))
	skipped := 0
	for {
		var rec record
		err := it.Next(&rec)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			tracing.RecordError(ctx, err)
			return nil, fmt.Errorf("source: reading %s: %w", b.cfg.Table, err)
		}
		row, err := rec.row()
		if err != nil {
			skipped++
			continue
		}
		t.Append(row)
	}

	if skipped > 0 {
		log.Warn().Int("skipped", skipped).Str("table", b.cfg.Table).Msg("source rows with invalid dimensions skipped")
	}
	tracing.SetRows(ctx, t.Len())
	log.Info().
		Int("rows", t.Len()).
		Dur("elapsed", time.Since(start)).
		Str("table", b.cfg.Table).
		Msg("source extraction complete")
	return t, nil
}

// Close releases the BigQuery client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

// ProjectionSQL returns the fixed 19-column query against table. Filtering
// happens in process, so there is no WHERE clause.
func ProjectionSQL(table string) string {
	cols := dataset.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "`" + c + "`"
	}
	return fmt.Sprintf("SELECT %s FROM `%s`", strings.Join(quoted, ", "), table)
}

func resolveProjectID(ctx context.Context, cfg Config) (string, error) {
	if cfg.ProjectID != "" {
		return cfg.ProjectID, nil
	}
	if p := ProjectFromTable(cfg.Table); p != "" {
		return p, nil
	}
	if metadata.OnGCE() {
		client := metadata.NewWithOptions(&metadata.Options{})
		p, err := client.ProjectIDWithContext(ctx)
		if err != nil {
			return "", fmt.Errorf("source: project from metadata server: %w", err)
		}
		log.Info().Str("project", p).Msg("got project from metadata server")
		return p, nil
	}
	return bigquery.DetectProjectID, nil
}

// ProjectFromTable returns the project segment of a project.dataset.table
// identifier, or "" when the identifier has fewer than three parts.
func ProjectFromTable(table string) string {
	parts := strings.Split(table, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
