package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/icarus/internal/config"
	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/metrics"
	"github.com/allaspectsdev/icarus/internal/objstore"
	"github.com/allaspectsdev/icarus/internal/source"
	"github.com/allaspectsdev/icarus/internal/store"
	"github.com/allaspectsdev/icarus/internal/vault"
)

// buildService wires the source, the durable store and the cache core from
// cfg. The returned cleanup func releases the source client.
func buildService(ctx context.Context, cfg *config.Config, st *store.Store, collector *metrics.Collector) (*datacache.Service, func(), error) {
	v := vault.New()
	cleanup := func() {}

	var src source.Extractor
	if cfg.Source.Table == "" {
		log.Warn().Msg("no source table configured; serving from the durable store only")
	} else {
		opts, err := v.ClientOptions(cfg.Source.CredentialsRef)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving source credentials: %w", err)
		}
		bq, err := source.NewBigQuery(ctx, source.Config{
			Table:         cfg.Source.Table,
			ProjectID:     cfg.Source.ProjectID,
			Location:      cfg.Source.Location,
			UseQueryCache: cfg.Source.UseQueryCache,
		}, opts...)
		if err != nil {
			return nil, nil, err
		}
		src = bq
		cleanup = func() {
			if err := bq.Close(); err != nil {
				log.Warn().Err(err).Msg("closing bigquery client")
			}
		}
	}

	storageOpts, err := v.ClientOptions(cfg.Storage.CredentialsRef)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("resolving storage credentials: %w", err)
	}
	resolver := objstore.NewResolver(objstore.Open(objstore.Config{
		Backend:       cfg.Storage.Backend,
		Bucket:        cfg.Storage.Bucket,
		Store:         st,
		ClientOptions: storageOpts,
	}))

	opts := datacache.Options{
		Source: src,
		Bucket: resolver.Bucket,
		Store:  st,
		Keys: datacache.Keys{
			Active:      cfg.Storage.ActiveKey,
			Staging:     cfg.Storage.StagingKey,
			ExtractMeta: cfg.Storage.ExtractMetaKey,
			PromoteMeta: cfg.Storage.PromoteMetaKey,
		},
		MasterTTL:       cfg.Cache.MasterTTL(),
		DerivedTTL:      cfg.Cache.DerivedTTL(),
		QueryTTL:        cfg.Cache.QueryTTL(),
		MetadataTTL:     cfg.Cache.MetadataTTL(),
		QueryMaxEntries: cfg.Cache.QueryMaxEntries,
	}
	if collector != nil {
		opts.Recorder = collector
	}

	svc, err := datacache.New(opts)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
