package daemon

import (
	"context"
	"testing"

	"github.com/allaspectsdev/icarus/internal/config"
	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/metrics"
	"github.com/allaspectsdev/icarus/internal/testutil"
)

func TestBuildService_NoSourceSQLiteStore(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	cfg.Storage.Backend = config.BackendSQLite
	st := testutil.NewTestStore(t)

	svc, cleanup, err := buildService(context.Background(), cfg, st, metrics.NewCollector())
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}
	defer cleanup()

	status := svc.Status(context.Background())
	if !status.StoreConfigured {
		t.Errorf("expected sqlite store to be resolved: %+v", status)
	}

	// Without a source and without an active snapshot every tier misses.
	if _, err := svc.MasterData(context.Background()); err == nil {
		t.Error("expected an error with no source and an empty store")
	}
	if res := svc.ExtractToStaging(context.Background()); res.OK {
		t.Error("extract without a source must fail")
	}
}

func TestBuildService_NoStore(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	svc, cleanup, err := buildService(context.Background(), cfg, testutil.NewTestStore(t), nil)
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}
	defer cleanup()

	if res := svc.PromoteStagingToActive(context.Background()); res.OK {
		t.Error("promote without a durable store must fail")
	}
	if st := svc.Status(context.Background()); st.StoreConfigured || st.Source != datacache.TierNone {
		t.Errorf("status: %+v", st)
	}
}

func TestBuildService_BadCredentialsRef(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	cfg.Storage.CredentialsRef = "bogus://ref"
	if _, _, err := buildService(context.Background(), cfg, testutil.NewTestStore(t), nil); err == nil {
		t.Fatal("expected credentials error")
	}
}
