package daemon

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/icarus/internal/datacache"
	"github.com/allaspectsdev/icarus/internal/testutil"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAPIURL_WildcardBindUsesLoopback(t *testing.T) {
	cfg := testutil.NewTestConfig(t)
	cfg.Server.BindAddress = "0.0.0.0"
	cfg.Server.Port = 7690
	if got := apiURL(cfg, "/api/stats"); got != "http://127.0.0.1:7690/api/stats" {
		t.Errorf("apiURL: got %s", got)
	}
}

func TestDecodeResponse(t *testing.T) {
	respond := func(code int, body string) *http.Response {
		rec := httptest.NewRecorder()
		rec.WriteHeader(code)
		rec.WriteString(body)
		return rec.Result()
	}

	var res datacache.RefreshResult
	if err := decodeResponse(respond(http.StatusOK, `{"ok":true,"message":"done"}`), &res); err != nil || !res.OK {
		t.Errorf("200: got %+v, %v", res, err)
	}

	res = datacache.RefreshResult{}
	if err := decodeResponse(respond(http.StatusConflict, `{"ok":false,"message":"no staging"}`), &res); err != nil {
		t.Errorf("409 should decode as a result: %v", err)
	}
	if res.OK || res.Message != "no staging" {
		t.Errorf("409: got %+v", res)
	}

	err := decodeResponse(respond(http.StatusTooManyRequests, `{"error":"refresh rate limit exceeded"}`), &res)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("429: got %v", err)
	}

	if err := decodeResponse(respond(http.StatusInternalServerError, `oops`), &res); err == nil {
		t.Error("expected error for non-JSON 500")
	}
}

func TestRefresh_UnknownStage(t *testing.T) {
	if _, err := Refresh(testutil.NewTestConfig(t), "rollback"); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestRefresh_LocalWithoutDurableStore(t *testing.T) {
	cfg := testutil.NewTestConfig(t)

	for _, stage := range []string{datacache.StageExtract, datacache.StagePromote} {
		res, err := Refresh(cfg, stage)
		if err != nil {
			t.Fatalf("Refresh(%s): %v", stage, err)
		}
		if res.OK {
			t.Errorf("Refresh(%s): expected failure without a durable store", stage)
		}
	}
}

func TestCacheStatus_Local(t *testing.T) {
	if err := CacheStatus(testutil.NewTestConfig(t)); err != nil {
		t.Fatalf("CacheStatus: %v", err)
	}
}
