package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"elementx/internal/config"
	"elementx/internal/imaging/reference"
)

func offlineConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	env := map[string]string{
		"CACHE_BACKEND":   backend,
		"CACHE_DISK_ROOT": t.TempDir(),
	}
	cfg, err := config.FromEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}, ":0")
	require.NoError(t, err)
	return cfg
}

func getImage(t *testing.T, h http.Handler, query string) map[string]string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/images?"+query, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestOfflineAppServesStaticAndFallback(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t, "disk"), zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.False(t, a.Resolver().Online())

	co2, _ := reference.Lookup("CO2")
	out := getImage(t, a.Handler(), "key=k1&prompt=prompt&formula=CO2&kind=compound")
	assert.Equal(t, co2, out["image"])
	assert.Equal(t, "static", out["source"])

	out = getImage(t, a.Handler(), "key=k2&prompt=prompt&formula=UnknownXYZ&kind=compound")
	assert.Equal(t, "fallback", out["source"])
	assert.True(t, strings.HasPrefix(out["image"], "data:image/svg+xml;base64,"))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/queue", nil))
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/explain", strings.NewReader(`{"prompt":"x"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnreachableBackendFallsBackToMemory(t *testing.T) {
	cfg := offlineConfig(t, "postgres")
	cfg.Cache.PostgresDSN = ""

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	out := getImage(t, a.Handler(), "key=k&prompt=a+beaker+of+brine&kind=solution")
	assert.Equal(t, "fallback", out["source"])
}

func TestUnknownBackendIsAnError(t *testing.T) {
	_, err := New(context.Background(), offlineConfig(t, "floppy"), nil)
	assert.ErrorContains(t, err, "floppy")
}

func TestShutdownIsClean(t *testing.T) {
	a, err := New(context.Background(), offlineConfig(t, "memory"), nil)
	require.NoError(t, err)
	assert.NoError(t, a.Shutdown(context.Background()))
}
