package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/common/logging"
	"mediation-router/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:               "8280",
		AdminPort:          "9190",
		DefinitionsDir:     t.TempDir(),
		ReloadDebounce:     50 * time.Millisecond,
		PoolMaxPerRoute:    4,
		PoolIdleTimeout:    time.Minute,
		PoolMaxLifetime:    10 * time.Minute,
		PoolConnectTimeout: time.Second,
		PoolEvictSchedule:  "@every 1m",
		UpstreamTimeout:    5 * time.Second,
		ClusterSyncChannel: "mediation:apis",
		NodeID:             "node-a",
		MetricsEnabled:     true,
	}
}

func writeDefinition(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func startApp(t *testing.T, cfg *config.Config) (*App, http.Handler, http.Handler) {
	t.Helper()
	logging.SetGlobalLogger(logging.NewNopLogger())

	app, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
		app.Cleanup()
	})

	gateway := mux.NewRouter()
	SetupGatewayRoutes(gateway, app.Handlers, app.Logger)
	admin := mux.NewRouter()
	SetupAdminRoutes(admin, app.Handlers, app.Metrics.Handler(), app.Logger)
	return app, gateway, admin
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, r))
	return rr
}

func TestApp_ServesDefinitionsFromDirectory(t *testing.T) {
	cfg := testConfig(t)
	writeDefinition(t, cfg.DefinitionsDir, "shop.yaml", `
name: shop
context: /shop
resources:
  - methods: [GET]
    uriTemplate: /orders/{id}
`)

	app, gateway, admin := startApp(t, cfg)
	assert.Equal(t, 1, app.Table.Len())

	rr := serve(gateway, "GET", "/shop/orders/7", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"id":"7"`)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = serve(gateway, "GET", "/elsewhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(admin, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `mediation_router_dispatch_total{outcome="matched"} 1`)
	assert.Contains(t, rr.Body.String(), `mediation_router_apis_deployed 1`)

	rr = serve(admin, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(admin, "GET", "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"/admin/apis/{name}"`)
	assert.Contains(t, rr.Body.String(), `"Mediation Router Admin API"`)
}

func TestApp_MissingDirectoryStillStarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.DefinitionsDir = filepath.Join(cfg.DefinitionsDir, "absent")
	cfg.AutoReload = true

	app, _, admin := startApp(t, cfg)
	assert.Equal(t, 0, app.Table.Len())

	rr := serve(admin, "PUT", "/admin/apis/billing", `{"context":"/billing","resources":[{"methods":["GET"]}]}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, app.Table.Len())
}

func TestApp_AutoReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutoReload = true

	app, _, _ := startApp(t, cfg)
	require.Equal(t, 0, app.Table.Len())

	writeDefinition(t, cfg.DefinitionsDir, "shop.yaml", "name: shop\ncontext: /shop\nresources:\n  - methods: [GET]\n")
	require.Eventually(t, func() bool {
		_, ok := app.Table.Get("shop")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_ForwardsToEndpoint(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend-Path", r.URL.Path)
		_, _ = io.WriteString(w, "from backend")
	}))
	defer backend.Close()

	cfg := testConfig(t)
	writeDefinition(t, cfg.DefinitionsDir, "orders.json",
		`{"name":"orders","context":"/orders","resources":[{"methods":["GET"],"endpoint":"`+backend.URL+`/internal"}]}`)

	app, gateway, admin := startApp(t, cfg)

	for i := 0; i < 3; i++ {
		rr := serve(gateway, "GET", "/orders/42", "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "from backend", rr.Body.String())
		assert.Equal(t, "/internal/42", rr.Header().Get("X-Backend-Path"))
	}

	leased, idle := app.Pool.Totals()
	assert.Equal(t, 0, leased)
	assert.Equal(t, 1, idle)

	rr := serve(admin, "GET", "/admin/pool", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "#orders")
}

func TestApp_ClusterSync(t *testing.T) {
	mr := miniredis.RunT(t)

	cfgA := testConfig(t)
	cfgA.ClusterSyncEnabled = true
	cfgA.RedisAddress = mr.Addr()

	cfgB := testConfig(t)
	cfgB.ClusterSyncEnabled = true
	cfgB.RedisAddress = mr.Addr()
	cfgB.NodeID = "node-b"

	appA, _, adminA := startApp(t, cfgA)
	appB, gatewayB, _ := startApp(t, cfgB)

	rr := serve(adminA, "PUT", "/admin/apis/billing", `{"context":"/billing","resources":[{"methods":["GET"]}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	_, ok := appA.Table.Get("billing")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := appB.Table.Get("billing")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	rr = serve(gatewayB, "GET", "/billing/invoices", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	cfgC := testConfig(t)
	cfgC.ClusterSyncEnabled = true
	cfgC.RedisAddress = mr.Addr()
	cfgC.NodeID = "node-c"
	appC, _, _ := startApp(t, cfgC)
	_, ok = appC.Table.Get("billing")
	assert.True(t, ok, "late node bootstraps from the cluster state")

	rr = serve(adminA, "DELETE", "/admin/apis/billing", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Eventually(t, func() bool {
		_, ok := appB.Table.Get("billing")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApp_ClusterSyncRequiresRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.ClusterSyncEnabled = true
	cfg.RedisAddress = "127.0.0.1:1"

	logging.SetGlobalLogger(logging.NewNopLogger())
	app, err := New(cfg)
	require.NoError(t, err)
	assert.Error(t, app.Start(context.Background()))
	_ = app.Shutdown(context.Background())
}
