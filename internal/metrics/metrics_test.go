package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/circuitbreaker"
	"mediation-router/internal/routing"
)

type fakePool struct{ leased, idle int }

func (p fakePool) Totals() (int, int) { return p.leased, p.idle }

type fakeBreakers []circuitbreaker.Stats

func (b fakeBreakers) AllStats() []circuitbreaker.Stats { return b }

func scrape(t *testing.T, m *Metrics) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Code, rec.Body.String()
}

func TestMetrics_Records(t *testing.T) {
	m := New(true)
	require.True(t, m.Enabled())

	m.ObserveDispatch(routing.OutcomeMatched, time.Millisecond)
	m.ObserveDispatch(routing.OutcomeMatched, time.Millisecond)
	m.ObserveDispatch(routing.OutcomeAPINotFound, time.Microsecond)
	m.ObserveAcquire("reused")
	m.ObserveDeploy("deploy", "success")
	m.ObserveDeploy("deploy", "error")
	m.SetDeployed(3)

	code, body := scrape(t, m)
	require.Equal(t, http.StatusOK, code)
	for _, line := range []string{
		`mediation_router_dispatch_total{outcome="matched"} 2`,
		`mediation_router_dispatch_total{outcome="api_not_found"} 1`,
		`mediation_router_dispatch_duration_seconds_count 3`,
		`mediation_router_pool_acquire_total{result="reused"} 1`,
		`mediation_router_deploy_operations_total{operation="deploy",status="error"} 1`,
		`mediation_router_deploy_operations_total{operation="deploy",status="success"} 1`,
		`mediation_router_apis_deployed 3`,
		`go_goroutines`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestMetrics_Collectors(t *testing.T) {
	m := New(true)
	m.RegisterPool(fakePool{leased: 2, idle: 5})
	m.RegisterBreakers(fakeBreakers{
		{Name: "http://a:80", State: "open"},
		{Name: "http://b:80", State: "closed"},
	})

	_, body := scrape(t, m)
	assert.Contains(t, body, `mediation_router_pool_connections{state="idle"} 5`)
	assert.Contains(t, body, `mediation_router_pool_connections{state="leased"} 2`)
	assert.Contains(t, body, `mediation_router_circuit_breaker_open{breaker="http://a:80"} 1`)
	assert.Contains(t, body, `mediation_router_circuit_breaker_open{breaker="http://b:80"} 0`)
}

func TestMetrics_Disabled(t *testing.T) {
	m := New(false)
	assert.False(t, m.Enabled())
	assert.Nil(t, m.Registry())

	m.ObserveDispatch(routing.OutcomeMatched, time.Millisecond)
	m.ObserveAcquire("connect")
	m.ObserveDeploy("load", "success")
	m.SetDeployed(1)
	m.RegisterPool(fakePool{})
	m.RegisterBreakers(fakeBreakers{})

	code, _ := scrape(t, m)
	assert.Equal(t, http.StatusNotFound, code)
}
