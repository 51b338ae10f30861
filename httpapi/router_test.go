package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/health"
	"github.com/GoCodeAlone/blueprint/metrics"
	"github.com/GoCodeAlone/blueprint/modules/builtin"
	"github.com/GoCodeAlone/blueprint/storage/memory"
)

type fixture struct {
	manager *blueprint.ModuleManager
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	store := memory.New()
	m := blueprint.NewModuleManager(store, memory.NewAuditLog(), builtin.NewFactory(),
		blueprint.WithMetrics(metrics.NewCollector(reg)))
	require.NoError(t, m.LoadModules(context.Background(), "bp-1"))

	agg := health.NewAggregator()
	require.NoError(t, agg.RegisterCheck(health.NewModuleChecker(m)))

	srv := NewServer(m, WithHealth(agg), WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return &fixture{manager: m, store: store, handler: srv.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) register(t *testing.T, id string, moduleType blueprint.ModuleType, deps ...string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/blueprints/bp-1/modules/", blueprint.CreateModuleData{
		ID: id, Name: id, Version: "1.0.0", ModuleType: moduleType, Dependencies: deps, Enabled: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegisterAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", "contract")

	rec := f.do(t, http.MethodGet, "/blueprints/bp-1/modules/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var mods []blueprint.ModuleDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mods))
	require.Len(t, mods, 1)
	assert.Equal(t, "contract", mods[0].ID)
	assert.Equal(t, blueprint.StatusUninitialized, mods[0].Status)
}

func TestUnknownBlueprint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/blueprints/other/modules/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", "contract")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing name", http.MethodPost, "/blueprints/bp-1/modules/", blueprint.CreateModuleData{ModuleType: "contract"}, http.StatusBadRequest},
		{"unknown type", http.MethodPost, "/blueprints/bp-1/modules/", blueprint.CreateModuleData{Name: "x", ModuleType: "nope"}, http.StatusBadRequest},
		{"duplicate", http.MethodPost, "/blueprints/bp-1/modules/", blueprint.CreateModuleData{ID: "contract", Name: "c", ModuleType: "contract"}, http.StatusConflict},
		{"unknown module", http.MethodPost, "/blueprints/bp-1/modules/ghost/enable", nil, http.StatusNotFound},
		{"empty batch", http.MethodPost, "/blueprints/bp-1/modules/batch/enabled", batchRequest{Enabled: true}, http.StatusBadRequest},
		{"bad body", http.MethodPut, "/blueprints/bp-1/modules/contract/config", map[string]any{"bogus": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestEnableDisableAndConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", "contract")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/blueprints/bp-1/modules/contract/disable", nil).Code)
	desc, _ := f.manager.LookupModule("contract")
	assert.False(t, desc.Enabled)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/blueprints/bp-1/modules/contract/enable", nil).Code)
	desc, _ = f.manager.LookupModule("contract")
	assert.True(t, desc.Enabled)

	cfg := blueprint.ModuleConfig{Limits: blueprint.LimitsConfig{MaxItems: 5}}
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPut, "/blueprints/bp-1/modules/contract/config", cfg).Code)
	desc, _ = f.manager.LookupModule("contract")
	assert.Equal(t, 5, desc.DefaultConfig.Limits.MaxItems)
}

func TestBatchEnabled_Partial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		f.register(t, id, "workflow")
	}
	f.store.FailOn(memory.OpBatch, "b", errors.New("locked"))

	rec := f.do(t, http.MethodPost, "/blueprints/bp-1/modules/batch/enabled", batchRequest{IDs: []string{"a", "b", "c"}, Enabled: false})
	require.Equal(t, http.StatusOK, rec.Code)

	var result blueprint.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"a", "c"}, result.Success)
	assert.Equal(t, []string{"b"}, result.Failed)
}

func TestActivateDeactivateAndHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", "contract")
	f.register(t, "finance", "finance", "contract")

	rec := f.do(t, http.MethodPost, "/blueprints/bp-1/activate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report activationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, []string{"contract", "finance"}, report.Running)
	assert.Empty(t, report.Failed)

	rec = f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status health.AggregatedStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, health.StatusHealthy, status.OverallStatus)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blueprint_module_transitions_total")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, "/blueprints/bp-1/deactivate", nil).Code)
	desc, _ := f.manager.LookupModule("finance")
	assert.Equal(t, blueprint.StatusDisposed, desc.Status)
}

func TestActivateModule_Disabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", "contract")
	require.NoError(t, f.manager.DisableModule(context.Background(), "contract"))

	rec := f.do(t, http.MethodPost, "/blueprints/bp-1/modules/contract/activate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteModule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", "contract")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/blueprints/bp-1/modules/contract/", nil).Code)
	_, ok := f.manager.LookupModule("contract")
	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/blueprints/bp-1/modules/contract/", nil).Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", blueprint.ErrCircularDependency)))
	assert.Equal(t, http.StatusConflict, statusFor(blueprint.ErrInvalidTransition))
}
