package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-wms/internal/audit/http"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/rbac"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000, ReceivingRateLimit: 100}
	rbacService := rbac.NewService(nil)
	// Routes under test are rejected by RBAC before the service touches the repository.
	svc := warehouseorders.NewService(nil, warehouseorders.ServiceDeps{Logger: logger})
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		WarehouseHandler:   warehouseorders.NewHandler(logger, svc, rbacMiddleware, cfg.ReceivingRateLimit),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, rbacService),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(nil), rbacMiddleware),
		JobHandler:         jobs.NewHandler(nil, logger),
		Metrics:            observability.NewMetrics(),
	})
}

func serve(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(router, http.MethodGet, "/jobs/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"queue":"maintenance"`)

	rec = serve(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "wms_http_requests_total"))
}

func TestRouterAuthorization(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/v1/lines", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/lines", map[string]string{HeaderActorID: "x", HeaderActorRole: "admin"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPost, "/api/v1/lines/ACME_0000001/repair", map[string]string{
		HeaderActorID: "5", HeaderActorRole: "client", HeaderClientCode: "ACME",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/lines/ACME_0000001/audit", map[string]string{HeaderActorID: "9", HeaderActorRole: "employee"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouterPermissionsForCaller(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/v1/permissions/me", map[string]string{HeaderActorID: "9", HeaderActorRole: "employee"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Permissions)
}

func TestRouterNotFoundIsProblemJSON(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
