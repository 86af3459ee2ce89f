package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/stock-ledger-service/internal/api"
	"github.com/wms-platform/stock-ledger-service/internal/application"
	"github.com/wms-platform/stock-ledger-service/internal/infrastructure/memory"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	engine *projections.Engine
	ready  error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("test"))
	events := memory.NewEventStore()
	views := memory.NewViewStore()

	f := &fixture{}
	f.engine = projections.NewEngine(events, views, projections.DefaultEngineConfig(), logger, m, projections.DefaultProjections()...)
	f.router = api.NewRouter(api.Dependencies{
		ServiceName: "stock-ledger-service",
		Service:     application.NewMovementService(events, application.NewSlotLocker(m), logger, m, nil),
		Engine:      f.engine,
		Reader:      projections.NewReader(views),
		Logger:      logger,
		Metrics:     m,
		Ready:       func(context.Context) error { return f.ready },
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func receipt(location string, qty int) map[string]interface{} {
	return map[string]interface{}{
		"warehouse":    "WH1",
		"item":         "SKU-1",
		"quantity":     qty,
		"toLocation":   location,
		"movementType": "Receipt",
		"operatorId":   "op-1",
	}
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(api.HeaderRequestID))

	rec = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.ready = errors.New("mongo down")
	rec = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decode(t, rec)["code"])

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordMovementAndBalance(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/movements", receipt("LOC-A", 5))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "applied", decode(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/balances/WH1/LOC-A/SKU-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", decode(t, rec)["quantity"])

	rec = f.do(t, http.MethodGet, "/api/v1/balances/WH1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["balances"], 1)
}

func TestRecordMovement_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/movements", receipt("LOC-A", 5)).Code)

	transfer := map[string]interface{}{
		"warehouse":    "WH1",
		"item":         "SKU-1",
		"quantity":     10,
		"fromLocation": "LOC-A",
		"toLocation":   "LOC-B",
		"movementType": "Transfer",
		"operatorId":   "op-1",
	}
	rec := f.do(t, http.MethodPost, "/api/v1/movements", transfer)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body["code"])
	assert.Equal(t, "5", body["details"].(map[string]interface{})["shortfall"])

	transfer["quantity"] = 0
	rec = f.do(t, http.MethodPost, "/api/v1/movements", transfer)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.Equal(t, "quantity", body["details"].(map[string]interface{})["field"])

	rec = f.do(t, http.MethodGet, "/api/v1/balances/WH1/A:B/C", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "location", decode(t, rec)["details"].(map[string]interface{})["field"])

	rec = f.do(t, http.MethodPost, "/api/v1/movements", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decode(t, rec)["code"])
}

func TestProjectionsRebuildAndViews(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/movements", receipt("LOC-A", 500)).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/views/available-stock/WH1/LOC-A/SKU-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "views are written by the engine only")
	assert.Equal(t, "RESOURCE_NOT_FOUND", decode(t, rec)["code"])
	assert.Equal(t, "available stock WH1:LOC-A:SKU-1 not found", decode(t, rec)["message"])

	rec = f.do(t, http.MethodGet, "/api/v1/projections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decode(t, rec)["projections"].([]interface{})
	require.Len(t, statuses, 4)
	assert.EqualValues(t, 1, statuses[0].(map[string]interface{})["lag"])

	rec = f.do(t, http.MethodPost, "/api/v1/projections/available-stock/rebuild?mode=full", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode(t, rec)
	assert.Equal(t, "completed", report["status"])
	assert.EqualValues(t, 1, report["applied"])

	rec = f.do(t, http.MethodGet, "/api/v1/views/available-stock/WH1/LOC-A/SKU-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "500", decode(t, rec)["availableQty"])

	rec = f.do(t, http.MethodPost, "/api/v1/projections/nope/rebuild", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/projections/available-stock/rebuild?mode=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReservationFlow(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/movements", receipt("LOC-A", 500)).Code)

	rec := f.do(t, http.MethodPost, "/api/v1/reservations", map[string]interface{}{
		"reservationId": "r1",
		"purpose":       "order",
		"lines":         []map[string]interface{}{{"warehouse": "WH1", "item": "SKU-1", "quantity": 200}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/reservations/r1/allocate", nil).Code)

	rec = f.do(t, http.MethodPost, "/api/v1/reservations/r1/start-picking", map[string]interface{}{
		"startedBy": "op-1",
		"lines":     []map[string]interface{}{{"warehouse": "WH1", "location": "LOC-A", "item": "SKU-1", "lockedQty": 200}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/reservations/r1/bump", map[string]interface{}{"bumpedBy": "r2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, rec)["code"])

	require.NoError(t, f.engine.CatchUpAll(context.Background()))

	rec = f.do(t, http.MethodGet, "/api/v1/views/reservations/r1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.Equal(t, "Picking", summary["status"])
	assert.Equal(t, "Hard", summary["lockType"])

	rec = f.do(t, http.MethodGet, "/api/v1/views/hard-locks/r1/LOC-A/SKU-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200", decode(t, rec)["lockedQty"])

	rec = f.do(t, http.MethodGet, "/api/v1/views/available-stock/WH1/LOC-A/SKU-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "300", decode(t, rec)["availableQty"])

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/reservations/r1/consume", nil).Code)
	rec = f.do(t, http.MethodPost, "/api/v1/reservations/r1/cancel", map[string]interface{}{"reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/reservations/missing/allocate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlingUnitSealTwice(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/handling-units", map[string]interface{}{
		"unitId": "HU-1", "label": "PAL-1", "unitType": "pallet", "warehouse": "WH1", "location": "LOC-A",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/handling-units/HU-1/seal", nil).Code)
	rec = f.do(t, http.MethodPost, "/api/v1/handling-units/HU-1/seal", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, f.engine.CatchUpAll(context.Background()))
	rec = f.do(t, http.MethodGet, "/api/v1/views/handling-units/HU-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sealed", decode(t, rec)["status"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", decode(t, rec)["code"])
}

func TestCORSPreflight(t *testing.T) {
	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("test"))
	events := memory.NewEventStore()
	views := memory.NewViewStore()

	router := api.NewRouter(api.Dependencies{
		ServiceName:    "stock-ledger-service",
		Service:        application.NewMovementService(events, application.NewSlotLocker(m), logger, m, nil),
		Engine:         projections.NewEngine(events, views, projections.DefaultEngineConfig(), logger, m, projections.DefaultProjections()...),
		Reader:         projections.NewReader(views),
		Logger:         logger,
		Metrics:        m,
		AllowedOrigins: []string{"http://localhost:3000"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/movements", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/movements", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
