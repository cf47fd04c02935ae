package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/GeoShift/internal/engine"
	"github.com/BTreeMap/GeoShift/internal/models"
	"github.com/BTreeMap/GeoShift/internal/notify"
	"github.com/BTreeMap/GeoShift/internal/position"
	"github.com/BTreeMap/GeoShift/internal/scheduler"
	"github.com/BTreeMap/GeoShift/internal/store"
)

const apiTestUser = "api-user"

// newTestServer wires an API server around an engine with in-memory
// collaborators.
func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	timer := engine.NewSimpleTimer()
	t.Cleanup(timer.Stop)
	registrar := scheduler.NewTaskRegistry()
	t.Cleanup(registrar.Stop)
	registry := prometheus.NewRegistry()

	eng := engine.New(st, timer, notify.NewLocalService(), position.NewFakeSource(),
		registrar, engine.NewMetrics(registry), engine.WithUserID(apiTestUser))
	t.Cleanup(eng.Stop)
	registrar.Bind(engine.HeartbeatTaskName, func() { eng.OnHeartbeatTick(context.Background()) })

	return NewServer(eng, st, registry, WithUserID(apiTestUser)), st
}

// doRequest runs a request through the server's routing table.
func doRequest(t *testing.T, srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

// decodeEnvelope parses the uniform response envelope.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return resp
}

func TestTransitionHandlerAcceptsValidTransition(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/transition", []byte(`{"fence_id":"office","kind":"enter"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeEnvelope(t, rr); resp.Status != models.APIStatusOK {
		t.Errorf("expected ok envelope, got %+v", resp)
	}
}

func TestTransitionHandlerRejectsBadJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/transition", []byte(`{not json`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rr.Code)
	}
	if resp := decodeEnvelope(t, rr); resp.Status != models.APIStatusError {
		t.Errorf("expected error envelope, got %+v", resp)
	}
}

func TestTransitionHandlerRejectsInvalidKind(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/transition", []byte(`{"fence_id":"office","kind":"sideways"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown transition kind, got %d", rr.Code)
	}
}

func TestTransitionHandlerRejectsWrongMethod(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/transition", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST header, got %q", allow)
	}
}

func TestActionHandlerRejectsUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/action", []byte(`{"action":"shrug"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown action, got %d", rr.Code)
	}
}

func TestActionHandlerAppliesValidAction(t *testing.T) {
	srv, _ := newTestServer(t)

	// Nothing is pending, so the action is a logged no-op, not an error.
	rr := doRequest(t, srv, http.MethodPost, "/action", []byte(`{"action":"ok"}`))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestStatusHandlerReportsReadiness(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a status object result, got %T", resp.Result)
	}
	if active, _ := result["monitoring_active"].(bool); active {
		t.Error("expected monitoring inactive before /ready")
	}

	if rr := doRequest(t, srv, http.MethodPost, "/ready", nil); rr.Code != http.StatusOK {
		t.Fatalf("POST /ready failed with %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/status", nil)
	resp = decodeEnvelope(t, rr)
	result = resp.Result.(map[string]interface{})
	if active, _ := result["monitoring_active"].(bool); !active {
		t.Error("expected monitoring active after /ready")
	}
}

func TestFencesRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`[{"id":"office","name":"Office","latitude":43.66,"longitude":-79.39,"radius_meters":100}]`)
	rr := doRequest(t, srv, http.MethodPost, "/fences", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid fence set, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, srv, http.MethodGet, "/fences", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	fences, ok := resp.Result.([]interface{})
	if !ok || len(fences) != 1 {
		t.Errorf("expected one configured fence, got %+v", resp.Result)
	}
}

func TestFencesHandlerRejectsInvalidFence(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodPost, "/fences", []byte(`[{"id":"","radius_meters":100}]`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a fence without an id, got %d", rr.Code)
	}
}

func TestSessionsHandler(t *testing.T) {
	srv, st := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/sessions?limit=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid limit, got %d", rr.Code)
	}

	if _, err := st.CreateSession(apiTestUser, "office", "Office", models.SessionKindManual); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	rr = doRequest(t, srv, http.MethodGet, "/sessions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeEnvelope(t, rr)
	sessions, ok := resp.Result.([]interface{})
	if !ok || len(sessions) != 1 {
		t.Errorf("expected one session, got %+v", resp.Result)
	}
}

func TestPositionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	source := position.NewReportedSource(0)
	srv.opts.Positions = source

	rr := doRequest(t, srv, http.MethodPost, "/position", []byte(`{"latitude":43.66,"longitude":-79.39,"accuracy_meters":12}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	pos, err := source.GetCurrentPosition(context.Background(), 50)
	if err != nil {
		t.Fatalf("expected the fix recorded, got %v", err)
	}
	if pos.AccuracyMeters != 12 {
		t.Errorf("expected the posted accuracy, got %+v", pos)
	}

	rr = doRequest(t, srv, http.MethodPost, "/position", []byte(`{"latitude":123.0,"longitude":0}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an out-of-range latitude, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rr.Code)
	}
}
