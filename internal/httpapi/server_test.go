package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/campusgate/internal/campusgate/broadcast"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/face"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/service"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store"
	"github.com/BrandonDHaskell/campusgate/internal/campusgate/store/memory"
	"github.com/BrandonDHaskell/campusgate/internal/clock"
	"github.com/BrandonDHaskell/campusgate/internal/httpapi"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// newTestServer wires the real services over in-memory stores with one
// gate and one active student.
func newTestServer(t *testing.T) (*httptest.Server, *broadcast.Hub) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := memory.NewDirectory()
	dir.PutGate(store.Gate{ID: "gate_main", Name: "Main Gate", Location: "North"})
	dir.PutSubject(store.Subject{
		Ref:    store.SubjectRef{Kind: store.KindStudent, ID: "stu_1"},
		Name:   "Ada Student",
		Status: store.StatusActive,
		Code:   "QR-STU-1",
	})

	hub := broadcast.NewHub(logger, nil)
	t.Cleanup(hub.Close)

	deps := service.Deps{
		Directory:   dir,
		Visitors:    dir,
		Ledger:      memory.NewLedger(),
		Fleet:       memory.NewFleet(),
		Vehicles:    memory.NewVehicleLog(),
		AccessLog:   memory.NewAccessLog(),
		Matcher:     face.Static(0.9),
		Broadcaster: hub,
		Clock:       clock.Fake(t0),
		Logger:      logger,
		Policy:      service.DefaultPolicy(),
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       ":0",
		Access:     service.NewAccessService(deps),
		Visitors:   service.NewVisitorService(deps),
		Violations: service.NewViolationService(deps),
		Vehicles:   service.NewVehicleService(deps),
		Gates:      service.NewGateRegistry(dir),
		Hub:        hub,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func do(t *testing.T, method, url, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, env
}

var operator = map[string]string{"X-Actor-ID": "op_1", "X-Actor-Name": "Olive Operator"}

// ── Scanning ─────────────────────────────────────────────────────────────────

func TestScanQR_KnownStudent_RequiresFace(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodPost, ts.URL+"/v1/scan/qr",
		`{"qrCode":"QR-STU-1","gateId":"gate_main","scanTimestamp":"2026-03-02T08:00:00Z"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	var d struct {
		Valid                    bool   `json:"valid"`
		RequiresFaceVerification bool   `json:"requiresFaceVerification"`
		SubjectType              string `json:"subjectType"`
	}
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !d.Valid || !d.RequiresFaceVerification || d.SubjectType != "student" {
		t.Errorf("unexpected decision: %+v", d)
	}
}

func TestScanQR_InvalidGate_400(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodPost, ts.URL+"/v1/scan/qr",
		`{"qrCode":"QR-STU-1","gateId":"gate_nowhere"}`, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if env.Code != "INVALID_GATE" {
		t.Errorf("expected INVALID_GATE, got %q", env.Code)
	}
}

func TestScanQR_InvalidJSON_400(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodPost, ts.URL+"/v1/scan/qr", `not json at all`, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if env.Status != "error" {
		t.Errorf("expected error envelope, got %q", env.Status)
	}
}

// ── Violations ───────────────────────────────────────────────────────────────

func TestViolation_ListAndResolve(t *testing.T) {
	ts, _ := newTestServer(t)

	_, scan := do(t, http.MethodPost, ts.URL+"/v1/scan/qr",
		`{"qrCode":"QR-FAKE","gateId":"gate_main"}`, nil)
	var decision struct {
		ViolationID string `json:"violationId"`
	}
	if err := json.Unmarshal(scan.Data, &decision); err != nil || decision.ViolationID == "" {
		t.Fatalf("expected a violation id, got %s (%v)", scan.Data, err)
	}

	status, env := do(t, http.MethodGet, ts.URL+"/v1/violations?type=unauthorized_qr_scan&resolved=false", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", status)
	}
	var list struct {
		Violations []struct {
			ID       string `json:"id"`
			GateName string `json:"gateName"`
		} `json:"violations"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Violations) != 1 || list.Violations[0].GateName != "Main Gate" {
		t.Fatalf("unexpected list: %s", env.Data)
	}

	url := ts.URL + "/v1/violations/" + decision.ViolationID + "/resolve"

	status, env = do(t, http.MethodPatch, url, `{"notes":"badge reissued"}`, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("no actor: expected 401, got %d", status)
	}

	status, env = do(t, http.MethodPatch, url, `{"notes":"badge reissued"}`, operator)
	if status != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d (%s)", status, env.Message)
	}

	status, env = do(t, http.MethodPatch, url, "", operator)
	if status != http.StatusConflict || env.Code != "ALREADY_RESOLVED" {
		t.Fatalf("second resolve: expected 409 ALREADY_RESOLVED, got %d %q", status, env.Code)
	}
}

func TestViolation_ResolveUnknown_404(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodPatch, ts.URL+"/v1/violations/vio_missing/resolve", "", operator)
	if status != http.StatusNotFound || env.Code != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %q", status, env.Code)
	}
}

func TestViolation_BadQuery_400(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodGet, ts.URL+"/v1/violations?page=abc&resolved=maybe&startDate=yesterday", "", nil)
	if status != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 VALIDATION_ERROR, got %d %q", status, env.Code)
	}
	var fields []struct {
		Field string `json:"field"`
	}
	if err := json.Unmarshal(env.Details, &fields); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(fields) != 3 {
		t.Errorf("expected 3 field errors, got %s", env.Details)
	}
}

// ── Vehicles ─────────────────────────────────────────────────────────────────

func TestVehicleExit_NoEntry_404(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodPost, ts.URL+"/v1/vehicles/exit",
		`{"licensePlate":"ZZZ-999","gateId":"gate_main"}`, nil)
	if status != http.StatusNotFound || env.Code != "NO_ENTRY_FOUND" {
		t.Fatalf("expected 404 NO_ENTRY_FOUND, got %d %q", status, env.Code)
	}
	var details struct {
		AlertID string `json:"alertId"`
	}
	if err := json.Unmarshal(env.Details, &details); err != nil || details.AlertID == "" {
		t.Fatalf("expected alertId in details, got %s", env.Details)
	}

	status, env = do(t, http.MethodGet, ts.URL+"/v1/vehicles/alerts?type=vehicle_mismatch", "", nil)
	if status != http.StatusOK {
		t.Fatalf("alerts: expected 200, got %d", status)
	}
	if !strings.Contains(string(env.Data), details.AlertID) {
		t.Errorf("alert %s missing from list: %s", details.AlertID, env.Data)
	}
}

func TestVehicle_RegisterEntryExit(t *testing.T) {
	ts, _ := newTestServer(t)

	status, _ := do(t, http.MethodPost, ts.URL+"/v1/vehicles",
		`{"licensePlate":"abc 123","ownerType":"student","ownerId":"stu_1","ownerName":"Ada Student"}`, nil)
	if status != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", status)
	}

	status, _ = do(t, http.MethodPost, ts.URL+"/v1/vehicles/entry",
		`{"licensePlate":"ABC 123","gateId":"gate_main","timestamp":"2026-03-02T08:00:00Z"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("entry: expected 200, got %d", status)
	}

	status, env := do(t, http.MethodPost, ts.URL+"/v1/vehicles/exit",
		`{"licensePlate":"ABC 123","gateId":"gate_main","timestamp":"2026-03-02T09:30:00Z"}`, nil)
	if status != http.StatusOK {
		t.Fatalf("exit: expected 200, got %d (%s)", status, env.Message)
	}
	var exit struct {
		Duration string `json:"duration"`
	}
	if err := json.Unmarshal(env.Data, &exit); err != nil {
		t.Fatalf("decode exit: %v", err)
	}
	if exit.Duration != "1h 30m" {
		t.Errorf("expected duration 1h 30m, got %q", exit.Duration)
	}
}

// ── Gates, health, metrics ───────────────────────────────────────────────────

func TestGates_List(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := do(t, http.MethodGet, ts.URL+"/v1/gates", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(env.Data), "gate_main") {
		t.Errorf("expected gate_main in %s", env.Data)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", resp.StatusCode)
	}
}

// ── Alert stream ─────────────────────────────────────────────────────────────

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func waitSubscribers(t *testing.T, hub *broadcast.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAlertStream_JSON(t *testing.T) {
	ts, hub := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/v1/ws/alerts"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var ready broadcast.Event
	if err := wsjson.Read(ctx, conn, &ready); err != nil {
		t.Fatalf("read ready: %v", err)
	}
	if ready.Type != broadcast.TypeReady {
		t.Fatalf("expected ready event, got %q", ready.Type)
	}
	waitSubscribers(t, hub, 1)

	do(t, http.MethodPost, ts.URL+"/v1/scan/qr", `{"qrCode":"QR-FAKE","gateId":"gate_main"}`, nil)

	var evt broadcast.Event
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatalf("read alert: %v", err)
	}
	if evt.Type != broadcast.TypeViolationAlert {
		t.Errorf("expected %s, got %q", broadcast.TypeViolationAlert, evt.Type)
	}
	if evt.Data["type"] != "unauthorized_qr_scan" {
		t.Errorf("unexpected data: %v", evt.Data)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestAlertStream_Proto(t *testing.T) {
	ts, hub := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/v1/ws/alerts?format=proto"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	readStruct := func() *structpb.Struct {
		typ, b, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.MessageBinary {
			t.Fatalf("expected binary frame, got %v", typ)
		}
		var s structpb.Struct
		if err := proto.Unmarshal(b, &s); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return &s
	}

	if got := readStruct().Fields["type"].GetStringValue(); got != broadcast.TypeReady {
		t.Fatalf("expected ready, got %q", got)
	}
	waitSubscribers(t, hub, 1)

	do(t, http.MethodPost, ts.URL+"/v1/scan/qr", `{"qrCode":"QR-FAKE","gateId":"gate_main"}`, nil)

	if got := readStruct().Fields["type"].GetStringValue(); got != broadcast.TypeViolationAlert {
		t.Errorf("expected %s, got %q", broadcast.TypeViolationAlert, got)
	}
}

func TestAlertStream_RejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(ts, "/v1/ws/alerts"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	if err == nil {
		t.Fatal("expected dial to fail for a foreign origin")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}
