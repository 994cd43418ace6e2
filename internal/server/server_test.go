package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"curseward/internal/config"
	"curseward/internal/db"
	"curseward/internal/domain"
	"curseward/internal/engine"
	"curseward/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Auth   map[string]string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("tokyo-registry")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if err := e.Repo.UpsertConfig(context.Background(), cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testJWTSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Auth:   map[string]string{"Authorization": "Bearer " + signTestToken(t, "tester")},
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signTestToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func seedCurseHTTP(t *testing.T, srv *testServer) domain.Curse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/locations", map[string]any{
		"name": "Shibuya Station", "prefecture": "Tokyo",
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create location: %d %s", res.StatusCode, string(data))
	}
	var loc domain.Location
	_ = json.Unmarshal(data, &loc)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/curses", map[string]any{
		"name": "Finger Bearer", "grade": "special", "location_id": loc.ID,
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create curse: %d %s", res.StatusCode, string(data))
	}
	var curse domain.Curse
	_ = json.Unmarshal(data, &curse)
	return curse
}

func seedSorcererHTTP(t *testing.T, srv *testServer) domain.Sorcerer {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sorcerers", map[string]any{
		"name": "Megumi", "grade": "two",
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sorcerer: %d %s", res.StatusCode, string(data))
	}
	var s domain.Sorcerer
	_ = json.Unmarshal(data, &s)
	return s
}

func TestRequestAssignCascadeHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	curse := seedCurseHTTP(t, srv)
	sor := seedSorcererHTTP(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"curse_id": curse.ID,
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d %s", res.StatusCode, string(data))
	}
	var req domain.Request
	_ = json.Unmarshal(data, &req)

	res, data = doJSON(t, srv.Client(), http.MethodPatch, fmt.Sprintf("%s/v0/requests/%d", srv.URL, req.ID), map[string]any{
		"status":             "assigning",
		"assignedSorcererId": sor.ID,
		"urgency":            "urgent",
	}, srv.Auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	var outcome RequestTransitionOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if !outcome.Success || outcome.Generated == nil {
		t.Fatalf("expected success with generated ids: %s", string(data))
	}
	if outcome.Generated.MissionID == 0 || outcome.Generated.AssignmentID == 0 {
		t.Fatalf("generated ids missing: %+v", outcome.Generated)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v0/missions/%d", srv.URL, outcome.Generated.MissionID), nil, srv.Auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get mission: %d %s", res.StatusCode, string(data))
	}
	var m domain.Mission
	_ = json.Unmarshal(data, &m)
	if m.Status != "pending" || m.Urgency != "urgent" {
		t.Fatalf("unexpected mission %s/%s", m.Status, m.Urgency)
	}
}

func TestRequestTransitionFailureEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	curse := seedCurseHTTP(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"curse_id": curse.ID,
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d %s", res.StatusCode, string(data))
	}
	var req domain.Request
	_ = json.Unmarshal(data, &req)

	// pending -> closed is not a legal move; the body is the outcome shape
	res, data = doJSON(t, srv.Client(), http.MethodPatch, fmt.Sprintf("%s/v0/requests/%d", srv.URL, req.ID), map[string]any{
		"status": "closed",
	}, srv.Auth)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var outcome RequestTransitionOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if outcome.Success {
		t.Fatalf("expected success=false: %s", string(data))
	}
	if outcome.Message == "" {
		t.Fatalf("expected message: %s", string(data))
	}
}

func TestMissionCancelReopensRequestHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	curse := seedCurseHTTP(t, srv)
	sor := seedSorcererHTTP(t, srv)

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/requests", map[string]any{"curse_id": curse.ID}, srv.Auth)
	var req domain.Request
	_ = json.Unmarshal(data, &req)
	_, data = doJSON(t, srv.Client(), http.MethodPatch, fmt.Sprintf("%s/v0/requests/%d", srv.URL, req.ID), map[string]any{
		"status": "assigning", "assignedSorcererId": sor.ID, "urgency": "critical",
	}, srv.Auth)
	var assigned RequestTransitionOutcome
	_ = json.Unmarshal(data, &assigned)
	missionID := assigned.Generated.MissionID

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/locations", map[string]any{"name": "basement"}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create location: %d %s", res.StatusCode, string(data))
	}
	var loc domain.Location
	_ = json.Unmarshal(data, &loc)

	res, data = doJSON(t, srv.Client(), http.MethodPatch, fmt.Sprintf("%s/v0/missions/%d", srv.URL, missionID), map[string]any{
		"status":      "in_progress",
		"locationId":  loc.ID,
		"sorcererIds": []int64{sor.ID},
	}, srv.Auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start mission: %d %s", res.StatusCode, string(data))
	}
	var started MissionTransitionOutcome
	_ = json.Unmarshal(data, &started)
	if started.Generated == nil || len(started.Generated.MissionAssignmentIDs) != 1 {
		t.Fatalf("expected one assignment id: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, fmt.Sprintf("%s/v0/missions/%d", srv.URL, missionID), map[string]any{
		"status": "canceled",
	}, srv.Auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel mission: %d %s", res.StatusCode, string(data))
	}
	var canceled MissionTransitionOutcome
	_ = json.Unmarshal(data, &canceled)
	if !canceled.Success || canceled.Message == "" {
		t.Fatalf("unexpected outcome: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s/v0/requests/%d", srv.URL, req.ID), nil, srv.Auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get request: %d %s", res.StatusCode, string(data))
	}
	var got domain.Request
	_ = json.Unmarshal(data, &got)
	if got.Status != "pending" {
		t.Fatalf("expected request reopened, got %s", got.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", res.StatusCode)
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests/999", nil, srv.Auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found code, got %s", envelope.Error.Code)
	}
}

func TestTransferHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/locations", map[string]any{"name": "Jujutsu High", "prefecture": "Tokyo"}, srv.Auth)
	var from domain.Location
	_ = json.Unmarshal(data, &from)
	_, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/locations", map[string]any{"name": "Kyoto School", "prefecture": "Kyoto"}, srv.Auth)
	var to domain.Location
	_ = json.Unmarshal(data, &to)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/resources", map[string]any{
		"name": "sealing talisman", "kind": "talisman", "quantity": 5, "location_id": from.ID,
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create resource: %d %s", res.StatusCode, string(data))
	}
	var created domain.Resource
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/transfers", map[string]any{
		"resource_id": created.ID, "to_location_id": to.ID, "quantity": 2,
	}, srv.Auth)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create transfer: %d %s", res.StatusCode, string(data))
	}
	var tr domain.Transfer
	_ = json.Unmarshal(data, &tr)
	if tr.ToLocationID != to.ID {
		t.Fatalf("unexpected transfer: %+v", tr)
	}

	// over-stock transfer rejected
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/transfers", map[string]any{
		"resource_id": created.ID, "to_location_id": from.ID, "quantity": 99,
	}, srv.Auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for over-stock, got %d %s", res.StatusCode, string(data))
	}
}
