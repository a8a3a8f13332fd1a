package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/engine"
	"fleetline/internal/evidence"
	"fleetline/internal/migrate"
)

type testServer struct {
	URL    string
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
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, evidence.NewSQLStore(conn), config.Default("fleet-1"))
	e.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
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
	req.Header.Set("X-Actor-Id", "tester")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func createTestMission(t *testing.T, srv *testServer) MissionResponse {
	t.Helper()
	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"title":       "Pre-departure safety rounds",
		"vessel":      "mv-aurora",
		"due_date":    "2026-03-10T00:00:00Z",
		"assigned_by": map[string]string{"id": "capt-1", "name": "A. Ramos", "role": "master"},
		"assigned_to": map[string]string{"id": "mate-1", "name": "B. Okafor", "role": "chief-mate"},
		"items": []map[string]any{
			{"id": "ack-1", "text": "confirm muster list", "kind": "acknowledge", "required": true},
			{"id": "photo-1", "text": "photo of lashings", "kind": "photo", "required": true},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create mission: status %d body %s", resp.StatusCode, body)
	}
	var m MissionResponse
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode mission: %v", err)
	}
	return m
}

func TestMissionLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	m := createTestMission(t, srv)
	if m.Status != "pending" || m.Progress != 0 {
		t.Fatalf("unexpected fresh mission: %+v", m)
	}

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/items/ack-1/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: status %d body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if m.Status != "in_progress" || m.Progress != 50 {
		t.Fatalf("after toggle: status=%s progress=%d", m.Status, m.Progress)
	}

	resp, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/items/photo-1/evidence", map[string]any{
		"name": "lashings.jpg",
		"mime": "image/jpeg",
		"data": base64.StdEncoding.EncodeToString([]byte("not really a jpeg")),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach: status %d body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if m.Progress != 100 || !m.CanComplete {
		t.Fatalf("after attach: progress=%d canComplete=%v", m.Progress, m.CanComplete)
	}

	resp, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/complete", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: status %d body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatal(err)
	}
	if m.Status != "completed" || m.CompletedAt == nil {
		t.Fatalf("after complete: %+v", m)
	}
}

func TestCompleteRejectedWithOutstandingCount(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	m := createTestMission(t, srv)
	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/complete", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "incomplete_required_items" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}
	if outstanding, _ := envelope.Error.Details["outstanding"].(float64); outstanding != 2 {
		t.Fatalf("outstanding = %v, want 2", envelope.Error.Details["outstanding"])
	}
}

func TestToggleEvidenceItemRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	m := createTestMission(t, srv)
	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/items/photo-1/toggle", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "invalid_operation" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}
}

func TestUpdateMissionPatchOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	m := createTestMission(t, srv)
	resp, body := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/missions/"+m.ID, map[string]any{
		"title":    "Pre-departure safety rounds (revised)",
		"priority": "high",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: status %d body %s", resp.StatusCode, body)
	}
	var updated MissionResponse
	if err := json.Unmarshal(body, &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Pre-departure safety rounds (revised)" || updated.Priority != "high" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Vessel != m.Vessel || updated.DueDate != m.DueDate {
		t.Fatalf("fields absent from the patch changed: %+v", updated)
	}
}

func TestListReportsCompletability(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	m := createTestMission(t, srv) // two incomplete required items
	resp, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d body %s", resp.StatusCode, body)
	}
	var page paginatedMissions
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(page.Items))
	}
	if page.Items[0].CanComplete {
		t.Fatal("mission with outstanding required items listed as completable")
	}

	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/items/ack-1/toggle", nil)
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions/"+m.ID+"/items/photo-1/evidence", map[string]any{
		"data": base64.StdEncoding.EncodeToString([]byte("pic")),
	})
	_, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions", nil)
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatal(err)
	}
	if !page.Items[0].CanComplete {
		t.Fatal("fully evidenced mission listed as not completable")
	}
}

func TestUnknownVesselIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	resp, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/missions", map[string]any{
		"title":       "Ghost run",
		"vessel":      "mv-ghost",
		"due_date":    "2026-03-10T00:00:00Z",
		"assigned_by": map[string]string{"id": "capt-1"},
		"assigned_to": map[string]string{"id": "mate-1"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("code = %s, want bad_request", envelope.Error.Code)
	}
}

func TestUnknownMissionIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	resp, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body %s", resp.StatusCode, body)
	}
}

func TestReportEndpointServesPDF(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	m := createTestMission(t, srv)
	resp, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/missions/"+m.ID+"/report", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %s", ct)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatal("report body is not a PDF")
	}
}

func TestFleetStatusEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	createTestMission(t, srv)
	resp, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/fleet/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, body)
	}
	var counts map[string]int
	if err := json.Unmarshal(body, &counts); err != nil {
		t.Fatal(err)
	}
	if counts["pending"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}
