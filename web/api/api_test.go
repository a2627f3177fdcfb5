package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"homenotes/app"
	"homenotes/auth"
	"homenotes/config"
	"homenotes/models"
	"homenotes/state"
	"homenotes/web"

	"github.com/rohanthewiz/rweb"
)

const testSecret = "test-secret-key-for-jwt-testing-32chars"

// testServer runs the full HTTP stack, middleware included, on a free port.
type testServer struct {
	baseURL string
	client  *http.Client
	app     *app.App
	token   string
}

func newTestServer(t *testing.T, secret string) (*testServer, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping HTTP integration test in short mode")
	}

	cfg := config.Default()
	cfg.Auth.Timeout = 20 * time.Millisecond
	cfg.Auth.JWTSecret = secret
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	a.Start(context.Background())

	readyChan := make(chan struct{}, 1)
	srv := web.NewServer(a, rweb.ServerOptions{
		Address:   "localhost:",
		ReadyChan: readyChan,
	})
	go func() {
		_ = web.Run(srv)
	}()
	<-readyChan

	ts := &testServer{
		baseURL: fmt.Sprintf("http://localhost:%s", srv.GetListenPort()),
		client:  &http.Client{Timeout: 5 * time.Second},
		app:     a,
	}
	return ts, func() { _ = a.Close() }
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.baseURL+path, rdr)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("failed to decode response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

func TestNotesLifecycle(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	status, env := ts.do(t, "POST", "/api/v1/notes", map[string]any{"title": "Groceries", "content": "milk"})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("create failed: %d %s", status, env.Error)
	}
	var created struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Locked bool   `json:"locked"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil || created.ID == "" {
		t.Fatalf("bad note payload: %s", env.Data)
	}

	status, _ = ts.do(t, "PUT", "/api/v1/notes/"+created.ID, map[string]any{"title": "Groceries", "content": "milk, eggs"})
	if status != http.StatusOK {
		t.Errorf("update returned %d", status)
	}

	status, _ = ts.do(t, "POST", "/api/v1/notes/"+created.ID+"/lock", map[string]any{"password": "pw"})
	if status != http.StatusOK {
		t.Errorf("lock returned %d", status)
	}
	status, _ = ts.do(t, "POST", "/api/v1/notes/"+created.ID+"/unlock", map[string]any{"password": "nope"})
	if status != http.StatusForbidden {
		t.Errorf("wrong password returned %d, want 403", status)
	}

	status, env = ts.do(t, "GET", "/api/v1/notes", nil)
	var list []map[string]any
	if err := json.Unmarshal(env.Data, &list); err != nil || status != http.StatusOK || len(list) != 1 {
		t.Fatalf("unexpected list: %d %s", status, env.Data)
	}
	if _, leaked := list[0]["password"]; leaked {
		t.Error("lock hash must not be served")
	}

	status, _ = ts.do(t, "DELETE", "/api/v1/notes/"+created.ID, nil)
	if status != http.StatusOK {
		t.Errorf("delete returned %d", status)
	}
	status, _ = ts.do(t, "GET", "/api/v1/notes/"+created.ID, nil)
	if status != http.StatusNotFound {
		t.Errorf("get after delete returned %d, want 404", status)
	}
}

func TestCategoryValidation(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	if status, _ := ts.do(t, "POST", "/api/v1/categories", map[string]any{"name": "Work"}); status != http.StatusCreated {
		t.Errorf("create returned %d", status)
	}
	if status, _ := ts.do(t, "POST", "/api/v1/categories", map[string]any{"name": "work"}); status != http.StatusConflict {
		t.Errorf("duplicate returned %d, want 409", status)
	}
	if status, _ := ts.do(t, "POST", "/api/v1/categories", map[string]any{"name": "  "}); status != http.StatusBadRequest {
		t.Errorf("empty name returned %d, want 400", status)
	}
	if status, _ := ts.do(t, "DELETE", "/api/v1/categories/"+models.AllCategoryID, nil); status != http.StatusBadRequest {
		t.Errorf("deleting All returned %d, want 400", status)
	}
}

func TestShoppingRoutes(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	if status, env := ts.do(t, "POST", "/api/v1/shopping/lists", map[string]any{"name": "hardware"}); status != http.StatusOK {
		t.Fatalf("add list returned %d %s", status, env.Error)
	}
	if status, _ := ts.do(t, "POST", "/api/v1/shopping/hardware/items", map[string]any{"text": "nails"}); status != http.StatusOK {
		t.Fatalf("add item returned %d", status)
	}
	status, env := ts.do(t, "POST", "/api/v1/shopping/hardware/items/0/toggle", nil)
	if status != http.StatusOK {
		t.Fatalf("toggle returned %d", status)
	}
	var lists models.ShoppingLists
	if err := json.Unmarshal(env.Data, &lists); err != nil || !lists["hardware"][0].Completed {
		t.Errorf("item not toggled: %s", env.Data)
	}
	if status, _ := ts.do(t, "POST", "/api/v1/shopping/hardware/items/7/toggle", nil); status != http.StatusNotFound {
		t.Errorf("missing item returned %d, want 404", status)
	}
}

func TestTokenGuard(t *testing.T) {
	ts, cleanup := newTestServer(t, testSecret)
	defer cleanup()

	if status, _ := ts.do(t, "GET", "/api/v1/notes", nil); status != http.StatusUnauthorized {
		t.Errorf("unauthenticated request returned %d, want 401", status)
	}

	issuer, err := auth.NewTokenIssuer(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	token, err := issuer.Issue(models.User{UID: "u1", Name: "Ann"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	status, env := ts.do(t, "POST", "/api/v1/session", map[string]any{"token": token})
	if status != http.StatusOK {
		t.Fatalf("sign-in returned %d %s", status, env.Error)
	}

	ts.token = token
	status, env = ts.do(t, "GET", "/api/v1/status", nil)
	var st app.Status
	if err := json.Unmarshal(env.Data, &st); err != nil || status != http.StatusOK {
		t.Fatalf("status returned %d %s", status, env.Data)
	}
	if st.User == nil || st.User.UID != "u1" {
		t.Errorf("expected signed-in user, got %+v", st.User)
	}
}

func TestStatusPage(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	resp, err := ts.client.Get(ts.baseURL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("homenotes")) {
		t.Errorf("unexpected status page: %d", resp.StatusCode)
	}
}

func TestEventsStreamBusEvents(t *testing.T) {
	ts, cleanup := newTestServer(t, "")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.baseURL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to open event stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	ts.app.Bus.Emit(state.EventNotesChanged, 7)

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"type":"notes-changed"`) {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no event delivered for a bus emit: %v", scanner.Err())
	}

	// A second event on the same connection arrives too.
	ts.app.Bus.Emit(state.EventCategoriesChanged, nil)
	found = false
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), `"type":"categories-changed"`) {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("later event not delivered")
	}
}
