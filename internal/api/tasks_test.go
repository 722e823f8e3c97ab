package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seantiz/taskengine/internal/engine"
	"github.com/seantiz/taskengine/internal/executor"
	"github.com/seantiz/taskengine/internal/model"
	"github.com/seantiz/taskengine/internal/store"
)

func TestSubmitTaskCompletes(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := submitTask(t, ts.URL, "resize-image")
	if id == uuid.Nil {
		t.Fatal("expected a non-nil task id")
	}

	task := waitForStatus(t, ts.URL, id)
	if task.Status.Kind != model.KindCompleted {
		t.Errorf("status = %q, want %q", task.Status.Kind, model.KindCompleted)
	}
	if task.Name != "resize-image" {
		t.Errorf("name = %q, want %q", task.Name, "resize-image")
	}
	if task.Priority != 1 {
		t.Errorf("priority = %d, want 1", task.Priority)
	}
	if task.StartedAt.IsZero() || task.FinishedAt.IsZero() {
		t.Error("finished task should carry start and finish times")
	}
}

func TestSubmitTaskPendingBeforeRun(t *testing.T) {
	srv, _ := newTestServerWith(t, testOptions{noRun: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := submitTask(t, ts.URL, "waiting")

	task, code := getTask(t, ts.URL, id)
	if code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", code)
	}
	if task.Status != model.Pending() {
		t.Errorf("status = %v, want pending", task.Status)
	}
}

func TestSubmitTaskFailedExecutor(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	id := submitTask(t, ts.URL, "fail")
	task := waitForStatus(t, ts.URL, id)

	if task.Status.Kind != model.KindFailed {
		t.Fatalf("status = %q, want %q", task.Status.Kind, model.KindFailed)
	}
	if task.Status.Reason != "told to fail" {
		t.Errorf("reason = %q, want %q", task.Status.Reason, "told to fail")
	}
}

func TestSubmitTaskValidation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"missing name", `{"priority":1}`},
		{"missing priority", `{"name":"a"}`},
		{"name too long", `{"name":"` + strings.Repeat("x", 257) + `","priority":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/tasks", tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var errResp map[string]string
			json.NewDecoder(resp.Body).Decode(&errResp)
			if errResp["error"] == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestSubmitTaskNegativePriority(t *testing.T) {
	srv, _ := newTestServerWith(t, testOptions{noRun: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/tasks", `{"name":"low","priority":-5}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body submitTaskResponse
	json.NewDecoder(resp.Body).Decode(&body)

	task, _ := getTask(t, ts.URL, body.ID)
	if task.Priority != -5 {
		t.Errorf("priority = %d, want -5", task.Priority)
	}
}

func TestSubmitTaskQueueFull(t *testing.T) {
	srv, eng := newTestServerWith(t, testOptions{
		api:    Config{SubmitTimeout: 20 * time.Millisecond},
		engine: engine.Config{QueueSize: 1, Workers: 1},
		noRun:  true,
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	submitTask(t, ts.URL, "fills-queue")

	resp := postJSON(t, ts.URL+"/v1/tasks", `{"name":"overflow","priority":0}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if n := len(eng.Tasks(store.Filter{})); n != 1 {
		t.Errorf("tasks known to engine = %d, want 1", n)
	}
}

func TestSubmitTaskAfterClose(t *testing.T) {
	srv, eng := newTestServerWith(t, testOptions{noRun: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	eng.Close()

	resp := postJSON(t, ts.URL+"/v1/tasks", `{"name":"late","priority":0}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		resp, err := http.Get(ts.URL + "/v1/tasks/" + id)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", id, resp.StatusCode)
		}
	}
}

func TestBatchSubmit(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/tasks/batch",
		`[{"name":"x","priority":1},{"name":"y","priority":2},{"name":"z","priority":3}]`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body batchSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.BatchID) != 26 {
		t.Errorf("batch_id = %q, want a 26-char ULID", body.BatchID)
	}
	if len(body.IDs) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(body.IDs))
	}

	for i, want := range []string{"x", "y", "z"} {
		task := waitForStatus(t, ts.URL, body.IDs[i])
		if task.Name != want {
			t.Errorf("ids[%d] name = %q, want %q", i, task.Name, want)
		}
		if task.BatchID != body.BatchID {
			t.Errorf("ids[%d] batch_id = %q, want %q", i, task.BatchID, body.BatchID)
		}
	}
}

func TestBatchSubmitValidation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, body := range []string{`[]`, `{"name":"x"}`, `[{"name":"x","priority":1},{"priority":2}]`} {
		resp := postJSON(t, ts.URL+"/v1/tasks/batch", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestBatchSubmitPartialFailure(t *testing.T) {
	srv, _ := newTestServerWith(t, testOptions{
		api:    Config{SubmitTimeout: 20 * time.Millisecond},
		engine: engine.Config{QueueSize: 2, Workers: 1},
		noRun:  true,
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/tasks/batch",
		`[{"name":"a","priority":0},{"name":"b","priority":0},{"name":"c","priority":0}]`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var body batchSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.IDs) != 2 {
		t.Errorf("len(ids) = %d, want 2", len(body.IDs))
	}
	if body.Error == "" {
		t.Error("expected error message in response")
	}
	for _, id := range body.IDs {
		if _, code := getTask(t, ts.URL, id); code != http.StatusOK {
			t.Errorf("submitted task %s: status code = %d, want 200", id, code)
		}
	}
}

func TestListTasksFilters(t *testing.T) {
	srv, eng := newTestServerWith(t, testOptions{noRun: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	submitTask(t, ts.URL, "solo")
	batch, err := eng.BatchSubmit(context.Background(), []engine.Request{{Name: "b1"}, {Name: "b2"}})
	if err != nil {
		t.Fatalf("BatchSubmit: %v", err)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?status=pending", 3},
		{"?status=completed", 0},
		{"?batch_id=" + batch.ID, 2},
	}

	for _, tt := range tests {
		resp, err := http.Get(ts.URL + "/v1/tasks" + tt.query)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		var body listTasksResponse
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if body.Total != tt.want || len(body.Tasks) != tt.want {
			t.Errorf("query %q: total = %d, len = %d, want %d", tt.query, body.Total, len(body.Tasks), tt.want)
		}
	}

	resp, err := http.Get(ts.URL + "/v1/tasks?status=running")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown status filter: status = %d, want 400", resp.StatusCode)
	}
}

func TestListExecutors(t *testing.T) {
	srv, _ := newTestServerWith(t, testOptions{
		noRun:    true,
		executor: map[string]executor.Executor{"noop": executor.Func(func(context.Context, model.Task) error { return nil })},
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/executors")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body executorsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(body.Executors, ",") != "fail,noop" {
		t.Errorf("executors = %v, want [fail noop]", body.Executors)
	}
}

func signToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "load-tester",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestTaskRoutesRequireToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	srv, _ := newTestServerWith(t, testOptions{api: Config{JWTSecret: secret}, noRun: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "another-secret-another-secret-xx", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, secret, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, secret, time.Now().Add(time.Hour)), http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/tasks", strings.NewReader(`{"name":"auth","priority":0}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	// Read-only routes outside /v1/tasks stay open.
	resp, err := http.Get(ts.URL + "/v1/executors")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/v1/executors status = %d, want 200", resp.StatusCode)
	}
}
