package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"livewatcher.com/recorder"
)

type fakeRecorder struct {
	mu       sync.Mutex
	started  []recorder.StartRequest
	live     map[string]bool
	startErr error
}

func (f *fakeRecorder) Start(req recorder.StartRequest) (recorder.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Name == "" || req.URL == "" {
		return recorder.TaskInfo{}, recorder.ErrMissingParams
	}
	if f.startErr != nil {
		return recorder.TaskInfo{}, f.startErr
	}
	if f.live[req.Name] {
		return recorder.TaskInfo{}, fmt.Errorf("%w: %s", recorder.ErrAlreadyRecording, req.Name)
	}
	f.started = append(f.started, req)
	f.live[req.Name] = true
	return recorder.TaskInfo{Name: req.Name, PID: 100, LogFile: "debug/x.log", Alive: true}, nil
}

func (f *fakeRecorder) Stop(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alive, ok := f.live[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", recorder.ErrTaskNotFound, name)
	}
	f.live[name] = false
	return alive, nil
}

func (f *fakeRecorder) Status() []recorder.TaskInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recorder.TaskInfo
	for name, alive := range f.live {
		if alive {
			out = append(out, recorder.TaskInfo{Name: name, Alive: true})
		}
	}
	return out
}

func newTestServer(t *testing.T, publicDir string) (*httptest.Server, *fakeRecorder) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	rec := &fakeRecorder{live: map[string]bool{}}
	ts := httptest.NewServer(New(rec, publicDir, log).Routes())
	t.Cleanup(ts.Close)
	return ts, rec
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode error = %v", err)
	}
}

func TestPing(t *testing.T) {
	ts, _ := newTestServer(t, t.TempDir())
	resp, err := http.Get(ts.URL + "/api/ping")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	decode(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["time"] == "" {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestRequestsAreLoggedThroughLogrus(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	ts := httptest.NewServer(New(&fakeRecorder{live: map[string]bool{}}, t.TempDir(), log).Routes())

	resp, err := http.Get(ts.URL + "/api/ping")
	if err != nil {
		ts.Close()
		t.Fatalf("GET /api/ping error = %v", err)
	}
	resp.Body.Close()
	ts.Close()

	out := buf.String()
	for _, want := range []string{"path=/api/ping", "method=GET", "status=200", "request served"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q does not contain %q", out, want)
		}
	}
}

func TestRecordStart(t *testing.T) {
	ts, rec := newTestServer(t, t.TempDir())
	tests := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"name":"a","url":"https://cdn.example.com/a.flv","durationSec":60}`, http.StatusOK},
		{"duplicate", `{"name":"a","url":"https://cdn.example.com/a.flv"}`, http.StatusConflict},
		{"missing url", `{"name":"b"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/api/record/start", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.started) != 1 || rec.started[0].DurationSec != 60 {
		t.Fatalf("started = %+v", rec.started)
	}
}

func TestRecordStartFailure(t *testing.T) {
	ts, rec := newTestServer(t, t.TempDir())
	rec.startErr = fmt.Errorf("exec: \"ffmpeg\": executable file not found")
	resp := post(t, ts.URL+"/api/record/start", `{"name":"a","url":"u"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestRecordStop(t *testing.T) {
	ts, _ := newTestServer(t, t.TempDir())
	post(t, ts.URL+"/api/record/start", `{"name":"a","url":"u"}`)

	tests := []struct {
		name    string
		body    string
		want    int
		message string
	}{
		{"live", `{"name":"a"}`, http.StatusOK, "stopped recording a"},
		{"already stopped", `{"name":"a"}`, http.StatusOK, "already stopped"},
		{"unknown", `{"name":"zzz"}`, http.StatusNotFound, ""},
		{"missing name", `{}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+"/api/record/stop", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.message == "" {
				return
			}
			var body map[string]any
			decode(t, resp, &body)
			if msg, _ := body["message"].(string); !strings.Contains(msg, tt.message) {
				t.Fatalf("message = %q, want %q", msg, tt.message)
			}
		})
	}
}

func TestRecordStatus(t *testing.T) {
	ts, _ := newTestServer(t, t.TempDir())

	resp, err := http.Get(ts.URL + "/api/record/status")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"tasks":[]`) {
		t.Fatalf("body = %s", raw)
	}

	post(t, ts.URL+"/api/record/start", `{"name":"a","url":"u"}`)
	resp2, err := http.Get(ts.URL + "/api/record/status")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp2.Body.Close()
	var body struct {
		Tasks []recorder.TaskInfo `json:"tasks"`
	}
	decode(t, resp2, &body)
	if len(body.Tasks) != 1 || body.Tasks[0].Name != "a" {
		t.Fatalf("tasks = %+v", body.Tasks)
	}
}

func TestProductInboxKeepsMostRecent(t *testing.T) {
	ts, _ := newTestServer(t, t.TempDir())

	for i := 0; i < InboxSize+5; i++ {
		resp := post(t, ts.URL+"/api/product/new", fmt.Sprintf(`{"n":%d}`, i))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	}
	if resp := post(t, ts.URL+"/api/product/new", `nope`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid json status = %d, want 400", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/product/recent")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Products []struct {
			N int `json:"n"`
		} `json:"products"`
	}
	decode(t, resp, &body)
	if len(body.Products) != InboxSize {
		t.Fatalf("len(products) = %d, want %d", len(body.Products), InboxSize)
	}
	if body.Products[0].N != InboxSize+4 || body.Products[InboxSize-1].N != 5 {
		t.Fatalf("order = first %d last %d", body.Products[0].N, body.Products[InboxSize-1].N)
	}
}

func TestIndex(t *testing.T) {
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	ts, _ := newTestServer(t, t.TempDir())
	resp, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status without page = %d, want 200", resp.StatusCode)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "live-manager.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts2, _ := newTestServer(t, dir)
	resp, err = client.Get(ts2.URL + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/live-manager.html" {
		t.Fatalf("status = %d, location = %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, err = client.Get(ts2.URL + "/live-manager.html")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("static status = %d, want 200", resp.StatusCode)
	}
}
