package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/loadtest-dash/internal/api"
)

// mockChecker returns queued results in order, then repeats the last one.
type mockChecker struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (m *mockChecker) Health(ctx context.Context) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	m.calls++
	if err := m.results[i]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"ok"}`), nil
}

func TestPoller_CheckTracksFailures(t *testing.T) {
	errDown := errors.New("connection refused")
	checker := &mockChecker{results: []error{nil, errDown, errDown, nil}}

	p := New(Config{Interval: time.Hour, Timeout: time.Second}, checker, nil, nil)
	ctx := context.Background()

	s := p.check(ctx)
	if !s.Up || !s.Checked {
		t.Fatalf("first check: Up=%v Checked=%v, want true/true", s.Up, s.Checked)
	}
	if string(s.LastBody) != `{"status":"ok"}` {
		t.Errorf("LastBody = %s", s.LastBody)
	}

	p.check(ctx)
	s = p.check(ctx)
	if s.Up {
		t.Error("Up = true after failures")
	}
	if s.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", s.ConsecutiveFailures)
	}
	if s.LastError != "connection refused" {
		t.Errorf("LastError = %q", s.LastError)
	}

	s = p.check(ctx)
	if !s.Up || s.ConsecutiveFailures != 0 || s.LastError != "" {
		t.Errorf("after recovery: %+v", s)
	}
	if s.Checks != 4 || s.Failures != 2 {
		t.Errorf("Checks = %d, Failures = %d, want 4, 2", s.Checks, s.Failures)
	}
	if got := p.Status(); got.Checks != s.Checks || got.Up != s.Up {
		t.Errorf("Status() = %+v, want last check %+v", got, s)
	}
}

func TestPoller_CancelledCheckNotCounted(t *testing.T) {
	checker := &mockChecker{results: []error{context.Canceled}}
	p := New(DefaultConfig(), checker, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := p.check(ctx)
	if s.Checked || s.Checks != 0 {
		t.Errorf("cancelled check recorded: %+v", s)
	}
}

func TestPoller_StartStop(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s, want /api/health", r.URL.Path)
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithTimeout(5*time.Second))

	statuses := make(chan Status, 16)
	handler := StatusHandlerFunc(func(s Status) {
		select {
		case statuses <- s:
		default:
		}
	})

	p := New(Config{Interval: 10 * time.Millisecond, Timeout: time.Second}, client, handler, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case s := <-statuses:
		if !s.Up {
			t.Errorf("status = %+v, want up", s)
		}
	case <-ctx.Done():
		t.Fatal("no status delivered")
	}

	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if hits.Load() == 0 {
		t.Error("backend was never polled")
	}
}

func TestPoller_BackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, api.WithRetries(0, time.Millisecond))
	p := New(DefaultConfig(), client, nil, nil)

	s := p.check(context.Background())
	if s.Up {
		t.Error("Up = true for a 400 response")
	}
	if s.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", s.ConsecutiveFailures)
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, &mockChecker{results: []error{nil}}, nil, nil)
	if p.cfg != DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", p.cfg)
	}
}
