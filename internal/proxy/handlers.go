package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/loadtest-dash/internal/api"
	"github.com/rickgao/loadtest-dash/internal/model"
)

// backendTimeout bounds a single proxied call.
const backendTimeout = 30 * time.Second

// runEndpoint describes one test-start endpoint.
type runEndpoint struct {
	testType model.TestType
	started  string
	failed   string
	start    func(ctx context.Context, body rawConfig) (*model.TestResult, error)
}

func (s *Server) handleLoadTest(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, r, runEndpoint{
		testType: model.TestTypeLoad,
		started:  "Load test started successfully",
		failed:   "Failed to start load test",
		start: func(ctx context.Context, body rawConfig) (*model.TestResult, error) {
			return s.backend.StartLoadTest(ctx, normalizeLoad(body))
		},
	})
}

func (s *Server) handleStressTest(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, r, runEndpoint{
		testType: model.TestTypeStress,
		started:  "Stress test started successfully",
		failed:   "Failed to start stress test",
		start: func(ctx context.Context, body rawConfig) (*model.TestResult, error) {
			return s.backend.StartStressTest(ctx, normalizeStress(body))
		},
	})
}

func (s *Server) handleAPITest(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, r, runEndpoint{
		testType: model.TestTypeAPI,
		started:  "API test started successfully",
		failed:   "Failed to start API test",
		start: func(ctx context.Context, body rawConfig) (*model.TestResult, error) {
			return s.backend.StartAPITest(ctx, normalizeAPI(body))
		},
	})
}

// startRun decodes the body, forwards it and writes the envelope.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request, ep runEndpoint) {
	var body rawConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("invalid request body", "error", err, "test_type", ep.testType)
		writeJSON(w, http.StatusBadRequest, model.APIResponse[model.TestResult]{
			Success: false,
			Message: "Invalid request body",
			Data:    s.errorResult(ep.testType, err.Error()),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), backendTimeout)
	defer cancel()

	result, err := ep.start(ctx, body)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			s.logger.Error("backend error",
				"status", apiErr.StatusCode,
				"body", string(apiErr.Body),
				"test_type", ep.testType,
			)
			writeJSON(w, apiErr.StatusCode, model.APIResponse[model.TestResult]{
				Success: false,
				Message: "Backend error",
				Data:    s.errorResult(ep.testType, string(apiErr.Body)),
			})
			return
		}

		s.logger.Error("start run failed", "error", err, "test_type", ep.testType)
		writeJSON(w, http.StatusInternalServerError, model.APIResponse[model.TestResult]{
			Success: false,
			Message: ep.failed,
			Data:    s.errorResult(ep.testType, err.Error()),
		})
		return
	}

	s.logger.Info("run started", "id", result.ID, "test_type", ep.testType)
	writeJSON(w, http.StatusOK, model.APIResponse[model.TestResult]{
		Success: true,
		Message: ep.started,
		Data:    result,
	})
}

func (s *Server) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), backendTimeout)
	defer cancel()

	body, err := s.backend.Health(ctx)
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to check health status",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

// healthzResponse is the dashboard's own health report.
type healthzResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version,omitempty"`
	Transport *transportState `json:"transport,omitempty"`
}

type transportState struct {
	State             string `json:"state"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	QueueLen          int    `json:"queue_len"`
	QueueEvicted      int64  `json:"queue_evicted"`
	FramesReceived    int64  `json:"frames_received"`
	FramesDropped     int64  `json:"frames_dropped"`
}

// handleHealthz reports "healthy" while the transport is open and
// "degraded" otherwise. The dashboard itself is serving either way.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthzResponse{Status: "healthy", Version: s.version}

	if s.transport != nil {
		st := s.transport.Stats()
		resp.Transport = &transportState{
			State:             st.State.String(),
			ReconnectAttempts: st.ReconnectAttempts,
			QueueLen:          st.QueueLen,
			QueueEvicted:      st.QueueEvicted,
			FramesReceived:    st.FramesReceived,
			FramesDropped:     st.FramesDropped,
		}
		if !st.State.Open() {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// errorResult builds the TestResult returned alongside failures.
func (s *Server) errorResult(t model.TestType, msg string) *model.TestResult {
	return &model.TestResult{
		ID:        uuid.NewString(),
		TestType:  t,
		Status:    model.StatusError,
		Error:     msg,
		Timestamp: s.now().UnixMilli(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck
	}
}
