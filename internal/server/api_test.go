package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kelvas/openscale/internal/config"
	"github.com/kelvas/openscale/internal/provision"
	"github.com/kelvas/openscale/internal/scaler"
)

// setupAPI wires fresh package globals (DB, scaler, secrets) and returns
// both engines.
func setupAPI(t *testing.T) (ctrl, data *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "test.db")}
	if err := InitDB(cfg); err != nil {
		t.Fatalf("InitDB() = %v", err)
	}

	SetJWTSecret("test-secret")
	SetAgentToken("agent-key")
	SetAdminCredentials("admin", "admin")
	SetScaler(scaler.New(scaler.DefaultConfig(), provision.NewStatic()))

	ctrl = gin.New()
	RegisterControlRoutes(ctrl)
	data = gin.New()
	RegisterDataRoutes(data)
	return ctrl, data
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := GenerateJWT("admin")
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestLogin(t *testing.T) {
	ctrl, _ := setupAPI(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid credentials", body: `{"username":"admin","password":"admin"}`, wantStatus: http.StatusOK},
		{name: "wrong password", body: `{"username":"admin","password":"nope"}`, wantStatus: http.StatusUnauthorized},
		{name: "missing fields", body: `{"username":"admin"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			ctrl.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMetricsIngest(t *testing.T) {
	_, data := setupAPI(t)

	body := `{"hostname":"web-1","cpu_usage":55.5,"memory_usage":40,"disk_usage":50,
	          "network_io":120.5,"active_connections":87,"response_time":210}`
	req := httptest.NewRequest(http.MethodPost, "/api/metrics", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer agent-key")
	w := httptest.NewRecorder()
	data.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	if got := core.Status().MetricsCount; got != 1 {
		t.Errorf("scaler window size = %d, want 1", got)
	}

	samples, err := RecentSamples(10)
	if err != nil {
		t.Fatalf("RecentSamples() = %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("persisted samples = %d, want 1", len(samples))
	}
	if samples[0].Hostname != "web-1" || samples[0].Source != "agent" {
		t.Errorf("sample = %s/%s, want web-1/agent", samples[0].Hostname, samples[0].Source)
	}
	if samples[0].CPUUsage != 55.5 {
		t.Errorf("CPUUsage = %v, want 55.5", samples[0].CPUUsage)
	}
}

func TestMetricsIngestBadJSON(t *testing.T) {
	_, data := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/metrics", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer agent-key")
	w := httptest.NewRecorder()
	data.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ctrl, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	w := httptest.NewRecorder()
	ctrl.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Data scaler.Status `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.CurrentInstances != 2 {
		t.Errorf("CurrentInstances = %d, want 2 (MinInstances)", resp.Data.CurrentInstances)
	}
	if resp.Data.MaxInstances != 10 {
		t.Errorf("MaxInstances = %d, want 10", resp.Data.MaxInstances)
	}
}

func TestStatusRequiresJWT(t *testing.T) {
	ctrl, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	ctrl.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestScaleEndpointInsufficientData(t *testing.T) {
	ctrl, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scale", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	w := httptest.NewRecorder()
	ctrl.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Data CycleResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.Action != scaler.ActionNone {
		t.Errorf("action = %s, want %s with an empty window", resp.Data.Action, scaler.ActionNone)
	}
	if resp.Data.Applied {
		t.Error("Applied = true, want false")
	}
}

func TestDecisionEndpoint(t *testing.T) {
	ctrl, data := setupAPI(t)

	// Feed six hot samples through the ingest path, then dry-run a decision.
	body := `{"hostname":"web-1","cpu_usage":85,"memory_usage":60,"response_time":500}`
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/metrics", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer agent-key")
		w := httptest.NewRecorder()
		data.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("ingest %d: status = %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/decision", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	w := httptest.NewRecorder()
	ctrl.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Action     scaler.Action `json:"action"`
		Confidence float64       `json:"confidence"`
		Samples    int           `json:"samples"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Action != scaler.ActionScaleUp {
		t.Errorf("action = %s, want %s", resp.Action, scaler.ActionScaleUp)
	}
	if resp.Samples != 6 {
		t.Errorf("samples = %d, want 6", resp.Samples)
	}
	if resp.Confidence <= 0 {
		t.Errorf("confidence = %v, want > 0", resp.Confidence)
	}

	// A dry run must not change the instance counter.
	if got := core.CurrentInstances(); got != 2 {
		t.Errorf("CurrentInstances = %d after dry run, want 2", got)
	}
}

func TestEventsEndpointEmpty(t *testing.T) {
	ctrl, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	w := httptest.NewRecorder()
	ctrl.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
