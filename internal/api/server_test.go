package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncology-therapy-mcp-server/internal/domain"
	"github.com/oncology-therapy-mcp-server/internal/knowledgebase"
	"github.com/oncology-therapy-mcp-server/internal/metrics"
	"github.com/oncology-therapy-mcp-server/internal/service"
)

type staticConfig struct {
	cfg *domain.Config
}

func (s staticConfig) GetConfig() *domain.Config             { return s.cfg }
func (s staticConfig) GetServerConfig() *domain.ServerConfig { return &s.cfg.Server }
func (s staticConfig) GetLLMConfig() *domain.LLMConfig       { return &s.cfg.LLM }
func (s staticConfig) GetKnowledgeBaseConfig() *domain.KnowledgeBaseConfig {
	return &s.cfg.KnowledgeBase
}
func (s staticConfig) Validate() error { return nil }

func testConfig() *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{Port: 8080, Mode: "test", RequestTimeout: 5 * time.Second},
		MCP:    domain.MCPConfig{ServerVersion: "1.2.3"},
	}
}

func newTestServer(t *testing.T, cfg *domain.Config, opts ...Option) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := knowledgebase.NewStore(knowledgebase.NewEmbeddedSource(), 4, knowledgebase.WithLogger(logger))
	require.NoError(t, err)
	m := metrics.New()
	composer := service.NewNarrativeComposer(service.DefaultNarrativeSettings(), logger, m.ObserveNarrative)
	recommender := service.NewRecommender(store, composer, nil, logger,
		service.WithOutcomeObserver(m.ObserveRecommendation))

	return NewServer(staticConfig{cfg: cfg}, recommender, m, logger, opts...)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	server := newTestServer(t, testConfig())

	w := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
	assert.Equal(t, "unconfigured", body["narrative"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestServer_HealthChecks(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	failing := func(context.Context) error { return errors.New("connection refused") }

	server := newTestServer(t, testConfig(), WithHealthCheck("database", healthy))
	w := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"database":"ok"}`, string(mustField(t, w.Body.Bytes(), "checks")))

	server = newTestServer(t, testConfig(), WithHealthCheck("database", failing))
	w = doJSON(t, server.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `"degraded"`, string(mustField(t, w.Body.Bytes(), "status")))
	assert.JSONEq(t, `{"database":"unavailable"}`, string(mustField(t, w.Body.Bytes(), "checks")))
}

func mustField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &fields))
	raw, ok := fields[field]
	require.True(t, ok, "missing field %s", field)
	return raw
}

func TestServer_Recommend(t *testing.T) {
	server := newTestServer(t, testConfig())

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/recommendations", map[string]any{
		"cancer_type": "lung_cancer",
		"tier":        3,
		"profile": map[string]any{
			"subtype_key": "LUAD KRAS-mutated",
			"mutations":   []string{"KRAS:G12C"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec struct {
		RequestID       string `json:"request_id"`
		NarrativeSource string `json:"narrative_source"`
		Narrative       string `json:"narrative"`
		Match           struct {
			Subtype    string `json:"subtype"`
			Tier       int    `json:"tier"`
			TierSource string `json:"tier_source"`
			Biomarkers []struct {
				ID string `json:"id"`
			} `json:"biomarkers"`
		} `json:"match"`
		Considerations []string `json:"considerations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))

	assert.Equal(t, w.Header().Get("X-Correlation-ID"), rec.RequestID)
	assert.Equal(t, "LUAD KRAS-mutated", rec.Match.Subtype)
	assert.Equal(t, 3, rec.Match.Tier)
	assert.Equal(t, "explicit", rec.Match.TierSource)
	require.Len(t, rec.Match.Biomarkers, 1)
	assert.Equal(t, "KRAS_G12C_mutation", rec.Match.Biomarkers[0].ID)
	assert.Equal(t, "unavailable", rec.NarrativeSource)
	assert.Equal(t, service.FallbackNarrative, rec.Narrative)
	assert.Contains(t, rec.Considerations, "Test for G12C mutation specifically, as it's targetable")

	metricsResp := doJSON(t, server.Handler(), http.MethodGet, "/metrics", nil)
	assert.Contains(t, metricsResp.Body.String(), `oncology_recommendations_total{cancer_type="lung_cancer",outcome="success"} 1`)
	assert.Contains(t, metricsResp.Body.String(), `oncology_narratives_total{source="unavailable"} 1`)
}

func TestServer_RecommendUnresolved(t *testing.T) {
	server := newTestServer(t, testConfig())

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/recommendations", map[string]any{
		"profile": map[string]any{
			"cancer_type": "lung_cancer",
			"subtype_key": "LUAD ROS1-rearranged",
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	match := body["match"].(map[string]any)
	assert.Equal(t, "unresolved", match["tier"])
	assert.NotContains(t, match, "tier_info")
}

func TestServer_RecommendErrors(t *testing.T) {
	server := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{
			name:       "missing profile",
			body:       map[string]any{"cancer_type": "breast_cancer"},
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.ErrCodeInvalidInput,
		},
		{
			name:       "unsupported cancer type",
			body:       map[string]any{"cancer_type": "colon_cancer", "profile": map[string]any{"subtype_key": "CMS1"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.ErrCodeInvalidProfile,
			wantField:  "cancer_type",
		},
		{
			name:       "missing subtype",
			body:       map[string]any{"cancer_type": "breast_cancer", "profile": map[string]any{}},
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.ErrCodeInvalidProfile,
			wantField:  "subtype_key",
		},
		{
			name:       "tier out of range",
			body:       map[string]any{"cancer_type": "breast_cancer", "tier": 0, "profile": map[string]any{"subtype_key": "Triple Negative"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.ErrCodeInvalidProfile,
			wantField:  "tier",
		},
		{
			name:       "unknown subtype",
			body:       map[string]any{"cancer_type": "breast_cancer", "profile": map[string]any{"subtype_key": "Claudin-low"}},
			wantStatus: http.StatusNotFound,
			wantCode:   domain.ErrCodeUnknownSubtype,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/recommendations", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			var apiErr domain.APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantField, apiErr.Field)
			assert.Equal(t, w.Header().Get("X-Correlation-ID"), apiErr.RequestID)
		})
	}
}

func TestServer_ListSubtypes(t *testing.T) {
	server := newTestServer(t, testConfig())

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/v1/knowledge-bases/breast_cancer/subtypes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		CancerType string                   `json:"cancer_type"`
		Subtypes   []service.SubtypeSummary `json:"subtypes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "breast_cancer", body.CancerType)
	require.Len(t, body.Subtypes, 4)
	assert.Equal(t, "HER2 Enriched", body.Subtypes[0].Name)

	missing := doJSON(t, server.Handler(), http.MethodGet, "/api/v1/knowledge-bases/colon_cancer/subtypes", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	server := newTestServer(t, cfg)

	path := "/api/v1/knowledge-bases/lung_cancer/subtypes"
	assert.Equal(t, http.StatusOK, doJSON(t, server.Handler(), http.MethodGet, path, nil).Code)
	limited := doJSON(t, server.Handler(), http.MethodGet, path, nil)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), domain.ErrCodeRateLimit)
	assert.Equal(t, http.StatusOK, doJSON(t, server.Handler(), http.MethodGet, "/health", nil).Code)
}

func TestServer_StartStops(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	server := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RecommendWithAdvice(t *testing.T) {
	server := newTestServer(t, testConfig())

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/recommendations", map[string]any{
		"cancer_type": "breast_cancer",
		"tier":        1,
		"advise":      true,
		"profile": map[string]any{
			"subtype_key":     "Luminal A/B",
			"high_expression": []string{"ESR1"},
			"amplifications":  []string{"ERBB2"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec struct {
		Match struct {
			Tier   int `json:"tier"`
			Advice struct {
				SuggestedSubtype string   `json:"suggested_subtype"`
				SuggestedTier    int      `json:"suggested_tier"`
				Factors          []string `json:"factors"`
			} `json:"advice"`
		} `json:"match"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))

	assert.Equal(t, 1, rec.Match.Tier)
	assert.Equal(t, "Luminal HER2+", rec.Match.Advice.SuggestedSubtype)
	assert.Equal(t, 2, rec.Match.Advice.SuggestedTier)
	assert.Equal(t, []string{"Luminal A/B subtype (-0.5)"}, rec.Match.Advice.Factors)
}
