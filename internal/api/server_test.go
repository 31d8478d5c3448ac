package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadrant-labs/assess/internal/assessment"
	"github.com/quadrant-labs/assess/internal/identity"
	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/notify"
	"github.com/quadrant-labs/assess/internal/resilience"
	"github.com/quadrant-labs/assess/internal/store"
	"github.com/quadrant-labs/assess/internal/unlock"
)

const testWebhookSecret = "test-webhook-secret"

type testEnv struct {
	handler http.Handler
	mem     *store.MemoryStore
	gateway *store.Gateway
	unlocks *unlock.Service
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	gateway := store.NewGateway(mem,
		resilience.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, OnRetry: func(int, error) {}},
		resilience.CircuitConfig{FailureThreshold: 5, Cooldown: time.Minute},
	)

	unlocks := unlock.New(gateway, unlock.SandboxProvider{}, notify.Nop{}, "EUR")
	opts := Options{
		Assessments:   assessment.New(gateway, notify.Nop{}),
		Unlocks:       unlocks,
		Identities:    identity.New(gateway),
		Gateway:       gateway,
		WebhookSecret: testWebhookSecret,
	}
	if mutate != nil {
		mutate(&opts)
	}
	_, handler := New(opts)
	return &testEnv{handler: handler, mem: mem, gateway: gateway, unlocks: unlocks}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func submitBody() map[string]any {
	answers := make([]map[string]string, 0, model.QuestionCount)
	for _, id := range model.QuestionIDs() {
		answers = append(answers, map[string]string{
			"question_id":   id,
			"most_like_me":  "A",
			"least_like_me": "B",
		})
	}
	return map[string]any{
		"guest":   map[string]string{"name": "Jamie", "email": "jamie@example.com"},
		"answers": answers,
	}
}

func (e *testEnv) submit(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/assessments", submitBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ResultID string `json:"result_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ResultID)
	return resp.ResultID
}

func (e *testEnv) createIntent(t *testing.T, resultID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/results/"+resultID+"/unlock", map[string]any{"amount_minor": 990}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var info unlock.IntentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.NotEmpty(t, info.IntentRef)
	return info.IntentRef
}

func TestSubmitAssessment(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/assessments", submitBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.FactorD, resp.Profile)
	assert.Equal(t, model.ScoreVector{D: 50, I: 50}, resp.ScoreVector)
	assert.False(t, resp.IsPremium)
	assert.Equal(t, "Jamie", resp.OwnerDisplayName)
}

func TestSubmitAssessment_ValidationError(t *testing.T) {
	env := newTestEnv(t, nil)

	body := submitBody()
	body["answers"] = body["answers"].([]map[string]string)[:5]
	rec := env.do(t, http.MethodPost, "/api/assessments", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAssessment_MalformedJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/assessments", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetResult(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.submit(t)

	rec := env.do(t, http.MethodGet, "/api/results/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ResultID)
}

func TestGetResult_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/results/nonexistent-id", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnlockFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.submit(t)
	ref := env.createIntent(t, id)

	rec := env.do(t, http.MethodPost, "/api/results/"+id+"/confirm", map[string]string{"payment_reference": ref}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp confirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsPremium)

	// The same confirmation replayed is still a success.
	rec = env.do(t, http.MethodPost, "/api/results/"+id+"/confirm", map[string]string{"payment_reference": ref}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfirm_UnrecognizedReference(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.submit(t)
	env.createIntent(t, id)

	rec := env.do(t, http.MethodPost, "/api/results/"+id+"/confirm", map[string]string{"payment_reference": "sandbox_fabricated"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	got, err := env.mem.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, got.IsPremium)
}

func TestConfirm_MissingReference(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.submit(t)

	rec := env.do(t, http.MethodPost, "/api/results/"+id+"/confirm", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateIntent_InvalidAmount(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.submit(t)

	rec := env.do(t, http.MethodPost, "/api/results/"+id+"/unlock", map[string]any{"amount_minor": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmFallback_DisabledByDefault(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.submit(t)

	rec := env.do(t, http.MethodPost, "/api/results/"+id+"/confirm-fallback", map[string]any{"amount_minor": 990}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	got, err := env.mem.GetResult(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, got.IsPremium)
}

func TestConfirmFallback_Enabled(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.AllowFallback = true })
	id := env.submit(t)

	rec := env.do(t, http.MethodPost, "/api/results/"+id+"/confirm-fallback", map[string]any{"amount_minor": 990}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp confirmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsPremium)
}

func TestLinkResults(t *testing.T) {
	env := newTestEnv(t, nil)
	env.submit(t)
	env.submit(t)

	actor := &model.Actor{ID: "actor-1", Email: "jamie@example.com", DisplayName: "Jamie", CreatedAt: time.Now().UTC()}
	require.NoError(t, env.mem.CreateActor(context.Background(), actor))

	rec := env.do(t, http.MethodPost, "/api/actors/actor-1/link-results", map[string]string{"email": "jamie@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp linkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.LinkedCount)
}

func TestLinkResults_UnknownActor(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/actors/nonexistent-id/link-results", map[string]string{"email": "jamie@example.com"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "closed", resp["circuit"])
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Limiter = NewClientLimiter(60, 3) })

	var limited bool
	for i := 0; i < 10; i++ {
		rec := env.do(t, http.MethodGet, "/health", nil, nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst exhaustion should produce 429")
}

func TestRateLimit_PerClient(t *testing.T) {
	limiter := NewClientLimiter(60, 2)

	for i := 0; i < 2; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "a different client has its own bucket")
	assert.Equal(t, 2, limiter.Len())
}

func TestRateLimit_PruneDropsIdleClients(t *testing.T) {
	limiter := NewClientLimiter(60, 2)
	limiter.Allow("10.0.0.1")
	limiter.Allow("10.0.0.2")
	require.Equal(t, 2, limiter.Len())

	limiter.idleMax = 0
	time.Sleep(time.Millisecond)
	removed := limiter.Prune()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, limiter.Len())
}

func TestRoutesReject404(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/unknown", "/results/abc", "/api/assessments/extra"} {
		rec := env.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, fmt.Sprintf("path %s", path))
	}
}
