package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/hub"
	"github.com/umutsatir/brainstorming-application/internal/identity"
	"github.com/umutsatir/brainstorming-application/internal/metrics"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
	"github.com/umutsatir/brainstorming-application/internal/store/memory"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: session x", engine.ErrNotFound), http.StatusNotFound},
		{engine.ErrInvalidTransition, http.StatusConflict},
		{engine.ErrInvalidSubmission, http.StatusUnprocessableEntity},
		{engine.ErrUnauthorized, http.StatusForbidden},
		{engine.ErrNotAParticipant, http.StatusForbidden},
		{identity.ErrUnauthenticated, http.StatusUnauthorized},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}

type apiFixture struct {
	handler http.Handler
}

func newAPI(t *testing.T) apiFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := zaptest.NewLogger(t)

	s := memory.New()
	for _, id := range []string{"lead", "m1", "mgr", "stranger"} {
		require.NoError(t, s.PutUser(ctx, engine.User{ID: id, FullName: id}))
	}
	require.NoError(t, s.PutTeam(ctx, engine.Team{
		ID: "t1", LeaderID: "lead", ManagerID: "mgr",
		Members: []engine.Member{{UserID: "m1", JoinSeq: 1}},
	}))

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	h := hub.NewHub(ctx, hub.Options{Logger: log, Metrics: rec})
	t.Cleanup(h.Shutdown)
	orch := orchestrator.New(orchestrator.Options{
		Store:         s,
		Notifier:      h,
		Metrics:       rec,
		Logger:        log,
		IdeasPerRound: 2,
		TeamSize:      2,
		RoundCount:    2,
		RoundDuration: time.Minute,
	})
	return apiFixture{handler: SetupRoutes(Deps{
		Orchestrator: orch,
		Hub:          h,
		Identity:     identity.NewResolver(identity.Options{AllowDevHeader: true, Lookup: s}),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       log,
	})}
}

func (f apiFixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(identity.DevUserHeader, user)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f apiFixture) createSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", "lead", map[string]any{"teamId": "t1", "topic": "launch names"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[orchestrator.SessionView](t, rec).ID
}

func TestAPI_SessionFlow(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodPost, "/sessions", "m1", map[string]any{"teamId": "t1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	id := f.createSession(t)
	base := "/sessions/" + id

	rec = f.do(t, http.MethodGet, base, "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/start", "lead", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, engine.SessionRunning, decodeBody[orchestrator.SessionView](t, rec).Status)

	rec = f.do(t, http.MethodPost, base+"/rounds/1/ideas", "m1", map[string]any{"ideas": []string{"only one"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/rounds/1/ideas", "m1", map[string]any{"ideas": []string{"alpha", "beta"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decodeBody[orchestrator.SubmitResult](t, rec)
	require.Len(t, submitted.Ideas, 2)
	assert.Nil(t, submitted.Advance)

	state := decodeBody[orchestrator.SessionState](t, f.do(t, http.MethodGet, base, "m1", nil))
	assert.Len(t, state.MyIdeas, 2)
	assert.False(t, state.CanSubmit)

	detail := decodeBody[orchestrator.RoundDetail](t, f.do(t, http.MethodGet, base+"/rounds/1", "lead", nil))
	assert.Equal(t, 1, detail.SubmittedCount)

	rec = f.do(t, http.MethodPost, base+"/rounds/1/advance", "m1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/rounds/1/advance", "lead", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adv := decodeBody[orchestrator.AdvanceResult](t, rec)
	assert.True(t, adv.Advanced)
	assert.Equal(t, 2, adv.CurrentRound)

	// the same observed round a second time is a no-op
	rec = f.do(t, http.MethodPost, base+"/rounds/1/advance", "mgr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[orchestrator.AdvanceResult](t, rec).Advanced)

	// the round is finished, so only a leader or manager may edit
	ideaPath := "/ideas/" + submitted.Ideas[0].ID
	rec = f.do(t, http.MethodPatch, ideaPath, "m1", map[string]any{"text": "alpha prime"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = f.do(t, http.MethodPatch, ideaPath, "mgr", map[string]any{"text": "alpha prime"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alpha prime", decodeBody[orchestrator.IdeaView](t, rec).Text)

	rec = f.do(t, http.MethodPost, base+"/control", "lead", map[string]any{"action": "end"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, engine.SessionCompleted, decodeBody[orchestrator.SessionView](t, rec).Status)

	rounds := decodeBody[[]orchestrator.RoundIdeas](t, f.do(t, http.MethodGet, base+"/ideas", "lead", nil))
	assert.NotEmpty(t, rounds)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, base+"/ideas", "m1", nil).Code)

	logs := decodeBody[[]orchestrator.LogView](t, f.do(t, http.MethodGet, base+"/logs", "mgr", nil))
	assert.NotEmpty(t, logs)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, base+"/logs", "m1", nil).Code)
}

func TestAPI_WithdrawAndResubmit(t *testing.T) {
	f := newAPI(t)
	base := "/sessions/" + f.createSession(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/start", "lead", nil).Code)

	path := base + "/rounds/1/ideas"
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, path, "lead", map[string]any{"ideas": []string{"a", "b"}}).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(t, http.MethodPost, path, "lead", map[string]any{"ideas": []string{"c", "d"}}).Code)

	rec := f.do(t, http.MethodDelete, path, "lead", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["withdrawn"])

	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, path, "lead", map[string]any{"ideas": []string{"c", "d"}}).Code)
}

func TestAPI_RoundIdeas(t *testing.T) {
	f := newAPI(t)
	base := "/sessions/" + f.createSession(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/start", "lead", nil).Code)
	path := base + "/rounds/1/ideas"
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, path, "m1", map[string]any{"ideas": []string{"alpha", "beta"}}).Code)

	rec := f.do(t, http.MethodGet, path, "lead", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	open := decodeBody[orchestrator.RoundIdeas](t, rec)
	assert.Equal(t, 1, open.RoundNumber)
	require.Len(t, open.Authors, 1)
	assert.Equal(t, "m1", open.Authors[0].AuthorID)
	require.Len(t, open.Authors[0].Ideas, 2)
	assert.Equal(t, "alpha", open.Authors[0].Ideas[0].Text)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, "mgr", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, path, "m1", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, path, "stranger", nil).Code)

	// round 2 has not started
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, base+"/rounds/2/advance", "lead", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/rounds/1/advance", "lead", nil).Code)

	rec = f.do(t, http.MethodGet, path, "m1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	finished := decodeBody[orchestrator.RoundIdeas](t, rec)
	require.Len(t, finished.Authors, 1)
	assert.Len(t, finished.Authors[0].Ideas, 2)

	rec = f.do(t, http.MethodGet, base+"/rounds/2/ideas", "lead", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decodeBody[orchestrator.RoundIdeas](t, rec).Authors)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, base+"/rounds/9/ideas", "lead", nil).Code)
}

func TestAPI_RequestErrors(t *testing.T) {
	f := newAPI(t)
	id := f.createSession(t)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"anonymous", http.MethodGet, "/sessions/" + id, "", nil, http.StatusUnauthorized},
		{"unknown session", http.MethodGet, "/sessions/nope", "lead", nil, http.StatusNotFound},
		{"unknown idea", http.MethodPatch, "/ideas/nope", "lead", map[string]any{"text": "x"}, http.StatusNotFound},
		{"bad round", http.MethodGet, "/sessions/" + id + "/rounds/zero", "lead", nil, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/sessions", "lead", map[string]any{"team": "t1"}, http.StatusBadRequest},
		{"pause before start", http.MethodPost, "/sessions/" + id + "/pause", "lead", nil, http.StatusConflict},
		{"unknown action", http.MethodPost, "/sessions/" + id + "/control", "lead", map[string]any{"action": "rewind"}, http.StatusConflict},
		{"submit before start", http.MethodPost, "/sessions/" + id + "/rounds/1/ideas", "m1", map[string]any{"ideas": []string{"a", "b"}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	f := newAPI(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]any](t, rec)["status"])

	base := "/sessions/" + f.createSession(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/start", "lead", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, base+"/rounds/1/advance", "lead", nil).Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `brainstorm_rounds_advanced_total{trigger="manual"} 1`)
}
