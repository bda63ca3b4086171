/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"chainguard.dev/translationflow/api"
	"chainguard.dev/translationflow/branchcommit"
	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/githubtest"
	"chainguard.dev/translationflow/internal/retry"
	"chainguard.dev/translationflow/manifest"
	"chainguard.dev/translationflow/translationunit"
	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unitBranch = "2024-03-05-14-07-09-042"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	srv    *githubtest.Server
	router *gin.Engine
	cache  *manifest.Cache
}

func newFixture(t *testing.T, opts ...api.Option) *fixture {
	t.Helper()
	srv := githubtest.New(t)
	files := map[string]string{}
	for _, d := range manifest.DefaultDescriptors() {
		files[d.OriginalPath] = "en"
		files[d.TranslatedPath] = ""
	}
	srv.Commit("main", "assets", files)

	client, err := gitremote.New(srv.Owner, srv.Repo,
		gitremote.WithBaseURL(srv.URL()), gitremote.WithGraphQLURL(srv.GraphQLURL()))
	require.NoError(t, err)

	cache := manifest.NewCache()
	resolver, err := manifest.NewResolver(client, cache, "main", manifest.DefaultDescriptors())
	require.NoError(t, err)
	orchestrator, err := branchcommit.New(client, cache)
	require.NoError(t, err)
	units, err := translationunit.New(client, translationunit.Config{
		MainBranch: "main",
		Labels:     translationunit.Labels{Translation: "translation", WIP: "wip", Review: "review"},
	}, translationunit.WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 14, 7, 9, 42*int(time.Millisecond), time.UTC)
	}))
	require.NoError(t, err)

	opts = append([]api.Option{api.WithReadRetry(retry.Policy{})}, opts...)
	h, err := api.NewHandler(units, resolver, orchestrator, opts...)
	require.NoError(t, err)
	return &fixture{srv: srv, router: api.NewRouter(h), cache: cache}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer user-token")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestWorkflow(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/translation/setup-labels", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	setup := decode[translationunit.LabelSetup](t, w)
	assert.Equal(t, []string{"translation", "wip", "review"}, setup.CreatedLabels)

	w = f.do(t, http.MethodPost, "/translation", map[string]string{"name": "Chapitre 1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	pr := decode[map[string]any](t, w)
	assert.Equal(t, "Chapitre 1", pr["title"])

	w = f.do(t, http.MethodGet, "/translation/files?branch="+unitBranch, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	before := decode[[]manifest.ResolvedFileEntry](t, w)
	require.Len(t, before, len(manifest.DefaultDescriptors()))

	w = f.do(t, http.MethodPost, "/translation/files", map[string]any{
		"branch":  unitBranch,
		"message": "Traduction",
		"files":   []map[string]string{{"path": before[0].TranslatedPath, "content": "bonjour"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	got, _ := f.srv.File(unitBranch, before[0].TranslatedPath)
	assert.Equal(t, "bonjour", got)

	w = f.do(t, http.MethodGet, "/translation/files?branch="+unitBranch, nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := decode[[]manifest.ResolvedFileEntry](t, w)
	assert.NotEqual(t, before[0].Translated, after[0].Translated)

	w = f.do(t, http.MethodGet, "/translation/files-at-branch-creation?branch="+unitBranch, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	atCreation := decode[[]manifest.ResolvedFileEntry](t, w)
	if diff := cmp.Diff(before[0].Translated, atCreation[0].Translated); diff != "" {
		t.Errorf("files at branch creation mismatch (-want +got):\n%s", diff)
	}

	w = f.do(t, http.MethodPost, "/translation/submit-to-review", map[string]string{"branch": unitBranch})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/translation/approve", map[string]string{"branch": unitBranch})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/translation/status?branch="+unitBranch, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	unit := decode[translationunit.Unit](t, w)
	assert.Equal(t, translationunit.StageInReview, unit.Stage)
	assert.True(t, unit.Approved)

	w = f.do(t, http.MethodGet, "/translation/list?page=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	for _, r := range f.srv.Requests() {
		if r.Op == githubtest.OpRaw {
			continue
		}
		assert.Equal(t, "Bearer user-token", r.Authorization, "%s %s", r.Method, r.Path)
	}
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{name: "create without name", method: http.MethodPost, target: "/translation", body: map[string]string{}},
		{name: "files without branch", method: http.MethodGet, target: "/translation/files"},
		{name: "files with invalid branch", method: http.MethodGet, target: "/translation/files?branch=a..b"},
		{name: "list with negative page", method: http.MethodGet, target: "/translation/list?page=-1"},
		{name: "list with bad page", method: http.MethodGet, target: "/translation/list?page=two"},
		{name: "save without files", method: http.MethodPost, target: "/translation/files",
			body: map[string]any{"branch": "b", "message": "m", "files": []any{}}},
		{name: "save file without path", method: http.MethodPost, target: "/translation/files",
			body: map[string]any{"branch": "b", "message": "m", "files": []map[string]string{{"content": "x"}}}},
		{name: "save outside the repository", method: http.MethodPost, target: "/translation/files",
			body: map[string]any{"branch": "b", "message": "m", "files": []map[string]string{{"path": "../x", "content": "x"}}}},
		{name: "submit without branch", method: http.MethodPost, target: "/translation/submit-to-review", body: map[string]string{}},
		{name: "approve with malformed json", method: http.MethodPost, target: "/translation/approve", body: "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]any](t, w)["error"])
			assert.Empty(t, f.srv.Requests(), "invalid input must not reach the remote")
		})
	}
}

func TestUnknownUnit(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/translation/submit-to-review", "/translation/approve"} {
		w := f.do(t, http.MethodPost, target, map[string]string{"branch": "missing"})
		assert.Equal(t, http.StatusNotFound, w.Code, target)
	}
	w := f.do(t, http.MethodGet, "/translation/status?branch=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.Commit(unitBranch, "init", map[string]string{"a.txt": "a"})
	f.srv.Fail(githubtest.OpCreateTree, http.StatusInternalServerError, "tree service unavailable")

	w := f.do(t, http.MethodPost, "/translation/files", map[string]any{
		"branch":  unitBranch,
		"message": "m",
		"files":   []map[string]string{{"path": "a.txt", "content": "b"}},
	})
	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, branchcommit.StepCreateTree, body["step"])
	assert.EqualValues(t, http.StatusInternalServerError, body["status"])
	assert.Contains(t, body["body"], "tree service unavailable")
}

func TestUnauthorizedPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.srv.Fail(githubtest.OpListPulls, http.StatusUnauthorized, "Bad credentials")

	w := f.do(t, http.MethodGet, "/translation/list", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConcurrentWriterConflict(t *testing.T) {
	f := newFixture(t)
	f.srv.Commit(unitBranch, "init", map[string]string{"a.txt": "a"})
	var once sync.Once
	f.srv.Before(githubtest.OpCreateCommit, func() {
		once.Do(func() { f.srv.Commit(unitBranch, "other", map[string]string{"b.txt": "b"}) })
	})

	w := f.do(t, http.MethodPost, "/translation/files", map[string]any{
		"branch":  unitBranch,
		"message": "m",
		"files":   []map[string]string{{"path": "a.txt", "content": "mine"}},
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestReadsAreRetried(t *testing.T) {
	f := newFixture(t, api.WithReadRetry(retry.Policy{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))
	f.srv.Fail(githubtest.OpListPulls, http.StatusServiceUnavailable, "try later")

	w := f.do(t, http.MethodGet, "/translation/list", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 3, f.srv.Count(githubtest.OpListPulls))
}

func TestWritesAreNotRetried(t *testing.T) {
	f := newFixture(t, api.WithReadRetry(retry.Policy{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}))
	f.srv.Fail(githubtest.OpGetRef, http.StatusServiceUnavailable, "try later")

	w := f.do(t, http.MethodPost, "/translation", map[string]string{"name": "Chapitre"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, f.srv.Count(githubtest.OpGetRef))
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	f.do(t, http.MethodGet, "/translation/list", nil)
	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "translationflow_http_request_duration_seconds"))
	assert.True(t, strings.Contains(w.Body.String(), "translationflow_remote_requests_total"))
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}

func TestNewHandler(t *testing.T) {
	_, err := api.NewHandler(nil, nil, nil)
	assert.Error(t, err)
}
