/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package translationunit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/githubtest"
	"chainguard.dev/translationflow/internal/steps"
	"chainguard.dev/translationflow/translationunit"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLabels = translationunit.Labels{Translation: "translation", WIP: "wip", Review: "review"}
	createdAt  = time.Date(2024, 3, 5, 14, 7, 9, 42*int(time.Millisecond), time.UTC)
)

const testBranch = "2024-03-05-14-07-09-042"

func newLifecycle(t *testing.T, srv *githubtest.Server, opts ...translationunit.Option) *translationunit.Lifecycle {
	t.Helper()
	c, err := gitremote.New(srv.Owner, srv.Repo,
		gitremote.WithBaseURL(srv.URL()), gitremote.WithGraphQLURL(srv.GraphQLURL()))
	require.NoError(t, err)
	opts = append([]translationunit.Option{translationunit.WithClock(func() time.Time { return createdAt })}, opts...)
	l, err := translationunit.New(c, translationunit.Config{MainBranch: "main", Labels: testLabels}, opts...)
	require.NoError(t, err)
	return l
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{{
		name: "utc",
		at:   createdAt,
		want: testBranch,
	}, {
		name: "converted to utc",
		at:   time.Date(2024, 12, 31, 23, 30, 0, 5*int(time.Millisecond), time.FixedZone("CET", 3600)),
		want: "2024-12-31-22-30-00-005",
	}, {
		name: "sub-millisecond truncated",
		at:   time.Date(2025, 1, 2, 3, 4, 5, 999999999, time.UTC),
		want: "2025-01-02-03-04-05-999",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translationunit.BranchName(tt.at); got != tt.want {
				t.Errorf("BranchName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	srv := githubtest.New(t)
	c, err := gitremote.New(srv.Owner, srv.Repo, gitremote.WithBaseURL(srv.URL()))
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  translationunit.Remote
		cfg     translationunit.Config
		wantErr bool
	}{{
		name:   "valid",
		remote: c,
		cfg:    translationunit.Config{MainBranch: "main", Labels: testLabels},
	}, {
		name:    "nil remote",
		cfg:     translationunit.Config{MainBranch: "main", Labels: testLabels},
		wantErr: true,
	}, {
		name:    "missing main branch",
		remote:  c,
		cfg:     translationunit.Config{Labels: testLabels},
		wantErr: true,
	}, {
		name:    "missing review label",
		remote:  c,
		cfg:     translationunit.Config{MainBranch: "main", Labels: translationunit.Labels{Translation: "t", WIP: "w"}},
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := translationunit.New(tt.remote, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	srv := githubtest.New(t)
	mainHead := srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
	l := newLifecycle(t, srv)

	pr, err := l.Create(context.Background(), "Chapitre 1")
	require.NoError(t, err)
	assert.Equal(t, "Chapitre 1", pr.GetTitle())
	assert.Equal(t, testBranch, pr.GetHead().GetRef())

	marker, ok := srv.File(testBranch, translationunit.DefaultMarkerPath)
	require.True(t, ok)
	assert.Equal(t, testBranch, marker)

	head, _ := srv.Branch(testBranch)
	assert.Equal(t, []string{mainHead}, srv.Parents(head), "the marker commit sits directly on main")

	prs := srv.PullRequests()
	require.Len(t, prs, 1)
	if diff := cmp.Diff([]string{"translation", "wip"}, prs[0].Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "main", prs[0].Base)

	assert.Equal(t, []string{
		githubtest.OpGetRef,
		githubtest.OpCreateRef,
		githubtest.OpGetContents,
		githubtest.OpPutContents,
		githubtest.OpCreatePull,
		githubtest.OpAddLabels,
	}, srv.Ops())
}

func TestCreateUpdatesExistingMarker(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "init", map[string]string{translationunit.DefaultMarkerPath: "previous"})
	l := newLifecycle(t, srv)

	_, err := l.Create(context.Background(), "Chapitre 2")
	require.NoError(t, err)

	marker, _ := srv.File(testBranch, translationunit.DefaultMarkerPath)
	assert.Equal(t, testBranch, marker)
	main, _ := srv.File("main", translationunit.DefaultMarkerPath)
	assert.Equal(t, "previous", main)
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	srv := githubtest.New(t)
	l := newLifecycle(t, srv)

	_, err := l.Create(context.Background(), "  ")
	require.ErrorIs(t, err, translationunit.ErrInvalidTitle)
	assert.Empty(t, srv.Requests())
}

func TestCreateStepFailures(t *testing.T) {
	tests := []struct {
		op       string
		step     string
		branched bool
	}{
		{op: githubtest.OpGetRef, step: translationunit.StepResolveMainHead},
		{op: githubtest.OpCreateRef, step: translationunit.StepCreateBranch},
		{op: githubtest.OpGetContents, step: translationunit.StepReadMarker, branched: true},
		{op: githubtest.OpPutContents, step: translationunit.StepWriteMarker, branched: true},
		{op: githubtest.OpCreatePull, step: translationunit.StepCreatePullRequest, branched: true},
		{op: githubtest.OpAddLabels, step: translationunit.StepAddLabels, branched: true},
	}
	for _, tt := range tests {
		t.Run(tt.step, func(t *testing.T) {
			srv := githubtest.New(t)
			srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
			srv.Fail(tt.op, 500, "boom")
			l := newLifecycle(t, srv)

			_, err := l.Create(context.Background(), "Chapitre 1")
			require.Error(t, err)
			assert.Equal(t, tt.step, steps.Name(err))

			var re *gitremote.RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, 500, re.StatusCode)

			_, ok := srv.Branch(testBranch)
			assert.Equal(t, tt.branched, ok, "earlier steps are not rolled back")
		})
	}
}

func TestSubmitToReview(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
	l := newLifecycle(t, srv)
	ctx := context.Background()

	pr, err := l.Create(ctx, "Chapitre 1")
	require.NoError(t, err)
	require.NoError(t, l.SubmitToReview(ctx, pr.GetHead().GetRef()))

	prs := srv.PullRequests()
	if diff := cmp.Diff([]string{"translation", "review"}, prs[0].Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	unit, err := l.Status(ctx, testBranch)
	require.NoError(t, err)
	assert.Equal(t, translationunit.StageInReview, unit.Stage)
}

func TestSubmitToReviewWithoutWIPLabel(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
	srv.Commit("unit", "work", map[string]string{"a.txt": "a"})
	srv.OpenPullRequest("Chapitre 3", "unit", "main", "translation")
	l := newLifecycle(t, srv)

	require.NoError(t, l.SubmitToReview(context.Background(), "unit"))
	assert.Equal(t, 0, srv.Count(githubtest.OpRemoveLabel))
	assert.Equal(t, []string{"translation", "review"}, srv.PullRequests()[0].Labels)
}

func TestLookupFailures(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
	srv.Commit("other", "work", map[string]string{"a.txt": "a"})
	srv.OpenPullRequest("Autre", "other", "main", "translation", "wip")
	l := newLifecycle(t, srv)
	ctx := context.Background()

	ops := map[string]func(string) error{
		"submit":  func(b string) error { return l.SubmitToReview(ctx, b) },
		"approve": func(b string) error { return l.Approve(ctx, b) },
		"status": func(b string) error {
			_, err := l.Status(ctx, b)
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op("missing")
			var le *translationunit.LookupError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, "missing", le.Branch)
			assert.True(t, errors.Is(err, translationunit.ErrNoPullRequest))
		})
	}

	assert.Empty(t, srv.PullRequests()[0].Reviews, "no review may land on another unit")
	assert.Equal(t, 0, srv.Count(githubtest.OpAddLabels))
}

func TestApprove(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
	l := newLifecycle(t, srv, translationunit.WithApprovalBody("Parfait"))
	ctx := context.Background()

	_, err := l.Create(ctx, "Chapitre 1")
	require.NoError(t, err)
	require.NoError(t, l.SubmitToReview(ctx, testBranch))
	require.NoError(t, l.Approve(ctx, testBranch))

	pr := srv.PullRequests()[0]
	require.Len(t, pr.Reviews, 1)
	assert.Equal(t, githubtest.Review{Event: "APPROVE", Body: "Parfait"}, pr.Reviews[0])
	assert.Equal(t, []string{"translation", "review"}, pr.Labels, "approval leaves labels alone")

	unit, err := l.Status(ctx, testBranch)
	require.NoError(t, err)
	assert.Equal(t, translationunit.StageInReview, unit.Stage)
	assert.True(t, unit.Approved)
	assert.Equal(t, 1, unit.Approvals)
	assert.Equal(t, "APPROVED", unit.ReviewDecision)
}

func TestStatusStages(t *testing.T) {
	tests := []struct {
		name   string
		labels  []string
		approve bool
		want    translationunit.Stage
	}{
		{name: "draft", labels: []string{"translation", "wip"}, want: translationunit.StageDraft},
		{name: "in review", labels: []string{"translation", "review"}, want: translationunit.StageInReview},
		{name: "unlabeled", labels: nil, want: translationunit.StageUnlabeled},
		{name: "approved without workflow labels", labels: []string{"translation"}, approve: true, want: translationunit.StageApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := githubtest.New(t)
			srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
			srv.Commit("unit", "work", map[string]string{"a.txt": "a"})
			n := srv.OpenPullRequest("Chapitre", "unit", "main", tt.labels...)
			l := newLifecycle(t, srv)
			if tt.approve {
				require.NoError(t, l.Approve(context.Background(), "unit"))
			}

			unit, err := l.Status(context.Background(), "unit")
			require.NoError(t, err)
			assert.Equal(t, tt.want, unit.Stage)
			assert.Equal(t, n, unit.Number)
			assert.Equal(t, "unit", unit.Branch)
		})
	}
}

func TestList(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "init", map[string]string{"README.md": "jeu"})
	srv.Commit("dev", "init", map[string]string{"README.md": "dev"})
	srv.Commit("a", "work", map[string]string{"a.txt": "a"})
	srv.Commit("b", "work", map[string]string{"b.txt": "b"})
	srv.OpenPullRequest("A", "a", "main")
	srv.OpenPullRequest("B", "b", "dev")
	l := newLifecycle(t, srv)

	prs, err := l.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, "A", prs[0].GetTitle())

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "all", reqs[0].Query.Get("state"))
	assert.Equal(t, "main", reqs[0].Query.Get("base"))

	_, err = l.List(context.Background(), -1)
	assert.Error(t, err)
}

func TestEnsureLabels(t *testing.T) {
	srv := githubtest.New(t)
	srv.AddRepoLabel("wip")
	l := newLifecycle(t, srv)
	ctx := context.Background()

	first, err := l.EnsureLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"translation", "review"}, first.CreatedLabels)
	assert.Equal(t, "Labels setup completed", first.Message)

	second, err := l.EnsureLabels(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.CreatedLabels)
	assert.NotNil(t, second.CreatedLabels, "encodes as an empty list")

	assert.Equal(t, []string{"review", "translation", "wip"}, srv.RepoLabels())
}

func TestEnsureLabelsContinuesPastFailures(t *testing.T) {
	srv := githubtest.New(t)
	srv.Fail(githubtest.OpCreateLabel, 403, "Resource not accessible")
	l := newLifecycle(t, srv)

	res, err := l.EnsureLabels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.CreatedLabels)
	assert.Equal(t, 3, srv.Count(githubtest.OpCreateLabel))
}
