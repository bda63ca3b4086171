/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package manifest_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/githubtest"
	"chainguard.dev/translationflow/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedAssets commits both sides of every default descriptor to branch.
func seedAssets(srv *githubtest.Server, branch, suffix string) string {
	files := map[string]string{}
	for _, d := range manifest.DefaultDescriptors() {
		files[d.OriginalPath] = "en " + d.OriginalPath + suffix
		files[d.TranslatedPath] = "fr " + d.TranslatedPath + suffix
	}
	return srv.Commit(branch, "assets"+suffix, files)
}

func newResolver(t *testing.T, srv *githubtest.Server) (*manifest.Resolver, *manifest.Cache) {
	t.Helper()
	client, err := gitremote.New(srv.Owner, srv.Repo, gitremote.WithBaseURL(srv.URL()))
	require.NoError(t, err)
	cache := manifest.NewCache()
	r, err := manifest.NewResolver(client, cache, "main", manifest.DefaultDescriptors())
	require.NoError(t, err)
	return r, cache
}

func TestFiles(t *testing.T) {
	srv := githubtest.New(t)
	seedAssets(srv, "main", "")
	r, cache := newResolver(t, srv)
	ctx := context.Background()

	files, err := r.Files(ctx, "main")
	require.NoError(t, err)
	require.Len(t, files, 6)

	for i, d := range manifest.DefaultDescriptors() {
		f := files[i]
		assert.Equal(t, d.DisplayName, f.Name)
		assert.Equal(t, d.Category, f.Category)
		assert.Equal(t, d.OriginalPath, f.OriginalPath)
		assert.Equal(t, d.TranslatedPath, f.TranslatedPath)
		assert.Equal(t, d.GameFolderPaths, f.GameFolderPaths)
		assert.True(t, strings.HasSuffix(f.Original, "/"+d.OriginalPath), "original url %q", f.Original)
		assert.True(t, strings.HasSuffix(f.Translated, "/"+d.TranslatedPath), "translated url %q", f.Translated)
	}
	assert.Equal(t, 12, srv.Count(githubtest.OpGetContents))

	for _, req := range srv.Requests() {
		assert.Equal(t, "main", req.Query.Get("ref"))
	}

	// Second call is served from the cache.
	again, err := r.Files(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, files, again)
	assert.Equal(t, 12, srv.Count(githubtest.OpGetContents))

	cache.Invalidate("main")
	_, err = r.Files(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 24, srv.Count(githubtest.OpGetContents))
}

func TestFilesMissingAsset(t *testing.T) {
	srv := githubtest.New(t)
	srv.Commit("main", "partial", map[string]string{"chapitre-0/strings_en.txt": "en"})
	r, cache := newResolver(t, srv)

	_, err := r.Files(context.Background(), "main")
	require.Error(t, err)
	assert.True(t, gitremote.IsNotFound(err), "want a 404 RemoteError, got %v", err)
	assert.Contains(t, err.Error(), "reading")

	_, ok := cache.Get("main")
	assert.False(t, ok, "a failed read must not be cached")
}

func TestFilesRemoteFailure(t *testing.T) {
	srv := githubtest.New(t)
	seedAssets(srv, "main", "")
	srv.Fail(githubtest.OpGetContents, http.StatusUnauthorized, "Bad credentials")
	r, _ := newResolver(t, srv)

	_, err := r.Files(context.Background(), "main")
	var re *gitremote.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
}

func TestFilesDoesNotCacheAcrossInvalidation(t *testing.T) {
	srv := githubtest.New(t)
	seedAssets(srv, "main", "")
	r, cache := newResolver(t, srv)

	var once sync.Once
	srv.Before(githubtest.OpGetContents, func() {
		// A commit completes while the read is in flight.
		once.Do(func() { cache.Invalidate("main") })
	})

	files, err := r.Files(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, files, 6)

	_, ok := cache.Get("main")
	assert.False(t, ok, "entries read before the invalidation were cached")
}

func TestFilesCoalescesConcurrentMisses(t *testing.T) {
	srv := githubtest.New(t)
	seedAssets(srv, "main", "")
	r, _ := newResolver(t, srv)

	release := make(chan struct{})
	srv.Before(githubtest.OpGetContents, func() { <-release })

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Files(context.Background(), "main")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 12, srv.Count(githubtest.OpGetContents))
}

func TestFilesCallerCancellation(t *testing.T) {
	srv := githubtest.New(t)
	seedAssets(srv, "main", "")
	r, _ := newResolver(t, srv)

	release := make(chan struct{})
	srv.Before(githubtest.OpGetContents, func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Files(ctx, "main")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestFilesAtBranchCreation(t *testing.T) {
	srv := githubtest.New(t)
	base := seedAssets(srv, "main", "")
	require.NoError(t, srvBranch(t, srv, "unit", base))
	seedAssets(srv, "unit", " edited")
	seedAssets(srv, "main", " later")
	r, cache := newResolver(t, srv)

	files, err := r.FilesAtBranchCreation(context.Background(), "unit")
	require.NoError(t, err)
	require.Len(t, files, 6)

	var refs []string
	for _, req := range srv.Requests() {
		if req.Op == githubtest.OpGetContents {
			refs = append(refs, req.Query.Get("ref"))
		}
	}
	require.Len(t, refs, 12)
	for _, ref := range refs {
		assert.Equal(t, base, ref)
	}
	assert.Equal(t, 0, cache.Len(), "branch-creation reads are not cached")
}

func TestFilesAtBranchCreationCompareFailure(t *testing.T) {
	srv := githubtest.New(t)
	seedAssets(srv, "main", "")
	r, _ := newResolver(t, srv)

	_, err := r.FilesAtBranchCreation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, gitremote.IsNotFound(err))
	assert.Equal(t, 0, srv.Count(githubtest.OpGetContents))
}

func TestValidateBranch(t *testing.T) {
	tests := []struct {
		branch string
		valid  bool
	}{
		{"main", true},
		{"2024-01-02-03-04-05-006", true},
		{"feature/x", true},
		{"", false},
		{"a..b", false},
		{"has space", false},
		{"tab\there", false},
		{"/leading", false},
		{"trailing/", false},
		{"x.lock", false},
		{"what?", false},
	}
	for _, tt := range tests {
		err := manifest.ValidateBranch(tt.branch)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateBranch(%q) = %v, want valid=%v", tt.branch, err, tt.valid)
		}
		if err != nil && !errors.Is(err, manifest.ErrInvalidBranch) {
			t.Errorf("ValidateBranch(%q) = %v, want ErrInvalidBranch", tt.branch, err)
		}
	}

	srv := githubtest.New(t)
	r, _ := newResolver(t, srv)
	_, err := r.Files(context.Background(), "a..b")
	assert.ErrorIs(t, err, manifest.ErrInvalidBranch)
	assert.Empty(t, srv.Requests())
}

func TestNewResolver(t *testing.T) {
	srv := githubtest.New(t)
	client, err := gitremote.New(srv.Owner, srv.Repo, gitremote.WithBaseURL(srv.URL()))
	require.NoError(t, err)

	_, err = manifest.NewResolver(nil, manifest.NewCache(), "main", manifest.DefaultDescriptors())
	assert.Error(t, err)
	_, err = manifest.NewResolver(client, nil, "main", manifest.DefaultDescriptors())
	assert.Error(t, err)
	_, err = manifest.NewResolver(client, manifest.NewCache(), "", manifest.DefaultDescriptors())
	assert.Error(t, err)
	_, err = manifest.NewResolver(client, manifest.NewCache(), "main", nil)
	assert.Error(t, err)
}

func srvBranch(t *testing.T, srv *githubtest.Server, name, sha string) error {
	t.Helper()
	client, err := gitremote.New(srv.Owner, srv.Repo, gitremote.WithBaseURL(srv.URL()))
	if err != nil {
		return err
	}
	return client.CreateBranch(context.Background(), name, sha)
}
