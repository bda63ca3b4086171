/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidBranch is returned for branch names git would reject.
var ErrInvalidBranch = errors.New("invalid branch name")

// ContentReader is the subset of the remote client the resolver needs.
type ContentReader interface {
	Contents(ctx context.Context, path, ref string) (*github.RepositoryContent, error)
	MergeBase(ctx context.Context, base, head string) (string, error)
}

// Resolver turns the descriptor table into download URLs at a ref.
type Resolver struct {
	remote      ContentReader
	cache       *Cache
	mainBranch  string
	descriptors []FileDescriptor
	concurrency int

	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConcurrency bounds the number of descriptors read at once.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver returns a Resolver reading through remote and caching in cache.
func NewResolver(remote ContentReader, cache *Cache, mainBranch string, descriptors []FileDescriptor, opts ...ResolverOption) (*Resolver, error) {
	switch {
	case remote == nil:
		return nil, errors.New("remote cannot be nil")
	case cache == nil:
		return nil, errors.New("cache cannot be nil")
	case strings.TrimSpace(mainBranch) == "":
		return nil, errors.New("main branch cannot be empty")
	}
	if err := ValidateDescriptors(descriptors); err != nil {
		return nil, err
	}

	r := &Resolver{
		remote:      remote,
		cache:       cache,
		mainBranch:  mainBranch,
		descriptors: descriptors,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Descriptors returns the asset table the resolver reads.
func (r *Resolver) Descriptors() []FileDescriptor { return r.descriptors }

// Files returns the assets at the tip of branch, serving from the cache when
// possible. Concurrent misses for the same branch share one remote read.
func (r *Resolver) Files(ctx context.Context, branch string) ([]ResolvedFileEntry, error) {
	if err := ValidateBranch(branch); err != nil {
		return nil, err
	}
	if files, ok := r.cache.Get(branch); ok {
		clog.FromContext(ctx).Debugf("Returning cached files for branch %s", branch)
		return files, nil
	}

	gen := r.cache.Generation(branch)
	key := fmt.Sprintf("%s@%d", branch, gen)
	ch := r.group.DoChan(key, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		files, err := r.resolve(context.WithoutCancel(ctx), branch)
		if err != nil {
			return nil, err
		}
		if !r.cache.SetIfGeneration(branch, gen, files, 0) {
			clog.FromContext(ctx).Infof("Branch %s changed while reading files, not caching", branch)
		}
		return files, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneEntries(res.Val.([]ResolvedFileEntry)), nil
	}
}

// FilesAtBranchCreation returns the assets as they were at the merge base of
// the main branch and branch. The result is not cached.
func (r *Resolver) FilesAtBranchCreation(ctx context.Context, branch string) ([]ResolvedFileEntry, error) {
	if err := ValidateBranch(branch); err != nil {
		return nil, err
	}
	base, err := r.remote.MergeBase(ctx, r.mainBranch, branch)
	if err != nil {
		return nil, fmt.Errorf("comparing %s...%s: %w", r.mainBranch, branch, err)
	}
	clog.FromContext(ctx).Infof("Branch %s was created from %s", branch, base)
	return r.resolve(ctx, base)
}

// resolve reads both sides of every descriptor at ref. The first failure
// cancels the remaining reads.
func (r *Resolver) resolve(ctx context.Context, ref string) ([]ResolvedFileEntry, error) {
	out := make([]ResolvedFileEntry, len(r.descriptors))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, d := range r.descriptors {
		g.Go(func() error {
			original, err := r.remote.Contents(ctx, d.OriginalPath, ref)
			if err != nil {
				return fmt.Errorf("reading original file %s: %w", d.OriginalPath, err)
			}
			translated, err := r.remote.Contents(ctx, d.TranslatedPath, ref)
			if err != nil {
				return fmt.Errorf("reading translated file %s: %w", d.TranslatedPath, err)
			}
			out[i] = ResolvedFileEntry{
				Category:        d.Category,
				Name:            d.DisplayName,
				GameFolderPaths: d.GameFolderPaths,
				TranslatedPath:  d.TranslatedPath,
				OriginalPath:    d.OriginalPath,
				Original:        original.GetDownloadURL(),
				Translated:      translated.GetDownloadURL(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cloneEntries(out), nil
}

// ValidateBranch rejects names that cannot be a git branch.
func ValidateBranch(branch string) error {
	switch {
	case branch == "":
		return fmt.Errorf("%w: branch is required", ErrInvalidBranch)
	case strings.Contains(branch, ".."):
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidBranch, branch)
	case strings.HasPrefix(branch, "/"), strings.HasSuffix(branch, "/"), strings.HasSuffix(branch, ".lock"):
		return fmt.Errorf("%w: %q", ErrInvalidBranch, branch)
	case strings.ContainsAny(branch, " ~^:?*[\\"):
		return fmt.Errorf("%w: %q contains a forbidden character", ErrInvalidBranch, branch)
	}
	for _, r := range branch {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidBranch, branch)
		}
	}
	return nil
}
