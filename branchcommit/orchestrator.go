/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package branchcommit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/branchlock"
	"chainguard.dev/translationflow/internal/steps"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Step names, in execution order.
const (
	StepResolveHead     = "resolve-head"
	StepResolveBaseTree = "resolve-base-tree"
	StepCreateBlobs     = "create-blobs"
	StepCreateTree      = "create-tree"
	StepCreateCommit    = "create-commit"
	StepCheckHead       = "check-head"
	StepUpdateRef       = "update-ref"
)

var (
	// ErrInvalidBatch is returned before any remote call for malformed input.
	ErrInvalidBatch = errors.New("invalid commit batch")

	// ErrHeadMoved is returned when the branch no longer points at the head
	// the commit was parented on.
	ErrHeadMoved = errors.New("branch head moved during commit")
)

var commits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "translationflow_commit_batches_total",
		Help: "Commit batches, by result",
	},
	[]string{"result"},
)

// Remote is the subset of the remote client the orchestrator drives.
type Remote interface {
	BranchHead(ctx context.Context, branch string) (string, error)
	CommitTree(ctx context.Context, sha string) (string, error)
	CreateBlob(ctx context.Context, content string) (string, error)
	CreateTree(ctx context.Context, baseTree string, entries []gitremote.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, message, tree string, parents ...string) (string, error)
	UpdateBranch(ctx context.Context, branch, sha string) error
}

// Invalidator drops cached state for a branch.
type Invalidator interface {
	Invalidate(branch string)
}

// File is one path to write.
type File struct {
	Path    string
	Content string
}

// Batch is a set of files written to a branch as a single commit.
type Batch struct {
	Branch  string
	Message string
	Files   []File
}

// Validate checks the batch without contacting the remote.
func (b Batch) Validate() error {
	switch {
	case strings.TrimSpace(b.Branch) == "":
		return fmt.Errorf("%w: branch is required", ErrInvalidBatch)
	case strings.TrimSpace(b.Message) == "":
		return fmt.Errorf("%w: message is required", ErrInvalidBatch)
	case len(b.Files) == 0:
		return fmt.Errorf("%w: at least one file is required", ErrInvalidBatch)
	}
	for i, f := range b.Files {
		if err := validatePath(f.Path); err != nil {
			return fmt.Errorf("%w: files[%d]: %w", ErrInvalidBatch, i, err)
		}
	}
	return nil
}

func validatePath(p string) error {
	switch {
	case p == "":
		return errors.New("path is required")
	case strings.HasPrefix(p, "/"):
		return fmt.Errorf("path %q must be relative", p)
	case strings.Contains(p, "\\"):
		return fmt.Errorf("path %q must use forward slashes", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("path %q is not clean", p)
		}
	}
	if path.Clean(p) != p {
		return fmt.Errorf("path %q is not clean", p)
	}
	return nil
}

// Result describes the objects a successful batch produced.
type Result struct {
	Branch string
	// Parent is the head observed when the batch started.
	Parent string
	Tree   string
	Commit string
	// Blobs holds the blob sha of each file, in input order.
	Blobs []string
}

// Orchestrator writes batches of files to branches through the git data API.
type Orchestrator struct {
	remote          Remote
	cache           Invalidator
	concurrency     Concurrency
	blobConcurrency int
	verifyBlobs     bool

	locks branchlock.Locker
}

// New returns an Orchestrator. cache is invalidated for the branch after
// every successful batch.
func New(remote Remote, cache Invalidator, opts ...Option) (*Orchestrator, error) {
	if remote == nil {
		return nil, errors.New("remote cannot be nil")
	}
	if cache == nil {
		return nil, errors.New("cache cannot be nil")
	}
	o := &Orchestrator{
		remote:          remote,
		cache:           cache,
		concurrency:     Unserialized,
		blobConcurrency: 4,
		verifyBlobs:     true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Commit writes the batch to its branch as one commit parented on the
// branch head observed at the start. The first failing step aborts the
// rest; the branch ref is either advanced to the new commit or untouched.
// Objects created before a failure are left for the remote to collect.
func (o *Orchestrator) Commit(ctx context.Context, b Batch) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if o.concurrency == SerializePerBranch {
		unlock, err := o.locks.Lock(ctx, b.Branch)
		if err != nil {
			return nil, fmt.Errorf("waiting for branch %s: %w", b.Branch, err)
		}
		defer unlock()
	}

	res, err := o.commit(ctx, b)
	switch {
	case err == nil:
		commits.WithLabelValues("success").Inc()
	case errors.Is(err, ErrHeadMoved):
		commits.WithLabelValues("head_moved").Inc()
	default:
		commits.WithLabelValues("failure").Inc()
	}
	return res, err
}

func (o *Orchestrator) commit(ctx context.Context, b Batch) (*Result, error) {
	p, ctx := steps.Start(ctx, "commit-batch",
		attribute.String("branch", b.Branch),
		attribute.Int("files", len(b.Files)))
	defer p.End()

	head, err := steps.Value(p, StepResolveHead, func(ctx context.Context) (string, error) {
		return o.remote.BranchHead(ctx, b.Branch)
	})
	if err != nil {
		return nil, err
	}

	baseTree, err := steps.Value(p, StepResolveBaseTree, func(ctx context.Context) (string, error) {
		return o.remote.CommitTree(ctx, head)
	})
	if err != nil {
		return nil, err
	}

	blobs, err := steps.Value(p, StepCreateBlobs, func(ctx context.Context) ([]string, error) {
		return o.createBlobs(ctx, b.Files)
	})
	if err != nil {
		return nil, err
	}

	// Input order is kept so a repeated path resolves to its last entry.
	entries := make([]gitremote.TreeEntry, 0, len(b.Files))
	for i, f := range b.Files {
		entries = append(entries, gitremote.BlobEntry(f.Path, blobs[i]))
	}
	tree, err := steps.Value(p, StepCreateTree, func(ctx context.Context) (string, error) {
		return o.remote.CreateTree(ctx, baseTree, entries)
	})
	if err != nil {
		return nil, err
	}

	commit, err := steps.Value(p, StepCreateCommit, func(ctx context.Context) (string, error) {
		return o.remote.CreateCommit(ctx, b.Message, tree, head)
	})
	if err != nil {
		return nil, err
	}

	if o.concurrency == RejectOnHeadMoved {
		if err := p.Run(StepCheckHead, func(ctx context.Context) error {
			current, err := o.remote.BranchHead(ctx, b.Branch)
			if err != nil {
				return err
			}
			if current != head {
				return fmt.Errorf("%w: %s moved from %s to %s", ErrHeadMoved, b.Branch, head, current)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if err := p.Run(StepUpdateRef, func(ctx context.Context) error {
		err := o.remote.UpdateBranch(ctx, b.Branch, commit)
		if gitremote.IsStatus(err, http.StatusUnprocessableEntity) {
			// Ref updates are never forced, so a 422 here means the branch
			// gained commits after resolve-head.
			return fmt.Errorf("%w: %w", ErrHeadMoved, err)
		}
		return err
	}); err != nil {
		return nil, err
	}

	o.cache.Invalidate(b.Branch)
	clog.FromContext(ctx).Infof("Committed %d files to %s as %s (parent %s)", len(b.Files), b.Branch, commit, head)

	return &Result{
		Branch: b.Branch,
		Parent: head,
		Tree:   tree,
		Commit: commit,
		Blobs:  blobs,
	}, nil
}

// createBlobs creates one blob per file concurrently and returns their shas
// in input order.
func (o *Orchestrator) createBlobs(ctx context.Context, files []File) ([]string, error) {
	shas := make([]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.blobConcurrency)
	for i, f := range files {
		g.Go(func() error {
			sha, err := o.remote.CreateBlob(ctx, f.Content)
			if err != nil {
				return fmt.Errorf("creating blob for %s: %w", f.Path, err)
			}
			if o.verifyBlobs {
				if want := BlobHash(f.Content); sha != want {
					return fmt.Errorf("blob for %s: remote returned %s, content hashes to %s", f.Path, sha, want)
				}
			}
			shas[i] = sha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shas, nil
}

// BlobHash returns the git object id of content stored as a blob.
func BlobHash(content string) string {
	return plumbing.ComputeHash(plumbing.BlobObject, []byte(content)).String()
}
