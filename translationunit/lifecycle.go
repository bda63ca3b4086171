/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package translationunit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/steps"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"go.opentelemetry.io/otel/attribute"
)

// Step names used in step-tagged errors.
const (
	StepResolveMainHead   = "resolve-main-head"
	StepCreateBranch      = "create-branch"
	StepReadMarker        = "read-marker"
	StepWriteMarker       = "write-marker"
	StepCreatePullRequest = "create-pull-request"
	StepAddLabels         = "add-labels"
	StepFindPullRequest   = "find-pull-request"
	StepRemoveWIPLabel    = "remove-wip-label"
	StepAddReviewLabels   = "add-review-labels"
	StepApprove           = "approve"
	StepReadStatus        = "read-status"
)

const (
	// DefaultMarkerPath is the file rewritten on every new branch so that it
	// diverges from the main branch.
	DefaultMarkerPath = ".branch-identifier"
	// DefaultApprovalBody is the body of approving reviews.
	DefaultApprovalBody = "LGTM 👍"
)

// ErrInvalidTitle is returned by Create for an empty title.
var ErrInvalidTitle = errors.New("translation unit title is required")

// Remote is the subset of the remote client the lifecycle drives.
type Remote interface {
	ListPullRequests(ctx context.Context, f gitremote.PullRequestFilter) ([]*github.PullRequest, error)
	CreatePullRequest(ctx context.Context, title, head, base string) (*github.PullRequest, error)
	BranchHead(ctx context.Context, branch string) (string, error)
	CreateBranch(ctx context.Context, branch, sha string) error
	Contents(ctx context.Context, path, ref string) (*github.RepositoryContent, error)
	PutFile(ctx context.Context, path string, u gitremote.FileUpdate) (string, error)
	AddLabels(ctx context.Context, number int, labels ...string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	CreateLabel(ctx context.Context, l gitremote.Label) error
	Approve(ctx context.Context, number int, body string) error
	PullRequestStatus(ctx context.Context, head, base string) (*gitremote.PullRequestStatus, error)
}

// Labels names the three workflow labels.
type Labels struct {
	Translation string
	WIP         string
	Review      string
}

// Config is the repository-level configuration of the lifecycle.
type Config struct {
	MainBranch string
	Labels     Labels
}

func (c Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.MainBranch) == "" {
		errs = append(errs, errors.New("main branch is required"))
	}
	if strings.TrimSpace(c.Labels.Translation) == "" {
		errs = append(errs, errors.New("translation label is required"))
	}
	if strings.TrimSpace(c.Labels.WIP) == "" {
		errs = append(errs, errors.New("wip label is required"))
	}
	if strings.TrimSpace(c.Labels.Review) == "" {
		errs = append(errs, errors.New("review label is required"))
	}
	return errors.Join(errs...)
}

// Lifecycle drives translation units through their label-based stages.
type Lifecycle struct {
	remote       Remote
	cfg          Config
	now          func() time.Time
	markerPath   string
	approvalBody string
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock replaces time.Now when naming new branches.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// WithMarkerPath overrides the marker file path. Empty keeps the default.
func WithMarkerPath(path string) Option {
	return func(l *Lifecycle) {
		if path != "" {
			l.markerPath = path
		}
	}
}

// WithApprovalBody overrides the body of approving reviews. Empty keeps the
// default.
func WithApprovalBody(body string) Option {
	return func(l *Lifecycle) {
		if body != "" {
			l.approvalBody = body
		}
	}
}

// New returns a Lifecycle for the configured repository.
func New(remote Remote, cfg Config, opts ...Option) (*Lifecycle, error) {
	if remote == nil {
		return nil, errors.New("remote cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := &Lifecycle{
		remote:       remote,
		cfg:          cfg,
		now:          time.Now,
		markerPath:   DefaultMarkerPath,
		approvalBody: DefaultApprovalBody,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// List returns one page of pull requests targeting the main branch, in any
// state. Pages are 1-based; zero means the first page.
func (l *Lifecycle) List(ctx context.Context, page int) ([]*github.PullRequest, error) {
	if page < 0 {
		return nil, fmt.Errorf("page must not be negative, got %d", page)
	}
	prs, err := l.remote.ListPullRequests(ctx, gitremote.PullRequestFilter{
		State: "all",
		Base:  l.cfg.MainBranch,
		Page:  page,
	})
	if err != nil {
		return nil, fmt.Errorf("listing translation units: %w", err)
	}
	clog.FromContext(ctx).Infof("Listed %d translation units on %s", len(prs), l.cfg.MainBranch)
	return prs, nil
}

// BranchName returns the branch identifier for a unit created at t.
func BranchName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%03d", t.Format("2006-01-02-15-04-05"), t.Nanosecond()/int(time.Millisecond))
}

// Create starts a new translation unit: a timestamp-named branch off the
// main branch, a marker commit so the branch diverges, and a labeled draft
// pull request. Nothing is rolled back if a later step fails.
func (l *Lifecycle) Create(ctx context.Context, title string) (*github.PullRequest, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}
	branch := BranchName(l.now())

	p, ctx := steps.Start(ctx, "create-unit", attribute.String("branch", branch))
	defer p.End()

	head, err := steps.Value(p, StepResolveMainHead, func(ctx context.Context) (string, error) {
		return l.remote.BranchHead(ctx, l.cfg.MainBranch)
	})
	if err != nil {
		return nil, err
	}

	if err := p.Run(StepCreateBranch, func(ctx context.Context) error {
		return l.remote.CreateBranch(ctx, branch, head)
	}); err != nil {
		return nil, err
	}

	markerSHA, err := steps.Value(p, StepReadMarker, func(ctx context.Context) (string, error) {
		marker, err := l.remote.Contents(ctx, l.markerPath, branch)
		switch {
		case gitremote.IsNotFound(err):
			clog.FromContext(ctx).Infof("Marker %s does not exist yet, creating it", l.markerPath)
			return "", nil
		case err != nil:
			return "", err
		}
		return marker.GetSHA(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := p.Run(StepWriteMarker, func(ctx context.Context) error {
		_, err := l.remote.PutFile(ctx, l.markerPath, gitremote.FileUpdate{
			Branch:  branch,
			Message: "Branch identifier for " + branch,
			Content: []byte(branch),
			SHA:     markerSHA,
		})
		return err
	}); err != nil {
		return nil, err
	}

	pr, err := steps.Value(p, StepCreatePullRequest, func(ctx context.Context) (*github.PullRequest, error) {
		return l.remote.CreatePullRequest(ctx, title, branch, l.cfg.MainBranch)
	})
	if err != nil {
		return nil, err
	}

	if err := p.Run(StepAddLabels, func(ctx context.Context) error {
		return l.remote.AddLabels(ctx, pr.GetNumber(), l.cfg.Labels.Translation, l.cfg.Labels.WIP)
	}); err != nil {
		return nil, err
	}

	clog.FromContext(ctx).Infof("Created translation unit #%d %q on %s", pr.GetNumber(), title, branch)
	return pr, nil
}

// SubmitToReview moves a unit from draft to review: the wip label is
// removed and the review label added.
func (l *Lifecycle) SubmitToReview(ctx context.Context, branch string) error {
	p, ctx := steps.Start(ctx, "submit-to-review", attribute.String("branch", branch))
	defer p.End()

	pr, err := steps.Value(p, StepFindPullRequest, func(ctx context.Context) (*github.PullRequest, error) {
		return l.findPullRequest(ctx, branch)
	})
	if err != nil {
		return err
	}

	if hasLabel(pr, l.cfg.Labels.WIP) {
		if err := p.Run(StepRemoveWIPLabel, func(ctx context.Context) error {
			return l.remote.RemoveLabel(ctx, pr.GetNumber(), l.cfg.Labels.WIP)
		}); err != nil {
			return err
		}
	} else {
		p.Skip(StepRemoveWIPLabel, "label "+l.cfg.Labels.WIP+" is not set")
	}

	if err := p.Run(StepAddReviewLabels, func(ctx context.Context) error {
		return l.remote.AddLabels(ctx, pr.GetNumber(), l.cfg.Labels.Translation, l.cfg.Labels.Review)
	}); err != nil {
		return err
	}

	clog.FromContext(ctx).Infof("Submitted translation unit #%d for review", pr.GetNumber())
	return nil
}

// Approve records an approving review on the unit's pull request. Labels
// are left as they are.
func (l *Lifecycle) Approve(ctx context.Context, branch string) error {
	p, ctx := steps.Start(ctx, "approve-unit", attribute.String("branch", branch))
	defer p.End()

	pr, err := steps.Value(p, StepFindPullRequest, func(ctx context.Context) (*github.PullRequest, error) {
		return l.findPullRequest(ctx, branch)
	})
	if err != nil {
		return err
	}

	if err := p.Run(StepApprove, func(ctx context.Context) error {
		return l.remote.Approve(ctx, pr.GetNumber(), l.approvalBody)
	}); err != nil {
		return err
	}

	clog.FromContext(ctx).Infof("Approved translation unit #%d", pr.GetNumber())
	return nil
}

// findPullRequest returns the open pull request from branch into the main
// branch, or a *LookupError if there is none.
func (l *Lifecycle) findPullRequest(ctx context.Context, branch string) (*github.PullRequest, error) {
	if strings.TrimSpace(branch) == "" {
		return nil, &LookupError{Branch: branch}
	}
	prs, err := l.remote.ListPullRequests(ctx, gitremote.PullRequestFilter{
		State: "open",
		Head:  branch,
		Base:  l.cfg.MainBranch,
	})
	if err != nil {
		return nil, err
	}
	// The head filter is advisory on some servers; check it here too.
	for _, pr := range prs {
		if pr.GetHead().GetRef() == branch {
			return pr, nil
		}
	}
	return nil, &LookupError{Branch: branch}
}

func hasLabel(pr *github.PullRequest, name string) bool {
	for _, l := range pr.Labels {
		if l.GetName() == name {
			return true
		}
	}
	return false
}
