/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitremote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

// PullRequestFilter narrows ListPullRequests. Head is a branch name in the
// client's repository; it is qualified with the owner on the wire.
type PullRequestFilter struct {
	State string
	Head  string
	Base  string
	// Page is 1-based; zero means the first page.
	Page int
}

// Label describes a repository label.
type Label struct {
	Name        string
	Color       string
	Description string
}

// PullRequestStatus is the workflow-relevant state of an open pull request.
type PullRequestStatus struct {
	Number         int
	Title          string
	URL            string
	Labels         []string
	ReviewDecision string
	Approvals      int
}

// ListPullRequests returns one page (up to 100) of pull requests.
func (c *Client) ListPullRequests(ctx context.Context, f PullRequestFilter) ([]*github.PullRequest, error) {
	opts := &github.PullRequestListOptions{
		State:       f.State,
		Base:        f.Base,
		ListOptions: github.ListOptions{Page: f.Page, PerPage: 100},
	}
	if f.Head != "" {
		opts.Head = c.owner + ":" + f.Head
	}

	start := time.Now()
	prs, resp, err := c.rest(ctx).PullRequests.List(ctx, c.owner, c.repo, opts)
	if err := c.finish("list-pulls", start, resp, err); err != nil {
		return nil, err
	}
	return prs, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, title, head, base string) (*github.PullRequest, error) {
	start := time.Now()
	pr, resp, err := c.rest(ctx).PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
	})
	if err := c.finish("create-pull", start, resp, err); err != nil {
		return nil, err
	}
	return pr, nil
}

// AddLabels adds labels to a pull request, keeping the ones it already has.
func (c *Client) AddLabels(ctx context.Context, number int, labels ...string) error {
	start := time.Now()
	_, resp, err := c.rest(ctx).Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	return c.finish("add-labels", start, resp, err)
}

// RemoveLabel removes a single label from a pull request.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	start := time.Now()
	resp, err := c.rest(ctx).Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label)
	return c.finish("remove-label", start, resp, err)
}

// CreateLabel creates a repository label. An existing label yields a 422
// RemoteError (see IsAlreadyExists).
func (c *Client) CreateLabel(ctx context.Context, l Label) error {
	start := time.Now()
	_, resp, err := c.rest(ctx).Issues.CreateLabel(ctx, c.owner, c.repo, &github.Label{
		Name:        github.Ptr(l.Name),
		Color:       github.Ptr(l.Color),
		Description: github.Ptr(l.Description),
	})
	return c.finish("create-label", start, resp, err)
}

// Approve submits an approving review with the given body.
func (c *Client) Approve(ctx context.Context, number int, body string) error {
	start := time.Now()
	_, resp, err := c.rest(ctx).PullRequests.CreateReview(ctx, c.owner, c.repo, number, &github.PullRequestReviewRequest{
		Body:  github.Ptr(body),
		Event: github.Ptr("APPROVE"),
	})
	return c.finish("create-review", start, resp, err)
}

// PullRequestStatus returns the labels and review state of the open pull
// request from head into base, in a single GraphQL query. It returns nil
// when no such pull request is open.
func (c *Client) PullRequestStatus(ctx context.Context, head, base string) (*PullRequestStatus, error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number         int
					Title          string
					Url            string
					ReviewDecision string
					Labels         struct {
						Nodes []struct {
							Name string
						}
					} `graphql:"labels(first: 100)"`
					Reviews struct {
						TotalCount int
					} `graphql:"reviews(states: [APPROVED])"`
				}
			} `graphql:"pullRequests(headRefName: $headRef, baseRefName: $baseRef, states: [OPEN], first: 1)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	variables := map[string]any{
		"owner":   githubv4.String(c.owner),
		"repo":    githubv4.String(c.repo),
		"headRef": githubv4.String(head),
		"baseRef": githubv4.String(base),
	}

	rec := &statusRecorder{base: c.httpFor(ctx).Transport}
	gql := githubv4.NewEnterpriseClient(c.graphQLURL, &http.Client{Transport: rec})

	start := time.Now()
	err := gql.Query(ctx, &query, variables)
	code := "error"
	if rec.code != 0 {
		code = fmt.Sprint(rec.code)
	}
	observe("graphql", code, time.Since(start))
	if err != nil {
		if rec.code != 0 && (rec.code < 200 || rec.code >= 300) {
			return nil, &RemoteError{Op: "graphql", StatusCode: rec.code, Status: rec.status, Body: rec.body}
		}
		return nil, fmt.Errorf("graphql: %w", err)
	}

	if len(query.Repository.PullRequests.Nodes) == 0 {
		return nil, nil
	}
	pr := query.Repository.PullRequests.Nodes[0]
	st := &PullRequestStatus{
		Number:         pr.Number,
		Title:          pr.Title,
		URL:            pr.Url,
		ReviewDecision: pr.ReviewDecision,
		Approvals:      pr.Reviews.TotalCount,
	}
	for _, l := range pr.Labels.Nodes {
		st.Labels = append(st.Labels, l.Name)
	}
	return st, nil
}

// statusRecorder remembers the status and body of the last response so a
// failed GraphQL call can be reported as a RemoteError.
type statusRecorder struct {
	base   http.RoundTripper
	code   int
	status string
	body   string
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	r.code, r.status = resp.StatusCode, resp.Status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		r.body = string(bytes.TrimSpace(data))
		resp.Body = io.NopCloser(bytes.NewReader(data))
	}
	return resp, nil
}
