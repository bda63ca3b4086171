/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitremote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL    = "https://api.github.com/"
	defaultGraphQLURL = "https://api.github.com/graphql"
)

// Client issues requests against a single repository.
type Client struct {
	owner      string
	repo       string
	baseURL    *url.URL
	graphQLURL string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*config)

type config struct {
	baseURL    string
	graphQLURL string
	httpClient *http.Client
}

// WithBaseURL points the REST calls at a different API root, such as a
// GitHub Enterprise server or a test double. Empty keeps the default.
func WithBaseURL(u string) Option {
	return func(c *config) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithGraphQLURL overrides the GraphQL endpoint. Empty keeps the default.
func WithGraphQLURL(u string) Option {
	return func(c *config) {
		if u != "" {
			c.graphQLURL = u
		}
	}
}

// WithHTTPClient sets the base HTTP client; credentials are layered on top
// of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Client for owner/repo.
func New(owner, repo string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, errors.New("owner is required")
	}
	if strings.TrimSpace(repo) == "" {
		return nil, errors.New("repo is required")
	}

	cfg := &config{
		baseURL:    defaultBaseURL,
		graphQLURL: defaultGraphQLURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !strings.HasSuffix(cfg.baseURL, "/") {
		cfg.baseURL += "/"
	}
	base, err := url.Parse(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if _, err := url.Parse(cfg.graphQLURL); err != nil {
		return nil, fmt.Errorf("parsing graphql url: %w", err)
	}

	return &Client{
		owner:      owner,
		repo:       repo,
		baseURL:    base,
		graphQLURL: cfg.graphQLURL,
		httpClient: cfg.httpClient,
	}, nil
}

// Owner returns the repository owner.
func (c *Client) Owner() string { return c.owner }

// Repo returns the repository name.
func (c *Client) Repo() string { return c.repo }

// httpFor returns an HTTP client that forwards the context's credential.
func (c *Client) httpFor(ctx context.Context) *http.Client {
	cred := CredentialFromContext(ctx)
	if cred.empty() {
		return c.httpClient
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(base, oauth2.StaticTokenSource(cred.token()))
}

// rest returns a go-github client bound to the context's credential.
func (c *Client) rest(ctx context.Context) *github.Client {
	gh := github.NewClient(c.httpFor(ctx))
	gh.BaseURL = c.baseURL
	return gh
}

// send issues a request on an explicit route relative to the repository,
// e.g. "git/blobs", decoding the response into v.
func (c *Client) send(ctx context.Context, op, method, route string, body, v any) error {
	start := time.Now()
	gh := c.rest(ctx)

	u := fmt.Sprintf("repos/%s/%s/%s", url.PathEscape(c.owner), url.PathEscape(c.repo), route)
	req, err := gh.NewRequest(method, u, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}

	resp, err := gh.Do(ctx, req, v)
	return c.finish(op, start, resp, err)
}

// finish records metrics for a completed call and maps its error.
func (c *Client) finish(op string, start time.Time, resp *github.Response, err error) error {
	code := "error"
	if resp != nil && resp.Response != nil {
		code = fmt.Sprint(resp.StatusCode)
	}
	observe(op, code, time.Since(start))
	return wrapError(op, resp, err)
}

// escapeRef escapes each segment of a ref name while keeping its slashes.
func escapeRef(ref string) string {
	parts := strings.Split(ref, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
