/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitremote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v84/github"
)

// FileUpdate describes a single-file commit through the contents endpoint.
type FileUpdate struct {
	Branch  string
	Message string
	// Content is the raw file content; it is base64-encoded on the wire.
	Content []byte
	// SHA is the blob sha of the file being replaced. Empty creates the file.
	SHA string
}

// Contents returns the metadata of a file at ref, including its blob sha and
// download URL.
func (c *Client) Contents(ctx context.Context, path, ref string) (*github.RepositoryContent, error) {
	start := time.Now()
	file, dir, resp, err := c.rest(ctx).Repositories.GetContents(ctx, c.owner, c.repo, path, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err := c.finish("get-contents", start, resp, err); err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("get-contents: %s at %s is a directory with %d entries", path, ref, len(dir))
	}
	return file, nil
}

// PutFile creates or replaces a file on a branch with a single commit and
// returns the sha of that commit.
func (c *Client) PutFile(ctx context.Context, path string, u FileUpdate) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(u.Message),
		Content: u.Content,
		Branch:  github.Ptr(u.Branch),
	}
	if u.SHA != "" {
		opts.SHA = github.Ptr(u.SHA)
	}

	start := time.Now()
	res, resp, err := c.rest(ctx).Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	if err := c.finish("put-contents", start, resp, err); err != nil {
		return "", err
	}
	return res.Commit.GetSHA(), nil
}
