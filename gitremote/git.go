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
	"time"

	"github.com/google/go-github/v84/github"
)

// Tree entry constants for regular file blobs.
const (
	ModeFile = "100644"
	TypeBlob = "blob"
)

// TreeEntry is one path in a tree creation request.
type TreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// BlobEntry returns a regular file tree entry pointing at a blob.
func BlobEntry(path, sha string) TreeEntry {
	return TreeEntry{Path: path, Mode: ModeFile, Type: TypeBlob, SHA: sha}
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

type createBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type createTreeRequest struct {
	BaseTree string      `json:"base_tree"`
	Tree     []TreeEntry `json:"tree"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

// BranchHead returns the commit sha the branch currently points at.
func (c *Client) BranchHead(ctx context.Context, branch string) (string, error) {
	start := time.Now()
	ref, resp, err := c.rest(ctx).Git.GetRef(ctx, c.owner, c.repo, "heads/"+branch)
	if err := c.finish("get-ref", start, resp, err); err != nil {
		return "", err
	}
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("get-ref: branch %q has no object", branch)
	}
	return sha, nil
}

// CommitTree returns the tree sha of a commit.
func (c *Client) CommitTree(ctx context.Context, sha string) (string, error) {
	start := time.Now()
	commit, resp, err := c.rest(ctx).Git.GetCommit(ctx, c.owner, c.repo, sha)
	if err := c.finish("get-commit", start, resp, err); err != nil {
		return "", err
	}
	tree := commit.GetTree().GetSHA()
	if tree == "" {
		return "", fmt.Errorf("get-commit: commit %s has no tree", sha)
	}
	return tree, nil
}

// CreateBranch creates refs/heads/<branch> pointing at sha.
func (c *Client) CreateBranch(ctx context.Context, branch, sha string) error {
	return c.send(ctx, "create-ref", http.MethodPost, "git/refs", createRefRequest{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	}, nil)
}

// UpdateBranch moves the branch to sha. The update is never forced, so the
// remote rejects it unless sha descends from the current head.
func (c *Client) UpdateBranch(ctx context.Context, branch, sha string) error {
	return c.send(ctx, "update-ref", http.MethodPatch, "git/refs/heads/"+escapeRef(branch), updateRefRequest{
		SHA: sha,
	}, nil)
}

// CreateBlob stores content as a blob and returns its sha.
func (c *Client) CreateBlob(ctx context.Context, content string) (string, error) {
	var blob github.Blob
	if err := c.send(ctx, "create-blob", http.MethodPost, "git/blobs", createBlobRequest{
		Content:  content,
		Encoding: "utf-8",
	}, &blob); err != nil {
		return "", err
	}
	if blob.GetSHA() == "" {
		return "", errors.New("create-blob: response has no sha")
	}
	return blob.GetSHA(), nil
}

// CreateTree creates a tree layered on baseTree and returns its sha.
// Entries are sent in order; the remote keeps the last entry for a path.
func (c *Client) CreateTree(ctx context.Context, baseTree string, entries []TreeEntry) (string, error) {
	var tree github.Tree
	if err := c.send(ctx, "create-tree", http.MethodPost, "git/trees", createTreeRequest{
		BaseTree: baseTree,
		Tree:     entries,
	}, &tree); err != nil {
		return "", err
	}
	if tree.GetSHA() == "" {
		return "", errors.New("create-tree: response has no sha")
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object and returns its sha.
func (c *Client) CreateCommit(ctx context.Context, message, tree string, parents ...string) (string, error) {
	if parents == nil {
		parents = []string{}
	}
	var commit github.Commit
	if err := c.send(ctx, "create-commit", http.MethodPost, "git/commits", createCommitRequest{
		Message: message,
		Tree:    tree,
		Parents: parents,
	}, &commit); err != nil {
		return "", err
	}
	if commit.GetSHA() == "" {
		return "", errors.New("create-commit: response has no sha")
	}
	return commit.GetSHA(), nil
}

// MergeBase returns the merge-base commit sha of base and head.
func (c *Client) MergeBase(ctx context.Context, base, head string) (string, error) {
	start := time.Now()
	cmp, resp, err := c.rest(ctx).Repositories.CompareCommits(ctx, c.owner, c.repo, base, head, nil)
	if err := c.finish("compare", start, resp, err); err != nil {
		return "", err
	}
	sha := cmp.GetMergeBaseCommit().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("compare: no merge base between %s and %s", base, head)
	}
	return sha, nil
}
