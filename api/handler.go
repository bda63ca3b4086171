/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"chainguard.dev/translationflow/branchcommit"
	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/retry"
	"chainguard.dev/translationflow/manifest"
	"chainguard.dev/translationflow/translationunit"
	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v84/github"
)

// Units is the translation unit lifecycle.
type Units interface {
	List(ctx context.Context, page int) ([]*github.PullRequest, error)
	Create(ctx context.Context, title string) (*github.PullRequest, error)
	SubmitToReview(ctx context.Context, branch string) error
	Approve(ctx context.Context, branch string) error
	EnsureLabels(ctx context.Context) (*translationunit.LabelSetup, error)
	Status(ctx context.Context, branch string) (*translationunit.Unit, error)
}

// Manifests resolves the asset manifest of a branch.
type Manifests interface {
	Files(ctx context.Context, branch string) ([]manifest.ResolvedFileEntry, error)
	FilesAtBranchCreation(ctx context.Context, branch string) ([]manifest.ResolvedFileEntry, error)
}

// Committer writes a batch of files to a branch as one commit.
type Committer interface {
	Commit(ctx context.Context, b branchcommit.Batch) (*branchcommit.Result, error)
}

// Handler serves the translation workflow over HTTP.
type Handler struct {
	units     Units
	manifests Manifests
	commits   Committer
	reads     retry.Policy
}

// Option configures a Handler.
type Option func(*Handler)

// WithReadRetry sets the retry policy for idempotent reads. Writes are never
// retried.
func WithReadRetry(p retry.Policy) Option {
	return func(h *Handler) { h.reads = p }
}

// NewHandler returns a Handler over the workflow components.
func NewHandler(units Units, manifests Manifests, commits Committer, opts ...Option) (*Handler, error) {
	if units == nil || manifests == nil || commits == nil {
		return nil, errors.New("units, manifests and commits are required")
	}
	h := &Handler{
		units:     units,
		manifests: manifests,
		commits:   commits,
		reads:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.reads.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

type listQuery struct {
	Page int `form:"page" binding:"omitempty,min=1"`
}

type branchQuery struct {
	Branch string `form:"branch" binding:"required"`
}

type createRequest struct {
	Name string `json:"name" binding:"required"`
}

type branchRequest struct {
	Branch string `json:"branch" binding:"required"`
}

type fileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

type saveFilesRequest struct {
	Branch  string        `json:"branch" binding:"required"`
	Message string        `json:"message" binding:"required"`
	Files   []fileRequest `json:"files" binding:"required,min=1,dive"`
}

var success = gin.H{"success": true}

// List returns the raw pull requests into the main branch.
func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	prs, err := retry.Do(c.Request.Context(), h.reads, "list", gitremote.Temporary,
		func(ctx context.Context) ([]*github.PullRequest, error) {
			return h.units.List(ctx, q.Page)
		})
	if err != nil {
		writeError(c, err)
		return
	}
	if prs == nil {
		prs = []*github.PullRequest{}
	}
	c.JSON(http.StatusOK, prs)
}

// Create starts a translation unit and returns its pull request.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pr, err := h.units.Create(c.Request.Context(), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pr)
}

// Files returns the manifest of a branch, served from cache when fresh.
func (h *Handler) Files(c *gin.Context) {
	h.manifest(c, "files", h.manifests.Files)
}

// FilesAtBranchCreation returns the manifest at the branch's fork point.
func (h *Handler) FilesAtBranchCreation(c *gin.Context) {
	h.manifest(c, "files-at-branch-creation", h.manifests.FilesAtBranchCreation)
}

func (h *Handler) manifest(c *gin.Context, op string, fn func(context.Context, string) ([]manifest.ResolvedFileEntry, error)) {
	var q branchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if err := manifest.ValidateBranch(q.Branch); err != nil {
		badRequest(c, err)
		return
	}
	files, err := retry.Do(c.Request.Context(), h.reads, op, gitremote.Temporary,
		func(ctx context.Context) ([]manifest.ResolvedFileEntry, error) {
			return fn(ctx, q.Branch)
		})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// SaveFiles commits a batch of files to a branch.
func (h *Handler) SaveFiles(c *gin.Context) {
	var req saveFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	batch := branchcommit.Batch{Branch: req.Branch, Message: req.Message}
	for _, f := range req.Files {
		batch.Files = append(batch.Files, branchcommit.File{Path: f.Path, Content: f.Content})
	}
	if _, err := h.commits.Commit(c.Request.Context(), batch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, success)
}

// SubmitToReview moves a unit from draft to review.
func (h *Handler) SubmitToReview(c *gin.Context) {
	h.transition(c, h.units.SubmitToReview)
}

// Approve records an approving review on a unit.
func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, h.units.Approve)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, string) error) {
	var req branchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := fn(c.Request.Context(), req.Branch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, success)
}

// SetupLabels creates the workflow labels the repository is missing.
func (h *Handler) SetupLabels(c *gin.Context) {
	res, err := h.units.EnsureLabels(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Status reports the stage of a unit.
func (h *Handler) Status(c *gin.Context) {
	var q branchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	unit, err := retry.Do(c.Request.Context(), h.reads, "status", gitremote.Temporary,
		func(ctx context.Context) (*translationunit.Unit, error) {
			return h.units.Status(ctx, q.Branch)
		})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, unit)
}
