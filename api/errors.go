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
	"chainguard.dev/translationflow/internal/steps"
	"chainguard.dev/translationflow/manifest"
	"chainguard.dev/translationflow/translationunit"
	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error string `json:"error"`
	// Step is the orchestration step that failed, when known.
	Step string `json:"step,omitempty"`
	// Status and Body echo the remote response for upstream failures.
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error()})
}

// statusFor maps a workflow error to the response status code.
func statusFor(err error) int {
	var (
		lookup *translationunit.LookupError
		remote *gitremote.RemoteError
	)
	switch {
	case errors.Is(err, branchcommit.ErrInvalidBatch),
		errors.Is(err, manifest.ErrInvalidBranch),
		errors.Is(err, translationunit.ErrInvalidTitle):
		return http.StatusBadRequest
	case errors.As(err, &lookup):
		return http.StatusNotFound
	// Checked before RemoteError: a rejected ref update carries both.
	case errors.Is(err, branchcommit.ErrHeadMoved):
		return http.StatusConflict
	case errors.As(err, &remote):
		if remote.StatusCode == http.StatusUnauthorized || remote.StatusCode == http.StatusForbidden {
			return remote.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error(), Step: steps.Name(err)}
	var remote *gitremote.RemoteError
	if errors.As(err, &remote) {
		body.Status = remote.StatusCode
		body.Body = remote.Body
	}

	log := clog.FromContext(c.Request.Context())
	if code >= http.StatusInternalServerError {
		log.Errorf("Request failed with %d: %v", code, err)
	} else {
		log.Warnf("Request rejected with %d: %v", code, err)
	}
	c.AbortWithStatusJSON(code, body)
}
