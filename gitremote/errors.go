/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitremote

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v84/github"
)

// RemoteError is returned when the git-hosting API answers with a non-2xx
// status.
type RemoteError struct {
	// Op names the client operation that failed, e.g. "create-tree".
	Op         string
	StatusCode int
	// Status is the status line text, e.g. "422 Unprocessable Entity".
	Status string
	// Body is the raw response body.
	Body string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Body)
}

// IsStatus reports whether err wraps a RemoteError with the given status code.
func IsStatus(err error, code int) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == code
}

// IsNotFound reports whether err is a 404 from the remote.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsAlreadyExists reports whether err is a 422 validation failure, which the
// remote uses for resources that already exist.
func IsAlreadyExists(err error) bool {
	return IsStatus(err, http.StatusUnprocessableEntity)
}

// Temporary reports whether err is a rate limit or server-side failure that
// an idempotent caller may retry.
func Temporary(err error) bool {
	var re *RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusTooManyRequests || re.StatusCode >= http.StatusInternalServerError
}

// wrapError converts the result of a go-github call into the package's error
// taxonomy. Transport and decoding failures keep their original error.
func wrapError(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp == nil || resp.Response == nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}

	re := &RemoteError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	// go-github re-populates the body after parsing the error response.
	if resp.Body != nil {
		if data, readErr := io.ReadAll(resp.Body); readErr == nil {
			re.Body = strings.TrimSpace(string(data))
		}
	}
	if re.Body == "" {
		var er *github.ErrorResponse
		if errors.As(err, &er) {
			re.Body = er.Message
		}
	}
	return re
}
