/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package api exposes the translation workflow as JSON over HTTP.
//
// Every request runs with the caller's Authorization header as the remote
// credential; the service holds no credential of its own. Failures are
// mapped to status codes by error type: invalid input is 400, a branch with
// no open pull request is 404, a commit that lost a race is 409 and an
// upstream failure is 502 with the remote status and body echoed.
package api
