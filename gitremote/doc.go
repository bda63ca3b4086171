/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitremote is a thin typed client for the git-hosting API endpoints
// the translation workflow depends on: refs, commits, trees, blobs, file
// contents, comparisons, pull requests, labels and reviews.
//
// Every method issues exactly one outbound request and never retries. The
// caller's credential is read from the context (see WithCredential) and
// forwarded unchanged, so a Client can be shared across requests made on
// behalf of different users:
//
//	ctx = gitremote.WithCredential(ctx, gitremote.Credential(r.Header.Get("Authorization")))
//	head, err := client.BranchHead(ctx, "main")
//
// A non-2xx response is reported as a *RemoteError carrying the status and
// the raw response body.
package gitremote
