/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package branchcommit writes a batch of files to a branch as a single
// commit using the remote git data primitives: blobs, a tree layered on the
// current base tree, a commit parented on the observed head, then a ref
// update. A successful batch invalidates the branch's cached manifest before
// returning.
//
// Failures are reported as *steps.Error values naming the failing step and
// wrapping the remote error.
package branchcommit
