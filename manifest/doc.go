/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package manifest describes the translatable assets of the repository and
// resolves them to download URLs at a branch or commit.
//
// Resolved lists for branch tips are cached with a time to live. A commit to
// a branch invalidates its entry, and a read that started before the
// invalidation is not allowed to repopulate it.
package manifest
