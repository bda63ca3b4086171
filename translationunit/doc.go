/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package translationunit manages translation units: a branch off the main
// branch paired with a pull request whose labels track the unit's stage.
//
// A unit starts as a draft (translation and wip labels), moves to review
// (translation and review labels) and is approved with a review. Operations
// are multi-step remote sequences; failures are returned as *steps.Error
// naming the step that failed, and earlier steps are not rolled back.
package translationunit
