/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package translationunit

import (
	"errors"
	"fmt"
)

// ErrNoPullRequest is wrapped by every LookupError.
var ErrNoPullRequest = errors.New("no pull request for branch")

// LookupError reports that no open pull request matches a branch.
type LookupError struct {
	Branch string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v %q", ErrNoPullRequest, e.Branch)
}

func (e *LookupError) Unwrap() error { return ErrNoPullRequest }
