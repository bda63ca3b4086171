/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package branchcommit

import "fmt"

// Concurrency selects how overlapping batches on one branch are handled.
type Concurrency int

const (
	// Unserialized lets batches race; the remote rejects the slower ref
	// update because updates are never forced.
	Unserialized Concurrency = iota
	// SerializePerBranch runs batches for the same branch one at a time
	// within this process.
	SerializePerBranch
	// RejectOnHeadMoved re-reads the head before updating the ref and fails
	// with ErrHeadMoved if it changed.
	RejectOnHeadMoved
)

func (c Concurrency) String() string {
	switch c {
	case Unserialized:
		return "unserialized"
	case SerializePerBranch:
		return "serialize"
	case RejectOnHeadMoved:
		return "reject-on-head-moved"
	default:
		return fmt.Sprintf("Concurrency(%d)", int(c))
	}
}

// ParseConcurrency parses the String form of a Concurrency.
func ParseConcurrency(s string) (Concurrency, error) {
	for _, c := range []Concurrency{Unserialized, SerializePerBranch, RejectOnHeadMoved} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown commit concurrency %q (want unserialized, serialize or reject-on-head-moved)", s)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency selects the handling of overlapping batches.
func WithConcurrency(c Concurrency) Option {
	return func(o *Orchestrator) { o.concurrency = c }
}

// WithBlobConcurrency bounds the number of blobs created at once.
func WithBlobConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.blobConcurrency = n
		}
	}
}

// WithBlobVerification toggles checking each returned blob sha against the
// locally computed object id. It is on by default.
func WithBlobVerification(enabled bool) Option {
	return func(o *Orchestrator) { o.verifyBlobs = enabled }
}
