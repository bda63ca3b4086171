/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitremote

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// Credential is the caller-supplied Authorization value, e.g. "Bearer abc"
// or "token abc". A bare token is sent with the Bearer scheme.
type Credential string

type credentialKey struct{}

// WithCredential returns a context carrying the credential to forward on
// every remote call made with it.
func WithCredential(ctx context.Context, cred Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFromContext returns the credential stored by WithCredential, or
// the empty credential.
func CredentialFromContext(ctx context.Context) Credential {
	cred, _ := ctx.Value(credentialKey{}).(Credential)
	return cred
}

// token splits the credential into scheme and value. The scheme is kept
// as-is so the header reaching the remote matches what the caller sent.
func (c Credential) token() *oauth2.Token {
	s := strings.TrimSpace(string(c))
	scheme, value, ok := strings.Cut(s, " ")
	if !ok {
		return &oauth2.Token{AccessToken: s}
	}
	return &oauth2.Token{TokenType: scheme, AccessToken: strings.TrimSpace(value)}
}

// empty reports whether the credential carries no token at all.
func (c Credential) empty() bool {
	return c.token().AccessToken == ""
}
