/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"time"

	"chainguard.dev/translationflow/api"
	"chainguard.dev/translationflow/branchcommit"
	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/config"
	"chainguard.dev/translationflow/internal/retry"
	"chainguard.dev/translationflow/manifest"
	"chainguard.dev/translationflow/translationunit"
	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"
)

// service is the wired set of workflow components.
type service struct {
	router *gin.Engine
	cache  *manifest.Cache
}

func newService(ctx context.Context, cfg *config.Config) (*service, error) {
	var opts []gitremote.Option
	if cfg.GitHubAPIURL != "" {
		opts = append(opts, gitremote.WithBaseURL(cfg.GitHubAPIURL))
	}
	if cfg.GitHubGraphQLURL != "" {
		opts = append(opts, gitremote.WithGraphQLURL(cfg.GitHubGraphQLURL))
	}
	client, err := gitremote.New(cfg.Owner, cfg.Repository, opts...)
	if err != nil {
		return nil, err
	}

	descriptors, err := cfg.Descriptors()
	if err != nil {
		return nil, err
	}
	cache := manifest.NewCache(manifest.WithTTL(cfg.FilesCacheTTL))
	resolver, err := manifest.NewResolver(client, cache, cfg.MainBranch, descriptors)
	if err != nil {
		return nil, err
	}
	orchestrator, err := branchcommit.New(client, cache, branchcommit.WithConcurrency(cfg.Concurrency()))
	if err != nil {
		return nil, err
	}
	units, err := translationunit.New(client, cfg.Lifecycle())
	if err != nil {
		return nil, err
	}

	reads := retry.DefaultPolicy()
	reads.MaxRetries = cfg.ReadMaxRetries
	h, err := api.NewHandler(units, resolver, orchestrator, api.WithReadRetry(reads))
	if err != nil {
		return nil, err
	}

	clog.FromContext(ctx).Infof("Loaded %d file descriptors, commit concurrency %s, cache TTL %v",
		len(descriptors), cfg.Concurrency(), cfg.FilesCacheTTL)
	return &service{router: api.NewRouter(h), cache: cache}, nil
}

// pruneCache drops expired manifest entries once per TTL until ctx is done.
func (s *service) pruneCache(ctx context.Context) {
	ticker := time.NewTicker(s.cache.TTL())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.Prune(); n > 0 {
				clog.FromContext(ctx).Debugf("Pruned %d expired manifest entries", n)
			}
		}
	}
}
