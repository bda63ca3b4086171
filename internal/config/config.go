/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads the service configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"chainguard.dev/translationflow/branchcommit"
	"chainguard.dev/translationflow/manifest"
	"chainguard.dev/translationflow/translationunit"
	"github.com/sethvargo/go-envconfig"
)

// ConfigurationError reports missing or invalid configuration. It is fatal
// at startup.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config is the environment of the translationflow binaries.
type Config struct {
	Port int `env:"PORT,default=8080"`

	Owner      string `env:"REPOSITORY_OWNER,required"`
	Repository string `env:"REPOSITORY_NAME,required"`
	MainBranch string `env:"REPOSITORY_MAIN_BRANCH,required"`

	TranslationLabel string `env:"TRANSLATION_LABEL_NAME,required"`
	WIPLabel         string `env:"TRANSLATION_WIP_LABEL_NAME,required"`
	ReviewLabel      string `env:"TRANSLATION_REVIEW_LABEL_NAME,required"`

	FilesCacheTTL time.Duration `env:"FILES_CACHE_TTL,default=1h"`
	// FileDescriptors is an optional YAML file replacing the built-in
	// descriptor table.
	FileDescriptors string `env:"FILE_DESCRIPTORS"`

	GitHubAPIURL     string `env:"GITHUB_API_URL"`
	GitHubGraphQLURL string `env:"GITHUB_GRAPHQL_URL"`

	CommitConcurrency string `env:"COMMIT_CONCURRENCY,default=unserialized"`
	ReadMaxRetries    int    `env:"READ_MAX_RETRIES,default=2"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
	LogFile  string `env:"LOG_FILE"`
}

// Load reads the configuration through lookuper, or the process environment
// when lookuper is nil, and validates it.
func Load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.FilesCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("FILES_CACHE_TTL must be positive, got %v", c.FilesCacheTTL))
	}
	if c.ReadMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("READ_MAX_RETRIES must not be negative, got %d", c.ReadMaxRetries))
	}
	if _, err := branchcommit.ParseConcurrency(c.CommitConcurrency); err != nil {
		errs = append(errs, fmt.Errorf("COMMIT_CONCURRENCY: %w", err))
	}
	if err := manifest.ValidateBranch(c.MainBranch); err != nil {
		errs = append(errs, fmt.Errorf("REPOSITORY_MAIN_BRANCH: %w", err))
	}
	for name, u := range map[string]string{"GITHUB_API_URL": c.GitHubAPIURL, "GITHUB_GRAPHQL_URL": c.GitHubGraphQLURL} {
		if u == "" {
			continue
		}
		if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", name, u))
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// Concurrency returns the parsed commit concurrency mode.
func (c *Config) Concurrency() branchcommit.Concurrency {
	cc, _ := branchcommit.ParseConcurrency(c.CommitConcurrency)
	return cc
}

// Lifecycle returns the translation unit configuration.
func (c *Config) Lifecycle() translationunit.Config {
	return translationunit.Config{
		MainBranch: c.MainBranch,
		Labels: translationunit.Labels{
			Translation: c.TranslationLabel,
			WIP:         c.WIPLabel,
			Review:      c.ReviewLabel,
		},
	}
}

// Descriptors returns the configured descriptor table.
func (c *Config) Descriptors() ([]manifest.FileDescriptor, error) {
	if c.FileDescriptors == "" {
		return manifest.DefaultDescriptors(), nil
	}
	ds, err := manifest.LoadDescriptors(c.FileDescriptors)
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("FILE_DESCRIPTORS: %w", err)}
	}
	return ds, nil
}
