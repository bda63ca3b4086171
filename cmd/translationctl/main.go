/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main is an operator CLI for the translation workflow.
//
//	translationctl list [-page N]
//	translationctl status <branch>
//	translationctl setup-labels
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"chainguard.dev/translationflow/gitremote"
	"chainguard.dev/translationflow/internal/config"
	"chainguard.dev/translationflow/internal/logging"
	"chainguard.dev/translationflow/translationunit"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sethvargo/go-envconfig"
)

type credentials struct {
	Token string `env:"GITHUB_TOKEN,required"`
}

var errUsage = errors.New("usage: translationctl list [-page N] | status <branch> | setup-labels")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log, closer, err := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	ctx = clog.WithLogger(ctx, log)

	if err := run(ctx, os.Args[1:], os.Stdout, envconfig.OsLookuper()); err != nil {
		clog.FatalContextf(ctx, "%v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer, lookuper envconfig.Lookuper) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load(ctx, lookuper)
	if err != nil {
		return err
	}
	var creds credentials
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &creds, Lookuper: lookuper}); err != nil {
		return &config.ConfigurationError{Err: err}
	}
	ctx = gitremote.WithCredential(ctx, gitremote.Credential(creds.Token))

	var opts []gitremote.Option
	if cfg.GitHubAPIURL != "" {
		opts = append(opts, gitremote.WithBaseURL(cfg.GitHubAPIURL))
	}
	if cfg.GitHubGraphQLURL != "" {
		opts = append(opts, gitremote.WithGraphQLURL(cfg.GitHubGraphQLURL))
	}
	client, err := gitremote.New(cfg.Owner, cfg.Repository, opts...)
	if err != nil {
		return err
	}
	units, err := translationunit.New(client, cfg.Lifecycle())
	if err != nil {
		return err
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		page := fs.Int("page", 1, "page of results, starting at 1")
		if err := fs.Parse(rest); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		prs, err := units.List(ctx, *page)
		if err != nil {
			return err
		}
		return renderList(out, prs)

	case "status":
		if len(rest) != 1 {
			return errUsage
		}
		unit, err := units.Status(ctx, rest[0])
		if err != nil {
			return err
		}
		return renderStatus(out, unit)

	case "setup-labels":
		if len(rest) != 0 {
			return errUsage
		}
		res, err := units.EnsureLabels(ctx)
		if err != nil {
			return err
		}
		return renderLabels(out, units.Definitions(), res)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func renderList(w io.Writer, prs []*github.PullRequest) error {
	table := newTable(w, "#", "Title", "Branch", "State", "Labels")
	for _, pr := range prs {
		labels := make([]string, 0, len(pr.Labels))
		for _, l := range pr.Labels {
			labels = append(labels, l.GetName())
		}
		if err := table.Append([]string{
			strconv.Itoa(pr.GetNumber()),
			pr.GetTitle(),
			pr.GetHead().GetRef(),
			pr.GetState(),
			strings.Join(labels, ", "),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderStatus(w io.Writer, u *translationunit.Unit) error {
	table := newTable(w, "Field", "Value")
	rows := [][]string{
		{"Branch", u.Branch},
		{"Pull request", "#" + strconv.Itoa(u.Number)},
		{"Title", u.Title},
		{"Stage", string(u.Stage)},
		{"Approved", strconv.FormatBool(u.Approved)},
		{"Labels", strings.Join(u.Labels, ", ")},
		{"URL", u.URL},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderLabels(w io.Writer, defs []gitremote.Label, res *translationunit.LabelSetup) error {
	table := newTable(w, "Label", "Color", "Result")
	for _, l := range defs {
		result := "unchanged"
		if slices.Contains(res.CreatedLabels, l.Name) {
			result = "created"
		}
		if err := table.Append([]string{l.Name, "#" + l.Color, result}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, res.Message)
	return err
}
