/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main serves the translation workflow over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/translationflow/internal/config"
	"chainguard.dev/translationflow/internal/logging"
	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx, nil)
	if err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	log, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		clog.FatalContextf(ctx, "setting up logging: %v", err)
	}
	defer closer.Close()
	ctx = clog.WithLogger(ctx, log)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := newService(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "building service: %v", err)
	}
	go svc.pruneCache(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.WarnContextf(ctx, "shutting down: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Serving %s/%s (main branch %s) on port %d", cfg.Owner, cfg.Repository, cfg.MainBranch, cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}
