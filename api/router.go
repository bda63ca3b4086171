/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"chainguard.dev/translationflow/gitremote"
	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "translationflow_http_request_duration_seconds",
		Help:    "Latency of HTTP requests, by route and status code",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "code"},
)

// NewRouter returns the HTTP router of the translation workflow.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), forwardCredential())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tr := router.Group("/translation")
	{
		tr.GET("/list", h.List)
		tr.POST("", h.Create)
		tr.POST("/", h.Create)
		tr.GET("/files", h.Files)
		tr.POST("/files", h.SaveFiles)
		tr.GET("/files-at-branch-creation", h.FilesAtBranchCreation)
		tr.POST("/submit-to-review", h.SubmitToReview)
		tr.POST("/approve", h.Approve)
		tr.POST("/setup-labels", h.SetupLabels)
		tr.GET("/status", h.Status)
	}
	return router
}

// requestLogger puts a request-scoped logger in the request context and
// records the request latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)

		log := clog.FromContext(c.Request.Context()).
			With("request_id", id).
			With("method", c.Request.Method).
			With("route", route)
		c.Request = c.Request.WithContext(clog.WithLogger(c.Request.Context(), log))

		c.Next()

		code := c.Writer.Status()
		elapsed := time.Since(start)
		requestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(code)).Observe(elapsed.Seconds())
		log.Infof("%s %s -> %d in %v", c.Request.Method, c.Request.URL.Path, code, elapsed)
	}
}

// forwardCredential passes the caller's Authorization header, unchanged, to
// every remote call made for the request.
func forwardCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth := c.GetHeader("Authorization"); auth != "" {
			c.Request = c.Request.WithContext(
				gitremote.WithCredential(c.Request.Context(), gitremote.Credential(auth)))
		}
		c.Next()
	}
}
