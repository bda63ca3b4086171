/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package steps runs an ordered sequence of named remote steps. Each step
// gets its own tracing span and log line, and the first failure stops the
// sequence and is reported tagged with the step that produced it.
package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentation = "chainguard.dev/translationflow/steps"

// Error tags a failure with the pipeline and step that produced it.
type Error struct {
	Pipeline string
	Step     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Pipeline, e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Name returns the step that failed in err's chain, or "" when err did not
// come from a pipeline.
func Name(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Pipeline is one execution of a named sequence of steps.
type Pipeline struct {
	name string
	ctx  context.Context
	span oteltrace.Span

	mu  sync.Mutex
	err error
}

// Start begins a pipeline. The returned context carries the pipeline span
// and should be used for work done outside of Run.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (*Pipeline, context.Context) {
	tr := otel.Tracer(instrumentation, oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, name, oteltrace.WithAttributes(attrs...))

	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, slog.String(string(a.Key), a.Value.Emit()))
	}
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("pipeline", name).With(args...))

	return &Pipeline{name: name, ctx: ctx, span: span}, ctx
}

// Run executes step unless an earlier step failed, in which case it returns
// that failure without calling fn.
func (p *Pipeline) Run(step string, fn func(ctx context.Context) error) error {
	if err := p.Err(); err != nil {
		return err
	}

	tr := otel.Tracer(instrumentation, oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(p.ctx, p.name+"."+step, oteltrace.WithAttributes(
		attribute.String("step", step),
	))
	defer span.End()

	log := clog.FromContext(ctx).With("step", step)
	start := time.Now()
	err := fn(clog.WithLogger(ctx, log))
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warnf("step failed after %v: %v", elapsed, err)

		se := &Error{Pipeline: p.name, Step: step, Err: err}
		p.mu.Lock()
		p.err = se
		p.mu.Unlock()
		err = se
	} else {
		span.SetStatus(codes.Ok, "")
		log.Debugf("step completed in %v", elapsed)
	}
	stepDuration().Record(p.ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", p.name),
		attribute.String("step", step),
		attribute.String("outcome", outcome),
	))
	return err
}

// Skip records that step was deliberately not executed.
func (p *Pipeline) Skip(step, reason string) {
	p.span.AddEvent("skipped", oteltrace.WithAttributes(
		attribute.String("step", step),
		attribute.String("reason", reason),
	))
	clog.FromContext(p.ctx).With("step", step).Infof("step skipped: %s", reason)
}

// Err returns the first step failure, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// End finishes the pipeline span, marking it failed if any step failed.
func (p *Pipeline) End() {
	if err := p.Err(); err != nil {
		p.span.SetStatus(codes.Error, err.Error())
	} else {
		p.span.SetStatus(codes.Ok, "")
	}
	p.span.End()
}

// Value runs a step that produces a value.
func Value[T any](p *Pipeline, step string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Run(step, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

var (
	durationOnce sync.Once
	duration     metric.Float64Histogram
)

// stepDuration lazily creates the step latency histogram, degrading to a
// no-op instrument if the meter cannot create it.
func stepDuration() metric.Float64Histogram {
	durationOnce.Do(func() {
		meter := otel.Meter(instrumentation, metric.WithInstrumentationVersion("1.0.0"))
		h, err := meter.Float64Histogram("translationflow.step.duration",
			metric.WithDescription("Duration of orchestration steps"),
			metric.WithUnit("s"))
		if err != nil {
			slog.Warn("Failed to create step duration histogram, metrics will be disabled", "error", err)
			duration = noop.Float64Histogram{}
			return
		}
		duration = h
	})
	return duration
}
