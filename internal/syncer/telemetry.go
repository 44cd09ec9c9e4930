// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package syncer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/bcem/crmsync/internal/syncer"

// telemetry holds the run span and the run/contact instruments. A nil
// provider falls back to the global one, which is a no-op until the binary
// installs an SDK.
type telemetry struct {
	tracer   trace.Tracer
	runs     metric.Int64Counter
	contacts metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.runs, err = meter.Int64Counter("crmsync.sync.runs",
		metric.WithDescription("Sync runs by final status"),
		metric.WithUnit("{run}"),
	); err != nil {
		slog.Warn("sync runs counter unavailable", "error", err)
	}
	if t.contacts, err = meter.Int64Counter("crmsync.sync.contacts",
		metric.WithDescription("Contacts processed by outcome"),
		metric.WithUnit("{contact}"),
	); err != nil {
		slog.Warn("sync contacts counter unavailable", "error", err)
	}
	if t.duration, err = meter.Float64Histogram("crmsync.sync.duration",
		metric.WithDescription("Sync run duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		slog.Warn("sync duration histogram unavailable", "error", err)
	}
	return t
}

func (t *telemetry) startRun(ctx context.Context, organizationID string, resume bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hubspot.sync",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("organization.id", organizationID),
			attribute.Bool("sync.resume", resume),
		),
	)
}

func (t *telemetry) endRun(ctx context.Context, span trace.Span, res *Result, err error) {
	status := attribute.String("status", res.Status)
	span.SetAttributes(
		status,
		attribute.Int("sync.succeeded", res.Succeeded),
		attribute.Int("sync.failed", res.Failed),
		attribute.Int("sync.skipped", res.Skipped),
		attribute.Int("sync.pages", res.Pages),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
	}
	span.End()

	if t.runs != nil {
		t.runs.Add(ctx, 1, metric.WithAttributes(status))
	}
	if t.contacts != nil {
		t.addContacts(ctx, "succeeded", res.Succeeded)
		t.addContacts(ctx, "failed", res.Failed)
		t.addContacts(ctx, "skipped", res.Skipped)
	}
	if t.duration != nil {
		t.duration.Record(ctx, res.FinishedAt.Sub(res.StartedAt).Seconds(), metric.WithAttributes(status))
	}
}

func (t *telemetry) addContacts(ctx context.Context, outcome string, n int) {
	if n == 0 {
		return
	}
	t.contacts.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}
