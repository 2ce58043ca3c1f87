// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires up application observability: structured logging,
// tracing, and metrics. This file configures slog so that every record is
// emitted as Cloud Logging compatible JSON and carries the OpenTelemetry
// trace identifiers of the request that produced it.
package telemetry

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
)

// traceContextHandler decorates another slog.Handler. Before delegating, it
// copies the active OpenTelemetry span identifiers out of the context into
// the log record, using the field names Cloud Logging correlates on. A log
// line written inside a pipeline span therefore lands next to its trace in
// the Cloud Console without any work at the call site.
type traceContextHandler struct {
	slog.Handler
}

// withTraceContext wraps the given base handler in a traceContextHandler.
func withTraceContext(handler slog.Handler) *traceContextHandler {
	return &traceContextHandler{Handler: handler}
}

// Handle enriches the record with the caller's span context, when one is
// present and valid, then passes the record to the wrapped handler. The
// attribute keys follow the Cloud Logging structured log format:
// https://cloud.google.com/logging/docs/structured-logging#special-payload-fields
func (t *traceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		record.AddAttrs(
			slog.Any("logging.googleapis.com/trace", s.TraceID()),
		)
		record.AddAttrs(
			slog.Any("logging.googleapis.com/spanId", s.SpanID()),
		)
		record.AddAttrs(
			slog.Bool("logging.googleapis.com/trace_sampled", s.TraceFlags().IsSampled()),
		)
	}
	return t.Handler.Handle(ctx, record)
}

// cloudLoggingAttr renames slog's default attribute keys to the ones Cloud
// Logging expects. Without this mapping the backend files every record
// under the default severity and ignores the embedded timestamp.
//
// Severity values come from the LogSeverity enum:
// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#LogSeverity
// slog and the enum agree on everything except WARN, which Cloud Logging
// spells WARNING.
func cloudLoggingAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		if level := a.Value.Any().(slog.Level); level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// SetupLogging configures both the standard library `log` package and slog
// for the whole process. Output goes to stdout and to a local `app.log`
// file. slog records are serialized as JSON with Cloud Logging field names
// and automatically pick up trace context from the calling goroutine.
//
// Call this once, before any other initialization, so that startup errors
// are already captured in the structured stream.
func SetupLogging() {
	// Truncate any log file left over from a previous run.
	file, _ := os.Create("app.log")
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Route the standard logger through the same writer so third-party code
	// using `log` ends up in the same stream.
	log.SetOutput(multiWriter)
	log.SetPrefix("[INFO] ")
	log.SetFlags(log.Ldate | log.Ltime)

	// JSON handler with Cloud Logging attribute names, wrapped so each
	// record picks up the active span identifiers.
	jsonHandler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{ReplaceAttr: cloudLoggingAttr})
	instrumentedHandler := withTraceContext(jsonHandler)

	slog.SetDefault(slog.New(instrumentedHandler))
	slog.SetLogLoggerLevel(slog.LevelInfo)
}
