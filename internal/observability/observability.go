// Package observability sets up process-wide structured logging, optionally
// exported through OpenTelemetry.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName identifies this process in exported telemetry.
const ServiceName = "sclogin"

// Exporter selects where log records are exported besides stderr.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
)

// ShutdownFunc flushes and stops exporters.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger writing text or JSON to stderr
// at level, and a global tracer provider so records logged inside a sign-in
// cycle carry its trace and span ids. With an exporter other than none,
// records are also exported as OpenTelemetry logs; the returned ShutdownFunc
// flushes them.
func Instrument(ctx context.Context, level slog.Level, format string, exporter Exporter) (ShutdownFunc, error) {
	return instrument(ctx, os.Stderr, level, format, exporter)
}

func instrument(ctx context.Context, w io.Writer, level slog.Level, format string, exporter Exporter) (ShutdownFunc, error) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))

	// Spans are only used to correlate log records, none are exported.
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tracerProvider)
	shutdown := tracerProvider.Shutdown

	if exporter != "" && exporter != ExporterNone {
		exp, err := newExporter(ctx, exporter)
		if err != nil {
			_ = tracerProvider.Shutdown(ctx)
			return nil, err
		}

		provider := sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exp), severity(level))),
		)
		shutdown = func(ctx context.Context) error {
			return errors.Join(provider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
		}
		global.SetLoggerProvider(provider)

		// Exporter failures must not end up in the exported stream itself.
		stderrLogger := slog.New(handler)

		handler = fanout{handler, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider))}
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			stderrLogger.Warn("telemetry export failed", "error", err)
		}))
	}

	slog.SetDefault(slog.New(traceHandler{handler}))
	return shutdown, nil
}

func newExporter(ctx context.Context, exporter Exporter) (sdklog.Exporter, error) {
	var (
		exp sdklog.Exporter
		err error
	)
	switch exporter {
	case ExporterStdout:
		exp, err = stdoutlog.New(stdoutlog.WithWriter(os.Stdout))
	case ExporterOTLPHTTP:
		// Endpoint and headers come from the OTEL_EXPORTER_OTLP_* environment.
		exp, err = otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		exp, err = otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported telemetry exporter: %s", exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s exporter: %w", exporter, err)
	}
	return exp, nil
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// fanout passes every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
