package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const TracerName = "github.com/wenmoon/mascot"

// Tracer returns the service tracer from the global provider. Without InitTracing
// this is the otel no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing exports spans as JSON lines to a rotated file. An empty path leaves
// the global no-op provider in place.
func InitTracing(ctx context.Context, file, version string) (func(context.Context) error, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("mascot"),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		_ = traceFile.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := traceFile.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}
