// Package instrumentation provides OpenTelemetry tracing and metrics for curl-impersonate invocations.
// Traces are exported via OTLP and metrics are exposed in the Prometheus text format.
package instrumentation

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

const (
	ServiceName    = "curl-impersonate"
	ServiceVersion = "1.0.0"
)

var (
	// Usable before Init: the global providers are no-ops until one is installed.
	tracer trace.Tracer = otel.Tracer(ServiceName)
	meter  metric.Meter

	// muRegistry holds the registry the current meter provider exports to. Init swaps it while
	// Handler and WriteMetrics may be gathering.
	muRegistry struct {
		sync.RWMutex
		reg *promclient.Registry
	}

	// Metrics
	invocationCounter   metric.Int64Counter
	invocationDuration  metric.Float64Histogram
	activeInvocations   metric.Int64UpDownCounter
	presetLookupCounter metric.Int64Counter
	errorCounter        metric.Int64Counter
)

// Config holds instrumentation configuration
type Config struct {
	// OTLPEndpoint is the OTLP exporter endpoint (e.g., "localhost:4318"). Empty disables trace export.
	OTLPEndpoint string
	// Environment is the deployment environment (e.g., "production", "development")
	Environment string
	// SampleRate is the trace sampling rate (0.0 to 1.0)
	SampleRate float64
	// MetricsEnabled enables Prometheus metrics
	MetricsEnabled bool
}

// DefaultConfig returns default configuration based on environment
func DefaultConfig() Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	sampleRate := 1.0
	if env == "production" || env == "prod" {
		sampleRate = 0.1
	}
	if sr := os.Getenv("OTEL_SAMPLE_RATE"); sr != "" {
		if parsed, err := strconv.ParseFloat(sr, 64); err == nil && parsed >= 0 && parsed <= 1 {
			sampleRate = parsed
		} else {
			klog.Warningf("ignoring invalid OTEL_SAMPLE_RATE %q", sr)
		}
	}

	return Config{
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:    env,
		SampleRate:     sampleRate,
		MetricsEnabled: os.Getenv("METRICS_ENABLED") != "false",
	}
}

// Init initializes OpenTelemetry tracing and metrics. The returned function flushes and shuts
// both providers down.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	// Schemaless, so the merge takes the schema URL of the SDK's default resource.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	var traceExporter sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		traceExporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			klog.Warningf("Failed to create OTLP trace exporter: %v, continuing without tracing", err)
			traceExporter = nil
		}
	}

	var sampler sdktrace.Sampler
	if cfg.Environment == "production" || cfg.Environment == "prod" {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	} else {
		sampler = sdktrace.AlwaysSample()
	}

	var tracerProvider *sdktrace.TracerProvider
	if traceExporter != nil {
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.NeverSample()),
		)
	}
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(ServiceName)

	var meterProvider *sdkmetric.MeterProvider
	if cfg.MetricsEnabled {
		// A fresh registry per Init keeps repeated initialization from double registering.
		reg := promclient.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(reg))
		if err != nil {
			klog.Warningf("Failed to create Prometheus exporter: %v, continuing without metrics", err)
		} else {
			setRegistry(reg)
			meterProvider = sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(promExporter),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(meterProvider)
		}
	}

	meter = otel.Meter(ServiceName)
	if err := initMetrics(); err != nil {
		return nil, err
	}

	klog.V(1).Infof("OpenTelemetry initialized: env=%s, sample_rate=%.2f, metrics=%v, tracing=%v",
		cfg.Environment, cfg.SampleRate, cfg.MetricsEnabled, traceExporter != nil)

	return func(ctx context.Context) error {
		var errs []error
		if err := tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if meterProvider != nil {
			if err := meterProvider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errs[0]
		}
		return nil
	}, nil
}

func initMetrics() error {
	var err error

	invocationCounter, err = meter.Int64Counter(
		"curl_impersonate.invocations",
		metric.WithDescription("Total number of curl-impersonate invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return err
	}

	invocationDuration, err = meter.Float64Histogram(
		"curl_impersonate.invocation.duration",
		metric.WithDescription("Duration of curl-impersonate invocations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	activeInvocations, err = meter.Int64UpDownCounter(
		"curl_impersonate.invocations.active",
		metric.WithDescription("Number of running invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return err
	}

	presetLookupCounter, err = meter.Int64Counter(
		"curl_impersonate.preset.lookups",
		metric.WithDescription("Impersonation preset lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	errorCounter, err = meter.Int64Counter(
		"curl_impersonate.errors",
		metric.WithDescription("Total errors encountered"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Tracer returns the global tracer
func Tracer() trace.Tracer {
	return tracer
}

func init() {
	muRegistry.reg = promclient.NewRegistry()
}

func setRegistry(reg *promclient.Registry) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	muRegistry.reg = reg
}

func currentRegistry() *promclient.Registry {
	muRegistry.RLock()
	defer muRegistry.RUnlock()
	return muRegistry.reg
}

// Handler serves the metrics collected since the last Init in the Prometheus exposition format.
// The registry is resolved per request, so a handler obtained before Init serves what Init set up.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		promhttp.HandlerFor(currentRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// WriteMetrics writes the current metrics to w in the Prometheus text format.
func WriteMetrics(w io.Writer) error {
	families, err := currentRegistry().Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// InvocationTracer traces a single run of a curl-impersonate binary or runner.
type InvocationTracer struct {
	ctx       context.Context
	span      trace.Span
	startTime time.Time
	method    string
	binary    string
}

// StartInvocation starts tracing an invocation of binary for the given HTTP method.
func StartInvocation(ctx context.Context, method, binary string) *InvocationTracer {
	ctx, span := tracer.Start(ctx, "curl_impersonate.invocation",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(method),
			attribute.String("curl_impersonate.binary", binary),
		),
	)

	if activeInvocations != nil {
		activeInvocations.Add(ctx, 1)
	}

	return &InvocationTracer{
		ctx:       ctx,
		span:      span,
		startTime: time.Now(),
		method:    method,
		binary:    binary,
	}
}

// End completes the invocation trace. A zero statusCode means no status line was seen.
func (it *InvocationTracer) End(statusCode int, err error) {
	duration := time.Since(it.startTime).Milliseconds()

	if it.span != nil {
		it.span.SetAttributes(
			semconv.HTTPResponseStatusCode(statusCode),
			attribute.Int64("curl_impersonate.duration_ms", duration),
		)

		if err != nil {
			it.span.RecordError(err)
			it.span.SetStatus(codes.Error, err.Error())
		} else if statusCode >= 400 {
			it.span.SetStatus(codes.Error, http.StatusText(statusCode))
		} else {
			it.span.SetStatus(codes.Ok, "")
		}
		it.span.End()
	}

	ctx := it.ctx
	attrs := []attribute.KeyValue{
		attribute.String("method", it.method),
		attribute.String("binary", it.binary),
		attribute.Int("status_code", statusCode),
		attribute.Bool("success", err == nil && statusCode > 0 && statusCode < 400),
	}

	if invocationCounter != nil {
		invocationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if invocationDuration != nil {
		invocationDuration.Record(ctx, float64(duration), metric.WithAttributes(attrs...))
	}
	if activeInvocations != nil {
		activeInvocations.Add(ctx, -1)
	}
	if err != nil && errorCounter != nil {
		errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_type", "invocation"),
			attribute.String("binary", it.binary),
		))
	}
}

// Context returns the span context
func (it *InvocationTracer) Context() context.Context {
	return it.ctx
}

// RecordPresetLookup records the outcome of an impersonation preset lookup.
func RecordPresetLookup(ctx context.Context, target, outcome string) {
	if presetLookupCounter != nil {
		presetLookupCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("target", target),
			attribute.String("outcome", outcome),
		))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("preset_lookup",
			trace.WithAttributes(
				attribute.String("target", target),
				attribute.String("outcome", outcome),
			),
		)
	}
}

// RecordError counts an error of the given type and attaches it to the span in ctx, if any.
func RecordError(ctx context.Context, errorType string, err error) {
	if errorCounter != nil {
		errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_type", errorType),
		))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err,
			trace.WithAttributes(
				attribute.String("error_type", errorType),
			),
		)
	}
}
