package instrumentation

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config selects where calmerge serve sends the agenda, slot, source and
// refresh instruments. The one-shot agenda and slots commands never build
// a Provider and record into no-op instruments.
type Config struct {
	// ServiceName tags every metric and span resource (default: calmerge).
	ServiceName string

	// ServiceVersion is the build version reported by calmerge version.
	ServiceVersion string

	// ServiceInstanceID tells replicas apart (default: hostname).
	ServiceInstanceID string

	// K8sNamespace and K8sPodName are attached when running in a cluster.
	K8sNamespace string
	K8sPodName   string

	// Enabled turns the whole layer off with INSTRUMENTATION_ENABLED=false.
	// The refresher and planner keep recording into no-op instruments.
	Enabled bool

	// MetricsExporter is "prometheus" (scraped from the metrics server),
	// "otlp" (pushed every DefaultMetricInterval) or "stdout".
	MetricsExporter string

	// TracingExporter is "otlp", "stdout" or "none". With "none" the
	// source.<kind>.<operation> spans are created but never sampled.
	TracingExporter string

	// OTLPEndpoint is the OTLP collector endpoint, without protocol prefix
	OTLPEndpoint string

	// OTLPInsecure switches OTLP export to plain HTTP.
	// Only meant for local collectors.
	OTLPInsecure bool

	// TraceSamplingRate is the root span ratio, 0.0 to 1.0 (default: 0.1).
	TraceSamplingRate float64

	// PrometheusEndpoint is the scrape path on the metrics server (default: "/metrics").
	PrometheusEndpoint string

	// DetailedLabels adds the viewer's email domain to agenda metrics.
	// Keep it off unless the set of domains is small.
	DetailedLabels bool
}

// DefaultConfig reads the OTEL_*, METRICS_*, TRACING_EXPORTER and
// Kubernetes downward API variables. Unset or unparsable values fall back
// to a Prometheus-only setup named calmerge.
func DefaultConfig() Config {
	return Config{
		ServiceName:        getEnvOrDefault("OTEL_SERVICE_NAME", "calmerge"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  getEnvOrDefault("OTEL_SERVICE_INSTANCE_ID", ""),
		K8sNamespace:       getEnvOrDefault("K8S_NAMESPACE", getEnvOrDefault("POD_NAMESPACE", "")),
		K8sPodName:         getEnvOrDefault("K8S_POD_NAME", getEnvOrDefault("HOSTNAME", "")),
		Enabled:            getEnvBoolOrDefault("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    getEnvOrDefault("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    getEnvOrDefault("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  getEnvFloatOrDefault("OTEL_TRACES_SAMPLER_ARG", 0.1),
		PrometheusEndpoint: getEnvOrDefault("PROMETHEUS_ENDPOINT", "/metrics"),
		DetailedLabels:     getEnvBoolOrDefault("METRICS_DETAILED_LABELS", false),
	}
}

// Validate rejects unknown exporters, sampling rates outside [0, 1] and
// OTLP exporters without an endpoint.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	validMetricsExporters := map[string]bool{ExporterPrometheus: true, ExporterOTLP: true, ExporterStdout: true}
	if c.MetricsExporter != "" && !validMetricsExporters[c.MetricsExporter] {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	validTracingExporters := map[string]bool{ExporterOTLP: true, ExporterStdout: true, ExporterNone: true}
	if c.TracingExporter != "" && !validTracingExporters[c.TracingExporter] {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.TracingExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
	}
	if c.MetricsExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
	}

	return nil
}

// LogValue summarizes the exporter setup for the serve startup line.
func (c Config) LogValue() slog.Value {
	if !c.Enabled {
		return slog.GroupValue(slog.Bool("enabled", false))
	}
	attrs := []slog.Attr{
		slog.Bool("enabled", true),
		slog.String("metrics", c.MetricsExporter),
		slog.String("tracing", c.TracingExporter),
	}
	if c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP {
		attrs = append(attrs, slog.String("otlp_endpoint", c.OTLPEndpoint))
	}
	if c.TracingExporter != ExporterNone {
		attrs = append(attrs, slog.Float64("sampling", c.TraceSamplingRate))
	}
	return slog.GroupValue(attrs...)
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the boolean value of an environment variable or a default value.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvFloatOrDefault returns the float64 value of an environment variable or a default value.
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Source kinds
	SourceFile   = "file"
	SourceICS    = "ics"
	SourceGoogle = "google"
	SourceMulti  = "multi"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)
