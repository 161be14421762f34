package telemetry

import (
	"maps"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName identifies extauth to trace and profile backends when
// the configuration leaves service_name empty.
const DefaultServiceName = "extauth"

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled bool

	// ServiceName is reported as service.name; empty means DefaultServiceName
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint (host:port)
	Endpoint string
	Insecure bool

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	SampleRate float64

	// Attributes are extra resource attributes, e.g. deployment.environment
	Attributes map[string]string
}

func (c Config) serviceName() string {
	if c.ServiceName == "" {
		return DefaultServiceName
	}
	return c.ServiceName
}

// sampler maps SampleRate onto the SDK samplers. Rates outside [0, 1] clamp.
func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRate >= 1.0:
		return sdktrace.AlwaysSample()
	case c.SampleRate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
	}
}

// resourceAttributes returns service identity first, then configured
// attributes in key order. Configured keys cannot override service.name or
// service.version.
func (c Config) resourceAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.serviceName()),
	}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	for _, k := range slices.Sorted(maps.Keys(c.Attributes)) {
		if k == string(semconv.ServiceNameKey) || k == string(semconv.ServiceVersionKey) {
			continue
		}
		attrs = append(attrs, attribute.String(k, c.Attributes[k]))
	}
	return attrs
}
