package telemetry

// Config for OpenTelemetry tracing
type Config struct {
	// Enabled turns on the OTLP exporter. When disabled a noop tracer provider is installed
	Enabled bool `mapstructure:"Enabled"`

	// ServiceName is reported as the service.name resource attribute
	ServiceName string `mapstructure:"ServiceName"`

	// Endpoint is the OTLP/HTTP collector endpoint, either host:port or a full URL
	Endpoint string `mapstructure:"Endpoint"`
}
