// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the gateway.
//
// # Logging
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info("request proxied", observability.String("route", "practice"))
//
// # Metrics
//
// NewMetrics owns a private registry. Component packages register their
// collectors into it so a single /actuator/prometheus endpoint exposes
// everything.
//
// # Tracing
//
// NewTracer installs an OTLP/gRPC exporter when an endpoint is configured
// and a no-op tracer otherwise.
package observability
