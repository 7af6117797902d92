// Package middleware provides event middleware for pulse session hosts.
//
// This package includes:
//   - Prometheus metrics middleware
//   - OpenTelemetry distributed tracing middleware
//
// # Prometheus Middleware
//
// The Prometheus middleware counts and times every client event, labeling
// failures with a low-cardinality error class derived from the engine's
// error taxonomy.
//
//	srv := host.NewServer(app,
//	    host.WithMiddleware(
//	        middleware.Prometheus(
//	            middleware.WithNamespace("myapp"),
//	        ),
//	    ),
//	)
//
//	srv.Router().Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware creates a span per event carrying the
// session id and target control. The tracer comes from the global provider;
// configure it in main() before starting the server.
//
//	srv := host.NewServer(app,
//	    host.WithMiddleware(
//	        middleware.OpenTelemetry(
//	            middleware.WithTracerName("my-app"),
//	        ),
//	    ),
//	)
package middleware
