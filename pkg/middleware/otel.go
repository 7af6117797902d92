package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulse-go/pulse/pkg/host"
	"github.com/pulse-go/pulse/pkg/protocol"
)

// Default tracer name for pulse applications.
const defaultTracerName = "pulse"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "pulse").
	TracerName string

	// Filter determines which events to trace. Return true to trace the
	// event. If nil, all events are traced.
	Filter func(ev *protocol.Event) bool

	// AttributeExtractor adds custom attributes per traced event.
	AttributeExtractor func(sess *host.Session, ev *protocol.Event) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithEventFilter sets a filter function for events.
func WithEventFilter(filter func(ev *protocol.Event) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(sess *host.Session, ev *protocol.Event) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
	}
}

// OpenTelemetry creates middleware that traces every client event.
//
// Each span carries the session id, target control, and event sequence
// number; failures set the span status and record the error. The tracer
// comes from the global provider, so configure it before starting the
// server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) host.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return func(next host.EventHandler) host.EventHandler {
		return func(ctx context.Context, sess *host.Session, ev *protocol.Event) error {
			if config.Filter != nil && !config.Filter(ev) {
				return next(ctx, sess, ev)
			}

			attrs := []attribute.KeyValue{
				attribute.String("pulse.session_id", sess.ID()),
				attribute.String("pulse.control", ev.Control),
				attribute.Int64("pulse.event_seq", int64(ev.Seq)),
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(sess, ev)...)
			}

			spanCtx, span := config.tracer.Start(ctx, "pulse.event",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			err := next(spanCtx, sess, ev)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}
