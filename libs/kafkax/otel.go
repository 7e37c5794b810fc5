package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// InjectTraceHeaders adds the W3C trace context of ctx to headers, replacing
// stale values for the same keys.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	c := carrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, &c)
	return c
}

// ExtractTraceContext continues the trace recorded on msg, if any.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	c := carrier(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &c)
}

// carrier adapts Kafka headers to the propagation API.
type carrier []kafka.Header

var _ propagation.TextMapCarrier = (*carrier)(nil)

func (c *carrier) Get(key string) string { return HeaderValue(*c, key) }

func (c *carrier) Keys() []string {
	out := make([]string, len(*c))
	for i, h := range *c {
		out[i] = h.Key
	}
	return out
}

func (c *carrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}
