package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Header keys set on every event published from an outbox.
const (
	HeaderEventID    = "event_id"
	HeaderEventType  = "event_type"
	HeaderBusinessID = "business_id"
)

// EventMeta identifies an event independently of its payload. BusinessID is
// the tenant the event belongs to.
type EventMeta struct {
	EventID    string
	EventType  string
	BusinessID string
}

func (m EventMeta) Headers() []kafka.Header {
	h := make([]kafka.Header, 0, 3)
	for _, kv := range [][2]string{
		{HeaderEventID, m.EventID},
		{HeaderEventType, m.EventType},
		{HeaderBusinessID, m.BusinessID},
	} {
		if kv[1] != "" {
			h = append(h, kafka.Header{Key: kv[0], Value: []byte(kv[1])})
		}
	}
	return h
}

// ExtractEventMeta reads the headers written by Headers. Messages produced
// without them fall back to the key as id and the topic as type.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	m := EventMeta{
		EventID:    HeaderValue(msg.Headers, HeaderEventID),
		EventType:  HeaderValue(msg.Headers, HeaderEventType),
		BusinessID: HeaderValue(msg.Headers, HeaderBusinessID),
	}
	if m.EventID == "" {
		m.EventID = string(msg.Key)
	}
	if m.EventType == "" {
		m.EventType = msg.Topic
	}
	return m
}

// HeaderValue returns the last value for key.
func HeaderValue(headers []kafka.Header, key string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
