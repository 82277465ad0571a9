package kafka

import (
	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/propagation"
)

// producerCarrier переносит контекст трассировки в заголовки исходящего сообщения.
type producerCarrier struct {
	msg *sarama.ProducerMessage
}

var _ propagation.TextMapCarrier = producerCarrier{}

func (c producerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c producerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if string(h.Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c producerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

// consumerCarrier читает контекст трассировки из заголовков входящего сообщения.
type consumerCarrier struct {
	msg *sarama.ConsumerMessage
}

var _ propagation.TextMapCarrier = consumerCarrier{}

func (c consumerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set не используется: входящее сообщение не меняется.
func (c consumerCarrier) Set(string, string) {}

func (c consumerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		if h != nil {
			keys = append(keys, string(h.Key))
		}
	}
	return keys
}
