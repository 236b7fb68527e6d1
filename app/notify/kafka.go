package notify

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Notifier = (*KafkaNotifier)(nil)

type KafkaNotifier struct {
	writer MessageWriter
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}, topic)
}

func NewKafkaNotifierWithWriter(writer MessageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, topic: topic}
}

func (k *KafkaNotifier) Name() string {
	return "kafka:" + k.topic
}

func (k *KafkaNotifier) Notify(ctx context.Context, n *Notification) error {
	attrs := n.Attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"contract", "contract_version", "run_id"} {
		headers = append(headers, kafka.Header{Key: strings.ReplaceAll(key, "_", "-"), Value: []byte(attrs[key])})
	}

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(n.RunID),
		Value:   n.Payload,
		Headers: headers,
	})
	if err != nil {
		return &DeliveryError{Channel: k.Name(), Err: err}
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
