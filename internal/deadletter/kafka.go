package deadletter

import (
	"context"
	"time"

	"robo-ingest/internal/model"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer the sink needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each dead-letter to a topic, keyed by ORIGIN:external_id.
type KafkaSink struct {
	writer Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}}
}

// NewKafkaSinkWithWriter allows injecting a test writer.
func NewKafkaSinkWithWriter(w Writer) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) Write(ctx context.Context, dl model.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(dl.Event.Key().String()),
		Value: b,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(dl.Reason)},
		},
	})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
