package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrNoSnapshot is returned when nothing was published under the key.
var ErrNoSnapshot = errors.New("no statistics snapshot found")

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaReader reads the latest statistics record from a compacted topic.
type KafkaReader struct {
	open    func() kafkaMessageReader
	key     []byte
	timeout time.Duration
}

func NewKafkaReader(brokers []string, topic string, key string) *KafkaReader {
	return &KafkaReader{
		open: func() kafkaMessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: statsPartition,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
		key:     []byte(key),
		timeout: 10 * time.Second,
	}
}

// NewKafkaReaderWith is only for tests to inject a fake reader.
func NewKafkaReaderWith(r kafkaMessageReader, key string, timeout time.Duration) *KafkaReader {
	return &KafkaReader{open: func() kafkaMessageReader { return r }, key: []byte(key), timeout: timeout}
}

// ReadLatest scans the topic from the start and keeps the last record for the key.
// The scan ends when no message arrives before the timeout.
func (k *KafkaReader) ReadLatest() (Snapshot, error) {
	r := k.open()
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	var (
		last  Snapshot
		found bool
	)
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return Snapshot{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) != string(k.key) {
			continue
		}
		var s Snapshot
		if err := json.Unmarshal(m.Value, &s); err != nil {
			return Snapshot{}, fmt.Errorf("unmarshal kafka stats: %w", err)
		}
		last, found = s, true
	}
	if !found {
		return Snapshot{}, ErrNoSnapshot
	}
	return last, nil
}
