package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Entry records what happened to one file during a run.
type Entry struct {
	RunID   string `json:"run_id"`
	OrderID string `json:"id_commande,omitempty"`
	Channel string `json:"canal,omitempty"`
	File    string `json:"file"`
	Outcome string `json:"outcome"` // committed|duplicate|invalid|malformed|unavailable|error
	Reason  string `json:"reason,omitempty"`
	TS      int64  `json:"ts"`
}

type Writer interface {
	Append(ctx context.Context, e Entry) error
}

// MultiWriter fans out writes to multiple underlying writers.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

func (m *MultiWriter) Append(ctx context.Context, e Entry) error {
	for _, w := range m.writers {
		if err := w.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Append(context.Context, Entry) error { return nil }

// FileWriter appends one JSON line per entry.
type FileWriter struct {
	mu   sync.Mutex
	path string
}

func NewFileWriter(dir string, filename string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &FileWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *FileWriter) Path() string { return w.path }

func (w *FileWriter) Append(_ context.Context, e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(&e); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// KafkaWriter publishes entries to a topic keyed by order id, falling back to the file name.
type KafkaWriter struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// SplitBrokers turns a comma-separated host:port list into broker addresses.
func SplitBrokers(bootstrap string) []string {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		if a = strings.TrimSpace(a); a != "" {
			brokers = append(brokers, a)
		}
	}
	return brokers
}

// NewKafkaWriter creates a Kafka writer.
// bootstrap can be a comma-separated list of host:port.
// writeTimeout caps a single produce attempt; at most two attempts are made.
func NewKafkaWriter(bootstrap string, topic string, writeTimeout time.Duration) *KafkaWriter {
	return &KafkaWriter{writer: &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: writeTimeout,
		MaxAttempts:  2,
	}}
}

func (k *KafkaWriter) Append(ctx context.Context, e Entry) error {
	b, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	key := e.OrderID
	if key == "" {
		key = e.File
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

// Close flushes the underlying writer when it supports it.
func (k *KafkaWriter) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaMessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}
