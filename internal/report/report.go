// Package report renders and publishes run statistics.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// LatestFile is the name of the most recent published snapshot.
const LatestFile = "stats.latest.json"

// DefaultKafkaKey keys the compacted statistics record.
const DefaultKafkaKey = "orderhub-stats-latest"

// Snapshot is a point-in-time copy of run statistics.
type Snapshot struct {
	RunID      string           `json:"runId"`
	Cycles     int64            `json:"cycles"`
	Total      int64            `json:"total"`
	Succeeded  int64            `json:"succeeded"`
	Duplicates int64            `json:"duplicates"`
	Errors     int64            `json:"errors"`
	PerChannel map[string]int64 `json:"perChannel"`
	StartedAt  time.Time        `json:"startedAt"`
	TakenAt    time.Time        `json:"takenAt"`
}

// SuccessRate is succeeded/total in percent, 0 when nothing was seen.
func (s Snapshot) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}

// Render writes the human-readable statistics block.
func Render(w io.Writer, s Snapshot) error {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nRUN STATISTICS (run %s, %d cycles)\n%s\n", rule, s.RunID, s.Cycles, rule)
	fmt.Fprintf(&b, "   Total processed:  %d\n", s.Total)
	fmt.Fprintf(&b, "   Succeeded:        %d\n", s.Succeeded)
	fmt.Fprintf(&b, "   Duplicates:       %d\n", s.Duplicates)
	fmt.Fprintf(&b, "   Errors:           %d\n", s.Errors)
	b.WriteString("\n   Per channel:\n")
	channels := make([]string, 0, len(s.PerChannel))
	for ch := range s.PerChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		fmt.Fprintf(&b, "      - %s: %d\n", ch, s.PerChannel[ch])
	}
	fmt.Fprintf(&b, "\n   Success rate:     %.1f%%\n%s\n", s.SuccessRate(), rule)
	_, err := io.WriteString(w, b.String())
	return err
}

type Publisher interface {
	PublishStats(ctx context.Context, s Snapshot) error
}

// MultiPublisherImpl writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) PublishStats(ctx context.Context, s Snapshot) error {
	for _, p := range m.pubs {
		if err := p.PublishStats(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

type Reader interface {
	ReadLatest() (Snapshot, error)
}

// FilesystemPublisher keeps the latest snapshot as an indented JSON file.
type FilesystemPublisher struct {
	baseDir string
}

func NewFilesystemPublisher(baseDir string) *FilesystemPublisher {
	return &FilesystemPublisher{baseDir: baseDir}
}

func (f *FilesystemPublisher) PublishStats(_ context.Context, s Snapshot) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	file := filepath.Join(f.baseDir, LatestFile)
	tmp := file + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&s); err != nil {
		out.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, file); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemPublisher) ReadLatest() (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, LatestFile))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read stats: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return s, nil
}

// KafkaPublisher publishes the latest snapshot as a compacted Kafka record.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// statsPartition is the single partition statistics are written to and read from.
const statsPartition = 0

// pinPartition sends every record to statsPartition whatever the topic's partition count.
func pinPartition(_ kafka.Message, partitions ...int) int {
	for _, p := range partitions {
		if p == statsPartition {
			return p
		}
	}
	return partitions[0]
}

// NewKafkaPublisher creates a Kafka statistics publisher.
// key is typically DefaultKafkaKey. writeTimeout caps a single produce attempt.
func NewKafkaPublisher(brokers []string, topic string, key string, writeTimeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     kafka.BalancerFunc(pinPartition),
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: writeTimeout,
		MaxAttempts:  2,
	}, key: []byte(key)}
}

func (k *KafkaPublisher) PublishStats(ctx context.Context, s Snapshot) error {
	b, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: k.key, Value: b})
}

func (k *KafkaPublisher) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter, key string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, key: []byte(key)}
}
