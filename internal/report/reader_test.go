package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// fakeKafkaReader replays msgs, then blocks until the context expires.
type fakeKafkaReader struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		return m, nil
	}
	if f.err != nil {
		return kafka.Message{}, f.err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeKafkaReader) Close() error {
	f.closed = true
	return nil
}

func msg(t *testing.T, key string, s Snapshot) kafka.Message {
	t.Helper()
	b, err := json.Marshal(&s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Key: []byte(key), Value: b}
}

func TestKafkaReader_KeepsLastForKey(t *testing.T) {
	fr := &fakeKafkaReader{msgs: []kafka.Message{
		msg(t, DefaultKafkaKey, Snapshot{RunID: "a", Cycles: 3}),
		msg(t, "other", Snapshot{RunID: "x"}),
		msg(t, DefaultKafkaKey, Snapshot{RunID: "a", Cycles: 6}),
	}}
	got, err := NewKafkaReaderWith(fr, DefaultKafkaKey, 20*time.Millisecond).ReadLatest()
	if err != nil {
		t.Fatalf("ReadLatest: %v", err)
	}
	if got.Cycles != 6 || !fr.closed {
		t.Fatalf("unexpected: %+v closed=%v", got, fr.closed)
	}
}

func TestKafkaReader_NothingPublished(t *testing.T) {
	fr := &fakeKafkaReader{msgs: []kafka.Message{msg(t, "other", Snapshot{})}}
	if _, err := NewKafkaReaderWith(fr, DefaultKafkaKey, 20*time.Millisecond).ReadLatest(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("want ErrNoSnapshot, got %v", err)
	}
}

func TestKafkaReader_ReadError(t *testing.T) {
	fr := &fakeKafkaReader{err: errors.New("broker gone")}
	if _, err := NewKafkaReaderWith(fr, DefaultKafkaKey, time.Second).ReadLatest(); err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("want read error, got %v", err)
	}
}
