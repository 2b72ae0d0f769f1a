package ingest

import (
	"sync"
	"time"

	"orderhub/internal/model"
	"orderhub/internal/report"
)

// Stats are the run counters. Only the Loop mutates them; readers take snapshots.
type Stats struct {
	mu         sync.Mutex
	runID      string
	startedAt  time.Time
	cycles     int64
	total      int64
	succeeded  int64
	duplicates int64
	errors     int64
	perChannel map[model.Channel]int64
}

func NewStats(runID string, startedAt time.Time) *Stats {
	s := &Stats{runID: runID, startedAt: startedAt, perChannel: make(map[model.Channel]int64)}
	for _, ch := range model.Channels {
		s.perChannel[ch] = 0
	}
	return s
}

// record counts one processed file under its outcome.
func (s *Stats) record(out Outcome, ch model.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	switch out {
	case OutcomeCommitted:
		s.succeeded++
		s.perChannel[ch]++
	case OutcomeDuplicate:
		s.duplicates++
	default:
		s.errors++
	}
}

func (s *Stats) endCycle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	return s.cycles
}

func (s *Stats) Cycles() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

func (s *Stats) Snapshot(now time.Time) report.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	per := make(map[string]int64, len(s.perChannel))
	for ch, n := range s.perChannel {
		per[string(ch)] = n
	}
	return report.Snapshot{
		RunID:      s.runID,
		Cycles:     s.cycles,
		Total:      s.total,
		Succeeded:  s.succeeded,
		Duplicates: s.duplicates,
		Errors:     s.errors,
		PerChannel: per,
		StartedAt:  s.startedAt,
		TakenAt:    now,
	}
}
