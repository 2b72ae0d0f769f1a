// Package ingest drives the polling loop that turns source files into stored orders.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderhub/internal/changelog"
	"orderhub/internal/lifecycle"
	"orderhub/internal/metrics"
	"orderhub/internal/model"
	"orderhub/internal/report"
	"orderhub/internal/schema"
	"orderhub/internal/store"
)

// Outcome is the terminal state of one file in one cycle.
type Outcome string

const (
	OutcomeCommitted   Outcome = "committed"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeMalformed   Outcome = "malformed"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeFailed      Outcome = "error"
)

// Subreason used when an invalid file is finally quarantined.
const invalidSubdir = "invalid"

type Options struct {
	Sources            []string
	Extension          string
	PollInterval       time.Duration
	ReportEvery        int
	InvalidMaxAttempts int // 0 keeps invalid files in place forever
	StrictTotals       bool
	StoreTimeout       time.Duration
	SinkTimeout        time.Duration // bounds each event append and statistics publication

	Store     store.Store
	Files     lifecycle.Manager
	Events    changelog.Writer  // optional
	Publisher report.Publisher  // optional
	Metrics   *metrics.Registry // optional
	Logger    *zap.Logger       // optional
	Clock     clock.Clock       // optional, real clock by default
	Out       io.Writer         // statistics block, os.Stdout by default
	RunID     string            // optional, random by default
}

// Loop processes source files one at a time.
type Loop struct {
	o        Options
	log      *zap.Logger
	clock    clock.Clock
	stats    *Stats
	attempts attempts
}

// FileResult describes what happened to one file.
type FileResult struct {
	File    string
	OrderID string
	Channel model.Channel
	Outcome Outcome
	Reason  string
}

// CycleResult summarizes one sweep.
type CycleResult struct {
	Cycle int64
	Files []FileResult
}

func New(o Options) (*Loop, error) {
	if o.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if o.Files == nil {
		return nil, errors.New("ingest: lifecycle manager is required")
	}
	if len(o.Sources) == 0 {
		return nil, errors.New("ingest: at least one source directory is required")
	}
	if o.Extension == "" {
		o.Extension = ".json"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.ReportEvery <= 0 {
		o.ReportEvery = 3
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.SinkTimeout <= 0 {
		o.SinkTimeout = 5 * time.Second
	}
	if o.Events == nil {
		o.Events = changelog.Discard{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	return &Loop{
		o:        o,
		log:      o.Logger.Named("ingest").With(zap.String("run_id", o.RunID)),
		clock:    o.Clock,
		stats:    NewStats(o.RunID, o.Clock.Now().UTC()),
		attempts: attempts{},
	}, nil
}

func (l *Loop) Stats() *Stats { return l.stats }

// Run sweeps the sources and then waits PollInterval before the next sweep, until
// ctx is cancelled. A cycle in progress stops after its current file. A final
// statistics block is emitted on exit.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunCycle(ctx)
		wait := l.clock.Timer(l.o.PollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			l.log.Info("shutdown requested")
			l.report(context.WithoutCancel(ctx), true)
			return nil
		case <-wait.C:
		}
	}
}

// RunCycle performs one sweep over every source directory.
func (l *Loop) RunCycle(ctx context.Context) CycleResult {
	start := l.clock.Now()
	files := scan(l.log, l.o.Sources, l.o.Extension)
	l.attempts.keepOnly(files)

	var res CycleResult
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		fr := l.processFile(ctx, f)
		l.stats.record(fr.Outcome, fr.Channel)
		l.observe(ctx, fr)
		res.Files = append(res.Files, fr)
	}
	res.Cycle = l.stats.endCycle()

	if m := l.o.Metrics; m != nil {
		m.CycleSec.Observe(l.clock.Now().Sub(start).Seconds())
		m.LastCycleFiles.Set(float64(len(res.Files)))
	}
	if len(res.Files) == 0 {
		l.log.Info("no new files", zap.Int64("cycle", res.Cycle))
	} else {
		counts := map[Outcome]int{}
		for _, fr := range res.Files {
			counts[fr.Outcome]++
		}
		l.log.Info("cycle complete",
			zap.Int64("cycle", res.Cycle),
			zap.Int("files", len(res.Files)),
			zap.Int("committed", counts[OutcomeCommitted]),
			zap.Int("duplicates", counts[OutcomeDuplicate]),
			zap.Int("errors", len(res.Files)-counts[OutcomeCommitted]-counts[OutcomeDuplicate]),
		)
	}
	if res.Cycle%int64(l.o.ReportEvery) == 0 {
		l.report(context.WithoutCancel(ctx), false)
	}
	return res
}

// processFile runs one file through decode, channel, validation, store and lifecycle.
func (l *Loop) processFile(ctx context.Context, path string) (fr FileResult) {
	fr = FileResult{File: path, Channel: model.ChannelUnknown}
	log := l.log.With(zap.String("file", filepath.Base(path)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("unexpected failure while processing file", zap.Any("panic", r), zap.Stack("stack"))
			fr.Outcome, fr.Reason = OutcomeFailed, fmt.Sprint(r)
		}
	}()
	// moves must not be aborted by shutdown once the outcome is known
	moveCtx := context.WithoutCancel(ctx)

	rec, err := readRecord(path)
	if err != nil {
		fr.Reason = err.Error()
		if !errors.Is(err, model.ErrDecode) {
			log.Error("cannot read file", zap.Error(err))
			fr.Outcome = OutcomeFailed
			return fr
		}
		log.Warn("malformed file", zap.Error(err))
		fr.Outcome = OutcomeMalformed
		if err := l.o.Files.Quarantine(moveCtx, path, ""); err != nil {
			log.Error("quarantine failed", zap.Error(err))
		} else {
			log.Info("file quarantined", zap.String("reason", "malformed"))
		}
		return fr
	}

	ch, declared := schema.ResolveChannel(rec, path)
	fr.Channel = ch
	fr.OrderID, _ = rec.String(model.FieldOrderID)
	if !declared {
		log.Debug("channel detected from path", zap.String("channel", string(ch)))
	}

	if err := schema.Validate(rec, ch); err != nil {
		return l.rejectInvalid(moveCtx, log, fr, err)
	}
	order := model.Standardize(rec, ch)
	if l.o.StrictTotals {
		if err := schema.CheckTotal(order); err != nil {
			return l.rejectInvalid(moveCtx, log, fr, err)
		}
	}
	delete(l.attempts, path)

	out, err := l.insert(ctx, order)
	log = log.With(zap.String("id_commande", order.OrderID), zap.String("channel", string(ch)))
	switch out {
	case store.Inserted:
		fr.Outcome = OutcomeCommitted
		log.Info("order committed")
		if m := l.o.Metrics; m != nil {
			m.OrdersCommitted.WithLabelValues(string(ch)).Inc()
		}
		if err := l.o.Files.Archive(moveCtx, path); err != nil {
			// the next cycle sees a duplicate and archives it then
			log.Error("archive failed", zap.Error(err))
		}
	case store.Duplicate:
		fr.Outcome = OutcomeDuplicate
		log.Warn("duplicate order")
		if _, statErr := os.Stat(path); statErr == nil {
			if err := l.o.Files.Archive(moveCtx, path); err != nil {
				log.Error("archive failed", zap.Error(err))
			}
		}
	default:
		fr.Outcome = OutcomeUnavailable
		fr.Reason = errString(err)
		log.Error("store unavailable, file left for the next cycle", zap.Error(err))
	}
	return fr
}

// rejectInvalid leaves the file in place until it has failed InvalidMaxAttempts
// consecutive cycles, then quarantines it under errors/invalid.
func (l *Loop) rejectInvalid(ctx context.Context, log *zap.Logger, fr FileResult, verr error) FileResult {
	fr.Outcome, fr.Reason = OutcomeInvalid, verr.Error()
	n := l.attempts.fail(fr.File)
	log.Warn("validation failed", zap.String("reason", verr.Error()), zap.Int("attempt", n))
	if limit := l.o.InvalidMaxAttempts; limit > 0 && n >= limit {
		if err := l.o.Files.Quarantine(ctx, fr.File, invalidSubdir); err != nil {
			log.Error("quarantine failed", zap.Error(err))
			return fr
		}
		delete(l.attempts, fr.File)
		log.Info("file quarantined", zap.String("reason", invalidSubdir), zap.Int("attempts", n))
	}
	return fr
}

// insert bounds the store call. It is detached from ctx so shutdown never aborts it midway.
func (l *Loop) insert(ctx context.Context, o model.CanonicalOrder) (store.Outcome, error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.o.StoreTimeout)
	defer cancel()
	start := l.clock.Now()
	out, err := l.o.Store.InsertIfAbsent(sctx, o)
	if m := l.o.Metrics; m != nil {
		m.StoreInsertSec.Observe(l.clock.Now().Sub(start).Seconds())
	}
	if err != nil && out != store.Unavailable {
		// any error from the store means the order is not known to be committed
		out = store.Unavailable
	}
	return out, err
}

func (l *Loop) observe(ctx context.Context, fr FileResult) {
	if m := l.o.Metrics; m != nil {
		m.Files.WithLabelValues(string(fr.Outcome)).Inc()
	}
	e := changelog.Entry{
		RunID:   l.o.RunID,
		OrderID: fr.OrderID,
		Channel: string(fr.Channel),
		File:    filepath.Base(fr.File),
		Outcome: string(fr.Outcome),
		Reason:  fr.Reason,
		TS:      l.clock.Now().Unix(),
	}
	sctx, cancel := l.sinkContext(ctx)
	defer cancel()
	if err := l.o.Events.Append(sctx, e); err != nil {
		l.log.Warn("event sink failed", zap.Error(err))
		if m := l.o.Metrics; m != nil {
			m.EventSinkFailure.Inc()
		}
	}
}

func (l *Loop) report(ctx context.Context, final bool) {
	snap := l.stats.Snapshot(l.clock.Now().UTC())
	l.log.Info("run statistics",
		zap.Bool("final", final),
		zap.Int64("cycles", snap.Cycles),
		zap.Int64("total", snap.Total),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("duplicates", snap.Duplicates),
		zap.Int64("errors", snap.Errors),
		zap.Any("per_channel", snap.PerChannel),
		zap.Float64("success_rate", snap.SuccessRate()),
	)
	if err := report.Render(l.o.Out, snap); err != nil {
		l.log.Warn("cannot render statistics", zap.Error(err))
	}
	if l.o.Publisher != nil {
		pctx, cancel := l.sinkContext(ctx)
		defer cancel()
		if err := l.o.Publisher.PublishStats(pctx, snap); err != nil {
			l.log.Warn("statistics publication failed", zap.Error(err))
		}
	}
}

// sinkContext bounds one optional sink call, independent of shutdown.
func (l *Loop) sinkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.o.SinkTimeout)
}

func readRecord(path string) (model.SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return model.DecodeSourceRecord(f)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
