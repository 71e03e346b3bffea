package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whaleScope/internal/chain"
	"whaleScope/internal/classify"
	"whaleScope/internal/emit"
	"whaleScope/internal/labels"
	"whaleScope/internal/metrics"
	"whaleScope/internal/model"
	"whaleScope/internal/storage"
)

// ErrNoProgress is returned by RunCycle when the cycle ended before the
// checkpoint could advance.
var ErrNoProgress = errors.New("no progress")

// RunConfig holds per-chain scan settings.
type RunConfig struct {
	ChainID    string
	Vocabulary classify.Vocabulary
	Threshold  classify.Threshold
	Window     uint64
	Interval   time.Duration
	Retention  int
	Unit       model.Unit
	Symbol     string
}

// Checkpoints is the checkpoint side of storage.
type Checkpoints interface {
	Get(ctx context.Context, chain string) (uint64, bool, error)
	Set(ctx context.Context, chain string, pos uint64) error
}

// Events is the history side of storage.
type Events interface {
	AppendAndReconcile(ctx context.Context, chain string, events []model.WhaleEvent, retention int) (storage.AppendResult, error)
}

// Runner scans one chain forever: fetch head, compute the next range,
// fetch transfers, classify, persist, advance the checkpoint, sleep.
type Runner struct {
	cfg         RunConfig
	fetcher     chain.Fetcher
	labels      *labels.Source
	checkpoints Checkpoints
	events      Events
	sink        emit.Sink
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time

	state scannerState
}

// Deps are the collaborators of a Runner. Sink and Metrics are optional.
type Deps struct {
	Fetcher     chain.Fetcher
	Labels      *labels.Source
	Checkpoints Checkpoints
	Events      Events
	Sink        emit.Sink
	Metrics     *metrics.Metrics
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, deps Deps, logger *zap.Logger) (*Runner, error) {
	if cfg.ChainID == "" {
		return nil, fmt.Errorf("chain id is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("%s: fetcher is nil", cfg.ChainID)
	}
	if deps.Checkpoints == nil || deps.Events == nil {
		return nil, fmt.Errorf("%s: storage is nil", cfg.ChainID)
	}
	if cfg.Threshold == nil {
		return nil, fmt.Errorf("%s: threshold is required", cfg.ChainID)
	}
	if cfg.Window == 0 {
		return nil, fmt.Errorf("%s: window must be greater than zero", cfg.ChainID)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Vocabulary == "" {
		cfg.Vocabulary = classify.BuySell
	}
	if cfg.Unit == "" {
		cfg.Unit = model.UnitNative
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Labels == nil {
		deps.Labels = labels.StaticSource(labels.NewIndex(nil, nil))
	}
	if deps.Sink == nil {
		deps.Sink = emit.Nop{}
	}
	return &Runner{
		cfg:         cfg,
		fetcher:     deps.Fetcher,
		labels:      deps.Labels,
		checkpoints: deps.Checkpoints,
		events:      deps.Events,
		sink:        deps.Sink,
		metrics:     deps.Metrics,
		logger:      logger.With(zap.String("chain", cfg.ChainID)),
		now:         time.Now,
	}, nil
}

// Chain returns the chain id the runner scans.
func (r *Runner) Chain() string {
	return r.cfg.ChainID
}

// Status returns a snapshot for the read API.
func (r *Runner) Status() Status {
	return r.state.snapshot(r.cfg.ChainID)
}

// Run loops until ctx is done. A failed cycle never stops the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("scanner start",
		zap.Uint64("window", r.cfg.Window),
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("retention", r.cfg.Retention),
	)
	for {
		r.RunCycle(ctx)

		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.state.set(StateIdle)
			r.logger.Info("scanner stop")
			return nil
		case <-timer.C:
		}
	}
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	Range      chain.Range
	Head       uint64
	Checkpoint uint64
	Transfers  int
	Events     []model.WhaleEvent
	Suppressed map[classify.SuppressReason]int
	Partial    bool
}

// RunCycle performs one pass of the state machine and ends in
// StateSleeping. Panics are recovered and reported as errors.
func (r *Runner) RunCycle(ctx context.Context) (res CycleResult, err error) {
	started := r.now()
	r.state.set(StateIdle)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", r.state.get(), p)
			r.logger.Error("scan cycle panicked", zap.Any("panic", p), zap.String("state", r.state.get().String()))
		}
		outcome := "ok"
		switch {
		case errors.Is(err, ErrNoProgress):
			outcome = "idle"
		case err != nil:
			outcome = "error"
		case res.Partial:
			outcome = "partial"
		}
		r.metrics.ObserveCycle(r.cfg.ChainID, outcome, r.now().Sub(started).Seconds())
		r.state.finish(r.now(), res.Head, res.Checkpoint, errorOrNil(err))
		r.state.set(StateSleeping)
	}()

	r.state.set(StateFetchingLatest)
	head, err := r.fetcher.LatestPosition(ctx)
	if err != nil {
		r.metrics.FetchFailed(r.cfg.ChainID, "latest")
		r.logger.Warn("fetch head failed", zap.Error(err))
		return res, err
	}
	res.Head = head

	r.state.set(StateComputingRange)
	checkpoint, hasCheckpoint, err := r.checkpoints.Get(ctx, r.cfg.ChainID)
	if err != nil {
		r.logger.Warn("checkpoint read degraded", zap.Error(err))
	}
	res.Checkpoint = checkpoint
	r.metrics.SetPositions(r.cfg.ChainID, head, checkpoint)

	rng, ok := ComputeRange(checkpoint, hasCheckpoint, head, r.cfg.Window)
	if !ok {
		r.logger.Debug("no new positions", zap.Uint64("head", head), zap.Uint64("checkpoint", checkpoint))
		return res, ErrNoProgress
	}
	res.Range = rng

	r.state.set(StateFetchingTransfers)
	batch, err := r.fetcher.FetchTransfers(ctx, rng.From, rng.To)
	if err != nil {
		r.metrics.FetchFailed(r.cfg.ChainID, "transfers")
		r.logger.Warn("fetch transfers failed, range skipped",
			zap.Uint64("from", rng.From),
			zap.Uint64("to", rng.To),
			zap.Error(err),
		)
		return res, err
	}
	if batch.Partial {
		r.metrics.FetchFailed(r.cfg.ChainID, "transfers")
		r.logger.Warn("partial range",
			zap.Uint64("from", rng.From),
			zap.Uint64("to", rng.To),
			zap.Uint64("last_ok", batch.LastOK),
			zap.Error(batch.Err),
		)
	}
	res.Partial = batch.Partial
	res.Transfers = len(batch.Transfers)

	r.state.set(StateClassifying)
	minimum, err := r.cfg.Threshold.Minimum(ctx)
	if err != nil {
		r.logger.Warn("threshold unavailable, cycle skipped", zap.Error(err))
		return res, err
	}
	events, suppressed := r.classify(batch, minimum)
	res.Suppressed = suppressed

	r.state.set(StatePersisting)
	if len(events) > 0 {
		appended, err := r.events.AppendAndReconcile(ctx, r.cfg.ChainID, events, r.cfg.Retention)
		if err != nil {
			r.logger.Error("persist events failed", zap.Int("events", len(events)), zap.Error(err))
			return res, err
		}
		res.Events = appended.Added
	}
	if err := r.checkpoints.Set(ctx, r.cfg.ChainID, batch.LastOK); err != nil {
		r.logger.Error("checkpoint write failed", zap.Uint64("checkpoint", batch.LastOK), zap.Error(err))
		return res, err
	}
	res.Checkpoint = batch.LastOK
	r.metrics.SetPositions(r.cfg.ChainID, head, batch.LastOK)

	for _, e := range res.Events {
		r.metrics.EventPersisted(r.cfg.ChainID, string(e.Type))
	}
	if len(res.Events) > 0 {
		if err := r.sink.Publish(ctx, res.Events); err != nil {
			r.logger.Warn("publish events failed", zap.Int("events", len(res.Events)), zap.Error(err))
		}
	}

	r.logger.Info("scan cycle complete",
		zap.Uint64("from", rng.From),
		zap.Uint64("to", batch.LastOK),
		zap.Uint64("head", head),
		zap.Int("transfers", res.Transfers),
		zap.Int("events", len(res.Events)),
		zap.String("threshold", minimum.String()),
	)
	return res, nil
}

// classify turns a batch into events: suppressed transfers are dropped,
// then the threshold applies, then duplicates within the batch.
func (r *Runner) classify(batch chain.Batch, minimum decimal.Decimal) ([]model.WhaleEvent, map[classify.SuppressReason]int) {
	idx := r.labels.Index()
	suppressed := make(map[classify.SuppressReason]int)
	seen := make(map[model.EventKey]struct{})
	var out []model.WhaleEvent

	for _, t := range batch.Transfers {
		if t.Block > batch.LastOK {
			continue
		}
		if t.Hash == "" || t.Value == nil || t.Value.Sign() < 0 {
			r.logger.Warn("drop malformed transfer", zap.String("hash", t.Hash), zap.Uint64("block", t.Block))
			continue
		}

		verdict := classify.Classify(t.From, t.To, idx, r.cfg.Vocabulary)
		if verdict.Suppressed() {
			suppressed[verdict.Reason]++
			r.metrics.TransferSuppressed(r.cfg.ChainID, string(verdict.Reason))
			continue
		}

		amount := t.Amount()
		if !classify.MeetsThreshold(amount, minimum) {
			continue
		}

		key := model.EventKey{ChainID: r.cfg.ChainID, Hash: t.Hash}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, model.WhaleEvent{
			Hash:      t.Hash,
			ChainID:   r.cfg.ChainID,
			Block:     t.Block,
			From:      t.From,
			To:        t.To,
			Value:     amount,
			Unit:      r.cfg.Unit,
			Symbol:    strings.ToUpper(r.cfg.Symbol),
			Time:      t.Timestamp.UTC().Truncate(time.Second),
			Type:      verdict.Type,
			FromLabel: idx.Label(t.From),
			ToLabel:   idx.Label(t.To),
		})
	}
	return out, suppressed
}

func errorOrNil(err error) error {
	if errors.Is(err, ErrNoProgress) {
		return nil
	}
	return err
}
