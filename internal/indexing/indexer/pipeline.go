package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyl19970726/haigo-sub001/internal/core/cursor"
	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/mapper"
	"github.com/cyl19970726/haigo-sub001/internal/infra/chain/aptos"
)

// Event outcomes reported to metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
)

// Pipeline implements the Indexer interface
type Pipeline struct {
	cfg     Config
	log     *slog.Logger
	metrics Metrics

	running  atomic.Bool
	polling  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	ticks    sync.WaitGroup

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	state         cursor.State
	position      domain.Position
	cooldownUntil time.Time
	lastPause     time.Duration
	lastError     string
	lastTickAt    time.Time
	applied       uint64
	skipped       uint64
	duplicates    uint64
	errors        uint64
}

// NewPipeline creates a new polling pipeline
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Stream == "":
		return nil, errors.New("indexer: stream is required")
	case cfg.Handler == nil || cfg.Fetcher == nil || cfg.Cursor == nil || cfg.Backoff == nil:
		return nil, fmt.Errorf("indexer %s: handler, fetcher, cursor and backoff are required", cfg.Stream)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxPagesPerTick <= 0 {
		cfg.MaxPagesPerTick = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Pipeline{
		cfg:      cfg,
		log:      cfg.Logger.With("stream", cfg.Stream),
		metrics:  cfg.Metrics,
		stop:     make(chan struct{}),
		now:      time.Now,
		sleep:    sleepContext,
		state:    cursor.StateIdle,
		position: domain.Genesis,
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	return p, nil
}

// Start bootstraps, runs one tick immediately and then one per interval.
// Each tick runs detached from ctx so shutdown never interrupts a page
// half-way; Start returns once the in-flight tick has finished.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	p.Bootstrap(ctx)

	tickCtx := context.WithoutCancel(ctx)
	p.spawnTick(tickCtx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return nil
		case <-p.stop:
			p.shutdown()
			return nil
		case <-ticker.C:
			p.spawnTick(tickCtx)
		}
	}
}

// Stop stops the pipeline
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

func (p *Pipeline) spawnTick(ctx context.Context) {
	p.ticks.Add(1)
	go func() {
		defer p.ticks.Done()
		p.PollOnce(ctx)
	}()
}

func (p *Pipeline) shutdown() {
	p.ticks.Wait()
	p.setState(cursor.StateStopped, "shutdown")
	p.log.Info("Poller stopped", "position", p.Position().String())
}

// Bootstrap loads the start cursor.
func (p *Pipeline) Bootstrap(ctx context.Context) {
	p.setState(cursor.StateBootstrapping, "start")
	pos := p.cfg.Cursor.Bootstrap(ctx, p.cfg.Stream, p.cfg.Start)

	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()

	p.setState(cursor.StateIdle, "bootstrapped")
}

// Position returns the in-memory cursor.
func (p *Pipeline) Position() domain.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// PollOnce runs one tick. It never fails: errors end the tick and may put
// the poller in cooldown.
func (p *Pipeline) PollOnce(ctx context.Context) {
	if !p.polling.CompareAndSwap(false, true) {
		p.log.Debug("Previous tick still running, skipping")
		return
	}
	defer p.polling.Store(false)

	start := p.now()

	p.mu.Lock()
	stopped := p.state == cursor.StateStopped
	cooling := start.Before(p.cooldownUntil)
	p.lastTickAt = start
	p.mu.Unlock()

	if stopped {
		return
	}
	if cooling {
		p.log.Debug("In cooldown, skipping tick", "until", p.GetStatus().CooldownUntil)
		return
	}

	p.setState(cursor.StatePolling, "tick")
	err := p.poll(ctx)
	p.metrics.ObserveTick(p.cfg.Stream, p.now().Sub(start))

	if err == nil {
		p.cfg.Backoff.Reset()
		p.setState(cursor.StateIdle, "tick complete")
		return
	}
	p.handleError(err)
}

// poll fetches and applies up to MaxPagesPerTick pages.
func (p *Pipeline) poll(ctx context.Context) error {
	for page := 0; page < p.cfg.MaxPagesPerTick; page++ {
		if page > 0 {
			if err := p.sleep(ctx, p.cfg.PageDelay); err != nil {
				return err
			}
		}

		after := p.Position()
		events, err := p.cfg.Fetcher.FetchEvents(ctx, aptos.EventQuery{
			Types:          p.cfg.Handler.EventTypes(),
			After:          after,
			Limit:          p.cfg.PageSize,
			IncludeTxnMeta: p.cfg.Handler.IncludeTxnMeta(),
		})
		if err != nil {
			return fmt.Errorf("fetch events after %s: %w", after, err)
		}
		if len(events) == 0 {
			return nil
		}

		last, applyErr := p.applyPage(ctx, events, after)
		if last.After(after) {
			if err := p.advance(ctx, last); err != nil {
				if applyErr == nil {
					return err
				}
				p.log.Error("Failed to save partial progress", "position", last.String(), "error", err)
			}
		}
		if applyErr != nil {
			return applyErr
		}

		if len(events) < p.cfg.PageSize {
			return nil
		}
	}
	return nil
}

// applyPage applies events in order and returns the position of the last
// event that no longer needs to be fetched.
func (p *Pipeline) applyPage(ctx context.Context, events []domain.RawEvent, after domain.Position) (domain.Position, error) {
	last := after
	for _, ev := range events {
		pos, err := ev.Position()
		if err != nil {
			p.skip(ctx, ev, domain.Position{}, err)
			continue
		}
		if !pos.After(last) {
			p.count(&p.duplicates)
			p.metrics.IncEvents(p.cfg.Stream, OutcomeDuplicate)
			continue
		}

		if err := p.cfg.Handler.Apply(ctx, ev, pos); err != nil {
			if errors.Is(err, mapper.ErrMalformed) {
				p.skip(ctx, ev, pos, err)
				last = pos
				continue
			}
			return last, fmt.Errorf("apply event %s: %w", pos, err)
		}

		p.count(&p.applied)
		p.metrics.IncEvents(p.cfg.Stream, OutcomeApplied)
		last = pos
	}
	return last, nil
}

func (p *Pipeline) skip(ctx context.Context, ev domain.RawEvent, pos domain.Position, cause error) {
	p.log.Warn("Skipping malformed event", "position", pos.String(), "type", ev.Type, "error", cause)
	p.count(&p.skipped)
	p.metrics.IncEvents(p.cfg.Stream, OutcomeSkipped)

	if p.cfg.Recovery == nil {
		return
	}
	if err := p.cfg.Recovery.Record(ctx, p.cfg.Stream, ev, pos, cause); err != nil {
		p.log.Error("Failed to record skipped event", "position", pos.String(), "error", err)
	}
}

func (p *Pipeline) advance(ctx context.Context, pos domain.Position) error {
	if err := p.cfg.Cursor.Advance(ctx, p.cfg.Stream, pos); err != nil {
		return fmt.Errorf("advance cursor to %s: %w", pos, err)
	}

	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()

	p.metrics.SetLastVersion(p.cfg.Stream, pos.Version)
	return nil
}

func (p *Pipeline) handleError(err error) {
	d := p.cfg.Backoff.Pause(err)
	p.metrics.IncError(p.cfg.Stream, d.Signal.String())

	p.mu.Lock()
	p.errors++
	p.lastError = err.Error()
	p.lastPause = d.Pause
	if d.Pause > 0 {
		p.cooldownUntil = p.now().Add(d.Pause)
	}
	p.mu.Unlock()

	p.log.Error("Tick failed",
		"error", err,
		"signal", d.Signal.String(),
		"pause", d.Pause,
		"rotated", d.Rotated,
	)

	if d.Pause > 0 {
		p.metrics.SetCooldown(p.cfg.Stream, d.Pause)
		p.setState(cursor.StateCooldown, d.Signal.String())
		return
	}
	p.setState(cursor.StateIdle, "error without backoff")
}

func (p *Pipeline) setState(to cursor.State, reason string) {
	p.mu.Lock()
	from := p.state
	if from == to {
		p.mu.Unlock()
		return
	}
	if !cursor.CanTransition(from, to) {
		p.mu.Unlock()
		p.log.Warn("Ignoring invalid state transition", "from", from, "to", to, "reason", reason)
		return
	}
	p.state = to
	p.mu.Unlock()

	p.cfg.Cursor.RecordTransition(p.cfg.Stream, cursor.NewTransition(from, to, reason))
}

func (p *Pipeline) count(c *uint64) {
	p.mu.Lock()
	*c++
	p.mu.Unlock()
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Stream:        p.cfg.Stream,
		State:         p.state,
		Running:       p.running.Load(),
		Position:      p.position,
		CooldownUntil: p.cooldownUntil,
		LastPause:     p.lastPause,
		LastError:     p.lastError,
		LastTickAt:    p.lastTickAt,
		Applied:       p.applied,
		Skipped:       p.skipped,
		Duplicates:    p.duplicates,
		Errors:        p.errors,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
