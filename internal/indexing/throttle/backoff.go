// Package throttle decides how long a poller pauses after an upstream failure.
package throttle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

// Config holds the pause floors and the escalating backoff bounds.
type Config struct {
	RateLimitFloor time.Duration `yaml:"rate_limit_floor"`
	TimeoutFloor   time.Duration `yaml:"timeout_floor"`
	NetworkFloor   time.Duration `yaml:"network_floor"`
	RotationFloor  time.Duration `yaml:"rotation_floor"`
	Base           time.Duration `yaml:"base"`
	Min            time.Duration `yaml:"min"`
	Max            time.Duration `yaml:"max"`
	JitterPercent  uint64        `yaml:"jitter_percent"`
}

// DefaultConfig returns the floors used by all ingestors.
func DefaultConfig() Config {
	return Config{
		RateLimitFloor: 60 * time.Second,
		TimeoutFloor:   30 * time.Second,
		NetworkFloor:   30 * time.Second,
		RotationFloor:  2 * time.Minute,
		Base:           2 * time.Minute,
		Min:            30 * time.Second,
		Max:            10 * time.Minute,
		JitterPercent:  20,
	}
}

// Rotator is the endpoint pool as seen by the controller.
type Rotator interface {
	Len() int
	RotateFrom(endpoint string) (from, to string, rotated bool)
	RetryAfter(endpoint string) time.Duration
}

// RotationRecorder counts endpoint rotations.
type RotationRecorder interface {
	IncRotation(stream string)
}

// Decision is the outcome of classifying one failure.
type Decision struct {
	Signal  routing.Signal
	Floor   time.Duration
	Pause   time.Duration
	Rotated bool
}

// Controller keeps the escalating backoff of one poller.
type Controller struct {
	stream  string
	config  Config
	pool    Rotator
	metrics RotationRecorder
	log     *slog.Logger

	mu         sync.Mutex
	backoff    retry.Backoff
	newBackoff func() retry.Backoff
}

// NewController creates a controller. pool and metrics may be nil.
func NewController(stream string, cfg Config, pool Rotator, metrics RotationRecorder, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		stream:  stream,
		config:  cfg,
		pool:    pool,
		metrics: metrics,
		log:     log.With("component", "backoff", "stream", stream),
	}
	c.newBackoff = c.defaultBackoff
	c.backoff = c.newBackoff()
	return c
}

func (c *Controller) defaultBackoff() retry.Backoff {
	b := retry.NewExponential(c.config.Base)
	b = retry.WithCappedDuration(c.config.Max, b)
	if c.config.JitterPercent > 0 {
		b = retry.WithJitterPercent(c.config.JitterPercent, b)
	}
	return b
}

// Pause classifies err and returns how long the poller should stay in cooldown.
// Unclassified errors yield a zero pause and leave the backoff untouched.
func (c *Controller) Pause(err error) Decision {
	d := Decision{Signal: routing.ClassifyError(err)}

	switch d.Signal {
	case routing.SignalRateLimit:
		d.Floor = c.config.RateLimitFloor
	case routing.SignalTimeout:
		d.Floor = c.config.TimeoutFloor
	case routing.SignalNetwork:
		d.Floor = c.config.NetworkFloor
	default:
		return d
	}

	if d.Signal == routing.SignalRateLimit && c.pool != nil {
		if endpoint, ok := routing.QuotaSource(err); ok {
			if c.pool.Len() > 1 {
				if from, to, rotated := c.pool.RotateFrom(endpoint); rotated {
					d.Rotated = true
					d.Floor = max(d.Floor, c.config.RotationFloor)
					c.log.Warn("Rotating indexer endpoint", "from", from, "to", to)
					if c.metrics != nil {
						c.metrics.IncRotation(c.stream)
					}
				}
			}
			// Staying on the endpoint: honor its Retry-After.
			if !d.Rotated {
				d.Floor = max(d.Floor, c.pool.RetryAfter(endpoint))
			}
		}
	}

	c.mu.Lock()
	next, _ := c.backoff.Next()
	c.mu.Unlock()

	next = max(next, c.config.Min)
	d.Pause = max(d.Floor, next)
	return d
}

// Reset drops the escalating backoff after a successful tick.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.backoff = c.newBackoff()
	c.mu.Unlock()
}
