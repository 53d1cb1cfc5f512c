package throttle

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

type fakePool struct {
	endpoints  []string
	index      int
	retryAfter map[string]time.Duration
}

func (p *fakePool) Len() int { return len(p.endpoints) }

func (p *fakePool) RetryAfter(endpoint string) time.Duration { return p.retryAfter[endpoint] }

func (p *fakePool) RotateFrom(endpoint string) (string, string, bool) {
	if len(p.endpoints) < 2 || endpoint != p.endpoints[p.index] {
		return "", "", false
	}
	from := p.endpoints[p.index]
	p.index = (p.index + 1) % len(p.endpoints)
	return from, p.endpoints[p.index], true
}

type rotationCounter struct{ n int }

func (r *rotationCounter) IncRotation(string) { r.n++ }

// newTestController disables jitter so pauses are exact.
func newTestController(pool Rotator, metrics RotationRecorder) *Controller {
	cfg := DefaultConfig()
	cfg.JitterPercent = 0
	return NewController("orders_created", cfg, pool, metrics, nil)
}

func TestPause_Floors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		signal routing.Signal
		floor  time.Duration
		pause  time.Duration
	}{
		{"rate limit", errors.New("429 Too Many Requests"), routing.SignalRateLimit, time.Minute, 2 * time.Minute},
		{"timeout", errors.New("request timed out"), routing.SignalTimeout, 30 * time.Second, 2 * time.Minute},
		{"network", errors.New("socket hang up"), routing.SignalNetwork, 30 * time.Second, 2 * time.Minute},
		{"unknown", errors.New("unexpected response shape"), routing.SignalNone, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(nil, nil)
			d := c.Pause(tt.err)
			if d.Signal != tt.signal || d.Floor != tt.floor || d.Pause != tt.pause {
				t.Errorf("Pause = %+v, want signal=%s floor=%v pause=%v", d, tt.signal, tt.floor, tt.pause)
			}
		})
	}
}

func TestPause_GrowthAndReset(t *testing.T) {
	c := newTestController(nil, nil)
	err := errors.New("rate limit exceeded")

	want := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 10 * time.Minute, 10 * time.Minute}
	var last time.Duration
	for i, w := range want {
		d := c.Pause(err)
		if d.Pause != w {
			t.Errorf("attempt %d: pause = %v, want %v", i, d.Pause, w)
		}
		if d.Pause < last {
			t.Errorf("attempt %d: pause decreased from %v to %v", i, last, d.Pause)
		}
		last = d.Pause
	}

	c.Reset()
	if d := c.Pause(err); d.Pause != 2*time.Minute {
		t.Errorf("after reset: pause = %v", d.Pause)
	}
}

func TestPause_UnknownErrorDoesNotEscalate(t *testing.T) {
	c := newTestController(nil, nil)
	c.Pause(errors.New("something odd"))
	c.Pause(errors.New("something odd"))
	if d := c.Pause(errors.New("rate limit")); d.Pause != 2*time.Minute {
		t.Errorf("pause = %v, want first backoff step", d.Pause)
	}
}

func TestPause_JitterBounds(t *testing.T) {
	c := NewController("staking", DefaultConfig(), nil, nil, nil)
	for i := 0; i < 50; i++ {
		c.Reset()
		d := c.Pause(errors.New("429"))
		if d.Pause < 96*time.Second || d.Pause > 144*time.Second {
			t.Fatalf("jittered pause %v outside [96s, 144s]", d.Pause)
		}
	}
}

func TestPause_RotatesOnQuotaFromCurrentEndpoint(t *testing.T) {
	pool := &fakePool{endpoints: []string{"https://a", "https://b"}}
	counter := &rotationCounter{}
	c := newTestController(pool, counter)

	err := fmt.Errorf("fetch: %w", &provider.StatusError{Status: 429, Endpoint: "https://a", Throttled: true})
	d := c.Pause(err)

	if !d.Rotated || pool.endpoints[pool.index] != "https://b" {
		t.Fatalf("expected rotation to https://b, got %+v current=%s", d, pool.endpoints[pool.index])
	}
	if d.Floor != 2*time.Minute || d.Pause < time.Minute {
		t.Errorf("rotation floor not applied: %+v", d)
	}
	if counter.n != 1 {
		t.Errorf("rotations counted = %d", counter.n)
	}

	// A late signal from the endpoint we already left must not rotate again.
	d = c.Pause(err)
	if d.Rotated || pool.endpoints[pool.index] != "https://b" {
		t.Errorf("stale signal rotated the pool: %+v", d)
	}
}

func TestPause_NoRotationWithSingleEndpoint(t *testing.T) {
	pool := &fakePool{endpoints: []string{"https://a"}}
	c := newTestController(pool, nil)

	d := c.Pause(&provider.StatusError{Status: 429, Endpoint: "https://a", Throttled: true})
	if d.Rotated || d.Floor != time.Minute {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestPause_RetryAfterRaisesFloor(t *testing.T) {
	pool := &fakePool{
		endpoints:  []string{"https://a"},
		retryAfter: map[string]time.Duration{"https://a": 5 * time.Minute},
	}
	c := newTestController(pool, nil)

	d := c.Pause(&provider.StatusError{Status: 429, Endpoint: "https://a", Throttled: true})
	if d.Floor != 5*time.Minute || d.Pause != 5*time.Minute {
		t.Errorf("retry-after not applied: %+v", d)
	}

	// A short Retry-After never lowers the configured floor.
	pool.retryAfter["https://a"] = 10 * time.Second
	if d := c.Pause(&provider.StatusError{Status: 429, Endpoint: "https://a", Throttled: true}); d.Floor != time.Minute {
		t.Errorf("floor = %v", d.Floor)
	}
}

func TestPause_RotationIgnoresRetryAfterOfOldEndpoint(t *testing.T) {
	pool := &fakePool{
		endpoints:  []string{"https://a", "https://b"},
		retryAfter: map[string]time.Duration{"https://a": 30 * time.Minute},
	}
	c := newTestController(pool, nil)

	d := c.Pause(&provider.StatusError{Status: 429, Endpoint: "https://a", Throttled: true})
	if !d.Rotated || d.Floor != 2*time.Minute {
		t.Errorf("decision = %+v", d)
	}
}

func TestReset_UsesHook(t *testing.T) {
	c := newTestController(nil, nil)
	c.newBackoff = func() retry.Backoff { return retry.NewConstant(5 * time.Second) }
	c.Reset()

	// Min clamps the constant backoff, the floor wins over both.
	if d := c.Pause(errors.New("timeout")); d.Pause != 30*time.Second {
		t.Errorf("pause = %v", d.Pause)
	}
}
