// Package sim runs the scheduler on a hosted Go runtime. A goroutine
// driven by time.Ticker stands in for the timer interrupt and a mutex
// stands in for masking interrupts.
package sim

import (
	"sync"
	"time"

	"ticktoucan/core"
)

// Platform implements core.Platform for simulation and tests.
type Platform struct {
	mu sync.Mutex // the "interrupt mask"

	ctl     sync.Mutex // guards the fields below
	stop    chan struct{}
	done    chan struct{}
	period  time.Duration
	scale   float64
	delayed uint64
}

// Option configures a Platform.
type Option func(*Platform)

// WithTimeScale stretches (>1) or compresses (<1) simulated time; the tick
// period becomes periodMs*scale of wall time.
func WithTimeScale(scale float64) Option {
	return func(p *Platform) {
		if scale > 0 {
			p.scale = scale
		}
	}
}

// New creates a simulation platform.
func New(opts ...Option) *Platform {
	p := &Platform{scale: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Platform) EnterCritical() core.InterruptState {
	p.mu.Lock()
	return 0
}

func (p *Platform) ExitCritical(core.InterruptState) {
	p.mu.Unlock()
}

// SetupTickTimer starts a goroutine calling tick every periodMs
// milliseconds, stopping and joining any previous one first.
func (p *Platform) SetupTickTimer(periodMs uint32, tick func()) error {
	if periodMs == 0 || tick == nil {
		return core.ErrInvalidPeriod
	}
	p.CleanupTickTimer()

	p.ctl.Lock()
	defer p.ctl.Unlock()

	period := time.Duration(float64(time.Duration(periodMs)*time.Millisecond) * p.scale)
	if period <= 0 {
		period = time.Microsecond
	}
	p.period = period
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(period, tick, p.stop, p.done)
	return nil
}

// CleanupTickTimer stops the tick goroutine and waits for it to exit, so
// no tick is delivered after it returns.
func (p *Platform) CleanupTickTimer() {
	p.ctl.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.ctl.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Period returns the wall-clock period of the running ticker, or zero.
func (p *Platform) Period() time.Duration {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	if p.stop == nil {
		return 0
	}
	return p.period
}

// Running reports whether a tick goroutine is installed.
func (p *Platform) Running() bool {
	return p.Period() != 0
}

// Late returns how many ticks were delivered late because the ticker
// dropped a period while tick was running.
func (p *Platform) Late() uint64 {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	return p.delayed
}

func (p *Platform) run(period time.Duration, tick func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if now.Sub(last) > period+period/2 {
				p.ctl.Lock()
				p.delayed++
				p.ctl.Unlock()
			}
			last = now
			tick()
		}
	}
}

var _ core.Platform = (*Platform)(nil)
