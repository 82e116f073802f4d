package runner

import (
	"time"
)

type ProgressConfig struct {
	MaxInterval time.Duration
	MaxCount    int
}

type ProgressOption func(*ProgressConfig)

func WithMaxInterval(d time.Duration) ProgressOption {
	return func(cfg *ProgressConfig) {
		cfg.MaxInterval = d
	}
}

func WithMaxCount(c int) ProgressOption {
	return func(cfg *ProgressConfig) {
		cfg.MaxCount = c
	}
}

// ProgressTicker signals on C once enough records or time have passed since the last signal
type ProgressTicker struct {
	c          ProgressConfig
	count      int
	lastReport time.Time
	now        func() time.Time
	channel    chan struct{}
}

func NewProgressTicker(opts ...ProgressOption) *ProgressTicker {
	cfg := ProgressConfig{
		MaxInterval: 30 * time.Second,
		MaxCount:    100_000,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &ProgressTicker{
		c:          cfg,
		lastReport: time.Now(),
		now:        time.Now,
		channel:    make(chan struct{}, 1),
	}
}

func (p *ProgressTicker) RecordProcessed(count int) {
	p.count += count
	if p.count > 0 && (p.count >= p.c.MaxCount || p.now().Sub(p.lastReport) >= p.c.MaxInterval) {
		select {
		case p.channel <- struct{}{}:
		default:
		}

		p.count = 0
		p.lastReport = p.now()
	}
}

func (p *ProgressTicker) C() <-chan struct{} {
	return p.channel
}

func (p *ProgressTicker) Close() {
	close(p.channel)
}
