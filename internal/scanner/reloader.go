package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/rules"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// generationSource reports the shared rule generation counter, bumped
// by whichever process last changed the rule set
type generationSource interface {
	Generation(ctx context.Context) (int64, error)
}

// Reloader polls the shared generation counter and triggers a registry
// reload when another worker has changed the rule set. Polling the
// counter is cheap; full rule bodies are only fetched when it moves.
type Reloader struct {
	registry *rules.Registry
	source   generationSource
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	lastGen int64
}

// NewReloader creates a reloader polling at the given interval
func NewReloader(registry *rules.Registry, source generationSource, interval time.Duration) *Reloader {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reloader{
		registry: registry,
		source:   source,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins polling in the background
func (r *Reloader) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader is already running")
	}
	r.running = true
	r.mu.Unlock()

	logger.Info("starting rule reloader", logger.Duration("interval", r.interval))

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop halts polling and waits for the loop to exit
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func (r *Reloader) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkOnce()
		}
	}
}

func (r *Reloader) checkOnce() {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	gen, err := r.source.Generation(ctx)
	if err != nil {
		logger.Warn("failed to read rule generation", logger.ErrorField(err))
		return
	}

	r.mu.Lock()
	changed := gen != r.lastGen
	r.lastGen = gen
	r.mu.Unlock()

	if !changed {
		return
	}

	if err := r.registry.Reload(ctx); err != nil {
		logger.Error("rule reload failed", logger.ErrorField(err))
		return
	}
	logger.Info("rules reloaded", logger.Int64("generation", gen))
}
