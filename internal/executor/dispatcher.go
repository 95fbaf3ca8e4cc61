package executor

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"project_broadcast/internal/infrastructure"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type run struct {
	id       string
	deviceID string
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
}

// Dispatcher owns the running dispatch loops, at most one per campaign.
type Dispatcher struct {
	registry *Registry
	control  ControlPlane
	metrics  *infrastructure.Metrics
	logger   *zap.Logger

	paceMin time.Duration
	paceMax time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	rnd     *rand.Rand
	rndMu   sync.Mutex

	base     context.Context
	stopBase context.CancelFunc
	mu       sync.Mutex
	runs     map[int]*run
	wg       sync.WaitGroup
}

type DispatcherConfig struct {
	PaceMin time.Duration
	PaceMax time.Duration
	// Sleep replaces the pacing wait, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(registry *Registry, control ControlPlane, cfg DispatcherConfig, metrics *infrastructure.Metrics, logger *zap.Logger) *Dispatcher {
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.PaceMax < cfg.PaceMin {
		cfg.PaceMax = cfg.PaceMin
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		control:  control,
		metrics:  metrics,
		logger:   logger,
		paceMin:  cfg.PaceMin,
		paceMax:  cfg.PaceMax,
		sleep:    cfg.Sleep,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		base:     base,
		stopBase: cancel,
		runs:     make(map[int]*run),
	}
}

// pace returns a uniformly random delay in [paceMin, paceMax].
func (d *Dispatcher) pace() time.Duration {
	span := int64(d.paceMax - d.paceMin)
	if span <= 0 {
		return d.paceMin
	}
	d.rndMu.Lock()
	defer d.rndMu.Unlock()
	return d.paceMin + time.Duration(d.rnd.Int63n(span+1))
}

// Start launches the campaign's loop in the background. It returns false if
// a loop for the campaign is already running. A loop that was stopped but has
// not exited yet is waited for before the new one makes its first pull.
func (d *Dispatcher) Start(campaignID int, deviceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, ok := d.runs[campaignID]
	if ok && !prev.stopped {
		return false
	}
	if d.base.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(d.base)
	r := &run{id: uuid.NewString(), deviceID: deviceID, cancel: cancel, done: make(chan struct{})}
	d.runs[campaignID] = r

	log := d.logger.With(
		zap.Int("campaign_id", campaignID),
		zap.String("device_id", deviceID),
		zap.String("run_id", r.id))
	l := &loop{
		campaignID: campaignID,
		deviceID:   deviceID,
		registry:   d.registry,
		control:    d.control,
		metrics:    d.metrics,
		logger:     log,
		pace:       d.pace,
		sleep:      d.sleep,
	}

	d.wg.Add(1)
	d.metrics.DispatchLoops.Inc()
	go func() {
		defer d.wg.Done()
		defer d.metrics.DispatchLoops.Dec()
		defer close(r.done)
		defer d.finish(campaignID, r)

		if prev != nil {
			select {
			case <-prev.done:
			case <-ctx.Done():
				return
			}
		}

		log.Info("dispatch loop started")
		if err := l.run(ctx); err != nil {
			log.Error("dispatch loop aborted", zap.Error(err))
			infrastructure.CaptureError(err, map[string]string{"op": "dispatch_loop", "device_id": deviceID})
			return
		}
		log.Info("dispatch loop finished")
	}()
	return true
}

func (d *Dispatcher) finish(campaignID int, r *run) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runs[campaignID] == r {
		delete(d.runs, campaignID)
	}
	r.cancel()
}

// Stop cancels the campaign's loop. A pacing sleep is interrupted at once; an
// in-flight send is reported before the loop exits.
func (d *Dispatcher) Stop(campaignID int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.runs[campaignID]
	if !ok || r.stopped {
		return false
	}
	r.stopped = true
	r.cancel()
	return true
}

// Wait blocks until the campaign's loop has exited or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context, campaignID int) error {
	d.mu.Lock()
	r, ok := d.runs[campaignID]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running lists campaigns with a live loop that has not been stopped.
func (d *Dispatcher) Running() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, 0, len(d.runs))
	for id, r := range d.runs {
		if !r.stopped {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Shutdown cancels every loop and waits for them to exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.stopBase()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
