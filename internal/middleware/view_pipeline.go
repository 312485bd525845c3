package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"AnomalyReplay/internal/domain/models"
	domrepo "AnomalyReplay/internal/domain/repository"
	applogger "AnomalyReplay/pkg/logger"
)

// ViewPipeline sits between the playback driver and the render sinks.
// Publish never blocks: every sink has its own buffer and worker, throttled
// sinks skip live frames that arrive faster than maxRPS, and failed
// deliveries are retried with backoff. Reset drops everything still queued.
type ViewPipeline struct {
	metrics    domrepo.Metrics
	log        *applogger.Logger
	maxRPS     int
	bufSize    int
	retryMax   int
	retryDelay time.Duration

	gen     atomic.Uint64
	mu      sync.Mutex
	lanes   []*lane
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type frame struct {
	gen uint64
	v   *models.View
}

type lane struct {
	sink      domrepo.ViewSink
	throttled bool
	ch        chan frame
	lastLive  time.Time
	mu        sync.Mutex
}

type PipelineOption func(*ViewPipeline)

// WithMaxRPS caps live frames per second on throttled sinks.
func WithMaxRPS(n int) PipelineOption {
	return func(p *ViewPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the per-sink queue length.
func WithBufferSize(n int) PipelineOption {
	return func(p *ViewPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithRetry sets delivery attempts after the first failure and the initial backoff.
func WithRetry(max int, delay time.Duration) PipelineOption {
	return func(p *ViewPipeline) {
		if max >= 0 {
			p.retryMax = max
		}
		if delay > 0 {
			p.retryDelay = delay
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *ViewPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func NewViewPipeline(metrics domrepo.Metrics, opts ...PipelineOption) *ViewPipeline {
	p := &ViewPipeline{
		metrics:    metrics,
		log:        applogger.Nop(),
		maxRPS:     30,
		bufSize:    256,
		retryMax:   3,
		retryDelay: 50 * time.Millisecond,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Component("view_pipeline")
	return p
}

type SinkOption func(*lane)

// Throttled marks a sink whose consumers only need the latest frame
// (a chart on screen). Frames carrying new consensus alerts are never skipped.
func Throttled() SinkOption {
	return func(l *lane) { l.throttled = true }
}

// Register adds a sink. Sinks must be registered before Start.
func (p *ViewPipeline) Register(sink domrepo.ViewSink, opts ...SinkOption) {
	l := &lane{sink: sink, ch: make(chan frame, p.bufSize)}
	for _, o := range opts {
		o(l)
	}
	p.mu.Lock()
	p.lanes = append(p.lanes, l)
	p.mu.Unlock()
}

// Sinks returns the registered sink names.
func (p *ViewPipeline) Sinks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sinkNamesLocked()
}

// Start launches one delivery worker per sink.
func (p *ViewPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for _, l := range p.lanes {
		p.wg.Add(1)
		go p.run(ctx, l)
	}
	p.log.Info("view pipeline started", applogger.Strings("sinks", p.sinkNamesLocked()))
}

// Stop halts the workers and waits for in-flight deliveries.
func (p *ViewPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// Reset discards every queued frame; deliveries already in progress finish
// but are not retried.
func (p *ViewPipeline) Reset() {
	p.gen.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := 0
	for _, l := range p.lanes {
	drain:
		for {
			select {
			case <-l.ch:
				dropped++
			default:
				break drain
			}
		}
	}
	if dropped > 0 {
		p.log.Debug("pending frames discarded", applogger.Int("dropped", dropped))
	}
}

// Publish fans v out to every sink without blocking.
func (p *ViewPipeline) Publish(_ context.Context, v *models.View) error {
	if v == nil {
		return fmt.Errorf("view nil")
	}
	f := frame{gen: p.gen.Load(), v: v}
	now := time.Now()

	p.mu.Lock()
	lanes := p.lanes
	p.mu.Unlock()

	for _, l := range lanes {
		if l.throttled && !p.allow(l, v, now) {
			p.metrics.RecordError("pipeline_throttle")
			continue
		}
		p.enqueue(l, f)
	}
	return nil
}

func (p *ViewPipeline) enqueue(l *lane, f frame) {
	select {
	case l.ch <- f:
		return
	default:
	}
	// Full: a live frame without new alerts can be lost, anything else
	// (state change, alert) evicts the oldest queued frame.
	if f.v.Mode == models.ViewLive && (f.v.Live == nil || len(f.v.Live.NewConsensus) == 0) {
		p.metrics.RecordError("pipeline_buffer_full")
		return
	}
	select {
	case <-l.ch:
		p.metrics.RecordError("pipeline_buffer_evict")
	default:
	}
	select {
	case l.ch <- f:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

func (p *ViewPipeline) allow(l *lane, v *models.View, now time.Time) bool {
	if p.maxRPS <= 0 || v.Mode != models.ViewLive {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if v.Live != nil && len(v.Live.NewConsensus) > 0 {
		l.lastLive = now
		return true
	}
	if !l.lastLive.IsZero() && now.Sub(l.lastLive) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	l.lastLive = now
	return true
}

func (p *ViewPipeline) run(ctx context.Context, l *lane) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case f := <-l.ch:
			p.deliver(ctx, l, f)
		}
	}
}

func (p *ViewPipeline) deliver(ctx context.Context, l *lane, f frame) {
	backoff := p.retryDelay
	for attempt := 0; ; attempt++ {
		if f.gen != p.gen.Load() {
			return
		}
		start := time.Now()
		err := l.sink.Publish(ctx, f.v)
		if err == nil {
			p.metrics.RecordLatency("sink_"+l.sink.Name(), time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("sink_" + l.sink.Name())
		if attempt >= p.retryMax {
			p.log.Error("sink delivery failed",
				applogger.String("sink", l.sink.Name()),
				applogger.String("mode", string(f.v.Mode)),
				applogger.Int("attempts", attempt+1),
				applogger.Error(err),
			)
			return
		}
		select {
		case <-time.After(backoff):
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func (p *ViewPipeline) sinkNamesLocked() []string {
	out := make([]string, len(p.lanes))
	for i, l := range p.lanes {
		out[i] = l.sink.Name()
	}
	return out
}
