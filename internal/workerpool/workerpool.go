// Package workerpool drives the queue-lease-analyze-ack loop: lease a
// segment event from the queue, decode its frame, dispatch every
// requested capability to its own dedicated sub-queue, persist the
// result and publish it, then ack or nack depending on the outcome
//.
package workerpool

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"streamvision/internal/bus"
	"streamvision/internal/engine"
	"streamvision/internal/queue"
	"streamvision/internal/store"
	"streamvision/internal/telemetry"
	"streamvision/pkg/models"
)

// Config tunes the pool's concurrency.
type Config struct {
	// Workers is the number of goroutines leasing from the main queue.
	Workers int
	// CapabilityWorkers bounds concurrency per capability sub-queue;
	// a capability absent from this map defaults to 2.
	CapabilityWorkers map[models.Capability]int
	// SubQueueDepth bounds how many dispatched-but-not-yet-run tasks
	// each capability's sub-queue may hold before dispatch blocks.
	SubQueueDepth int
	// LeaseTimeout bounds each blocking Lease call against the main queue.
	LeaseTimeout time.Duration
	// FrameDecoder performs DecodeFrame for image-capability dispatch.
	FrameDecoder *engine.FrameDecoder
	// ConfidenceThreshold is passed through to every image detector; a
	// zero or negative value is replaced by the default 0.5.
	ConfidenceThreshold float64
	// Metrics, if set, records segment outcomes, capability latency,
	// queue depth and duplicate skips. Nil disables instrumentation.
	Metrics *telemetry.Metrics
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 5 * time.Second
	}
	if c.CapabilityWorkers == nil {
		c.CapabilityWorkers = make(map[models.Capability]int)
	}
	if c.SubQueueDepth <= 0 {
		c.SubQueueDepth = 32
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.5
	}
}

func (c *Config) workersFor(cap models.Capability) int {
	if n, ok := c.CapabilityWorkers[cap]; ok && n > 0 {
		return n
	}
	return 2
}

// capTask is one capability's share of work for a single segment event.
type capTask struct {
	ctx        context.Context
	event      models.SegmentEvent
	decode     func() (image.Image, error) // lazily decoded, shared across a segment's tasks
	capability models.Capability
	done       func(models.Analysis, error)
}

// Pool wires C1 (queue), C6 (engine), C8 (store) and C9 (bus) together.
// Each capability in models.AllCapabilities() gets its own dedicated
// sub-queue and worker goroutines, so a slow provider (e.g. a remote
// logo classifier) can never starve a fast one.
type Pool struct {
	q      queue.EventQueue
	eng    *engine.Engine
	st     store.Store
	b      *bus.Bus
	logger *slog.Logger
	cfg    Config

	subQueues map[models.Capability]chan capTask

	wg   sync.WaitGroup
	stop chan struct{}
}

// New constructs a Pool and its per-capability sub-queues.
func New(q queue.EventQueue, eng *engine.Engine, st store.Store, b *bus.Bus, logger *slog.Logger, cfg Config) *Pool {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		q: q, eng: eng, st: st, b: b, logger: logger, cfg: cfg,
		subQueues: make(map[models.Capability]chan capTask),
		stop:      make(chan struct{}),
	}
	for _, cap := range models.AllCapabilities() {
		p.subQueues[cap] = make(chan capTask, cfg.SubQueueDepth)
	}
	return p
}

// Start launches the main lease loops plus each capability sub-queue's
// worker goroutines. It returns immediately.
func (p *Pool) Start(ctx context.Context) {
	for cap, ch := range p.subQueues {
		for i := 0; i < p.cfg.workersFor(cap); i++ {
			p.wg.Add(1)
			go p.runCapabilityWorker(ch)
		}
	}
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runLeaseLoop(ctx)
	}
}

// Stop signals every goroutine to finish its current work and exit,
// then waits for them. Closing stop does not close the sub-queues:
// workers drain whatever was already dispatched before observing stop.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Pool) runLeaseLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		leased, ok := p.q.Lease(ctx, p.cfg.LeaseTimeout)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.SetQueueDepth(p.q.Length())
		}
		if !ok {
			continue
		}
		p.dispatchEvent(ctx, leased)
	}
}

// runCapabilityWorker drains one capability's sub-queue. Image
// capabilities run through AnalyzeFrame, motion_analysis through
// AnalyzeSegment, visual_analysis is computed alongside every frame
// decode regardless of whether it was explicitly requested.
func (p *Pool) runCapabilityWorker(ch chan capTask) {
	defer p.wg.Done()
	for {
		select {
		case task := <-ch:
			p.runCapTask(task)
		case <-p.stop:
			for {
				select {
				case task := <-ch:
					p.runCapTask(task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) runCapTask(task capTask) {
	start := time.Now()
	defer func() {
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObserveLatency(task.capability, time.Since(start).Seconds())
		}
	}()

	if task.capability == models.CapabilityMotionAnalysis {
		results := p.eng.AnalyzeSegment(task.ctx, task.event.SegmentPath, []models.Capability{task.capability})
		res := results[task.capability]
		if res.Err != nil {
			task.done(models.Analysis{}, res.Err)
			return
		}
		activityScore := res.Result.ActivityScore
		task.done(models.Analysis{
			StreamKey:           task.event.StreamKey,
			SessionID:           task.event.SessionID,
			SegmentPath:         task.event.SegmentPath,
			CapturedAt:          time.Now(),
			Capability:          task.capability,
			ConfidenceThreshold: p.cfg.ConfidenceThreshold,
			Visual:              &models.VisualSummary{ActivityScore: &activityScore},
		}, nil)
		return
	}

	img, err := task.decode()
	if err != nil {
		task.done(models.Analysis{}, err)
		return
	}

	if task.capability == models.CapabilityVisualAnalysis {
		visual := engine.ComputeVisualSummary(img)
		task.done(models.Analysis{
			StreamKey:           task.event.StreamKey,
			SessionID:           task.event.SessionID,
			SegmentPath:         task.event.SegmentPath,
			CapturedAt:          time.Now(),
			Capability:          task.capability,
			ConfidenceThreshold: p.cfg.ConfidenceThreshold,
			Visual:              &visual,
		}, nil)
		return
	}

	results, _ := p.eng.AnalyzeFrame(task.ctx, img, []models.Capability{task.capability}, p.cfg.ConfidenceThreshold)
	res := results[task.capability]
	if res.Err != nil {
		task.done(models.Analysis{}, res.Err)
		return
	}
	task.done(models.Analysis{
		StreamKey:           task.event.StreamKey,
		SessionID:           task.event.SessionID,
		SegmentPath:         task.event.SegmentPath,
		CapturedAt:          time.Now(),
		Capability:          task.capability,
		ConfidenceThreshold: p.cfg.ConfidenceThreshold,
		Detections:          res.Detections,
	}, nil)
}

// dispatchEvent decodes the frame once (memoized via sync.Once so every
// sub-queue task shares it), fans the event's capability set plus the
// always-on visual_analysis capability out to their dedicated
// sub-queues, and — once every task reports in — persists and publishes
// the results before acking or nacking the lease. Dispatch itself never
// blocks on any task's outcome; only the finalization goroutine waits.
func (p *Pool) dispatchEvent(ctx context.Context, leased *queue.Leased) {
	event := leased.Event

	var once sync.Once
	var decoded image.Image
	var decodeErr error
	decode := func() (image.Image, error) {
		once.Do(func() {
			decoded, decodeErr = p.cfg.FrameDecoder.DecodeFrame(ctx, event.SegmentPath)
		})
		return decoded, decodeErr
	}

	capabilities := append([]models.Capability{}, event.CapabilitySet...)
	if !containsCapability(capabilities, models.CapabilityVisualAnalysis) {
		capabilities = append(capabilities, models.CapabilityVisualAnalysis)
	}

	var mu sync.Mutex
	var analyses []models.Analysis
	var firstErr error
	var wg sync.WaitGroup

	for _, cap := range capabilities {
		ch, ok := p.subQueues[cap]
		if !ok {
			continue
		}
		wg.Add(1)
		ch <- capTask{
			ctx: ctx, event: event, decode: decode, capability: cap,
			done: func(a models.Analysis, err error) {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				analyses = append(analyses, a)
			},
		}
	}

	go func() {
		wg.Wait()
		p.finalize(ctx, leased, analyses, firstErr)
	}()
}

func (p *Pool) finalize(ctx context.Context, leased *queue.Leased, analyses []models.Analysis, firstErr error) {
	if firstErr != nil {
		p.fail(leased, firstErr)
		return
	}

	event := leased.Event
	for _, a := range analyses {
		id, err := p.st.PutAnalysis(ctx, a)
		if kind, ok := models.KindOf(err); ok && kind == models.ErrDuplicateSegmentAnalysis {
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.ObserveDuplicateSkip(a.Capability)
			}
			continue // already recorded by a prior (re)delivery; not a failure
		}
		if err != nil {
			p.fail(leased, err)
			return
		}
		a.ID = id
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObserveOutcome(a.Capability, "ok")
		}
		// Publish even when Detections is empty, so subscribers observe
		// liveness.
		p.b.Broadcast(event.StreamKey, bus.Message{Type: bus.MessageAnalysisUpdate, StreamKey: event.StreamKey, Analysis: &a})
	}

	if err := p.q.Ack(leased.Token); err != nil {
		p.logger.Error("ack failed", "token", leased.Token, "error", err)
	}
}

func (p *Pool) fail(leased *queue.Leased, err error) {
	kind, _ := models.KindOf(err)

	if !kind.Retryable() {
		p.logger.Warn("segment processing failed terminally",
			"segment_path", leased.Event.SegmentPath, "kind", kind, "error", err)
		_ = p.q.Ack(leased.Token) // terminal: drop the event, never retried
		return
	}

	if leased.Attempt+1 >= models.MaxRetries {
		p.logger.Warn("segment processing exhausted retries",
			"segment_path", leased.Event.SegmentPath, "attempts", leased.Attempt+1, "error", err)
		_ = p.q.Ack(leased.Token)
		return
	}

	backoff := backoffFor(leased.Attempt + 1)
	p.logger.Info("segment processing failed transiently, retrying",
		"segment_path", leased.Event.SegmentPath, "attempt", leased.Attempt+1, "backoff", backoff, "error", err)
	if err := p.q.Nack(leased.Token, backoff); err != nil {
		p.logger.Error("nack failed", "token", leased.Token, "error", err)
	}
}

// backoffFor returns 2^attempt seconds, capped at 60s.
func backoffFor(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt))
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds * float64(time.Second))
}

func containsCapability(caps []models.Capability, target models.Capability) bool {
	for _, c := range caps {
		if c == target {
			return true
		}
	}
	return false
}
