package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives a tick function on a fixed period. A small one-time
// jitter is applied before the first tick only, to desynchronize co-located
// instances. Cancellation is cooperative: it takes effect before the next
// tick fires, but an in-flight tick is allowed to complete.
type Scheduler struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	done    chan struct{}

	// JitterMin/JitterMax bound the pre-first-tick delay.
	JitterMin time.Duration
	JitterMax time.Duration

	// Sleep and Rand are injectable for tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Rand   func() float64
	Logger *zap.Logger
}

// NewScheduler builds a scheduler with the given first-tick jitter range.
func NewScheduler(jitterMin, jitterMax time.Duration, logger *zap.Logger) *Scheduler {
	if jitterMax < jitterMin {
		jitterMax = jitterMin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		JitterMin: jitterMin,
		JitterMax: jitterMax,
		Logger:    logger,
	}
}

// Start begins ticking onTick every interval. It reports false if the
// scheduler is already running. A panic escaping onTick is recovered and
// logged; the loop resumes on the same cadence, so a crashed cycle never
// kills polling.
func (s *Scheduler) Start(interval time.Duration, onTick func(context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.done = make(chan struct{})

	go s.loop(ctx, interval, onTick, s.done)
	return true
}

// Cancel stops future ticks. The in-flight tick, if any, completes.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
}

// Active reports whether the scheduler is currently running.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the loop goroutine has exited. Test helper.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, onTick func(context.Context), done chan struct{}) {
	defer close(done)

	// The jitter shifts the whole cadence once; every later tick waits the
	// plain interval.
	wait := interval + s.jitter()
	for {
		if err := s.sleep(ctx, wait); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.runTick(ctx, onTick)
		wait = interval
	}
}

func (s *Scheduler) runTick(ctx context.Context, onTick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("tick panicked, resuming schedule",
				zap.Any("panic", r))
		}
	}()
	onTick(ctx)
}

func (s *Scheduler) jitter() time.Duration {
	span := s.JitterMax - s.JitterMin
	if span <= 0 {
		return s.JitterMin
	}
	return s.JitterMin + time.Duration(s.randFloat()*float64(span))
}

func (s *Scheduler) randFloat() float64 {
	if s.Rand != nil {
		return s.Rand()
	}
	return rand.Float64()
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}
