package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visitlens/visitlens/internal/core"
)

// GameClient supplies one reading per poll cycle. Implementations never
// fail; they degrade to fallback data instead.
type GameClient interface {
	Fetch(ctx context.Context, placeID string) core.Reading
}

// TrackerConfig wires a Tracker.
type TrackerConfig struct {
	PlaceID      string
	InitialGoal  int64
	PollInterval time.Duration

	Client    GameClient
	Notifier  Notifier
	Scheduler *Scheduler
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Tracker is the milestone state machine: it starts and stops tracking,
// decides when to recompute the goal, and emits updates through the
// Notifier. Exactly one target is tracked at a time.
type Tracker struct {
	mu      sync.Mutex
	session core.TrackingSession

	placeID  string
	interval time.Duration

	client   GameClient
	notifier Notifier
	sched    *Scheduler
	logger   *zap.Logger
	clock    func() time.Time
}

// NewTracker builds an idle tracker with the configured initial goal.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.InitialGoal <= 0 {
		cfg.InitialGoal = 3358
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewScheduler(0, 0, cfg.Logger)
	}
	return &Tracker{
		session:  core.TrackingSession{Goal: cfg.InitialGoal},
		placeID:  cfg.PlaceID,
		interval: cfg.PollInterval,
		client:   cfg.Client,
		notifier: cfg.Notifier,
		sched:    cfg.Scheduler,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
	}
}

// Start begins tracking for targetID. Starting an already tracked target is
// a no-op acknowledged as such; starting while a different target is active
// is rejected. On success one update runs synchronously so the operator
// gets instant feedback instead of waiting for the first scheduled tick.
func (t *Tracker) Start(ctx context.Context, targetID string) (string, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return "a target channel is required", core.ErrInvalidCommandArgument
	}

	t.mu.Lock()
	if t.session.Active {
		active := t.session.TargetID
		t.mu.Unlock()
		if active == targetID {
			t.deliver(ctx, core.NotifyTrackingAlreadyActive, core.Reading{},
				fmt.Sprintf("already tracking %s", targetID))
			return fmt.Sprintf("already tracking %s", targetID), nil
		}
		return fmt.Sprintf("already tracking %s; stop it first", active), core.ErrConflictingSession
	}
	t.session.TargetID = targetID
	t.session.Active = true
	goal := t.session.Goal
	t.mu.Unlock()

	t.logger.Info("tracking started",
		zap.String("target", targetID),
		zap.Int64("goal", goal))

	t.sched.Start(t.interval, func(tickCtx context.Context) {
		t.Update(tickCtx)
	})

	t.deliver(ctx, core.NotifyTrackingStarted, core.Reading{},
		fmt.Sprintf("tracking started, goal %d visits", goal))
	t.Update(ctx)

	return fmt.Sprintf("tracking started for %s", targetID), nil
}

// Stop ends tracking. It is idempotent: stopping while idle acknowledges
// "not tracking" without touching state. An update cycle already past its
// fetch may still deliver one notification after Stop returns; the pending
// scheduled tick is cancelled before it fires.
func (t *Tracker) Stop() string {
	t.mu.Lock()
	if !t.session.Active {
		t.mu.Unlock()
		return "not tracking"
	}
	t.session.Active = false
	target := t.session.TargetID
	t.mu.Unlock()

	t.sched.Cancel()
	t.logger.Info("tracking stopped", zap.String("target", target))
	t.deliver(context.Background(), core.NotifyTrackingStoppedByUser, core.Reading{},
		"tracking stopped")
	return fmt.Sprintf("stopped tracking %s", target)
}

// SetGoal overrides the milestone goal. Non-positive values are rejected.
// Setting a goal below the current watermark is allowed and re-arms the
// milestone path on the next update.
func (t *Tracker) SetGoal(goal int64) (string, error) {
	if goal <= 0 {
		return "goal must be a positive number", core.ErrInvalidCommandArgument
	}
	t.mu.Lock()
	t.session.Goal = goal
	t.mu.Unlock()
	t.logger.Info("goal overridden", zap.Int64("goal", goal))
	return fmt.Sprintf("goal set to %d visits", goal), nil
}

// Status fetches current numbers without mutating goal or session state.
// It works in either state.
func (t *Tracker) Status(ctx context.Context) (core.Reading, string) {
	reading := t.client.Fetch(ctx, t.placeID)

	t.mu.Lock()
	goal := t.session.Goal
	active := t.session.Active
	t.mu.Unlock()

	state := "idle"
	if active {
		state = "tracking"
	}
	msg := fmt.Sprintf("%s: %d players online, %d/%d visits (%.0f%%)",
		state, reading.PlayerCount, reading.VisitCount, goal,
		core.ProgressRatio(reading.VisitCount, goal)*100)
	return reading, msg
}

// Session returns a snapshot of the tracking session.
func (t *Tracker) Session() core.TrackingSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Update runs one poll cycle: fetch, advance the watermark, recompute the
// goal when reached, and emit notifications. Invoked by the scheduler and
// synchronously from Start.
func (t *Tracker) Update(ctx context.Context) {
	t.mu.Lock()
	if !t.session.Active {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	// Fetch happens outside the session lock: it sleeps for rate limiting
	// and backoff, and command handlers must not be frozen behind it.
	reading := t.client.Fetch(ctx, t.placeID)

	t.mu.Lock()
	if !t.session.Active {
		// Stopped mid-fetch. The cycle is already past the point of no
		// return for its request budget, but no notification goes out.
		t.mu.Unlock()
		return
	}
	if reading.VisitCount > t.session.HighWatermarkVisits {
		t.session.HighWatermarkVisits = reading.VisitCount
	}
	milestone := false
	oldGoal := t.session.Goal
	if reading.VisitCount >= t.session.Goal {
		t.session.Goal = nextGoal(reading.VisitCount)
		milestone = true
	}
	goal := t.session.Goal
	t.mu.Unlock()

	if milestone {
		t.logger.Info("milestone reached",
			zap.Int64("visits", reading.VisitCount),
			zap.Int64("old_goal", oldGoal),
			zap.Int64("new_goal", goal))
		if !t.deliver(ctx, core.NotifyMilestoneReached, reading,
			fmt.Sprintf("milestone reached: %d visits, next goal %d", reading.VisitCount, goal)) {
			return
		}
	}
	t.deliver(ctx, core.NotifyStatusUpdate, reading, "")
}

// Commands exposes the dispatch table consumed by the chat-platform
// dispatcher. Each handler returns an acknowledgement string to relay.
func (t *Tracker) Commands() map[string]CommandHandler {
	return map[string]CommandHandler{
		"start": func(ctx context.Context, arg string) string {
			ack, _ := t.Start(ctx, arg)
			return ack
		},
		"stop": func(ctx context.Context, arg string) string {
			return t.Stop()
		},
		"status": func(ctx context.Context, arg string) string {
			_, msg := t.Status(ctx)
			return msg
		},
		"goal": func(ctx context.Context, arg string) string {
			value, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
			if err != nil {
				return "goal must be a positive number"
			}
			ack, _ := t.SetGoal(value)
			return ack
		},
	}
}

// CommandHandler handles one dispatcher command.
type CommandHandler func(ctx context.Context, arg string) string

// deliver sends one notification. It reports false when delivery failed
// with permission loss, which force-stops tracking.
func (t *Tracker) deliver(ctx context.Context, kind core.NotificationKind, reading core.Reading, message string) bool {
	if t.notifier == nil {
		return true
	}

	t.mu.Lock()
	n := core.Notification{
		ID:       uuid.New().String(),
		Kind:     kind,
		TargetID: t.session.TargetID,
		Reading:  reading,
		Goal:     t.session.Goal,
		Progress: core.ProgressRatio(reading.VisitCount, t.session.Goal),
		Message:  message,
		SentAt:   t.now(),
	}
	t.mu.Unlock()

	err := t.notifier.Notify(ctx, n)
	if err == nil {
		return true
	}

	switch core.ClassifyDelivery(err) {
	case core.DeliveryPermissionDenied:
		t.logger.Warn("send permission lost, stopping tracking",
			zap.String("target", n.TargetID),
			zap.Error(err))
		t.autoStop()
		return false
	default:
		t.logger.Warn("notification delivery failed, tracking continues",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return true
	}
}

// autoStop flips the session to idle after an unrecoverable delivery
// failure. The stopped-auto notification is best effort: the same channel
// that just rejected the send will usually reject it too.
func (t *Tracker) autoStop() {
	t.mu.Lock()
	if !t.session.Active {
		t.mu.Unlock()
		return
	}
	t.session.Active = false
	t.mu.Unlock()

	t.sched.Cancel()
	if t.notifier != nil {
		_ = t.notifier.Notify(context.Background(), core.Notification{
			ID:      uuid.New().String(),
			Kind:    core.NotifyTrackingStoppedAuto,
			Message: "tracking stopped: no permission to post updates",
			SentAt:  t.now(),
		})
	}
}

func (t *Tracker) now() time.Time {
	if t.clock != nil {
		return t.clock()
	}
	return time.Now()
}

// nextGoal grows the goal by at least 100 visits or 5% of the current
// count, whichever is larger.
func nextGoal(visits int64) int64 {
	step := int64(math.Round(float64(visits) * 0.05))
	if step < 100 {
		step = 100
	}
	return visits + step
}
