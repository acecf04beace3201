package core

import "time"

// Reading is one observation of the tracked game, produced per poll cycle.
// Synthetic marks readings whose player or visit figures were substituted
// because the upstream could not be reached.
type Reading struct {
	UpdateID    string    `json:"update_id"`
	PlayerCount int64     `json:"player_count"`
	VisitCount  int64     `json:"visit_count"`
	ObtainedAt  time.Time `json:"obtained_at"`
	Synthetic   bool      `json:"synthetic"`
}

// TrackingSession is the single process-wide tracking state. The visit
// watermark is non-decreasing over the session's lifetime, and Goal is
// always at least the last-known visit count at the moment it was set
// (except through an explicit operator override).
type TrackingSession struct {
	TargetID            string `json:"target_id"`
	Active              bool   `json:"active"`
	Goal                int64  `json:"goal"`
	HighWatermarkVisits int64  `json:"high_watermark_visits"`
}

// RateBudget captures the rolling request-quota window state. It is owned
// and mutated only by the rate limiter, under its mutex.
type RateBudget struct {
	WindowStart      time.Time
	RequestsInWindow int
	LastRequestAt    time.Time
}

// NotificationKind identifies what a notification reports.
type NotificationKind string

const (
	NotifyTrackingStarted       NotificationKind = "tracking_started"
	NotifyTrackingAlreadyActive NotificationKind = "tracking_already_active"
	NotifyTrackingStoppedByUser NotificationKind = "tracking_stopped_by_user"
	NotifyTrackingStoppedAuto   NotificationKind = "tracking_stopped_auto"
	NotifyMilestoneReached      NotificationKind = "milestone_reached"
	NotifyStatusUpdate          NotificationKind = "status_update"
	NotifyError                 NotificationKind = "error"
)

// Notification is the structured payload handed to the presentation layer.
// The presentation layer owns formatting and the actual send.
type Notification struct {
	ID       string           `json:"id"`
	Kind     NotificationKind `json:"kind"`
	TargetID string           `json:"target_id"`
	Reading  Reading          `json:"reading"`
	Goal     int64            `json:"goal"`
	Progress float64          `json:"progress"`
	Message  string           `json:"message,omitempty"`
	SentAt   time.Time        `json:"sent_at"`
}

// ProgressRatio returns visits/goal clamped to [0,1]. The watermark can exceed a
// manually lowered goal, so the clamp keeps progress-bar rendering sane.
func ProgressRatio(visits, goal int64) float64 {
	if goal <= 0 {
		return 0
	}
	ratio := float64(visits) / float64(goal)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
