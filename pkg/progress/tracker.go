// Package progress tracks per-stage generation progress for client polling.
// Tracking is best-effort: failures are logged and never propagate into the
// pipeline.
package progress

import "context"

// Stage status values stored for polling clients.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFallback  = "fallback" // stage finished on placeholder content
	StatusFailed    = "failed"
)

// Tracker records stage lifecycle events for a generation session.
type Tracker interface {
	// StageStarted marks a stage as running.
	StageStarted(ctx context.Context, sessionID, stage string)
	// StageFinished marks a stage as done with the given status.
	StageFinished(ctx context.Context, sessionID, stage, status string)
}

// NoopTracker discards all progress events. Used when no session is being
// tracked (e.g. direct library use or tests).
type NoopTracker struct{}

// Nop returns a tracker that discards all events.
func Nop() Tracker {
	return &NoopTracker{}
}

// StageStarted does nothing.
func (n *NoopTracker) StageStarted(context.Context, string, string) {}

// StageFinished does nothing.
func (n *NoopTracker) StageFinished(context.Context, string, string, string) {}
