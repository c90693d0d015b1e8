package progress

import (
	"context"

	"messagecraft/pkg/logx"
	"messagecraft/pkg/persistence"
)

// StoreTracker persists stage progress to the shared database so clients
// can poll a session while it generates.
type StoreTracker struct {
	store  *persistence.Store
	logger *logx.Logger
}

// NewStoreTracker creates a tracker writing to the given store.
func NewStoreTracker(store *persistence.Store) *StoreTracker {
	return &StoreTracker{
		store:  store,
		logger: logx.NewLogger("progress"),
	}
}

// StageStarted records a stage as running. Failures are logged only.
func (t *StoreTracker) StageStarted(_ context.Context, sessionID, stage string) {
	if sessionID == "" {
		return
	}
	if err := t.store.UpsertStage(sessionID, stage, StatusRunning); err != nil {
		t.logger.Warn("⚠️ Failed to record stage start %s/%s: %v", sessionID, stage, err)
	}
}

// StageFinished records a stage's final status. Failures are logged only.
func (t *StoreTracker) StageFinished(_ context.Context, sessionID, stage, status string) {
	if sessionID == "" {
		return
	}
	if err := t.store.UpsertStage(sessionID, stage, status); err != nil {
		t.logger.Warn("⚠️ Failed to record stage finish %s/%s: %v", sessionID, stage, err)
	}
}
