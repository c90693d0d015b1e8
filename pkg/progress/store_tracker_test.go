package progress

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagecraft/pkg/persistence"
)

func setupTracker(t *testing.T) (*StoreTracker, *persistence.Store, string) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	user := &persistence.User{ID: uuid.New().String(), Email: "p@example.com", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(user, 0))

	sess := &persistence.Session{ID: uuid.New().String(), UserID: user.ID, BusinessDescription: "biz"}
	require.NoError(t, store.CreateSession(sess))

	return NewStoreTracker(store), store, sess.ID
}

func TestStoreTrackerRecordsStages(t *testing.T) {
	tracker, store, sessionID := setupTracker(t)
	ctx := context.Background()

	tracker.StageStarted(ctx, sessionID, "discovery")
	tracker.StageFinished(ctx, sessionID, "discovery", StatusCompleted)
	tracker.StageStarted(ctx, sessionID, "competitors")

	stages, err := store.GetStages(sessionID)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	byName := map[string]string{}
	for _, st := range stages {
		byName[st.Stage] = st.Status
	}
	assert.Equal(t, StatusCompleted, byName["discovery"])
	assert.Equal(t, StatusRunning, byName["competitors"])
}

func TestStoreTrackerIgnoresEmptySession(t *testing.T) {
	tracker, _, _ := setupTracker(t)

	// Must not panic or write anything
	tracker.StageStarted(context.Background(), "", "discovery")
	tracker.StageFinished(context.Background(), "", "discovery", StatusCompleted)
}

func TestStoreTrackerSwallowsErrors(t *testing.T) {
	tracker, store, _ := setupTracker(t)

	// Unknown session violates the foreign key; the tracker logs and moves on
	tracker.StageStarted(context.Background(), "no-such-session", "discovery")

	stages, err := store.GetStages("no-such-session")
	require.NoError(t, err)
	assert.Empty(t, stages)
}

func TestNopTracker(t *testing.T) {
	tracker := Nop()
	tracker.StageStarted(context.Background(), "s", "discovery")
	tracker.StageFinished(context.Background(), "s", "discovery", StatusCompleted)
}
