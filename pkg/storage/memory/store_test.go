package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage"
	"github.com/LENAX/content-pipeline/pkg/storage/storagetest"
)

func TestSnapshotStore(t *testing.T) {
	storagetest.RunSnapshotSuite(t, func(t *testing.T) suspension.Store {
		return NewSnapshotStore()
	})
}

func TestExecutionLog(t *testing.T) {
	storagetest.RunRecordSuite(t, func(t *testing.T) storage.ExecutionRecordRepository {
		return NewExecutionLog()
	})
}

// 读出的快照与存储内部隔离
func TestSnapshotStore_ReturnsCopies(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	state := workflow.NewWorkflowState("wf-copy", "u", nil)
	require.NoError(t, store.Save(ctx, suspension.NewSnapshot(state, suspension.StatusSuspended, workflow.StepReview)))
	state.RevisionRound = 9

	loaded, err := store.Get(ctx, "wf-copy")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.State.RevisionRound)

	loaded.State.RevisionRound = 5
	again, err := store.Get(ctx, "wf-copy")
	require.NoError(t, err)
	assert.Equal(t, 0, again.State.RevisionRound)
}
