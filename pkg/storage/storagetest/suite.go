// Package storagetest 存储实现的通用一致性测试
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/suspension"
	"github.com/LENAX/content-pipeline/pkg/core/workflow"
	"github.com/LENAX/content-pipeline/pkg/storage"
)

// RunSnapshotSuite 对快照存储运行通用测试
func RunSnapshotSuite(t *testing.T, newStore func(t *testing.T) suspension.Store) {
	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		state := sampleState("wf-save")
		snap := suspension.NewSnapshot(state, suspension.StatusSuspended, workflow.StepReview)
		require.NoError(t, store.Save(ctx, snap))
		assert.Equal(t, 1, snap.Version)

		loaded, err := store.Get(ctx, "wf-save")
		require.NoError(t, err)
		assert.Equal(t, suspension.StatusSuspended, loaded.Status)
		assert.Equal(t, workflow.StepReview, loaded.Step)
		assert.Equal(t, "user-1", loaded.UserID)
		require.NotNil(t, loaded.State.SelectedTopic)
		assert.Equal(t, "新能源汽车下乡", loaded.State.SelectedTopic.Title)
		require.NotNil(t, loaded.State.Content)
		assert.Equal(t, []string{"标题一", "标题二"}, loaded.State.Content.Titles)
		assert.Equal(t, 1, loaded.State.RevisionRound)
	})

	t.Run("SaveIsIdempotentUpsert", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		state := sampleState("wf-upsert")
		first := suspension.NewSnapshot(state, suspension.StatusRunning, workflow.StepCreate)
		require.NoError(t, store.Save(ctx, first))

		state.RevisionRound = 2
		second := suspension.NewSnapshot(state, suspension.StatusSuspended, workflow.StepReview)
		require.NoError(t, store.Save(ctx, second))
		assert.Equal(t, 2, second.Version)

		loaded, err := store.Get(ctx, "wf-upsert")
		require.NoError(t, err)
		assert.Equal(t, suspension.StatusSuspended, loaded.Status)
		assert.Equal(t, 2, loaded.State.RevisionRound)
		assert.Equal(t, 2, loaded.Version)

		_, total, err := store.List(ctx, suspension.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "nope")
		assert.True(t, errors.Is(err, workflow.ErrNotFound))
	})

	t.Run("ClaimOnce", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Claim(ctx, "missing")
		assert.True(t, errors.Is(err, workflow.ErrNotFound))

		snap := suspension.NewSnapshot(sampleState("wf-claim"), suspension.StatusSuspended, workflow.StepReview)
		require.NoError(t, store.Save(ctx, snap))

		claimed, err := store.Claim(ctx, "wf-claim")
		require.NoError(t, err)
		assert.Equal(t, suspension.StatusResumed, claimed.Status)
		assert.Greater(t, claimed.Version, snap.Version)

		_, err = store.Claim(ctx, "wf-claim")
		assert.True(t, errors.Is(err, workflow.ErrConflict))
	})

	t.Run("ConcurrentClaimSingleWinner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		snap := suspension.NewSnapshot(sampleState("wf-race"), suspension.StatusSuspended, workflow.StepReview)
		require.NoError(t, store.Save(ctx, snap))

		var wins, conflicts int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Claim(ctx, "wf-race")
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case errors.Is(err, workflow.ErrConflict):
					atomic.AddInt32(&conflicts, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
		assert.Equal(t, int32(7), conflicts)
	})

	t.Run("ConcurrentSaveDistinctIDs", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make([]error, 6)
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				state := sampleState(fmt.Sprintf("wf-par-%d", i))
				errs[i] = store.Save(ctx, suspension.NewSnapshot(state, suspension.StatusRunning, workflow.StepResearch))
			}(i)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		_, total, err := store.List(ctx, suspension.ListFilter{Status: suspension.StatusRunning})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
	})

	t.Run("ListFilterAndPage", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			state := sampleState(fmt.Sprintf("wf-list-%d", i))
			status := suspension.StatusSuspended
			if i%2 == 1 {
				status = suspension.StatusTerminated
				state.UserID = "user-2"
			}
			require.NoError(t, store.Save(ctx, suspension.NewSnapshot(state, status, workflow.StepReview)))
			time.Sleep(2 * time.Millisecond)
		}

		snaps, total, err := store.List(ctx, suspension.ListFilter{Status: suspension.StatusSuspended})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, snaps, 3)
		// 按更新时间倒序
		assert.Equal(t, "wf-list-4", snaps[0].WorkflowID)

		snaps, total, err = store.List(ctx, suspension.ListFilter{UserID: "user-2"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, snaps, 2)

		snaps, total, err = store.List(ctx, suspension.ListFilter{Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, snaps, 1)
	})
}

// RunRecordSuite 对执行记录存储运行通用测试
func RunRecordSuite(t *testing.T, newRepo func(t *testing.T) storage.ExecutionRecordRepository) {
	t.Run("AppendAndList", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		steps := []workflow.Step{workflow.StepResearch, workflow.StepTopicCompliance, workflow.StepCreate}
		var ids []string
		for i, step := range steps {
			r := workflow.NewExecutionRecord("wf-log", step, "action", workflow.RecordSuccess)
			r.Input = map[string]interface{}{"round": float64(i)}
			r.Output = map[string]interface{}{"ok": true}
			r.DurationMs = int64(10 * i)
			r.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
			require.NoError(t, repo.Append(ctx, r))
			ids = append(ids, r.ID)
		}
		other := workflow.NewExecutionRecord("wf-other", workflow.StepResearch, "select_topic", workflow.RecordFailed)
		other.Error = "source unavailable"
		require.NoError(t, repo.Append(ctx, other))

		records, err := repo.ListByWorkflow(ctx, "wf-log")
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, r := range records {
			assert.Equal(t, steps[i], r.Step)
			assert.Equal(t, ids[i], r.ID)
		}
		assert.Equal(t, float64(2), records[2].Input["round"])
		assert.Equal(t, true, records[2].Output["ok"])

		got, err := repo.GetByID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, "source unavailable", got.Error)
		assert.Equal(t, workflow.RecordFailed, got.Status)

		_, err = repo.GetByID(ctx, "missing")
		assert.True(t, errors.Is(err, workflow.ErrNotFound))
	})

	t.Run("ListFilterAndPage", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 4; i++ {
			r := workflow.NewExecutionRecord("wf-page", workflow.StepPublish, "publish_content", workflow.RecordSuccess)
			if i == 3 {
				r.Status = workflow.RecordFailed
			}
			r.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
			require.NoError(t, repo.Append(ctx, r))
		}

		records, total, err := repo.ListRecords(ctx, storage.RecordFilter{WorkflowID: "wf-page", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Len(t, records, 2)
		assert.Equal(t, workflow.RecordFailed, records[0].Status)

		_, total, err = repo.ListRecords(ctx, storage.RecordFilter{Status: string(workflow.RecordFailed)})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		_, total, err = repo.ListRecords(ctx, storage.RecordFilter{Step: string(workflow.StepResearch)})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func sampleState(id string) *workflow.WorkflowState {
	state := workflow.NewWorkflowState(id, "user-1", []string{"旧话题"})
	state.SelectedTopic = &workflow.TopicCandidate{Title: "新能源汽车下乡", Score: 90, Source: "weibo"}
	state.Content = &workflow.Content{
		Titles: []string{"标题一", "标题二"},
		Body:   "正文内容，理财有风险，投资需谨慎。",
		Tags:   []string{"新能源"},
	}
	state.RevisionRound = 1
	return state
}
