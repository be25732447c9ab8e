package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

func TestTopicLedger_PicksFromTopWindow(t *testing.T) {
	l := NewTopicLedger(nil)
	candidates := sampleCandidates()

	picked, ok := l.Pick(candidates, nil)
	require.True(t, ok)
	// 最低分的候选不在前5名内
	assert.NotEqual(t, "基金定投心得", picked.Title)
	assert.Contains(t, l.Used(), picked.Title)
}

func TestTopicLedger_FallsBackWhenAllUsed(t *testing.T) {
	candidates := sampleCandidates()
	seed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		seed = append(seed, c.Title)
	}
	l := NewTopicLedger(seed)

	picked, ok := l.Pick(candidates, nil)
	require.True(t, ok)
	assert.NotEmpty(t, picked.Title)
}

func TestTopicLedger_Empty(t *testing.T) {
	_, ok := NewTopicLedger(nil).Pick(nil, nil)
	assert.False(t, ok)
}

// 并发挑选时，候选充足的情况下不会重复
func TestTopicLedger_ConcurrentPicksAreDistinct(t *testing.T) {
	l := NewTopicLedger(nil)
	candidates := sampleCandidates()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[string]int{}
	for i := 0; i < len(candidates); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _ := l.Pick(candidates, nil)
			mu.Lock()
			seen[p.Title]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, len(candidates))
	for title, n := range seen {
		assert.Equal(t, 1, n, title)
	}
}

func TestTopicLedger_ReserveRelease(t *testing.T) {
	l := NewTopicLedger([]string{"存款利率调整"})
	candidates := sampleCandidates()

	picked, release, ok := l.Reserve(candidates, nil)
	require.True(t, ok)
	assert.Contains(t, l.Used(), picked.Title)

	release()
	release()
	assert.NotContains(t, l.Used(), picked.Title)
	assert.Equal(t, []string{"存款利率调整"}, l.Used())
}

func TestTopicLedger_ReleaseKeepsEarlierReservation(t *testing.T) {
	candidates := []workflow.TopicCandidate{{Title: "只有一个", Score: 90}}
	l := NewTopicLedger([]string{"只有一个"})

	picked, release, ok := l.Reserve(candidates, nil)
	require.True(t, ok)
	assert.Equal(t, "只有一个", picked.Title)
	release()
	assert.Equal(t, []string{"只有一个"}, l.Used())
}

func TestContextKeys(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetWorkflowID(ctx))
	assert.Nil(t, GetTopicLedger(ctx))

	l := NewTopicLedger([]string{"a"})
	ctx = WithTopicLedger(WithStep(WithWorkflowID(ctx, "wf-1"), workflow.StepCreate), l)
	assert.Equal(t, "wf-1", GetWorkflowID(ctx))
	assert.Equal(t, workflow.StepCreate, GetStep(ctx))
	assert.Same(t, l, GetTopicLedger(ctx))
}
