package realtime

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/content-pipeline/pkg/core/workflow"
)

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("workflow.started"), EventWorkflowStarted)
	assert.Equal(t, EventType("workflow.suspended"), EventWorkflowSuspended)
	assert.Equal(t, EventType("workflow.terminated"), EventWorkflowTerminated)
	assert.Equal(t, EventType("step.completed"), EventStepCompleted)
}

func TestNewWorkflowEvent(t *testing.T) {
	event := NewWorkflowEvent(EventWorkflowStarted, "wf-1", workflow.StepResearch, "running")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventWorkflowStarted, event.Type)
	assert.Equal(t, "wf-1", event.WorkflowID)
	assert.Equal(t, workflow.StepResearch, event.Step)
	assert.NotZero(t, event.Timestamp)

	event.WithMetadata("source", "api").WithPayload("user_id", "u1")
	assert.Equal(t, "api", event.Metadata["source"])
	assert.Equal(t, "u1", event.Payload["user_id"])
}

func TestStepCompletedEvent(t *testing.T) {
	record := workflow.NewExecutionRecord("wf-2", workflow.StepPublish, "publish_content", workflow.RecordFailed)
	record.Error = "boom"
	record.DurationMs = 42

	event := StepCompletedEvent(record)
	assert.Equal(t, EventStepCompleted, event.Type)
	assert.Equal(t, "FAILED", event.Status)
	assert.Equal(t, record.ID, event.Payload["record_id"])
	assert.Equal(t, "boom", event.Payload["error"])
}

func TestOutcomeEvent(t *testing.T) {
	state := workflow.NewWorkflowState("wf-3", "u", nil)
	state.SelectedTopic = &workflow.TopicCandidate{Title: "话题"}
	state.RevisionRound = 1

	suspended := OutcomeEvent(workflow.InstanceOutcome{
		WorkflowID: "wf-3", Status: workflow.OutcomeSuspended, Step: workflow.StepReview, State: state,
	})
	assert.Equal(t, EventWorkflowSuspended, suspended.Type)
	assert.Equal(t, "话题", suspended.Payload["topic"])

	failed := OutcomeEvent(workflow.FailedOutcome("wf-3", workflow.StepCreate, state, errors.New("timeout")))
	assert.Equal(t, EventWorkflowTerminated, failed.Type)
	assert.Equal(t, "failed", failed.Status)
	assert.Equal(t, "timeout", failed.Payload["error"])
}

func TestWorkflowEvent_JSON(t *testing.T) {
	event := NewWorkflowEvent(EventStepCompleted, "wf-4", workflow.StepCreate, "SUCCESS").
		WithPayload("action", "generate_content")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded WorkflowEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, workflow.StepCreate, decoded.Step)
	assert.Equal(t, "generate_content", decoded.Payload["action"])
}
