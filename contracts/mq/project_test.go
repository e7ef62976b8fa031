package mq

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

func TestProjectEventPayloadWireFormat(t *testing.T) {
	ev := model.Event{
		ID:             "e1",
		Type:           model.EventMilestoneCompleted,
		ProjectID:      "p1",
		ProjectTitle:   "Thesis",
		MilestoneID:    "m1",
		MilestoneTitle: "Draft",
		ActorID:        "tr-1",
		ActorName:      "Bo",
		OccurredAt:     time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
	}

	body, err := json.Marshal(NewProjectEventPayload(ev, "trace-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event_id": "e1",
		"type": "milestone.completed",
		"project_id": "p1",
		"project_title": "Thesis",
		"milestone_id": "m1",
		"milestone_title": "Draft",
		"actor_id": "tr-1",
		"actor_name": "Bo",
		"occurred_at": "2025-03-03T10:00:00Z",
		"trace_id": "trace-1"
	}`, string(body))

	var back ProjectEventPayload
	require.NoError(t, json.Unmarshal(body, &back))
	assert.Equal(t, ev, back.Event())
}

func TestRoutingKeysMatchBindings(t *testing.T) {
	assert.Equal(t, "project.created", RoutingKeyProjectCreated)
	assert.Equal(t, "participant.removed", RoutingKeyParticipantRemoved)
	assert.Contains(t, ActivityBindings, "milestone.#")
}

func TestScheduledEventPayloadRoundTrip(t *testing.T) {
	ev := model.Event{
		ID:             "e2",
		Type:           model.EventProjectEventAdded,
		ProjectID:      "p1",
		ProjectTitle:   "Thesis",
		ScheduledID:    "ev-1",
		ScheduledTitle: "Qualifying exam",
		ScheduledDate:  "2025-04-10",
		ActorID:        "sup-1",
		OccurredAt:     time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(NewProjectEventPayload(ev, ""))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"scheduled_title":"Qualifying exam"`)

	var back ProjectEventPayload
	require.NoError(t, json.Unmarshal(body, &back))
	assert.Equal(t, ev, back.Event())
	assert.Equal(t, "project.event_added", RoutingKeyProjectEventAdded)
}
