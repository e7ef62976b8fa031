package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func primary(t *testing.T) Participant {
	t.Helper()
	p, err := NewParticipant("sup-1", "Dr. Ada", RolePrimarySupervisor)
	require.NoError(t, err)
	return p
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.February, 29), d)
	assert.Equal(t, "2024-02-29", d.String())

	_, err = ParseDate("2023-02-29")
	assert.Error(t, err)
	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	var v struct {
		Due Date `json:"due"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2025-06-01"}`), &v))
	assert.Equal(t, NewDate(2025, time.June, 1), v.Due)

	require.NoError(t, json.Unmarshal([]byte(`{"due":null}`), &v))
	assert.True(t, v.Due.IsZero())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"due":"June 1"}`), &v))
}

func TestDateOfIgnoresClockTime(t *testing.T) {
	late := time.Date(2025, time.March, 3, 23, 59, 0, 0, time.UTC)
	assert.True(t, DateOf(late).Equal(NewDate(2025, time.March, 3)))
	assert.Equal(t, NewDate(2025, time.March, 4), DateOf(late).AddDays(1))
}

func TestNewActor(t *testing.T) {
	a, err := NewActor("u1", RoleTrainee, "")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.DisplayName())
	assert.False(t, a.IsSupervisor())

	_, err = NewActor("", RoleSupervisor, "x")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = NewActor("u2", Role("admin"), "")
	assert.Error(t, err)
}

func TestBuildProjectRequiresPrimary(t *testing.T) {
	trainee, err := NewParticipant("tr-1", "Bo", RoleProjectTrainee)
	require.NoError(t, err)

	_, err = BuildProject("p1", "Title", "", trainee, time.Now())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "created_by", verr.Fields[0].Field)
}

func TestBuildProjectTrimsAndValidates(t *testing.T) {
	p, err := BuildProject("p1", "  Thesis  ", " about ", primary(t), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Thesis", p.Title)
	assert.Equal(t, "about", p.Description)
	assert.Equal(t, StatusInProgress, p.Status)
	assert.Equal(t, "sup-1", p.PrimarySupervisor().ID)

	_, err = BuildProject("p2", "   ", "", primary(t), time.Now())
	assert.Error(t, err)
}

func TestAddParticipantRules(t *testing.T) {
	p, err := BuildProject("p1", "Thesis", "", primary(t), time.Now())
	require.NoError(t, err)

	require.NoError(t, p.AddParticipant(Participant{ID: "tr-1", Name: "Bo", Role: RoleProjectTrainee}))
	assert.Error(t, p.AddParticipant(Participant{ID: "tr-1", Name: "Bo", Role: RoleProjectTrainee}), "duplicate")
	assert.Error(t, p.AddParticipant(Participant{ID: "sup-2", Name: "Cy", Role: RolePrimarySupervisor}), "second primary")
	assert.Error(t, p.AddParticipant(Participant{ID: "x", Name: "", Role: RoleProjectTrainee}), "blank name")

	assert.True(t, p.RemoveParticipant("tr-1"))
	assert.False(t, p.RemoveParticipant("tr-1"))
}

func TestMilestoneOrdering(t *testing.T) {
	p, err := BuildProject("p1", "Thesis", "", primary(t), time.Now())
	require.NoError(t, err)

	add := func(id string, due Date) {
		m, err := BuildMilestone(id, NewMilestone{Title: id, DueDate: due})
		require.NoError(t, err)
		p.AppendMilestone(m)
	}
	add("late", NewDate(2025, time.May, 1))
	add("early", NewDate(2025, time.January, 1))
	add("tie", NewDate(2025, time.May, 1))

	ids := make([]string, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"early", "late", "tie"}, ids)

	first, ok := p.FirstIncomplete()
	require.True(t, ok)
	assert.Equal(t, "early", first.ID)
}

func TestMilestoneCompletionInvariant(t *testing.T) {
	m, err := BuildMilestone("m1", NewMilestone{Title: "Draft", DueDate: NewDate(2025, time.May, 1)})
	require.NoError(t, err)

	m.MarkCompleted("tr-1", time.Now())
	require.NoError(t, m.Validate())

	m.CompletedBy = nil
	assert.Error(t, m.Validate())

	m.MarkPending()
	require.NoError(t, m.Validate())
	assert.Nil(t, m.CompletedAt)

	broken := m
	at := time.Now()
	broken.CompletedAt = &at
	_, err = RestoreMilestone(broken)
	assert.Error(t, err)
}

func TestBuildMilestoneRequiresDueDate(t *testing.T) {
	_, err := BuildMilestone("m1", NewMilestone{Title: "Draft"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestProjectValidateCompletedWithPending(t *testing.T) {
	p, err := BuildProject("p1", "Thesis", "", primary(t), time.Now())
	require.NoError(t, err)
	m, err := BuildMilestone("m1", NewMilestone{Title: "Draft", DueDate: NewDate(2025, time.May, 1)})
	require.NoError(t, err)
	p.AppendMilestone(m)

	p.Status = StatusCompleted
	assert.Error(t, p.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	p, err := BuildProject("p1", "Thesis", "", primary(t), time.Now())
	require.NoError(t, err)
	m, err := BuildMilestone("m1", NewMilestone{Title: "Draft", DueDate: NewDate(2025, time.May, 1)})
	require.NoError(t, err)
	p.AppendMilestone(m)
	p.Record(Event{ID: "e1", Type: EventProjectCreated})

	c := p.Clone()
	c.Milestones[0].MarkCompleted("sup-1", time.Now())
	c.Participants[0].Name = "changed"
	c.ClearPendingEvents()

	assert.False(t, p.Milestones[0].Completed)
	assert.Equal(t, "Dr. Ada", p.Participants[0].Name)
	assert.Len(t, p.PendingEvents(), 1)
}

func TestNewActivityDescribesEvent(t *testing.T) {
	at := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	a := NewActivity(Event{
		ID:              "e1",
		Type:            EventParticipantAdded,
		ProjectID:       "p1",
		ProjectTitle:    "Thesis",
		ParticipantID:   "tr-1",
		ParticipantName: "Bo",
		ActorID:         "sup-1",
		OccurredAt:      at,
	})
	assert.Equal(t, "e1", a.EventID)
	assert.Equal(t, `sup-1 added Bo to project "Thesis"`, a.Message)
	assert.Equal(t, at, a.OccurredAt)

	assert.Equal(t, `Ada completed milestone "Draft" in project "Thesis"`, Describe(Event{
		Type: EventMilestoneCompleted, ActorName: "Ada", MilestoneTitle: "Draft", ProjectTitle: "Thesis",
	}))
}
