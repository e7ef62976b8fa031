package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/auth"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/calendar"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/lifecycle"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/rbac"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/repository"
)

var (
	fixedNow = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

	prof    = model.Actor{ID: "prof-1", Role: model.RoleSupervisor, Name: "Dr. Silva"}
	coProf  = model.Actor{ID: "prof-2", Role: model.RoleSupervisor, Name: "Dr. Costa"}
	student = model.Actor{ID: "stu-1", Role: model.RoleTrainee, Name: "Maria"}
	other   = model.Actor{ID: "stu-9", Role: model.RoleTrainee, Name: "Outsider"}
)

type fixture struct {
	svc      *ProjectService
	projects *repository.MemoryProjectRepository
	activity *repository.MemoryActivityRepository
}

func newFixture() *fixture {
	n := 0
	clock := func() time.Time { return fixedNow }
	engine := lifecycle.NewEngine(
		lifecycle.WithClock(clock),
		lifecycle.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	projects := repository.NewMemoryProjectRepository()
	activity := repository.NewMemoryActivityRepository()
	svc := NewProjectService(projects, activity, auth.ContextActorProvider{}, engine,
		calendar.NewProjector(calendar.WithClock(clock)), zap.NewNop())
	return &fixture{svc: svc, projects: projects, activity: activity}
}

func as(actor model.Actor) context.Context {
	return auth.WithActor(context.Background(), actor)
}

// createProject stores a project owned by prof with coProf and student, holding
// M1 (2024-06-01), M2 (2024-07-01) and M3 (2024-05-01).
func (f *fixture) createProject(t *testing.T, title string) *model.Project {
	t.Helper()
	p, err := f.svc.CreateProject(as(prof), model.NewProject{
		Title:       title,
		Description: "Field sampling and analysis",
		Milestones: []model.NewMilestone{
			{Title: "M1", DueDate: model.NewDate(2024, time.June, 1)},
			{Title: "M2", DueDate: model.NewDate(2024, time.July, 1)},
			{Title: "M3", DueDate: model.NewDate(2024, time.May, 1)},
		},
		Participants: []model.NewParticipantInput{
			{ID: coProf.ID, Name: coProf.Name, Role: model.RoleSecondarySupervisor},
			{ID: student.ID, Name: student.Name, Role: model.RoleProjectTrainee},
		},
	})
	require.NoError(t, err)
	return p
}

func milestoneID(t *testing.T, p *model.Project, title string) string {
	t.Helper()
	for _, m := range p.Milestones {
		if m.Title == title {
			return m.ID
		}
	}
	t.Fatalf("milestone %q not found", title)
	return ""
}

func TestCreateProjectPersists(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, model.StatusInProgress, p.Status)
	assert.Equal(t, prof.ID, p.PrimarySupervisor().ID)

	events := f.projects.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventProjectCreated, events[0].Type)

	got, err := f.svc.GetProject(as(student), p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Milestones, 3)
}

func TestCreateProjectRejectsTrainee(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateProject(as(student), model.NewProject{Title: "x", Description: "y"})

	var denied *rbac.AuthorizationError
	require.ErrorAs(t, err, &denied)
	assert.Empty(t, f.projects.Events())
}

func TestOperationsRequireActor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateProject(context.Background(), model.NewProject{Title: "x", Description: "y"})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.svc.ListProjects(context.Background(), ListFilter{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestProgressAndUpcomingScenario(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	_, err := f.svc.CompleteMilestone(as(student), p.ID, milestoneID(t, p, "M1"))
	require.NoError(t, err)

	prog, err := f.svc.ProgressOf(as(prof), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, prog.CompletedCount)
	assert.Equal(t, 3, prog.TotalCount)
	assert.Equal(t, 33, prog.Percentage)
	require.Len(t, prog.Remaining, 2)
	assert.Equal(t, "M3", prog.Remaining[0].Title)
	assert.Equal(t, "M2", prog.Remaining[1].Title)

	upcoming, err := f.svc.UpcomingEvents(as(student), model.NewDate(2024, time.June, 10), 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "M2", upcoming[0].MilestoneTitle)
}

func TestCompleteMilestoneIdempotent(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	m1 := milestoneID(t, p, "M1")

	first, err := f.svc.CompleteMilestone(as(student), p.ID, m1)
	require.NoError(t, err)
	second, err := f.svc.CompleteMilestone(as(coProf), p.ID, m1)
	require.NoError(t, err)

	a, _ := first.Milestone(m1)
	b, _ := second.Milestone(m1)
	assert.Equal(t, *a, *b)
	require.NotNil(t, b.CompletedBy)
	assert.Equal(t, student.ID, *b.CompletedBy)
	assert.Equal(t, first.Version, second.Version, "a no-op must not write")
	assert.Len(t, f.projects.Events(), 2)
}

func TestOutsiderCannotCompleteMilestone(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	_, err := f.svc.CompleteMilestone(as(other), p.ID, milestoneID(t, p, "M1"))
	var denied *rbac.AuthorizationError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.ReasonNotParticipant, denied.Reason)

	_, err = f.svc.GetProject(as(other), p.ID)
	require.ErrorAs(t, err, &denied)
}

func TestTraineeRestrictions(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	m1 := milestoneID(t, p, "M1")
	_, err := f.svc.CompleteMilestone(as(student), p.ID, m1)
	require.NoError(t, err)

	var denied *rbac.AuthorizationError
	_, err = f.svc.ReopenMilestone(as(student), p.ID, m1)
	assert.ErrorAs(t, err, &denied)
	_, err = f.svc.AddParticipant(as(student), p.ID, model.NewParticipantInput{ID: "x", Name: "X", Role: model.RoleProjectTrainee})
	assert.ErrorAs(t, err, &denied)
	_, err = f.svc.CompleteProject(as(student), p.ID)
	assert.ErrorAs(t, err, &denied)
	_, err = f.svc.AddMilestone(as(student), p.ID, model.NewMilestone{Title: "M4", DueDate: model.NewDate(2024, time.August, 1)})
	assert.ErrorAs(t, err, &denied)
}

func TestCompleteProjectPrecondition(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	for _, title := range []string{"M1", "M3"} {
		_, err := f.svc.CompleteMilestone(as(student), p.ID, milestoneID(t, p, title))
		require.NoError(t, err)
	}

	_, err := f.svc.CompleteProject(as(prof), p.ID)
	var pre *lifecycle.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, milestoneID(t, p, "M2"), pre.MilestoneID)
	assert.Equal(t, "M2", pre.MilestoneTitle)

	stored, err := f.svc.GetProject(as(prof), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, stored.Status)
}

func TestCompletedProjectIsFrozen(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	for _, title := range []string{"M1", "M2", "M3"} {
		_, err := f.svc.CompleteMilestone(as(student), p.ID, milestoneID(t, p, title))
		require.NoError(t, err)
	}
	done, err := f.svc.CompleteProject(as(coProf), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	again, err := f.svc.CompleteProject(as(prof), p.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Version, again.Version)

	var invalid *lifecycle.InvalidTransitionError
	_, err = f.svc.AddMilestone(as(prof), p.ID, model.NewMilestone{Title: "M4", DueDate: model.NewDate(2024, time.August, 1)})
	assert.ErrorAs(t, err, &invalid)
	_, err = f.svc.ReopenMilestone(as(prof), p.ID, milestoneID(t, p, "M1"))
	assert.ErrorAs(t, err, &invalid)

	var denied *rbac.AuthorizationError
	_, err = f.svc.RemoveParticipant(as(prof), p.ID, student.ID)
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, rbac.ReasonProjectCompleted, denied.Reason)

	prog, err := f.svc.ProgressOf(as(student), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, prog.Percentage)
}

func TestParticipantManagement(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	updated, err := f.svc.AddParticipant(as(coProf), p.ID, model.NewParticipantInput{ID: "stu-2", Name: "João", Role: model.RoleProjectTrainee})
	require.NoError(t, err)
	assert.True(t, updated.IsParticipant("stu-2"))

	var verr *model.ValidationError
	_, err = f.svc.AddParticipant(as(prof), p.ID, model.NewParticipantInput{ID: "stu-2", Name: "João", Role: model.RoleProjectTrainee})
	assert.ErrorAs(t, err, &verr)

	updated, err = f.svc.RemoveParticipant(as(prof), p.ID, "stu-2")
	require.NoError(t, err)
	assert.False(t, updated.IsParticipant("stu-2"))

	var pre *lifecycle.PreconditionError
	_, err = f.svc.RemoveParticipant(as(coProf), p.ID, prof.ID)
	assert.ErrorAs(t, err, &pre)

	var nf *model.NotFoundError
	_, err = f.svc.RemoveParticipant(as(prof), p.ID, "ghost")
	assert.ErrorAs(t, err, &nf)
}

func TestUnknownProject(t *testing.T) {
	f := newFixture()
	var nf *model.NotFoundError
	_, err := f.svc.CompleteMilestone(as(prof), "missing", "m")
	assert.ErrorAs(t, err, &nf)
	_, err = f.svc.ProgressOf(as(prof), "missing")
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, f.svc.DeleteProject(as(prof), "missing"), &nf)
}

func TestDeleteProject(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	var denied *rbac.AuthorizationError
	require.ErrorAs(t, f.svc.DeleteProject(as(coProf), p.ID), &denied)
	assert.Equal(t, rbac.ReasonNotPrimarySupervisor, denied.Reason)

	require.NoError(t, f.svc.DeleteProject(as(prof), p.ID))
	events := f.projects.Events()
	assert.Equal(t, model.EventProjectDeleted, events[len(events)-1].Type)

	var nf *model.NotFoundError
	_, err := f.svc.GetProject(as(prof), p.ID)
	assert.ErrorAs(t, err, &nf)
}

func TestListProjectsFilters(t *testing.T) {
	f := newFixture()
	soil := f.createProject(t, "Soil microbiome")
	f.createProject(t, "Coral bleaching")
	for _, title := range []string{"M1", "M2", "M3"} {
		_, err := f.svc.CompleteMilestone(as(student), soil.ID, milestoneID(t, soil, title))
		require.NoError(t, err)
	}
	_, err := f.svc.CompleteProject(as(prof), soil.ID)
	require.NoError(t, err)

	all, err := f.svc.ListProjects(as(student), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := f.svc.ListProjects(as(student), ListFilter{Status: model.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, soil.ID, completed[0].ID)

	search, err := f.svc.ListProjects(as(prof), ListFilter{Query: "CORAL"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "Coral bleaching", search[0].Title)

	none, err := f.svc.ListProjects(as(other), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	var verr *model.ValidationError
	_, err = f.svc.ListProjects(as(prof), ListFilter{Status: "archived"})
	assert.ErrorAs(t, err, &verr)
}

func TestCalendarViews(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	_, err := f.svc.CompleteMilestone(as(student), p.ID, milestoneID(t, p, "M1"))
	require.NoError(t, err)

	on, err := f.svc.EventsOnDate(as(student), model.NewDate(2024, time.May, 1))
	require.NoError(t, err)
	require.Len(t, on, 1)
	assert.Equal(t, calendar.StatusOverdue, on[0].Status)

	outsider, err := f.svc.EventsOnDate(as(other), model.NewDate(2024, time.May, 1))
	require.NoError(t, err)
	assert.Empty(t, outsider)

	month, err := f.svc.MonthView(as(prof), 2024, time.June)
	require.NoError(t, err)
	require.Len(t, month.Days, 30)
	require.Len(t, month.Days[0].Events, 1)
	assert.Equal(t, calendar.StatusCompleted, month.Days[0].Events[0].Status)

	var verr *model.ValidationError
	_, err = f.svc.MonthView(as(prof), 2024, 13)
	assert.ErrorAs(t, err, &verr)
	_, err = f.svc.UpcomingEvents(as(prof), model.NewDate(2024, time.June, 10), 0)
	assert.ErrorAs(t, err, &verr)
	_, err = f.svc.EventsOnDate(as(prof), model.Date{})
	assert.ErrorAs(t, err, &verr)
}

func TestActivityRequiresMembership(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	for _, ev := range f.projects.Events() {
		_, err := f.activity.Append(context.Background(), model.NewActivity(ev))
		require.NoError(t, err)
	}

	feed, err := f.svc.Activity(as(student), p.ID, 10)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, model.EventProjectCreated, feed[0].Type)

	var denied *rbac.AuthorizationError
	_, err = f.svc.Activity(as(other), p.ID, 10)
	assert.ErrorAs(t, err, &denied)
}

type conflictingRepo struct {
	*repository.MemoryProjectRepository
}

func (r conflictingRepo) Save(_ context.Context, p *model.Project) error {
	return &repository.ConflictError{ProjectID: p.ID, ExpectedVersion: p.Version}
}

func TestConflictSurfaces(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	svc := NewProjectService(conflictingRepo{f.projects}, f.activity, auth.ContextActorProvider{},
		lifecycle.NewEngine(), calendar.NewProjector(), zap.NewNop())
	_, err := svc.CompleteMilestone(as(student), p.ID, milestoneID(t, p, "M1"))

	var conflict *repository.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "conflict", outcomeOf(err))
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{model.NewNotFoundError("project", "x"), "not_found"},
		{&rbac.AuthorizationError{}, "denied"},
		{&lifecycle.InvalidTransitionError{}, "invalid_transition"},
		{&lifecycle.PreconditionError{}, "precondition"},
		{model.NewValidationError(nil), "invalid"},
		{fmt.Errorf("wrapped: %w", &repository.ConflictError{}), "conflict"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeOf(tt.err))
	}
}

func TestProjectEventsOnCalendar(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")

	var denied *rbac.AuthorizationError
	_, err := f.svc.AddProjectEvent(as(student), p.ID, model.NewProjectEventInput{
		Title: "Lab meeting", Type: model.ProjectEventMeeting, Date: model.NewDate(2024, time.June, 14),
	})
	require.ErrorAs(t, err, &denied)

	p, err = f.svc.AddProjectEvent(as(coProf), p.ID, model.NewProjectEventInput{
		Title: "Lab meeting", Type: model.ProjectEventMeeting, Date: model.NewDate(2024, time.June, 14),
	})
	require.NoError(t, err)
	require.Len(t, p.Events, 1)

	upcoming, err := f.svc.UpcomingEvents(as(student), model.NewDate(2024, time.June, 10), 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, calendar.TypeMeeting, upcoming[0].Type)
	assert.Equal(t, "Lab meeting", upcoming[0].Title)
	assert.Equal(t, calendar.TypeMilestone, upcoming[1].Type)

	p, err = f.svc.RemoveProjectEvent(as(prof), p.ID, p.Events[0].ID)
	require.NoError(t, err)
	assert.Empty(t, p.Events)

	var nf *model.NotFoundError
	_, err = f.svc.RemoveProjectEvent(as(prof), p.ID, "missing")
	assert.ErrorAs(t, err, &nf)
}

func TestInboxUnreadAndDueSoon(t *testing.T) {
	f := newFixture()
	p := f.createProject(t, "Soil microbiome")
	_, err := f.svc.AddProjectEvent(as(prof), p.ID, model.NewProjectEventInput{
		Title: "Lab meeting", Type: model.ProjectEventMeeting, Date: model.NewDate(2024, time.June, 14),
	})
	require.NoError(t, err)
	_, err = f.svc.CompleteMilestone(as(student), p.ID, milestoneID(t, p, "M1"))
	require.NoError(t, err)
	for _, ev := range f.projects.Events() {
		_, err := f.activity.Append(context.Background(), model.NewActivity(ev))
		require.NoError(t, err)
	}

	inbox, err := f.svc.Inbox(as(prof), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, inbox.UnreadTotal, "only the student's completion is news to prof")
	require.Len(t, inbox.DueSoon, 2)
	assert.Equal(t, "Lab meeting", inbox.DueSoon[0].Title)
	assert.Equal(t, "M2", inbox.DueSoon[1].Title)

	feed, err := f.svc.Activity(as(student), p.ID, 10)
	require.NoError(t, err)
	unread := 0
	for _, a := range feed {
		if a.Unread {
			unread++
			assert.NotEqual(t, student.ID, a.ActorID)
		}
	}
	assert.Equal(t, 2, unread)

	require.NoError(t, f.svc.MarkActivityRead(as(student), p.ID))
	inbox, err = f.svc.Inbox(as(student), 7)
	require.NoError(t, err)
	assert.Zero(t, inbox.UnreadTotal)
	assert.Empty(t, inbox.Unread)
	require.Len(t, inbox.DueSoon, 1)

	_, err = f.activity.Append(context.Background(), model.Activity{
		EventID: "late", ProjectID: p.ID, ActorID: prof.ID, Message: "later", OccurredAt: fixedNow.Add(time.Hour),
	})
	require.NoError(t, err)
	inbox, err = f.svc.Inbox(as(student), 7)
	require.NoError(t, err)
	require.Len(t, inbox.Unread, 1)
	assert.Equal(t, ProjectUnread{ProjectID: p.ID, ProjectTitle: "Soil microbiome", Unread: 1}, inbox.Unread[0])

	var denied *rbac.AuthorizationError
	assert.ErrorAs(t, f.svc.MarkActivityRead(as(other), p.ID), &denied)
	var verr *model.ValidationError
	_, err = f.svc.Inbox(as(prof), -1)
	assert.ErrorAs(t, err, &verr)
}
