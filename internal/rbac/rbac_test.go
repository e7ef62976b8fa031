package rbac

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

var (
	primaryActor   = model.Actor{ID: "sup-1", Role: model.RoleSupervisor}
	secondaryActor = model.Actor{ID: "sup-2", Role: model.RoleSupervisor}
	traineeActor   = model.Actor{ID: "tr-1", Role: model.RoleTrainee}
	outsiderSup    = model.Actor{ID: "sup-9", Role: model.RoleSupervisor}
	outsiderTr     = model.Actor{ID: "tr-9", Role: model.RoleTrainee}
)

func project(t *testing.T) *model.Project {
	t.Helper()
	p, err := model.BuildProject("p1", "Thesis", "", model.Participant{ID: "sup-1", Name: "Ada", Role: model.RolePrimarySupervisor}, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.AddParticipant(model.Participant{ID: "sup-2", Name: "Cy", Role: model.RoleSecondarySupervisor}))
	require.NoError(t, p.AddParticipant(model.Participant{ID: "tr-1", Name: "Bo", Role: model.RoleProjectTrainee}))
	return p
}

func TestPolicyMatrix(t *testing.T) {
	p := project(t)

	tests := []struct {
		action Action
		allow  map[string]bool
	}{
		{ActionAddParticipant, map[string]bool{"sup-1": true, "sup-2": true}},
		{ActionRemoveParticipant, map[string]bool{"sup-1": true, "sup-2": true}},
		{ActionAddMilestone, map[string]bool{"sup-1": true, "sup-2": true}},
		{ActionReopenMilestone, map[string]bool{"sup-1": true, "sup-2": true}},
		{ActionCompleteProject, map[string]bool{"sup-1": true, "sup-2": true}},
		{ActionCompleteMilestone, map[string]bool{"sup-1": true, "sup-2": true, "tr-1": true}},
		{ActionViewProject, map[string]bool{"sup-1": true, "sup-2": true, "tr-1": true}},
		{ActionDeleteProject, map[string]bool{"sup-1": true}},
		{ActionAddEvent, map[string]bool{"sup-1": true, "sup-2": true}},
		{ActionRemoveEvent, map[string]bool{"sup-1": true, "sup-2": true}},
	}
	actors := []model.Actor{primaryActor, secondaryActor, traineeActor, outsiderSup, outsiderTr}

	for _, tt := range tests {
		for _, a := range actors {
			t.Run(string(tt.action)+"/"+a.ID, func(t *testing.T) {
				assert.Equal(t, tt.allow[a.ID], CanPerform(a, tt.action, p))
			})
		}
	}
}

func TestCreateProjectNeedsGlobalSupervisor(t *testing.T) {
	assert.True(t, CanPerform(outsiderSup, ActionCreateProject, nil))

	err := Authorize(outsiderTr, ActionCreateProject, nil)
	var aerr *AuthorizationError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ReasonNotSupervisor, aerr.Reason)
	assert.Empty(t, aerr.ProjectID)
}

func TestGlobalRoleMustMatchProjectRole(t *testing.T) {
	p := project(t)
	// listed as secondary supervisor but acting with a trainee token
	demoted := model.Actor{ID: "sup-2", Role: model.RoleTrainee}
	assert.False(t, CanPerform(demoted, ActionAddMilestone, p))
	assert.True(t, CanPerform(demoted, ActionCompleteMilestone, p))
}

func TestCompletedProjectFreezesMutations(t *testing.T) {
	p := project(t)
	p.Status = model.StatusCompleted

	err := Authorize(primaryActor, ActionAddParticipant, p)
	var aerr *AuthorizationError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ReasonProjectCompleted, aerr.Reason)
	assert.Equal(t, "p1", aerr.ProjectID)

	assert.True(t, CanPerform(traineeActor, ActionViewProject, p))
	assert.True(t, CanPerform(primaryActor, ActionDeleteProject, p))
	assert.NoError(t, AuthorizeMembership(primaryActor, ActionCompleteProject, p))
}

func TestUnknownActionAndMissingProject(t *testing.T) {
	err := Authorize(primaryActor, Action("archive"), project(t))
	var aerr *AuthorizationError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ReasonUnknownAction, aerr.Reason)

	err = Authorize(primaryActor, ActionViewProject, nil)
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ReasonNoProject, aerr.Reason)
}

func TestAuthorizationErrorMessage(t *testing.T) {
	err := &AuthorizationError{Action: ActionDeleteProject, ProjectID: "p1", Reason: ReasonNotPrimarySupervisor}
	assert.Equal(t, "delete_project denied on project p1: not the primary supervisor", err.Error())
}
