package rbac

import (
	"fmt"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

// Action is a domain operation subject to authorization.
type Action string

const (
	ActionCreateProject     Action = "create_project"
	ActionAddParticipant    Action = "add_participant"
	ActionRemoveParticipant Action = "remove_participant"
	ActionAddMilestone      Action = "add_milestone"
	ActionCompleteMilestone Action = "complete_milestone"
	ActionReopenMilestone   Action = "reopen_milestone"
	ActionCompleteProject   Action = "complete_project"
	ActionViewProject       Action = "view_project"
	ActionDeleteProject     Action = "delete_project"
	ActionAddEvent          Action = "add_event"
	ActionRemoveEvent       Action = "remove_event"
)

// Denial reasons
const (
	ReasonNotSupervisor        = "not a supervisor"
	ReasonNotParticipant       = "not a participant"
	ReasonNotPrimarySupervisor = "not the primary supervisor"
	ReasonProjectCompleted     = "project is completed"
	ReasonUnknownAction        = "unknown action"
	ReasonNoProject            = "no project"
)

// requirement is the minimum project membership an action needs.
type requirement int

const (
	requireGlobalSupervisor requirement = iota
	requireParticipant
	requireProjectSupervisor
	requirePrimarySupervisor
)

var actionRequirements = map[Action]requirement{
	ActionCreateProject:     requireGlobalSupervisor,
	ActionAddParticipant:    requireProjectSupervisor,
	ActionRemoveParticipant: requireProjectSupervisor,
	ActionAddMilestone:      requireProjectSupervisor,
	ActionCompleteProject:   requireProjectSupervisor,
	ActionReopenMilestone:   requireProjectSupervisor,
	ActionCompleteMilestone: requireParticipant,
	ActionViewProject:       requireParticipant,
	ActionDeleteProject:     requirePrimarySupervisor,
	ActionAddEvent:          requireProjectSupervisor,
	ActionRemoveEvent:       requireProjectSupervisor,
}

// readActions stay available once a project is completed.
// Deletion is administrative and not a state transition of the project.
var readActions = map[Action]bool{
	ActionViewProject:   true,
	ActionDeleteProject: true,
}

// AuthorizationError reports that an actor may not perform an action.
type AuthorizationError struct {
	Action    Action
	ActorID   string
	ProjectID string
	Reason    string
}

func (e *AuthorizationError) Error() string {
	if e.ProjectID == "" {
		return fmt.Sprintf("%s denied: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s denied on project %s: %s", e.Action, e.ProjectID, e.Reason)
}

// CanPerform reports whether actor may perform action on project.
func CanPerform(actor model.Actor, action Action, project *model.Project) bool {
	return Authorize(actor, action, project) == nil
}

// Authorize returns an *AuthorizationError naming the action and reason when actor may not perform action.
// Every non-read action on a completed project is denied.
func Authorize(actor model.Actor, action Action, project *model.Project) error {
	if err := AuthorizeMembership(actor, action, project); err != nil {
		return err
	}
	if project != nil && project.IsCompleted() && !readActions[action] {
		return deny(actor, action, project, ReasonProjectCompleted)
	}
	return nil
}

// AuthorizeMembership checks only the actor's role and project membership, ignoring project status.
// Callers use it when a completed project must surface a lifecycle error instead of a denial.
func AuthorizeMembership(actor model.Actor, action Action, project *model.Project) error {
	req, ok := actionRequirements[action]
	if !ok {
		return deny(actor, action, project, ReasonUnknownAction)
	}

	if req == requireGlobalSupervisor {
		if !actor.IsSupervisor() {
			return deny(actor, action, project, ReasonNotSupervisor)
		}
		return nil
	}

	if project == nil {
		return deny(actor, action, nil, ReasonNoProject)
	}
	part, ok := project.Participant(actor.ID)
	if !ok {
		return deny(actor, action, project, ReasonNotParticipant)
	}

	switch req {
	case requireProjectSupervisor:
		if !part.Role.IsSupervisor() || !actor.IsSupervisor() {
			return deny(actor, action, project, ReasonNotSupervisor)
		}
	case requirePrimarySupervisor:
		if part.Role != model.RolePrimarySupervisor || !actor.IsSupervisor() {
			return deny(actor, action, project, ReasonNotPrimarySupervisor)
		}
	}
	return nil
}

func deny(actor model.Actor, action Action, project *model.Project, reason string) *AuthorizationError {
	e := &AuthorizationError{Action: action, ActorID: actor.ID, Reason: reason}
	if project != nil {
		e.ProjectID = project.ID
	}
	return e
}
