package lifecycle

import (
	"fmt"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/rbac"
)

// InvalidTransitionError reports a transition the current lifecycle state does not allow.
type InvalidTransitionError struct {
	Action      rbac.Action
	ProjectID   string
	MilestoneID string
	Reason      string
}

func (e *InvalidTransitionError) Error() string {
	if e.MilestoneID != "" {
		return fmt.Sprintf("%s on milestone %s of project %s: %s", e.Action, e.MilestoneID, e.ProjectID, e.Reason)
	}
	return fmt.Sprintf("%s on project %s: %s", e.Action, e.ProjectID, e.Reason)
}

// PreconditionError reports an unmet business rule.
type PreconditionError struct {
	Action         rbac.Action
	ProjectID      string
	MilestoneID    string
	MilestoneTitle string
	Reason         string
}

func (e *PreconditionError) Error() string {
	if e.MilestoneID != "" {
		return fmt.Sprintf("%s on project %s: %s (milestone %s %q)", e.Action, e.ProjectID, e.Reason, e.MilestoneID, e.MilestoneTitle)
	}
	return fmt.Sprintf("%s on project %s: %s", e.Action, e.ProjectID, e.Reason)
}
