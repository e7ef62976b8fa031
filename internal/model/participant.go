package model

// ProjectRole is the role a participant holds inside one project.
type ProjectRole string

const (
	RolePrimarySupervisor   ProjectRole = "primary_supervisor"
	RoleSecondarySupervisor ProjectRole = "secondary_supervisor"
	RoleProjectTrainee      ProjectRole = "trainee"
)

func (r ProjectRole) Valid() bool {
	switch r {
	case RolePrimarySupervisor, RoleSecondarySupervisor, RoleProjectTrainee:
		return true
	}
	return false
}

func (r ProjectRole) IsSupervisor() bool {
	return r == RolePrimarySupervisor || r == RoleSecondarySupervisor
}

type Participant struct {
	ID   string      `json:"id" validate:"notblank"`
	Name string      `json:"name" validate:"notblank"`
	Role ProjectRole `json:"role" validate:"oneof=primary_supervisor secondary_supervisor trainee"`
}

func NewParticipant(id, name string, role ProjectRole) (Participant, error) {
	p := Participant{ID: id, Name: name, Role: role}
	if err := validateStruct(p); err != nil {
		return Participant{}, err
	}
	return p, nil
}

// NewParticipantInput is what a supervisor supplies to attach someone to a project.
// The primary supervisor is always the project creator, so it cannot be requested here.
type NewParticipantInput struct {
	ID   string      `json:"id" validate:"notblank"`
	Name string      `json:"name" validate:"notblank"`
	Role ProjectRole `json:"role" validate:"oneof=secondary_supervisor trainee"`
}

func (in NewParticipantInput) Validate() error {
	return validateStruct(in)
}
