package model

import "github.com/google/uuid"

// Role is the global role of a user of the system.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleTrainee    Role = "trainee"
)

func (r Role) Valid() bool {
	return r == RoleSupervisor || r == RoleTrainee
}

// Actor is whoever invokes an operation. It is supplied per request and never persisted.
type Actor struct {
	ID   string `json:"id" validate:"notblank"`
	Role Role   `json:"role" validate:"oneof=supervisor trainee"`
	Name string `json:"name,omitempty"`
}

func NewActor(id string, role Role, name string) (Actor, error) {
	a := Actor{ID: id, Role: role, Name: name}
	if err := validateStruct(a); err != nil {
		return Actor{}, err
	}
	return a, nil
}

func (a Actor) IsSupervisor() bool { return a.Role == RoleSupervisor }

// DisplayName falls back to the identity when no name was supplied.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// NewID returns a fresh random identity.
func NewID() string {
	return uuid.NewString()
}
