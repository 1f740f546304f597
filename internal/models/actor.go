package models

// Actor identifies who caused a change: a staff member or the system itself.
// The zero value is the system actor.
type Actor struct {
	staffID string
}

// SystemActor returns the actor used for automatic transitions.
func SystemActor() Actor {
	return Actor{}
}

// StaffActor returns an actor for the given staff member.
func StaffActor(staffID string) Actor {
	return Actor{staffID: staffID}
}

// IsSystem reports whether the actor is the system.
func (a Actor) IsSystem() bool {
	return a.staffID == ""
}

// StaffID returns the staff identifier and whether the actor is a staff member.
func (a Actor) StaffID() (string, bool) {
	return a.staffID, a.staffID != ""
}

// Ref converts the actor into the nullable column representation.
func (a Actor) Ref() *string {
	if a.IsSystem() {
		return nil
	}
	id := a.staffID
	return &id
}

func (a Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	return "staff:" + a.staffID
}
