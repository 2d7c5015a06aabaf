package domain

// Actor identifies who triggered a ticket event.
type Actor struct {
	ID         string
	Privileged bool
}

// SystemActor is the synthetic closer used by the inactivity reaper.
var SystemActor = Actor{ID: "system", Privileged: true}

// CanClose reports whether the actor may close a ticket owned by owner.
func (a Actor) CanClose(owner string) bool {
	return a.Privileged || a.ID == owner
}
