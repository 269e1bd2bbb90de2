package identity

import "net/http"

// The gateway authenticates requests and forwards the actor in these headers.
// The core trusts them and only checks role-appropriate ownership.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

const (
	RoleTutor   = "tutor"
	RoleStudent = "student"
)

type Actor struct {
	UserID string
	Role   string
}

func FromRequest(r *http.Request) Actor {
	return Actor{
		UserID: r.Header.Get(HeaderUserID),
		Role:   r.Header.Get(HeaderRole),
	}
}

func (a Actor) IsTutor() bool {
	return a.Role == RoleTutor
}

// Owns reports whether the actor is the tutor that owns the resource.
func (a Actor) Owns(tutorID string) bool {
	return a.IsTutor() && a.UserID == tutorID
}
