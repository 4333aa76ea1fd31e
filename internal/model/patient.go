package model

import "time"

// Identity classifies a patient for fee discount purposes.  The discount
// table itself lives in the pricing service.
type Identity string

const (
	IdentityStudent  Identity = "STUDENT"
	IdentityTeacher  Identity = "TEACHER"
	IdentityStaff    Identity = "STAFF"
	IdentityExternal Identity = "EXTERNAL"
)

// Patient is a person who can attend appointments.  A patient belongs to the
// user account that registered them, so one account may book for declared
// dependents (children, elderly relatives).
//
// Fields:
//  ID       : primary key identifier.
//  UserID   : owning account; bookings for this patient must come from it.
//  Name     : display name.
//  Identity : discount category.
//  CreatedAt: creation timestamp.
type Patient struct {
	ID        uint64    // patients.id
	UserID    uint64    // patients.user_id
	Name      string    // patients.name
	Identity  Identity  // patients.identity
	CreatedAt time.Time // patients.created_at
}
