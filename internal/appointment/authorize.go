package appointment

import (
	"fmt"

	"github.com/google/uuid"
)

// accessLevel says how far a role's access reaches for one operation.
type accessLevel int

const (
	accessDenied accessLevel = iota
	accessOwnRecord
	accessAnyRecord
)

type operation string

const (
	opBook             operation = "book"
	opCancel           operation = "cancel"
	opMarkNoShow       operation = "mark-no-show"
	opComplete         operation = "complete"
	opUpdateVisitNotes operation = "update-visit-notes"
	opListByDate       operation = "list-appointments-by-date"
	opListByPatient    operation = "list-appointments-by-patient"
	opListVisits       operation = "list-visits-by-patient"
)

// policy is the single source of truth for role capabilities. "Own record"
// means the actor's id must match the patient the operation targets.
var policy = map[operation]map[Role]accessLevel{
	opBook: {
		RolePatient:      accessOwnRecord,
		RoleReceptionist: accessAnyRecord,
	},
	opCancel: {
		RolePatient:      accessOwnRecord,
		RoleReceptionist: accessAnyRecord,
	},
	opMarkNoShow: {
		RoleReceptionist: accessAnyRecord,
	},
	opComplete: {
		RoleDoctor: accessAnyRecord,
	},
	opUpdateVisitNotes: {
		RoleDoctor: accessAnyRecord,
	},
	opListByDate: {
		RoleReceptionist: accessAnyRecord,
		RoleDoctor:       accessAnyRecord,
	},
	opListByPatient: {
		RolePatient:      accessOwnRecord,
		RoleReceptionist: accessAnyRecord,
	},
	opListVisits: {
		RoleDoctor: accessAnyRecord,
	},
}

// authorize checks the policy table for op. patientID is the patient the
// operation targets; operations with no patient scope pass uuid.Nil.
func authorize(actor Actor, op operation, patientID uuid.UUID) error {
	switch policy[op][actor.Role] {
	case accessAnyRecord:
		return nil
	case accessOwnRecord:
		if actor.ID == patientID {
			return nil
		}
		return fmt.Errorf("%w: %s may only %s their own appointments", ErrForbidden, actor.Role, op)
	default:
		return fmt.Errorf("%w: role %s may not %s", ErrForbidden, actor.Role, op)
	}
}
