package store

import (
	"fmt"
	"strconv"

	"tabour/internal/models"
)

// TypePolicy captures what differs between the two booking variants:
// how IDs are formatted, which status a fresh booking starts in, and
// whether a scheduled date/time must accompany creation.
type TypePolicy struct {
	InitialStatus    string
	RequiresSchedule bool
	FormatID         func(seq int64) string
}

var typePolicies = map[string]TypePolicy{
	models.TypeWaitlist: {
		InitialStatus: models.StatusWaiting,
		FormatID: func(seq int64) string {
			return fmt.Sprintf("%03d", seq)
		},
	},
	models.TypeAppointment: {
		InitialStatus:    models.StatusConfirmed,
		RequiresSchedule: true,
		// Historical format: a literal "A0" prefix, no further padding,
		// so widths diverge once the counter passes 9.
		FormatID: func(seq int64) string {
			return "A0" + strconv.FormatInt(seq, 10)
		},
	},
}

func PolicyFor(bookingType string) (TypePolicy, bool) {
	policy, ok := typePolicies[bookingType]
	return policy, ok
}
