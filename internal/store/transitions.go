package store

import (
	"math"
	"time"

	"tabour/internal/models"
)

// Transition is the outcome of applying a BookingUpdate to a booking:
// the next booking value plus the side effects the owning store must run
// after committing it. Keeping this pure lets both store implementations
// share one set of lifecycle rules.
type Transition struct {
	Booking        models.Booking
	Notify         string
	CheckReminders bool
	MarkServing    bool
}

// ApplyUpdate merges upd onto prior and derives the lifecycle fields for
// status changes. now supplies seatedAt/completedAt timestamps.
//
// Status special cases, checked in order against the update's target
// status and the booking's prior state:
//
//	seated            -> seatedAt = now, fire bookingSeated, mark serving
//	completed (from seated) -> completedAt = now, visit duration, fire postVisitFeedback
//	cancelled         -> fire bookingCancelled
//
// Any transition that removes or adds an active waitlist member also asks
// the store to re-evaluate turn reminders for the branch.
func ApplyUpdate(prior models.Booking, upd BookingUpdate, now time.Time) (Transition, error) {
	if upd.Status != "" && !models.ValidStatus(upd.Status) {
		return Transition{}, ErrInvalidState
	}

	next := prior
	if upd.Name != "" {
		next.Name = upd.Name
	}
	if upd.Guests > 0 {
		next.Guests = upd.Guests
	}
	if upd.SeatingArea != "" {
		next.SeatingArea = upd.SeatingArea
	}
	if upd.AppointmentDate != "" {
		next.AppointmentDate = upd.AppointmentDate
	}
	if upd.AppointmentTime != "" {
		next.AppointmentTime = upd.AppointmentTime
	}
	if upd.EstimatedWaitTime > 0 {
		next.EstimatedWaitTime = upd.EstimatedWaitTime
	}

	result := Transition{}
	switch {
	case upd.Status == models.StatusSeated:
		next.Status = models.StatusSeated
		seatedAt := now
		next.SeatedAt = &seatedAt
		result.Notify = models.TemplateBookingSeated
		result.CheckReminders = true
		result.MarkServing = true

	case upd.Status == models.StatusCompleted && prior.Status == models.StatusSeated && prior.SeatedAt != nil:
		next.Status = models.StatusCompleted
		completedAt := now
		next.CompletedAt = &completedAt
		next.VisitDurationMinutes = int(math.Round(completedAt.Sub(*prior.SeatedAt).Minutes()))
		result.Notify = models.TemplatePostVisitFeedback
		result.CheckReminders = true

	case upd.Status == models.StatusCancelled:
		next.Status = models.StatusCancelled
		result.Notify = models.TemplateBookingCancelled
		result.CheckReminders = true

	case upd.Status != "":
		next.Status = upd.Status
	}

	result.Booking = next
	return result, nil
}
