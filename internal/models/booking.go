package models

import "time"

type Booking struct {
	ID                    string     `json:"id"`
	BranchID              string     `json:"branch_id"`
	BookingType           string     `json:"booking_type"`
	Name                  string     `json:"name"`
	Mobile                string     `json:"mobile"`
	Guests                int        `json:"guests"`
	SeatingArea           string     `json:"seating_area,omitempty"`
	AgreedToNotifications bool       `json:"agreed_to_notifications"`
	AppointmentDate       string     `json:"appointment_date,omitempty"`
	AppointmentTime       string     `json:"appointment_time,omitempty"`
	Status                string     `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
	SeatedAt              *time.Time `json:"seated_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	VisitDurationMinutes  int        `json:"visit_duration_minutes,omitempty"`
	EstimatedWaitTime     int        `json:"estimated_wait_time,omitempty"`
	ReminderSent          bool       `json:"reminder_sent,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusConfirmed = "confirmed"
	StatusSeated    = "seated"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

const (
	TypeWaitlist    = "waitlist"
	TypeAppointment = "appointment"
)

const (
	SeatingAny     = "any"
	SeatingIndoor  = "indoor"
	SeatingOutdoor = "outdoor"
)

// Template keys recognized by the notification templates of both channels.
const (
	TemplateBookingConfirmation = "bookingConfirmation"
	TemplateTurnReminder        = "turnReminder"
	TemplateBookingSeated       = "bookingSeated"
	TemplateBookingCancelled    = "bookingCancelled"
	TemplateCustomerCall        = "customerCall"
	TemplatePostVisitFeedback   = "postVisitFeedback"
)

// IsActive reports whether the booking still occupies its customer's slot:
// not yet completed, cancelled, or marked a no-show.
func (b Booking) IsActive() bool {
	switch b.Status {
	case StatusWaiting, StatusConfirmed, StatusSeated:
		return true
	default:
		return false
	}
}

func ValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusConfirmed, StatusSeated, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

func ValidBookingType(bookingType string) bool {
	return bookingType == TypeWaitlist || bookingType == TypeAppointment
}

func ValidSeatingArea(area string) bool {
	switch area {
	case "", SeatingAny, SeatingIndoor, SeatingOutdoor:
		return true
	default:
		return false
	}
}
