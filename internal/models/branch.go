package models

type TimeSlot struct {
	Time     string `json:"time"`
	Capacity int    `json:"capacity"`
}

type AppointmentSettings struct {
	AvailableSlots []TimeSlot `json:"available_slots"`
	AvailableDays  []int      `json:"available_days"`
}

type Branch struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Location             string              `json:"location"`
	ImageURL             string              `json:"image_url,omitempty"`
	GoogleMapsURL        string              `json:"google_maps_url,omitempty"`
	ReviewURL            string              `json:"review_url,omitempty"`
	IsWaitlistEnabled    bool                `json:"is_waitlist_enabled"`
	WaitlistOpeningTime  string              `json:"waitlist_opening_time,omitempty"`
	WaitlistClosingTime  string              `json:"waitlist_closing_time,omitempty"`
	IsAppointmentEnabled bool                `json:"is_appointment_enabled"`
	AppointmentSettings  AppointmentSettings `json:"appointment_settings"`
}

// DayAvailable reports whether the branch takes appointments on the given
// weekday (time.Weekday numbering, Sunday = 0).
func (b Branch) DayAvailable(weekday int) bool {
	for _, day := range b.AppointmentSettings.AvailableDays {
		if day == weekday {
			return true
		}
	}
	return false
}

// Slot returns the configured slot matching the requested time label.
func (b Branch) Slot(timeLabel string) (TimeSlot, bool) {
	for _, slot := range b.AppointmentSettings.AvailableSlots {
		if slot.Time == timeLabel {
			return slot, true
		}
	}
	return TimeSlot{}, false
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// BranchAll marks a user as scoped to every branch.
const BranchAll = "all"

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Mobile       string `json:"mobile"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	BranchID     string `json:"branch_id"`
}
