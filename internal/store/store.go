package store

import (
	"context"
	"time"

	"tabour/internal/models"
)

type CreateBookingInput struct {
	BranchID              string
	BookingType           string
	Name                  string
	Mobile                string
	Guests                int
	SeatingArea           string
	AgreedToNotifications bool
	AppointmentDate       string
	AppointmentTime       string
	CreatedAt             time.Time
}

// BookingUpdate is a partial update. Zero values leave the corresponding
// field untouched; Status drives the transition table in transitions.go.
type BookingUpdate struct {
	Status            string
	Name              string
	Guests            int
	SeatingArea       string
	AppointmentDate   string
	AppointmentTime   string
	EstimatedWaitTime int
}

type Session struct {
	SessionID string
	UserID    string
	Role      string
	BranchID  string
	ExpiresAt time.Time
}

// Notification is the fully resolved payload handed to the dispatcher
// once a transition has committed. Queue is the branch's waiting waitlist
// at the moment of the state change, ordered by creation time.
type Notification struct {
	Booking  models.Booking
	Template string
	Queue    []models.Booking
	Branch   models.Branch
	Settings models.Settings
	Override string
}

// Notifier delivers a committed notification. Implementations must never
// fail the caller; delivery problems are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Publisher receives "now serving" marker changes for realtime fan-out.
type Publisher interface {
	PublishServing(branchID, bookingID string)
}

type BookingStore interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (models.Booking, bool, error)
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	UpdateBooking(ctx context.Context, id string, upd BookingUpdate) (models.Booking, error)
	FindActiveBookingByMobile(ctx context.Context, mobile string) (models.Booking, bool, error)
	ListBookings(ctx context.Context, branchID string) ([]models.Booking, error)
	ListQueue(ctx context.Context, branchID string) ([]models.Booking, error)
	CurrentlyServing(ctx context.Context, branchID string) (string, error)
	SetEstimatedWaitTime(ctx context.Context, id string, minutes int) error
	AverageVisitDuration(ctx context.Context, branchID string) (float64, error)
	AutoDepart(ctx context.Context, threshold time.Duration) (int, error)
	NotifyDirect(ctx context.Context, bookingID, message string) error
}

type DirectoryStore interface {
	ListBranches(ctx context.Context) ([]models.Branch, error)
	GetBranch(ctx context.Context, id string) (models.Branch, error)
	AddBranch(ctx context.Context, branch models.Branch) (models.Branch, error)
	UpdateBranch(ctx context.Context, id string, branch models.Branch) (models.Branch, error)
	DeleteBranch(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)
	AddUser(ctx context.Context, user models.User, password string) (models.User, error)
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, settings models.Settings) error
	Login(ctx context.Context, mobile, password string) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Store interface {
	BookingStore
	DirectoryStore
}
