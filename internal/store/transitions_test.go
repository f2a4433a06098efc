package store

import (
	"errors"
	"testing"
	"time"

	"tabour/internal/models"
)

func TestApplyUpdateSeated(t *testing.T) {
	now := time.Date(2026, time.August, 30, 19, 0, 0, 0, time.UTC)
	prior := models.Booking{ID: "001", Status: models.StatusWaiting}

	transition, err := ApplyUpdate(prior, BookingUpdate{Status: models.StatusSeated}, now)
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if transition.Booking.Status != models.StatusSeated {
		t.Fatalf("status = %q", transition.Booking.Status)
	}
	if transition.Booking.SeatedAt == nil || !transition.Booking.SeatedAt.Equal(now) {
		t.Fatalf("seatedAt = %v, want %v", transition.Booking.SeatedAt, now)
	}
	if transition.Notify != models.TemplateBookingSeated {
		t.Fatalf("notify = %q", transition.Notify)
	}
	if !transition.MarkServing || !transition.CheckReminders {
		t.Fatalf("markServing=%v checkReminders=%v, want both", transition.MarkServing, transition.CheckReminders)
	}
}

func TestApplyUpdateCompletedRoundsDuration(t *testing.T) {
	seatedAt := time.Date(2026, time.August, 30, 19, 0, 0, 0, time.UTC)
	completedAt := seatedAt.Add(47*time.Minute + 30*time.Second)
	prior := models.Booking{ID: "001", Status: models.StatusSeated, SeatedAt: &seatedAt}

	transition, err := ApplyUpdate(prior, BookingUpdate{Status: models.StatusCompleted}, completedAt)
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if transition.Booking.VisitDurationMinutes != 48 {
		t.Fatalf("visitDurationMinutes = %d, want 48", transition.Booking.VisitDurationMinutes)
	}
	if transition.Booking.CompletedAt == nil || !transition.Booking.CompletedAt.Equal(completedAt) {
		t.Fatalf("completedAt = %v", transition.Booking.CompletedAt)
	}
	if transition.Notify != models.TemplatePostVisitFeedback {
		t.Fatalf("notify = %q", transition.Notify)
	}
}

func TestApplyUpdateCompletedWithoutSeating(t *testing.T) {
	now := time.Now()
	prior := models.Booking{ID: "001", Status: models.StatusWaiting}

	transition, err := ApplyUpdate(prior, BookingUpdate{Status: models.StatusCompleted}, now)
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	// Plain status write: no derived timestamps, no notification.
	if transition.Booking.CompletedAt != nil || transition.Booking.VisitDurationMinutes != 0 {
		t.Fatalf("derived completion fields set on non seated booking: %+v", transition.Booking)
	}
	if transition.Notify != "" {
		t.Fatalf("notify = %q, want none", transition.Notify)
	}
}

func TestApplyUpdateCancelled(t *testing.T) {
	transition, err := ApplyUpdate(models.Booking{ID: "001", Status: models.StatusWaiting}, BookingUpdate{Status: models.StatusCancelled}, time.Now())
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	if transition.Notify != models.TemplateBookingCancelled {
		t.Fatalf("notify = %q", transition.Notify)
	}
	if !transition.CheckReminders {
		t.Fatal("cancellation must re-evaluate reminders")
	}
}

func TestApplyUpdateMergesFields(t *testing.T) {
	prior := models.Booking{ID: "001", Name: "أحمد", Guests: 2, Status: models.StatusWaiting}

	transition, err := ApplyUpdate(prior, BookingUpdate{Name: "سارة", Guests: 4, EstimatedWaitTime: 15}, time.Now())
	if err != nil {
		t.Fatalf("ApplyUpdate() error = %v", err)
	}
	b := transition.Booking
	if b.Name != "سارة" || b.Guests != 4 || b.EstimatedWaitTime != 15 {
		t.Fatalf("merged booking = %+v", b)
	}
	if b.Status != models.StatusWaiting {
		t.Fatalf("status changed to %q without a status update", b.Status)
	}
	if transition.Notify != "" || transition.CheckReminders || transition.MarkServing {
		t.Fatalf("field merge produced side effects: %+v", transition)
	}
}

func TestApplyUpdateInvalidStatus(t *testing.T) {
	_, err := ApplyUpdate(models.Booking{ID: "001"}, BookingUpdate{Status: "teleported"}, time.Now())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}
