package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"tabour/internal/models"
)

func completed(branchID string, wait int, at time.Time) models.Booking {
	done := at
	return models.Booking{
		BranchID:          branchID,
		Status:            models.StatusCompleted,
		EstimatedWaitTime: wait,
		CreatedAt:         at.Add(-time.Hour),
		CompletedAt:       &done,
	}
}

func TestWaitTimesYearBuckets(t *testing.T) {
	bookings := []models.Booking{
		completed("b1", 10, time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)),
		completed("b1", 20, time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC)),
		completed("b1", 15, time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)),
		completed("b1", 40, time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)),
		// Not completed, must be ignored.
		{BranchID: "b1", Status: models.StatusSeated, EstimatedWaitTime: 99, CreatedAt: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)},
		// No recorded estimate, must be ignored.
		completed("b1", 0, time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)),
	}

	buckets := WaitTimes(bookings, 2025, 0, models.BranchAll)
	if len(buckets) != 12 {
		t.Fatalf("len(buckets) = %d, want 12", len(buckets))
	}
	if buckets[0].Label != "Jan" || buckets[11].Label != "Dec" {
		t.Fatalf("labels = %q ... %q", buckets[0].Label, buckets[11].Label)
	}
	if buckets[2].Value != 15 {
		t.Fatalf("March value = %d, want 15", buckets[2].Value)
	}
	for i, b := range buckets {
		if i != 2 && b.Value != 0 {
			t.Fatalf("bucket %s = %d, want 0", b.Label, b.Value)
		}
	}
}

func TestWaitTimesDayBuckets(t *testing.T) {
	bookings := []models.Booking{
		completed("b1", 12, time.Date(2025, time.February, 5, 9, 0, 0, 0, time.UTC)),
		completed("b1", 17, time.Date(2025, time.February, 5, 20, 0, 0, 0, time.UTC)),
		completed("b1", 30, time.Date(2025, time.January, 5, 12, 0, 0, 0, time.UTC)),
	}

	buckets := WaitTimes(bookings, 2025, 2, "b1")
	if len(buckets) != 28 {
		t.Fatalf("len(buckets) = %d, want 28 for Feb 2025", len(buckets))
	}
	// Mean of 12 and 17 rounds to 15.
	if buckets[4].Value != 15 {
		t.Fatalf("Feb 5 value = %d, want 15", buckets[4].Value)
	}
	if buckets[4].Label != "5" {
		t.Fatalf("Feb 5 label = %q", buckets[4].Label)
	}
}

func TestWaitTimesBranchFilter(t *testing.T) {
	bookings := []models.Booking{
		completed("b1", 10, time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)),
		completed("b2", 50, time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)),
	}

	buckets := WaitTimes(bookings, 2025, 0, "b2")
	if buckets[5].Value != 50 {
		t.Fatalf("June value = %d, want 50", buckets[5].Value)
	}
}

func TestWaitTimesEmptyInput(t *testing.T) {
	buckets := WaitTimes(nil, 2025, 0, models.BranchAll)
	if len(buckets) != 12 {
		t.Fatalf("len(buckets) = %d, want 12 zeroed buckets", len(buckets))
	}
}

func TestWaitTimesBucketByCompletion(t *testing.T) {
	done := time.Date(2025, time.March, 1, 13, 0, 0, 0, time.UTC)
	bookings := []models.Booking{
		{
			BranchID:          "b1",
			Status:            models.StatusCompleted,
			EstimatedWaitTime: 30,
			CreatedAt:         time.Date(2025, time.January, 20, 12, 0, 0, 0, time.UTC),
			CompletedAt:       &done,
		},
		// Completed without a completion timestamp, must be ignored.
		{
			BranchID:          "b1",
			Status:            models.StatusCompleted,
			EstimatedWaitTime: 99,
			CreatedAt:         time.Date(2025, time.January, 20, 12, 0, 0, 0, time.UTC),
		},
	}

	buckets := WaitTimes(bookings, 2025, 0, models.BranchAll)
	if buckets[2].Value != 30 {
		t.Fatalf("March value = %d, want 30 keyed by completion month", buckets[2].Value)
	}
	if buckets[0].Value != 0 {
		t.Fatalf("January value = %d, want 0", buckets[0].Value)
	}
}

func TestWriteVisitLog(t *testing.T) {
	now := time.Now()
	bookings := []models.Booking{
		{Name: "سارة", Mobile: "+966512345678", Status: models.StatusCompleted, CreatedAt: now},
		{Name: "أحمد", Mobile: "+966598765432", Status: models.StatusCompleted, CreatedAt: now},
		{Name: "سارة", Mobile: "+966512345678", Status: models.StatusCompleted, CreatedAt: now},
		// Active bookings stay out of the log.
		{Name: "خالد", Mobile: "+966511111111", Status: models.StatusWaiting, CreatedAt: now},
	}

	var buf bytes.Buffer
	if err := WriteVisitLog(&buf, bookings); err != nil {
		t.Fatalf("WriteVisitLog() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Name,Mobile,VisitCount" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "سارة,0512345678,2" {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if lines[2] != "أحمد,0598765432,1" {
		t.Fatalf("row 2 = %q", lines[2])
	}
}
