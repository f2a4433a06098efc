package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"time"

	"tabour/internal/models"
)

// Bucket is one labeled data point in a wait-time report, ordered for
// charting.
type Bucket struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// WaitTimes aggregates completed bookings that carry a recorded wait
// estimate into period buckets keyed by completion time. month == 0
// buckets the whole year by calendar month; otherwise buckets by day of
// that month. Every bucket of the period is present, zero when no
// booking qualifies.
func WaitTimes(bookings []models.Booking, year int, month int, branchID string) []Bucket {
	type accum struct {
		sum   int
		count int
	}

	var buckets []Bucket
	var sums []accum
	if month == 0 {
		buckets = make([]Bucket, 12)
		sums = make([]accum, 12)
		for m := time.January; m <= time.December; m++ {
			buckets[m-1].Label = m.String()[:3]
		}
	} else {
		days := daysIn(year, time.Month(month))
		buckets = make([]Bucket, days)
		sums = make([]accum, days)
		for d := range buckets {
			buckets[d].Label = fmt.Sprintf("%d", d+1)
		}
	}

	for _, b := range bookings {
		if b.Status != models.StatusCompleted || b.CompletedAt == nil || b.EstimatedWaitTime <= 0 {
			continue
		}
		if branchID != "" && branchID != models.BranchAll && b.BranchID != branchID {
			continue
		}
		at := *b.CompletedAt
		if at.Year() != year {
			continue
		}
		var idx int
		if month == 0 {
			idx = int(at.Month()) - 1
		} else {
			if int(at.Month()) != month {
				continue
			}
			idx = at.Day() - 1
		}
		sums[idx].sum += b.EstimatedWaitTime
		sums[idx].count++
	}

	for i := range buckets {
		if sums[i].count > 0 {
			buckets[i].Value = int(math.Round(float64(sums[i].sum) / float64(sums[i].count)))
		}
	}
	return buckets
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WriteVisitLog writes the customer visit log as CSV: one row per
// distinct mobile among completed bookings, with the mobile rendered in
// local display form. Rows keep first-visit order.
func WriteVisitLog(w io.Writer, bookings []models.Booking) error {
	type visitor struct {
		name  string
		count int
	}
	order := make([]string, 0)
	visitors := make(map[string]*visitor)

	for _, b := range bookings {
		if b.Status != models.StatusCompleted {
			continue
		}
		v, ok := visitors[b.Mobile]
		if !ok {
			v = &visitor{}
			visitors[b.Mobile] = v
			order = append(order, b.Mobile)
		}
		v.name = b.Name
		v.count++
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Name", "Mobile", "VisitCount"}); err != nil {
		return err
	}
	for _, mobile := range order {
		v := visitors[mobile]
		record := []string{v.name, models.DisplayMobile(mobile), fmt.Sprintf("%d", v.count)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
