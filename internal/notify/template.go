package notify

import (
	"strconv"
	"strings"

	"tabour/internal/models"
	"tabour/internal/store"
)

// Render substitutes every recognized {token} in the template body.
// Tokens are literal strings; unknown tokens pass through untouched.
func Render(template string, values map[string]string) string {
	result := template
	for token, value := range values {
		result = strings.ReplaceAll(result, token, value)
	}
	return result
}

// QueuePosition is the 1-based rank of the booking among the branch's
// waiting waitlist entries, 0 when the booking is not in the queue.
func QueuePosition(queue []models.Booking, bookingID string) int {
	for i, b := range queue {
		if b.ID == bookingID {
			return i + 1
		}
	}
	return 0
}

func buildValues(n store.Notification) map[string]string {
	position := "-"
	if p := QueuePosition(n.Queue, n.Booking.ID); p > 0 {
		position = strconv.Itoa(p)
	}
	waitTime := "..."
	if n.Booking.EstimatedWaitTime > 0 {
		waitTime = strconv.Itoa(n.Booking.EstimatedWaitTime)
	}
	whatsappLink := ""
	if number := n.Settings.WhatsappNumber; number != "" {
		whatsappLink = "https://wa.me/" + strings.TrimPrefix(number, "+")
	}
	return map[string]string{
		"{customerName}":   n.Booking.Name,
		"{bookingId}":      n.Booking.ID,
		"{branchName}":     n.Branch.Name,
		"{restaurantName}": n.Settings.RestaurantName,
		"{queuePosition}":  position,
		"{waitTime}":       waitTime,
		"{reviewLink}":     n.Branch.ReviewURL,
		"{whatsappLink}":   whatsappLink,
	}
}
