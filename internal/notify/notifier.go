package notify

import (
	"context"
	"log"

	"tabour/internal/models"
	"tabour/internal/store"
)

// SMSSender delivers one rendered SMS. Returns false when delivery could
// not be confirmed; the dispatcher logs and moves on.
type SMSSender interface {
	Send(ctx context.Context, cfg models.MsegatConfig, mobile, message string) bool
}

// WhatsAppSender delivers one rendered WhatsApp message.
type WhatsAppSender interface {
	Send(ctx context.Context, cfg models.KarzounConfig, mobile, message string) bool
}

// Dispatcher fans a committed notification out to every enabled channel.
// It implements store.Notifier and never reports failure to the caller.
type Dispatcher struct {
	SMS      SMSSender
	WhatsApp WhatsAppSender
}

func NewDispatcher(sms SMSSender, whatsapp WhatsAppSender) *Dispatcher {
	return &Dispatcher{SMS: sms, WhatsApp: whatsapp}
}

func (d *Dispatcher) Notify(ctx context.Context, n store.Notification) {
	msegat := n.Settings.Notifications.Msegat
	karzoun := n.Settings.Notifications.Karzoun
	if !msegat.Enabled && !karzoun.Enabled {
		return
	}
	if !n.Booking.AgreedToNotifications {
		return
	}
	if n.Branch.ID == "" {
		log.Printf("msg=\"notification dropped, branch unknown\" booking_id=%s", n.Booking.ID)
		return
	}

	values := buildValues(n)

	if msegat.Enabled && d.SMS != nil {
		body := n.Override
		if body == "" {
			body = msegat.Templates[n.Template]
		}
		if body != "" {
			if !d.SMS.Send(ctx, msegat, n.Booking.Mobile, Render(body, values)) {
				log.Printf("msg=\"sms delivery failed\" booking_id=%s template=%s", n.Booking.ID, n.Template)
			}
		}
	}

	if karzoun.Enabled && d.WhatsApp != nil {
		body := n.Override
		if body == "" {
			body = karzoun.Templates[n.Template]
		}
		if body != "" {
			if !d.WhatsApp.Send(ctx, karzoun, n.Booking.Mobile, Render(body, values)) {
				log.Printf("msg=\"whatsapp delivery failed\" booking_id=%s template=%s", n.Booking.ID, n.Template)
			}
		}
	}
}
