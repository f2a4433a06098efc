package models

type CustomerUISettings struct {
	WelcomeMessage  string `json:"welcome_message"`
	MaxGuests       int    `json:"max_guests"`
	BookingEnabled  bool   `json:"booking_enabled"`
	ShowSeatingArea bool   `json:"show_seating_area"`
}

// Templates maps a template key (TemplateBookingConfirmation, ...) to the
// message body configured for one channel.
type Templates map[string]string

type MsegatConfig struct {
	Enabled    bool      `json:"enabled"`
	UserName   string    `json:"user_name"`
	APIKey     string    `json:"api_key"`
	UserSender string    `json:"user_sender"`
	Templates  Templates `json:"templates"`
}

type KarzounConfig struct {
	Enabled   bool      `json:"enabled"`
	AppKey    string    `json:"app_key"`
	AuthKey   string    `json:"auth_key"`
	Templates Templates `json:"templates"`
}

type NotificationSettings struct {
	Msegat                    MsegatConfig  `json:"msegat"`
	Karzoun                   KarzounConfig `json:"karzoun"`
	RemindWhenQueuePositionIs int           `json:"remind_when_queue_position_is"`
}

type Settings struct {
	RestaurantName string               `json:"restaurant_name"`
	LogoURL        string               `json:"logo_url,omitempty"`
	WhatsappNumber string               `json:"whatsapp_number"`
	CustomerUI     CustomerUISettings   `json:"customer_ui"`
	Notifications  NotificationSettings `json:"notifications"`
}

func defaultTemplates() Templates {
	return Templates{
		TemplateBookingConfirmation: "عميلنا {customerName}، تم تأكيد حجزك رقم {bookingId} في {branchName}. شكراً لاختيارك {restaurantName}.",
		TemplateTurnReminder:        "عميلنا {customerName}، اقترب دورك! رقم حجزك هو {bookingId} وأمامك الآن شخص واحد فقط في قائمة الانتظار في {branchName}.",
		TemplateBookingSeated:       "أهلاً بك {customerName}! سعداء بخدمتك في {branchName}.",
		TemplateBookingCancelled:    "عميلنا {customerName}، نأسف لإبلاغك بأنه تم إلغاء حجزك رقم {bookingId} في {branchName}.",
		TemplateCustomerCall:        "عميلنا العزيز {customerName}، نرجو التوجه إلى موظف الاستقبال الآن. نحن في انتظارك في {branchName}.",
		TemplatePostVisitFeedback:   "شكراً لزيارتكم {restaurantName}! يسعدنا تقييمكم لنا على الرابط: {reviewLink} لأي ملاحظات، يمكنكم التواصل معنا مباشرة: {whatsappLink}",
	}
}

// DefaultSettings seeds a fresh deployment. Channel credentials stay empty
// and disabled until the operator fills them in.
func DefaultSettings() Settings {
	return Settings{
		RestaurantName: "مطعمي",
		WhatsappNumber: "+966500000000",
		CustomerUI: CustomerUISettings{
			WelcomeMessage:  "أهلاً بك في مطعمي",
			MaxGuests:       10,
			BookingEnabled:  true,
			ShowSeatingArea: true,
		},
		Notifications: NotificationSettings{
			Msegat:                    MsegatConfig{Templates: defaultTemplates()},
			Karzoun:                   KarzounConfig{Templates: defaultTemplates()},
			RemindWhenQueuePositionIs: 2,
		},
	}
}
