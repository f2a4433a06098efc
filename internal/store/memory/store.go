// Package memory holds the reference implementation of the booking
// store: all state lives in process memory behind a single mutex, which
// serializes every mutation against one consistent view of the
// collection. The postgres implementation mirrors the same contract for
// durable deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tabour/internal/models"
	"tabour/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	fallbackVisitMinutes = 45
	servingPlaceholder   = "---"
)

type Store struct {
	mu        sync.Mutex
	clock     func() time.Time
	notifier  store.Notifier
	publisher store.Publisher

	bookings []*models.Booking
	branches []*models.Branch
	users    []*models.User
	settings models.Settings
	serving  map[string]string
	sessions map[string]store.Session

	sessionTTL     time.Duration
	waitlistSeq    int64
	appointmentSeq int64
}

type Options struct {
	Notifier   store.Notifier
	Publisher  store.Publisher
	Clock      func() time.Time
	SessionTTL time.Duration
}

func New(options Options) *Store {
	clock := options.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Store{
		clock:      clock,
		notifier:   options.Notifier,
		publisher:  options.Publisher,
		settings:   models.DefaultSettings(),
		serving:    make(map[string]string),
		sessions:   make(map[string]store.Session),
		sessionTTL: ttl,
	}
}

func (s *Store) CreateBooking(ctx context.Context, input store.CreateBookingInput) (models.Booking, bool, error) {
	mobile, err := models.NormalizeMobile(input.Mobile)
	if err != nil {
		return models.Booking{}, false, err
	}
	policy, ok := store.PolicyFor(input.BookingType)
	if !ok {
		return models.Booking{}, false, store.ErrInvalidState
	}

	s.mu.Lock()

	if !s.settings.CustomerUI.BookingEnabled {
		s.mu.Unlock()
		return models.Booking{}, false, store.ErrBookingDisabled
	}
	if max := s.settings.CustomerUI.MaxGuests; max > 0 && input.Guests > max {
		s.mu.Unlock()
		return models.Booking{}, false, store.ErrTooManyGuests
	}

	branch := s.branchByID(input.BranchID)
	if branch == nil {
		s.mu.Unlock()
		return models.Booking{}, false, store.ErrBranchNotFound
	}

	if input.BookingType == models.TypeWaitlist && !branch.IsWaitlistEnabled {
		s.mu.Unlock()
		return models.Booking{}, false, store.ErrWaitlistClosed
	}

	// The duplicate check runs before availability checks: a customer who
	// already holds an active booking gets it back even when the slot has
	// since filled up.
	if existing := s.findDuplicate(input.BookingType, mobile, input.AppointmentDate); existing != nil {
		duplicate := *existing
		s.mu.Unlock()
		return duplicate, false, nil
	}

	if policy.RequiresSchedule {
		if err := s.validateAppointment(*branch, input); err != nil {
			s.mu.Unlock()
			return models.Booking{}, false, err
		}
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}

	var seq int64
	if input.BookingType == models.TypeWaitlist {
		s.waitlistSeq++
		seq = s.waitlistSeq
	} else {
		s.appointmentSeq++
		seq = s.appointmentSeq
	}

	booking := &models.Booking{
		ID:                    policy.FormatID(seq),
		BranchID:              input.BranchID,
		BookingType:           input.BookingType,
		Name:                  input.Name,
		Mobile:                mobile,
		Guests:                input.Guests,
		SeatingArea:           input.SeatingArea,
		AgreedToNotifications: input.AgreedToNotifications,
		AppointmentDate:       input.AppointmentDate,
		AppointmentTime:       input.AppointmentTime,
		Status:                policy.InitialStatus,
		CreatedAt:             createdAt,
	}
	s.bookings = append(s.bookings, booking)

	notification := s.notificationLocked(*booking, models.TemplateBookingConfirmation, "")
	s.mu.Unlock()

	s.dispatch(ctx, notification)
	return *booking, true, nil
}

func (s *Store) validateAppointment(branch models.Branch, input store.CreateBookingInput) error {
	if !branch.IsAppointmentEnabled {
		return store.ErrAppointmentsClosed
	}
	if input.AppointmentDate == "" || input.AppointmentTime == "" {
		return store.ErrAppointmentDetails
	}
	date, err := time.Parse("2006-01-02", input.AppointmentDate)
	if err != nil {
		return store.ErrAppointmentDetails
	}
	if !branch.DayAvailable(int(date.Weekday())) {
		return store.ErrDayUnavailable
	}
	slot, ok := branch.Slot(input.AppointmentTime)
	if !ok {
		return store.ErrSlotUnavailable
	}
	booked := 0
	for _, b := range s.bookings {
		if b.BranchID == branch.ID && b.BookingType == models.TypeAppointment &&
			b.Status == models.StatusConfirmed &&
			b.AppointmentDate == input.AppointmentDate && b.AppointmentTime == input.AppointmentTime {
			booked++
		}
	}
	if booked >= slot.Capacity {
		return store.ErrSlotFull
	}
	return nil
}

// findDuplicate enforces the active-booking invariant: one active
// waitlist entry per mobile, one confirmed appointment per mobile per
// calendar day.
func (s *Store) findDuplicate(bookingType, mobile, appointmentDate string) *models.Booking {
	for _, b := range s.bookings {
		if b.Mobile != mobile || b.BookingType != bookingType {
			continue
		}
		if bookingType == models.TypeWaitlist && b.IsActive() {
			return b
		}
		if bookingType == models.TypeAppointment && b.Status == models.StatusConfirmed && b.AppointmentDate == appointmentDate {
			return b
		}
	}
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookingByID(id)
	if b == nil {
		return models.Booking{}, store.ErrBookingNotFound
	}
	return *b, nil
}

func (s *Store) UpdateBooking(ctx context.Context, id string, upd store.BookingUpdate) (models.Booking, error) {
	s.mu.Lock()
	b := s.bookingByID(id)
	if b == nil {
		s.mu.Unlock()
		return models.Booking{}, store.ErrBookingNotFound
	}

	transition, err := store.ApplyUpdate(*b, upd, s.clock())
	if err != nil {
		s.mu.Unlock()
		return models.Booking{}, err
	}
	*b = transition.Booking

	var servingBranch, servingID string
	if transition.MarkServing {
		s.serving[b.BranchID] = b.ID
		servingBranch, servingID = b.BranchID, b.ID
	}

	notifications := s.effectsLocked(*b, transition)
	updated := *b
	s.mu.Unlock()

	if servingID != "" && s.publisher != nil {
		s.publisher.PublishServing(servingBranch, servingID)
	}
	s.dispatch(ctx, notifications...)
	return updated, nil
}

// effectsLocked resolves a committed transition into the notifications to
// send: the transition's own notification plus, when the branch queue
// changed, at most one turn reminder for the booking now sitting at the
// configured position.
func (s *Store) effectsLocked(booking models.Booking, transition store.Transition) []store.Notification {
	var notifications []store.Notification
	if transition.Notify != "" {
		notifications = append(notifications, s.notificationLocked(booking, transition.Notify, ""))
	}
	if transition.CheckReminders {
		if reminder, ok := s.reminderLocked(booking.BranchID); ok {
			notifications = append(notifications, reminder)
		}
	}
	return notifications
}

func (s *Store) reminderLocked(branchID string) (store.Notification, bool) {
	position := s.settings.Notifications.RemindWhenQueuePositionIs
	if position < 1 {
		return store.Notification{}, false
	}
	queue := s.queueLocked(branchID)
	if len(queue) < position {
		return store.Notification{}, false
	}
	target := s.bookingByID(queue[position-1].ID)
	if target == nil || target.ReminderSent {
		return store.Notification{}, false
	}
	target.ReminderSent = true
	return s.notificationLocked(*target, models.TemplateTurnReminder, ""), true
}

func (s *Store) AutoDepart(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	now := s.clock()
	var notifications []store.Notification
	departed := 0
	for _, b := range s.bookings {
		if b.Status != models.StatusSeated || b.SeatedAt == nil {
			continue
		}
		if now.Sub(*b.SeatedAt) <= threshold {
			continue
		}
		transition, err := store.ApplyUpdate(*b, store.BookingUpdate{Status: models.StatusCompleted}, now)
		if err != nil {
			continue
		}
		*b = transition.Booking
		notifications = append(notifications, s.effectsLocked(*b, transition)...)
		departed++
	}
	s.mu.Unlock()

	s.dispatch(ctx, notifications...)
	return departed, nil
}

func (s *Store) FindActiveBookingByMobile(ctx context.Context, mobile string) (models.Booking, bool, error) {
	normalized, err := models.NormalizeMobile(mobile)
	if err != nil {
		return models.Booking{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.Mobile == normalized && b.IsActive() {
			return *b, true, nil
		}
	}
	return models.Booking{}, false, nil
}

func (s *Store) ListBookings(ctx context.Context, branchID string) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bookings []models.Booking
	for _, b := range s.bookings {
		if branchID != "" && branchID != models.BranchAll && b.BranchID != branchID {
			continue
		}
		bookings = append(bookings, *b)
	}
	return bookings, nil
}

func (s *Store) ListQueue(ctx context.Context, branchID string) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueLocked(branchID), nil
}

func (s *Store) queueLocked(branchID string) []models.Booking {
	var queue []models.Booking
	for _, b := range s.bookings {
		if b.BranchID == branchID && b.BookingType == models.TypeWaitlist && b.Status == models.StatusWaiting {
			queue = append(queue, *b)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].CreatedAt.Before(queue[j].CreatedAt)
	})
	return queue
}

func (s *Store) CurrentlyServing(ctx context.Context, branchID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.serving[branchID]; ok && id != "" {
		return id, nil
	}
	return servingPlaceholder, nil
}

func (s *Store) SetEstimatedWaitTime(ctx context.Context, id string, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookingByID(id)
	if b == nil {
		return store.ErrBookingNotFound
	}
	b.EstimatedWaitTime = minutes
	return nil
}

func (s *Store) AverageVisitDuration(ctx context.Context, branchID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, count := 0, 0
	for _, b := range s.bookings {
		if b.BranchID == branchID && b.Status == models.StatusCompleted && b.VisitDurationMinutes > 0 {
			total += b.VisitDurationMinutes
			count++
		}
	}
	if count == 0 {
		return fallbackVisitMinutes, nil
	}
	return float64(total) / float64(count), nil
}

func (s *Store) NotifyDirect(ctx context.Context, bookingID, message string) error {
	s.mu.Lock()
	b := s.bookingByID(bookingID)
	if b == nil {
		s.mu.Unlock()
		return store.ErrBookingNotFound
	}
	notification := s.notificationLocked(*b, models.TemplateCustomerCall, message)
	s.mu.Unlock()

	s.dispatch(ctx, notification)
	return nil
}

func (s *Store) notificationLocked(booking models.Booking, template, override string) store.Notification {
	notification := store.Notification{
		Booking:  booking,
		Template: template,
		Queue:    s.queueLocked(booking.BranchID),
		Settings: s.settings,
		Override: override,
	}
	if branch := s.branchByID(booking.BranchID); branch != nil {
		notification.Branch = *branch
	}
	return notification
}

// dispatch runs after the mutex is released: the transition is already
// committed, so nothing the notifier does can block or unwind it.
func (s *Store) dispatch(ctx context.Context, notifications ...store.Notification) {
	if s.notifier == nil {
		return
	}
	for _, n := range notifications {
		s.notifier.Notify(context.WithoutCancel(ctx), n)
	}
}

func (s *Store) bookingByID(id string) *models.Booking {
	for _, b := range s.bookings {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (s *Store) branchByID(id string) *models.Branch {
	for _, b := range s.branches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	branches := make([]models.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, *b)
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.branchByID(id)
	if b == nil {
		return models.Branch{}, store.ErrBranchNotFound
	}
	return *b, nil
}

func (s *Store) AddBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	stored := branch
	s.branches = append(s.branches, &stored)
	return stored, nil
}

func (s *Store) UpdateBranch(ctx context.Context, id string, branch models.Branch) (models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.branchByID(id)
	if existing == nil {
		return models.Branch{}, store.ErrBranchNotFound
	}
	branch.ID = id
	*existing = branch
	return branch, nil
}

// DeleteBranch removes the branch record only. Bookings and users keep
// their branch reference; cascading cleanup is the operator's problem.
func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.branches {
		if b.ID == id {
			s.branches = append(s.branches[:i], s.branches[i+1:]...)
			return nil
		}
	}
	return store.ErrBranchNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	return users, nil
}

func (s *Store) AddUser(ctx context.Context, user models.User, password string) (models.User, error) {
	mobile, err := models.NormalizeMobile(user.Mobile)
	if err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Mobile == mobile {
			return models.User{}, store.ErrDuplicateUser
		}
	}
	user.Mobile = mobile
	user.PasswordHash = string(hash)
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.BranchID == "" {
		user.BranchID = models.BranchAll
	}
	stored := user
	s.users = append(s.users, &stored)
	return stored, nil
}

func (s *Store) Login(ctx context.Context, mobile, password string) (store.Session, error) {
	normalized, err := models.NormalizeMobile(mobile)
	if err != nil {
		return store.Session{}, store.ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var user *models.User
	for _, u := range s.users {
		if u.Mobile == normalized {
			user = u
			break
		}
	}
	if user == nil {
		return store.Session{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.Session{}, store.ErrInvalidCredentials
	}

	session := store.Session{
		SessionID: uuid.NewString(),
		UserID:    user.ID,
		Role:      user.Role,
		BranchID:  user.BranchID,
		ExpiresAt: s.clock().Add(s.sessionTTL),
	}
	s.sessions[session.SessionID] = session
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return store.Session{}, store.ErrSessionNotFound
	}
	if !session.ExpiresAt.After(s.clock()) {
		delete(s.sessions, sessionID)
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}
