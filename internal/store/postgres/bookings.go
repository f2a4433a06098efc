package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tabour/internal/models"
	"tabour/internal/store"
)

func (s *Store) CreateBooking(ctx context.Context, input store.CreateBookingInput) (models.Booking, bool, error) {
	mobile, err := models.NormalizeMobile(input.Mobile)
	if err != nil {
		return models.Booking{}, false, err
	}
	policy, ok := store.PolicyFor(input.BookingType)
	if !ok {
		return models.Booking{}, false, store.ErrInvalidState
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Booking{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize duplicate checks per mobile; concurrent creations for the
	// same number must not both pass.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, mobile); err != nil {
		return models.Booking{}, false, fmt.Errorf("lock mobile: %w", err)
	}

	settings, err := s.settingsTx(ctx, tx)
	if err != nil {
		return models.Booking{}, false, err
	}
	if !settings.CustomerUI.BookingEnabled {
		return models.Booking{}, false, store.ErrBookingDisabled
	}
	if max := settings.CustomerUI.MaxGuests; max > 0 && input.Guests > max {
		return models.Booking{}, false, store.ErrTooManyGuests
	}

	branch, err := s.branchForUpdate(ctx, tx, input.BranchID)
	if err != nil {
		return models.Booking{}, false, err
	}
	if input.BookingType == models.TypeWaitlist && !branch.IsWaitlistEnabled {
		return models.Booking{}, false, store.ErrWaitlistClosed
	}

	// The duplicate check runs before availability checks: a customer who
	// already holds an active booking gets it back even when the slot has
	// since filled up.
	existing, found, err := s.findDuplicate(ctx, tx, input.BookingType, mobile, input.AppointmentDate)
	if err != nil {
		return models.Booking{}, false, err
	}
	if found {
		if err := tx.Commit(ctx); err != nil {
			return models.Booking{}, false, fmt.Errorf("commit: %w", err)
		}
		return existing, false, nil
	}

	if policy.RequiresSchedule {
		if err := s.validateAppointment(ctx, tx, branch, input); err != nil {
			return models.Booking{}, false, err
		}
	}

	seq, err := s.nextSequence(ctx, tx, input.BookingType)
	if err != nil {
		return models.Booking{}, false, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	booking := models.Booking{
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

	if _, err := tx.Exec(ctx, `
		INSERT INTO bookings (
			id, branch_id, booking_type, name, mobile, guests, seating_area,
			agreed_to_notifications, appointment_date, appointment_time, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		booking.ID, booking.BranchID, booking.BookingType, booking.Name, booking.Mobile,
		booking.Guests, booking.SeatingArea, booking.AgreedToNotifications,
		booking.AppointmentDate, booking.AppointmentTime, booking.Status, booking.CreatedAt,
	); err != nil {
		return models.Booking{}, false, fmt.Errorf("insert booking: %w", err)
	}

	notification, err := s.notificationTx(ctx, tx, booking, models.TemplateBookingConfirmation, "")
	if err != nil {
		return models.Booking{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Booking{}, false, fmt.Errorf("commit: %w", err)
	}

	s.dispatch(ctx, notification)
	return booking, true, nil
}

func (s *Store) validateAppointment(ctx context.Context, tx pgx.Tx, branch models.Branch, input store.CreateBookingInput) error {
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

	var booked int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE branch_id = $1 AND booking_type = $2 AND status = $3
		  AND appointment_date = $4 AND appointment_time = $5`,
		branch.ID, models.TypeAppointment, models.StatusConfirmed,
		input.AppointmentDate, input.AppointmentTime,
	).Scan(&booked)
	if err != nil {
		return fmt.Errorf("count slot bookings: %w", err)
	}
	if booked >= slot.Capacity {
		return store.ErrSlotFull
	}
	return nil
}

func (s *Store) findDuplicate(ctx context.Context, tx pgx.Tx, bookingType, mobile, appointmentDate string) (models.Booking, bool, error) {
	var row pgx.Row
	if bookingType == models.TypeWaitlist {
		row = tx.QueryRow(ctx, `
			SELECT `+bookingColumns+` FROM bookings
			WHERE mobile = $1 AND booking_type = $2 AND status IN ($3, $4, $5)
			ORDER BY created_at LIMIT 1`,
			mobile, bookingType,
			models.StatusWaiting, models.StatusConfirmed, models.StatusSeated)
	} else {
		row = tx.QueryRow(ctx, `
			SELECT `+bookingColumns+` FROM bookings
			WHERE mobile = $1 AND booking_type = $2 AND status = $3 AND appointment_date = $4
			ORDER BY created_at LIMIT 1`,
			mobile, bookingType, models.StatusConfirmed, appointmentDate)
	}
	booking, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Booking{}, false, nil
	}
	if err != nil {
		return models.Booking{}, false, fmt.Errorf("find duplicate: %w", err)
	}
	return booking, true, nil
}

func (s *Store) nextSequence(ctx context.Context, tx pgx.Tx, bookingType string) (int64, error) {
	var value int64
	err := tx.QueryRow(ctx, `
		INSERT INTO booking_sequences (booking_type, value) VALUES ($1, 1)
		ON CONFLICT (booking_type) DO UPDATE SET value = booking_sequences.value + 1
		RETURNING value`, bookingType,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return value, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	booking, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Booking{}, store.ErrBookingNotFound
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return booking, nil
}

func (s *Store) UpdateBooking(ctx context.Context, id string, upd store.BookingUpdate) (models.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Booking{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	prior, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Booking{}, store.ErrBookingNotFound
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("lock booking: %w", err)
	}

	transition, err := store.ApplyUpdate(prior, upd, s.clock())
	if err != nil {
		return models.Booking{}, err
	}
	booking := transition.Booking
	if err := s.writeBooking(ctx, tx, booking); err != nil {
		return models.Booking{}, err
	}

	var servingBranch, servingID string
	if transition.MarkServing {
		if _, err := tx.Exec(ctx, `
			INSERT INTO serving_markers (branch_id, booking_id) VALUES ($1, $2)
			ON CONFLICT (branch_id) DO UPDATE SET booking_id = EXCLUDED.booking_id`,
			booking.BranchID, booking.ID,
		); err != nil {
			return models.Booking{}, fmt.Errorf("mark serving: %w", err)
		}
		servingBranch, servingID = booking.BranchID, booking.ID
	}

	notifications, err := s.effectsTx(ctx, tx, booking, transition)
	if err != nil {
		return models.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Booking{}, fmt.Errorf("commit: %w", err)
	}

	if servingID != "" && s.publisher != nil {
		s.publisher.PublishServing(servingBranch, servingID)
	}
	s.dispatch(ctx, notifications...)
	return booking, nil
}

func (s *Store) writeBooking(ctx context.Context, tx pgx.Tx, b models.Booking) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings SET
			name = $2, guests = $3, seating_area = $4,
			appointment_date = $5, appointment_time = $6, status = $7,
			seated_at = $8, completed_at = $9, visit_duration_minutes = $10,
			estimated_wait_time = $11, reminder_sent = $12
		WHERE id = $1`,
		b.ID, b.Name, b.Guests, b.SeatingArea,
		b.AppointmentDate, b.AppointmentTime, b.Status,
		b.SeatedAt, b.CompletedAt, b.VisitDurationMinutes,
		b.EstimatedWaitTime, b.ReminderSent,
	)
	if err != nil {
		return fmt.Errorf("write booking: %w", err)
	}
	return nil
}

func (s *Store) effectsTx(ctx context.Context, tx pgx.Tx, booking models.Booking, transition store.Transition) ([]store.Notification, error) {
	var notifications []store.Notification
	if transition.Notify != "" {
		n, err := s.notificationTx(ctx, tx, booking, transition.Notify, "")
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if transition.CheckReminders {
		reminder, ok, err := s.reminderTx(ctx, tx, booking.BranchID)
		if err != nil {
			return nil, err
		}
		if ok {
			notifications = append(notifications, reminder)
		}
	}
	return notifications, nil
}

// reminderTx marks the booking at the configured queue position as
// reminded. The conditional UPDATE makes the reminder idempotent even
// when two transitions race on the same branch.
func (s *Store) reminderTx(ctx context.Context, tx pgx.Tx, branchID string) (store.Notification, bool, error) {
	settings, err := s.settingsTx(ctx, tx)
	if err != nil {
		return store.Notification{}, false, err
	}
	position := settings.Notifications.RemindWhenQueuePositionIs
	if position < 1 {
		return store.Notification{}, false, nil
	}
	queue, err := s.queueTx(ctx, tx, branchID)
	if err != nil {
		return store.Notification{}, false, err
	}
	if len(queue) < position {
		return store.Notification{}, false, nil
	}
	target := queue[position-1]

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET reminder_sent = TRUE
		WHERE id = $1 AND reminder_sent = FALSE`, target.ID)
	if err != nil {
		return store.Notification{}, false, fmt.Errorf("mark reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.Notification{}, false, nil
	}
	target.ReminderSent = true

	n, err := s.notificationTx(ctx, tx, target, models.TemplateTurnReminder, "")
	if err != nil {
		return store.Notification{}, false, err
	}
	return n, true, nil
}

func (s *Store) AutoDepart(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.clock()
	cutoff := now.Add(-threshold)
	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = $1 AND seated_at IS NOT NULL AND seated_at < $2
		FOR UPDATE SKIP LOCKED`,
		models.StatusSeated, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan overdue seats: %w", err)
	}
	overdue, err := collectBookings(rows)
	if err != nil {
		return 0, fmt.Errorf("scan overdue seats: %w", err)
	}

	var notifications []store.Notification
	departed := 0
	for _, prior := range overdue {
		transition, err := store.ApplyUpdate(prior, store.BookingUpdate{Status: models.StatusCompleted}, now)
		if err != nil {
			continue
		}
		booking := transition.Booking
		if err := s.writeBooking(ctx, tx, booking); err != nil {
			return 0, err
		}
		effects, err := s.effectsTx(ctx, tx, booking, transition)
		if err != nil {
			return 0, err
		}
		notifications = append(notifications, effects...)
		departed++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.dispatch(ctx, notifications...)
	return departed, nil
}

func (s *Store) FindActiveBookingByMobile(ctx context.Context, mobile string) (models.Booking, bool, error) {
	normalized, err := models.NormalizeMobile(mobile)
	if err != nil {
		return models.Booking{}, false, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE mobile = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at LIMIT 1`,
		normalized, models.StatusWaiting, models.StatusConfirmed, models.StatusSeated)
	booking, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Booking{}, false, nil
	}
	if err != nil {
		return models.Booking{}, false, fmt.Errorf("find active booking: %w", err)
	}
	return booking, true, nil
}

func (s *Store) ListBookings(ctx context.Context, branchID string) ([]models.Booking, error) {
	var rows pgx.Rows
	var err error
	if branchID == "" || branchID == models.BranchAll {
		rows, err = s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at`)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE branch_id = $1 ORDER BY created_at`, branchID)
	}
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows)
}

func (s *Store) ListQueue(ctx context.Context, branchID string) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, queueSQL, branchID, models.TypeWaitlist, models.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return collectBookings(rows)
}

const queueSQL = `
	SELECT ` + bookingColumns + ` FROM bookings
	WHERE branch_id = $1 AND booking_type = $2 AND status = $3
	ORDER BY created_at`

func (s *Store) queueTx(ctx context.Context, tx pgx.Tx, branchID string) ([]models.Booking, error) {
	rows, err := tx.Query(ctx, queueSQL, branchID, models.TypeWaitlist, models.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return collectBookings(rows)
}

func (s *Store) CurrentlyServing(ctx context.Context, branchID string) (string, error) {
	var bookingID string
	err := s.pool.QueryRow(ctx, `SELECT booking_id FROM serving_markers WHERE branch_id = $1`, branchID).Scan(&bookingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return servingPlaceholder, nil
	}
	if err != nil {
		return "", fmt.Errorf("currently serving: %w", err)
	}
	if bookingID == "" {
		return servingPlaceholder, nil
	}
	return bookingID, nil
}

func (s *Store) SetEstimatedWaitTime(ctx context.Context, id string, minutes int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bookings SET estimated_wait_time = $2 WHERE id = $1`, id, minutes)
	if err != nil {
		return fmt.Errorf("set estimated wait: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBookingNotFound
	}
	return nil
}

func (s *Store) AverageVisitDuration(ctx context.Context, branchID string) (float64, error) {
	var avg float64
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(visit_duration_minutes), 0), COUNT(*)
		FROM bookings
		WHERE branch_id = $1 AND status = $2 AND visit_duration_minutes > 0`,
		branchID, models.StatusCompleted,
	).Scan(&avg, &count)
	if err != nil {
		return 0, fmt.Errorf("average visit duration: %w", err)
	}
	if count == 0 {
		return fallbackVisitMinutes, nil
	}
	return avg, nil
}

func (s *Store) NotifyDirect(ctx context.Context, bookingID, message string) error {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	n, err := s.notification(ctx, s.pool, booking, models.TemplateCustomerCall, message)
	if err != nil {
		return err
	}
	s.dispatch(ctx, n)
	return nil
}

func (s *Store) notificationTx(ctx context.Context, tx pgx.Tx, booking models.Booking, template, override string) (store.Notification, error) {
	return s.notification(ctx, tx, booking, template, override)
}

func (s *Store) notification(ctx context.Context, q querier, booking models.Booking, template, override string) (store.Notification, error) {
	rows, err := q.Query(ctx, queueSQL, booking.BranchID, models.TypeWaitlist, models.StatusWaiting)
	if err != nil {
		return store.Notification{}, fmt.Errorf("queue snapshot: %w", err)
	}
	queue, err := collectBookings(rows)
	if err != nil {
		return store.Notification{}, fmt.Errorf("queue snapshot: %w", err)
	}
	settings, err := s.settings(ctx, q)
	if err != nil {
		return store.Notification{}, err
	}

	n := store.Notification{
		Booking:  booking,
		Template: template,
		Queue:    queue,
		Settings: settings,
		Override: override,
	}
	branch, err := s.branch(ctx, q, booking.BranchID)
	if err == nil {
		n.Branch = branch
	} else if !errors.Is(err, store.ErrBranchNotFound) {
		return store.Notification{}, err
	}
	return n, nil
}
