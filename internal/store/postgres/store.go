// Package postgres is the durable implementation of the booking store.
// Serialization relies on row locks instead of a process mutex: every
// mutation runs in a transaction that locks the rows it reads before
// deciding, so two writers cannot both pass the duplicate or reminder
// checks.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tabour/internal/models"
	"tabour/internal/store"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	fallbackVisitMinutes = 45
	servingPlaceholder   = "---"
)

type Store struct {
	pool      *pgxpool.Pool
	clock     func() time.Time
	notifier  store.Notifier
	publisher store.Publisher

	sessionTTL time.Duration
}

type Options struct {
	Notifier   store.Notifier
	Publisher  store.Publisher
	Clock      func() time.Time
	SessionTTL time.Duration
}

func New(ctx context.Context, dsn string, options Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	clock := options.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	s := &Store{
		pool:       pool,
		clock:      clock,
		notifier:   options.Notifier,
		publisher:  options.Publisher,
		sessionTTL: ttl,
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			branch_id TEXT NOT NULL,
			booking_type TEXT NOT NULL,
			name TEXT NOT NULL,
			mobile TEXT NOT NULL,
			guests INT NOT NULL,
			seating_area TEXT NOT NULL DEFAULT '',
			agreed_to_notifications BOOLEAN NOT NULL DEFAULT FALSE,
			appointment_date TEXT NOT NULL DEFAULT '',
			appointment_time TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			seated_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			visit_duration_minutes INT NOT NULL DEFAULT 0,
			estimated_wait_time INT NOT NULL DEFAULT 0,
			reminder_sent BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_branch_status ON bookings (branch_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_mobile ON bookings (mobile)`,
		`CREATE TABLE IF NOT EXISTS booking_sequences (
			booking_type TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS serving_markers (
			branch_id TEXT PRIMARY KEY,
			booking_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS branches (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			mobile TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			branch_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INT PRIMARY KEY,
			doc JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			branch_id TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const bookingColumns = `id, branch_id, booking_type, name, mobile, guests, seating_area,
	agreed_to_notifications, appointment_date, appointment_time, status, created_at,
	seated_at, completed_at, visit_duration_minutes, estimated_wait_time, reminder_sent`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.BranchID, &b.BookingType, &b.Name, &b.Mobile, &b.Guests, &b.SeatingArea,
		&b.AgreedToNotifications, &b.AppointmentDate, &b.AppointmentTime, &b.Status, &b.CreatedAt,
		&b.SeatedAt, &b.CompletedAt, &b.VisitDurationMinutes, &b.EstimatedWaitTime, &b.ReminderSent,
	)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// querier lets the same helpers run against the pool or a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) dispatch(ctx context.Context, notifications ...store.Notification) {
	if s.notifier == nil {
		return
	}
	for _, n := range notifications {
		s.notifier.Notify(context.WithoutCancel(ctx), n)
	}
}
