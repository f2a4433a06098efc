package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"tabour/internal/models"
	"tabour/internal/store"
)

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM branches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	branches := make([]models.Branch, 0)
	for rows.Next() {
		var branch models.Branch
		if err := rows.Scan(&branch); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, branch)
	}
	return branches, rows.Err()
}

func (s *Store) branch(ctx context.Context, q querier, id string) (models.Branch, error) {
	var branch models.Branch
	err := q.QueryRow(ctx, `SELECT doc FROM branches WHERE id = $1`, id).Scan(&branch)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Branch{}, store.ErrBranchNotFound
	}
	if err != nil {
		return models.Branch{}, fmt.Errorf("get branch: %w", err)
	}
	return branch, nil
}

// branchForUpdate locks the branch row so concurrent creations for the
// same branch serialize, keeping slot capacity checks exact.
func (s *Store) branchForUpdate(ctx context.Context, tx pgx.Tx, id string) (models.Branch, error) {
	var branch models.Branch
	err := tx.QueryRow(ctx, `SELECT doc FROM branches WHERE id = $1 FOR UPDATE`, id).Scan(&branch)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Branch{}, store.ErrBranchNotFound
	}
	if err != nil {
		return models.Branch{}, fmt.Errorf("lock branch: %w", err)
	}
	return branch, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (models.Branch, error) {
	return s.branch(ctx, s.pool, id)
}

func (s *Store) AddBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO branches (id, doc) VALUES ($1, $2)`, branch.ID, branch); err != nil {
		return models.Branch{}, fmt.Errorf("add branch: %w", err)
	}
	return branch, nil
}

func (s *Store) UpdateBranch(ctx context.Context, id string, branch models.Branch) (models.Branch, error) {
	branch.ID = id
	tag, err := s.pool.Exec(ctx, `UPDATE branches SET doc = $2 WHERE id = $1`, id, branch)
	if err != nil {
		return models.Branch{}, fmt.Errorf("update branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.Branch{}, store.ErrBranchNotFound
	}
	return branch, nil
}

// DeleteBranch removes the branch record only; bookings and users keep
// their branch reference.
func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM branches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBranchNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, mobile, role, branch_id FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Mobile, &u.Role, &u.BranchID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) AddUser(ctx context.Context, user models.User, password string) (models.User, error) {
	mobile, err := models.NormalizeMobile(user.Mobile)
	if err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user.Mobile = mobile
	user.PasswordHash = string(hash)
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.BranchID == "" {
		user.BranchID = models.BranchAll
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, mobile, password_hash, role, branch_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mobile) DO NOTHING`,
		user.ID, user.Name, user.Mobile, user.PasswordHash, user.Role, user.BranchID)
	if err != nil {
		return models.User{}, fmt.Errorf("add user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.User{}, store.ErrDuplicateUser
	}
	return user, nil
}

func (s *Store) Login(ctx context.Context, mobile, password string) (store.Session, error) {
	normalized, err := models.NormalizeMobile(mobile)
	if err != nil {
		return store.Session{}, store.ErrInvalidCredentials
	}

	var user models.User
	err = s.pool.QueryRow(ctx, `
		SELECT id, name, mobile, password_hash, role, branch_id FROM users WHERE mobile = $1`,
		normalized,
	).Scan(&user.ID, &user.Name, &user.Mobile, &user.PasswordHash, &user.Role, &user.BranchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Session{}, store.ErrInvalidCredentials
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("find user: %w", err)
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
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, role, branch_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		session.SessionID, session.UserID, session.Role, session.BranchID, session.ExpiresAt,
	); err != nil {
		return store.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, role, branch_id, expires_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&session.SessionID, &session.UserID, &session.Role, &session.BranchID, &session.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Session{}, store.ErrSessionNotFound
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("get session: %w", err)
	}
	if !session.ExpiresAt.After(s.clock()) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		return store.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) settings(ctx context.Context, q querier) (models.Settings, error) {
	var settings models.Settings
	err := q.QueryRow(ctx, `SELECT doc FROM settings WHERE id = 1`).Scan(&settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

func (s *Store) settingsTx(ctx context.Context, tx pgx.Tx) (models.Settings, error) {
	return s.settings(ctx, tx)
}

func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	return s.settings(ctx, s.pool)
}

func (s *Store) UpdateSettings(ctx context.Context, settings models.Settings) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO settings (id, doc) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		settings,
	); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
