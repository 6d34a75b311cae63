package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/authledger/internal/model"
)

// PasswordRepo persists password records. Records are appended and
// deactivated, never deleted, so the full history stays available.
type PasswordRepo struct{ DB *sql.DB }

func NewPasswordRepo(db *sql.DB) *PasswordRepo { return &PasswordRepo{DB: db} }

const passwordColumns = "id,user_id,active,created_at,expires_at,remote_addr,user_agent,password"

type scanner interface {
	Scan(dest ...any) error
}

func scanPassword(s scanner) (model.PasswordRecord, error) {
	var p model.PasswordRecord
	err := s.Scan(&p.ID, &p.UserID, &p.Active, &p.CreatedAt, &p.ExpiresAt, &p.RemoteAddr, &p.UserAgent, &p.Hash)
	return p, err
}

// Active returns the user's usable password record at now.
func (r *PasswordRepo) Active(ctx context.Context, userID uint64, now time.Time) (model.PasswordRecord, error) {
	p, err := scanPassword(r.DB.QueryRowContext(ctx,
		"SELECT "+passwordColumns+" FROM tbl_users_passwords WHERE user_id=? AND active=1 AND expires_at>? ORDER BY id DESC LIMIT 1",
		userID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// History returns every record of the user, newest first.
func (r *PasswordRepo) History(ctx context.Context, userID uint64) ([]model.PasswordRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+passwordColumns+" FROM tbl_users_passwords WHERE user_id=? ORDER BY id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PasswordRecord
	for rows.Next() {
		p, err := scanPassword(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateHash replaces the stored hash of one record, used when a legacy
// digest is upgraded after a successful login.
func (r *PasswordRepo) UpdateHash(ctx context.Context, id uint64, hash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_passwords SET password=? WHERE id=?", hash, id)
	return err
}

// DeactivateAll marks every active record of the user inactive.
func (r *PasswordRepo) DeactivateAll(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_passwords SET active=0 WHERE user_id=? AND active=1", userID)
	return err
}

// Insert stores a new active record and returns its ID.
func (r *PasswordRepo) Insert(ctx context.Context, p model.PasswordRecord) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tbl_users_passwords (user_id, active, created_at, expires_at, remote_addr, user_agent, password) VALUES (?,1,?,?,?,?,?)",
		p.UserID, p.CreatedAt, p.ExpiresAt, p.RemoteAddr, p.UserAgent, p.Hash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// ExpireStale deactivates records whose expiry has passed.
func (r *PasswordRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_passwords SET active=0 WHERE active=1 AND expires_at<=?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
