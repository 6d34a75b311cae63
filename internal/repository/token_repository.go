package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/authledger/internal/model"
)

// TokenRepo persists bearer tokens. A token is valid while active=1 and
// expires_at is in the future; rows are only ever deactivated.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenColumns = "id,user_id,active,created_at,updated_at,expires_at,remote_addr,user_agent,token,renewal_count"

func scanToken(row *sql.Row) (model.Token, error) {
	var t model.Token
	err := row.Scan(&t.ID, &t.UserID, &t.Active, &t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt,
		&t.RemoteAddr, &t.UserAgent, &t.Token, &t.RenewalCount)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// Insert stores an active token and returns its ID.
func (r *TokenRepo) Insert(ctx context.Context, t model.Token) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tbl_users_tokens (user_id, active, created_at, updated_at, expires_at, remote_addr, user_agent, token, renewal_count) VALUES (?,1,?,?,?,?,?,?,0)",
		t.UserID, t.CreatedAt, t.CreatedAt, t.ExpiresAt, t.RemoteAddr, t.UserAgent, t.Token)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByToken looks a token up by its opaque string, whatever its state.
func (r *TokenRepo) GetByToken(ctx context.Context, token string) (model.Token, error) {
	return scanToken(r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM tbl_users_tokens WHERE token=? LIMIT 1", token))
}

// DeactivateAllForUser revokes every active token of the user.
func (r *TokenRepo) DeactivateAllForUser(ctx context.Context, userID uint64, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE user_id=? AND active=1",
		now, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeactivateByID revokes one token.
func (r *TokenRepo) DeactivateByID(ctx context.Context, id uint64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE id=? AND active=1",
		now, id)
	return err
}

// Renew extends an active token and bumps its renewal counter. The update
// only applies while renewal_count still equals seen, so two concurrent
// renewals of the same token cannot both succeed.
func (r *TokenRepo) Renew(ctx context.Context, id uint64, seen int, expires, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_tokens SET expires_at=?, updated_at=?, renewal_count=renewal_count+1 WHERE id=? AND active=1 AND renewal_count=? AND expires_at>?",
		expires, now, id, seen, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ExpireStale deactivates tokens whose expiry has passed.
func (r *TokenRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE active=1 AND expires_at<=?",
		now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeactivateOrphans revokes tokens of users left without a usable password.
func (r *TokenRepo) DeactivateOrphans(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE active=1 AND user_id NOT IN (SELECT user_id FROM tbl_users_passwords WHERE active=1 AND expires_at>?)",
		now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeactivateOutsideSchedule revokes tokens of users whose time window or
// weekday mask does not admit now. Times compare as HH:MM:SS text in UTC.
func (r *TokenRepo) DeactivateOutsideSchedule(ctx context.Context, now time.Time) (int64, error) {
	clock := now.UTC().Format("15:04:05")
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE active=1 AND user_id IN ("+
			"SELECT id FROM tbl_users WHERE `start`=`end` "+
			"OR (`start`<`end` AND (?<`start` OR ?>`end`)) "+
			"OR (`start`>`end` AND ?<`start` AND ?>`end`) "+
			"OR SUBSTR(days, ?, 1)='0')",
		now, clock, clock, clock, clock, model.ISOWeekday(now.UTC()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
