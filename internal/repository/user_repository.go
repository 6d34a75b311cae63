package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/authledger/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,login,name,active,created_at,`start`,`end`,days"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.Name, &u.Active, &u.CreatedAt, &u.Start, &u.End, &u.Days)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

// Create inserts an active user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, login, name string, now time.Time) (uint64, error) {
	login = strings.TrimSpace(login)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tbl_users (login, name, active, created_at) VALUES (?,?,1,?)",
		login, name, now)
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

// GetActiveByLogin fetches an active user by login.
func (r *UserRepo) GetActiveByLogin(ctx context.Context, login string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM tbl_users WHERE login=? AND active=1 LIMIT 1",
		strings.TrimSpace(login)))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM tbl_users WHERE id=? LIMIT 1", id))
}

// SetSchedule restricts the hours and weekdays in which the user may hold
// a session.
func (r *UserRepo) SetSchedule(ctx context.Context, id uint64, start, end, days string) error {
	if err := model.ValidateSchedule(start, end, days); err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE tbl_users SET `start`=?, `end`=?, days=? WHERE id=?", start, end, days, id)
	if err != nil {
		return err
	}
	return expectRow(res, "tbl_users", id)
}
