package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/authledger/internal/model"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func setupMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestUserCreate(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tbl_users (login, name, active, created_at) VALUES (?,?,1,?)")).
		WithArgs("admin", "Admin", testNow).
		WillReturnResult(sqlmock.NewResult(3, 1))

	id, err := NewUserRepo(db).Create(context.Background(), " admin ", "Admin", testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)
}

func TestUserCreateDuplicate(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectExec("INSERT INTO tbl_users").
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 'admin'"))

	_, err := NewUserRepo(db).Create(context.Background(), "admin", "", testNow)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestUserGetActiveByLogin(t *testing.T) {
	db, mock := setupMock(t)
	q := regexp.QuoteMeta("SELECT id,login,name,active,created_at,`start`,`end`,days FROM tbl_users WHERE login=? AND active=1 LIMIT 1")
	mock.ExpectQuery(q).WithArgs("admin").
		WillReturnRows(sqlmock.NewRows([]string{"id", "login", "name", "active", "created_at", "start", "end", "days"}).
			AddRow(1, "admin", "Admin", true, testNow, []byte("08:00:00"), []byte("18:00:00"), "1111100"))
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewUserRepo(db)
	u, err := repo.GetActiveByLogin(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, model.User{ID: 1, Login: "admin", Name: "Admin", Active: true, CreatedAt: testNow,
		Start: "08:00:00", End: "18:00:00", Days: "1111100"}, u)

	_, err = repo.GetActiveByLogin(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUserSetSchedule(t *testing.T) {
	db, mock := setupMock(t)
	q := regexp.QuoteMeta("UPDATE tbl_users SET `start`=?, `end`=?, days=? WHERE id=?")
	mock.ExpectExec(q).WithArgs("08:00:00", "18:00:00", "1111100", 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("08:00:00", "18:00:00", "1111100", 9).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewUserRepo(db)
	ctx := context.Background()
	require.NoError(t, repo.SetSchedule(ctx, 3, "08:00:00", "18:00:00", "1111100"))
	assert.True(t, errors.Is(repo.SetSchedule(ctx, 9, "08:00:00", "18:00:00", "1111100"), ErrNotFound))
	// malformed schedules never reach the database
	assert.Error(t, repo.SetSchedule(ctx, 3, "8am", "18:00:00", "1111100"))
	assert.Error(t, repo.SetSchedule(ctx, 3, "08:00:00", "18:00:00", "11111"))
}

var passwordCols = []string{"id", "user_id", "active", "created_at", "expires_at", "remote_addr", "user_agent", "password"}

func TestPasswordActive(t *testing.T) {
	db, mock := setupMock(t)
	q := regexp.QuoteMeta("SELECT id,user_id,active,created_at,expires_at,remote_addr,user_agent,password FROM tbl_users_passwords WHERE user_id=? AND active=1 AND expires_at>? ORDER BY id DESC LIMIT 1")
	mock.ExpectQuery(q).WithArgs(1, testNow).
		WillReturnRows(sqlmock.NewRows(passwordCols).
			AddRow(4, 1, 1, testNow, testNow.Add(time.Hour), "10.0.0.1", "curl", "$2a$10$x"))
	mock.ExpectQuery(q).WithArgs(2, testNow).WillReturnRows(sqlmock.NewRows(passwordCols))

	repo := NewPasswordRepo(db)
	p, err := repo.Active(context.Background(), 1, testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), p.ID)
	assert.True(t, p.Active)
	assert.Equal(t, "$2a$10$x", p.Hash)

	_, err = repo.Active(context.Background(), 2, testNow)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPasswordHistory(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tbl_users_passwords WHERE user_id=? ORDER BY id DESC")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(passwordCols).
			AddRow(5, 1, 1, testNow, testNow, "", "", "new").
			AddRow(4, 1, 0, testNow, testNow, "", "", "old"))

	hist, err := NewPasswordRepo(db).History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "new", hist[0].Hash)
	assert.False(t, hist[1].Active)
}

func TestPasswordRotationStatements(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tbl_users_passwords SET active=0 WHERE user_id=? AND active=1")).
		WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tbl_users_passwords (user_id, active, created_at, expires_at, remote_addr, user_agent, password) VALUES (?,1,?,?,?,?,?)")).
		WithArgs(1, testNow, testNow.Add(time.Hour), "1.2.3.4", "ua", "hash").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tbl_users_passwords SET password=? WHERE id=?")).
		WithArgs("rehash", 9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tbl_users_passwords SET active=0 WHERE active=1 AND expires_at<=?")).
		WithArgs(testNow).WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewPasswordRepo(db)
	ctx := context.Background()
	require.NoError(t, repo.DeactivateAll(ctx, 1))
	id, err := repo.Insert(ctx, model.PasswordRecord{UserID: 1, CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
		RemoteAddr: "1.2.3.4", UserAgent: "ua", Hash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), id)
	require.NoError(t, repo.UpdateHash(ctx, 9, "rehash"))
	n, err := repo.ExpireStale(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

var tokenCols = []string{"id", "user_id", "active", "created_at", "updated_at", "expires_at", "remote_addr", "user_agent", "token", "renewal_count"}

func TestTokenInsertAndGet(t *testing.T) {
	db, mock := setupMock(t)
	exp := testNow.Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tbl_users_tokens (user_id, active, created_at, updated_at, expires_at, remote_addr, user_agent, token, renewal_count) VALUES (?,1,?,?,?,?,?,?,0)")).
		WithArgs(1, testNow, testNow, exp, "10.0.0.1", "curl", "tok").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id,user_id,active,created_at,updated_at,expires_at,remote_addr,user_agent,token,renewal_count FROM tbl_users_tokens WHERE token=? LIMIT 1")).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow(11, 1, 1, testNow, testNow, exp, "10.0.0.1", "curl", "tok", 0))

	repo := NewTokenRepo(db)
	ctx := context.Background()
	id, err := repo.Insert(ctx, model.Token{UserID: 1, CreatedAt: testNow, ExpiresAt: exp, RemoteAddr: "10.0.0.1", UserAgent: "curl", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)

	tok, err := repo.GetByToken(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, tok.ValidAt(testNow))
	assert.Equal(t, uint64(11), tok.ID)
}

func TestTokenGetMissing(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectQuery("FROM tbl_users_tokens WHERE token=").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(tokenCols))
	_, err := NewTokenRepo(db).GetByToken(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTokenRenewIsConditional(t *testing.T) {
	db, mock := setupMock(t)
	q := regexp.QuoteMeta("UPDATE tbl_users_tokens SET expires_at=?, updated_at=?, renewal_count=renewal_count+1 WHERE id=? AND active=1 AND renewal_count=? AND expires_at>?")
	exp := testNow.Add(time.Hour)
	mock.ExpectExec(q).WithArgs(exp, testNow, 11, 0, testNow).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(exp, testNow, 11, 0, testNow).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewTokenRepo(db)
	ok, err := repo.Renew(context.Background(), 11, 0, exp, testNow)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Renew(context.Background(), 11, 0, exp, testNow)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenSweeps(t *testing.T) {
	db, mock := setupMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE user_id=? AND active=1")).
		WithArgs(testNow, 1).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE id=? AND active=1")).
		WithArgs(testNow, 11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tbl_users_tokens SET active=0, updated_at=? WHERE active=1 AND expires_at<=?")).
		WithArgs(testNow, testNow).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("WHERE active=1 AND user_id NOT IN (SELECT user_id FROM tbl_users_passwords WHERE active=1 AND expires_at>?)")).
		WithArgs(testNow, testNow).WillReturnResult(sqlmock.NewResult(0, 1))
	// testNow is a Sunday
	mock.ExpectExec(regexp.QuoteMeta("SELECT id FROM tbl_users WHERE `start`=`end` ")).
		WithArgs(testNow, "10:00:00", "10:00:00", "10:00:00", "10:00:00", 7).WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewTokenRepo(db)
	ctx := context.Background()
	n, err := repo.DeactivateAllForUser(ctx, 1, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, repo.DeactivateByID(ctx, 11, testNow))
	n, err = repo.ExpireStale(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = repo.DeactivateOrphans(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.DeactivateOutsideSchedule(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
