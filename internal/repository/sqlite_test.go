package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/authledger/internal/database"
	"github.com/iliyamo/authledger/internal/model"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, "sqlite3"))
	return db
}

func TestSQLiteTokenLifecycle(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	uid, err := NewUserRepo(db).Create(ctx, "alice", "Alice", testNow)
	require.NoError(t, err)

	tokens := NewTokenRepo(db)
	id, err := tokens.Insert(ctx, model.Token{UserID: uid, CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour), Token: "tok-1"})
	require.NoError(t, err)

	got, err := tokens.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.True(t, got.ValidAt(testNow))

	ok, err := tokens.Renew(ctx, id, 0, testNow.Add(2*time.Hour), testNow)
	require.NoError(t, err)
	assert.True(t, ok)
	// a second renewal based on the stale count loses
	ok, err = tokens.Renew(ctx, id, 0, testNow.Add(3*time.Hour), testNow)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := tokens.DeactivateAllForUser(ctx, uid, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = tokens.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 1, got.RenewalCount)
}

func TestSQLiteScheduleSweep(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	users := NewUserRepo(db)
	tokens := NewTokenRepo(db)

	// testNow is Sunday 10:00 UTC
	cases := []struct {
		login            string
		start, end, days string
		keep             bool
	}{
		{"always", model.ScheduleStart, model.ScheduleEnd, model.ScheduleDays, true},
		{"office", "09:00:00", "17:00:00", model.ScheduleDays, true},
		{"early", "06:00:00", "09:00:00", model.ScheduleDays, false},
		{"weekdays", model.ScheduleStart, model.ScheduleEnd, "1111100", false},
		{"night", "22:00:00", "06:00:00", model.ScheduleDays, false},
		{"overnight", "22:00:00", "11:00:00", model.ScheduleDays, true},
		{"closed", "10:00:00", "10:00:00", model.ScheduleDays, false},
	}
	for _, tc := range cases {
		uid, err := users.Create(ctx, tc.login, "", testNow)
		require.NoError(t, err)
		require.NoError(t, users.SetSchedule(ctx, uid, tc.start, tc.end, tc.days))
		_, err = tokens.Insert(ctx, model.Token{UserID: uid, CreatedAt: testNow, ExpiresAt: testNow.Add(time.Hour), Token: "tok-" + tc.login})
		require.NoError(t, err)
	}

	n, err := tokens.DeactivateOutsideSchedule(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	for _, tc := range cases {
		got, err := tokens.GetByToken(ctx, "tok-"+tc.login)
		require.NoError(t, err)
		assert.Equal(t, tc.keep, got.Active, tc.login)

		u, err := users.GetActiveByLogin(ctx, tc.login)
		require.NoError(t, err)
		assert.Equal(t, tc.keep, u.AllowsAt(testNow), tc.login)
	}
}

func TestSQLiteEntityRoundTrip(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	app := invoicesApp(t)

	_, err := db.ExecContext(ctx, "INSERT INTO app_taxes (name, value, active) VALUES ('VAT 21%', 21, 1)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO app_invoices (customer, description) VALUES ('ACME', 'Q2 services')")
	require.NoError(t, err)

	repo := NewEntityRepo(db)
	patch := model.GridPatch{
		Fields: model.Row{"total": model.String("12.10")},
		Collections: map[string][]model.RowPatch{
			"lines": {{Op: model.OpInsert, Fields: model.Row{
				"description": model.String("Widget"),
				"quantity":    model.Int(1),
				"price":       model.String("10"),
				"tax_id":      model.Int(1),
				"tax_value":   model.Int(21),
			}}},
		},
	}
	require.NoError(t, repo.Apply(ctx, app, 1, patch))

	snap, err := repo.State(ctx, app, 1)
	require.NoError(t, err)
	require.Contains(t, snap, "app_invoices_lines")
	require.Contains(t, snap, "app_invoices_taxes")
	assert.Empty(t, snap["app_invoices_taxes"])

	main := snap["app_invoices"]["1"]
	assert.Equal(t, "ACME", main["customer"].Text())
	assert.True(t, main["total"].LooseEqual(model.String("12.10")))

	line := snap["app_invoices_lines"]["1"]
	require.NotNil(t, line)
	assert.Equal(t, "Widget", line["description"].Text())
	assert.True(t, line["price"].LooseEqual(model.Int(10)))

	m, _ := app.Master("taxes")
	taxes, err := repo.Master(ctx, m)
	require.NoError(t, err)
	require.Len(t, taxes, 1)
	assert.Equal(t, "VAT 21%", taxes[0]["name"].Text())

	del := model.GridPatch{Collections: map[string][]model.RowPatch{"lines": {{Op: model.OpDelete, ID: 1}}}}
	require.NoError(t, repo.Apply(ctx, app, 1, del))
	// the row is gone, so deleting it again fails and rolls back
	assert.True(t, errors.Is(repo.Apply(ctx, app, 1, del), ErrNotFound))
}

func TestSQLiteVersionTrail(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	app := invoicesApp(t)
	repo := NewVersionRepo(db)

	for seq := 0; seq < 2; seq++ {
		_, err := repo.Insert(ctx, app, model.Version{RegID: 1, Seq: seq, UserID: 1,
			Datetime: testNow.Add(time.Duration(seq) * time.Minute), Data: "{}", Hash: "h"})
		require.NoError(t, err)
	}
	_, err := repo.Insert(ctx, app, model.Version{RegID: 1, Seq: 1, UserID: 1, Datetime: testNow, Data: "{}", Hash: "h"})
	assert.True(t, errors.Is(err, ErrConflict))

	vs, err := repo.List(ctx, app, 1)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, 1, vs[1].Seq)
	assert.True(t, vs[1].Datetime.Equal(testNow.Add(time.Minute)))

	none, err := repo.List(ctx, app, 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}
