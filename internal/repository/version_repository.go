package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/schema"
)

// VersionRepo reads and appends the audit trail of an app. Rows are
// never updated or deleted.
type VersionRepo struct{ DB *sql.DB }

func NewVersionRepo(db *sql.DB) *VersionRepo { return &VersionRepo{DB: db} }

// List returns the trail of one entity in append order.
func (r *VersionRepo) List(ctx context.Context, app schema.App, regID uint64) ([]model.Version, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, reg_id, ver_id, user_id, datetime, data, hash FROM "+app.VersionTable()+" WHERE reg_id=? ORDER BY id ASC",
		regID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Version
	for rows.Next() {
		var v model.Version
		if err := rows.Scan(&v.ID, &v.RegID, &v.Seq, &v.UserID, &v.Datetime, &v.Data, &v.Hash); err != nil {
			return nil, err
		}
		v.Datetime = v.Datetime.UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// Insert appends a version. A taken (reg_id, ver_id) pair is ErrConflict.
func (r *VersionRepo) Insert(ctx context.Context, app schema.App, v model.Version) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO "+app.VersionTable()+" (reg_id, ver_id, user_id, datetime, data, hash) VALUES (?,?,?,?,?,?)",
		v.RegID, v.Seq, v.UserID, v.Datetime, v.Data, v.Hash)
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
