package model

import "time"

// Version is one immutable entry of an entity's audit trail, stored in
// the `<table>_version` table of its app.
type Version struct {
	ID       uint64    // <table>_version.id
	RegID    uint64    // <table>_version.reg_id
	Seq      int       // <table>_version.ver_id, 0 for the baseline
	UserID   uint64    // <table>_version.user_id
	Datetime time.Time // <table>_version.datetime
	Data     string    // <table>_version.data, JSON encoded ChangeSet
	Hash     string    // <table>_version.hash
}

// VersionState pairs a version with the entity state it reconstructs.
type VersionState struct {
	Seq      int       `json:"seq"`
	UserID   uint64    `json:"user_id"`
	Datetime time.Time `json:"datetime"`
	Hash     string    `json:"hash"`
	Changes  ChangeSet `json:"changes"`
	State    Snapshot  `json:"state"`
}
