// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an audit log.
package queue

// VersionRecordedQueue is the durable queue version events are published to.
const VersionRecordedQueue = "version.recorded"

// VersionRecordedEvent is published after a version row is committed.
// It carries enough for downstream consumers to log or index the change
// without querying the primary database.
type VersionRecordedEvent struct {
    App        string   `json:"app"`
    RegID      uint64   `json:"reg_id"`
    Seq        int      `json:"ver_id"`
    UserID     uint64   `json:"user_id"`
    Hash       string   `json:"hash"`
    Tables     []string `json:"tables"`
    RecordedAt string   `json:"recorded_at"`
}
