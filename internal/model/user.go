package model

import (
    "fmt"
    "time"
)

// Schedule defaults admit a user at any time.
const (
    ScheduleStart = "00:00:00"
    ScheduleEnd   = "23:59:59"
    ScheduleDays  = "1111111"
)

const clockLayout = "15:04:05"

// User represents a row of the `tbl_users` table. Login is the unique
// handle presented at authentication time; Active soft-disables the
// account without removing its history. Start, End and Days restrict
// the hours and weekdays in which the user may hold a session.
type User struct {
    ID        uint64    // tbl_users.id
    Login     string    // tbl_users.login
    Name      string    // tbl_users.name
    Active    bool      // tbl_users.active
    CreatedAt time.Time // tbl_users.created_at
    Start     string    // tbl_users.start, HH:MM:SS
    End       string    // tbl_users.end, HH:MM:SS
    Days      string    // tbl_users.days, Monday first, '0' bars the day
}

// AllowsAt reports whether the user's schedule admits instant t. A window
// whose start equals its end admits nothing; a start after the end wraps
// past midnight. A user with no schedule at all is unrestricted.
func (u User) AllowsAt(t time.Time) bool {
    if u.Start == "" && u.End == "" && u.Days == "" {
        return true
    }
    clock := t.Format(clockLayout)
    switch {
    case u.Start == u.End:
        return false
    case u.Start < u.End:
        if clock < u.Start || clock > u.End {
            return false
        }
    default:
        if clock < u.Start && clock > u.End {
            return false
        }
    }
    d := ISOWeekday(t)
    return len(u.Days) < d || u.Days[d-1] != '0'
}

// ISOWeekday numbers the days of the week from Monday=1 to Sunday=7.
func ISOWeekday(t time.Time) int {
    if d := t.Weekday(); d != time.Sunday {
        return int(d)
    }
    return 7
}

// ValidateSchedule checks a start/end pair and a weekday mask.
func ValidateSchedule(start, end, days string) error {
    for _, c := range []string{start, end} {
        if _, err := time.Parse(clockLayout, c); err != nil || len(c) != len(clockLayout) {
            return fmt.Errorf("schedule: %q is not HH:MM:SS", c)
        }
    }
    if len(days) != 7 {
        return fmt.Errorf("schedule: days must have 7 flags, got %q", days)
    }
    for _, r := range days {
        if r != '0' && r != '1' {
            return fmt.Errorf("schedule: days must be 0 or 1 flags, got %q", days)
        }
    }
    return nil
}

// PasswordRecord models an entry in `tbl_users_passwords`. Exactly one
// record per user is active at a time; rotated records stay in the table
// so reuse can be detected.
//
// Fields:
//  Hash      – modern (bcrypt/argon2id) or legacy (md5/sha1) digest.
//  ExpiresAt – after this instant the record no longer authenticates.
type PasswordRecord struct {
    ID         uint64    // tbl_users_passwords.id
    UserID     uint64    // tbl_users_passwords.user_id
    Active     bool      // tbl_users_passwords.active
    CreatedAt  time.Time // tbl_users_passwords.created_at
    ExpiresAt  time.Time // tbl_users_passwords.expires_at
    RemoteAddr string    // tbl_users_passwords.remote_addr
    UserAgent  string    // tbl_users_passwords.user_agent
    Hash       string    // tbl_users_passwords.password
}

// Token models an entry in `tbl_users_tokens`. The Token string is an
// opaque random value handed to the client; rows are deactivated, never
// deleted.
type Token struct {
    ID           uint64    // tbl_users_tokens.id
    UserID       uint64    // tbl_users_tokens.user_id
    Active       bool      // tbl_users_tokens.active
    CreatedAt    time.Time // tbl_users_tokens.created_at
    UpdatedAt    time.Time // tbl_users_tokens.updated_at
    ExpiresAt    time.Time // tbl_users_tokens.expires_at
    RemoteAddr   string    // tbl_users_tokens.remote_addr
    UserAgent    string    // tbl_users_tokens.user_agent
    Token        string    // tbl_users_tokens.token
    RenewalCount int       // tbl_users_tokens.renewal_count
}

// ValidAt reports whether the token authenticates at instant now.
func (t Token) ValidAt(now time.Time) bool {
    return t.Active && now.Before(t.ExpiresAt)
}

// PendingRenewals returns how many silent renewals remain from budget.
func (t Token) PendingRenewals(budget int) int {
    n := budget - t.RenewalCount
    if n < 0 {
        return 0
    }
    return n
}

// Client identifies the caller that presented credentials.
type Client struct {
    RemoteAddr string
    UserAgent  string
}
