package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/config"
	"github.com/iliyamo/authledger/internal/lock"
	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/repository"
	"github.com/iliyamo/authledger/internal/utils"
)

// TokenLock is the lock name serializing every credential mutation.
const TokenLock = "token"

// UserStore is the user persistence the Token Manager needs.
type UserStore interface {
	Create(ctx context.Context, login, name string, now time.Time) (uint64, error)
	GetActiveByLogin(ctx context.Context, login string) (model.User, error)
}

// PasswordStore is the password-record persistence the Token Manager needs.
type PasswordStore interface {
	Active(ctx context.Context, userID uint64, now time.Time) (model.PasswordRecord, error)
	History(ctx context.Context, userID uint64) ([]model.PasswordRecord, error)
	UpdateHash(ctx context.Context, id uint64, hash string) error
	DeactivateAll(ctx context.Context, userID uint64) error
	Insert(ctx context.Context, p model.PasswordRecord) (uint64, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// TokenStore is the token persistence the Token Manager needs.
type TokenStore interface {
	Insert(ctx context.Context, t model.Token) (uint64, error)
	GetByToken(ctx context.Context, token string) (model.Token, error)
	DeactivateAllForUser(ctx context.Context, userID uint64, now time.Time) (int64, error)
	DeactivateByID(ctx context.Context, id uint64, now time.Time) error
	Renew(ctx context.Context, id uint64, seen int, expires, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	DeactivateOrphans(ctx context.Context, now time.Time) (int64, error)
	DeactivateOutsideSchedule(ctx context.Context, now time.Time) (int64, error)
}

// TokenInfo is what clients learn about their session token.
type TokenInfo struct {
	TokenID         uint64    `json:"-"`
	UserID          uint64    `json:"-"`
	Token           string    `json:"token"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	PendingRenewals int       `json:"pending_renewals"`
}

// PasswordChange reports a successful password rotation.
type PasswordChange struct {
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SweepStats counts rows deactivated by one maintenance sweep.
type SweepStats struct {
	ExpiredTokens     int64
	ExpiredPasswords  int64
	OrphanTokens      int64
	OffScheduleTokens int64
}

// TokenManager issues, validates, renews and revokes bearer tokens and
// rotates passwords.
type TokenManager struct {
	users     UserStore
	passwords PasswordStore
	tokens    TokenStore
	locks     lock.Locker
	verifiers utils.VerifierChain
	hasher    *utils.Hasher
	cfg       config.AuthConfig
	log       *zap.Logger

	// Clock returns the current time. Tests replace it.
	Clock func() time.Time
}

// NewTokenManager wires a Token Manager. A nil hasher defaults to bcrypt.
func NewTokenManager(users UserStore, passwords PasswordStore, tokens TokenStore, locks lock.Locker,
	hasher *utils.Hasher, cfg config.AuthConfig, log *zap.Logger) *TokenManager {
	if hasher == nil {
		hasher = &utils.Hasher{Algorithm: "bcrypt"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenManager{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		locks:     locks,
		verifiers: utils.DefaultVerifiers(),
		hasher:    hasher,
		cfg:       cfg,
		log:       log,
		Clock:     time.Now,
	}
}

// now is second-precision UTC, matching DATETIME columns.
func (m *TokenManager) now() time.Time {
	return m.Clock().UTC().Truncate(time.Second)
}

func (m *TokenManager) acquire(ctx context.Context) (lock.Lease, error) {
	lease, err := m.locks.Acquire(ctx, TokenLock)
	if err != nil {
		return nil, internalErr(m.log, "acquire token lock", err)
	}
	return lease, nil
}

func (m *TokenManager) release(ctx context.Context, lease lock.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		m.log.Warn("release token lock", zap.Error(err))
	}
}

// IssueToken checks login and password and opens a new session for the
// user, revoking any other. Credential failures of every kind return
// ErrDenied.
func (m *TokenManager) IssueToken(ctx context.Context, login, password string, client model.Client) (TokenInfo, error) {
	lease, err := m.acquire(ctx)
	if err != nil {
		return TokenInfo{}, err
	}
	defer m.release(ctx, lease)

	now := m.now()
	if _, err := m.sweep(ctx, now); err != nil {
		return TokenInfo{}, internalErr(m.log, "sweep", err)
	}

	if login == "" || password == "" {
		m.hasher.Burn(password)
		return TokenInfo{}, ErrDenied
	}
	user, err := m.users.GetActiveByLogin(ctx, login)
	if errors.Is(err, repository.ErrNotFound) {
		m.hasher.Burn(password)
		m.log.Debug("issue token denied", zap.String("reason", "unknown login"))
		return TokenInfo{}, ErrDenied
	}
	if err != nil {
		return TokenInfo{}, internalErr(m.log, "load user", err)
	}
	if !user.AllowsAt(now) {
		m.hasher.Burn(password)
		m.log.Debug("issue token denied", zap.Uint64("user_id", user.ID), zap.String("reason", "outside schedule"))
		return TokenInfo{}, ErrDenied
	}
	rec, err := m.passwords.Active(ctx, user.ID, now)
	if errors.Is(err, repository.ErrNotFound) {
		m.hasher.Burn(password)
		m.log.Debug("issue token denied", zap.Uint64("user_id", user.ID), zap.String("reason", "no usable password"))
		return TokenInfo{}, ErrDenied
	}
	if err != nil {
		return TokenInfo{}, internalErr(m.log, "load password", err)
	}
	ok, upgrade := m.verifiers.Verify(rec.Hash, password)
	if !ok {
		m.log.Debug("issue token denied", zap.Uint64("user_id", user.ID), zap.String("reason", "password mismatch"))
		return TokenInfo{}, ErrDenied
	}
	if upgrade {
		m.upgradeHash(ctx, rec, password)
	}

	if _, err := m.tokens.DeactivateAllForUser(ctx, user.ID, now); err != nil {
		return TokenInfo{}, internalErr(m.log, "revoke previous tokens", err)
	}
	tok := model.Token{
		UserID:     user.ID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.TokenExpires),
		RemoteAddr: client.RemoteAddr,
		UserAgent:  client.UserAgent,
	}
	for attempt := 0; ; attempt++ {
		tok.Token = utils.NewOpaqueToken()
		tok.ID, err = m.tokens.Insert(ctx, tok)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt == 2 {
			return TokenInfo{}, internalErr(m.log, "insert token", err)
		}
	}
	m.log.Info("token issued", zap.Uint64("user_id", user.ID), zap.Uint64("token_id", tok.ID))
	return m.info(tok), nil
}

// upgradeHash replaces a legacy digest after a successful login. A failed
// upgrade leaves the legacy hash in place and does not fail the login.
func (m *TokenManager) upgradeHash(ctx context.Context, rec model.PasswordRecord, password string) {
	hash, err := m.hasher.Hash(password)
	if err == nil {
		err = m.passwords.UpdateHash(ctx, rec.ID, hash)
	}
	if err != nil {
		m.log.Warn("legacy hash upgrade failed", zap.Uint64("password_id", rec.ID), zap.Error(err))
		return
	}
	m.log.Info("legacy hash upgraded", zap.Uint64("user_id", rec.UserID), zap.String("algorithm", m.hasher.Algorithm))
}

// ValidateToken looks a token up without changing it. With token binding
// enabled the client must match the one the token was issued to.
func (m *TokenManager) ValidateToken(ctx context.Context, token string, client model.Client) (model.Token, error) {
	if token == "" {
		return model.Token{}, ErrDenied
	}
	tok, err := m.tokens.GetByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Token{}, ErrDenied
	}
	if err != nil {
		return model.Token{}, internalErr(m.log, "load token", err)
	}
	if !tok.ValidAt(m.now()) {
		return model.Token{}, ErrDenied
	}
	if m.cfg.TokenBinding && (tok.RemoteAddr != client.RemoteAddr || tok.UserAgent != client.UserAgent) {
		m.log.Debug("token denied", zap.Uint64("token_id", tok.ID), zap.String("reason", "client mismatch"))
		return model.Token{}, ErrDenied
	}
	return tok, nil
}

// RenewOrExpire extends a validated token while its renewal budget
// lasts. Once the budget is spent the token is returned unchanged and
// stays valid until its current expiry.
func (m *TokenManager) RenewOrExpire(ctx context.Context, tok model.Token) (model.Token, error) {
	if tok.RenewalCount >= m.cfg.TokenRenewals {
		return tok, nil
	}
	now := m.now()
	expires := now.Add(m.cfg.TokenExpires)
	ok, err := m.tokens.Renew(ctx, tok.ID, tok.RenewalCount, expires, now)
	if err != nil {
		return tok, internalErr(m.log, "renew token", err)
	}
	if !ok {
		// another request renewed or revoked it first
		return tok, nil
	}
	tok.RenewalCount++
	tok.ExpiresAt = expires
	tok.UpdatedAt = now
	return tok, nil
}

// Info renders a token for clients.
func (m *TokenManager) Info(tok model.Token) TokenInfo { return m.info(tok) }

func (m *TokenManager) info(tok model.Token) TokenInfo {
	return TokenInfo{
		TokenID:         tok.ID,
		UserID:          tok.UserID,
		Token:           tok.Token,
		CreatedAt:       tok.CreatedAt.UTC(),
		ExpiresAt:       tok.ExpiresAt.UTC(),
		PendingRenewals: tok.PendingRenewals(m.cfg.TokenRenewals),
	}
}

// RevokeAllForUser deactivates every token of the user.
func (m *TokenManager) RevokeAllForUser(ctx context.Context, userID uint64) error {
	n, err := m.tokens.DeactivateAllForUser(ctx, userID, m.now())
	if err != nil {
		return internalErr(m.log, "revoke tokens", err)
	}
	m.log.Info("tokens revoked", zap.Uint64("user_id", userID), zap.Int64("count", n))
	return nil
}

// RevokeToken deactivates one token, ending a single session.
func (m *TokenManager) RevokeToken(ctx context.Context, tokenID uint64) error {
	if err := m.tokens.DeactivateByID(ctx, tokenID, m.now()); err != nil {
		return internalErr(m.log, "revoke token", err)
	}
	return nil
}

// UpdatePassword rotates the user's password. Every rejection is an
// *AuthError; on success all tokens of the user are revoked.
func (m *TokenManager) UpdatePassword(ctx context.Context, userID uint64, oldPass, newPass, confirm string, client model.Client) (PasswordChange, error) {
	if oldPass == "" || newPass == "" || confirm == "" {
		return PasswordChange{}, authErr("old password, new password and confirmation are required")
	}
	lease, err := m.acquire(ctx)
	if err != nil {
		return PasswordChange{}, err
	}
	defer m.release(ctx, lease)

	now := m.now()
	rec, err := m.passwords.Active(ctx, userID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return PasswordChange{}, authErr("old password is incorrect")
	}
	if err != nil {
		return PasswordChange{}, internalErr(m.log, "load password", err)
	}
	if ok, _ := m.verifiers.Verify(rec.Hash, oldPass); !ok {
		return PasswordChange{}, authErr("old password is incorrect")
	}
	if newPass != confirm {
		return PasswordChange{}, authErr("new password and confirmation do not match")
	}
	if score := utils.Score(newPass); score < m.cfg.PasswordMinScore {
		return PasswordChange{}, authErr("new password is too weak (score %d, minimum %d)", score, m.cfg.PasswordMinScore)
	}
	history, err := m.passwords.History(ctx, userID)
	if err != nil {
		return PasswordChange{}, internalErr(m.log, "load password history", err)
	}
	for _, old := range history {
		if ok, _ := m.verifiers.Verify(old.Hash, newPass); ok {
			return PasswordChange{}, authErr("new password was used before")
		}
	}

	hash, err := m.hasher.Hash(newPass)
	if err != nil {
		return PasswordChange{}, internalErr(m.log, "hash password", err)
	}
	next := model.PasswordRecord{
		UserID:     userID,
		Active:     true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.PasswordExpires),
		RemoteAddr: client.RemoteAddr,
		UserAgent:  client.UserAgent,
		Hash:       hash,
	}
	if err := m.passwords.DeactivateAll(ctx, userID); err != nil {
		return PasswordChange{}, internalErr(m.log, "deactivate password", err)
	}
	if _, err := m.passwords.Insert(ctx, next); err != nil {
		return PasswordChange{}, internalErr(m.log, "insert password", err)
	}
	if _, err := m.tokens.DeactivateAllForUser(ctx, userID, now); err != nil {
		return PasswordChange{}, internalErr(m.log, "revoke tokens", err)
	}
	m.log.Info("password updated", zap.Uint64("user_id", userID))
	return PasswordChange{UpdatedAt: now, ExpiresAt: next.ExpiresAt}, nil
}

// RegisterUser creates a user with an initial password. The strength gate
// applies as for a rotation.
func (m *TokenManager) RegisterUser(ctx context.Context, login, name, password string) (uint64, error) {
	if login == "" || password == "" {
		return 0, authErr("login and password are required")
	}
	if score := utils.Score(password); score < m.cfg.PasswordMinScore {
		return 0, authErr("password is too weak (score %d, minimum %d)", score, m.cfg.PasswordMinScore)
	}
	lease, err := m.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer m.release(ctx, lease)

	now := m.now()
	id, err := m.users.Create(ctx, login, name, now)
	if errors.Is(err, repository.ErrConflict) {
		return 0, authErr("login %q is taken", login)
	}
	if err != nil {
		return 0, internalErr(m.log, "create user", err)
	}
	hash, err := m.hasher.Hash(password)
	if err != nil {
		return 0, internalErr(m.log, "hash password", err)
	}
	_, err = m.passwords.Insert(ctx, model.PasswordRecord{
		UserID: id, Active: true, CreatedAt: now, ExpiresAt: now.Add(m.cfg.PasswordExpires), Hash: hash,
	})
	if err != nil {
		return 0, internalErr(m.log, "insert password", err)
	}
	m.log.Info("user registered", zap.Uint64("user_id", id))
	return id, nil
}

// Sweep deactivates expired tokens and expired passwords. It also revokes
// the tokens of users left without a usable password, and of users whose
// schedule does not admit the current time.
func (m *TokenManager) Sweep(ctx context.Context) (SweepStats, error) {
	lease, err := m.acquire(ctx)
	if err != nil {
		return SweepStats{}, err
	}
	defer m.release(ctx, lease)
	st, err := m.sweep(ctx, m.now())
	if err != nil {
		return st, internalErr(m.log, "sweep", err)
	}
	return st, nil
}

func (m *TokenManager) sweep(ctx context.Context, now time.Time) (SweepStats, error) {
	var st SweepStats
	var err error
	if st.ExpiredTokens, err = m.tokens.ExpireStale(ctx, now); err != nil {
		return st, err
	}
	if st.ExpiredPasswords, err = m.passwords.ExpireStale(ctx, now); err != nil {
		return st, err
	}
	if st.OrphanTokens, err = m.tokens.DeactivateOrphans(ctx, now); err != nil {
		return st, err
	}
	if st.OffScheduleTokens, err = m.tokens.DeactivateOutsideSchedule(ctx, now); err != nil {
		return st, err
	}
	return st, nil
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *TokenManager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st, err := m.Sweep(ctx)
				if err != nil {
					continue
				}
				if st.ExpiredTokens+st.ExpiredPasswords+st.OrphanTokens+st.OffScheduleTokens > 0 {
					m.log.Info("credential sweep",
						zap.Int64("expired_tokens", st.ExpiredTokens),
						zap.Int64("expired_passwords", st.ExpiredPasswords),
						zap.Int64("orphan_tokens", st.OrphanTokens),
						zap.Int64("off_schedule_tokens", st.OffScheduleTokens))
				}
			}
		}
	}()
}
