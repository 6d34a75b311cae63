package utils

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Argon2Params defines the memory and CPU cost factors for Argon2id.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params suit a small container.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashArgon2 derives an Argon2id key and encodes it in PHC format.
func HashArgon2(plain string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func verifyArgon2(encoded, plain string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}

// PasswordVerifier checks a plain password against one stored hash format.
// Legacy verifiers report Modern() == false so a successful match can be
// rehashed.
type PasswordVerifier interface {
	Name() string
	Recognizes(hash string) bool
	Verify(hash, plain string) bool
	Modern() bool
}

type bcryptVerifier struct{}

func (bcryptVerifier) Name() string { return "bcrypt" }
func (bcryptVerifier) Modern() bool { return true }
func (bcryptVerifier) Recognizes(h string) bool {
	return strings.HasPrefix(h, "$2a$") || strings.HasPrefix(h, "$2b$") || strings.HasPrefix(h, "$2y$")
}
func (bcryptVerifier) Verify(h, plain string) bool { return VerifyPassword(h, plain) }

type argon2Verifier struct{}

func (argon2Verifier) Name() string                  { return "argon2id" }
func (argon2Verifier) Modern() bool                  { return true }
func (argon2Verifier) Recognizes(h string) bool      { return strings.HasPrefix(h, "$argon2id$") }
func (argon2Verifier) Verify(h, plain string) bool   { return verifyArgon2(h, plain) }

// digestVerifier matches unsalted hex digests left by older releases.
type digestVerifier struct {
	name string
	size int
	sum  func([]byte) []byte
}

func (d digestVerifier) Name() string { return d.name }
func (d digestVerifier) Modern() bool { return false }
func (d digestVerifier) Recognizes(h string) bool {
	if len(h) != d.size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}
func (d digestVerifier) Verify(h, plain string) bool {
	want, err := hex.DecodeString(strings.ToLower(h))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, d.sum([]byte(plain))) == 1
}

// MD5Verifier and SHA1Verifier accept legacy digests.
var (
	MD5Verifier PasswordVerifier = digestVerifier{name: "md5", size: md5.Size, sum: func(b []byte) []byte {
		s := md5.Sum(b)
		return s[:]
	}}
	SHA1Verifier PasswordVerifier = digestVerifier{name: "sha1", size: sha1.Size, sum: func(b []byte) []byte {
		s := sha1.Sum(b)
		return s[:]
	}}
	BcryptVerifier PasswordVerifier = bcryptVerifier{}
	Argon2Verifier PasswordVerifier = argon2Verifier{}
)

// VerifierChain tries verifiers in order; the first one recognizing the
// hash format decides.
type VerifierChain []PasswordVerifier

// DefaultVerifiers puts the modern formats first.
func DefaultVerifiers() VerifierChain {
	return VerifierChain{BcryptVerifier, Argon2Verifier, MD5Verifier, SHA1Verifier}
}

// Verify reports whether plain matches hash and whether the stored hash
// should be replaced by a modern one.
func (c VerifierChain) Verify(hash, plain string) (ok, upgrade bool) {
	for _, v := range c {
		if !v.Recognizes(hash) {
			continue
		}
		if v.Verify(hash, plain) {
			return true, !v.Modern()
		}
		return false, false
	}
	return false, false
}

// Hasher produces new password hashes.
type Hasher struct {
	Algorithm  string // "bcrypt" or "argon2id"
	BcryptCost int
	Argon2     Argon2Params

	dummyOnce sync.Once
	dummy     string
}

// Hash hashes plain with the configured algorithm.
func (h *Hasher) Hash(plain string) (string, error) {
	if h.Algorithm == "argon2id" {
		p := h.Argon2
		if p.KeyLength == 0 {
			p = DefaultArgon2Params
		}
		return HashArgon2(plain, p)
	}
	cost := h.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return HashPassword(plain, cost)
}

// Burn performs one modern hash comparison that always fails. It keeps
// unknown-login attempts as slow as wrong-password attempts.
func (h *Hasher) Burn(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = h.Hash("unused-dummy-password")
	})
	DefaultVerifiers().Verify(h.dummy, plain+"\x00")
}
