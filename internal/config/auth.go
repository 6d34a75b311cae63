package config

import (
    "fmt"
    "os"
    "strconv"
    "time"

    "gopkg.in/yaml.v3"
)

// AuthConfig carries the credential and token policy. Keys of the YAML
// file follow the option names auth/tokenexpires, auth/tokenrenewals,
// auth/passwordexpires and auth/passwordminscore.
type AuthConfig struct {
    TokenExpires     time.Duration // TTL set at issuance and on every renewal
    TokenRenewals    int           // silent renewals allowed per token
    PasswordExpires  time.Duration // validity of a password record
    PasswordMinScore int           // strength gate, 0..100
    TokenBinding     bool          // require the issuing remote_addr/user_agent
    LockWait         time.Duration // how long to wait for a named lock
    LockTTL          time.Duration // lease length of a held lock
}

// DefaultAuthConfig is used for anything the file and env leave unset.
func DefaultAuthConfig() AuthConfig {
    return AuthConfig{
        TokenExpires:     24 * time.Hour,
        TokenRenewals:    3,
        PasswordExpires:  90 * 24 * time.Hour,
        PasswordMinScore: 50,
        LockWait:         2 * time.Second,
        LockTTL:          10 * time.Second,
    }
}

// seconds accepts either an integer number of seconds or a Go duration.
type seconds struct {
    d   time.Duration
    set bool
}

func (s *seconds) UnmarshalYAML(n *yaml.Node) error {
    if i, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
        s.d, s.set = time.Duration(i)*time.Second, true
        return nil
    }
    d, err := time.ParseDuration(n.Value)
    if err != nil {
        return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
    }
    s.d, s.set = d, true
    return nil
}

type authFile struct {
    Auth struct {
        TokenExpires     seconds `yaml:"tokenexpires"`
        TokenRenewals    *int    `yaml:"tokenrenewals"`
        PasswordExpires  seconds `yaml:"passwordexpires"`
        PasswordMinScore *int    `yaml:"passwordminscore"`
        TokenBinding     *bool   `yaml:"tokenbinding"`
        LockWait         seconds `yaml:"lockwait"`
        LockTTL          seconds `yaml:"lockttl"`
    } `yaml:"auth"`
}

// ParseAuthConfig overlays a YAML document on the defaults.
func ParseAuthConfig(data []byte) (AuthConfig, error) {
    cfg := DefaultAuthConfig()
    var f authFile
    if err := yaml.Unmarshal(data, &f); err != nil {
        return cfg, fmt.Errorf("auth config: %w", err)
    }
    a := f.Auth
    if a.TokenExpires.set {
        cfg.TokenExpires = a.TokenExpires.d
    }
    if a.TokenRenewals != nil {
        cfg.TokenRenewals = *a.TokenRenewals
    }
    if a.PasswordExpires.set {
        cfg.PasswordExpires = a.PasswordExpires.d
    }
    if a.PasswordMinScore != nil {
        cfg.PasswordMinScore = *a.PasswordMinScore
    }
    if a.TokenBinding != nil {
        cfg.TokenBinding = *a.TokenBinding
    }
    if a.LockWait.set {
        cfg.LockWait = a.LockWait.d
    }
    if a.LockTTL.set {
        cfg.LockTTL = a.LockTTL.d
    }
    return cfg, cfg.validate()
}

// LoadAuthConfig reads AUTH_CONFIG_FILE when set and applies the AUTH_*
// environment overrides on top.
func LoadAuthConfig() (AuthConfig, error) {
    cfg := DefaultAuthConfig()
    if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
        data, err := os.ReadFile(path)
        if err != nil {
            return cfg, fmt.Errorf("auth config: %w", err)
        }
        if cfg, err = ParseAuthConfig(data); err != nil {
            return cfg, err
        }
    }
    cfg.TokenExpires = envSeconds("AUTH_TOKEN_EXPIRES", cfg.TokenExpires)
    cfg.TokenRenewals = envInt("AUTH_TOKEN_RENEWALS", cfg.TokenRenewals)
    cfg.PasswordExpires = envSeconds("AUTH_PASSWORD_EXPIRES", cfg.PasswordExpires)
    cfg.PasswordMinScore = envInt("AUTH_PASSWORD_MIN_SCORE", cfg.PasswordMinScore)
    cfg.TokenBinding = envBool("AUTH_TOKEN_BINDING", cfg.TokenBinding)
    cfg.LockWait = envDur("AUTH_LOCK_WAIT", cfg.LockWait)
    cfg.LockTTL = envDur("AUTH_LOCK_TTL", cfg.LockTTL)
    return cfg, cfg.validate()
}

func (c AuthConfig) validate() error {
    switch {
    case c.TokenExpires <= 0:
        return fmt.Errorf("auth config: tokenexpires must be positive")
    case c.PasswordExpires <= 0:
        return fmt.Errorf("auth config: passwordexpires must be positive")
    case c.TokenRenewals < 0:
        return fmt.Errorf("auth config: tokenrenewals must not be negative")
    case c.PasswordMinScore < 0 || c.PasswordMinScore > 100:
        return fmt.Errorf("auth config: passwordminscore must be within 0..100")
    }
    return nil
}

// envSeconds reads an integer number of seconds or a Go duration.
func envSeconds(k string, d time.Duration) time.Duration {
    v := os.Getenv(k)
    if v == "" {
        return d
    }
    if n, err := strconv.ParseInt(v, 10, 64); err == nil {
        return time.Duration(n) * time.Second
    }
    return envDur(k, d)
}
