package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseAuthConfig(t *testing.T) {
    cfg, err := ParseAuthConfig([]byte(`
auth:
  tokenexpires: 3600
  tokenrenewals: 5
  passwordexpires: 720h
  passwordminscore: 60
  tokenbinding: true
  lockwait: 500ms
`))
    require.NoError(t, err)
    assert.Equal(t, time.Hour, cfg.TokenExpires)
    assert.Equal(t, 5, cfg.TokenRenewals)
    assert.Equal(t, 720*time.Hour, cfg.PasswordExpires)
    assert.Equal(t, 60, cfg.PasswordMinScore)
    assert.True(t, cfg.TokenBinding)
    assert.Equal(t, 500*time.Millisecond, cfg.LockWait)
    assert.Equal(t, DefaultAuthConfig().LockTTL, cfg.LockTTL)
}

func TestParseAuthConfigZeroRenewals(t *testing.T) {
    cfg, err := ParseAuthConfig([]byte("auth:\n  tokenrenewals: 0\n"))
    require.NoError(t, err)
    assert.Equal(t, 0, cfg.TokenRenewals)
}

func TestParseAuthConfigRejectsBadValues(t *testing.T) {
    for name, doc := range map[string]string{
        "duration": "auth:\n  tokenexpires: soon\n",
        "score":    "auth:\n  passwordminscore: 101\n",
        "ttl":      "auth:\n  tokenexpires: 0\n",
        "yaml":     "auth: [",
    } {
        t.Run(name, func(t *testing.T) {
            _, err := ParseAuthConfig([]byte(doc))
            assert.Error(t, err)
        })
    }
}

func TestLoadAuthConfigEnvOverridesFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "auth.yaml")
    require.NoError(t, os.WriteFile(path, []byte("auth:\n  tokenrenewals: 7\n  passwordminscore: 40\n"), 0o600))
    t.Setenv("AUTH_CONFIG_FILE", path)
    t.Setenv("AUTH_PASSWORD_MIN_SCORE", "70")
    t.Setenv("AUTH_TOKEN_EXPIRES", "120")

    cfg, err := LoadAuthConfig()
    require.NoError(t, err)
    assert.Equal(t, 7, cfg.TokenRenewals)
    assert.Equal(t, 70, cfg.PasswordMinScore)
    assert.Equal(t, 2*time.Minute, cfg.TokenExpires)
}

func TestLoadWithDSN(t *testing.T) {
    t.Setenv("DB_DRIVER", "sqlite3")
    t.Setenv("DB_DSN", "file::memory:")
    t.Setenv("PASSWORD_HASH", "argon2id")
    cfg := Load()
    assert.Equal(t, "sqlite3", cfg.DBDriver)
    assert.Equal(t, "file::memory:", cfg.DBDSN)
    assert.Equal(t, "argon2id", cfg.PasswordHash)
    assert.Equal(t, "8080", cfg.Port)
}

func TestLoadDotEnv(t *testing.T) {
    path := filepath.Join(t.TempDir(), ".env")
    require.NoError(t, os.WriteFile(path, []byte("AUTHLEDGER_DOTENV_PROBE=loaded\n"), 0o600))
    t.Cleanup(func() { os.Unsetenv("AUTHLEDGER_DOTENV_PROBE") })
    LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
    assert.Equal(t, "loaded", os.Getenv("AUTHLEDGER_DOTENV_PROBE"))
}

func TestLoginLimitDefaults(t *testing.T) {
    t.Setenv("LOGIN_LIMIT_MAX", "0")
    cfg := LoadLoginLimitConfig()
    assert.True(t, cfg.Enabled)
    assert.Equal(t, 1, cfg.Max)
    assert.Equal(t, time.Minute, cfg.Window)
}

func TestRedisOptions(t *testing.T) {
    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")
    t.Setenv("REDIS_DB", "2")
    opts := RedisOptions()
    assert.Equal(t, "cache:6380", opts.Addr)
    assert.Equal(t, 2, opts.DB)
    assert.Nil(t, opts.TLSConfig)
}

func TestLoadSweepAndEvents(t *testing.T) {
    t.Setenv("DB_DRIVER", "sqlite3")
    t.Setenv("DB_DSN", "file:authledger.db")
    t.Setenv("SWEEP_INTERVAL", "30s")
    t.Setenv("EVENTS_ENABLED", "off")

    cfg := Load()
    assert.Equal(t, "sqlite3", cfg.DBDriver)
    assert.Equal(t, "file:authledger.db", cfg.DSN())
    assert.Equal(t, 30*time.Second, cfg.SweepEvery)
    assert.False(t, cfg.Events)
}

func TestDSNFromParts(t *testing.T) {
    cfg := Config{DBUser: "app", DBPass: "pw", DBHost: "db", DBPort: "3306", DBName: "ledger"}
    assert.Equal(t, "app:pw@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true", cfg.DSN())
}
