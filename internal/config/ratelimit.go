package config

import (
    "os"
    "strconv"
    "time"
)

// LoginLimitConfig bounds credential attempts per client address with a
// fixed window counter kept in Redis.
type LoginLimitConfig struct {
    Enabled  bool
    Max      int
    Window   time.Duration
    Prefix   string
}

func LoadLoginLimitConfig() LoginLimitConfig {
    cfg := LoginLimitConfig{
        Enabled: envBool("LOGIN_LIMIT_ENABLED", true),
        Max:     envInt("LOGIN_LIMIT_MAX", 10),
        Window:  envDur("LOGIN_LIMIT_WINDOW", time.Minute),
        Prefix:  envStr("LOGIN_LIMIT_PREFIX", "login"),
    }
    if cfg.Max < 1 { cfg.Max = 1 }
    if cfg.Window < time.Second { cfg.Window = time.Second }
    return cfg
}

func envStr(k, d string) string { if v := os.Getenv(k); v != "" { return v }; return d }
func envBool(k string, d bool) bool {
    v := os.Getenv(k)
    if v == "" { return d }
    switch v {
    case "1","true","TRUE","True","yes","YES","on","ON": return true
    case "0","false","FALSE","False","no","NO","off","OFF": return false
    }
    return d
}
func envInt(k string, d int) int {
    v := os.Getenv(k); if v == "" { return d }
    if n, err := strconv.Atoi(v); err == nil { return n }
    return d
}
func envDur(k string, d time.Duration) time.Duration {
    v := os.Getenv(k); if v == "" { return d }
    if dur, err := time.ParseDuration(v); err == nil { return dur }
    return d
}
