package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/authledger/internal/database"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
    Env          string        // application environment (e.g. "dev", "prod")
    Port         string        // HTTP port to listen on
    LogLevel     string        // zap level name
    DBDriver     string        // "mysql" or "sqlite3"
    DBDSN        string        // full DSN, overrides the DB_* parts below
    DBUser       string        // database username
    DBPass       string        // database password (optional)
    DBHost       string        // database host address
    DBPort       string        // database port number
    DBName       string        // database name
    BcryptCost   int           // bcrypt cost for password hashing
    PasswordHash string        // algorithm for new hashes: bcrypt or argon2id
    AuditLogPath string        // file the audit consumer appends to
    Events       bool          // publish version.recorded to RabbitMQ
    SweepEvery   time.Duration // credential sweep interval, 0 disables
}

// LoadDotEnv reads a .env file into the process environment when present.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) {
    if len(paths) == 0 {
        paths = []string{".env"}
    }
    for _, p := range paths {
        if _, err := os.Stat(p); err != nil {
            continue
        }
        if err := godotenv.Load(p); err != nil {
            log.Printf("config: cannot load %s: %v", p, err)
        }
    }
}

// DSN returns DB_DSN when set, otherwise a MySQL DSN from the DB_* parts.
func (c Config) DSN() string {
    if c.DBDSN != "" {
        return c.DBDSN
    }
    return database.MySQLDSN(c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

// Load reads configuration values from environment variables and returns a
// Config. Missing required variables cause a fatal log message.
func Load() Config {
    cfg := Config{
        Env:          getenv("APP_ENV", "dev"),
        Port:         getenv("APP_PORT", "8080"),
        LogLevel:     getenv("LOG_LEVEL", "info"),
        DBDriver:     getenv("DB_DRIVER", "mysql"),
        DBDSN:        os.Getenv("DB_DSN"),
        DBPass:       os.Getenv("DB_PASS"),
        BcryptCost:   envInt("BCRYPT_COST", 12),
        PasswordHash: getenv("PASSWORD_HASH", "bcrypt"),
        AuditLogPath: getenv("AUDIT_LOG_PATH", "logs/audit.log"),
        Events:       envBool("EVENTS_ENABLED", true),
        SweepEvery:   envDur("SWEEP_INTERVAL", 10*time.Minute),
    }
    if cfg.DBDSN == "" {
        cfg.DBUser = must("DB_USER")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    }
    return cfg
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}
