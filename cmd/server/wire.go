package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/config"
	"github.com/iliyamo/authledger/internal/database"
	"github.com/iliyamo/authledger/internal/lock"
	"github.com/iliyamo/authledger/internal/matrix"
	"github.com/iliyamo/authledger/internal/repository"
	"github.com/iliyamo/authledger/internal/schema"
	"github.com/iliyamo/authledger/internal/service"
	"github.com/iliyamo/authledger/internal/utils"
)

// services holds everything the commands share once wired.
type services struct {
	db       *sql.DB
	rdb      *redis.Client
	apps     *schema.Registry
	entities *repository.EntityRepo
	users    *repository.UserRepo
	tokens   *service.TokenManager
	versions *service.VersionEngine
	matrix   *matrix.Reconciler
	auth     config.AuthConfig
}

func (s *services) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	_ = s.db.Close()
}

// wire opens the database and Redis and builds the services. Without a
// reachable Redis the locks are in-process only.
func wire(ctx context.Context, cfg config.Config, log *zap.Logger) (*services, error) {
	auth, err := config.LoadAuthConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	s := &services{db: db, apps: schema.DefaultRegistry(), auth: auth}
	lockOpts := lock.Options{Wait: auth.LockWait, TTL: auth.LockTTL}
	var locks lock.Locker
	if s.rdb = config.NewRedisClient(ctx); s.rdb != nil {
		locks = lock.NewRedisLocker(s.rdb, "authledger:lock", lockOpts)
	} else {
		log.Warn("redis unavailable, using in-process locks and no login limit")
		locks = lock.NewLocalLocker(lockOpts)
	}

	var pub service.Publisher = service.NopPublisher{}
	if cfg.Events {
		pub = &service.AMQPPublisher{URL: config.AMQPURL(), Log: log}
	}

	hasher := &utils.Hasher{Algorithm: cfg.PasswordHash, BcryptCost: cfg.BcryptCost}
	s.entities = repository.NewEntityRepo(db)
	s.users = repository.NewUserRepo(db)
	s.tokens = service.NewTokenManager(
		s.users,
		repository.NewPasswordRepo(db),
		repository.NewTokenRepo(db),
		locks, hasher, auth, log.Named("tokens"))
	s.versions = service.NewVersionEngine(s.apps, s.entities, repository.NewVersionRepo(db), locks, pub, log.Named("versions"))
	s.matrix = matrix.NewReconciler(s.apps, s.entities, nil)
	return s, nil
}
