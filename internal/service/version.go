package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/lock"
	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/queue"
	"github.com/iliyamo/authledger/internal/repository"
	"github.com/iliyamo/authledger/internal/schema"
)

// EntityReader loads the current state of a versioned entity.
type EntityReader interface {
	State(ctx context.Context, app schema.App, id uint64) (model.Snapshot, error)
}

// VersionStore reads and appends version rows.
type VersionStore interface {
	List(ctx context.Context, app schema.App, regID uint64) ([]model.Version, error)
	Insert(ctx context.Context, app schema.App, v model.Version) (uint64, error)
}

// VersionEngine records field-level deltas of versioned entities and
// rebuilds any past state by replaying them.
type VersionEngine struct {
	apps      *schema.Registry
	entities  EntityReader
	versions  VersionStore
	locks     lock.Locker
	publisher Publisher
	log       *zap.Logger

	// Clock returns the current time. Tests replace it.
	Clock func() time.Time
}

// NewVersionEngine wires a version engine. A nil publisher disables events.
func NewVersionEngine(apps *schema.Registry, entities EntityReader, versions VersionStore,
	locks lock.Locker, publisher Publisher, log *zap.Logger) *VersionEngine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VersionEngine{
		apps:      apps,
		entities:  entities,
		versions:  versions,
		locks:     locks,
		publisher: publisher,
		log:       log,
		Clock:     time.Now,
	}
}

// VersionLockName is the lock serializing appends to one entity's trail.
func VersionLockName(app string, id uint64) string {
	return fmt.Sprintf("version:%s:%d", app, id)
}

// MakeVersion records the baseline of an entity that has no trail yet.
func (e *VersionEngine) MakeVersion(ctx context.Context, appName string, id, userID uint64) (model.VersionState, error) {
	app, err := e.apps.App(appName)
	if err != nil {
		return model.VersionState{}, err
	}
	var out model.VersionState
	err = e.withLock(ctx, app, id, func() error {
		trail, err := e.load(ctx, app, id)
		if err != nil {
			return err
		}
		if len(trail) > 0 {
			return ErrVersionExists
		}
		cur, err := e.entities.State(ctx, app, id)
		if err != nil {
			return err
		}
		out, err = e.record(ctx, app, id, userID, nil, model.Snapshot{}, cur)
		return err
	})
	return out, err
}

// AddVersion appends the delta between the entity's current state and the
// last recorded one. It reports false when nothing changed; an entity
// without a trail gets its baseline.
func (e *VersionEngine) AddVersion(ctx context.Context, appName string, id, userID uint64) (model.VersionState, bool, error) {
	return e.Mutate(ctx, appName, id, userID, nil)
}

// Mutate runs fn and then records the resulting version, all under the
// entity's version lock, so the write and its version are attributed to
// the same user. An error from fn is returned as is and nothing is
// recorded. A nil fn behaves like AddVersion.
func (e *VersionEngine) Mutate(ctx context.Context, appName string, id, userID uint64,
	fn func(ctx context.Context) error) (model.VersionState, bool, error) {
	app, err := e.apps.App(appName)
	if err != nil {
		return model.VersionState{}, false, err
	}
	var (
		out     model.VersionState
		created bool
	)
	err = e.withLock(ctx, app, id, func() error {
		if fn != nil {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		var err error
		out, created, err = e.appendVersion(ctx, app, id, userID)
		return err
	})
	return out, created, err
}

// appendVersion records the entity's current state if it differs from the last
// version. The caller holds the version lock.
func (e *VersionEngine) appendVersion(ctx context.Context, app schema.App, id, userID uint64) (model.VersionState, bool, error) {
	trail, err := e.load(ctx, app, id)
	if err != nil {
		return model.VersionState{}, false, err
	}
	cur, err := e.entities.State(ctx, app, id)
	if err != nil {
		return model.VersionState{}, false, err
	}
	var last *model.VersionState
	prev := model.Snapshot{}
	if len(trail) > 0 {
		last = &trail[len(trail)-1]
		prev = last.State
		if !model.Diff(prev, cur).Changed(prev) {
			return *last, false, nil
		}
	}
	out, err := e.record(ctx, app, id, userID, last, prev, cur)
	if err != nil {
		return model.VersionState{}, false, err
	}
	return out, true, nil
}

// GetVersion rebuilds the entity as of seq. A seq past the end yields the
// latest state.
func (e *VersionEngine) GetVersion(ctx context.Context, appName string, id uint64, seq int) (model.VersionState, error) {
	trail, err := e.History(ctx, appName, id)
	if err != nil {
		return model.VersionState{}, err
	}
	if seq < 0 {
		seq = 0
	}
	if seq >= len(trail) {
		seq = len(trail) - 1
	}
	return trail[seq], nil
}

// History returns every version of the entity with its rebuilt state.
func (e *VersionEngine) History(ctx context.Context, appName string, id uint64) ([]model.VersionState, error) {
	app, err := e.apps.App(appName)
	if err != nil {
		return nil, err
	}
	trail, err := e.load(ctx, app, id)
	if err != nil {
		return nil, err
	}
	if len(trail) == 0 {
		return nil, fmt.Errorf("%w: no versions for %s/%d", repository.ErrNotFound, app.Name, id)
	}
	return trail, nil
}

func (e *VersionEngine) withLock(ctx context.Context, app schema.App, id uint64, fn func() error) error {
	lease, err := e.locks.Acquire(ctx, VersionLockName(app.Name, id))
	if err != nil {
		return internalErr(e.log, "acquire version lock", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("release version lock", zap.Error(err))
		}
	}()
	return fn()
}

// load reads and verifies the whole trail of one entity.
func (e *VersionEngine) load(ctx context.Context, app schema.App, id uint64) ([]model.VersionState, error) {
	rows, err := e.versions.List(ctx, app, id)
	if err != nil {
		return nil, internalErr(e.log, "list versions", err)
	}
	trail, err := Replay(rows)
	if err != nil {
		return nil, internalErr(e.log, fmt.Sprintf("replay %s/%d", app.Name, id), err)
	}
	return trail, nil
}

func (e *VersionEngine) record(ctx context.Context, app schema.App, id, userID uint64,
	last *model.VersionState, prev, cur model.Snapshot) (model.VersionState, error) {
	cs := model.Diff(prev, cur)
	data, err := json.Marshal(cs)
	if err != nil {
		return model.VersionState{}, internalErr(e.log, "encode change set", err)
	}
	v := model.Version{
		RegID:    id,
		UserID:   userID,
		Datetime: e.Clock().UTC().Truncate(time.Second),
		Data:     string(data),
	}
	prevHash := ""
	if last != nil {
		v.Seq = last.Seq + 1
		prevHash = last.Hash
		// the trail never goes back in time, even if the clock does
		if v.Datetime.Before(last.Datetime) {
			v.Datetime = last.Datetime
		}
	}
	v.Hash = ChainHash(v, prevHash)
	if v.ID, err = e.versions.Insert(ctx, app, v); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.VersionState{}, internalErr(e.log, "insert version", fmt.Errorf("%w: ver_id %d taken", ErrIntegrity, v.Seq))
		}
		return model.VersionState{}, internalErr(e.log, "insert version", err)
	}
	e.log.Info("version recorded", zap.String("app", app.Name), zap.Uint64("reg_id", id), zap.Int("ver_id", v.Seq))
	e.publish(ctx, app, v, cs)

	return model.VersionState{
		Seq:      v.Seq,
		UserID:   v.UserID,
		Datetime: v.Datetime,
		Hash:     v.Hash,
		Changes:  cs,
		State:    prev.Apply(cs),
	}, nil
}

func (e *VersionEngine) publish(ctx context.Context, app schema.App, v model.Version, cs model.ChangeSet) {
	tables := make([]string, 0, len(cs))
	for name, rows := range cs {
		for _, delta := range rows {
			if len(delta) > 0 {
				tables = append(tables, name)
				break
			}
		}
	}
	sort.Strings(tables)
	ev := queue.VersionRecordedEvent{
		App:        app.Name,
		RegID:      v.RegID,
		Seq:        v.Seq,
		UserID:     v.UserID,
		Hash:       v.Hash,
		Tables:     tables,
		RecordedAt: v.Datetime.Format(time.RFC3339),
	}
	if err := e.publisher.PublishVersionRecorded(ctx, ev); err != nil {
		e.log.Warn("publish version.recorded failed", zap.String("app", app.Name), zap.Uint64("reg_id", v.RegID), zap.Error(err))
	}
}

// chainInput is the canonical form hashed for each version.
type chainInput struct {
	UserID   uint64 `json:"user_id"`
	Datetime string `json:"datetime"`
	RegID    uint64 `json:"reg_id"`
	VerID    int    `json:"ver_id"`
	Data     string `json:"data"`
	Prev     string `json:"prev"`
}

// ChainHash links a version to its predecessor's hash.
func ChainHash(v model.Version, prevHash string) string {
	b, _ := json.Marshal(chainInput{
		UserID:   v.UserID,
		Datetime: v.Datetime.UTC().Format(model.DatetimeLayout),
		RegID:    v.RegID,
		VerID:    v.Seq,
		Data:     v.Data,
		Prev:     prevHash,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Replay verifies a trail in append order and folds its change sets.
// Versions must be numbered 0, 1, 2... with non-decreasing datetimes and
// an intact hash chain.
func Replay(rows []model.Version) ([]model.VersionState, error) {
	out := make([]model.VersionState, 0, len(rows))
	state := model.Snapshot{}
	prevHash := ""
	var last time.Time
	for i, v := range rows {
		if v.Seq != i {
			return nil, fmt.Errorf("%w: expected ver_id %d, found %d", ErrIntegrity, i, v.Seq)
		}
		if i > 0 && v.Datetime.Before(last) {
			return nil, fmt.Errorf("%w: ver_id %d goes back in time", ErrIntegrity, v.Seq)
		}
		if ChainHash(v, prevHash) != v.Hash {
			return nil, fmt.Errorf("%w: hash mismatch at ver_id %d", ErrIntegrity, v.Seq)
		}
		var cs model.ChangeSet
		if err := json.Unmarshal([]byte(v.Data), &cs); err != nil {
			return nil, fmt.Errorf("%w: ver_id %d: %v", ErrIntegrity, v.Seq, err)
		}
		state = state.Apply(cs)
		out = append(out, model.VersionState{
			Seq:      v.Seq,
			UserID:   v.UserID,
			Datetime: v.Datetime.UTC(),
			Hash:     v.Hash,
			Changes:  cs,
			State:    state,
		})
		prevHash = v.Hash
		last = v.Datetime
	}
	return out, nil
}
