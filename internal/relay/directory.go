package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"ideasync/internal/collab"
	"ideasync/internal/models"
	"ideasync/internal/redis"
	"ideasync/internal/storage"
)

const snapshotCacheTTL = 30 * time.Minute

var ErrUnknownSession = errors.New("session not found")

// Directory holds the latest snapshot announced for each session so that
// other processes can discover and join it.
type Directory interface {
	Save(ctx context.Context, session *models.Session) error
	Load(ctx context.Context, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
}

// memoryDirectory keeps snapshots for the lifetime of the process.
type memoryDirectory struct {
	store *collab.Store
}

func NewMemoryDirectory() Directory {
	return &memoryDirectory{store: collab.NewStore()}
}

func (d *memoryDirectory) Save(_ context.Context, session *models.Session) error {
	d.store.Put(session)
	for _, p := range session.Participants {
		d.store.Index(p.UserID, session.ID)
	}
	return nil
}

func (d *memoryDirectory) Load(_ context.Context, sessionID string) (*models.Session, error) {
	se, ok := d.store.Get(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	return se, nil
}

func (d *memoryDirectory) ListByUser(_ context.Context, userID string) ([]*models.Session, error) {
	return d.store.SessionsFor(userID), nil
}

// sqlDirectory persists snapshots through storage and, when a Redis client
// is given, serves reads from a write-through cache.
type sqlDirectory struct {
	snapshots *storage.SnapshotStore
	cache     *redis.Client
}

func NewSQLDirectory(snapshots *storage.SnapshotStore, cache *redis.Client) Directory {
	return &sqlDirectory{snapshots: snapshots, cache: cache}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("ideasync:snapshot:%s", sessionID)
}

func (d *sqlDirectory) Save(ctx context.Context, session *models.Session) error {
	if err := d.snapshots.Save(ctx, session); err != nil {
		return err
	}
	d.cacheSnapshot(ctx, session)
	return nil
}

func (d *sqlDirectory) Load(ctx context.Context, sessionID string) (*models.Session, error) {
	if se, ok := d.loadCached(ctx, sessionID); ok {
		return se, nil
	}
	se, err := d.snapshots.Load(ctx, sessionID)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		return nil, ErrUnknownSession
	}
	if err != nil {
		return nil, err
	}
	d.cacheSnapshot(ctx, se)
	return se, nil
}

func (d *sqlDirectory) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return d.snapshots.ListByUser(ctx, userID)
}

func (d *sqlDirectory) cacheSnapshot(ctx context.Context, session *models.Session) {
	if d.cache == nil {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		glog.Errorf("[relay]snapshot cache marshal: %v", err)
		return
	}
	if err := d.cache.Set(ctx, snapshotKey(session.ID), data, snapshotCacheTTL); err != nil {
		glog.Warningf("[relay]snapshot cache %s: %v", session.ID, err)
	}
}

func (d *sqlDirectory) loadCached(ctx context.Context, sessionID string) (*models.Session, bool) {
	if d.cache == nil {
		return nil, false
	}
	raw, err := d.cache.Get(ctx, snapshotKey(sessionID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			glog.Warningf("[relay]snapshot cache load %s: %v", sessionID, err)
		}
		return nil, false
	}
	var se models.Session
	if err := json.Unmarshal([]byte(raw), &se); err != nil {
		glog.Warningf("[relay]snapshot cache decode %s: %v", sessionID, err)
		return nil, false
	}
	return &se, true
}
