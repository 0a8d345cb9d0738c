package redisengine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	fieldAggregateType = "aggregate_type"
	fieldVersion       = "version"
	fieldData          = "data"
	fieldCreatedAt     = "created_at"
)

// ErrCorruptSnapshot is returned by Load when a stored hash cannot be turned back into a snapshot.
var ErrCorruptSnapshot = errors.New("stored snapshot is corrupt")

// saveIfNewerLuaScript writes the snapshot hash unless a snapshot with the same or a higher version is stored.
// Returns 1 when written, 0 when skipped.
const saveIfNewerLuaScript = `
local key = KEYS[1]
local version = tonumber(ARGV[2])
local current = redis.call("HGET", key, "version")
if current and tonumber(current) >= version then
    return 0
end
redis.call("HSET", key, "aggregate_type", ARGV[1], "version", ARGV[2], "data", ARGV[3], "created_at", ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
    redis.call("PEXPIRE", key, ttl)
end
return 1
`

// SnapshotStore keeps the latest snapshot per aggregate in a Redis hash.
type SnapshotStore struct {
	client     redis.UniversalClient
	saveScript *redis.Script
	settings
}

// NewSnapshotStore creates a SnapshotStore on top of a redis client, cluster client or ring.
func NewSnapshotStore(client redis.UniversalClient, options ...Option) (*SnapshotStore, error) {
	if client == nil {
		return nil, ErrNilRedisClient
	}

	s := settings{keyPrefix: defaultKeyPrefix}
	for _, option := range options {
		if err := option(&s); err != nil {
			return nil, err
		}
	}

	return &SnapshotStore{
		client:     client,
		saveScript: redis.NewScript(saveIfNewerLuaScript),
		settings:   s,
	}, nil
}

// Key returns the key of the hash that holds the snapshot of aggregateID.
func (ss *SnapshotStore) Key(aggregateID uuid.UUID) string {
	return ss.keyPrefix + ":" + aggregateID.String()
}

// Save stores the snapshot unless a snapshot with the same or a higher version is already stored.
func (ss *SnapshotStore) Save(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}

	start := time.Now()

	written, err := ss.saveScript.Run(ctx, ss.client,
		[]string{ss.Key(snapshot.AggregateID)},
		snapshot.AggregateType,
		snapshot.Version,
		string(snapshot.Data),
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano),
		ss.ttl.Milliseconds(),
	).Int64()
	duration := time.Since(start)

	if err != nil {
		ss.logError(ctx, logMsgSaveFailed, err, logAttrAggregateID, snapshot.AggregateID.String())
		ss.recordDuration(ctx, metricSaveDuration, duration, statusError)

		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	ss.recordDuration(ctx, metricSaveDuration, duration, statusSuccess)

	if written == 0 {
		ss.logDebug(ctx, logMsgStaleSnapshotIgnored,
			logAttrAggregateID, snapshot.AggregateID.String(),
			logAttrVersion, snapshot.Version,
		)

		return nil
	}

	ss.logOperation(ctx, logMsgSnapshotSaved,
		logAttrAggregateID, snapshot.AggregateID.String(),
		logAttrVersion, snapshot.Version,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return nil
}

// Load returns the latest snapshot of the aggregate or nil if there is none.
func (ss *SnapshotStore) Load(ctx context.Context, aggregateID uuid.UUID) (*eventstore.Snapshot, error) {
	start := time.Now()

	fields, err := ss.client.HGetAll(ctx, ss.Key(aggregateID)).Result()
	duration := time.Since(start)

	if err != nil {
		ss.logError(ctx, logMsgLoadFailed, err, logAttrAggregateID, aggregateID.String())
		ss.recordDuration(ctx, metricLoadDuration, duration, statusError)

		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, err)
	}

	ss.recordDuration(ctx, metricLoadDuration, duration, statusSuccess)

	if len(fields) == 0 {
		return nil, nil //nolint:nilnil // no snapshot is not an error
	}

	snapshot, parseErr := parseSnapshot(aggregateID, fields)
	if parseErr != nil {
		ss.logError(ctx, logMsgLoadFailed, parseErr, logAttrAggregateID, aggregateID.String())
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, ErrCorruptSnapshot, parseErr)
	}

	ss.logDebug(ctx, logMsgSnapshotLoaded,
		logAttrAggregateID, aggregateID.String(),
		logAttrVersion, snapshot.Version,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return &snapshot, nil
}

func parseSnapshot(aggregateID uuid.UUID, fields map[string]string) (eventstore.Snapshot, error) {
	version, versionErr := strconv.ParseUint(fields[fieldVersion], 10, 64)
	if versionErr != nil {
		return eventstore.Snapshot{}, versionErr
	}

	createdAt, timeErr := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if timeErr != nil {
		return eventstore.Snapshot{}, timeErr
	}

	return eventstore.BuildSnapshot(aggregateID, fields[fieldAggregateType], version, []byte(fields[fieldData]), createdAt)
}
