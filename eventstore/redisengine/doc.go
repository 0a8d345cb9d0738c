// Package redisengine provides a Redis implementation of eventstore.SnapshotStore.
//
// Each aggregate's latest snapshot lives in one hash, keyed "<prefix>:<aggregate id>". Saving runs a
// Lua script that compares the stored version with the new one and only writes a newer snapshot, so
// concurrent savers can never move a snapshot backwards. An optional TTL lets Redis evict snapshots of
// idle aggregates; a missing snapshot only means a longer replay.
package redisengine
