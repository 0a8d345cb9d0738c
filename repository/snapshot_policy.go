package repository

// SnapshotPolicy decides after a successful save whether a snapshot is taken.
//
// previousVersion is the version the save started from and currentVersion the version after it.
type SnapshotPolicy interface {
	ShouldSnapshot(previousVersion, currentVersion uint64) bool
}

// SnapshotPolicyFunc adapts a function to the SnapshotPolicy interface.
type SnapshotPolicyFunc func(previousVersion, currentVersion uint64) bool

// ShouldSnapshot calls f.
func (f SnapshotPolicyFunc) ShouldSnapshot(previousVersion, currentVersion uint64) bool {
	return f(previousVersion, currentVersion)
}

// EveryNEvents takes a snapshot whenever a save crosses a multiple of n, so that at most n-1 events
// have to be replayed on top of the latest snapshot. n == 0 never snapshots.
func EveryNEvents(n uint64) SnapshotPolicy {
	return SnapshotPolicyFunc(func(previousVersion, currentVersion uint64) bool {
		if n == 0 {
			return false
		}

		return currentVersion/n > previousVersion/n
	})
}

// EverySave takes a snapshot after every save that appended events.
func EverySave() SnapshotPolicy {
	return SnapshotPolicyFunc(func(previousVersion, currentVersion uint64) bool {
		return currentVersion > previousVersion
	})
}

// NeverSnapshot never takes snapshots.
func NeverSnapshot() SnapshotPolicy {
	return SnapshotPolicyFunc(func(uint64, uint64) bool {
		return false
	})
}
