// Package fileengine provides eventstore.EventStore and eventstore.SnapshotStore implementations that keep
// their data as JSON files in a directory.
//
// Every event stream is one file named after the aggregate id, and all snapshots share one file. Files are
// rewritten through a temporary file and a rename, so readers never see a half written file. The stores
// serialize access within one process; two processes must not share a directory.
package fileengine
