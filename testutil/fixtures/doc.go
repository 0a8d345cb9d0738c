// Package fixtures builds storable events and snapshots for the tests of the event store engines.
package fixtures
