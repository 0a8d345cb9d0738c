package fileengine

import (
	"errors"
	"path/filepath"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// DefaultSnapshotFileName is the name of the snapshot file unless WithSnapshotFileName says otherwise.
const DefaultSnapshotFileName = "snapshots.json"

var (
	// ErrEmptyDirectory is returned when a store is created without a directory.
	ErrEmptyDirectory = errors.New("directory must not be empty")

	// ErrInvalidSnapshotFileName is returned for an empty snapshot file name or one with a path separator.
	ErrInvalidSnapshotFileName = errors.New("snapshot file name must be a plain file name")

	// ErrCorruptFile is returned, joined with the failing operation's error, when a stored file cannot be decoded.
	ErrCorruptFile = errors.New("stored file is corrupt")
)

// Option defines a functional option for configuring the file stores.
type Option func(*options) error

type options struct {
	logger           eventstore.Logger
	snapshotFileName string
}

// WithLogger sets the logger for operational messages.
func WithLogger(logger eventstore.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithSnapshotFileName sets the name of the snapshot file inside the directory.
func WithSnapshotFileName(name string) Option {
	return func(o *options) error {
		if name == "" || filepath.Base(name) != name {
			return ErrInvalidSnapshotFileName
		}

		o.snapshotFileName = name

		return nil
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{snapshotFileName: DefaultSnapshotFileName}

	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return options{}, err
		}
	}

	return o, nil
}
