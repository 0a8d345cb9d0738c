package fileengine

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

const (
	logMsgEventsAppended      = "eventstore operation: events appended"
	logMsgConcurrencyConflict = "eventstore operation: concurrency conflict detected"
	logMsgSnapshotSaved       = "snapshot store operation: snapshot saved"
	logMsgStaleSnapshot       = "snapshot store operation: stale snapshot ignored"
	logAttrAggregateID        = "aggregate_id"
	logAttrEventCount         = "event_count"
	logAttrExpectedVersion    = "expected_version"
	logAttrActualVersion      = "actual_version"
	logAttrVersion            = "version"

	streamFileSuffix = ".json"
	dirPerm          = 0o750
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

type eventRecord struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Sequence      uint64          `json:"sequence"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata"`
}

type snapshotRecord struct {
	AggregateType string          `json:"aggregate_type"`
	Version       uint64          `json:"version"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EventStore keeps every event stream in its own JSON file.
type EventStore struct {
	mu     sync.RWMutex
	dir    string
	logger eventstore.Logger
}

// NewEventStore creates an event store in dir, creating the directory if it does not exist.
func NewEventStore(dir string, opts ...Option) (*EventStore, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	return &EventStore{dir: dir, logger: o.logger}, nil
}

// Append appends events to the stream of aggregateID if its latest sequence equals expectedVersion.
func (s *EventStore) Append(
	ctx context.Context,
	aggregateID uuid.UUID,
	expectedVersion uint64,
	events eventstore.StorableEvents,
) error {

	if err := ctx.Err(); err != nil {
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	if len(events) == 0 {
		return nil
	}

	if err := eventstore.ValidateAppend(aggregateID, expectedVersion, events); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readStream(aggregateID)
	if err != nil {
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	actualVersion := uint64(0)
	if len(records) > 0 {
		actualVersion = records[len(records)-1].Sequence
	}

	if actualVersion != expectedVersion {
		s.logInfo(
			logMsgConcurrencyConflict,
			logAttrAggregateID, aggregateID.String(),
			logAttrExpectedVersion, expectedVersion,
			logAttrActualVersion, actualVersion,
		)

		return eventstore.ErrConcurrencyConflict
	}

	for _, event := range events {
		records = append(records, toEventRecord(event))
	}

	data, err := codec.Marshal(records)
	if err != nil {
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	if err := writeFileAtomically(s.streamPath(aggregateID), data); err != nil {
		return errors.Join(eventstore.ErrAppendingEventFailed, err)
	}

	s.logInfo(logMsgEventsAppended, logAttrAggregateID, aggregateID.String(), logAttrEventCount, len(events))

	return nil
}

// ReadFrom returns the events of aggregateID with sequence > afterVersion in ascending order.
func (s *EventStore) ReadFrom(
	ctx context.Context,
	aggregateID uuid.UUID,
	afterVersion uint64,
) (eventstore.StorableEvents, error) {

	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.readStream(aggregateID)
	if err != nil {
		return nil, errors.Join(eventstore.ErrQueryingEventsFailed, err)
	}

	events := eventstore.StorableEvents{}
	for _, record := range records {
		if record.Sequence <= afterVersion {
			continue
		}

		event, buildErr := eventstore.BuildStorableEvent(
			record.EventID,
			record.AggregateID,
			record.AggregateType,
			record.Sequence,
			record.EventType,
			record.OccurredAt,
			record.Payload,
			record.Metadata,
		)
		if buildErr != nil {
			return nil, errors.Join(eventstore.ErrQueryingEventsFailed, eventstore.ErrBuildingStorableEventFailed, buildErr)
		}

		events = append(events, event)
	}

	return events, nil
}

func (s *EventStore) readStream(aggregateID uuid.UUID) ([]eventRecord, error) {
	data, err := os.ReadFile(s.streamPath(aggregateID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	var records []eventRecord
	if err := codec.Unmarshal(data, &records); err != nil {
		return nil, errors.Join(ErrCorruptFile, err)
	}

	return records, nil
}

func (s *EventStore) streamPath(aggregateID uuid.UUID) string {
	return filepath.Join(s.dir, aggregateID.String()+streamFileSuffix)
}

func (s *EventStore) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

// SnapshotStore keeps the latest snapshot of every aggregate in one JSON file.
type SnapshotStore struct {
	mu     sync.RWMutex
	path   string
	logger eventstore.Logger
}

// NewSnapshotStore creates a snapshot store whose file lives in dir, creating the directory if it does not exist.
func NewSnapshotStore(dir string, opts ...Option) (*SnapshotStore, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	return &SnapshotStore{path: filepath.Join(dir, o.snapshotFileName), logger: o.logger}, nil
}

// Save stores the snapshot unless a snapshot with a higher version is already stored.
func (s *SnapshotStore) Save(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	if err := snapshot.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	key := snapshot.AggregateID.String()

	if existing, ok := records[key]; ok && existing.Version > snapshot.Version {
		if s.logger != nil {
			s.logger.Debug(logMsgStaleSnapshot, logAttrAggregateID, key, logAttrVersion, snapshot.Version)
		}

		return nil
	}

	records[key] = snapshotRecord{
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		Data:          snapshot.Data,
		CreatedAt:     snapshot.CreatedAt,
	}

	data, err := codec.Marshal(records)
	if err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	if err := writeFileAtomically(s.path, data); err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	if s.logger != nil {
		s.logger.Info(logMsgSnapshotSaved, logAttrAggregateID, key, logAttrVersion, snapshot.Version)
	}

	return nil
}

// Load returns the stored snapshot of aggregateID, or nil if there is none.
func (s *SnapshotStore) Load(ctx context.Context, aggregateID uuid.UUID) (*eventstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.readAll()
	if err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, err)
	}

	record, ok := records[aggregateID.String()]
	if !ok {
		return nil, nil //nolint:nilnil // no snapshot is a regular result
	}

	snapshot, err := eventstore.BuildSnapshot(aggregateID, record.AggregateType, record.Version, record.Data, record.CreatedAt)
	if err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, ErrCorruptFile, err)
	}

	return &snapshot, nil
}

func (s *SnapshotStore) readAll() (map[string]snapshotRecord, error) {
	records := make(map[string]snapshotRecord)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}

	if err != nil {
		return nil, err
	}

	if err := codec.Unmarshal(data, &records); err != nil {
		return nil, errors.Join(ErrCorruptFile, err)
	}

	return records, nil
}

func toEventRecord(event eventstore.StorableEvent) eventRecord {
	return eventRecord{
		EventID:       event.EventID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		Sequence:      event.Sequence,
		EventType:     event.EventType,
		OccurredAt:    event.OccurredAt,
		Payload:       event.PayloadJSON,
		Metadata:      event.MetadataJSON,
	}
}

func ensureDir(dir string) error {
	if dir == "" {
		return ErrEmptyDirectory
	}

	return os.MkdirAll(dir, dirPerm)
}

// writeFileAtomically replaces path with data via a temporary file in the same directory.
func writeFileAtomically(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
