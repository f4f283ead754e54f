package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"
)

const (
	segmentThreshold = 1000
	maxSegments      = 100

	eventKeyPrefix = "event_"
)

// Journal persists emitted events in a WAL and mirrors them to the log.
type Journal struct {
	mu  sync.Mutex
	wal *gowal.Wal
	l   *zap.Logger
}

// NewJournal opens (or creates) the WAL-backed event journal in dir.
func NewJournal(dir string, l *zap.Logger) (*Journal, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "event_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init event journal WAL")
	}

	return &Journal{wal: wal, l: l}, nil
}

// Append writes the event to the WAL and logs it.
func (j *Journal) Append(e Event) error {
	if j == nil || j.wal == nil {
		return errors.New("event journal is not initialized")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	key := fmt.Sprintf("%s%s_%s", eventKeyPrefix, e.Type, e.ID)

	j.mu.Lock()
	defer j.mu.Unlock()

	next := j.wal.CurrentIndex() + 1
	if err := j.wal.Write(next, key, payload); err != nil {
		return errors.Wrap(err, "persist event")
	}

	fields := make([]zap.Field, 0, len(e.Attrs)+1)
	fields = append(fields, zap.String("event_id", e.ID))
	for k, v := range e.Attrs {
		fields = append(fields, zap.String(k, v))
	}
	j.l.Info(string(e.Type), fields...)
	return nil
}

// Replay calls fn for every journaled event in write order.
func (j *Journal) Replay(fn func(Event) error) error {
	if j == nil || j.wal == nil {
		return errors.New("event journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for msg := range j.wal.Iterator() {
		var e Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			return errors.Wrap(err, "decode journaled event")
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
