// Package journal persists alerts, guard decisions and order outcomes in a WAL.
package journal

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

const (
	DefaultDir   = "./wal/journal"
	segmentLimit = 100
	maxSegments  = 10

	alertKeyPrefix    = "alert_"
	decisionKeyPrefix = "decision_"
	orderKeyPrefix    = "order_"
)

// Kind of a journal record.
type Kind string

const (
	KindAlert    Kind = "alert"
	KindDecision Kind = "decision"
	KindOrder    Kind = "order"
)

// Record is one journal entry with exactly one payload set.
type Record struct {
	Index    uint64
	Kind     Kind
	Symbol   string
	Alert    *domain.Alert
	Decision *domain.Decision
	Order    *domain.OrderOutcome
}

// WALStore persists journal records in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed journal.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init journal WAL")
	}

	return &WALStore{wal: wal}, nil
}

func (s *WALStore) SaveAlert(alert domain.Alert) error {
	return s.write(alertKeyPrefix, alert.Symbol, alert)
}

func (s *WALStore) SaveDecision(decision domain.Decision) error {
	return s.write(decisionKeyPrefix, decision.Symbol, decision)
}

func (s *WALStore) SaveOrder(outcome domain.OrderOutcome) error {
	return s.write(orderKeyPrefix, outcome.Symbol, outcome)
}

func (s *WALStore) write(prefix, symbol string, event any) error {
	if s == nil || s.wal == nil {
		return errors.New("journal is not initialized")
	}
	if symbol == "" {
		return errors.Errorf("%s record symbol is required", strings.TrimSuffix(prefix, "_"))
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal %s record", strings.TrimSuffix(prefix, "_"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, prefix+symbol, payload)
}

// EventsAfter returns all records written after the provided WAL index.
func (s *WALStore) EventsAfter(index uint64) ([]Record, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("journal is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			// evicted segment
			continue
		}

		rec, err := decode(idx, key, payload)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	return records, nil
}

func decode(idx uint64, key string, payload []byte) (*Record, error) {
	switch {
	case strings.HasPrefix(key, alertKeyPrefix):
		var a domain.Alert
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, errors.Wrap(err, "decode alert record")
		}
		return &Record{Index: idx, Kind: KindAlert, Symbol: strings.TrimPrefix(key, alertKeyPrefix), Alert: &a}, nil
	case strings.HasPrefix(key, decisionKeyPrefix):
		var d domain.Decision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, errors.Wrap(err, "decode decision record")
		}
		return &Record{Index: idx, Kind: KindDecision, Symbol: strings.TrimPrefix(key, decisionKeyPrefix), Decision: &d}, nil
	case strings.HasPrefix(key, orderKeyPrefix):
		var o domain.OrderOutcome
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, errors.Wrap(err, "decode order record")
		}
		return &Record{Index: idx, Kind: KindOrder, Symbol: strings.TrimPrefix(key, orderKeyPrefix), Order: &o}, nil
	}
	return nil, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("journal is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
