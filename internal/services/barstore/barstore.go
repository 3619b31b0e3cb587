// Package barstore keeps a bounded, time-ordered bar window per symbol.
package barstore

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// DefaultCapacity number of bars retained per symbol.
const DefaultCapacity = 200

// Store holds one window per symbol.
// Each window is published as an immutable slice and replaced on every write,
// so readers never observe a partially updated bar.
type Store struct {
	capacity int
	interval time.Duration

	mu      sync.RWMutex
	windows map[string]*window
}

type window struct {
	mu   sync.RWMutex
	bars []domain.Bar
	// provisional is true when the last bar is still forming.
	provisional bool
}

// New creates a store. interval is the bar period used to match provisional
// updates to the forming bar; zero means exact open time equality.
func New(capacity int, interval time.Duration) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		interval: interval,
		windows:  make(map[string]*window),
	}
}

// Capacity returns the per-symbol bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// AppendClosed adds a finalized bar.
// A provisional bar for the same period is finalized in place. A provisional
// bar from an earlier period is kept as history in its last known state.
func (s *Store) AppendClosed(symbol string, bar domain.Bar) error {
	if err := bar.Validate(); err != nil {
		return errors.Wrapf(err, "append closed bar for %s", symbol)
	}

	w := s.window(symbol, true)
	w.mu.Lock()
	defer w.mu.Unlock()

	history := w.closedBars()
	if n := len(history); n > 0 && !bar.OpenTime.After(history[n-1].OpenTime) {
		return errors.Wrapf(domain.ErrInvalidBar,
			"%s: closed bar at %s is not after last closed bar at %s",
			symbol, bar.OpenTime.UTC().Format(time.RFC3339), history[n-1].OpenTime.UTC().Format(time.RFC3339))
	}

	if w.provisional {
		last := w.bars[len(w.bars)-1]
		if !s.samePeriod(last.OpenTime, bar.OpenTime) && bar.OpenTime.Before(last.OpenTime) {
			return errors.Wrapf(domain.ErrInvalidBar,
				"%s: closed bar at %s precedes forming bar at %s",
				symbol, bar.OpenTime.UTC().Format(time.RFC3339), last.OpenTime.UTC().Format(time.RFC3339))
		}
	}

	w.publish(s.historyBefore(w, bar.OpenTime), bar, false, s.capacity)
	return nil
}

// UpsertProvisional replaces the forming bar when bar belongs to the same
// period, otherwise appends it as the new forming bar. A forming bar of an
// earlier period whose close was never delivered becomes history.
func (s *Store) UpsertProvisional(symbol string, bar domain.Bar) error {
	if err := bar.Validate(); err != nil {
		return errors.Wrapf(err, "upsert provisional bar for %s", symbol)
	}

	w := s.window(symbol, true)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.provisional {
		last := w.bars[len(w.bars)-1]
		if !s.samePeriod(last.OpenTime, bar.OpenTime) && bar.OpenTime.Before(last.OpenTime) {
			return errors.Wrapf(domain.ErrInvalidBar,
				"%s: provisional bar at %s precedes forming bar at %s",
				symbol, bar.OpenTime.UTC().Format(time.RFC3339), last.OpenTime.UTC().Format(time.RFC3339))
		}
	}

	history := w.closedBars()
	if n := len(history); n > 0 && !bar.OpenTime.After(history[n-1].OpenTime) {
		return errors.Wrapf(domain.ErrInvalidBar,
			"%s: provisional bar at %s is not after last closed bar at %s",
			symbol, bar.OpenTime.UTC().Format(time.RFC3339), history[n-1].OpenTime.UTC().Format(time.RFC3339))
	}
	if n := len(history); n > 0 && s.samePeriod(history[n-1].OpenTime, bar.OpenTime) {
		return errors.Wrapf(domain.ErrInvalidBar, "%s: period of %s is already closed",
			symbol, bar.OpenTime.UTC().Format(time.RFC3339))
	}

	w.publish(s.historyBefore(w, bar.OpenTime), bar, true, s.capacity)
	return nil
}

// Apply routes a feed update. closed reports whether the update finalized a bar.
func (s *Store) Apply(u domain.BarUpdate) (closed bool, err error) {
	if u.Closed {
		return true, s.AppendClosed(u.Symbol, u.Bar)
	}
	return false, s.UpsertProvisional(u.Symbol, u.Bar)
}

// Snapshot returns a copy of the last n bars including a forming bar.
// n <= 0 returns the whole window.
func (s *Store) Snapshot(symbol string, n int) []domain.Bar {
	bars, _ := s.load(symbol)
	return tail(bars, n)
}

// Closed returns a copy of the last n finalized bars.
func (s *Store) Closed(symbol string, n int) []domain.Bar {
	bars, provisional := s.load(symbol)
	if provisional {
		bars = bars[:len(bars)-1]
	}
	return tail(bars, n)
}

// Last returns the newest bar and whether it is still forming.
func (s *Store) Last(symbol string) (bar domain.Bar, provisional bool, ok bool) {
	bars, provisional := s.load(symbol)
	if len(bars) == 0 {
		return domain.Bar{}, false, false
	}
	return bars[len(bars)-1], provisional, true
}

// Len returns the number of bars held for symbol.
func (s *Store) Len(symbol string) int {
	bars, _ := s.load(symbol)
	return len(bars)
}

// Symbols lists symbols with a window, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.windows))
	for symbol := range s.windows {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func (s *Store) window(symbol string, create bool) *window {
	s.mu.RLock()
	w, ok := s.windows[symbol]
	s.mu.RUnlock()
	if ok || !create {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[symbol]; ok {
		return w
	}
	w = &window{}
	s.windows[symbol] = w
	return w
}

// load returns the published slice, which must not be modified.
func (s *Store) load(symbol string) ([]domain.Bar, bool) {
	w := s.window(symbol, false)
	if w == nil {
		return nil, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bars, w.provisional
}

func (s *Store) samePeriod(a, b time.Time) bool {
	if s.interval <= 0 {
		return a.Equal(b)
	}
	return a.Truncate(s.interval).Equal(b.Truncate(s.interval))
}

// historyBefore returns the bars kept ahead of a bar opening at openTime. A
// forming bar of another period stays in the window. Caller holds w.mu.
func (s *Store) historyBefore(w *window, openTime time.Time) []domain.Bar {
	if w.provisional && !s.samePeriod(w.bars[len(w.bars)-1].OpenTime, openTime) {
		return w.bars
	}
	return w.closedBars()
}

// closedBars returns the published bars without a forming tail. Caller holds w.mu.
func (w *window) closedBars() []domain.Bar {
	if w.provisional {
		return w.bars[:len(w.bars)-1]
	}
	return w.bars
}

// publish swaps in a fresh slice of history plus bar. Caller holds w.mu.
func (w *window) publish(history []domain.Bar, bar domain.Bar, provisional bool, capacity int) {
	next := make([]domain.Bar, 0, capacity)
	if drop := len(history) + 1 - capacity; drop > 0 {
		history = history[drop:]
	}
	next = append(next, history...)
	next = append(next, bar)

	w.bars = next
	w.provisional = provisional
}

func tail(bars []domain.Bar, n int) []domain.Bar {
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}
	out := make([]domain.Bar, n)
	copy(out, bars[len(bars)-n:])
	return out
}
