package simstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

const defaultStateDir = "./wal/simulate"

// Store persists simulated futures account state so restarts keep the balance and open positions.
type Store struct {
	path string
}

// StateDir returns the directory for simulator state, PVSRA_SIMULATE_STATE_DIR overrides the default.
func StateDir() string {
	if dir := os.Getenv("PVSRA_SIMULATE_STATE_DIR"); dir != "" {
		return dir
	}
	return defaultStateDir
}

// NewStore creates a state store named after the account scope (for example the quote asset).
func NewStore(dir, scope string) (*Store, error) {
	if dir == "" {
		dir = StateDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "account"
	}

	return &Store{path: filepath.Join(dir, name+".json")}, nil
}

// State represents all persisted simulator data.
type State struct {
	Asset     string                     `json:"asset"`
	Balance   string                     `json:"balance"`
	Positions map[string]*StoredPosition `json:"positions,omitempty"`
}

// StoredPosition is a serializable snapshot of domain.Position.
type StoredPosition struct {
	UpdatedAt  time.Time           `json:"updated_at"`
	EntryPrice string              `json:"entry_price"`
	Amount     string              `json:"amount"`
	Margin     string              `json:"margin"`
	Side       domain.PositionSide `json:"side"`
}

// Load reads simulator state from disk. A missing file is not an error.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes simulator state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

// NewStoredPosition converts a position and its locked margin into the stored representation.
func NewStoredPosition(pos *domain.Position, margin decimal.Decimal) *StoredPosition {
	if pos == nil {
		return nil
	}

	return &StoredPosition{
		EntryPrice: pos.EntryPrice.String(),
		Amount:     pos.Amount.String(),
		Margin:     margin.String(),
		UpdatedAt:  pos.UpdatedAt,
		Side:       pos.Side,
	}
}

// ToPosition reconstructs the position and its locked margin.
func (sp *StoredPosition) ToPosition(symbol string) (*domain.Position, decimal.Decimal, error) {
	if sp == nil {
		return nil, decimal.Zero, nil
	}

	entryPrice, err := decimal.NewFromString(sp.EntryPrice)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "decode position entry price")
	}

	amount, err := decimal.NewFromString(sp.Amount)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "decode position amount")
	}

	margin := decimal.Zero
	if sp.Margin != "" {
		margin, err = decimal.NewFromString(sp.Margin)
		if err != nil {
			return nil, decimal.Zero, errors.Wrap(err, "decode position margin")
		}
	}

	if sp.Side == domain.PositionSideShort {
		amount = amount.Neg()
	}

	pos, err := domain.NewPositionFromExternalSnapshot(symbol, amount, entryPrice, decimal.Zero, sp.UpdatedAt)
	if err != nil {
		return nil, decimal.Zero, err
	}

	return pos, margin, nil
}

func sanitizeScope(scope string) string {
	scope = strings.TrimSpace(strings.ToLower(scope))
	if scope == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range scope {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return b.String()
}
