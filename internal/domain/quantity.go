package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// SymbolFilters exchange quantity constraints for a symbol.
type SymbolFilters struct {
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// Validate rejects filters that cannot produce a legal quantity.
func (f SymbolFilters) Validate() error {
	if !f.StepSize.IsPositive() {
		return errors.Wrapf(ErrInvalidFilters, "step size must be positive, got %s", f.StepSize)
	}
	if f.MinQty.IsNegative() {
		return errors.Wrapf(ErrInvalidFilters, "min qty must not be negative, got %s", f.MinQty)
	}
	if f.MinNotional.IsNegative() {
		return errors.Wrapf(ErrInvalidFilters, "min notional must not be negative, got %s", f.MinNotional)
	}
	return nil
}

// PositionSizeRequest input of Quantize.
type PositionSizeRequest struct {
	TargetNotional decimal.Decimal
	ReferencePrice decimal.Decimal
	Filters        SymbolFilters
}

// PositionSizeResult exchange-legal quantity for a request.
type PositionSizeResult struct {
	Quantity             decimal.Decimal
	AchievedNotional     decimal.Decimal
	SatisfiesMinNotional bool
}

// Quantize converts a target notional into a quantity that respects step size,
// min quantity and min notional.
//
// The quantity is rounded half-to-even in step units, clamped to min qty and,
// if the notional is still short, recomputed once from min notional. When even
// that pass cannot reach min notional the result is returned together with
// ErrUnsatisfiableNotional and must not be traded.
func Quantize(req PositionSizeRequest) (PositionSizeResult, error) {
	if err := req.Filters.Validate(); err != nil {
		return PositionSizeResult{}, err
	}
	if !req.ReferencePrice.IsPositive() {
		return PositionSizeResult{}, errors.Errorf("reference price must be positive, got %s", req.ReferencePrice)
	}
	if !req.TargetNotional.IsPositive() {
		return PositionSizeResult{}, errors.Errorf("target notional must be positive, got %s", req.TargetNotional)
	}

	f := req.Filters
	price := req.ReferencePrice

	qty := roundToStep(req.TargetNotional.Div(price), f.StepSize)
	qty = decimal.Max(qty, f.MinQty)

	if qty.Mul(price).LessThan(f.MinNotional) {
		qty = roundToStep(f.MinNotional.Div(price), f.StepSize)
		qty = decimal.Max(qty, f.MinQty)
	}

	notional := qty.Mul(price)
	res := PositionSizeResult{
		Quantity:             qty,
		AchievedNotional:     notional,
		SatisfiesMinNotional: notional.GreaterThanOrEqual(f.MinNotional) && qty.IsPositive(),
	}
	if !res.SatisfiesMinNotional {
		return res, errors.Wrapf(ErrUnsatisfiableNotional,
			"qty %s at price %s gives notional %s, min notional %s", qty, price, notional, f.MinNotional)
	}
	return res, nil
}

func roundToStep(raw, step decimal.Decimal) decimal.Decimal {
	return raw.Div(step).RoundBank(0).Mul(step)
}
