package exchange

import "github.com/shopspring/decimal"

// ProtectiveOrder is a classified reduce-only order recovered from the
// venue's open-order set on restart.
type ProtectiveOrder struct {
	Order         OpenOrder
	PctOfPosition decimal.Decimal // only set for take-profits
}

// RecoveredProtection is the result of classifying a symbol's reduce-only
// orders against the locally known position after a restart.
type RecoveredProtection struct {
	StopLoss     *ProtectiveOrder
	TrailingStop *ProtectiveOrder
	TakeProfits  []ProtectiveOrder
}

// ClassifyProtectiveOrders infers which of a symbol's reduce-only open
// orders are the stop-loss, the trailing stop, and the take-profits, given
// the local position's direction and size.
//
// Two triggers: for a long position the lower triggerPrice is the fixed SL
// and the higher is the trailing SL (symmetric for a short: higher is fixed,
// lower is trailing). A single trigger is always treated as SL, with no
// trailing inferred, including when direction (isLong) is unknown.
func ClassifyProtectiveOrders(orders []OpenOrder, positionSize decimal.Decimal, isLong bool) RecoveredProtection {
	var triggers []OpenOrder
	var limits []OpenOrder
	for _, o := range orders {
		if !o.ReduceOnly {
			continue
		}
		if o.IsTrigger {
			triggers = append(triggers, o)
		} else {
			limits = append(limits, o)
		}
	}

	var rec RecoveredProtection

	switch len(triggers) {
	case 1:
		rec.StopLoss = &ProtectiveOrder{Order: triggers[0]}
	case 2:
		lower, higher := triggers[0], triggers[1]
		if higher.TriggerPrice.LessThan(lower.TriggerPrice) {
			lower, higher = higher, lower
		}
		if isLong {
			rec.StopLoss = &ProtectiveOrder{Order: lower}
			rec.TrailingStop = &ProtectiveOrder{Order: higher}
		} else {
			rec.StopLoss = &ProtectiveOrder{Order: higher}
			rec.TrailingStop = &ProtectiveOrder{Order: lower}
		}
	default:
		// Zero or more-than-two triggers: no unambiguous SL can be inferred.
	}

	if !positionSize.IsZero() {
		for _, o := range limits {
			pct := o.Size.Div(positionSize)
			rec.TakeProfits = append(rec.TakeProfits, ProtectiveOrder{Order: o, PctOfPosition: pct})
		}
	}

	return rec
}
